// Package config loads configuration from environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/fruitsalade/renditions/internal/media"
	"github.com/fruitsalade/renditions/internal/storage/local"
	"github.com/fruitsalade/renditions/internal/storage/minio"
	"github.com/fruitsalade/renditions/internal/storage/provider"
	s3backend "github.com/fruitsalade/renditions/internal/storage/s3"
	"github.com/fruitsalade/renditions/internal/storage/smb"
)

// Config holds all renditiond configuration.
type Config struct {
	// Logging
	LogLevel  string
	LogFormat string

	// Server
	MetricsAddr string

	// Database (empty = in-memory catalog)
	DatabaseURL string

	// Storage provider ("local", "object-store"/"s3", "minio" or "smb")
	StorageProvider  string
	LocalStoragePath string
	SMBServer        string
	SMBMountPath     string

	// S3-compatible storage
	S3Endpoint  string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool

	// Delivery
	PublicBaseURL string
	SignedURLTTL  time.Duration

	// Keys
	AppID            string
	VariantNamespace string

	// Batch coordinator
	BatchGroupSize  int
	BatchGroupPause time.Duration

	// Eager processor
	ProcessorWorkers int
	ProcessorQueue   int
	EagerKinds       []string

	// Reconciliation sweep (empty = disabled)
	ReconcileSchedule string
}

// Load reads a .env file (if present) and the environment, applies defaults
// and validates the result.
func Load() (*Config, error) {
	// Variables already set in the environment win over .env.
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel:          envOr("LOG_LEVEL", "info"),
		LogFormat:         envOr("LOG_FORMAT", "json"),
		MetricsAddr:       envOr("METRICS_ADDR", ":9090"),
		DatabaseURL:       envOr("DATABASE_URL", ""),
		StorageProvider:   envOr("STORAGE_PROVIDER", provider.Local),
		LocalStoragePath:  envOr("LOCAL_STORAGE_PATH", "/data/storage"),
		SMBServer:         envOr("SMB_SERVER", ""),
		SMBMountPath:      envOr("SMB_MOUNT_PATH", ""),
		S3Endpoint:        envOr("S3_ENDPOINT", "http://localhost:9000"),
		S3Bucket:          envOr("S3_BUCKET", "renditions"),
		S3AccessKey:       envOr("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:       envOr("S3_SECRET_KEY", "minioadmin"),
		S3Region:          envOr("S3_REGION", "us-east-1"),
		S3UseSSL:          envBool("S3_USE_SSL", false),
		PublicBaseURL:     envOr("PUBLIC_BASE_URL", ""),
		SignedURLTTL:      envDuration("SIGNED_URL_TTL", time.Hour),
		AppID:             envOr("APP_ID", "default"),
		VariantNamespace:  envOr("VARIANT_NAMESPACE", "thumbnails"),
		BatchGroupSize:    envInt("BATCH_GROUP_SIZE", 5),
		BatchGroupPause:   envDuration("BATCH_GROUP_PAUSE", 100*time.Millisecond),
		ProcessorWorkers:  envInt("PROCESSOR_WORKERS", 2),
		ProcessorQueue:    envInt("PROCESSOR_QUEUE", 1000),
		EagerKinds:        envList("EAGER_KINDS", []string{"thumbnail", "small"}),
		ReconcileSchedule: envOr("RECONCILE_SCHEDULE", "@every 6h"),
	}
	// An explicitly empty schedule disables the sweep.
	if v, ok := os.LookupEnv("RECONCILE_SCHEDULE"); ok && strings.TrimSpace(v) == "" {
		cfg.ReconcileSchedule = ""
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the provider selector, numeric bounds and eager kinds.
func (c *Config) Validate() error {
	var errs []error

	switch c.StorageProvider {
	case provider.Local:
		if c.LocalStoragePath == "" {
			errs = append(errs, fmt.Errorf("LOCAL_STORAGE_PATH is required for the local provider"))
		}
	case provider.SMB:
		if c.SMBMountPath == "" {
			errs = append(errs, fmt.Errorf("SMB_MOUNT_PATH is required for the smb provider"))
		}
	case provider.ObjectStore, provider.S3, provider.Minio:
		if c.S3Bucket == "" {
			errs = append(errs, fmt.Errorf("S3_BUCKET is required for the %s provider", c.StorageProvider))
		}
	default:
		errs = append(errs, fmt.Errorf("STORAGE_PROVIDER %q is not one of local, object-store, s3, minio, smb", c.StorageProvider))
	}

	if c.SignedURLTTL <= 0 {
		errs = append(errs, fmt.Errorf("SIGNED_URL_TTL must be positive"))
	}
	if c.BatchGroupSize < 1 {
		errs = append(errs, fmt.Errorf("BATCH_GROUP_SIZE must be at least 1"))
	}
	if c.BatchGroupPause < 0 {
		errs = append(errs, fmt.Errorf("BATCH_GROUP_PAUSE must not be negative"))
	}
	if c.ProcessorWorkers < 1 {
		errs = append(errs, fmt.Errorf("PROCESSOR_WORKERS must be at least 1"))
	}
	if c.ProcessorQueue < 1 {
		errs = append(errs, fmt.Errorf("PROCESSOR_QUEUE must be at least 1"))
	}

	presets := media.DefaultPresets()
	for _, k := range c.EagerKinds {
		if _, err := presets.Lookup(k); err != nil {
			errs = append(errs, fmt.Errorf("EAGER_KINDS: %w", err))
		}
	}

	return errors.Join(errs...)
}

// StorageBackend returns the provider name and JSON config for
// provider.NewBackendFromConfig.
func (c *Config) StorageBackend() (string, json.RawMessage, error) {
	var v any
	switch c.StorageProvider {
	case provider.Local:
		v = local.Config{RootPath: c.LocalStoragePath, CreateDirs: true, BaseURL: c.PublicBaseURL}
	case provider.SMB:
		v = smb.Config{Server: c.SMBServer, MountPath: c.SMBMountPath, BaseURL: c.PublicBaseURL}
	case provider.Minio:
		v = minio.Config{
			Endpoint:      c.S3Endpoint,
			Bucket:        c.S3Bucket,
			AccessKey:     c.S3AccessKey,
			SecretKey:     c.S3SecretKey,
			Region:        c.S3Region,
			UseSSL:        c.S3UseSSL,
			PublicBaseURL: c.PublicBaseURL,
		}
	default:
		v = s3backend.BackendConfig{
			Endpoint:      c.S3Endpoint,
			Bucket:        c.S3Bucket,
			AccessKey:     c.S3AccessKey,
			SecretKey:     c.S3SecretKey,
			Region:        c.S3Region,
			UseSSL:        c.S3UseSSL,
			PublicBaseURL: c.PublicBaseURL,
		}
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", nil, fmt.Errorf("encode storage config: %w", err)
	}
	return c.StorageProvider, raw, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
