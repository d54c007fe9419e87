// Package local provides a local filesystem storage backend.
//
// A filesystem has no object metadata, so every object is written with a
// JSON sidecar ("<file>.meta.json") holding its content type, size, upload
// time and tags. SignedURL returns the same stable URL as PublicURL; it
// does not expire.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fruitsalade/renditions/internal/mediaerr"
	"github.com/fruitsalade/renditions/internal/metrics"
	"github.com/fruitsalade/renditions/internal/storage"
)

// SidecarSuffix is appended to an object's path to form its metadata file.
const SidecarSuffix = ".meta.json"

// DefaultBaseURL prefixes keys in PublicURL when no base URL is configured.
const DefaultBaseURL = "/files"

// Config holds local filesystem backend settings.
type Config struct {
	RootPath   string `json:"root_path"`
	CreateDirs bool   `json:"create_dirs"`
	BaseURL    string `json:"base_url"`
}

// LocalBackend implements storage.Backend using the local filesystem.
type LocalBackend struct {
	rootPath   string
	createDirs bool
	baseURL    string
}

type sidecar struct {
	ContentType string            `json:"content_type"`
	Size        int64             `json:"size"`
	UploadedAt  time.Time         `json:"uploaded_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// New creates a new local filesystem backend.
func New(cfg Config) (*LocalBackend, error) {
	if cfg.RootPath == "" {
		return nil, fmt.Errorf("root_path is required")
	}

	// Ensure root exists
	info, err := os.Stat(cfg.RootPath)
	if err != nil {
		if os.IsNotExist(err) && cfg.CreateDirs {
			if mkErr := os.MkdirAll(cfg.RootPath, 0755); mkErr != nil {
				return nil, fmt.Errorf("create root path %s: %w", cfg.RootPath, mkErr)
			}
		} else {
			return nil, fmt.Errorf("stat root path %s: %w", cfg.RootPath, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("root path %s is not a directory", cfg.RootPath)
	}

	root, err := filepath.Abs(cfg.RootPath)
	if err != nil {
		return nil, fmt.Errorf("resolve root path %s: %w", cfg.RootPath, err)
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &LocalBackend{
		rootPath:   root,
		createDirs: cfg.CreateDirs,
		baseURL:    baseURL,
	}, nil
}

// NewFromJSON creates a LocalBackend from raw JSON config.
func NewFromJSON(raw json.RawMessage) (*LocalBackend, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse local config: %w", err)
	}
	return New(cfg)
}

// fullPath maps a key to a path under the root. Keys that would escape the
// root are rejected.
func (b *LocalBackend) fullPath(key string) (string, error) {
	p := filepath.Join(b.rootPath, filepath.FromSlash(key))
	rel, err := filepath.Rel(b.rootPath, p)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", mediaerr.Invalid("key %q escapes storage root", key)
	}
	return p, nil
}

func (b *LocalBackend) observe(op string, start time.Time, err error) {
	metrics.RecordStorageOperation(b.Type(), op, time.Since(start), err == nil)
}

// Put writes content and its sidecar atomically (temp file + rename).
func (b *LocalBackend) Put(_ context.Context, key string, data []byte, opts storage.PutOptions) (res *storage.PutResult, err error) {
	start := time.Now()
	defer func() { b.observe("put", start, err) }()

	path, err := b.fullPath(key)
	if err != nil {
		return nil, err
	}

	if b.createDirs {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, mediaerr.WriteError("put", key, fmt.Errorf("create dirs: %w", err))
		}
	}

	if err := writeAtomic(path, data); err != nil {
		return nil, mediaerr.WriteError("put", key, err)
	}

	meta, err := json.Marshal(sidecar{
		ContentType: opts.ContentType,
		Size:        int64(len(data)),
		UploadedAt:  time.Now().UTC(),
		Metadata:    opts.Metadata,
	})
	if err != nil {
		return nil, mediaerr.WriteError("put", key, fmt.Errorf("encode sidecar: %w", err))
	}
	if err := writeAtomic(path+SidecarSuffix, meta); err != nil {
		return nil, mediaerr.WriteError("put", key, fmt.Errorf("sidecar: %w", err))
	}

	metrics.RecordStorageWrite(b.Type(), int64(len(data)))
	return &storage.PutResult{Key: key, URL: b.PublicURL(key)}, nil
}

func writeAtomic(path string, data []byte) error {
	// Write to temp file then rename for atomicity
	tmp, err := os.CreateTemp(filepath.Dir(path), ".renditions-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp: %w", err)
	}
	return nil
}

// Get reads a whole file from the local filesystem.
func (b *LocalBackend) Get(_ context.Context, key string) (data []byte, err error) {
	start := time.Now()
	defer func() { b.observe("get", start, err) }()

	path, err := b.fullPath(key)
	if err != nil {
		return nil, err
	}
	data, err = os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, mediaerr.NotFound("object", key)
		}
		return nil, mediaerr.ReadError("get", key, err)
	}
	return data, nil
}

// Stat returns the object's sidecar metadata. Objects written without a
// sidecar report their file size and modification time only.
func (b *LocalBackend) Stat(_ context.Context, key string) (info *storage.ObjectInfo, err error) {
	start := time.Now()
	defer func() { b.observe("stat", start, err) }()

	path, err := b.fullPath(key)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, mediaerr.NotFound("object", key)
		}
		return nil, mediaerr.ReadError("stat", key, err)
	}

	info = &storage.ObjectInfo{Key: key, Size: fi.Size(), UploadedAt: fi.ModTime().UTC()}

	raw, err := os.ReadFile(path + SidecarSuffix)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return info, nil
	case err != nil:
		return nil, mediaerr.ReadError("stat", key, fmt.Errorf("sidecar: %w", err))
	}

	var sc sidecar
	if err := json.Unmarshal(raw, &sc); err != nil {
		return nil, mediaerr.ReadError("stat", key, fmt.Errorf("decode sidecar: %w", err))
	}
	info.ContentType = sc.ContentType
	info.UploadedAt = sc.UploadedAt
	info.Metadata = sc.Metadata
	return info, nil
}

// Delete removes a file and its sidecar from the local filesystem.
func (b *LocalBackend) Delete(_ context.Context, key string) (err error) {
	start := time.Now()
	defer func() { b.observe("delete", start, err) }()

	path, err := b.fullPath(key)
	if err != nil {
		return err
	}
	for _, p := range []string{path, path + SidecarSuffix} {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return mediaerr.WriteError("delete", key, err)
		}
	}
	return nil
}

// Exists checks if a file exists on the local filesystem.
func (b *LocalBackend) Exists(_ context.Context, key string) (ok bool, err error) {
	start := time.Now()
	defer func() { b.observe("exists", start, err) }()

	path, err := b.fullPath(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, mediaerr.ReadError("exists", key, err)
	}
	return true, nil
}

// SignedURL returns PublicURL(key). Local URLs never expire and ttl is ignored.
func (b *LocalBackend) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return b.PublicURL(key), nil
}

// PublicURL returns the base URL joined with key.
func (b *LocalBackend) PublicURL(key string) string {
	return storage.JoinURL(b.baseURL, key)
}

// URLsExpire returns false: local signed URLs are stable paths.
func (b *LocalBackend) URLsExpire() bool { return false }

// Root returns the absolute root directory.
func (b *LocalBackend) Root() string { return b.rootPath }

// Type returns "local".
func (b *LocalBackend) Type() string { return "local" }

// Close is a no-op for local backends.
func (b *LocalBackend) Close() error { return nil }
