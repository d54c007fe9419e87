// Package minio provides an S3-compatible storage backend on minio-go. It
// serves the same buckets as package s3 and is selected when the AWS SDK's
// credential chain is unwanted (plain MinIO or ArvanCloud deployments).
package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/fruitsalade/renditions/internal/logging"
	"github.com/fruitsalade/renditions/internal/mediaerr"
	"github.com/fruitsalade/renditions/internal/metrics"
	"github.com/fruitsalade/renditions/internal/storage"
)

// DefaultPresignTTL is used when SignedURL is called with a non-positive ttl.
const DefaultPresignTTL = 15 * time.Minute

// Config holds MinIO connection settings.
type Config struct {
	Endpoint      string `json:"endpoint"`
	Bucket        string `json:"bucket"`
	AccessKey     string `json:"access_key"`
	SecretKey     string `json:"secret_key"`
	Region        string `json:"region"`
	UseSSL        bool   `json:"use_ssl"`
	PublicBaseURL string `json:"public_base_url"`
}

// MinioBackend implements storage.Backend using a minio-go client.
type MinioBackend struct {
	client     *minio.Client
	bucket     string
	publicBase string
}

// splitEndpoint strips a scheme from endpoint. An explicit scheme overrides useSSL.
func splitEndpoint(endpoint string, useSSL bool) (host string, secure bool) {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return strings.TrimRight(strings.TrimPrefix(endpoint, "https://"), "/"), true
	case strings.HasPrefix(endpoint, "http://"):
		return strings.TrimRight(strings.TrimPrefix(endpoint, "http://"), "/"), false
	}
	return strings.TrimRight(endpoint, "/"), useSSL
}

func publicBaseFor(cfg Config) string {
	if cfg.PublicBaseURL != "" {
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	}
	host, secure := splitEndpoint(cfg.Endpoint, cfg.UseSSL)
	scheme := "http"
	if secure {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s/%s", scheme, host, cfg.Bucket)
}

// New creates a MinIO client and ensures the bucket exists.
func New(ctx context.Context, cfg Config) (*MinioBackend, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("endpoint and bucket are required")
	}

	host, secure := splitEndpoint(cfg.Endpoint, cfg.UseSSL)
	client, err := minio.New(host, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	b := &MinioBackend{
		client:     client,
		bucket:     cfg.Bucket,
		publicBase: publicBaseFor(cfg),
	}

	if err := b.ensureBucket(ctx, cfg.Region); err != nil {
		logging.Error("bucket check failed", zap.String("bucket", cfg.Bucket), zap.Error(err))
	}
	return b, nil
}

// NewFromJSON creates a MinioBackend from raw JSON config.
func NewFromJSON(ctx context.Context, raw json.RawMessage) (*MinioBackend, error) {
	var cfg Config
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse minio config: %w", err)
	}
	return New(ctx, cfg)
}

func (b *MinioBackend) observe(op string, start time.Time, err error) {
	metrics.RecordStorageOperation(b.Type(), op, time.Since(start), err == nil)
}

func (b *MinioBackend) ensureBucket(ctx context.Context, region string) (err error) {
	start := time.Now()
	defer func() { b.observe("ensure_bucket", start, err) }()

	exists, err := b.client.BucketExists(ctx, b.bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	if err := b.client.MakeBucket(ctx, b.bucket, minio.MakeBucketOptions{Region: region}); err != nil {
		return fmt.Errorf("create bucket %q: %w", b.bucket, err)
	}
	logging.Info("created bucket", zap.String("bucket", b.bucket))
	return nil
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	switch resp.Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return resp.StatusCode == http.StatusNotFound
}

// Put uploads data under key with its content type and user metadata.
func (b *MinioBackend) Put(ctx context.Context, key string, data []byte, opts storage.PutOptions) (res *storage.PutResult, err error) {
	start := time.Now()
	defer func() { b.observe("put_object", start, err) }()

	_, err = b.client.PutObject(ctx, b.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType:  opts.ContentType,
		UserMetadata: opts.Metadata,
	})
	if err != nil {
		return nil, mediaerr.WriteError("put", key, err)
	}

	metrics.RecordStorageWrite(b.Type(), int64(len(data)))
	return &storage.PutResult{Key: key, URL: b.PublicURL(key)}, nil
}

// Get reads a whole object. minio-go defers the request until the first
// read, so not-found surfaces from ReadAll.
func (b *MinioBackend) Get(ctx context.Context, key string) (data []byte, err error) {
	start := time.Now()
	defer func() { b.observe("get_object", start, err) }()

	obj, err := b.client.GetObject(ctx, b.bucket, key, minio.GetObjectOptions{})
	if err == nil {
		defer obj.Close()
		data, err = io.ReadAll(obj)
	}
	if err != nil {
		if isNotFound(err) {
			return nil, mediaerr.NotFound("object", key)
		}
		return nil, mediaerr.ReadError("get", key, err)
	}
	return data, nil
}

// Stat returns object metadata through StatObject.
func (b *MinioBackend) Stat(ctx context.Context, key string) (info *storage.ObjectInfo, err error) {
	start := time.Now()
	defer func() { b.observe("stat_object", start, err) }()

	oi, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return nil, mediaerr.NotFound("object", key)
		}
		return nil, mediaerr.ReadError("stat", key, err)
	}

	meta := make(map[string]string, len(oi.UserMetadata))
	for k, v := range oi.UserMetadata {
		meta[strings.ToLower(k)] = v
	}
	return &storage.ObjectInfo{
		Key:         key,
		Size:        oi.Size,
		ContentType: oi.ContentType,
		UploadedAt:  oi.LastModified,
		Metadata:    meta,
	}, nil
}

// Delete removes the object at key. RemoveObject is idempotent.
func (b *MinioBackend) Delete(ctx context.Context, key string) (err error) {
	start := time.Now()
	defer func() { b.observe("remove_object", start, err) }()

	if err := b.client.RemoveObject(ctx, b.bucket, key, minio.RemoveObjectOptions{}); err != nil && !isNotFound(err) {
		return mediaerr.WriteError("delete", key, err)
	}
	return nil
}

// Exists checks if an object exists.
func (b *MinioBackend) Exists(ctx context.Context, key string) (ok bool, err error) {
	start := time.Now()
	defer func() { b.observe("stat_object", start, err) }()

	if _, err := b.client.StatObject(ctx, b.bucket, key, minio.StatObjectOptions{}); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, mediaerr.ReadError("exists", key, err)
	}
	return true, nil
}

// SignedURL returns a presigned GET URL valid for ttl.
func (b *MinioBackend) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		ttl = DefaultPresignTTL
	}
	u, err := b.client.PresignedGetObject(ctx, b.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", mediaerr.ReadError("presign", key, err)
	}
	return u.String(), nil
}

// PublicURL returns the browser-accessible URL for key.
func (b *MinioBackend) PublicURL(key string) string {
	return storage.JoinURL(b.publicBase, key)
}

// URLsExpire returns true: presigned URLs are time-limited.
func (b *MinioBackend) URLsExpire() bool { return true }

// Type returns "minio".
func (b *MinioBackend) Type() string { return "minio" }

// Close is a no-op; the minio client holds no long-lived connections of its own.
func (b *MinioBackend) Close() error { return nil }
