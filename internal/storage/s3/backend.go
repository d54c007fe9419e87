// Package s3 provides an S3-compatible storage backend with metrics.
package s3

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/fruitsalade/renditions/internal/logging"
	"github.com/fruitsalade/renditions/internal/mediaerr"
	"github.com/fruitsalade/renditions/internal/metrics"
	"github.com/fruitsalade/renditions/internal/storage"
)

// DefaultPresignTTL is used when SignedURL is called with a non-positive ttl.
const DefaultPresignTTL = 15 * time.Minute

// BackendConfig is a JSON-serializable config for S3 backends.
type BackendConfig struct {
	Endpoint      string `json:"endpoint"`
	Bucket        string `json:"bucket"`
	AccessKey     string `json:"access_key"`
	SecretKey     string `json:"secret_key"`
	Region        string `json:"region"`
	UseSSL        bool   `json:"use_ssl"`
	PublicBaseURL string `json:"public_base_url"`
}

// S3Backend implements storage.Backend using S3/MinIO through aws-sdk-go-v2.
type S3Backend struct {
	client     *s3.Client
	presign    *s3.PresignClient
	bucket     string
	publicBase string
}

// normalizeEndpoint adds a scheme to bare host:port endpoints.
func normalizeEndpoint(endpoint string, useSSL bool) string {
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return strings.TrimRight(endpoint, "/")
	}
	if useSSL {
		return "https://" + endpoint
	}
	return "http://" + endpoint
}

// publicBaseFor returns the delivery base: the override when set, otherwise
// the path-style bucket URL on the endpoint.
func publicBaseFor(cfg BackendConfig) string {
	if cfg.PublicBaseURL != "" {
		return strings.TrimRight(cfg.PublicBaseURL, "/")
	}
	endpoint := normalizeEndpoint(cfg.Endpoint, cfg.UseSSL)
	if endpoint == "" {
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}
	return endpoint + "/" + cfg.Bucket
}

// NewBackend creates a new S3 backend from a BackendConfig.
func NewBackend(ctx context.Context, cfg BackendConfig) (*S3Backend, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := normalizeEndpoint(cfg.Endpoint, cfg.UseSSL)
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = true
	})

	backend := &S3Backend{
		client:     client,
		presign:    s3.NewPresignClient(client),
		bucket:     cfg.Bucket,
		publicBase: publicBaseFor(cfg),
	}

	// Verify bucket exists
	if err := backend.ensureBucket(ctx); err != nil {
		logging.Error("bucket check failed", zap.String("bucket", cfg.Bucket), zap.Error(err))
	}

	return backend, nil
}

// NewBackendFromJSON creates an S3Backend from raw JSON config.
func NewBackendFromJSON(ctx context.Context, raw json.RawMessage) (*S3Backend, error) {
	var cfg BackendConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse s3 config: %w", err)
	}
	return NewBackend(ctx, cfg)
}

func (b *S3Backend) observe(op string, start time.Time, err error) {
	metrics.RecordStorageOperation(b.Type(), op, time.Since(start), err == nil)
}

func (b *S3Backend) ensureBucket(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { b.observe("ensure_bucket", start, err) }()

	_, err = b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err == nil {
		return nil
	}
	_, createErr := b.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if createErr != nil {
		return fmt.Errorf("bucket %s does not exist and cannot create: %w", b.bucket, createErr)
	}
	logging.Info("created S3 bucket", zap.String("bucket", b.bucket))
	return nil
}

// isNotFound reports whether err is an S3 missing-object response.
func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return true
	}
	return false
}

// Put uploads content to S3 with its content type and user metadata.
func (b *S3Backend) Put(ctx context.Context, key string, data []byte, opts storage.PutOptions) (res *storage.PutResult, err error) {
	start := time.Now()
	defer func() { b.observe("put_object", start, err) }()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		Metadata:      opts.Metadata,
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}

	if _, err := b.client.PutObject(ctx, input); err != nil {
		return nil, mediaerr.WriteError("put", key, err)
	}

	metrics.RecordStorageWrite(b.Type(), int64(len(data)))
	logging.Debug("S3 put object", zap.String("key", key), zap.Int("size", len(data)))
	return &storage.PutResult{Key: key, URL: b.PublicURL(key)}, nil
}

// Get retrieves a whole object from S3.
func (b *S3Backend) Get(ctx context.Context, key string) (data []byte, err error) {
	start := time.Now()
	defer func() { b.observe("get_object", start, err) }()

	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, mediaerr.NotFound("object", key)
		}
		return nil, mediaerr.ReadError("get", key, err)
	}
	defer result.Body.Close()

	data, err = io.ReadAll(result.Body)
	if err != nil {
		return nil, mediaerr.ReadError("get", key, err)
	}
	return data, nil
}

// Stat returns object metadata through HeadObject.
func (b *S3Backend) Stat(ctx context.Context, key string) (info *storage.ObjectInfo, err error) {
	start := time.Now()
	defer func() { b.observe("head_object", start, err) }()

	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, mediaerr.NotFound("object", key)
		}
		return nil, mediaerr.ReadError("stat", key, err)
	}

	info = &storage.ObjectInfo{
		Key:         key,
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		Metadata:    out.Metadata,
	}
	if out.LastModified != nil {
		info.UploadedAt = *out.LastModified
	}
	return info, nil
}

// Delete removes an object from S3. S3 deletes are idempotent.
func (b *S3Backend) Delete(ctx context.Context, key string) (err error) {
	start := time.Now()
	defer func() { b.observe("delete_object", start, err) }()

	_, err = b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return mediaerr.WriteError("delete", key, err)
	}

	logging.Debug("S3 delete object", zap.String("key", key))
	return nil
}

// Exists checks if an object exists in S3.
func (b *S3Backend) Exists(ctx context.Context, key string) (ok bool, err error) {
	start := time.Now()
	defer func() { b.observe("head_object", start, err) }()

	_, err = b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, mediaerr.ReadError("exists", key, err)
	}
	return true, nil
}

// SignedURL returns a presigned GET URL valid for ttl.
func (b *S3Backend) SignedURL(ctx context.Context, key string, ttl time.Duration) (u string, err error) {
	start := time.Now()
	defer func() { b.observe("presign_get", start, err) }()

	if ttl <= 0 {
		ttl = DefaultPresignTTL
	}
	req, err := b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", mediaerr.ReadError("presign", key, err)
	}
	return req.URL, nil
}

// PublicURL returns the delivery URL of key.
func (b *S3Backend) PublicURL(key string) string {
	return storage.JoinURL(b.publicBase, key)
}

// URLsExpire returns true: presigned URLs are time-limited.
func (b *S3Backend) URLsExpire() bool { return true }

// Type returns "s3".
func (b *S3Backend) Type() string { return "s3" }

// Close is a no-op for S3 backends.
func (b *S3Backend) Close() error { return nil }
