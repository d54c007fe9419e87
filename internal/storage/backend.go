// Package storage defines the Backend contract shared by the filesystem and
// object-store providers. Provider sub-packages implement it; the provider
// package selects one at startup.
package storage

import (
	"context"
	"strings"
	"time"
)

// Metadata keys attached to stored variants.
const (
	MetaMediaID    = "media-id"
	MetaKind       = "kind"
	MetaVisibility = "visibility"
)

// PutOptions carries the content type and caller-supplied tags of an object.
type PutOptions struct {
	ContentType string
	Metadata    map[string]string
}

// PutResult is returned by a successful Put.
type PutResult struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key         string            `json:"key"`
	Size        int64             `json:"size"`
	ContentType string            `json:"content_type"`
	UploadedAt  time.Time         `json:"uploaded_at"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Backend is the interface for content storage backends.
//
// Errors: Get and Stat wrap mediaerr.ErrNotFound for absent keys and
// mediaerr.ErrStorageRead otherwise. Put and Delete failures wrap
// mediaerr.ErrStorageWrite. Exists reports false, not an error, for absent keys.
type Backend interface {
	// Put stores data under key, overwriting any existing object.
	Put(ctx context.Context, key string, data []byte, opts PutOptions) (*PutResult, error)

	// Get returns the full content of the object at key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Stat returns the object's size, content type and metadata.
	Stat(ctx context.Context, key string) (*ObjectInfo, error)

	// Delete removes the object at key. Deleting an absent key is a no-op.
	Delete(ctx context.Context, key string) error

	// Exists reports whether an object is stored at key.
	Exists(ctx context.Context, key string) (bool, error)

	// SignedURL returns a URL granting read access for ttl. Providers whose
	// URLsExpire reports false return a stable direct URL that ignores ttl.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)

	// PublicURL returns the delivery URL of key. It performs no I/O.
	PublicURL(key string) string

	// URLsExpire reports whether SignedURL produces time-limited URLs.
	URLsExpire() bool

	// Type returns the backend type identifier ("local", "s3", "minio").
	Type() string

	// Close releases any resources held by the backend.
	Close() error
}

// JoinURL joins a base URL and a key with exactly one slash.
func JoinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
