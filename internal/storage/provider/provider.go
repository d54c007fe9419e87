// Package provider selects a storage.Backend implementation by name.
package provider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fruitsalade/renditions/internal/storage"
	"github.com/fruitsalade/renditions/internal/storage/local"
	"github.com/fruitsalade/renditions/internal/storage/minio"
	s3backend "github.com/fruitsalade/renditions/internal/storage/s3"
	"github.com/fruitsalade/renditions/internal/storage/smb"
)

// Provider names accepted by NewBackendFromConfig.
const (
	Local       = "local"
	S3          = "s3"
	ObjectStore = "object-store"
	Minio       = "minio"
	SMB         = "smb"
)

// NewBackendFromConfig creates a Backend from a backend type string and JSON config.
// "object-store" is an alias for "s3".
func NewBackendFromConfig(ctx context.Context, backendType string, config json.RawMessage) (storage.Backend, error) {
	switch backendType {
	case S3, ObjectStore:
		return s3backend.NewBackendFromJSON(ctx, config)
	case Minio:
		return minio.NewFromJSON(ctx, config)
	case Local:
		return local.NewFromJSON(config)
	case SMB:
		return smb.NewFromJSON(config)
	default:
		return nil, fmt.Errorf("unknown backend type: %s", backendType)
	}
}
