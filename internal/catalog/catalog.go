// Package catalog defines the record store the variant pipeline reads media
// files from and records variants into.
package catalog

import (
	"context"

	"github.com/fruitsalade/renditions/internal/media"
)

// Catalog is the repository boundary consumed by the variant pipeline.
// Implementations must be safe for concurrent use.
type Catalog interface {
	// GetMediaFile returns the media file with id or an error wrapping
	// mediaerr.ErrNotFound.
	GetMediaFile(ctx context.Context, id string) (*media.MediaFile, error)

	// GetVariants returns every variant of mediaID in creation order,
	// including unavailable ones.
	GetVariants(ctx context.Context, mediaID string) ([]*media.Variant, error)

	// CreateVariant records v and returns its new identifier. The ID field of
	// v is ignored.
	CreateVariant(ctx context.Context, v *media.Variant) (string, error)

	// MarkUnavailable clears the availability flag of a variant.
	MarkUnavailable(ctx context.Context, variantID string) error
}

// MediaLister is implemented by catalogs that can enumerate their media files.
type MediaLister interface {
	ListMediaIDs(ctx context.Context) ([]string, error)
}

// MediaWriter is implemented by catalogs that accept new originals.
type MediaWriter interface {
	// CreateMediaFile records m and returns its identifier. A non-empty m.ID
	// is kept as given.
	CreateMediaFile(ctx context.Context, m *media.MediaFile) (string, error)
}

// Store is a catalog that also lists and records media files.
type Store interface {
	Catalog
	MediaLister
	MediaWriter
	Close() error
}
