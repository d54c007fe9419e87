package variants

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fruitsalade/renditions/internal/logging"
	"github.com/fruitsalade/renditions/internal/media"
	"github.com/fruitsalade/renditions/internal/mediaerr"
	"github.com/fruitsalade/renditions/internal/metrics"
)

// MaxCustomDimension bounds each side of a custom request.
const MaxCustomDimension = 4096

// CustomRequest describes an ad-hoc variant. Fit defaults to cover, Format
// to jpeg and Quality to media.DefaultQuality.
type CustomRequest struct {
	Width   int           `json:"width"`
	Height  int           `json:"height"`
	Fit     media.FitMode `json:"fit,omitempty"`
	Format  media.Format  `json:"format,omitempty"`
	Quality int           `json:"quality,omitempty"`
}

// Resolver answers variant lookups, generating on a catalog miss.
// Concurrent misses for the same variant share one generation.
type Resolver struct {
	gen *Generator
}

// NewResolver creates a resolver on top of gen.
func NewResolver(gen *Generator) *Resolver {
	return &Resolver{gen: gen}
}

// Resolve returns the first available variant of mediaID matching kind and
// format, generating it from the original when none exists. An empty format
// selects jpeg.
func (r *Resolver) Resolve(ctx context.Context, mediaID, kind string, format media.Format) (*media.Variant, error) {
	if format == "" {
		format = media.JPEG
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}

	match := func(v *media.Variant) bool { return v.Matches(kind, format) }
	if v, err := r.lookup(ctx, mediaID, match); err != nil || v != nil {
		return v, err
	}

	return r.flight(ctx, presetFlight(mediaID, kind, format), func(ctx context.Context) (*media.Variant, error) {
		if v, err := r.findExisting(ctx, mediaID, match); err != nil || v != nil {
			return v, err
		}

		file, err := r.gen.catalog.GetMediaFile(ctx, mediaID)
		if err != nil {
			return nil, err
		}
		// The kind is checked after the media lookup so an unknown media ID
		// reports not-found whatever the kind, and before the original is
		// fetched so a bad kind costs no download.
		box, err := r.gen.presets.Lookup(kind)
		if err != nil {
			return nil, err
		}
		original, err := r.fetchOriginal(ctx, file)
		if err != nil {
			return nil, err
		}
		return r.gen.GenerateFromBytes(ctx, file, original, Request{
			Kind:    kind,
			Format:  format,
			Box:     box,
			Quality: media.DefaultQuality,
		})
	})
}

// ResolveCustom returns a custom variant of mediaID for the requested box,
// reusing an earlier identical request's variant when one is available.
func (r *Resolver) ResolveCustom(ctx context.Context, mediaID string, req CustomRequest) (*media.Variant, error) {
	if req.Width <= 0 || req.Height <= 0 {
		return nil, mediaerr.Invalid("custom variant requires positive width and height, got %dx%d", req.Width, req.Height)
	}
	if req.Width > MaxCustomDimension || req.Height > MaxCustomDimension {
		return nil, mediaerr.Invalid("custom variant %dx%d exceeds %d pixels per side", req.Width, req.Height, MaxCustomDimension)
	}
	fit, err := media.ParseFitMode(string(req.Fit))
	if err != nil {
		return nil, err
	}
	format := req.Format
	if format == "" {
		format = media.JPEG
	}
	if err := format.Validate(); err != nil {
		return nil, err
	}

	match := func(v *media.Variant) bool { return v.MatchesCustom(req.Width, req.Height, fit, format) }
	if v, err := r.lookup(ctx, mediaID, match); err != nil || v != nil {
		return v, err
	}

	box := media.Box{Width: req.Width, Height: req.Height, Fit: fit}
	return r.flight(ctx, customFlight(mediaID, box, format), func(ctx context.Context) (*media.Variant, error) {
		if v, err := r.findExisting(ctx, mediaID, match); err != nil || v != nil {
			return v, err
		}

		file, err := r.gen.catalog.GetMediaFile(ctx, mediaID)
		if err != nil {
			return nil, err
		}
		original, err := r.fetchOriginal(ctx, file)
		if err != nil {
			return nil, err
		}
		return r.gen.GenerateFromBytes(ctx, file, original, Request{
			Kind:    media.KindCustom,
			Format:  format,
			Box:     box,
			Quality: req.Quality,
		})
	})
}

// lookup is the cache-hit path: it returns the first matching variant with
// URLs attached, or nil on a miss.
func (r *Resolver) lookup(ctx context.Context, mediaID string, match func(*media.Variant) bool) (*media.Variant, error) {
	v, err := r.findExisting(ctx, mediaID, match)
	if err != nil {
		metrics.RecordResolve("error")
		return nil, err
	}
	if v != nil {
		metrics.RecordResolve("hit")
	}
	return v, nil
}

func (r *Resolver) findExisting(ctx context.Context, mediaID string, match func(*media.Variant) bool) (*media.Variant, error) {
	list, err := r.gen.catalog.GetVariants(ctx, mediaID)
	if err != nil {
		return nil, fmt.Errorf("list variants of %s: %w", mediaID, err)
	}
	for _, v := range list {
		if match(v) {
			if err := r.gen.attachURLs(ctx, v); err != nil {
				return nil, err
			}
			return v, nil
		}
	}
	return nil, nil
}

func (r *Resolver) fetchOriginal(ctx context.Context, file *media.MediaFile) ([]byte, error) {
	data, err := r.gen.backend.Get(ctx, file.StorageKey)
	if err != nil {
		if mediaerr.IsNotFound(err) {
			return nil, fmt.Errorf("original of media %s: %w", file.ID, err)
		}
		return nil, err
	}
	return data, nil
}

// flight runs fn through the generator's flight group and records the outcome.
func (r *Resolver) flight(ctx context.Context, key string, fn func(context.Context) (*media.Variant, error)) (*media.Variant, error) {
	v, shared, err := r.gen.once(ctx, key, fn)
	switch {
	case err != nil:
		metrics.RecordResolve("error")
		logging.Warn("variant resolution failed", zap.String("flight", key), zap.Error(err))
		return nil, err
	case shared:
		metrics.RecordResolve("shared")
	default:
		metrics.RecordResolve("miss")
	}
	// A flight started by a batch returns the variant without URLs.
	if err := r.gen.attachURLs(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}
