// Package variants generates, resolves, batches and reconciles derived
// renditions of uploaded media.
package variants

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/fruitsalade/renditions/internal/catalog"
	"github.com/fruitsalade/renditions/internal/events"
	"github.com/fruitsalade/renditions/internal/keys"
	"github.com/fruitsalade/renditions/internal/logging"
	"github.com/fruitsalade/renditions/internal/media"
	"github.com/fruitsalade/renditions/internal/mediaerr"
	"github.com/fruitsalade/renditions/internal/metrics"
	"github.com/fruitsalade/renditions/internal/storage"
	"github.com/fruitsalade/renditions/internal/transform"
)

// DefaultSignedURLTTL is the lifetime of signed URLs for private variants.
const DefaultSignedURLTTL = time.Hour

// GenerationError reports a failed single-variant pipeline.
type GenerationError struct {
	MediaID string
	Kind    string
	Format  media.Format
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("generate variants for media %s: %v", e.MediaID, e.Err)
	}
	return fmt.Sprintf("generate %s/%s for media %s: %v", e.Kind, e.Format, e.MediaID, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Is matches mediaerr.ErrGeneration.
func (e *GenerationError) Is(target error) bool { return target == mediaerr.ErrGeneration }

// Config holds settings shared by the generator and the resolver.
type Config struct {
	// Namespace is the first segment of variant keys.
	Namespace string
	// SignedURLTTL is the lifetime of signed URLs for private variants.
	SignedURLTTL time.Duration
}

// Request names one concrete variant to produce.
type Request struct {
	Kind    string
	Format  media.Format
	Box     media.Box
	Quality int
}

// Generator turns an original into one variant and persists it in the
// backend and the catalog. Resolvers and coordinators built on the same
// generator share its flight group, so one variant is never generated twice
// concurrently.
type Generator struct {
	backend   storage.Backend
	catalog   catalog.Catalog
	presets   media.PresetTable
	namespace string
	ttl       time.Duration
	events    events.Publisher
	flights   singleflight.Group
	now       func() time.Time
}

// NewGenerator creates a generator. presets is the table consulted by
// resolvers and coordinators built on this generator.
func NewGenerator(backend storage.Backend, cat catalog.Catalog, presets media.PresetTable, cfg Config) *Generator {
	if cfg.Namespace == "" {
		cfg.Namespace = keys.DefaultNamespace
	}
	if cfg.SignedURLTTL <= 0 {
		cfg.SignedURLTTL = DefaultSignedURLTTL
	}
	return &Generator{
		backend:   backend,
		catalog:   cat,
		presets:   presets,
		namespace: cfg.Namespace,
		ttl:       cfg.SignedURLTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithEvents attaches a publisher that receives a variant.created event for
// every stored variant.
func (g *Generator) WithEvents(p events.Publisher) *Generator {
	g.events = p
	return g
}

// Presets returns the preset table of the generator.
func (g *Generator) Presets() media.PresetTable { return g.presets }

// GenerateFromBytes decodes original and generates one variant from it.
func (g *Generator) GenerateFromBytes(ctx context.Context, file *media.MediaFile, original []byte, req Request) (*media.Variant, error) {
	src, err := transform.Decode(original)
	if err != nil {
		return nil, &GenerationError{MediaID: file.ID, Kind: req.Kind, Format: req.Format, Err: err}
	}
	return g.Generate(ctx, file, src, req)
}

// Generate produces the variant described by req from a decoded source.
// Any failure is returned as a *GenerationError; previously stored variants
// are never touched.
func (g *Generator) Generate(ctx context.Context, file *media.MediaFile, src *transform.Source, req Request) (v *media.Variant, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordGeneration(req.Kind, string(req.Format), time.Since(start), err == nil)
		if err != nil {
			err = &GenerationError{MediaID: file.ID, Kind: req.Kind, Format: req.Format, Err: err}
		}
	}()

	if err := req.Format.Validate(); err != nil {
		return nil, err
	}

	out, err := transform.Fit(src.Image, req.Box)
	if err != nil {
		return nil, err
	}

	var quality *int
	if !req.Format.Lossless() {
		q := media.ClampQuality(req.Quality)
		quality = &q
	}
	encodeQuality := 0
	if quality != nil {
		encodeQuality = *quality
	}
	data, err := transform.Encode(out, req.Format, encodeQuality)
	if err != nil {
		return nil, err
	}

	key := keys.Variant(g.namespace, file.UserID, file.ID, req.Kind, req.Box, req.Format)
	visibility := file.Visibility()
	if _, err := g.backend.Put(ctx, key, data, storage.PutOptions{
		ContentType: req.Format.ContentType(),
		Metadata: map[string]string{
			storage.MetaMediaID:    file.ID,
			storage.MetaKind:       req.Kind,
			storage.MetaVisibility: string(visibility),
		},
	}); err != nil {
		return nil, err
	}

	now := g.now()
	bounds := out.Bounds()
	v = &media.Variant{
		MediaID:    file.ID,
		StorageKey: key,
		Kind:       req.Kind,
		Format:     req.Format,
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		Size:       int64(len(data)),
		Quality:    quality,
		Settings: media.ProcessingSettings{
			SourceWidth:  src.Width,
			SourceHeight: src.Height,
			Orientation:  src.Orientation,
			Fit:          req.Box.Fit,
			TargetWidth:  req.Box.Width,
			TargetHeight: req.Box.Height,
			GeneratedAt:  now,
		},
		Visibility: visibility,
		Available:  true,
		CreatedAt:  now,
	}

	id, err := g.catalog.CreateVariant(ctx, v)
	if err != nil {
		return nil, fmt.Errorf("record variant: %w", err)
	}
	v.ID = id

	if err := g.retireSuperseded(ctx, v); err != nil {
		return nil, err
	}

	logging.Debug("variant generated",
		zap.String("media_id", file.ID),
		zap.String("variant_id", id),
		zap.String("kind", req.Kind),
		zap.String("format", string(req.Format)),
		zap.String("key", key),
		zap.Int("width", v.Width),
		zap.Int("height", v.Height),
	)

	if g.events != nil {
		g.events.Publish(events.Event{
			Type:      events.EventVariantCreated,
			MediaID:   file.ID,
			VariantID: id,
			Kind:      req.Kind,
			Format:    string(req.Format),
			Key:       key,
			Size:      v.Size,
		})
	}

	if err := g.attachURLs(ctx, v); err != nil {
		return nil, err
	}
	return v, nil
}

// retireSuperseded marks every other available row stored under v's key
// unavailable. Their bytes were just overwritten, so their size and quality
// no longer describe the object.
func (g *Generator) retireSuperseded(ctx context.Context, v *media.Variant) error {
	list, err := g.catalog.GetVariants(ctx, v.MediaID)
	if err != nil {
		return fmt.Errorf("list variants of %s: %w", v.MediaID, err)
	}
	for _, old := range list {
		if old.ID == v.ID || old.StorageKey != v.StorageKey || !old.Available {
			continue
		}
		if err := g.catalog.MarkUnavailable(ctx, old.ID); err != nil {
			return fmt.Errorf("retire variant %s: %w", old.ID, err)
		}
		logging.Debug("variant superseded",
			zap.String("media_id", v.MediaID),
			zap.String("variant_id", old.ID),
			zap.String("by", v.ID),
		)
	}
	return nil
}

// presetFlight and customFlight name the flight of one variant identity.
func presetFlight(mediaID, kind string, format media.Format) string {
	return fmt.Sprintf("preset:%s:%s:%s", mediaID, kind, format)
}

func customFlight(mediaID string, box media.Box, format media.Format) string {
	return fmt.Sprintf("custom:%s:%dx%d:%s:%s", mediaID, box.Width, box.Height, box.Fit, format)
}

// once runs fn once per key among concurrent callers and returns a private
// copy of the result. fn runs detached from the caller's cancellation so an
// abandoned request does not fail the others sharing it.
func (g *Generator) once(ctx context.Context, key string, fn func(context.Context) (*media.Variant, error)) (*media.Variant, bool, error) {
	flightCtx := context.WithoutCancel(ctx)
	res, err, shared := g.flights.Do(key, func() (interface{}, error) {
		return fn(flightCtx)
	})
	if err != nil {
		return nil, shared, err
	}
	v := *res.(*media.Variant)
	return &v, shared, nil
}

// attachURLs sets the public URL of v and, for private variants, a signed URL.
func (g *Generator) attachURLs(ctx context.Context, v *media.Variant) error {
	v.URL = g.backend.PublicURL(v.StorageKey)
	v.SignedURL = ""
	if v.Visibility == media.Private {
		signed, err := g.backend.SignedURL(ctx, v.StorageKey, g.ttl)
		if err != nil {
			return fmt.Errorf("sign variant url: %w", err)
		}
		v.SignedURL = signed
	}
	return nil
}
