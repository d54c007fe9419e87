package variants

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fruitsalade/renditions/internal/catalog"
	"github.com/fruitsalade/renditions/internal/events"
	"github.com/fruitsalade/renditions/internal/keys"
	"github.com/fruitsalade/renditions/internal/logging"
	"github.com/fruitsalade/renditions/internal/media"
	"github.com/fruitsalade/renditions/internal/mediaerr"
	"github.com/fruitsalade/renditions/internal/storage"
	"github.com/fruitsalade/renditions/internal/transform"
)

// IngestRequest is an uploaded original.
type IngestRequest struct {
	AppID      string
	UserID     string
	FileName   string
	Data       []byte
	Visibility media.Visibility
}

// Ingester stores originals and records them as media files.
type Ingester struct {
	backend   storage.Backend
	writer    catalog.MediaWriter
	appID     string
	processor *Processor
	events    events.Publisher
	now       func() time.Time
}

// NewIngester creates an ingester. appID is used when a request leaves AppID empty.
func NewIngester(backend storage.Backend, writer catalog.MediaWriter, appID string) *Ingester {
	if appID == "" {
		appID = "default"
	}
	return &Ingester{
		backend: backend,
		writer:  writer,
		appID:   appID,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithProcessor attaches an eager processor that receives every ingested
// media ID. The processor must be started by the caller; the one-shot CLI
// generates eagerly through Coordinator.GenerateItem instead.
func (in *Ingester) WithProcessor(p *Processor) *Ingester {
	in.processor = p
	return in
}

// WithEvents attaches a publisher that receives a media.ingested event per upload.
func (in *Ingester) WithEvents(p events.Publisher) *Ingester {
	in.events = p
	return in
}

// Ingest stores req.Data under an original key and records the media file.
func (in *Ingester) Ingest(ctx context.Context, req IngestRequest) (*media.MediaFile, error) {
	if req.UserID == "" {
		return nil, mediaerr.Invalid("user id is required")
	}
	if len(req.Data) == 0 {
		return nil, mediaerr.Invalid("empty upload")
	}
	info, err := transform.Probe(req.Data)
	if err != nil {
		return nil, mediaerr.Invalid("unsupported image: %v", err)
	}

	appID := req.AppID
	if appID == "" {
		appID = in.appID
	}
	now := in.now()
	key := keys.Original(appID, req.UserID, req.FileName, now)

	visibility := req.Visibility
	if visibility == "" {
		visibility = media.Private
	}
	if _, err := in.backend.Put(ctx, key, req.Data, storage.PutOptions{
		ContentType: info.ContentType,
		Metadata:    map[string]string{storage.MetaVisibility: string(visibility)},
	}); err != nil {
		return nil, err
	}

	file := &media.MediaFile{
		UserID:      req.UserID,
		StorageKey:  key,
		FileName:    req.FileName,
		ContentType: info.ContentType,
		Size:        int64(len(req.Data)),
		Width:       info.Width,
		Height:      info.Height,
		IsPublic:    visibility == media.Public,
		CreatedAt:   now,
	}
	id, err := in.writer.CreateMediaFile(ctx, file)
	if err != nil {
		if delErr := in.backend.Delete(ctx, key); delErr != nil {
			logging.Warn("remove unrecorded original", zap.String("key", key), zap.Error(delErr))
		}
		return nil, fmt.Errorf("record media file: %w", err)
	}
	file.ID = id

	logging.Info("original ingested",
		zap.String("media_id", id),
		zap.String("key", key),
		zap.Int("width", file.Width),
		zap.Int("height", file.Height),
	)

	if in.events != nil {
		in.events.Publish(events.Event{
			Type:    events.EventIngested,
			MediaID: id,
			Key:     key,
			Size:    file.Size,
		})
	}
	if in.processor != nil {
		in.processor.Enqueue(id)
	}
	return file, nil
}
