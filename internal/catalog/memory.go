package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fruitsalade/renditions/internal/media"
	"github.com/fruitsalade/renditions/internal/mediaerr"
)

// Memory is an in-process Store. Records are copied on the way in and out so
// callers never share state with the store.
type Memory struct {
	mu       sync.RWMutex
	files    map[string]*media.MediaFile
	order    []string
	variants map[string][]*media.Variant
	byID     map[string]*media.Variant
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		files:    make(map[string]*media.MediaFile),
		variants: make(map[string][]*media.Variant),
		byID:     make(map[string]*media.Variant),
	}
}

// CreateMediaFile records a media file.
func (m *Memory) CreateMediaFile(_ context.Context, f *media.MediaFile) (string, error) {
	if f == nil {
		return "", mediaerr.Invalid("media file is required")
	}
	cp := *f
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[cp.ID]; !ok {
		m.order = append(m.order, cp.ID)
	}
	m.files[cp.ID] = &cp
	return cp.ID, nil
}

// GetMediaFile returns a copy of the media file with id.
func (m *Memory) GetMediaFile(_ context.Context, id string) (*media.MediaFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.files[id]
	if !ok {
		return nil, mediaerr.NotFound("media file", id)
	}
	cp := *f
	return &cp, nil
}

// ListMediaIDs returns media IDs in insertion order.
func (m *Memory) ListMediaIDs(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...), nil
}

// GetVariants returns copies of the variants of mediaID in creation order.
func (m *Memory) GetVariants(_ context.Context, mediaID string) ([]*media.Variant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.variants[mediaID]
	out := make([]*media.Variant, len(list))
	for i, v := range list {
		out[i] = copyVariant(v)
	}
	return out, nil
}

// CreateVariant stores a copy of v under a new ID.
func (m *Memory) CreateVariant(_ context.Context, v *media.Variant) (string, error) {
	if v == nil || v.MediaID == "" {
		return "", mediaerr.Invalid("variant with media id is required")
	}
	cp := copyVariant(v)
	cp.ID = uuid.NewString()
	cp.URL, cp.SignedURL = "", ""
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.variants[cp.MediaID] = append(m.variants[cp.MediaID], cp)
	m.byID[cp.ID] = cp
	return cp.ID, nil
}

// MarkUnavailable clears the availability flag of a variant.
func (m *Memory) MarkUnavailable(_ context.Context, variantID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.byID[variantID]
	if !ok {
		return mediaerr.NotFound("variant", variantID)
	}
	v.Available = false
	return nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

func copyVariant(v *media.Variant) *media.Variant {
	cp := *v
	if v.Quality != nil {
		q := *v.Quality
		cp.Quality = &q
	}
	return &cp
}
