package variants

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/renditions/internal/events"
	"github.com/fruitsalade/renditions/internal/storage"
)

type recorder struct {
	mu  sync.Mutex
	got []events.Event
}

func (r *recorder) Publish(e events.Event) {
	r.mu.Lock()
	r.got = append(r.got, e)
	r.mu.Unlock()
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.got))
	for _, e := range r.got {
		out = append(out, e.Type)
	}
	return out
}

func TestPipelinePublishesEvents(t *testing.T) {
	h := newHarness(t)
	rec := &recorder{}
	h.gen.WithEvents(rec)

	in := NewIngester(h.backend, h.catalog, "").WithEvents(rec)
	file, err := in.Ingest(context.Background(), IngestRequest{
		UserID:   "u1",
		FileName: "a.jpg",
		Data:     jpegFixture(t, 300, 200),
	})
	require.NoError(t, err)

	v, err := NewResolver(h.gen).Resolve(context.Background(), file.ID, "thumbnail", "")
	require.NoError(t, err)
	require.NoError(t, h.backend.Delete(context.Background(), v.StorageKey))

	report, err := NewReconciler(h.backend, h.catalog).WithEvents(rec).ReconcileOrphans(context.Background(), file.ID)
	require.NoError(t, err)
	require.Equal(t, []string{v.ID}, report.Missing)

	assert.Equal(t, []string{events.EventIngested, events.EventVariantCreated, events.EventVariantMissing}, rec.types())

	created := rec.got[1]
	assert.Equal(t, file.ID, created.MediaID)
	assert.Equal(t, v.ID, created.VariantID)
	assert.Equal(t, "thumbnail", created.Kind)
	assert.Equal(t, "jpeg", created.Format)
	assert.Equal(t, v.StorageKey, created.Key)
	assert.Equal(t, v.Size, created.Size)

	missing := rec.got[2]
	assert.Equal(t, v.ID, missing.VariantID)
	assert.Equal(t, v.StorageKey, missing.Key)
}

func TestFailedGenerationPublishesNothing(t *testing.T) {
	h := newHarnessWith(t, func(b storage.Backend) storage.Backend {
		return &faultyBackend{Backend: b, failPut: "thumbnail_"}
	}, nil)
	b := events.NewBroadcaster()
	ch := b.Subscribe()
	defer b.Unsubscribe(ch)
	h.gen.WithEvents(b)

	file := h.seed(t, 300, 200, false)
	_, err := NewResolver(h.gen).Resolve(context.Background(), file.ID, "thumbnail", "jpeg")
	require.Error(t, err)
	assert.Empty(t, ch)
}
