package variants

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/renditions/internal/catalog"
	"github.com/fruitsalade/renditions/internal/keys"
	"github.com/fruitsalade/renditions/internal/media"
	"github.com/fruitsalade/renditions/internal/mediaerr"
	"github.com/fruitsalade/renditions/internal/storage"
	"github.com/fruitsalade/renditions/internal/storage/local"
)

type harness struct {
	backend storage.Backend
	catalog *catalog.Memory
	gen     *Generator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, nil, nil)
}

// newHarnessWith lets a test wrap the backend or the catalog.
func newHarnessWith(t *testing.T, wrapBackend func(storage.Backend) storage.Backend, wrapCatalog func(catalog.Catalog) catalog.Catalog) *harness {
	t.Helper()
	b, err := local.New(local.Config{RootPath: t.TempDir(), CreateDirs: true, BaseURL: "https://cdn.test/files"})
	require.NoError(t, err)

	var backend storage.Backend = b
	if wrapBackend != nil {
		backend = wrapBackend(b)
	}
	mem := catalog.NewMemory()
	var cat catalog.Catalog = mem
	if wrapCatalog != nil {
		cat = wrapCatalog(mem)
	}
	return &harness{
		backend: backend,
		catalog: mem,
		gen:     NewGenerator(backend, cat, media.DefaultPresets(), Config{}),
	}
}

func jpegFixture(t testing.TB, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}))
	return buf.Bytes()
}

// seed stores an original of w x h and records its media file.
func (h *harness) seed(t *testing.T, w, ht int, public bool) *media.MediaFile {
	t.Helper()
	ctx := context.Background()
	key := keys.Original("test", "u1", "photo.jpg", time.Now())
	_, err := h.backend.Put(ctx, key, jpegFixture(t, w, ht), storage.PutOptions{ContentType: "image/jpeg"})
	require.NoError(t, err)

	f := &media.MediaFile{UserID: "u1", StorageKey: key, Width: w, Height: ht, IsPublic: public}
	id, err := h.catalog.CreateMediaFile(ctx, f)
	require.NoError(t, err)
	f.ID = id
	return f
}

func (h *harness) variants(t *testing.T, mediaID string) []*media.Variant {
	t.Helper()
	list, err := h.catalog.GetVariants(context.Background(), mediaID)
	require.NoError(t, err)
	return list
}

var errInjected = errors.New("injected failure")

// faultyBackend fails Put or Exists for keys containing a marker.
type faultyBackend struct {
	storage.Backend
	failPut    string
	failExists string
}

func (b *faultyBackend) Put(ctx context.Context, key string, data []byte, opts storage.PutOptions) (*storage.PutResult, error) {
	if b.failPut != "" && strings.Contains(key, b.failPut) {
		return nil, mediaerr.WriteError("put", key, errInjected)
	}
	return b.Backend.Put(ctx, key, data, opts)
}

func (b *faultyBackend) Exists(ctx context.Context, key string) (bool, error) {
	if b.failExists != "" && strings.Contains(key, b.failExists) {
		return false, errInjected
	}
	return b.Backend.Exists(ctx, key)
}

// countingBackend counts concurrent Get calls.
type countingBackend struct {
	storage.Backend
	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	gets     atomic.Int32
}

func (b *countingBackend) Get(ctx context.Context, key string) ([]byte, error) {
	n := b.inFlight.Add(1)
	defer b.inFlight.Add(-1)
	for {
		m := b.maxSeen.Load()
		if n <= m || b.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	b.gets.Add(1)
	time.Sleep(b.delay)
	return b.Backend.Get(ctx, key)
}

// brokenCatalog fails GetMediaFile for one ID with a non-not-found error.
type brokenCatalog struct {
	catalog.Catalog
	mu     sync.Mutex
	failID string
}

func (c *brokenCatalog) GetMediaFile(ctx context.Context, id string) (*media.MediaFile, error) {
	c.mu.Lock()
	fail := id == c.failID
	c.mu.Unlock()
	if fail {
		return nil, errors.New("connection reset by peer")
	}
	return c.Catalog.GetMediaFile(ctx, id)
}
