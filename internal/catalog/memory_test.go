package catalog

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/renditions/internal/media"
	"github.com/fruitsalade/renditions/internal/mediaerr"
)

func TestMemoryMediaFiles(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	id, err := c.CreateMediaFile(ctx, &media.MediaFile{UserID: "u1", StorageKey: "media/a/u1/originals/x.jpg"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	fixed, err := c.CreateMediaFile(ctx, &media.MediaFile{ID: "m-fixed", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "m-fixed", fixed)

	got, err := c.GetMediaFile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "u1", got.UserID)
	assert.False(t, got.CreatedAt.IsZero())

	got.UserID = "mutated"
	again, err := c.GetMediaFile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "u1", again.UserID)

	ids, err := c.ListMediaIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{id, "m-fixed"}, ids)

	_, err = c.GetMediaFile(ctx, "missing")
	assert.ErrorIs(t, err, mediaerr.ErrNotFound)
}

func TestMemoryVariantsCreationOrder(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	var ids []string
	for _, kind := range []string{"thumbnail", "small", "medium"} {
		q := 80
		id, err := c.CreateVariant(ctx, &media.Variant{
			MediaID: "m1", Kind: kind, Format: media.JPEG, Quality: &q,
			Available: true, URL: "http://x/should-not-persist",
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	list, err := c.GetVariants(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, v := range list {
		assert.Equal(t, ids[i], v.ID)
		assert.Empty(t, v.URL)
	}

	*list[0].Quality = 1
	list, err = c.GetVariants(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, 80, *list[0].Quality)

	empty, err := c.GetVariants(ctx, "other")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestMemoryMarkUnavailable(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	a, err := c.CreateVariant(ctx, &media.Variant{MediaID: "m1", Kind: "thumbnail", Available: true})
	require.NoError(t, err)
	b, err := c.CreateVariant(ctx, &media.Variant{MediaID: "m1", Kind: "small", Available: true})
	require.NoError(t, err)

	require.NoError(t, c.MarkUnavailable(ctx, a))

	list, err := c.GetVariants(ctx, "m1")
	require.NoError(t, err)
	assert.False(t, list[0].Available)
	assert.True(t, list[1].Available)
	assert.Equal(t, b, list[1].ID)

	assert.ErrorIs(t, c.MarkUnavailable(ctx, "nope"), mediaerr.ErrNotFound)
}

func TestMemoryCreateVariantValidates(t *testing.T) {
	_, err := NewMemory().CreateVariant(context.Background(), &media.Variant{Kind: "thumbnail"})
	assert.ErrorIs(t, err, mediaerr.ErrInvalidArgument)
}

func TestMemoryConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.CreateVariant(ctx, &media.Variant{MediaID: "m1", Kind: fmt.Sprintf("k%d", i), Available: true})
			assert.NoError(t, err)
			_, _ = c.GetVariants(ctx, "m1")
		}(i)
	}
	wg.Wait()

	list, err := c.GetVariants(ctx, "m1")
	require.NoError(t, err)
	assert.Len(t, list, 50)
}
