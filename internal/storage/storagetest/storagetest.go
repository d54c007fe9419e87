// Package storagetest runs the storage.Backend contract against a provider.
package storagetest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/renditions/internal/mediaerr"
	"github.com/fruitsalade/renditions/internal/storage"
)

// Run exercises every Backend operation. prefix isolates the keys written by
// one run so the suite can target shared buckets.
func Run(t *testing.T, b storage.Backend, prefix string) {
	t.Helper()
	ctx := context.Background()
	key := func(name string) string { return fmt.Sprintf("%s/%s", prefix, name) }

	t.Run("PutGetRoundTrip", func(t *testing.T) {
		data := []byte("\xff\xd8 variant bytes")
		res, err := b.Put(ctx, key("a/b_150x150.jpg"), data, storage.PutOptions{
			ContentType: "image/jpeg",
			Metadata:    map[string]string{storage.MetaMediaID: "m1", storage.MetaKind: "thumbnail"},
		})
		require.NoError(t, err)
		assert.Equal(t, key("a/b_150x150.jpg"), res.Key)
		assert.Equal(t, b.PublicURL(res.Key), res.URL)

		got, err := b.Get(ctx, res.Key)
		require.NoError(t, err)
		assert.Equal(t, data, got)

		info, err := b.Stat(ctx, res.Key)
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), info.Size)
		assert.Equal(t, "image/jpeg", info.ContentType)
		assert.Equal(t, "m1", info.Metadata[storage.MetaMediaID])
		assert.Equal(t, "thumbnail", info.Metadata[storage.MetaKind])
	})

	t.Run("PutOverwrites", func(t *testing.T) {
		k := key("overwrite.png")
		_, err := b.Put(ctx, k, []byte("first"), storage.PutOptions{ContentType: "image/png"})
		require.NoError(t, err)
		_, err = b.Put(ctx, k, []byte("second"), storage.PutOptions{ContentType: "image/png"})
		require.NoError(t, err)

		got, err := b.Get(ctx, k)
		require.NoError(t, err)
		assert.Equal(t, "second", string(got))
	})

	t.Run("GetMissing", func(t *testing.T) {
		_, err := b.Get(ctx, key("missing.jpg"))
		require.Error(t, err)
		assert.ErrorIs(t, err, mediaerr.ErrNotFound)
		assert.NotErrorIs(t, err, mediaerr.ErrStorageRead)

		_, err = b.Stat(ctx, key("missing.jpg"))
		assert.ErrorIs(t, err, mediaerr.ErrNotFound)
	})

	t.Run("ExistsAndDelete", func(t *testing.T) {
		k := key("gone.jpg")
		ok, err := b.Exists(ctx, k)
		require.NoError(t, err)
		assert.False(t, ok)

		_, err = b.Put(ctx, k, []byte("x"), storage.PutOptions{ContentType: "image/jpeg"})
		require.NoError(t, err)
		ok, err = b.Exists(ctx, k)
		require.NoError(t, err)
		assert.True(t, ok)

		require.NoError(t, b.Delete(ctx, k))
		ok, err = b.Exists(ctx, k)
		require.NoError(t, err)
		assert.False(t, ok)

		// Deleting an absent key is a no-op.
		assert.NoError(t, b.Delete(ctx, k))
	})

	t.Run("URLs", func(t *testing.T) {
		k := key("url.jpg")
		assert.Equal(t, b.PublicURL(k), b.PublicURL(k))
		assert.Contains(t, b.PublicURL(k), k)

		u, err := b.SignedURL(ctx, k, 5*time.Minute)
		require.NoError(t, err)
		assert.NotEmpty(t, u)
		if !b.URLsExpire() {
			assert.Equal(t, b.PublicURL(k), u)
		}
	})
}
