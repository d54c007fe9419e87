package local

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/renditions/internal/mediaerr"
	"github.com/fruitsalade/renditions/internal/storage"
	"github.com/fruitsalade/renditions/internal/storage/storagetest"
)

func newBackend(t *testing.T) *LocalBackend {
	t.Helper()
	b, err := New(Config{RootPath: filepath.Join(t.TempDir(), "store"), CreateDirs: true, BaseURL: "https://cdn.test/media"})
	require.NoError(t, err)
	return b
}

func TestLocalBackendContract(t *testing.T) {
	storagetest.Run(t, newBackend(t), "contract")
}

func TestNewRequiresRoot(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	_, err = New(Config{RootPath: filepath.Join(t.TempDir(), "absent")})
	assert.Error(t, err, "missing root without create_dirs should fail")

	f := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(f, []byte("x"), 0644))
	_, err = New(Config{RootPath: f})
	assert.Error(t, err)
}

func TestNewFromJSON(t *testing.T) {
	raw, _ := json.Marshal(Config{RootPath: t.TempDir()})
	b, err := NewFromJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, "/files/a/b.jpg", b.PublicURL("a/b.jpg"))
	assert.Equal(t, "local", b.Type())

	_, err = NewFromJSON([]byte("{"))
	assert.Error(t, err)
}

func TestSidecarWritten(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	_, err := b.Put(ctx, "thumbnails/u1/m1/thumbnail_150x150.jpg", []byte("abc"), storage.PutOptions{
		ContentType: "image/jpeg",
		Metadata:    map[string]string{storage.MetaVisibility: "private"},
	})
	require.NoError(t, err)

	raw, err := os.ReadFile(filepath.Join(b.Root(), "thumbnails/u1/m1/thumbnail_150x150.jpg"+SidecarSuffix))
	require.NoError(t, err)

	var sc sidecar
	require.NoError(t, json.Unmarshal(raw, &sc))
	assert.Equal(t, "image/jpeg", sc.ContentType)
	assert.Equal(t, int64(3), sc.Size)
	assert.Equal(t, "private", sc.Metadata[storage.MetaVisibility])
	assert.False(t, sc.UploadedAt.IsZero())

	// Deleting the object also removes the sidecar.
	require.NoError(t, b.Delete(ctx, "thumbnails/u1/m1/thumbnail_150x150.jpg"))
	_, err = os.Stat(filepath.Join(b.Root(), "thumbnails/u1/m1/thumbnail_150x150.jpg"+SidecarSuffix))
	assert.True(t, os.IsNotExist(err))
}

func TestStatWithoutSidecar(t *testing.T) {
	b := newBackend(t)
	require.NoError(t, os.WriteFile(filepath.Join(b.Root(), "raw.bin"), []byte("12345"), 0644))

	info, err := b.Stat(context.Background(), "raw.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size)
	assert.Empty(t, info.ContentType)
}

func TestKeyEscapingRootRejected(t *testing.T) {
	b := newBackend(t)
	_, err := b.Get(context.Background(), "../../etc/passwd")
	assert.ErrorIs(t, err, mediaerr.ErrInvalidArgument)

	_, err = b.Put(context.Background(), "..", []byte("x"), storage.PutOptions{})
	assert.ErrorIs(t, err, mediaerr.ErrInvalidArgument)
}

func TestSignedURLIsStable(t *testing.T) {
	b := newBackend(t)
	u, err := b.SignedURL(context.Background(), "k.jpg", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/media/k.jpg", u)
	assert.False(t, b.URLsExpire())
}

func TestReadErrorIsNotNotFound(t *testing.T) {
	b := newBackend(t)
	require.NoError(t, os.MkdirAll(filepath.Join(b.Root(), "dir.jpg"), 0755))

	_, err := b.Get(context.Background(), "dir.jpg")
	require.Error(t, err)
	assert.ErrorIs(t, err, mediaerr.ErrStorageRead)
	assert.False(t, mediaerr.IsNotFound(err))
}
