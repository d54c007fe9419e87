package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/renditions/internal/config"
	"github.com/fruitsalade/renditions/internal/media"
	"github.com/fruitsalade/renditions/internal/mediaerr"
	"github.com/fruitsalade/renditions/internal/variants"
)

// testCLI shares one app across commands so the in-memory catalog persists
// between invocations.
type testCLI struct {
	t   *testing.T
	app *app
}

func newTestCLI(t *testing.T) *testCLI {
	t.Helper()
	t.Chdir(t.TempDir())
	t.Setenv("STORAGE_PROVIDER", "local")
	t.Setenv("LOCAL_STORAGE_PATH", t.TempDir())
	t.Setenv("DATABASE_URL", "")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv("BATCH_GROUP_PAUSE", "0s")
	return &testCLI{t: t}
}

func (tc *testCLI) run(args ...string) ([]byte, error) {
	var out bytes.Buffer
	c := &cli{newApp: func(ctx context.Context, cfg *config.Config) (*app, error) {
		if tc.app == nil {
			a, err := newApp(ctx, cfg)
			if err != nil {
				return nil, err
			}
			tc.app = a
		}
		return tc.app, nil
	}}
	root := c.rootCmd()
	root.SetOut(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.Bytes(), err
}

func writeJPEG(t *testing.T, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h)), nil))
	path := filepath.Join(t.TempDir(), "cat photo.jpg")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestIngestResolveCustomReconcile(t *testing.T) {
	tc := newTestCLI(t)

	out, err := tc.run("ingest", writeJPEG(t, 640, 480), "--user", "u1", "--visibility", "public", "--generate")
	require.NoError(t, err)
	var ingested struct {
		Media media.MediaFile     `json:"media"`
		Eager variants.ItemResult `json:"eager"`
	}
	require.NoError(t, json.Unmarshal(out, &ingested))
	mediaID := ingested.Media.ID
	require.NotEmpty(t, mediaID)
	assert.Equal(t, 640, ingested.Media.Width)
	assert.Len(t, ingested.Eager.Pairs, 2)

	out, err = tc.run("resolve", mediaID, "thumbnail")
	require.NoError(t, err)
	var thumb media.Variant
	require.NoError(t, json.Unmarshal(out, &thumb))
	assert.Equal(t, ingested.Eager.Pairs[0].VariantID, thumb.ID)
	assert.Equal(t, 150, thumb.Width)

	out, err = tc.run("custom", mediaID, "--width", "300", "--height", "300", "--format", "png")
	require.NoError(t, err)
	var custom media.Variant
	require.NoError(t, json.Unmarshal(out, &custom))
	assert.Equal(t, media.KindCustom, custom.Kind)
	assert.Equal(t, media.PNG, custom.Format)

	out, err = tc.run("custom", mediaID, "--width", "300", "--height", "300", "--format", "png")
	require.NoError(t, err)
	var again media.Variant
	require.NoError(t, json.Unmarshal(out, &again))
	assert.Equal(t, custom.ID, again.ID)

	require.NoError(t, tc.app.backend.Delete(context.Background(), custom.StorageKey))
	out, err = tc.run("reconcile", mediaID)
	require.NoError(t, err)
	var reports []variants.ReconcileReport
	require.NoError(t, json.Unmarshal(out, &reports))
	require.Len(t, reports, 1)
	assert.Equal(t, []string{custom.ID}, reports[0].Missing)

	out, err = tc.run("reconcile")
	require.NoError(t, err)
	var stats variants.SweepStats
	require.NoError(t, json.Unmarshal(out, &stats))
	assert.Equal(t, 1, stats.Media)
	assert.Zero(t, stats.Missing)
}

func TestBatchCommandReportsFailures(t *testing.T) {
	tc := newTestCLI(t)

	out, err := tc.run("ingest", writeJPEG(t, 100, 100), "--user", "u1")
	require.NoError(t, err)
	var ingested struct {
		Media media.MediaFile `json:"media"`
	}
	require.NoError(t, json.Unmarshal(out, &ingested))

	out, err = tc.run("batch", ingested.Media.ID, "missing", "--kinds", "thumbnail,small", "--formats", "jpeg,png")
	require.NoError(t, err)
	var report variants.BatchReport
	require.NoError(t, json.Unmarshal(out, &report))
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Len(t, report.Items[0].Pairs, 4)
	assert.NotEmpty(t, report.Items[1].Error)
}

func TestCommandErrors(t *testing.T) {
	tc := newTestCLI(t)

	_, err := tc.run("resolve", "missing", "thumbnail")
	assert.ErrorIs(t, err, mediaerr.ErrNotFound)

	_, err = tc.run("resolve", "missing", "thumbnail", "gif")
	assert.ErrorIs(t, err, mediaerr.ErrInvalidArgument)

	_, err = tc.run("custom", "missing", "--width", "100")
	assert.ErrorIs(t, err, mediaerr.ErrInvalidArgument)

	_, err = tc.run("ingest", writeJPEG(t, 10, 10))
	assert.Error(t, err)

	_, err = tc.run("ingest", writeJPEG(t, 10, 10), "--user", "u1", "--visibility", "group")
	assert.ErrorIs(t, err, mediaerr.ErrInvalidArgument)
}

func TestInvalidConfigFailsBeforeRunning(t *testing.T) {
	tc := newTestCLI(t)
	t.Setenv("STORAGE_PROVIDER", "ftp")

	_, err := tc.run("reconcile")
	assert.ErrorContains(t, err, "STORAGE_PROVIDER")
	assert.Nil(t, tc.app)
}
