package variants

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSweeperValidatesSchedule(t *testing.T) {
	h := newHarness(t)
	r := NewReconciler(h.backend, h.catalog)

	for _, spec := range []string{"@every 6h", "0 */5 * * * *", "*/10 * * * *", "@daily"} {
		_, err := NewSweeper(h.catalog, r, spec)
		assert.NoError(t, err, spec)
	}
	_, err := NewSweeper(h.catalog, r, "every six hours")
	assert.Error(t, err)

	manual, err := NewSweeper(h.catalog, r, "")
	require.NoError(t, err)
	assert.Error(t, manual.Start(context.Background()))
}

func TestSweeperRunOnce(t *testing.T) {
	h := newHarness(t)
	a := h.seed(t, 200, 200, true)
	b := h.seed(t, 200, 200, true)
	generateAll(t, h, a.ID, "thumbnail", "small")
	generateAll(t, h, b.ID, "thumbnail")

	list := h.variants(t, a.ID)
	require.NoError(t, h.backend.Delete(context.Background(), list[0].StorageKey))

	s, err := NewSweeper(h.catalog, NewReconciler(h.backend, h.catalog), "@every 1h")
	require.NoError(t, err)

	stats, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SweepStats{Media: 2, Checked: 3, Missing: 1}, stats)
	assert.False(t, h.variants(t, a.ID)[0].Available)
}

func TestSweeperStartStop(t *testing.T) {
	h := newHarness(t)
	s, err := NewSweeper(h.catalog, NewReconciler(h.backend, h.catalog), "@every 1h")
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
}
