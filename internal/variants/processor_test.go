package variants

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessorGeneratesEagerKinds(t *testing.T) {
	h := newHarness(t)
	file := h.seed(t, 200, 150, true)

	p := NewProcessor(NewCoordinator(h.gen, CoordinatorConfig{}), ProcessorConfig{
		Workers: 2,
		Options: BatchOptions{Kinds: []string{"thumbnail", "small"}},
	})
	p.Start(context.Background())
	defer p.Stop()

	require.True(t, p.Enqueue(file.ID))
	require.Eventually(t, func() bool {
		return len(h.variants(t, file.ID)) == 2
	}, 5*time.Second, 10*time.Millisecond)
}

func TestProcessorDropsWhenFull(t *testing.T) {
	h := newHarness(t)
	p := NewProcessor(NewCoordinator(h.gen, CoordinatorConfig{}), ProcessorConfig{QueueSize: 1})

	// Not started: nothing drains the queue.
	assert.True(t, p.Enqueue("a"))
	assert.False(t, p.Enqueue("b"))
	assert.Equal(t, 1, p.Pending())

	p.Stop()
	assert.False(t, p.Enqueue("c"))
	p.Stop()
}

func TestProcessorEnqueueExisting(t *testing.T) {
	h := newHarness(t)
	a := h.seed(t, 64, 64, true)
	b := h.seed(t, 64, 64, true)

	p := NewProcessor(NewCoordinator(h.gen, CoordinatorConfig{}), ProcessorConfig{
		Options: BatchOptions{Kinds: []string{"thumbnail"}},
	})
	n, err := p.EnqueueExisting(context.Background(), h.catalog)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	p.Start(context.Background())
	defer p.Stop()
	require.Eventually(t, func() bool {
		return len(h.variants(t, a.ID)) == 1 && len(h.variants(t, b.ID)) == 1
	}, 5*time.Second, 10*time.Millisecond)
}
