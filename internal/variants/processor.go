package variants

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fruitsalade/renditions/internal/catalog"
	"github.com/fruitsalade/renditions/internal/logging"
	"github.com/fruitsalade/renditions/internal/metrics"
)

// Processor defaults.
const (
	DefaultWorkers   = 2
	DefaultQueueSize = 1000
)

// ProcessorConfig configures the eager generation queue.
type ProcessorConfig struct {
	Workers   int
	QueueSize int
	// Options are applied to every queued media item.
	Options BatchOptions
}

// Processor generates variants for newly ingested media in the background.
type Processor struct {
	coord   *Coordinator
	opts    BatchOptions
	queue   chan string
	wg      sync.WaitGroup
	cancel  context.CancelFunc
	workers int

	mu     sync.RWMutex
	closed bool
}

// NewProcessor creates a processor that runs the batch item path of coord.
func NewProcessor(coord *Coordinator, cfg ProcessorConfig) *Processor {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	return &Processor{
		coord:   coord,
		opts:    cfg.Options,
		queue:   make(chan string, cfg.QueueSize),
		workers: cfg.Workers,
	}
}

// Start launches the worker goroutines.
func (p *Processor) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	logging.Info("variant processor started", zap.Int("workers", p.workers))
}

// Stop signals workers to stop and waits for them to finish. Queued items
// not yet picked up are dropped.
func (p *Processor) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	logging.Info("variant processor stopped")
}

// Enqueue adds a media item to the queue. It never blocks: when the queue is
// full or the processor is stopped the item is dropped and false returned.
func (p *Processor) Enqueue(mediaID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	select {
	case p.queue <- mediaID:
		metrics.SetProcessorQueueDepth(len(p.queue))
		return true
	default:
		metrics.RecordProcessorDrop()
		logging.Warn("variant processor queue full, dropping", zap.String("media_id", mediaID))
		return false
	}
}

// EnqueueExisting queues every media item the lister returns. Items whose
// variants already exist are reused by the batch path, so this is cheap to
// run at startup.
func (p *Processor) EnqueueExisting(ctx context.Context, lister catalog.MediaLister) (int, error) {
	ids, err := lister.ListMediaIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list media: %w", err)
	}
	queued := 0
	for _, id := range ids {
		if p.Enqueue(id) {
			queued++
		}
	}
	if queued > 0 {
		logging.Info("enqueued existing media for eager generation", zap.Int("count", queued))
	}
	return queued, nil
}

// Pending returns the number of queued media items.
func (p *Processor) Pending() int {
	return len(p.queue)
}

func (p *Processor) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case mediaID, ok := <-p.queue:
			if !ok {
				return
			}
			metrics.SetProcessorQueueDepth(len(p.queue))
			p.process(ctx, mediaID)
		}
	}
}

func (p *Processor) process(ctx context.Context, mediaID string) {
	res, err := p.coord.GenerateItem(ctx, mediaID, p.opts)
	if err != nil {
		logging.Warn("eager generation failed", zap.String("media_id", mediaID), zap.Error(err))
		return
	}
	if !res.OK() {
		logging.Warn("eager generation incomplete", zap.String("media_id", mediaID), zap.String("error", res.Error))
		return
	}
	logging.Debug("eager generation done", zap.String("media_id", mediaID), zap.Int("pairs", len(res.Pairs)))
}
