package variants

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fruitsalade/renditions/internal/logging"
	"github.com/fruitsalade/renditions/internal/media"
	"github.com/fruitsalade/renditions/internal/mediaerr"
	"github.com/fruitsalade/renditions/internal/metrics"
	"github.com/fruitsalade/renditions/internal/transform"
)

// Batch defaults.
const (
	DefaultGroupSize  = 5
	DefaultGroupPause = 100 * time.Millisecond
)

// BatchOptions selects the variants a batch produces for every media item.
type BatchOptions struct {
	// Kinds defaults to every preset in the table.
	Kinds []string
	// Formats defaults to jpeg.
	Formats []media.Format
	Quality int
	// Force regenerates pairs that already have an available variant. A
	// forced pair that joins a generation already in flight for the same
	// variant takes that generation's result.
	Force bool
}

// PairResult is the outcome of one (kind, format) pair of a media item.
type PairResult struct {
	Kind      string       `json:"kind"`
	Format    media.Format `json:"format"`
	VariantID string       `json:"variant_id,omitempty"`
	Reused    bool         `json:"reused,omitempty"`
	Err       error        `json:"-"`
	Error     string       `json:"error,omitempty"`
}

// ItemResult is the outcome of one media item.
type ItemResult struct {
	MediaID string       `json:"media_id"`
	Pairs   []PairResult `json:"pairs,omitempty"`
	Err     error        `json:"-"`
	Error   string       `json:"error,omitempty"`
}

// OK reports whether the item and all of its pairs succeeded.
func (r *ItemResult) OK() bool {
	if r.Err != nil {
		return false
	}
	for _, p := range r.Pairs {
		if p.Err != nil {
			return false
		}
	}
	return true
}

func (r *ItemResult) fail(err error) {
	r.Err = err
	r.Error = err.Error()
}

// BatchReport aggregates a batch run. Items follow input order.
type BatchReport struct {
	Total     int          `json:"total"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Items     []ItemResult `json:"items"`
}

// CoordinatorConfig tunes batch concurrency.
type CoordinatorConfig struct {
	GroupSize  int
	GroupPause time.Duration
}

// Coordinator generates variants for many media items in sequential groups
// of concurrent items.
type Coordinator struct {
	gen   *Generator
	size  int
	pause time.Duration
}

// NewCoordinator creates a coordinator on top of gen.
func NewCoordinator(gen *Generator, cfg CoordinatorConfig) *Coordinator {
	if cfg.GroupSize <= 0 {
		cfg.GroupSize = DefaultGroupSize
	}
	if cfg.GroupPause < 0 {
		cfg.GroupPause = 0
	}
	return &Coordinator{gen: gen, size: cfg.GroupSize, pause: cfg.GroupPause}
}

type pair struct {
	kind   string
	format media.Format
	box    media.Box
}

func (c *Coordinator) pairs(opts BatchOptions) ([]pair, error) {
	kinds := opts.Kinds
	if len(kinds) == 0 {
		kinds = c.gen.presets.Names()
	}
	formats := opts.Formats
	if len(formats) == 0 {
		formats = []media.Format{media.JPEG}
	}

	out := make([]pair, 0, len(kinds)*len(formats))
	for _, kind := range kinds {
		box, err := c.gen.presets.Lookup(kind)
		if err != nil {
			return nil, err
		}
		for _, f := range formats {
			if err := f.Validate(); err != nil {
				return nil, err
			}
			out = append(out, pair{kind: kind, format: f, box: box})
		}
	}
	return out, nil
}

// BatchGenerate produces every requested (kind, format) pair for mediaIDs.
// Per-item and per-pair failures are recorded in the report. The returned
// error is non-nil only for invalid options or a catalog failure; the report
// then holds the items processed so far.
func (c *Coordinator) BatchGenerate(ctx context.Context, mediaIDs []string, opts BatchOptions) (*BatchReport, error) {
	start := time.Now()
	pairs, err := c.pairs(opts)
	if err != nil {
		return nil, err
	}

	report := &BatchReport{Total: len(mediaIDs)}
	results := make([]ItemResult, len(mediaIDs))
	done := 0

	for lo := 0; lo < len(mediaIDs); lo += c.size {
		if err := ctx.Err(); err != nil {
			return c.finish(report, results[:done], start), err
		}
		if lo > 0 && c.pause > 0 {
			select {
			case <-ctx.Done():
				return c.finish(report, results[:done], start), ctx.Err()
			case <-time.After(c.pause):
			}
		}

		hi := min(lo+c.size, len(mediaIDs))
		var g errgroup.Group
		for i := lo; i < hi; i++ {
			g.Go(func() error {
				res, err := c.processItem(ctx, mediaIDs[i], pairs, opts)
				if err != nil {
					res.fail(err)
				}
				results[i] = res
				return err
			})
		}
		err := g.Wait()
		done = hi
		if err != nil {
			logging.Error("batch aborted", zap.Int("processed", done), zap.Int("total", len(mediaIDs)), zap.Error(err))
			return c.finish(report, results[:done], start), err
		}
	}

	report = c.finish(report, results, start)
	logging.Info("batch complete",
		zap.Int("total", report.Total),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Duration("duration", time.Since(start)),
	)
	return report, nil
}

func (c *Coordinator) finish(report *BatchReport, items []ItemResult, start time.Time) *BatchReport {
	report.Items = items
	report.Succeeded, report.Failed = 0, 0
	for i := range items {
		if items[i].OK() {
			report.Succeeded++
		} else {
			report.Failed++
		}
	}
	metrics.RecordBatch(report.Succeeded, report.Failed, time.Since(start))
	return report
}

// GenerateItem runs the batch path for a single media item.
func (c *Coordinator) GenerateItem(ctx context.Context, mediaID string, opts BatchOptions) (ItemResult, error) {
	pairs, err := c.pairs(opts)
	if err != nil {
		return ItemResult{MediaID: mediaID}, err
	}
	return c.processItem(ctx, mediaID, pairs, opts)
}

// processItem returns an error only for catalog failures that should abort
// the batch. Everything else is recorded on the result.
func (c *Coordinator) processItem(ctx context.Context, mediaID string, pairs []pair, opts BatchOptions) (ItemResult, error) {
	res := ItemResult{MediaID: mediaID}

	file, err := c.gen.catalog.GetMediaFile(ctx, mediaID)
	if err != nil {
		if mediaerr.IsNotFound(err) {
			res.fail(err)
			logging.Warn("batch item skipped", zap.String("media_id", mediaID), zap.Error(err))
			return res, nil
		}
		return res, fmt.Errorf("load media %s: %w", mediaID, err)
	}

	existing, err := c.gen.catalog.GetVariants(ctx, mediaID)
	if err != nil {
		return res, fmt.Errorf("list variants of %s: %w", mediaID, err)
	}

	var todo []int
	res.Pairs = make([]PairResult, len(pairs))
	for i, p := range pairs {
		res.Pairs[i] = PairResult{Kind: p.kind, Format: p.format}
		if !opts.Force {
			if v := firstMatch(existing, p.kind, p.format); v != nil {
				res.Pairs[i].VariantID = v.ID
				res.Pairs[i].Reused = true
				continue
			}
		}
		todo = append(todo, i)
	}
	if len(todo) == 0 {
		return res, nil
	}

	original, err := c.gen.backend.Get(ctx, file.StorageKey)
	if err != nil {
		res.fail(fmt.Errorf("original of media %s: %w", mediaID, err))
		logging.Warn("batch item failed", zap.String("media_id", mediaID), zap.Error(res.Err))
		return res, nil
	}
	src, err := transform.Decode(original)
	if err != nil {
		res.fail(&GenerationError{MediaID: mediaID, Err: err})
		logging.Warn("batch item failed", zap.String("media_id", mediaID), zap.Error(res.Err))
		return res, nil
	}

	for _, i := range todo {
		p := pairs[i]
		reused := false
		v, _, err := c.gen.once(ctx, presetFlight(mediaID, p.kind, p.format), func(ctx context.Context) (*media.Variant, error) {
			if !opts.Force {
				list, err := c.gen.catalog.GetVariants(ctx, mediaID)
				if err != nil {
					return nil, fmt.Errorf("list variants of %s: %w", mediaID, err)
				}
				if v := firstMatch(list, p.kind, p.format); v != nil {
					reused = true
					return v, nil
				}
			}
			return c.gen.Generate(ctx, file, src, Request{
				Kind:    p.kind,
				Format:  p.format,
				Box:     p.box,
				Quality: opts.Quality,
			})
		})
		if err != nil {
			res.Pairs[i].Err = err
			res.Pairs[i].Error = err.Error()
			logging.Warn("batch pair failed",
				zap.String("media_id", mediaID),
				zap.String("kind", p.kind),
				zap.String("format", string(p.format)),
				zap.Error(err),
			)
			continue
		}
		res.Pairs[i].VariantID = v.ID
		res.Pairs[i].Reused = reused
	}
	return res, nil
}

func firstMatch(list []*media.Variant, kind string, format media.Format) *media.Variant {
	for _, v := range list {
		if v.Matches(kind, format) {
			return v
		}
	}
	return nil
}
