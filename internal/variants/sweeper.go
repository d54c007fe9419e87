package variants

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fruitsalade/renditions/internal/catalog"
	"github.com/fruitsalade/renditions/internal/logging"
)

// SweepStats summarizes one reconciliation sweep.
type SweepStats struct {
	Media   int `json:"media"`
	Checked int `json:"checked"`
	Missing int `json:"missing"`
	Failed  int `json:"failed"`
}

// Sweeper runs the reconciler over every media item on a cron schedule.
type Sweeper struct {
	lister     catalog.MediaLister
	reconciler *Reconciler
	cron       *cron.Cron
	schedule   string

	mu      sync.Mutex
	running bool
}

// NewSweeper validates schedule and returns a sweeper. Schedules accept an
// optional seconds field and descriptors such as "@every 6h". An empty
// schedule yields a sweeper that only runs through RunOnce.
func NewSweeper(lister catalog.MediaLister, reconciler *Reconciler, schedule string) (*Sweeper, error) {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if schedule != "" {
		if _, err := parser.Parse(schedule); err != nil {
			return nil, fmt.Errorf("invalid cron pattern: %w", err)
		}
	}
	return &Sweeper{
		lister:     lister,
		reconciler: reconciler,
		cron:       cron.New(cron.WithParser(parser)),
		schedule:   schedule,
	}, nil
}

// Start registers the sweep and starts the scheduler. Runs that would
// overlap a sweep still in progress are skipped.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.schedule == "" {
		return fmt.Errorf("sweeper has no schedule")
	}
	_, err := s.cron.AddFunc(s.schedule, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			logging.Warn("reconcile sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}
	s.cron.Start()
	logging.Info("reconcile sweeper started", zap.String("schedule", s.schedule))
	return nil
}

// Stop stops the scheduler and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
	logging.Info("reconcile sweeper stopped")
}

// RunOnce reconciles every media item the lister returns.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepStats, error) {
	var stats SweepStats

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return stats, fmt.Errorf("sweep already running")
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ids, err := s.lister.ListMediaIDs(ctx)
	if err != nil {
		return stats, fmt.Errorf("list media: %w", err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		report, err := s.reconciler.ReconcileOrphans(ctx, id)
		if err != nil {
			logging.Warn("reconcile media failed", zap.String("media_id", id), zap.Error(err))
			stats.Failed++
			continue
		}
		stats.Media++
		stats.Checked += len(report.Checked)
		stats.Missing += len(report.Missing)
		stats.Failed += len(report.Failed)
	}

	logging.Info("reconcile sweep complete",
		zap.Int("media", stats.Media),
		zap.Int("checked", stats.Checked),
		zap.Int("missing", stats.Missing),
		zap.Int("failed", stats.Failed),
	)
	return stats, nil
}
