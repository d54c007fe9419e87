package variants

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fruitsalade/renditions/internal/catalog"
	"github.com/fruitsalade/renditions/internal/events"
	"github.com/fruitsalade/renditions/internal/logging"
	"github.com/fruitsalade/renditions/internal/metrics"
	"github.com/fruitsalade/renditions/internal/storage"
)

// ReconcileReport lists the variant IDs a reconciliation touched.
type ReconcileReport struct {
	MediaID string   `json:"media_id"`
	Checked []string `json:"checked"`
	Missing []string `json:"missing"`
	Failed  []string `json:"failed"`
}

// Reconciler flags catalog variants whose stored object has disappeared.
// It never deletes catalog rows and never regenerates.
type Reconciler struct {
	backend storage.Backend
	catalog catalog.Catalog
	events  events.Publisher
}

// NewReconciler creates a reconciler.
func NewReconciler(backend storage.Backend, cat catalog.Catalog) *Reconciler {
	return &Reconciler{backend: backend, catalog: cat}
}

// WithEvents attaches a publisher that receives a variant.missing event for
// every variant marked unavailable.
func (r *Reconciler) WithEvents(p events.Publisher) *Reconciler {
	r.events = p
	return r
}

// ReconcileOrphans checks every available variant of mediaID and marks the
// ones without a backing object unavailable. A failed check is logged and
// recorded and does not stop the others.
func (r *Reconciler) ReconcileOrphans(ctx context.Context, mediaID string) (*ReconcileReport, error) {
	list, err := r.catalog.GetVariants(ctx, mediaID)
	if err != nil {
		return nil, fmt.Errorf("list variants of %s: %w", mediaID, err)
	}

	report := &ReconcileReport{
		MediaID: mediaID,
		Checked: []string{},
		Missing: []string{},
		Failed:  []string{},
	}
	for _, v := range list {
		if !v.Available {
			continue
		}
		report.Checked = append(report.Checked, v.ID)

		ok, err := r.backend.Exists(ctx, v.StorageKey)
		if err != nil {
			metrics.RecordReconcileCheck("error")
			logging.Warn("reconcile check failed",
				zap.String("media_id", mediaID),
				zap.String("variant_id", v.ID),
				zap.String("key", v.StorageKey),
				zap.Error(err),
			)
			report.Failed = append(report.Failed, v.ID)
			continue
		}
		if ok {
			metrics.RecordReconcileCheck("present")
			continue
		}

		metrics.RecordReconcileCheck("missing")
		if err := r.catalog.MarkUnavailable(ctx, v.ID); err != nil {
			logging.Warn("mark unavailable failed",
				zap.String("media_id", mediaID),
				zap.String("variant_id", v.ID),
				zap.Error(err),
			)
			report.Failed = append(report.Failed, v.ID)
			continue
		}
		logging.Info("variant marked unavailable",
			zap.String("media_id", mediaID),
			zap.String("variant_id", v.ID),
			zap.String("key", v.StorageKey),
		)
		report.Missing = append(report.Missing, v.ID)
		if r.events != nil {
			r.events.Publish(events.Event{
				Type:      events.EventVariantMissing,
				MediaID:   mediaID,
				VariantID: v.ID,
				Kind:      v.Kind,
				Format:    string(v.Format),
				Key:       v.StorageKey,
			})
		}
	}
	return report, nil
}
