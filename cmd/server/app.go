package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/fruitsalade/renditions/internal/catalog"
	"github.com/fruitsalade/renditions/internal/catalog/postgres"
	"github.com/fruitsalade/renditions/internal/config"
	"github.com/fruitsalade/renditions/internal/events"
	"github.com/fruitsalade/renditions/internal/logging"
	"github.com/fruitsalade/renditions/internal/media"
	"github.com/fruitsalade/renditions/internal/storage"
	"github.com/fruitsalade/renditions/internal/storage/provider"
	"github.com/fruitsalade/renditions/internal/variants"
)

// app wires the storage provider, the catalog and the variant pipeline.
type app struct {
	cfg        *config.Config
	backend    storage.Backend
	store      catalog.Store
	pg         *postgres.Store
	gen        *variants.Generator
	resolver   *variants.Resolver
	coord      *variants.Coordinator
	reconciler *variants.Reconciler
	processor  *variants.Processor
	ingester   *variants.Ingester
	events     *events.Broadcaster
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	name, raw, err := cfg.StorageBackend()
	if err != nil {
		return nil, err
	}
	backend, err := provider.NewBackendFromConfig(ctx, name, raw)
	if err != nil {
		return nil, fmt.Errorf("storage backend: %w", err)
	}
	logging.Info("storage backend ready", zap.String("backend", backend.Type()))

	a := &app{cfg: cfg, backend: backend, events: events.NewBroadcaster()}

	if cfg.DatabaseURL != "" {
		if err := postgres.Migrate(cfg.DatabaseURL); err != nil {
			backend.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
		pg, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			backend.Close()
			return nil, fmt.Errorf("catalog: %w", err)
		}
		a.pg = pg
		a.store = pg
	} else {
		logging.Warn("DATABASE_URL not set, using in-memory catalog")
		a.store = catalog.NewMemory()
	}

	a.gen = variants.NewGenerator(backend, a.store, media.DefaultPresets(), variants.Config{
		Namespace:    cfg.VariantNamespace,
		SignedURLTTL: cfg.SignedURLTTL,
	}).WithEvents(a.events)
	a.resolver = variants.NewResolver(a.gen)
	a.coord = variants.NewCoordinator(a.gen, variants.CoordinatorConfig{
		GroupSize:  cfg.BatchGroupSize,
		GroupPause: cfg.BatchGroupPause,
	})
	a.reconciler = variants.NewReconciler(backend, a.store).WithEvents(a.events)
	a.processor = variants.NewProcessor(a.coord, variants.ProcessorConfig{
		Workers:   cfg.ProcessorWorkers,
		QueueSize: cfg.ProcessorQueue,
		Options:   variants.BatchOptions{Kinds: cfg.EagerKinds},
	})
	a.ingester = variants.NewIngester(backend, a.store, cfg.AppID).WithEvents(a.events)
	return a, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		logging.Warn("close catalog", zap.Error(err))
	}
	if err := a.backend.Close(); err != nil {
		logging.Warn("close storage backend", zap.Error(err))
	}
}
