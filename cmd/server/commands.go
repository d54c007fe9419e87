package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fruitsalade/renditions/internal/events"
	"github.com/fruitsalade/renditions/internal/logging"
	"github.com/fruitsalade/renditions/internal/media"
	"github.com/fruitsalade/renditions/internal/metrics"
	"github.com/fruitsalade/renditions/internal/variants"
)

func (c *cli) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the eager generation queue, the reconcile sweep and the metrics listener",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return c.withApp(ctx, func(a *app) error { return c.serve(ctx, a) })
		},
	}
}

func (c *cli) serve(ctx context.Context, a *app) error {
	logging.Info("renditiond starting", zap.String("metrics", c.cfg.MetricsAddr))

	feed := a.events.Subscribe()
	defer a.events.Unsubscribe(feed)
	go logEvents(feed)

	a.processor.Start(ctx)
	defer a.processor.Stop()
	if _, err := a.processor.EnqueueExisting(ctx, a.store); err != nil {
		logging.Warn("enqueue existing media failed", zap.Error(err))
	}

	if c.cfg.ReconcileSchedule != "" {
		sweeper, err := variants.NewSweeper(a.store, a.reconciler, c.cfg.ReconcileSchedule)
		if err != nil {
			return err
		}
		if err := sweeper.Start(ctx); err != nil {
			return err
		}
		defer sweeper.Stop()
	}

	metricsServer := &http.Server{
		Addr:              c.cfg.MetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logging.Info("metrics server listening", zap.String("addr", c.cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("metrics server error", zap.Error(err))
		}
	}()

	// Periodic connection metrics
	if a.pg != nil {
		go func() {
			ticker := time.NewTicker(15 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					a.pg.UpdateConnectionMetrics()
				}
			}
		}()
	}

	<-ctx.Done()
	logging.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logging.Warn("metrics server shutdown", zap.Error(err))
	}
	return nil
}

// logEvents logs pipeline events until ch is closed.
func logEvents(ch <-chan events.Event) {
	for e := range ch {
		logging.Info("pipeline event",
			zap.String("type", e.Type),
			zap.String("media_id", e.MediaID),
			zap.String("variant_id", e.VariantID),
			zap.String("key", e.Key),
		)
	}
}

func (c *cli) ingestCmd() *cobra.Command {
	var (
		userID     string
		appID      string
		visibility string
		generate   bool
	)
	cmd := &cobra.Command{
		Use:   "ingest <file>",
		Short: "Store an original and record it in the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vis, err := media.ParseVisibility(visibility)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read %s: %w", args[0], err)
			}
			return c.withApp(cmd.Context(), func(a *app) error {
				file, err := a.ingester.Ingest(cmd.Context(), variants.IngestRequest{
					AppID:      appID,
					UserID:     userID,
					FileName:   filepath.Base(args[0]),
					Data:       data,
					Visibility: vis,
				})
				if err != nil {
					return err
				}
				out := struct {
					Media *media.MediaFile     `json:"media"`
					Eager *variants.ItemResult `json:"eager,omitempty"`
				}{Media: file}
				if generate {
					res, err := a.coord.GenerateItem(cmd.Context(), file.ID, variants.BatchOptions{Kinds: c.cfg.EagerKinds})
					if err != nil {
						return err
					}
					out.Eager = &res
				}
				return c.printJSON(out)
			})
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "owning user ID (required)")
	cmd.Flags().StringVar(&appID, "app", "", "app ID segment of the key (default APP_ID)")
	cmd.Flags().StringVar(&visibility, "visibility", "private", "public or private")
	cmd.Flags().BoolVar(&generate, "generate", false, "generate EAGER_KINDS variants before returning")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func (c *cli) resolveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <media> <kind> [format]",
		Short: "Return a preset variant, generating it on a catalog miss",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			format := media.JPEG
			if len(args) == 3 {
				f, err := media.ParseFormat(args[2])
				if err != nil {
					return err
				}
				format = f
			}
			return c.withApp(cmd.Context(), func(a *app) error {
				v, err := a.resolver.Resolve(cmd.Context(), args[0], args[1], format)
				if err != nil {
					return err
				}
				return c.printJSON(v)
			})
		},
	}
}

func (c *cli) customCmd() *cobra.Command {
	var (
		req    variants.CustomRequest
		fit    string
		format string
	)
	cmd := &cobra.Command{
		Use:   "custom <media>",
		Short: "Return a custom-size variant, reusing an identical earlier request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "" {
				f, err := media.ParseFormat(format)
				if err != nil {
					return err
				}
				req.Format = f
			}
			req.Fit = media.FitMode(fit)
			return c.withApp(cmd.Context(), func(a *app) error {
				v, err := a.resolver.ResolveCustom(cmd.Context(), args[0], req)
				if err != nil {
					return err
				}
				return c.printJSON(v)
			})
		},
	}
	cmd.Flags().IntVar(&req.Width, "width", 0, "target width (required)")
	cmd.Flags().IntVar(&req.Height, "height", 0, "target height (required)")
	cmd.Flags().StringVar(&fit, "fit", "cover", "cover or inside")
	cmd.Flags().StringVar(&format, "format", "jpeg", "jpeg or png")
	cmd.Flags().IntVar(&req.Quality, "quality", media.DefaultQuality, "encode quality for lossy formats (1-100)")
	return cmd
}

func (c *cli) batchCmd() *cobra.Command {
	var (
		kinds   []string
		formats []string
		quality int
		force   bool
	)
	cmd := &cobra.Command{
		Use:   "batch <media>...",
		Short: "Generate variants for many media items",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := variants.BatchOptions{Kinds: kinds, Quality: quality, Force: force}
			for _, s := range formats {
				f, err := media.ParseFormat(s)
				if err != nil {
					return err
				}
				opts.Formats = append(opts.Formats, f)
			}
			return c.withApp(cmd.Context(), func(a *app) error {
				report, err := a.coord.BatchGenerate(cmd.Context(), args, opts)
				if report != nil {
					if perr := c.printJSON(report); perr != nil && err == nil {
						err = perr
					}
				}
				return err
			})
		},
	}
	cmd.Flags().StringSliceVar(&kinds, "kinds", nil, "preset kinds (default all)")
	cmd.Flags().StringSliceVar(&formats, "formats", nil, "output formats (default jpeg)")
	cmd.Flags().IntVar(&quality, "quality", media.DefaultQuality, "encode quality for lossy formats (1-100)")
	cmd.Flags().BoolVar(&force, "force", false, "regenerate variants that already exist")
	return cmd
}

func (c *cli) reconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile [media]...",
		Short: "Mark variants whose stored object is missing as unavailable",
		Long:  "Reconcile the given media items, or sweep the whole catalog when none are given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.withApp(cmd.Context(), func(a *app) error {
				if len(args) == 0 {
					sweeper, err := variants.NewSweeper(a.store, a.reconciler, "")
					if err != nil {
						return err
					}
					stats, err := sweeper.RunOnce(cmd.Context())
					if err != nil {
						return err
					}
					return c.printJSON(stats)
				}

				reports := make([]*variants.ReconcileReport, 0, len(args))
				for _, id := range args {
					r, err := a.reconciler.ReconcileOrphans(cmd.Context(), id)
					if err != nil {
						return err
					}
					reports = append(reports, r)
				}
				return c.printJSON(reports)
			})
		},
	}
}
