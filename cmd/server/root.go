package main

import (
	"context"
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/fruitsalade/renditions/internal/config"
	"github.com/fruitsalade/renditions/internal/logging"
)

// cli carries state shared by every subcommand.
type cli struct {
	cfg *config.Config
	out io.Writer
	// newApp is replaced in tests.
	newApp func(ctx context.Context, cfg *config.Config) (*app, error)
}

func newRootCmd() *cobra.Command {
	return (&cli{newApp: newApp}).rootCmd()
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "renditiond",
		Short: "Media variant generation and resolution",
		Long: `renditiond derives resized renditions of uploaded images and keeps the
variant catalog in sync with storage.

Configuration is read from the environment (and a .env file if present).
Without DATABASE_URL the catalog lives in memory for the life of the process.

Example usage:
  renditiond serve                          # eager queue, reconcile sweep, /metrics
  renditiond ingest photo.jpg --user u1     # store an original
  renditiond resolve <media> thumbnail png  # fetch or generate a preset variant
  renditiond custom <media> --width 500 --height 500
  renditiond batch <media>... --kinds thumbnail,small
  renditiond reconcile <media>...`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			c.cfg = cfg
			c.out = cmd.OutOrStdout()
			return logging.Init(logging.Config{
				Level:      cfg.LogLevel,
				Format:     cfg.LogFormat,
				OutputPath: "stderr",
			})
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = logging.Sync()
		},
	}

	root.AddCommand(
		c.serveCmd(),
		c.ingestCmd(),
		c.resolveCmd(),
		c.customCmd(),
		c.batchCmd(),
		c.reconcileCmd(),
	)
	return root
}

// withApp builds the app for one command and closes it afterwards.
func (c *cli) withApp(ctx context.Context, fn func(*app) error) error {
	a, err := c.newApp(ctx, c.cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
