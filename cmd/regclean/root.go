// Package main implements regclean, which cancels or purges TinyHIS
// registrations.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tinyhis/regops/internal/cleanup"
	"github.com/tinyhis/regops/internal/client"
	"github.com/tinyhis/regops/internal/config"
	"github.com/tinyhis/regops/internal/db"
	"github.com/tinyhis/regops/internal/logging"
)

var logger *zap.Logger

var rootCmd = &cobra.Command{
	Use:   "regclean",
	Short: "Cancel or purge TinyHIS registrations",
	Long: `regclean lists every registration in the TinyHIS database and cancels
the ones still cancellable through the admin API. Registrations in
consultation or completed are skipped.

With --delete it instead hard deletes prescriptions, lab orders, medical
records and registrations in one transaction and resets every schedule
counter to zero. --dry-run reports what either mode would do without
changing anything.

Every flag can also be set as REGOPS_<FLAG> (for example REGOPS_DB_HOST)
or in a --config file.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(logging.FromEnv(), "regclean")
		if err != nil {
			return fmt.Errorf("initializing logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			logging.Sync(logger)
		}
	},
	RunE: runClean,
}

func init() {
	config.AddCleanupFlags(rootCmd.Flags())
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func runClean(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadCleanup(cmd.Flags())
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	store, err := db.Open(ctx, cfg.DB)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()
	logger.Info("connected", logging.Driver(cfg.DB.Driver), zap.Bool("dry_run", cfg.DryRun))

	c := client.New(cfg.API.BaseURL,
		client.WithTimeout(cfg.API.Timeout),
		client.WithLogger(logger.Named("client")))
	cleaner := cleanup.New(store, c, cleanup.Options{
		AdminUser: cfg.AdminUser,
		AdminPass: cfg.AdminPass,
		DryRun:    cfg.DryRun,
	}, out, logger)

	if cfg.Delete {
		report, err := cleaner.Purge(ctx)
		if err != nil {
			return err
		}
		report.Write(out)
		return nil
	}

	logger.Info("using API", logging.BaseURL(cfg.API.BaseURL))
	summary, err := cleaner.Cancel(ctx)
	if err != nil {
		return err
	}
	summary.Write(out)
	return nil
}
