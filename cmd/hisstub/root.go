// Package main implements hisstub, a local stand-in for the TinyHIS
// backend API backed by sqlite.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tinyhis/regops/internal/config"
	"github.com/tinyhis/regops/internal/db"
	"github.com/tinyhis/regops/internal/logging"
	"github.com/tinyhis/regops/internal/server"
)

var logger *zap.Logger

var rootCmd = &cobra.Command{
	Use:   "hisstub",
	Short: "Serve a local stand-in of the TinyHIS backend API",
	Long: `hisstub serves the subset of the TinyHIS API that regclean and regprobe
use, under /api, from a sqlite database. It enforces quota atomically,
rejects expired AM/PM slots, and refuses patient tokens access to other
patients' records and to the admin listing.

--seed creates a department with AM, PM and ER schedules for today and an
admin account.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(logging.FromEnv(), "hisstub")
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
	RunE: runStub,
}

func init() {
	config.AddStubFlags(rootCmd.Flags())
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func runStub(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadStub(cmd.Flags())
	if err != nil {
		return err
	}
	return serve(cmd.Context(), cfg, cmd.OutOrStdout())
}

// serve runs the stand-in until ctx is cancelled or the listener fails.
func serve(ctx context.Context, cfg *config.Stub, out io.Writer) error {
	store, err := db.Open(ctx, db.Config{Driver: db.DriverSQLite, Name: cfg.DBPath})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	if cfg.Seed {
		seeded, err := server.Seed(ctx, store, db.SeedOptions{
			Date:      time.Now().Format("2006-01-02"),
			Quota:     cfg.SeedQuota,
			AdminUser: cfg.AdminUser,
			AdminPass: cfg.AdminPass,
		})
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		logger.Info("seeded demo data",
			logging.DeptID(seeded.DeptID),
			zap.Int64("am", seeded.ScheduleIDs[db.ShiftAM]),
			zap.Int64("pm", seeded.ScheduleIDs[db.ShiftPM]),
			zap.Int64("er", seeded.ScheduleIDs[db.ShiftER]),
			zap.String("admin", cfg.AdminUser))
	}

	apiSrv := &server.APIServer{
		Store:    store,
		Secret:   []byte(cfg.JWTSecret),
		TokenTTL: cfg.TokenTTL,
		Logger:   logger.Named("stub"),
	}
	ms := server.NewManagedServer("hisstub", server.DefaultServerConfig(cfg.Addr, apiSrv.Handler(), logger.Named("http")))
	if err := ms.Start(); err != nil {
		return err
	}
	if err := ms.WaitForStartup(100 * time.Millisecond); err != nil {
		return err
	}
	fmt.Fprintf(out, "Serving TinyHIS stand-in at http://%s/api\n", ms.Addr())

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-ms.Done():
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	ms.Shutdown(shutdownCtx)
	return nil
}
