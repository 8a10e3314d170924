// Package main implements regprobe, a booking contention and permission
// probe for a TinyHIS backend.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tinyhis/regops/internal/client"
	"github.com/tinyhis/regops/internal/config"
	"github.com/tinyhis/regops/internal/identity"
	"github.com/tinyhis/regops/internal/logging"
	"github.com/tinyhis/regops/internal/probe"
)

var logger *zap.Logger

var rootCmd = &cobra.Command{
	Use:   "regprobe",
	Short: "Probe booking contention and patient permissions",
	Long: `regprobe picks a schedule, provisions synthetic patients, and fires
one booking per patient at the same moment. It then re-reads the schedule
and reports oversells or counter mismatches. Finally it checks that one
patient's token cannot read another patient's records or the admin user
listing.

Synthetic patients use phones <prefix>1000, <prefix>1001, ... with
password testpass123. Existing accounts are reused through login.`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		logger, err = logging.New(logging.FromEnv(), "regprobe")
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
	RunE: runProbe,
}

func init() {
	config.AddProbeFlags(rootCmd.Flags())
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func runProbe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadProbe(cmd.Flags())
	if err != nil {
		return err
	}

	prefix := cfg.PhonePrefix
	if cfg.RandomPhones {
		if prefix, err = identity.RandomPrefix(); err != nil {
			return fmt.Errorf("random phone prefix: %w", err)
		}
		logger.Info("using random phone prefix", zap.String("prefix", prefix))
	}

	c := client.New(cfg.API.BaseURL,
		client.WithTimeout(cfg.API.Timeout),
		client.WithLogger(logger.Named("client")))
	p := probe.New(c, probe.Options{
		Selection: probe.Selection{
			DeptID:     cfg.DeptID,
			ScheduleID: cfg.ScheduleID,
			Date:       cfg.Day(time.Now()),
		},
		Patients:    cfg.Patients,
		PhonePrefix: prefix,
		Settle:      cfg.Settle,
		Strict:      cfg.Strict,
	}, logger)

	report, err := p.Run(cmd.Context())
	if report != nil {
		report.Write(cmd.OutOrStdout())
	}
	if errors.Is(err, probe.ErrChecksFailed) {
		logger.Warn("strict mode: checks failed")
	}
	return err
}
