// Package cleanup cancels or purges registrations in a HIS instance.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/tinyhis/regops/internal/api"
	"github.com/tinyhis/regops/internal/auth"
	"github.com/tinyhis/regops/internal/client"
	"github.com/tinyhis/regops/internal/db"
	"github.com/tinyhis/regops/internal/logging"
	"github.com/tinyhis/regops/internal/models"
	"github.com/tinyhis/regops/internal/tally"
)

var ErrAdminLogin = errors.New("admin login failed")

// Store is the registration data the cleaner reads and purges.
type Store interface {
	ListRegistrations(ctx context.Context) ([]models.Registration, error)
	PurgeRegistrations(ctx context.Context) ([]db.PurgeStep, error)
	PlanPurge(ctx context.Context) ([]db.PurgeStep, error)
}

type Authenticator interface {
	StaffLogin(ctx context.Context, username, password string) (*client.Result[api.LoginResponse], error)
}

type Canceller interface {
	CancelRegistration(ctx context.Context, regID int64) (*client.Result[bool], error)
}

// Options are the per-run switches.
type Options struct {
	AdminUser string
	AdminPass string
	DryRun    bool
}

type Cleaner struct {
	store     Store
	auth      Authenticator
	canceller func(token string) Canceller
	opts      Options
	out       io.Writer
	logger    *zap.Logger
	now       func() time.Time
}

// New builds a cleaner that cancels through c once it holds an admin token.
func New(store Store, c *client.Client, opts Options, out io.Writer, logger *zap.Logger) *Cleaner {
	return &Cleaner{
		store:     store,
		auth:      c,
		canceller: func(token string) Canceller { return c.WithToken(token) },
		opts:      opts,
		out:       out,
		logger:    logger.Named("cleanup"),
		now:       time.Now,
	}
}

// Cancel cancels every cancellable registration through the admin API.
// Rows in consultation or later are skipped and never sent. A failed cancel
// is recorded and the run moves on; a failed admin login aborts it.
func (c *Cleaner) Cancel(ctx context.Context) (*Summary, error) {
	regs, err := c.store.ListRegistrations(ctx)
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(c.out, "Found %d registration rows\n", len(regs))

	sum := &Summary{Total: len(regs), DryRun: c.opts.DryRun, Reasons: tally.New()}
	if len(regs) == 0 {
		return sum, nil
	}

	var canceller Canceller
	if !c.opts.DryRun {
		token, err := c.login(ctx)
		if err != nil {
			return nil, err
		}
		canceller = c.canceller(token)
	}

	for _, reg := range regs {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		log := c.logger.With(logging.RegID(reg.RegID), logging.RegStatus(reg.Status))

		if !reg.Cancellable() {
			log.Info("skipping, cannot cancel", zap.String("state", models.StatusLabel(reg.Status)))
			sum.Skipped++
			continue
		}

		if c.opts.DryRun {
			log.Info("dry run: would cancel")
			sum.WouldCancel++
			continue
		}

		ok, detail := c.cancel(ctx, canceller, reg.RegID)
		if ok {
			log.Info("cancelled")
			sum.Cancelled++
			continue
		}
		log.Warn("cancel failed", zap.String("reason", detail))
		sum.Failed++
		sum.Reasons.Add(detail)
	}

	return sum, nil
}

func (c *Cleaner) login(ctx context.Context) (string, error) {
	res, err := c.auth.StaffLogin(ctx, c.opts.AdminUser, c.opts.AdminPass)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrAdminLogin, err)
	}
	if err := res.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrAdminLogin, err)
	}
	if res.Data.Token == "" {
		return "", fmt.Errorf("%w: response carried no token", ErrAdminLogin)
	}

	fields := []zap.Field{zap.Int("token_len", len(res.Data.Token))}
	if claims, err := auth.Inspect(res.Data.Token); err == nil {
		fields = append(fields,
			zap.String("role", claims.Role),
			zap.Duration("expires_in", claims.ExpiresIn(c.now()).Round(time.Second)))
		if !claims.IsAdmin() {
			c.logger.Warn("login token is not an admin token; cancels may be refused", zap.String("role", claims.Role))
		}
	}
	c.logger.Info("admin token obtained", fields...)
	return res.Data.Token, nil
}

// cancel issues one cancel call. detail is the reason on failure.
func (c *Cleaner) cancel(ctx context.Context, canceller Canceller, regID int64) (bool, string) {
	res, err := canceller.CancelRegistration(ctx, regID)
	if err != nil {
		return false, err.Error()
	}
	if err := res.Err(); err != nil {
		return false, err.Error()
	}
	return true, ""
}

// Purge hard deletes all registration data and resets schedule counters.
// With DryRun set it only counts what would be touched.
func (c *Cleaner) Purge(ctx context.Context) (*PurgeReport, error) {
	if c.opts.DryRun {
		steps, err := c.store.PlanPurge(ctx)
		if err != nil {
			return nil, err
		}
		c.logger.Info("dry run: skipping actual deletion")
		return &PurgeReport{Steps: steps, DryRun: true}, nil
	}

	c.logger.Warn("performing hard delete of all registration data")
	steps, err := c.store.PurgeRegistrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("hard delete: %w", err)
	}
	for _, s := range steps {
		c.logger.Info("purged", logging.Table(s.Table), zap.String("action", s.Action), zap.Int64("rows", s.Rows))
	}
	return &PurgeReport{Steps: steps}, nil
}
