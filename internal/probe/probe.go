// Package probe exercises a HIS backend's booking endpoint under contention
// and checks that patient tokens cannot reach other patients' data.
package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tinyhis/regops/internal/api"
	"github.com/tinyhis/regops/internal/client"
	"github.com/tinyhis/regops/internal/logging"
)

const dateLayout = "2006-01-02"

// ErrChecksFailed is returned by Run in strict mode when any invariant or
// permission check failed. The report is still returned.
var ErrChecksFailed = errors.New("probe checks failed")

type Options struct {
	Selection   Selection
	Patients    int
	PhonePrefix string
	// Settle is how long to wait before re-reading the schedule; the
	// backend may book through an asynchronous queue.
	Settle time.Duration
	Strict bool
}

type Prober struct {
	client *client.Client
	opts   Options
	logger *zap.Logger
}

func New(c *client.Client, opts Options, logger *zap.Logger) *Prober {
	if opts.Selection.Date.IsZero() {
		opts.Selection.Date = time.Now()
	}
	return &Prober{client: c, opts: opts, logger: logger.Named("probe")}
}

// Report is everything a probe run observed.
type Report struct {
	BaseURL   string
	Demo      *api.DemoInfo
	Target    *Target
	Requested int
	Users     []User
	Attempts  []Attempt
	Verify    Verification
	Checks    []Check
}

// PermissionsSkipped is set when fewer than two users were provisioned.
func (r *Report) PermissionsSkipped() bool {
	return len(r.Users) < 2
}

// OK reports whether the quota invariants and every permission check held.
func (r *Report) OK() bool {
	if !r.Verify.OK() {
		return false
	}
	for _, c := range r.Checks {
		if !c.Verdict.Passed() {
			return false
		}
	}
	return true
}

// Run discovers a schedule, provisions users, fires the burst, verifies
// the counters and checks permissions. Only discovery and the pre-burst
// schedule read are fatal.
func (p *Prober) Run(ctx context.Context) (*Report, error) {
	r := &Report{BaseURL: p.client.BaseURL}
	r.Demo = p.demoInfo(ctx)

	target, err := p.Discover(ctx, p.opts.Selection)
	if err != nil {
		return nil, err
	}
	r.Target = target
	sc := target.Schedule
	p.logger.Info("target selected",
		logging.DeptID(target.DeptID),
		logging.ScheduleID(sc.ScheduleID),
		zap.String("shift", sc.ShiftCode()),
		zap.Int("quota_left", sc.QuotaLeft),
		zap.Bool("expired", sc.Expired))

	before, err := p.lookup(ctx, target.DeptID, sc.ScheduleID, p.opts.Selection.Date)
	if err != nil {
		return nil, err
	}
	if before == nil {
		return nil, fmt.Errorf("%w: schedule %d not found in list for dept %d", ErrNoSchedule, sc.ScheduleID, target.DeptID)
	}

	r.Requested = p.patientCount(before.QuotaLeft)
	r.Users = p.Provision(ctx, r.Requested)
	p.logger.Info("users prepared", zap.Int("requested", r.Requested), zap.Int("prepared", len(r.Users)))

	r.Attempts = Burst(ctx, r.Users, sc.ScheduleID, p.book)
	for _, a := range r.Attempts {
		p.logger.Debug("attempt",
			logging.PatientID(a.User.ID),
			zap.Stringer("outcome", a.Outcome.Kind),
			zap.String("reason", a.Outcome.Reason),
			zap.Duration("elapsed", a.Elapsed))
	}

	if err := sleep(ctx, p.opts.Settle); err != nil {
		return nil, err
	}
	after, err := p.lookup(ctx, target.DeptID, sc.ScheduleID, p.opts.Selection.Date)
	if err != nil {
		p.logger.Warn("re-reading schedule failed", zap.Error(err))
		after = nil
	}
	if after == nil {
		p.logger.Warn("schedule not found after burst; it may have been removed", logging.ScheduleID(sc.ScheduleID))
	}
	r.Verify = Verify(*before, after, r.Attempts)

	if !r.PermissionsSkipped() {
		r.Checks = p.CheckPermissions(ctx, r.Users[0], r.Users[1])
	}

	if p.opts.Strict && !r.OK() {
		return r, ErrChecksFailed
	}
	return r, nil
}

func (p *Prober) book(ctx context.Context, u User, scheduleID int64) (*client.Result[api.Registration], error) {
	return p.client.WithToken(u.Token).CreateRegistration(ctx, u.ID, scheduleID)
}

// demoInfo is informational only; failures are logged and ignored.
func (p *Prober) demoInfo(ctx context.Context) *api.DemoInfo {
	res, err := p.client.DemoInfo(ctx)
	if err != nil {
		p.logger.Debug("demo info unavailable", zap.Error(err))
		return nil
	}
	if !res.OK() {
		p.logger.Debug("demo info unavailable", zap.Error(res.Err()))
		return nil
	}
	p.logger.Info("backend demo info", zap.Bool("demo", res.Data.IsDemo))
	return &res.Data
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// patientCount applies PatientCount and warns when an override was capped.
func (p *Prober) patientCount(quotaLeft int) int {
	n := PatientCount(p.opts.Patients, quotaLeft)
	if p.opts.Patients > n {
		p.logger.Warn("patient override capped",
			zap.Int("requested", p.opts.Patients), zap.Int("using", n))
	}
	return n
}
