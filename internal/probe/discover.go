package probe

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tinyhis/regops/internal/api"
	"github.com/tinyhis/regops/internal/logging"
)

const shiftER = "ER"

var (
	ErrNoDepartments = errors.New("no departments available")
	ErrNoSchedule    = errors.New("no schedule to test")
)

// Selection narrows discovery. Zero ids mean "pick one".
type Selection struct {
	DeptID     int64
	ScheduleID int64
	Date       time.Time
}

// Target is the schedule the burst will contend for.
type Target struct {
	DeptID   int64
	Schedule api.Schedule
	// Substituted is set when an expired explicit schedule was swapped for
	// an ER schedule of the same department.
	Substituted bool
	RequestedID int64
}

// Discover chooses the department and schedule to test.
func (p *Prober) Discover(ctx context.Context, sel Selection) (*Target, error) {
	deptID := sel.DeptID
	if deptID == 0 {
		id, err := p.firstDepartment(ctx)
		if err != nil {
			return nil, err
		}
		deptID = id
	}
	log := p.logger.With(logging.DeptID(deptID))

	schedules, err := p.schedules(ctx, deptID, sel.Date)
	if err != nil {
		return nil, err
	}

	if sel.ScheduleID != 0 {
		return explicitTarget(log, deptID, sel.ScheduleID, schedules)
	}

	sc, ok := pickSchedule(schedules)
	if !ok {
		return nil, fmt.Errorf("%w: dept %d has no schedules on %s", ErrNoSchedule, deptID, sel.Date.Format(dateLayout))
	}
	return &Target{DeptID: deptID, Schedule: sc, RequestedID: sc.ScheduleID}, nil
}

func explicitTarget(log *zap.Logger, deptID, scheduleID int64, schedules []api.Schedule) (*Target, error) {
	sc, ok := findSchedule(schedules, scheduleID)
	if !ok {
		return nil, fmt.Errorf("%w: schedule %d not found in dept %d schedule list", ErrNoSchedule, scheduleID, deptID)
	}
	t := &Target{DeptID: deptID, Schedule: sc, RequestedID: scheduleID}
	if !sc.Expired {
		return t, nil
	}

	log.Warn("schedule is expired, looking for an ER fallback", logging.ScheduleID(scheduleID))
	for _, s := range schedules {
		if s.ShiftCode() == shiftER && s.QuotaLeft > 0 {
			log.Info("using ER schedule as fallback", logging.ScheduleID(s.ScheduleID))
			t.Schedule = s
			t.Substituted = true
			return t, nil
		}
	}
	log.Warn("no ER schedule with quota; keeping the expired schedule, expect zero bookings")
	return t, nil
}

// pickSchedule prefers, in order: an open schedule with quota, an ER
// schedule with quota, any schedule with quota, the first schedule.
func pickSchedule(schedules []api.Schedule) (api.Schedule, bool) {
	for _, s := range schedules {
		if s.QuotaLeft > 0 && !s.Expired {
			return s, true
		}
	}
	for _, s := range schedules {
		if s.ShiftCode() == shiftER && s.QuotaLeft > 0 {
			return s, true
		}
	}
	for _, s := range schedules {
		if s.QuotaLeft > 0 {
			return s, true
		}
	}
	if len(schedules) > 0 {
		return schedules[0], true
	}
	return api.Schedule{}, false
}

func findSchedule(schedules []api.Schedule, id int64) (api.Schedule, bool) {
	for _, s := range schedules {
		if s.ScheduleID == id {
			return s, true
		}
	}
	return api.Schedule{}, false
}

func (p *Prober) firstDepartment(ctx context.Context) (int64, error) {
	res, err := p.client.Departments(ctx)
	if err != nil {
		return 0, fmt.Errorf("list departments: %w", err)
	}
	if err := res.Err(); err != nil {
		return 0, fmt.Errorf("list departments: %w", err)
	}
	if len(res.Data) == 0 {
		return 0, ErrNoDepartments
	}
	return res.Data[0].DeptID, nil
}

func (p *Prober) schedules(ctx context.Context, deptID int64, day time.Time) ([]api.Schedule, error) {
	res, err := p.client.Schedules(ctx, deptID, day, day)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	if err := res.Err(); err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return res.Data, nil
}

// lookup re-reads one schedule from the list endpoint.
func (p *Prober) lookup(ctx context.Context, deptID, scheduleID int64, day time.Time) (*api.Schedule, error) {
	schedules, err := p.schedules(ctx, deptID, day)
	if err != nil {
		return nil, err
	}
	sc, ok := findSchedule(schedules, scheduleID)
	if !ok {
		return nil, nil
	}
	return &sc, nil
}
