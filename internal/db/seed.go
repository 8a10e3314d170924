package db

import (
	"context"
	"fmt"

	"github.com/tinyhis/regops/internal/models"
)

// Shift types used by the backend.
const (
	ShiftAM = "AM"
	ShiftPM = "PM"
	ShiftER = "ER"
)

// SeedOptions controls the demo data written by SeedDemo.
type SeedOptions struct {
	Date      string // YYYY-MM-DD
	Quota     int
	AdminUser string
	AdminPass string
}

// Seeded reports the ids SeedDemo created.
type Seeded struct {
	DeptID      int64
	AdminID     int64
	ScheduleIDs map[string]int64 // by shift
}

// SeedDemo creates one department with AM, PM and ER schedules on the given
// date and an admin account. It is meant for an empty database.
func (s *Store) SeedDemo(ctx context.Context, opts SeedOptions) (*Seeded, error) {
	deptID, err := s.CreateDepartment(ctx, "General Medicine")
	if err != nil {
		return nil, fmt.Errorf("seed department: %w", err)
	}

	out := &Seeded{DeptID: deptID, ScheduleIDs: make(map[string]int64, 3)}
	for _, shift := range []string{ShiftAM, ShiftPM, ShiftER} {
		id, err := s.CreateSchedule(ctx, models.Schedule{
			DeptID:       deptID,
			DoctorID:     1,
			ScheduleDate: opts.Date,
			ShiftType:    shift,
			MaxQuota:     opts.Quota,
		})
		if err != nil {
			return nil, fmt.Errorf("seed %s schedule: %w", shift, err)
		}
		out.ScheduleIDs[shift] = id
	}

	out.AdminID, err = s.CreateStaff(ctx, models.StaffUser{
		Username: opts.AdminUser,
		Password: opts.AdminPass,
		RealName: "Administrator",
		Role:     "ADMIN",
	})
	if err != nil {
		return nil, fmt.Errorf("seed admin: %w", err)
	}
	return out, nil
}
