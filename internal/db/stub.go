package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/tinyhis/regops/internal/models"
)

// Queries below back the local stand-in backend.

var (
	ErrNotFound         = errors.New("not found")
	ErrQuotaExhausted   = errors.New("quota exhausted")
	ErrAlreadyBooked    = errors.New("patient already booked this schedule")
	ErrNotCancellable   = errors.New("registration in consultation or completed")
	ErrAlreadyCancelled = errors.New("registration already cancelled")
	ErrDuplicatePhone   = errors.New("phone already registered")
)

const (
	tableDepartment = "department"
	tableSysUser    = "sys_user"
	tablePatient    = "patient_info"
)

var (
	scheduleColumns = []any{"schedule_id", "dept_id", "doctor_id", "schedule_date", "shift_type", "max_quota", "current_count"}
	staffColumns    = []any{"user_id", "username", "password", "real_name", "role"}
	patientColumns  = []any{"patient_id", "name", "phone", "password"}
)

func (s *Store) Departments(ctx context.Context) ([]models.Department, error) {
	query, _, err := s.dialect.From(tableDepartment).
		Select("dept_id", "dept_name").
		Order(goqu.I("dept_id").Asc()).
		ToSQL()
	if err != nil {
		return nil, err
	}
	var depts []models.Department
	if err := s.db.SelectContext(ctx, &depts, query); err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return depts, nil
}

func (s *Store) CreateDepartment(ctx context.Context, name string) (int64, error) {
	return s.insert(ctx, s.db, tableDepartment, goqu.Record{"dept_name": name})
}

// SchedulesByDept lists a department's schedules dated start..end
// (YYYY-MM-DD, inclusive).
func (s *Store) SchedulesByDept(ctx context.Context, deptID int64, start, end string) ([]models.Schedule, error) {
	query, _, err := s.dialect.From(tableSchedule).
		Select(scheduleColumns...).
		Where(
			goqu.C("dept_id").Eq(deptID),
			goqu.C("schedule_date").Between(goqu.Range(start, end)),
		).
		Order(goqu.I("schedule_id").Asc()).
		ToSQL()
	if err != nil {
		return nil, err
	}
	var schedules []models.Schedule
	if err := s.db.SelectContext(ctx, &schedules, query); err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return schedules, nil
}

func (s *Store) ScheduleByID(ctx context.Context, id int64) (*models.Schedule, error) {
	query, _, err := s.dialect.From(tableSchedule).
		Select(scheduleColumns...).
		Where(goqu.C("schedule_id").Eq(id)).
		ToSQL()
	if err != nil {
		return nil, err
	}
	var sc models.Schedule
	if err := s.db.GetContext(ctx, &sc, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get schedule %d: %w", id, err)
	}
	return &sc, nil
}

func (s *Store) CreateSchedule(ctx context.Context, sc models.Schedule) (int64, error) {
	return s.insert(ctx, s.db, tableSchedule, goqu.Record{
		"dept_id":       sc.DeptID,
		"doctor_id":     sc.DoctorID,
		"schedule_date": sc.ScheduleDate,
		"shift_type":    sc.ShiftType,
		"max_quota":     sc.MaxQuota,
		"current_count": sc.CurrentCount,
	})
}

func (s *Store) CreateStaff(ctx context.Context, u models.StaffUser) (int64, error) {
	return s.insert(ctx, s.db, tableSysUser, goqu.Record{
		"username":  u.Username,
		"password":  u.Password,
		"real_name": u.RealName,
		"role":      u.Role,
	})
}

func (s *Store) StaffByUsername(ctx context.Context, username string) (*models.StaffUser, error) {
	query, _, err := s.dialect.From(tableSysUser).
		Select(staffColumns...).
		Where(goqu.C("username").Eq(username), goqu.C("status").Eq(1)).
		ToSQL()
	if err != nil {
		return nil, err
	}
	var u models.StaffUser
	if err := s.db.GetContext(ctx, &u, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get staff %q: %w", username, err)
	}
	return &u, nil
}

func (s *Store) StaffUsers(ctx context.Context) ([]models.StaffUser, error) {
	query, _, err := s.dialect.From(tableSysUser).
		Select(staffColumns...).
		Order(goqu.I("user_id").Asc()).
		ToSQL()
	if err != nil {
		return nil, err
	}
	var users []models.StaffUser
	if err := s.db.SelectContext(ctx, &users, query); err != nil {
		return nil, fmt.Errorf("list staff: %w", err)
	}
	return users, nil
}

func (s *Store) PatientByPhone(ctx context.Context, phone string) (*models.Patient, error) {
	query, _, err := s.dialect.From(tablePatient).
		Select(patientColumns...).
		Where(goqu.C("phone").Eq(phone)).
		ToSQL()
	if err != nil {
		return nil, err
	}
	var p models.Patient
	if err := s.db.GetContext(ctx, &p, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get patient %q: %w", phone, err)
	}
	return &p, nil
}

func (s *Store) CreatePatient(ctx context.Context, name, phone, password string) (int64, error) {
	if _, err := s.PatientByPhone(ctx, phone); err == nil {
		return 0, ErrDuplicatePhone
	} else if !errors.Is(err, ErrNotFound) {
		return 0, err
	}
	return s.insert(ctx, s.db, tablePatient, goqu.Record{"name": name, "phone": phone, "password": password})
}

// BookRegistration takes one slot of a schedule for a patient. The counter
// increment is conditional on remaining capacity, so concurrent bookings
// can never push current_count past max_quota.
func (s *Store) BookRegistration(ctx context.Context, patientID, scheduleID int64, now time.Time) (regID int64, queue int, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("begin booking: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query, _, err := s.dialect.From(tableRegistration).
		Select(goqu.COUNT(goqu.Star())).
		Where(
			goqu.C("patient_id").Eq(patientID),
			goqu.C("schedule_id").Eq(scheduleID),
			goqu.C("status").Neq(models.StatusCancelled),
		).
		ToSQL()
	if err != nil {
		return 0, 0, err
	}
	var existing int
	if err = tx.GetContext(ctx, &existing, query); err != nil {
		return 0, 0, fmt.Errorf("check existing booking: %w", err)
	}
	if existing > 0 {
		return 0, 0, ErrAlreadyBooked
	}

	query, _, err = s.dialect.Update(tableSchedule).
		Set(goqu.Record{"current_count": goqu.L("current_count + 1")}).
		Where(
			goqu.C("schedule_id").Eq(scheduleID),
			goqu.C("current_count").Lt(goqu.I("max_quota")),
		).
		ToSQL()
	if err != nil {
		return 0, 0, err
	}
	res, err := tx.ExecContext(ctx, query)
	if err != nil {
		return 0, 0, fmt.Errorf("take slot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, 0, err
	}
	if n == 0 {
		return 0, 0, ErrQuotaExhausted
	}

	query, _, err = s.dialect.From(tableSchedule).
		Select("current_count").
		Where(goqu.C("schedule_id").Eq(scheduleID)).
		ToSQL()
	if err != nil {
		return 0, 0, err
	}
	if err = tx.GetContext(ctx, &queue, query); err != nil {
		return 0, 0, fmt.Errorf("read queue number: %w", err)
	}

	regID, err = s.insert(ctx, tx, tableRegistration, goqu.Record{
		"patient_id":   patientID,
		"schedule_id":  scheduleID,
		"status":       models.StatusBooked,
		"queue_number": queue,
		"create_time":  now.Unix(),
	})
	if err != nil {
		return 0, 0, err
	}

	if err = tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("commit booking: %w", err)
	}
	return regID, queue, nil
}

// CancelRegistration marks a registration cancelled and releases its slot.
func (s *Store) CancelRegistration(ctx context.Context, regID int64) (err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cancel: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query, _, err := s.dialect.From(tableRegistration).
		Select("schedule_id", "status").
		Where(goqu.C("reg_id").Eq(regID)).
		ToSQL()
	if err != nil {
		return err
	}
	var row struct {
		ScheduleID int64         `db:"schedule_id"`
		Status     sql.NullInt64 `db:"status"`
	}
	if err = tx.GetContext(ctx, &row, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("get registration %d: %w", regID, err)
	}

	status := int(row.Status.Int64)
	switch {
	case status == models.StatusCancelled:
		return ErrAlreadyCancelled
	case status >= models.CancellableBelow:
		return ErrNotCancellable
	}

	query, _, err = s.dialect.Update(tableRegistration).
		Set(goqu.Record{"status": models.StatusCancelled}).
		Where(goqu.C("reg_id").Eq(regID)).
		ToSQL()
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("cancel registration %d: %w", regID, err)
	}

	query, _, err = s.dialect.Update(tableSchedule).
		Set(goqu.Record{"current_count": goqu.L("current_count - 1")}).
		Where(goqu.C("schedule_id").Eq(row.ScheduleID), goqu.C("current_count").Gt(0)).
		ToSQL()
	if err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("release slot: %w", err)
	}

	return tx.Commit()
}

func (s *Store) RecordsByPatient(ctx context.Context, patientID int64) ([]models.MedicalRecord, error) {
	query, _, err := s.dialect.From(tableMedicalRecord).
		Select("record_id", "reg_id", "patient_id", "diagnosis").
		Where(goqu.C("patient_id").Eq(patientID)).
		Order(goqu.I("record_id").Asc()).
		ToSQL()
	if err != nil {
		return nil, err
	}
	var records []models.MedicalRecord
	if err := s.db.SelectContext(ctx, &records, query); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return records, nil
}

// AddMedicalRecord attaches an EMR with one prescription and one lab order
// to a registration, which is the shape the purge has to unwind.
func (s *Store) AddMedicalRecord(ctx context.Context, regID, patientID int64, diagnosis string) (int64, error) {
	recordID, err := s.insert(ctx, s.db, tableMedicalRecord, goqu.Record{
		"reg_id":     regID,
		"patient_id": patientID,
		"diagnosis":  diagnosis,
	})
	if err != nil {
		return 0, err
	}
	if _, err := s.insert(ctx, s.db, tablePrescription, goqu.Record{"record_id": recordID, "drug_name": "amoxicillin"}); err != nil {
		return 0, err
	}
	if _, err := s.insert(ctx, s.db, tableLabOrder, goqu.Record{"record_id": recordID, "item_name": "CBC"}); err != nil {
		return 0, err
	}
	return recordID, nil
}

// SetRegistrationStatus moves a registration along its lifecycle.
func (s *Store) SetRegistrationStatus(ctx context.Context, regID int64, status int) error {
	query, _, err := s.dialect.Update(tableRegistration).
		Set(goqu.Record{"status": status}).
		Where(goqu.C("reg_id").Eq(regID)).
		ToSQL()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query)
	if err != nil {
		return fmt.Errorf("set status of %d: %w", regID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) insert(ctx context.Context, ex execer, table string, rec goqu.Record) (int64, error) {
	query, _, err := s.dialect.Insert(table).Rows(rec).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("build insert %s: %w", table, err)
	}
	res, err := ex.ExecContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", table, err)
	}
	return res.LastInsertId()
}
