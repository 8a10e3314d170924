// Package models defines the database entity types.
package models

import "fmt"

// Registration lifecycle states as stored in registration.status.
const (
	StatusBooked         = 0
	StatusPaid           = 1
	StatusCheckedIn      = 2
	StatusInConsultation = 3
	StatusCompleted      = 4
	StatusCancelled      = 5

	// CancellableBelow is the first status the backend refuses to cancel.
	CancellableBelow = StatusInConsultation
)

// Registration is the identity and status lens onto a registration row.
type Registration struct {
	RegID  int64 `db:"reg_id"`
	Status int   `db:"status"`
}

// Cancellable reports whether the backend accepts a cancel for this row.
func (r Registration) Cancellable() bool {
	return r.Status < CancellableBelow
}

// StatusLabel returns a human readable name for a registration status.
func StatusLabel(status int) string {
	switch status {
	case StatusBooked:
		return "booked"
	case StatusPaid:
		return "paid"
	case StatusCheckedIn:
		return "checked-in"
	case StatusInConsultation:
		return "in-consultation"
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("status-%d", status)
	}
}

// Department is a clinical department row.
type Department struct {
	DeptID   int64  `db:"dept_id"`
	DeptName string `db:"dept_name"`
}

// Schedule is a bookable block with a fixed capacity.
type Schedule struct {
	ScheduleID   int64  `db:"schedule_id"`
	DeptID       int64  `db:"dept_id"`
	DoctorID     int64  `db:"doctor_id"`
	ScheduleDate string `db:"schedule_date"`
	ShiftType    string `db:"shift_type"`
	MaxQuota     int    `db:"max_quota"`
	CurrentCount int    `db:"current_count"`
}

// QuotaLeft is the remaining capacity, never negative.
func (s Schedule) QuotaLeft() int {
	if left := s.MaxQuota - s.CurrentCount; left > 0 {
		return left
	}
	return 0
}

// Patient is a patient account row.
type Patient struct {
	PatientID int64  `db:"patient_id"`
	Name      string `db:"name"`
	Phone     string `db:"phone"`
	Password  string `db:"password"`
}

// StaffUser is a staff account row.
type StaffUser struct {
	UserID   int64  `db:"user_id"`
	Username string `db:"username"`
	Password string `db:"password"`
	RealName string `db:"real_name"`
	Role     string `db:"role"`
}

// MedicalRecord is an EMR row attached to a registration.
type MedicalRecord struct {
	RecordID  int64  `db:"record_id"`
	RegID     int64  `db:"reg_id"`
	PatientID int64  `db:"patient_id"`
	Diagnosis string `db:"diagnosis"`
}
