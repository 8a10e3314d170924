// Package api defines the request and response types of the HIS backend.
package api

import "encoding/json"

// CodeOK is the envelope code signalling application-level success.
const CodeOK = 200

// Envelope wraps every backend response body.
type Envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// OK reports whether the envelope carries an application-level success.
func (e *Envelope) OK() bool {
	return e != nil && e.Code == CodeOK
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Token    string `json:"token"`
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	RealName string `json:"realName,omitempty"`
	Role     string `json:"role,omitempty"`
	DeptID   *int64 `json:"deptId,omitempty"`
}

type PatientRegisterRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

type PatientInfo struct {
	PatientID int64  `json:"patientId"`
	Name      string `json:"name"`
	Phone     string `json:"phone"`
}

type DemoInfo struct {
	IsDemo   bool              `json:"isDemo"`
	Staff    []json.RawMessage `json:"staff,omitempty"`
	Patients []json.RawMessage `json:"patients,omitempty"`
}

type Department struct {
	DeptID   int64  `json:"deptId"`
	DeptName string `json:"deptName"`
}

// Schedule is one entry of GET /schedule/list.
type Schedule struct {
	ScheduleID   int64   `json:"scheduleId"`
	DoctorID     int64   `json:"doctorId,omitempty"`
	DoctorName   string  `json:"doctorName,omitempty"`
	DeptID       int64   `json:"deptId"`
	DeptName     string  `json:"deptName,omitempty"`
	Date         string  `json:"date,omitempty"`
	Shift        string  `json:"shift,omitempty"`
	ShiftType    string  `json:"shiftType,omitempty"`
	MaxQuota     int     `json:"maxQuota"`
	CurrentCount int     `json:"currentCount"`
	QuotaLeft    int     `json:"quotaLeft"`
	Fee          float64 `json:"fee,omitempty"`
	Expired      bool    `json:"expired"`
}

// ShiftCode returns the shift, preferring shiftType over the older shift field.
func (s Schedule) ShiftCode() string {
	if s.ShiftType != "" {
		return s.ShiftType
	}
	return s.Shift
}

type RegistrationRequest struct {
	PatientID  int64 `json:"patientId"`
	ScheduleID int64 `json:"scheduleId"`
}

type Registration struct {
	RegID       *int64  `json:"regId"`
	PatientID   int64   `json:"patientId"`
	DoctorID    int64   `json:"doctorId,omitempty"`
	ScheduleID  int64   `json:"scheduleId"`
	Status      int     `json:"status"`
	QueueNumber int     `json:"queueNumber"`
	Fee         float64 `json:"fee,omitempty"`
}

type MedicalRecord struct {
	RecordID  int64  `json:"recordId"`
	RegID     int64  `json:"regId"`
	PatientID int64  `json:"patientId"`
	Diagnosis string `json:"diagnosis,omitempty"`
}

type StaffUser struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	RealName string `json:"realName,omitempty"`
	Role     string `json:"role"`
}

type UserPage struct {
	List  []StaffUser `json:"list"`
	Total int64       `json:"total"`
}
