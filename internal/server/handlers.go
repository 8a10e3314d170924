package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/tinyhis/regops/internal/api"
	"github.com/tinyhis/regops/internal/auth"
	"github.com/tinyhis/regops/internal/db"
	"github.com/tinyhis/regops/internal/logging"
	"github.com/tinyhis/regops/internal/models"
)

const (
	dateLayout   = "2006-01-02"
	maxBodyBytes = 1 << 16

	// Stand-in accounts are throwaway; the lowest cost keeps provisioning
	// hundreds of them fast.
	passwordCost = bcrypt.MinCost

	msgExpiredAM   = "上午号源已过期，请选择其他时段"
	msgExpiredPM   = "下午号源已过期，请选择其他时段"
	msgPastDate    = "不能预约过去的日期"
	msgNoSchedule  = "排班不存在"
	msgNoUser      = "用户不存在"
	msgBadPassword = "密码错误"
)

// HashPassword hashes a password the way stored accounts expect.
func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), passwordCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Seed writes the demo department, schedules and admin account.
func Seed(ctx context.Context, store *db.Store, opts db.SeedOptions) (*db.Seeded, error) {
	hash, err := HashPassword(opts.AdminPass)
	if err != nil {
		return nil, err
	}
	opts.AdminPass = hash
	return store.SeedDemo(ctx, opts)
}

func decode(c echo.Context, v any) error {
	body := http.MaxBytesReader(c.Response(), c.Request().Body, maxBodyBytes)
	return json.NewDecoder(body).Decode(v)
}

func (s *APIServer) issue(userID int64, username, role, userType string) (string, error) {
	return auth.Sign(s.Secret, userID, username, role, userType, s.TokenTTL, s.now())
}

func (s *APIServer) handleStaffLogin(c echo.Context) error {
	var req api.LoginRequest
	if err := decode(c, &req); err != nil {
		return badRequest(c, "invalid JSON")
	}

	u, err := s.Store.StaffByUsername(c.Request().Context(), req.Username)
	if errors.Is(err, db.ErrNotFound) {
		return fail(c, msgNoUser)
	}
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)) != nil {
		return fail(c, msgBadPassword)
	}

	token, err := s.issue(u.UserID, u.Username, u.Role, auth.UserTypeStaff)
	if err != nil {
		return err
	}
	return ok(c, api.LoginResponse{
		Token:    token,
		UserID:   u.UserID,
		Username: u.Username,
		RealName: u.RealName,
		Role:     u.Role,
	})
}

func (s *APIServer) handlePatientRegister(c echo.Context) error {
	var req api.PatientRegisterRequest
	if err := decode(c, &req); err != nil {
		return badRequest(c, "invalid JSON")
	}
	if strings.TrimSpace(req.Phone) == "" || req.Password == "" {
		return badRequest(c, "phone and password are required")
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		return err
	}
	id, err := s.Store.CreatePatient(c.Request().Context(), req.Name, req.Phone, hash)
	if err != nil {
		if msg, known := storeMessage(err); known {
			return fail(c, msg)
		}
		return err
	}
	return ok(c, api.PatientInfo{PatientID: id, Name: req.Name, Phone: req.Phone})
}

func (s *APIServer) handlePatientLogin(c echo.Context) error {
	var req api.LoginRequest
	if err := decode(c, &req); err != nil {
		return badRequest(c, "invalid JSON")
	}

	p, err := s.Store.PatientByPhone(c.Request().Context(), req.Username)
	if errors.Is(err, db.ErrNotFound) {
		return fail(c, msgNoUser)
	}
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(p.Password), []byte(req.Password)) != nil {
		return fail(c, msgBadPassword)
	}

	token, err := s.issue(p.PatientID, p.Phone, rolePatient, auth.UserTypePatient)
	if err != nil {
		return err
	}
	return ok(c, api.LoginResponse{
		Token:    token,
		UserID:   p.PatientID,
		Username: p.Phone,
		RealName: p.Name,
		Role:     rolePatient,
	})
}

func (s *APIServer) handleDemoInfo(c echo.Context) error {
	return ok(c, api.DemoInfo{IsDemo: true})
}

func (s *APIServer) handleDepartments(c echo.Context) error {
	depts, err := s.Store.Departments(c.Request().Context())
	if err != nil {
		return err
	}
	out := make([]api.Department, 0, len(depts))
	for _, d := range depts {
		out = append(out, api.Department{DeptID: d.DeptID, DeptName: d.DeptName})
	}
	return ok(c, out)
}

func (s *APIServer) handleSchedules(c echo.Context) error {
	deptID, err := strconv.ParseInt(c.QueryParam("deptId"), 10, 64)
	if err != nil {
		return badRequest(c, "deptId is required")
	}
	today := s.now().Format(dateLayout)
	start := queryOr(c, "startDate", today)
	end := queryOr(c, "endDate", start)

	schedules, err := s.Store.SchedulesByDept(c.Request().Context(), deptID, start, end)
	if err != nil {
		return err
	}
	now := s.now()
	out := make([]api.Schedule, 0, len(schedules))
	for _, sc := range schedules {
		expired, _ := slotExpired(sc, now)
		out = append(out, api.Schedule{
			ScheduleID:   sc.ScheduleID,
			DoctorID:     sc.DoctorID,
			DeptID:       sc.DeptID,
			Date:         sc.ScheduleDate,
			Shift:        sc.ShiftType,
			ShiftType:    sc.ShiftType,
			MaxQuota:     sc.MaxQuota,
			CurrentCount: sc.CurrentCount,
			QuotaLeft:    sc.QuotaLeft(),
			Expired:      expired,
		})
	}
	return ok(c, out)
}

func (s *APIServer) handleCreateRegistration(c echo.Context) error {
	var req api.RegistrationRequest
	if err := decode(c, &req); err != nil {
		return badRequest(c, "invalid JSON")
	}
	claims := claimsFrom(c)
	if strings.EqualFold(claims.Role, rolePatient) && claims.UserID != req.PatientID {
		return echo.NewHTTPError(http.StatusForbidden, msgForbidden)
	}

	ctx := c.Request().Context()
	sc, err := s.Store.ScheduleByID(ctx, req.ScheduleID)
	if errors.Is(err, db.ErrNotFound) {
		return fail(c, msgNoSchedule)
	}
	if err != nil {
		return err
	}
	if expired, msg := slotExpired(*sc, s.now()); expired {
		return fail(c, msg)
	}

	regID, queue, err := s.Store.BookRegistration(ctx, req.PatientID, req.ScheduleID, s.now())
	if err != nil {
		if msg, known := storeMessage(err); known {
			return fail(c, msg)
		}
		return err
	}
	s.Logger.Debug("booked", logging.RegID(regID), logging.PatientID(req.PatientID), logging.ScheduleID(req.ScheduleID))
	return ok(c, api.Registration{
		RegID:       &regID,
		PatientID:   req.PatientID,
		DoctorID:    sc.DoctorID,
		ScheduleID:  req.ScheduleID,
		Status:      models.StatusBooked,
		QueueNumber: queue,
	})
}

func (s *APIServer) handleCancelRegistration(c echo.Context) error {
	regID, err := strconv.ParseInt(c.Param("regId"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid regId")
	}

	err = s.Store.CancelRegistration(c.Request().Context(), regID)
	switch {
	case err == nil:
		s.Logger.Debug("cancelled", logging.RegID(regID))
		return ok(c, true)
	case errors.Is(err, db.ErrNotFound):
		// The backend reports an unknown id as a successful false.
		return ok(c, false)
	default:
		if msg, known := storeMessage(err); known {
			return fail(c, msg)
		}
		return err
	}
}

func (s *APIServer) handlePatientRecords(c echo.Context) error {
	patientID, err := strconv.ParseInt(c.Param("patientId"), 10, 64)
	if err != nil {
		return badRequest(c, "invalid patientId")
	}
	claims := claimsFrom(c)
	if claims.UserType == auth.UserTypePatient && claims.UserID != patientID {
		s.Logger.Info("refused foreign record read",
			zap.Int64("caller", claims.UserID), logging.PatientID(patientID))
		return echo.NewHTTPError(http.StatusForbidden, msgForbidden)
	}

	records, err := s.Store.RecordsByPatient(c.Request().Context(), patientID)
	if err != nil {
		return err
	}
	out := make([]api.MedicalRecord, 0, len(records))
	for _, r := range records {
		out = append(out, api.MedicalRecord{RecordID: r.RecordID, RegID: r.RegID, PatientID: r.PatientID, Diagnosis: r.Diagnosis})
	}
	return ok(c, out)
}

func (s *APIServer) handleAdminUsers(c echo.Context) error {
	users, err := s.Store.StaffUsers(c.Request().Context())
	if err != nil {
		return err
	}
	out := make([]api.StaffUser, 0, len(users))
	for _, u := range users {
		out = append(out, api.StaffUser{UserID: u.UserID, Username: u.Username, RealName: u.RealName, Role: u.Role})
	}
	return ok(c, api.UserPage{List: out, Total: int64(len(out))})
}

func queryOr(c echo.Context, name, def string) string {
	if v := c.QueryParam(name); v != "" {
		return v
	}
	return def
}

// slotExpired applies the backend's cutoffs: past dates are closed, AM
// slots close at 12:00 and PM slots at 18:00 on the day. ER never closes.
func slotExpired(sc models.Schedule, now time.Time) (bool, string) {
	day, err := time.ParseInLocation(dateLayout, sc.ScheduleDate, now.Location())
	if err != nil {
		return false, ""
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	switch {
	case day.Before(today):
		if sc.ShiftType == db.ShiftER {
			return false, ""
		}
		return true, msgPastDate
	case day.After(today):
		return false, ""
	}

	switch sc.ShiftType {
	case db.ShiftAM:
		if now.Hour() >= 12 {
			return true, msgExpiredAM
		}
	case db.ShiftPM:
		if now.Hour() >= 18 {
			return true, msgExpiredPM
		}
	}
	return false, ""
}
