// Package server implements a local stand-in for the HIS backend API on
// top of the sqlite store.
package server

import (
	"errors"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/tinyhis/regops/internal/api"
	"github.com/tinyhis/regops/internal/db"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Envelope codes used besides api.CodeOK.
const (
	codeBusiness   = 500
	codeBadRequest = 400

	msgUnauthorized = "unauthorized"
	msgForbidden    = "permission denied"
)

// APIServer serves the backend contract under /api.
type APIServer struct {
	Store    *db.Store
	Secret   []byte
	TokenTTL time.Duration
	Logger   *zap.Logger
	// Now is the clock used for slot expiry and token issue times.
	Now func() time.Time
}

func (s *APIServer) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Handler returns the HTTP handler for the API server.
func (s *APIServer) Handler() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.errorHandler
	e.Use(s.requestLogger, s.recoverer)

	g := e.Group("/api")

	g.POST("/auth/staff/login", s.handleStaffLogin)
	g.POST("/auth/patient/register", s.handlePatientRegister)
	g.POST("/auth/patient/login", s.handlePatientLogin)
	g.GET("/auth/demo-info", s.handleDemoInfo)

	g.GET("/schedule/departments", s.handleDepartments)
	g.GET("/schedule/list", s.handleSchedules)

	authed := g.Group("", s.authenticate)
	authed.POST("/registration/create", s.handleCreateRegistration, requireRole(roleAdmin, rolePatient))
	authed.POST("/registration/cancel/:regId", s.handleCancelRegistration, requireRole(roleAdmin, rolePatient))
	authed.GET("/emr/patient/:patientId", s.handlePatientRecords)
	authed.GET("/admin/users", s.handleAdminUsers, requireRole(roleAdmin))

	return e
}

func ok(c echo.Context, data any) error {
	body, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return writeJSON(c, http.StatusOK, api.Envelope{Code: api.CodeOK, Message: "success", Data: body})
}

// fail writes an application refusal: HTTP 200 carrying a non-200 code, as
// the backend does for business errors.
func fail(c echo.Context, msg string) error {
	return writeJSON(c, http.StatusOK, api.Envelope{Code: codeBusiness, Message: msg})
}

func badRequest(c echo.Context, msg string) error {
	return writeJSON(c, http.StatusBadRequest, api.Envelope{Code: codeBadRequest, Message: msg})
}

func writeJSON(c echo.Context, status int, env api.Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return c.JSONBlob(status, b)
}

// errorHandler renders echo and handler errors as envelopes with a
// matching HTTP status.
func (s *APIServer) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	msg := "internal error"
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if m, isString := he.Message.(string); isString {
			msg = m
		} else {
			msg = http.StatusText(status)
		}
	} else {
		s.Logger.Error("handler failed", zap.String("path", c.Path()), zap.Error(err))
	}

	if werr := writeJSON(c, status, api.Envelope{Code: status, Message: msg}); werr != nil {
		s.Logger.Warn("write error response", zap.Error(werr))
	}
}

// storeMessage maps store errors onto the backend's business messages.
func storeMessage(err error) (string, bool) {
	switch {
	case errors.Is(err, db.ErrQuotaExhausted):
		return "预约失败，号源不足", true
	case errors.Is(err, db.ErrAlreadyBooked):
		return "您已预约该时段", true
	case errors.Is(err, db.ErrNotCancellable), errors.Is(err, db.ErrAlreadyCancelled):
		return "就诊中或已完成的挂号无法取消", true
	case errors.Is(err, db.ErrDuplicatePhone):
		return "该手机号已注册", true
	case errors.Is(err, db.ErrNotFound):
		return "记录不存在", true
	default:
		return "", false
	}
}
