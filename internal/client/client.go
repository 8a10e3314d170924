// Package client is a thin HTTP client for the HIS backend API.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/tinyhis/regops/internal/api"
	"github.com/tinyhis/regops/internal/auth"
	"github.com/tinyhis/regops/internal/logging"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	DefaultTimeout = 10 * time.Second
	dateLayout     = "2006-01-02"
	snippetLen     = 256
	maxBodyBytes   = 4 << 20
)

type Client struct {
	BaseURL string
	Token   string

	http   *http.Client
	logger *zap.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the underlying transport client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithTimeout bounds every request made by the client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		h := *c.http
		h.Timeout = d
		c.http = &h
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func WithToken(token string) Option {
	return func(c *Client) { c.Token = token }
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithToken returns a copy of the client authenticating as token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.Token = token
	return &cp
}

func (c *Client) StaffLogin(ctx context.Context, username, password string) (*Result[api.LoginResponse], error) {
	return do[api.LoginResponse](ctx, c, http.MethodPost, "/auth/staff/login", nil,
		api.LoginRequest{Username: username, Password: password})
}

func (c *Client) PatientLogin(ctx context.Context, phone, password string) (*Result[api.LoginResponse], error) {
	return do[api.LoginResponse](ctx, c, http.MethodPost, "/auth/patient/login", nil,
		api.LoginRequest{Username: phone, Password: password})
}

func (c *Client) PatientRegister(ctx context.Context, req api.PatientRegisterRequest) (*Result[api.PatientInfo], error) {
	return do[api.PatientInfo](ctx, c, http.MethodPost, "/auth/patient/register", nil, req)
}

func (c *Client) DemoInfo(ctx context.Context) (*Result[api.DemoInfo], error) {
	return do[api.DemoInfo](ctx, c, http.MethodGet, "/auth/demo-info", nil, nil)
}

func (c *Client) Departments(ctx context.Context) (*Result[[]api.Department], error) {
	return do[[]api.Department](ctx, c, http.MethodGet, "/schedule/departments", nil, nil)
}

// Schedules lists a department's schedules between start and end inclusive.
func (c *Client) Schedules(ctx context.Context, deptID int64, start, end time.Time) (*Result[[]api.Schedule], error) {
	q := url.Values{}
	q.Set("deptId", strconv.FormatInt(deptID, 10))
	q.Set("startDate", start.Format(dateLayout))
	q.Set("endDate", end.Format(dateLayout))
	return do[[]api.Schedule](ctx, c, http.MethodGet, "/schedule/list", q, nil)
}

func (c *Client) CreateRegistration(ctx context.Context, patientID, scheduleID int64) (*Result[api.Registration], error) {
	return do[api.Registration](ctx, c, http.MethodPost, "/registration/create", nil,
		api.RegistrationRequest{PatientID: patientID, ScheduleID: scheduleID})
}

func (c *Client) CancelRegistration(ctx context.Context, regID int64) (*Result[bool], error) {
	return do[bool](ctx, c, http.MethodPost, "/registration/cancel/"+strconv.FormatInt(regID, 10), nil, nil)
}

func (c *Client) PatientRecords(ctx context.Context, patientID int64) (*Result[[]api.MedicalRecord], error) {
	return do[[]api.MedicalRecord](ctx, c, http.MethodGet, "/emr/patient/"+strconv.FormatInt(patientID, 10), nil, nil)
}

func (c *Client) AdminUsers(ctx context.Context) (*Result[api.UserPage], error) {
	return do[api.UserPage](ctx, c, http.MethodGet, "/admin/users", nil, nil)
}

// do performs one request. A transport failure is returned as an error;
// any HTTP response, whatever its status or body, becomes a Result.
func do[T any](ctx context.Context, c *Client, method, path string, query url.Values, body any) (*Result[T], error) {
	u := c.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", path, err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", auth.BearerHeader(c.Token))
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", path, err)
	}

	c.logger.Debug("request done",
		logging.Method(method),
		logging.Path(path),
		logging.Status(resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	res := &Result[T]{StatusCode: resp.StatusCode, Body: raw}

	var env api.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Warn("response not JSON",
			logging.Path(path),
			logging.Status(resp.StatusCode),
			zap.String("body", snippet(raw)))
	} else {
		res.Envelope = &env
	}

	switch {
	case resp.StatusCode != http.StatusOK:
		res.Kind = KindHTTPError
	case res.Envelope == nil:
		res.Kind = KindNotJSON
	case !res.Envelope.OK():
		res.Kind = KindAppError
	default:
		res.Kind = KindSuccess
		if len(env.Data) > 0 && string(env.Data) != "null" {
			if err := json.Unmarshal(env.Data, &res.Data); err != nil {
				res.DecodeErr = fmt.Errorf("decode %s data: %w", path, err)
				c.logger.Warn("unexpected data shape",
					logging.Path(path),
					zap.Error(err),
					zap.String("data", snippet(env.Data)))
			}
		}
	}

	return res, nil
}

func snippet(b []byte) string {
	if len(b) > snippetLen {
		b = b[:snippetLen]
	}
	return string(b)
}
