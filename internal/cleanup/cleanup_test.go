package cleanup

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tinyhis/regops/internal/api"
	"github.com/tinyhis/regops/internal/auth"
	"github.com/tinyhis/regops/internal/client"
	"github.com/tinyhis/regops/internal/db"
	"github.com/tinyhis/regops/internal/models"
)

func init() {
	color.NoColor = true
}

type fakeStore struct {
	regs    []models.Registration
	listErr error
	purged  int
	planned int
}

func (f *fakeStore) ListRegistrations(context.Context) ([]models.Registration, error) {
	return f.regs, f.listErr
}

func (f *fakeStore) PurgeRegistrations(context.Context) ([]db.PurgeStep, error) {
	f.purged++
	return []db.PurgeStep{{Table: "registration", Action: db.ActionDelete, Rows: int64(len(f.regs))}}, nil
}

func (f *fakeStore) PlanPurge(context.Context) ([]db.PurgeStep, error) {
	f.planned++
	return []db.PurgeStep{{Table: "registration", Action: db.ActionDelete, Rows: int64(len(f.regs))}}, nil
}

type fakeAuth struct {
	result *client.Result[api.LoginResponse]
	err    error
	calls  int
}

func (f *fakeAuth) StaffLogin(context.Context, string, string) (*client.Result[api.LoginResponse], error) {
	f.calls++
	return f.result, f.err
}

type fakeCanceller struct {
	token  string
	called []int64
	fail   map[int64]*client.Result[bool]
}

func (f *fakeCanceller) CancelRegistration(_ context.Context, regID int64) (*client.Result[bool], error) {
	f.called = append(f.called, regID)
	if res, ok := f.fail[regID]; ok {
		return res, nil
	}
	return &client.Result[bool]{Kind: client.KindSuccess, StatusCode: 200, Data: true}, nil
}

func adminLogin(t *testing.T) *fakeAuth {
	t.Helper()
	tok, err := auth.Sign([]byte("0123456789abcdef0123456789abcdef"), 1, "admin", auth.RoleAdmin, auth.UserTypeStaff, time.Hour, time.Now())
	require.NoError(t, err)
	return &fakeAuth{result: &client.Result[api.LoginResponse]{
		Kind: client.KindSuccess, StatusCode: 200, Data: api.LoginResponse{Token: tok},
	}}
}

func newCleaner(store Store, a Authenticator, canc *fakeCanceller, dryRun bool, out *bytes.Buffer) *Cleaner {
	return &Cleaner{
		store: store,
		auth:  a,
		canceller: func(token string) Canceller {
			canc.token = token
			return canc
		},
		opts:   Options{AdminUser: "admin", AdminPass: "admin123", DryRun: dryRun},
		out:    out,
		logger: zap.NewNop(),
		now:    time.Now,
	}
}

func appError(msg string) *client.Result[bool] {
	return &client.Result[bool]{Kind: client.KindAppError, StatusCode: 200, Envelope: &api.Envelope{Code: 500, Message: msg}}
}

func TestCancelSkipsNonCancellable(t *testing.T) {
	store := &fakeStore{regs: []models.Registration{
		{RegID: 1, Status: 0}, {RegID: 2, Status: 1}, {RegID: 3, Status: 2},
		{RegID: 4, Status: 3}, {RegID: 5, Status: 4}, {RegID: 6, Status: 5},
	}}
	canc := &fakeCanceller{}
	var out bytes.Buffer

	sum, err := newCleaner(store, adminLogin(t), canc, false, &out).Cancel(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int64{1, 2, 3}, canc.called)
	assert.NotEmpty(t, canc.token)
	assert.Equal(t, 6, sum.Total)
	assert.Equal(t, 3, sum.Cancelled)
	assert.Equal(t, 3, sum.Skipped)
	assert.Zero(t, sum.Failed)
	assert.Contains(t, out.String(), "Found 6 registration rows")
}

func TestCancelFailuresContinue(t *testing.T) {
	store := &fakeStore{regs: []models.Registration{{RegID: 1}, {RegID: 2}, {RegID: 3}, {RegID: 4}}}
	canc := &fakeCanceller{fail: map[int64]*client.Result[bool]{
		1: appError("挂号不存在"),
		2: appError("挂号不存在"),
		3: {Kind: client.KindHTTPError, StatusCode: 502, Body: []byte("bad gateway")},
	}}
	var out bytes.Buffer

	sum, err := newCleaner(store, adminLogin(t), canc, false, &out).Cancel(context.Background())
	require.NoError(t, err)

	assert.Len(t, canc.called, 4)
	assert.Equal(t, 1, sum.Cancelled)
	assert.Equal(t, 3, sum.Failed)
	assert.Equal(t, 2, sum.Reasons.Count("挂号不存在"))
	assert.Equal(t, 1, sum.Reasons.Count("HTTP 502 bad gateway"))

	out.Reset()
	sum.Write(&out)
	report := out.String()
	assert.Contains(t, report, "Cancelled: 1\n")
	assert.Contains(t, report, "Failed to cancel: 3\n")
	assert.Contains(t, report, "Failure reasons:\n  2x -> 挂号不存在\n  1x -> HTTP 502 bad gateway\n")
}

func TestCancelDryRunMakesNoCalls(t *testing.T) {
	store := &fakeStore{regs: []models.Registration{{RegID: 1, Status: 0}, {RegID: 2, Status: 3}, {RegID: 3, Status: 1}}}
	a := adminLogin(t)
	canc := &fakeCanceller{}
	var out bytes.Buffer

	sum, err := newCleaner(store, a, canc, true, &out).Cancel(context.Background())
	require.NoError(t, err)

	assert.Zero(t, a.calls)
	assert.Empty(t, canc.called)
	assert.Equal(t, 2, sum.WouldCancel)
	assert.Equal(t, 1, sum.Skipped)

	out.Reset()
	sum.Write(&out)
	assert.Contains(t, out.String(), "Would cancel: 2")
	assert.NotContains(t, out.String(), "Failed to cancel")
}

func TestCancelEmpty(t *testing.T) {
	a := adminLogin(t)
	var out bytes.Buffer

	sum, err := newCleaner(&fakeStore{}, a, &fakeCanceller{}, false, &out).Cancel(context.Background())
	require.NoError(t, err)
	assert.Zero(t, sum.Total)
	assert.Zero(t, a.calls, "no login for an empty table")
	assert.Equal(t, "Found 0 registration rows\n", out.String())
}

func TestCancelAdminLoginFailure(t *testing.T) {
	store := &fakeStore{regs: []models.Registration{{RegID: 1}}}
	tests := []struct {
		name string
		auth *fakeAuth
	}{
		{"transport", &fakeAuth{err: errors.New("connection refused")}},
		{"bad password", &fakeAuth{result: &client.Result[api.LoginResponse]{
			Kind: client.KindAppError, StatusCode: 200, Envelope: &api.Envelope{Code: 401, Message: "用户名或密码错误"},
		}}},
		{"no token", &fakeAuth{result: &client.Result[api.LoginResponse]{Kind: client.KindSuccess, StatusCode: 200}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			canc := &fakeCanceller{}
			_, err := newCleaner(store, tt.auth, canc, false, &bytes.Buffer{}).Cancel(context.Background())
			assert.ErrorIs(t, err, ErrAdminLogin)
			assert.Empty(t, canc.called)
		})
	}
}

func TestCancelListError(t *testing.T) {
	store := &fakeStore{listErr: errors.New("db down")}
	_, err := newCleaner(store, adminLogin(t), &fakeCanceller{}, false, &bytes.Buffer{}).Cancel(context.Background())
	assert.EqualError(t, err, "db down")
}

func TestPurgeDryRunOnlyPlans(t *testing.T) {
	store := &fakeStore{regs: []models.Registration{{RegID: 1}, {RegID: 2}}}
	var out bytes.Buffer

	report, err := newCleaner(store, adminLogin(t), &fakeCanceller{}, true, &out).Purge(context.Background())
	require.NoError(t, err)
	assert.Zero(t, store.purged)
	assert.Equal(t, 1, store.planned)
	assert.True(t, report.DryRun)
	assert.Equal(t, int64(2), report.Rows())

	report.Write(&out)
	assert.Contains(t, out.String(), "Dry run enabled. Skipping actual deletion.")
}

func TestPurgeAgainstSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := db.Open(ctx, db.Config{Driver: db.DriverSQLite, Name: t.TempDir() + "/his.db"})
	require.NoError(t, err)
	defer store.Close()
	require.NoError(t, store.Migrate(ctx))

	seeded, err := store.SeedDemo(ctx, db.SeedOptions{Date: "2026-10-15", Quota: 3, AdminUser: "admin", AdminPass: "admin123"})
	require.NoError(t, err)
	pid, err := store.CreatePatient(ctx, "TestUser0", "15500001000", "testpass123")
	require.NoError(t, err)
	_, _, err = store.BookRegistration(ctx, pid, seeded.ScheduleIDs[db.ShiftER], time.Now())
	require.NoError(t, err)

	c := New(store, client.New("http://127.0.0.1:1"), Options{}, &bytes.Buffer{}, zap.NewNop())
	report, err := c.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Rows(), "one registration plus one schedule counter")

	report, err = c.Purge(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Rows())
}

// End to end through the HTTP client against a minimal backend.
func TestCancelOverHTTP(t *testing.T) {
	tok, err := auth.Sign([]byte("0123456789abcdef0123456789abcdef"), 1, "admin", auth.RoleAdmin, auth.UserTypeStaff, time.Hour, time.Now())
	require.NoError(t, err)

	var cancelled []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.URL.Path == "/api/auth/staff/login":
			_, _ = w.Write([]byte(`{"code":200,"data":{"token":"` + tok + `","userId":1,"role":"ADMIN"}}`))
		case strings.HasPrefix(r.URL.Path, "/api/registration/cancel/"):
			assert.Equal(t, "Bearer "+tok, r.Header.Get("Authorization"))
			cancelled = append(cancelled, strings.TrimPrefix(r.URL.Path, "/api/registration/cancel/"))
			_, _ = w.Write([]byte(`{"code":200,"message":"success","data":true}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	store := &fakeStore{regs: []models.Registration{{RegID: 10}, {RegID: 11, Status: 4}, {RegID: 12, Status: 2}}}
	c := New(store, client.New(srv.URL+"/api"), Options{AdminUser: "admin", AdminPass: "admin123"}, &bytes.Buffer{}, zap.NewNop())

	sum, err := c.Cancel(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"10", "12"}, cancelled)
	assert.Equal(t, 2, sum.Cancelled)
	assert.Equal(t, 1, sum.Skipped)
}
