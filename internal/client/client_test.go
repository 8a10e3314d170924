package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinyhis/regops/internal/api"
)

func newTestServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(srv.URL + "/")
}

func writeBody(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}

func TestStaffLoginSuccess(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/staff/login", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req api.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "admin", req.Username)
		assert.Equal(t, "admin123", req.Password)

		writeBody(w, http.StatusOK, `{"code":200,"message":"ok","data":{"token":"t0k","userId":1,"role":"ADMIN"}}`)
	})

	res, err := c.StaffLogin(context.Background(), "admin", "admin123")
	require.NoError(t, err)
	require.True(t, res.OK())
	assert.NoError(t, res.Err())
	assert.Equal(t, "t0k", res.Data.Token)
	assert.Equal(t, int64(1), res.Data.UserID)
}

func TestResultKinds(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind Kind
		wantCode int
		wantErr  string
	}{
		{"success", 200, `{"code":200,"message":"ok","data":true}`, KindSuccess, 200, ""},
		{"app error", 200, `{"code":500,"message":"就诊中或已完成的挂号无法取消"}`, KindAppError, 500, "就诊中或已完成的挂号无法取消"},
		{"app error no message", 200, `{"code":400}`, KindAppError, 400, "app code 400"},
		{"http error json", 403, `{"code":403,"message":"forbidden"}`, KindHTTPError, 403, `HTTP 403 {"code":403,"message":"forbidden"}`},
		{"http error html", 502, `<html>bad gateway</html>`, KindHTTPError, 0, "HTTP 502 <html>bad gateway</html>"},
		{"not json", 200, `<html>nginx</html>`, KindNotJSON, 0, "non-JSON response: <html>nginx</html>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeBody(w, tt.status, tt.body)
			})

			res, err := c.CancelRegistration(context.Background(), 9)
			require.NoError(t, err)
			assert.Equal(t, tt.wantKind, res.Kind)
			assert.Equal(t, tt.wantCode, res.Code())
			if tt.wantErr == "" {
				assert.NoError(t, res.Err())
				assert.True(t, res.Data)
				return
			}
			var apiErr *APIError
			require.True(t, errors.As(res.Err(), &apiErr))
			assert.Equal(t, tt.wantErr, apiErr.Error())
		})
	}
}

func TestSnippetTruncates(t *testing.T) {
	long := strings.Repeat("x", 1000)
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusInternalServerError, long)
	})

	res, err := c.AdminUsers(context.Background())
	require.NoError(t, err)
	assert.Len(t, res.Snippet(), snippetLen)
	assert.Len(t, res.Body, 1000)
}

func TestBearerTokenSent(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emr/patient/77", r.URL.Path)
		if r.Header.Get("Authorization") != "Bearer patient-a" {
			writeBody(w, http.StatusUnauthorized, `{"code":401,"message":"unauthorized"}`)
			return
		}
		writeBody(w, http.StatusOK, `{"code":200,"data":[{"recordId":1,"regId":2,"patientId":77}]}`)
	})

	res, err := c.PatientRecords(context.Background(), 77)
	require.NoError(t, err)
	assert.True(t, res.Forbidden())

	res, err = c.WithToken("patient-a").PatientRecords(context.Background(), 77)
	require.NoError(t, err)
	require.True(t, res.OK())
	require.Len(t, res.Data, 1)
	assert.Equal(t, int64(77), res.Data[0].PatientID)
	assert.Empty(t, c.Token, "WithToken must not mutate the receiver")
}

func TestSchedulesQuery(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "3", q.Get("deptId"))
		assert.Equal(t, "2026-10-15", q.Get("startDate"))
		assert.Equal(t, "2026-10-15", q.Get("endDate"))
		writeBody(w, http.StatusOK, `{"code":200,"data":[{"scheduleId":11,"deptId":3,"shift":"ER","maxQuota":10,"currentCount":4,"quotaLeft":6,"expired":false}]}`)
	})

	day := time.Date(2026, 10, 15, 9, 0, 0, 0, time.Local)
	res, err := c.Schedules(context.Background(), 3, day, day)
	require.NoError(t, err)
	require.True(t, res.OK())
	require.Len(t, res.Data, 1)
	assert.Equal(t, "ER", res.Data[0].ShiftCode())
	assert.Equal(t, 6, res.Data[0].QuotaLeft)
}

func TestTransportErrorAndTimeout(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	c := New(srv.URL, WithTimeout(50*time.Millisecond))
	_, err := c.CreateRegistration(context.Background(), 1, 2)
	require.Error(t, err)

	_, err = New("http://127.0.0.1:1").Departments(context.Background())
	assert.Error(t, err)
}

func TestDecodeMismatchStaysSuccess(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeBody(w, http.StatusOK, `{"code":200,"data":{"regId":"x"}}`)
	})

	res, err := c.CreateRegistration(context.Background(), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, KindSuccess, res.Kind)
	assert.True(t, res.OK())
	require.Error(t, res.DecodeErr)
	assert.Contains(t, res.DecodeErr.Error(), "/registration/create")
}
