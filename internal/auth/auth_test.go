package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("tinyhis-test-secret-tinyhis-test-secret")

func TestSignVerifyRoundTrip(t *testing.T) {
	now := time.Now()
	tok, err := Sign(testSecret, 7, "admin", RoleAdmin, UserTypeStaff, time.Hour, now)
	require.NoError(t, err)

	claims, err := Verify(testSecret, tok)
	require.NoError(t, err)
	assert.Equal(t, int64(7), claims.UserID)
	assert.Equal(t, "admin", claims.Username)
	assert.True(t, claims.IsAdmin())
	assert.InDelta(t, time.Hour.Seconds(), claims.ExpiresIn(now).Seconds(), 1)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	tok, err := Sign(testSecret, 1, "15500001000", RolePatient, UserTypePatient, time.Hour, time.Now())
	require.NoError(t, err)

	_, err = Verify([]byte("another-secret-another-secret-xx"), tok)
	assert.Error(t, err)
}

func TestVerifyRejectsExpired(t *testing.T) {
	tok, err := Sign(testSecret, 1, "p", RolePatient, UserTypePatient, time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, err = Verify(testSecret, tok)
	assert.Error(t, err)
}

func TestInspectWithoutSecret(t *testing.T) {
	tok, err := Sign(testSecret, 42, "15500001001", RolePatient, UserTypePatient, time.Hour, time.Now())
	require.NoError(t, err)

	claims, err := Inspect(tok)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.False(t, claims.IsAdmin())

	_, err = Inspect("not-a-jwt")
	assert.Error(t, err)
}

func TestParseBearer(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr error
	}{
		{"valid", "Bearer abc.def.ghi", "abc.def.ghi", nil},
		{"empty", "", "", ErrMissingToken},
		{"wrong scheme", "Basic abc", "", ErrInvalidTokenFormat},
		{"blank token", "Bearer   ", "", ErrInvalidTokenFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseBearer(tt.header)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBearerHeader(t *testing.T) {
	got, err := ParseBearer(BearerHeader("xyz"))
	require.NoError(t, err)
	assert.Equal(t, "xyz", got)
}
