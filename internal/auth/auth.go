// Package auth handles the backend's bearer tokens.
package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const bearerPrefix = "Bearer "

// Roles and user types carried in token claims.
const (
	RoleAdmin   = "ADMIN"
	RolePatient = "PATIENT"

	UserTypeStaff   = "staff"
	UserTypePatient = "patient"
)

var (
	ErrMissingToken       = errors.New("missing bearer token")
	ErrInvalidTokenFormat = errors.New("invalid bearer token format")
)

// Claims mirrors what the backend puts into its tokens.
type Claims struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Role     string `json:"role"`
	UserType string `json:"userType"`
	jwt.RegisteredClaims
}

// IsAdmin reports whether the claims belong to an admin staff account.
func (c *Claims) IsAdmin() bool {
	return c.UserType == UserTypeStaff && strings.EqualFold(c.Role, RoleAdmin)
}

// ExpiresIn returns the remaining lifetime relative to now, or zero when the
// token carries no expiry.
func (c *Claims) ExpiresIn(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return c.ExpiresAt.Sub(now)
}

// Sign issues an HS256 token for the given identity.
func Sign(secret []byte, userID int64, username, role, userType string, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		UserID:   userID,
		Username: username,
		Role:     role,
		UserType: userType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Verify checks the signature and expiry of a token and returns its claims.
func Verify(secret []byte, token string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	return &claims, nil
}

// Inspect decodes the claims of a token without verifying its signature.
// The tools never hold the backend secret; this is for logging only.
func Inspect(token string) (*Claims, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, err
	}
	return &claims, nil
}

// ParseBearer extracts the token from an Authorization header value.
func ParseBearer(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}
	if !strings.HasPrefix(header, bearerPrefix) {
		return "", ErrInvalidTokenFormat
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	if token == "" {
		return "", ErrInvalidTokenFormat
	}
	return token, nil
}

// BearerHeader formats a token as an Authorization header value.
func BearerHeader(token string) string {
	return bearerPrefix + token
}
