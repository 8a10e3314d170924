package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/tinyhis/regops/internal/auth"
	"github.com/tinyhis/regops/internal/logging"
)

const (
	roleAdmin   = auth.RoleAdmin
	rolePatient = auth.RolePatient

	claimsKey = "claims"
)

func (s *APIServer) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}
		s.Logger.Debug("request",
			logging.Method(c.Request().Method),
			logging.Path(c.Request().URL.Path),
			logging.Status(c.Response().Status),
			zap.Duration("elapsed", time.Since(start)))
		return nil
	}
}

func (s *APIServer) recoverer(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				s.Logger.Error("panic in handler", zap.Any("panic", r), logging.Path(c.Path()))
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return next(c)
	}
}

// authenticate verifies the bearer token and stores its claims.
func (s *APIServer) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token, err := auth.ParseBearer(c.Request().Header.Get("Authorization"))
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, msgUnauthorized)
		}
		claims, err := auth.Verify(s.Secret, token)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, msgUnauthorized)
		}
		c.Set(claimsKey, claims)
		return next(c)
	}
}

func claimsFrom(c echo.Context) *auth.Claims {
	claims, _ := c.Get(claimsKey).(*auth.Claims)
	return claims
}

// requireRole refuses callers whose token carries none of roles.
func requireRole(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			claims := claimsFrom(c)
			if claims == nil {
				return echo.NewHTTPError(http.StatusUnauthorized, msgUnauthorized)
			}
			for _, r := range roles {
				if strings.EqualFold(claims.Role, r) {
					return next(c)
				}
			}
			return echo.NewHTTPError(http.StatusForbidden, msgForbidden)
		}
	}
}
