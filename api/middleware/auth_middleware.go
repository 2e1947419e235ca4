package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"mfaguard/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// IdentityResolver is satisfied by service.MFAService.
type IdentityResolver interface {
	Resolve(ctx context.Context, token string) (*service.UserIdentity, error)
}

type AuthMiddleware struct {
	Identity IdentityResolver
	Logger   logrus.FieldLogger
}

func (m AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if m.Identity == nil {
			return unauthorized(c)
		}
		token := extractBearerToken(c.Request())
		if token == "" {
			return unauthorized(c)
		}
		identity, err := m.Identity.Resolve(c.Request().Context(), token)
		if err != nil {
			if !errors.Is(err, service.ErrUnauthorized) && m.Logger != nil {
				m.Logger.WithError(err).Error("identity resolution failed")
			}
			return unauthorized(c)
		}
		SetIdentity(c, *identity)
		return next(c)
	}
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{"message": "unauthorized"})
}

func extractBearerToken(r *http.Request) string {
	authorization := r.Header.Get("Authorization")
	if authorization == "" {
		return ""
	}
	parts := strings.SplitN(authorization, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
