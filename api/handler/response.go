package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"mfaguard/api/middleware"
	"mfaguard/internal/dto"
	"mfaguard/internal/service"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

var (
	errInvalidBody = errors.New("invalid request body")
	errInternal    = errors.New("internal server error")
)

// decodeJSON accepts an empty body as "{}".
func decodeJSON(c echo.Context, target any) error {
	body := c.Request().Body
	if body == nil {
		return nil
	}
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func writeError(c echo.Context, status int, err error) error {
	return c.JSON(status, dto.ErrorResponse{Message: err.Error()})
}

func (h *MFAHandler) writeServiceError(c echo.Context, err error) error {
	var limited *service.RateLimitedError
	if errors.As(err, &limited) {
		seconds := limited.RetryAfterSeconds()
		c.Response().Header().Set("Retry-After", strconv.FormatInt(seconds, 10))
		return c.JSON(http.StatusTooManyRequests, dto.ErrorResponse{
			Message:           service.ErrRateLimited.Error(),
			RetryAfterSeconds: seconds,
		})
	}

	switch {
	case errors.Is(err, service.ErrUnauthorized):
		return writeError(c, http.StatusUnauthorized, service.ErrUnauthorized)
	case errors.Is(err, service.ErrInvalidInput):
		return writeError(c, http.StatusBadRequest, service.ErrInvalidInput)
	case errors.Is(err, service.ErrAlreadyEnabled):
		return writeError(c, http.StatusBadRequest, service.ErrAlreadyEnabled)
	case errors.Is(err, service.ErrNotEnabled):
		return writeError(c, http.StatusBadRequest, service.ErrNotEnabled)
	case errors.Is(err, service.ErrNotPending):
		return writeError(c, http.StatusBadRequest, service.ErrNotPending)
	case errors.Is(err, service.ErrInvalidCredential):
		return writeError(c, http.StatusBadRequest, service.ErrInvalidCredential)
	case errors.Is(err, service.ErrInvalidCode):
		return writeError(c, http.StatusBadRequest, service.ErrInvalidCode)
	case errors.Is(err, service.ErrMFANotConfigured):
		h.logger(c).WithError(err).Error("mfa dependency missing")
		return writeError(c, http.StatusFailedDependency, service.ErrMFANotConfigured)
	case errors.Is(err, service.ErrIdentityTimeout):
		h.logger(c).WithError(err).Warn("identity store timeout")
		return writeError(c, http.StatusServiceUnavailable, errors.New("identity service unavailable, try again"))
	}

	h.logger(c).WithError(err).Error("mfa request failed")
	return writeError(c, http.StatusInternalServerError, errInternal)
}

func (h *MFAHandler) logger(c echo.Context) logrus.FieldLogger {
	fields := logrus.Fields{
		"method": c.Request().Method,
		"uri":    c.Request().RequestURI,
	}
	if identity, ok := middleware.IdentityFromContext(c); ok {
		fields["user_id"] = identity.ID.String()
	}
	return h.Logger.WithFields(fields)
}

func requestMeta(c echo.Context) service.RequestMeta {
	return service.RequestMeta{
		IPAddress: stringPtr(c.RealIP()),
		UserAgent: stringPtr(c.Request().UserAgent()),
	}
}

func stringPtr(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}
