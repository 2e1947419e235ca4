package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"mfaguard/api/middleware"
	"mfaguard/internal/dto"
	"mfaguard/internal/entity"
	"mfaguard/internal/service"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// MFAOperations is implemented by *service.MFAService.
type MFAOperations interface {
	BeginTOTPSetup(ctx context.Context, user service.UserIdentity, meta service.RequestMeta) (*service.SetupResult, error)
	ConfirmTOTPSetup(ctx context.Context, user service.UserIdentity, code string, meta service.RequestMeta) error
	DisableMFA(ctx context.Context, user service.UserIdentity, password string, meta service.RequestMeta) error
	GetOrRegenerateRecoveryCodes(ctx context.Context, user service.UserIdentity, regenerate bool, meta service.RequestMeta) (*service.RecoveryCodesResult, error)
	RedeemRecoveryCode(ctx context.Context, user service.UserIdentity, code string, meta service.RequestMeta) (int64, error)
	VerifyChallenge(ctx context.Context, challengeToken string, code string, meta service.RequestMeta) (*service.ChallengeResult, error)
	Status(ctx context.Context, user service.UserIdentity) (*service.Status, error)
	QueryAudit(ctx context.Context, user service.UserIdentity) ([]entity.AuditLog, error)
}

var _ MFAOperations = (*service.MFAService)(nil)

type MFAHandler struct {
	Service  MFAOperations
	Validate *validator.Validate
	Logger   logrus.FieldLogger
}

func NewMFAHandler(svc MFAOperations, validate *validator.Validate, logger logrus.FieldLogger) *MFAHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MFAHandler{
		Service:  svc,
		Validate: validate,
		Logger:   logger,
	}
}

func (h *MFAHandler) SetupTOTP(c echo.Context) error {
	user, ok := middleware.IdentityFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, errors.New("unauthorized"))
	}
	var req struct{}
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, errInvalidBody)
	}
	result, err := h.Service.BeginTOTPSetup(c.Request().Context(), user, requestMeta(c))
	if err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.SetupTOTPResponseFromResult(result))
}

func (h *MFAHandler) ConfirmTOTP(c echo.Context) error {
	user, ok := middleware.IdentityFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, errors.New("unauthorized"))
	}
	var req dto.ConfirmTOTPRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, errInvalidBody)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, errors.New("a 6 digit code is required"))
	}
	if err := h.Service.ConfirmTOTPSetup(c.Request().Context(), user, req.Code, requestMeta(c)); err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.SuccessResponse{
		Success: true,
		Message: "Two-factor authentication enabled",
	})
}

func (h *MFAHandler) Disable(c echo.Context) error {
	user, ok := middleware.IdentityFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, errors.New("unauthorized"))
	}
	var req dto.DisableMFARequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, errInvalidBody)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, errors.New("password is required"))
	}
	if err := h.Service.DisableMFA(c.Request().Context(), user, req.Password, requestMeta(c)); err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.SuccessResponse{
		Success: true,
		Message: "Two-factor authentication disabled",
	})
}

// RecoveryCodes serves GET and POST. Only POST ({"regenerate": true}) may
// replace the batch.
func (h *MFAHandler) RecoveryCodes(c echo.Context) error {
	user, ok := middleware.IdentityFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, errors.New("unauthorized"))
	}
	var req dto.RecoveryCodesRequest
	if c.Request().Method == http.MethodGet {
		if regenerate, _ := strconv.ParseBool(c.QueryParam("regenerate")); regenerate {
			c.Response().Header().Set(echo.HeaderAllow, http.MethodPost)
			return writeError(c, http.StatusMethodNotAllowed, errors.New("use POST to regenerate recovery codes"))
		}
	} else if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, errInvalidBody)
	}
	result, err := h.Service.GetOrRegenerateRecoveryCodes(c.Request().Context(), user, req.Regenerate, requestMeta(c))
	if err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.RecoveryCodesResponse{
		Success: true,
		Codes:   result.Codes,
		Message: result.Message,
	})
}

func (h *MFAHandler) RedeemRecoveryCode(c echo.Context) error {
	user, ok := middleware.IdentityFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, errors.New("unauthorized"))
	}
	var req dto.RedeemRecoveryCodeRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, errInvalidBody)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, errors.New("code is required"))
	}
	remaining, err := h.Service.RedeemRecoveryCode(c.Request().Context(), user, req.Code, requestMeta(c))
	if err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.RedeemRecoveryCodeResponse{Success: true, Remaining: remaining})
}

func (h *MFAHandler) AuditLog(c echo.Context) error {
	user, ok := middleware.IdentityFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, errors.New("unauthorized"))
	}
	logs, err := h.Service.QueryAudit(c.Request().Context(), user)
	if err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.AuditLogsResponseFromEntities(logs))
}

func (h *MFAHandler) Status(c echo.Context) error {
	user, ok := middleware.IdentityFromContext(c)
	if !ok {
		return writeError(c, http.StatusUnauthorized, errors.New("unauthorized"))
	}
	status, err := h.Service.Status(c.Request().Context(), user)
	if err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.StatusResponseFromResult(status))
}

// VerifyChallenge is unauthenticated; the challenge token names the user.
func (h *MFAHandler) VerifyChallenge(c echo.Context) error {
	var req dto.ChallengeVerifyRequest
	if err := decodeJSON(c, &req); err != nil {
		return writeError(c, http.StatusBadRequest, errInvalidBody)
	}
	if err := h.validate(req); err != nil {
		return writeError(c, http.StatusBadRequest, errors.New("mfaToken and code are required"))
	}
	result, err := h.Service.VerifyChallenge(c.Request().Context(), req.MFAToken, req.Code, requestMeta(c))
	if err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, dto.ChallengeVerifyResponse{
		Success:                true,
		UserID:                 result.UserID,
		Factor:                 string(result.Factor),
		RecoveryCodesRemaining: result.RecoveryCodesRemaining,
	})
}

func (h *MFAHandler) validate(payload any) error {
	if h.Validate == nil {
		return nil
	}
	return h.Validate.Struct(payload)
}
