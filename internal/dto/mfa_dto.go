package dto

import (
	"encoding/json"
	"time"

	"mfaguard/internal/entity"
	"mfaguard/internal/service"
)

type SetupTOTPResponse struct {
	Secret        string `json:"secret"`
	OTPAuthURL    string `json:"otpauthUrl"`
	QRCodeDataURL string `json:"qrCodeDataUrl,omitempty"`
}

type ConfirmTOTPRequest struct {
	Code string `json:"code" validate:"required,numeric,len=6"`
}

type DisableMFARequest struct {
	Password string `json:"password" validate:"required"`
}

type RecoveryCodesRequest struct {
	Regenerate bool `json:"regenerate"`
}

type RecoveryCodesResponse struct {
	Success bool     `json:"success"`
	Codes   []string `json:"codes"`
	Message string   `json:"message,omitempty"`
}

type RedeemRecoveryCodeRequest struct {
	Code string `json:"code" validate:"required,max=32"`
}

type RedeemRecoveryCodeResponse struct {
	Success   bool  `json:"success"`
	Remaining int64 `json:"remaining"`
}

type ChallengeVerifyRequest struct {
	MFAToken string `json:"mfaToken" validate:"required"`
	Code     string `json:"code" validate:"required,max=32"`
}

type ChallengeVerifyResponse struct {
	Success                bool   `json:"success"`
	UserID                 string `json:"userId"`
	Factor                 string `json:"factor"`
	RecoveryCodesRemaining int64  `json:"recoveryCodesRemaining"`
}

type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type StatusResponse struct {
	Method                 string     `json:"method"`
	IsEnabled              bool       `json:"isEnabled"`
	Pending                bool       `json:"pending"`
	EnabledAt              *time.Time `json:"enabledAt,omitempty"`
	RecoveryCodesRemaining int64      `json:"recoveryCodesRemaining"`
}

type AuditLogResponse struct {
	Action    string          `json:"action"`
	Details   json.RawMessage `json:"details"`
	CreatedAt time.Time       `json:"created_at"`
}

type AuditLogsResponse struct {
	Success bool               `json:"success"`
	Logs    []AuditLogResponse `json:"logs"`
}

type ErrorResponse struct {
	Message           string `json:"message"`
	RetryAfterSeconds int64  `json:"retryAfterSeconds,omitempty"`
}

func SetupTOTPResponseFromResult(result *service.SetupResult) SetupTOTPResponse {
	return SetupTOTPResponse{
		Secret:        result.Secret,
		OTPAuthURL:    result.OTPAuthURL,
		QRCodeDataURL: result.QRCodeDataURL,
	}
}

func StatusResponseFromResult(status *service.Status) StatusResponse {
	return StatusResponse{
		Method:                 status.Method,
		IsEnabled:              status.IsEnabled,
		Pending:                status.Pending,
		EnabledAt:              status.EnabledAt,
		RecoveryCodesRemaining: status.RecoveryCodesRemaining,
	}
}

func AuditLogsResponseFromEntities(logs []entity.AuditLog) AuditLogsResponse {
	responses := make([]AuditLogResponse, 0, len(logs))
	for i := range logs {
		details := json.RawMessage(logs[i].Details)
		if len(details) == 0 {
			details = json.RawMessage("{}")
		}
		responses = append(responses, AuditLogResponse{
			Action:    string(logs[i].Action),
			Details:   details,
			CreatedAt: logs[i].CreatedAt,
		})
	}
	return AuditLogsResponse{Success: true, Logs: responses}
}
