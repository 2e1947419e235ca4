package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type AuditAction string

const (
	AuditSetupStarted             AuditAction = "2fa_setup_started"
	AuditEnrolledTOTP             AuditAction = "2fa_enrolled_totp"
	AuditDisabled                 AuditAction = "2fa_disabled"
	AuditRecoveryCodesGenerated   AuditAction = "2fa_recovery_codes_generated"
	AuditRecoveryCodesRegenerated AuditAction = "2fa_recovery_codes_regenerated"
	AuditRecoveryCodeUsed         AuditAction = "2fa_recovery_code_used"
	AuditChallengeFailed          AuditAction = "2fa_challenge_failed"
)

// MFAAuditActions is the allow-list exposed to users querying their history.
var MFAAuditActions = []AuditAction{
	AuditSetupStarted,
	AuditEnrolledTOTP,
	AuditDisabled,
	AuditRecoveryCodesGenerated,
	AuditRecoveryCodesRegenerated,
	AuditRecoveryCodeUsed,
	AuditChallengeFailed,
}

type AuditLog struct {
	ID     uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index"`

	Action  AuditAction `gorm:"type:varchar(64);not null;index"`
	Details datatypes.JSON

	CreatedAt time.Time `gorm:"index"`
}

func (AuditLog) TableName() string {
	return "mfa_audit_logs"
}
