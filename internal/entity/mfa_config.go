package entity

import (
	"time"

	"github.com/google/uuid"
)

type MFAMethod string

const (
	MFAMethodTOTP MFAMethod = "totp"
	MFAMethodSMS  MFAMethod = "sms"
	MFAMethodNone MFAMethod = "none"
)

// MFAConfig holds one row per user. IsEnabled implies TOTPSecret is set when
// Method is totp.
type MFAConfig struct {
	ID     uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null"`

	Method     MFAMethod `gorm:"type:varchar(16);not null"`
	IsEnabled  bool      `gorm:"not null"`
	TOTPSecret *string   `gorm:"column:totp_secret;type:text"`

	PhoneNumber     *string `gorm:"type:varchar(32)"`
	PhoneVerifiedAt *time.Time

	EnabledAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (MFAConfig) TableName() string {
	return "mfa_configs"
}

// Pending reports whether a TOTP secret was issued but never confirmed.
func (c *MFAConfig) Pending() bool {
	return c != nil && !c.IsEnabled && c.Method == MFAMethodTOTP && c.TOTPSecret != nil && *c.TOTPSecret != ""
}
