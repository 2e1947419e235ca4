package entity

import (
	"time"

	"github.com/google/uuid"
)

// OTPAttempt is an append-only rate limit ledger row. Success records whether
// the limiter admitted the attempt.
type OTPAttempt struct {
	ID     uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index:idx_otp_attempts_user_method_created,priority:1"`
	Method string    `gorm:"type:varchar(32);not null;index:idx_otp_attempts_user_method_created,priority:2"`

	IPAddress *string `gorm:"type:varchar(45)"`
	Success   bool    `gorm:"not null"`

	CreatedAt time.Time `gorm:"index:idx_otp_attempts_user_method_created,priority:3"`
}

func (OTPAttempt) TableName() string {
	return "otp_attempts"
}
