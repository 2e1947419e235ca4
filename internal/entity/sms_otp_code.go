package entity

import (
	"time"

	"github.com/google/uuid"
)

// SMSOTPCode is a pending SMS one-time code. Delivery lives outside this
// service; rows are only cleared here.
type SMSOTPCode struct {
	ID     uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index"`

	CodeHash  string `gorm:"type:text;not null"`
	ExpiresAt time.Time

	CreatedAt time.Time
}

func (SMSOTPCode) TableName() string {
	return "sms_otp_codes"
}
