package entity

import (
	"time"

	"github.com/google/uuid"
)

type RecoveryCode struct {
	ID     uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index"`

	CodeHash string `gorm:"type:text;not null"`
	UsedAt   *time.Time

	CreatedAt time.Time
}
