package entity

import (
	"time"

	"github.com/google/uuid"
)

// User is the identity provider's row. This service only reads it.
type User struct {
	ID           uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey"`
	Email        string    `gorm:"type:varchar(255);uniqueIndex;not null"`
	PasswordHash *string   `gorm:"type:text"`
	IsActive     bool      `gorm:"default:true"`

	CreatedAt time.Time
	UpdatedAt time.Time
}
