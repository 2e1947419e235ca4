package repository

import (
	"context"
	"errors"
	"time"

	"mfaguard/internal/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type MFAConfigRepository interface {
	FindByUserID(ctx context.Context, userID uuid.UUID) (*entity.MFAConfig, error)
	// Upsert writes the row keyed on user_id but never overwrites an enabled
	// config; that case returns ErrStateChanged.
	Upsert(ctx context.Context, config *entity.MFAConfig) error
	// Enable flips a pending TOTP row to enabled only while it still holds
	// secret. Returns ErrStateChanged when the row moved since it was read.
	Enable(ctx context.Context, userID uuid.UUID, secret string, at time.Time) error
	// Disable clears the secret, drops every recovery code and pending SMS
	// code for the user in one transaction. Returns ErrStateChanged when the
	// config was not enabled at write time.
	Disable(ctx context.Context, userID uuid.UUID, at time.Time) error
}

type mfaConfigRepository struct {
	db *gorm.DB
}

func NewMFAConfigRepository(db *gorm.DB) MFAConfigRepository {
	return &mfaConfigRepository{db: db}
}

func (r *mfaConfigRepository) FindByUserID(ctx context.Context, userID uuid.UUID) (*entity.MFAConfig, error) {
	var config entity.MFAConfig
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&config).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &config, err
}

func (r *mfaConfigRepository) Upsert(ctx context.Context, config *entity.MFAConfig) error {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			Where: clause.Where{Exprs: []clause.Expression{
				clause.Eq{Column: clause.Column{Table: "mfa_configs", Name: "is_enabled"}, Value: false},
			}},
			DoUpdates: clause.AssignmentColumns([]string{
				"method",
				"is_enabled",
				"totp_secret",
				"phone_number",
				"phone_verified_at",
				"enabled_at",
				"updated_at",
			}),
		}).
		Create(config)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStateChanged
	}
	return nil
}

func (r *mfaConfigRepository) Enable(ctx context.Context, userID uuid.UUID, secret string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&entity.MFAConfig{}).
		Where("user_id = ? AND is_enabled = ? AND totp_secret = ?", userID, false, secret).
		Updates(map[string]any{
			"method":     entity.MFAMethodTOTP,
			"is_enabled": true,
			"enabled_at": at,
			"updated_at": at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrStateChanged
	}
	return nil
}

func (r *mfaConfigRepository) Disable(ctx context.Context, userID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&entity.MFAConfig{}).
			Where("user_id = ? AND is_enabled = ?", userID, true).
			Updates(map[string]any{
				"method":            entity.MFAMethodNone,
				"is_enabled":        false,
				"totp_secret":       nil,
				"phone_number":      nil,
				"phone_verified_at": nil,
				"enabled_at":        nil,
				"updated_at":        at,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrStateChanged
		}
		if err := tx.Where("user_id = ?", userID).Delete(&entity.RecoveryCode{}).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ?", userID).Delete(&entity.SMSOTPCode{}).Error
	})
}
