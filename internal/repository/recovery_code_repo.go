package repository

import (
	"context"
	"time"

	"mfaguard/internal/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RecoveryCodeRepository interface {
	// ReplaceAll swaps the user's whole batch in one transaction.
	ReplaceAll(ctx context.Context, userID uuid.UUID, codes []entity.RecoveryCode) error
	// CreateIfNone inserts the batch only when the user has no codes at all.
	// The returned bool reports whether the batch was written.
	CreateIfNone(ctx context.Context, userID uuid.UUID, codes []entity.RecoveryCode) (bool, error)
	ListUnused(ctx context.Context, userID uuid.UUID) ([]entity.RecoveryCode, error)
	CountAll(ctx context.Context, userID uuid.UUID) (int64, error)
	CountUnused(ctx context.Context, userID uuid.UUID) (int64, error)
	// MarkUsed is a conditional update; false means the code was already spent.
	MarkUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) (bool, error)
}

type recoveryCodeRepository struct {
	db *gorm.DB
}

func NewRecoveryCodeRepository(db *gorm.DB) RecoveryCodeRepository {
	return &recoveryCodeRepository{db: db}
}

func (r *recoveryCodeRepository) ReplaceAll(ctx context.Context, userID uuid.UUID, codes []entity.RecoveryCode) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockConfig(tx, userID); err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", userID).Delete(&entity.RecoveryCode{}).Error; err != nil {
			return err
		}
		if len(codes) == 0 {
			return nil
		}
		return tx.Create(&codes).Error
	})
}

func (r *recoveryCodeRepository) CreateIfNone(ctx context.Context, userID uuid.UUID, codes []entity.RecoveryCode) (bool, error) {
	created := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := lockConfig(tx, userID); err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&entity.RecoveryCode{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 || len(codes) == 0 {
			return nil
		}
		if err := tx.Create(&codes).Error; err != nil {
			return err
		}
		created = true
		return nil
	})
	return created, err
}

func (r *recoveryCodeRepository) ListUnused(ctx context.Context, userID uuid.UUID) ([]entity.RecoveryCode, error) {
	var codes []entity.RecoveryCode
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND used_at IS NULL", userID).
		Order("created_at ASC").
		Find(&codes).Error
	if err != nil {
		return nil, err
	}
	return codes, nil
}

func (r *recoveryCodeRepository) CountAll(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.RecoveryCode{}).
		Where("user_id = ?", userID).
		Count(&count).Error
	return count, err
}

func (r *recoveryCodeRepository) CountUnused(ctx context.Context, userID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&entity.RecoveryCode{}).
		Where("user_id = ? AND used_at IS NULL", userID).
		Count(&count).Error
	return count, err
}

func (r *recoveryCodeRepository) MarkUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&entity.RecoveryCode{}).
		Where("id = ? AND used_at IS NULL", id).
		Update("used_at", &usedAt)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// lockConfig serialises batch writes for a user on their config row.
func lockConfig(tx *gorm.DB, userID uuid.UUID) error {
	var config entity.MFAConfig
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Select("id").
		Where("user_id = ?", userID).
		Limit(1).
		Find(&config).Error
}
