package repository

import (
	"context"
	"time"

	"mfaguard/internal/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// OTPAttemptRepository is the append-only ledger behind the sliding window
// rate limiter.
type OTPAttemptRepository interface {
	Record(ctx context.Context, attempt *entity.OTPAttempt) error
	// Window counts admitted attempts strictly after since and returns the
	// oldest of them, nil when the window is empty.
	Window(ctx context.Context, userID uuid.UUID, method string, since time.Time) (int64, *time.Time, error)
}

type otpAttemptRepository struct {
	db *gorm.DB
}

func NewOTPAttemptRepository(db *gorm.DB) OTPAttemptRepository {
	return &otpAttemptRepository{db: db}
}

func (r *otpAttemptRepository) Record(ctx context.Context, attempt *entity.OTPAttempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

func (r *otpAttemptRepository) Window(ctx context.Context, userID uuid.UUID, method string, since time.Time) (int64, *time.Time, error) {
	admitted := r.db.WithContext(ctx).
		Model(&entity.OTPAttempt{}).
		Where("user_id = ? AND method = ? AND success = ? AND created_at > ?", userID, method, true, since)

	var count int64
	if err := admitted.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	var oldest entity.OTPAttempt
	err := admitted.Session(&gorm.Session{}).
		Select("created_at").
		Order("created_at ASC").
		Limit(1).
		Find(&oldest).Error
	if err != nil {
		return 0, nil, err
	}
	return count, &oldest.CreatedAt, nil
}
