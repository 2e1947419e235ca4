package repository

import (
	"context"

	"mfaguard/internal/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AuditLogRepository interface {
	Create(ctx context.Context, log *entity.AuditLog) error
	ListByUser(ctx context.Context, userID uuid.UUID, actions []entity.AuditAction, limit int) ([]entity.AuditLog, error)
}

type auditLogRepository struct {
	db *gorm.DB
}

func NewAuditLogRepository(db *gorm.DB) AuditLogRepository {
	return &auditLogRepository{db: db}
}

func (r *auditLogRepository) Create(ctx context.Context, log *entity.AuditLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *auditLogRepository) ListByUser(
	ctx context.Context,
	userID uuid.UUID,
	actions []entity.AuditAction,
	limit int,
) ([]entity.AuditLog, error) {
	if len(actions) == 0 {
		return []entity.AuditLog{}, nil
	}
	var logs []entity.AuditLog
	query := r.db.WithContext(ctx).
		Where("user_id = ? AND action IN ?", userID, actions).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
