package service

import (
	"context"
	"encoding/json"
	"fmt"

	"mfaguard/internal/entity"
	"mfaguard/internal/metrics"
	"mfaguard/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

const maxAuditQueryLimit = 50

// AuditRecorder appends MFA state transitions. Writes are best effort: a
// failed insert is logged and counted but never undoes the transition.
type AuditRecorder struct {
	logs   repository.AuditLogRepository
	clock  Clock
	logger logrus.FieldLogger
}

func NewAuditRecorder(logs repository.AuditLogRepository, clock Clock, logger logrus.FieldLogger) *AuditRecorder {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &AuditRecorder{logs: logs, clock: clock, logger: logger}
}

func (r *AuditRecorder) Record(ctx context.Context, userID uuid.UUID, action entity.AuditAction, meta RequestMeta, extra map[string]any) {
	details := map[string]any{}
	for key, value := range extra {
		details[key] = value
	}
	if meta.IPAddress != nil {
		details["ip_address"] = *meta.IPAddress
	}
	if meta.UserAgent != nil {
		details["user_agent"] = *meta.UserAgent
	}

	entry := logrus.Fields{"user_id": userID.String(), "action": string(action)}
	payload, err := json.Marshal(details)
	if err != nil {
		metrics.AuditWriteFailuresTotal.Inc()
		r.logger.WithFields(entry).WithError(err).Error("audit details encoding failed")
		return
	}

	log := &entity.AuditLog{
		ID:        uuid.New(),
		UserID:    userID,
		Action:    action,
		Details:   datatypes.JSON(payload),
		CreatedAt: r.clock.Now(),
	}
	if err := r.logs.Create(ctx, log); err != nil {
		metrics.AuditWriteFailuresTotal.Inc()
		r.logger.WithFields(entry).WithError(err).Error("audit write failed")
	}
}

// Query returns the user's own entries for the allow-listed actions, newest
// first. limit is clamped to 1..50.
func (r *AuditRecorder) Query(ctx context.Context, userID uuid.UUID, allowlist []entity.AuditAction, limit int) ([]entity.AuditLog, error) {
	if limit <= 0 || limit > maxAuditQueryLimit {
		limit = maxAuditQueryLimit
	}
	logs, err := r.logs.ListByUser(ctx, userID, allowlist, limit)
	if err != nil {
		return nil, fmt.Errorf("list audit logs: %w", err)
	}
	return logs, nil
}
