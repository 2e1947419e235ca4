package service

import (
	"context"
	"fmt"
	"time"

	"mfaguard/internal/entity"
	"mfaguard/internal/metrics"
	"mfaguard/internal/repository"

	"github.com/google/uuid"
)

const (
	OpTOTPSetup       = "totp_setup"
	OpTOTPConfirm     = "totp_confirm"
	OpChallengeVerify = "challenge_verify"
	OpRecoveryRedeem  = "recovery_redeem"
	OpDisable         = "disable"
)

type RateLimitPolicy struct {
	Window      time.Duration
	MaxAttempts int
}

var defaultRateLimitPolicy = RateLimitPolicy{Window: time.Hour, MaxAttempts: 5}

func DefaultRateLimitPolicies() map[string]RateLimitPolicy {
	return map[string]RateLimitPolicy{
		OpTOTPSetup:       {Window: time.Hour, MaxAttempts: 5},
		OpTOTPConfirm:     {Window: 15 * time.Minute, MaxAttempts: 10},
		OpChallengeVerify: {Window: 15 * time.Minute, MaxAttempts: 10},
		OpRecoveryRedeem:  {Window: time.Hour, MaxAttempts: 5},
		OpDisable:         {Window: time.Hour, MaxAttempts: 5},
	}
}

// RateLimiter is a sliding window over the attempt ledger. Count and insert
// are separate round trips, so concurrent callers may slip a little past the
// budget.
type RateLimiter struct {
	attempts repository.OTPAttemptRepository
	clock    Clock
	policies map[string]RateLimitPolicy
}

func NewRateLimiter(attempts repository.OTPAttemptRepository, clock Clock, policies map[string]RateLimitPolicy) *RateLimiter {
	if clock == nil {
		clock = RealClock{}
	}
	merged := DefaultRateLimitPolicies()
	for operation, policy := range policies {
		if policy.Window > 0 && policy.MaxAttempts > 0 {
			merged[operation] = policy
		}
	}
	return &RateLimiter{attempts: attempts, clock: clock, policies: merged}
}

// CheckAndRecord writes a ledger row for every call and returns a
// *RateLimitedError once the window is full. Only admitted rows fill the
// window, so rejected calls never push the reset further out: a caller who
// keeps retrying gets a fresh budget one window after their oldest admitted
// attempt.
func (l *RateLimiter) CheckAndRecord(ctx context.Context, userID uuid.UUID, operation string, ipAddress *string) error {
	policy := l.Policy(operation)
	now := l.clock.Now()

	count, oldest, err := l.attempts.Window(ctx, userID, operation, now.Add(-policy.Window))
	if err != nil {
		return fmt.Errorf("count %s attempts: %w", operation, err)
	}
	admitted := count < int64(policy.MaxAttempts)

	attempt := &entity.OTPAttempt{
		ID:        uuid.New(),
		UserID:    userID,
		Method:    operation,
		IPAddress: ipAddress,
		Success:   admitted,
		CreatedAt: now,
	}
	if err := l.attempts.Record(ctx, attempt); err != nil {
		return fmt.Errorf("record %s attempt: %w", operation, err)
	}
	if admitted {
		return nil
	}

	metrics.RateLimitedTotal.WithLabelValues(operation).Inc()
	retryAfter := policy.Window
	if oldest != nil {
		retryAfter = oldest.Add(policy.Window).Sub(now)
	}
	return &RateLimitedError{Operation: operation, RetryAfter: retryAfter}
}

func (l *RateLimiter) Policy(operation string) RateLimitPolicy {
	if policy, ok := l.policies[operation]; ok {
		return policy
	}
	return defaultRateLimitPolicy
}
