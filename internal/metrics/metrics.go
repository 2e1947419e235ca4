package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mfa_operations_total",
			Help: "MFA operations by outcome (ok, rejected, error)",
		},
		[]string{"operation", "outcome"},
	)

	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mfa_rate_limited_total",
			Help: "Attempts rejected by the sliding window limiter",
		},
		[]string{"operation"},
	)

	AuditWriteFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mfa_audit_write_failures_total",
			Help: "Audit rows that could not be written",
		},
	)

	RecoveryCodesRedeemedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mfa_recovery_codes_redeemed_total",
			Help: "Recovery codes spent",
		},
	)

	NotificationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mfa_notification_failures_total",
			Help: "Security notification emails that failed to send",
		},
		[]string{"event"},
	)
)
