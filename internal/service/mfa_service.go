package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"mfaguard/internal/entity"
	"mfaguard/internal/metrics"
	"mfaguard/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	defaultIdentityTimeout = 5 * time.Second
	notificationTimeout    = 10 * time.Second

	recoveryCodesAlreadyIssued = "Recovery codes have already been generated. Regenerate to get a new set."
)

// MFAService drives a user through Unenrolled -> PendingSetup -> Enabled ->
// Disabled. Every state change writes one audit row.
type MFAService struct {
	configs    repository.MFAConfigRepository
	identity   IdentityStore
	provider   MFAProvider
	vault      *RecoveryCodeVault
	limiter    *RateLimiter
	audit      *AuditRecorder
	challenges ChallengeTokenParser
	notifier   SecurityNotifier
	clock      Clock
	logger     logrus.FieldLogger
	settings   Settings
}

func NewMFAService(
	configs repository.MFAConfigRepository,
	identity IdentityStore,
	provider MFAProvider,
	vault *RecoveryCodeVault,
	limiter *RateLimiter,
	audit *AuditRecorder,
	challenges ChallengeTokenParser,
	notifier SecurityNotifier,
	clock Clock,
	logger logrus.FieldLogger,
	settings Settings,
) *MFAService {
	if clock == nil {
		clock = RealClock{}
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &MFAService{
		configs:    configs,
		identity:   identity,
		provider:   provider,
		vault:      vault,
		limiter:    limiter,
		audit:      audit,
		challenges: challenges,
		notifier:   notifier,
		clock:      clock,
		logger:     logger,
		settings:   settings,
	}
}

// Resolve maps a bearer token to the caller.
func (s *MFAService) Resolve(ctx context.Context, token string) (*UserIdentity, error) {
	if s.identity == nil {
		return nil, ErrUnauthorized
	}
	user, err := s.identity.Resolve(ctx, token)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("resolve identity: %w", err)
	}
	return user, nil
}

func (s *MFAService) BeginTOTPSetup(ctx context.Context, user UserIdentity, meta RequestMeta) (result *SetupResult, err error) {
	defer observe("totp_setup", &err)

	config, err := s.findConfig(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if config != nil && config.IsEnabled {
		return nil, ErrAlreadyEnabled
	}
	if err := s.limiter.CheckAndRecord(ctx, user.ID, OpTOTPSetup, meta.IPAddress); err != nil {
		return nil, err
	}

	secret, err := s.provider.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("generate totp secret: %w", err)
	}
	now := s.now()
	pending := &entity.MFAConfig{
		ID:         uuid.New(),
		UserID:     user.ID,
		Method:     entity.MFAMethodTOTP,
		IsEnabled:  false,
		TOTPSecret: &secret,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.upsertConfig(ctx, pending); err != nil {
		return nil, err
	}

	uri := s.provider.BuildURI(secret, s.issuer(), user.Email)
	qr, qrErr := s.provider.QRCodeDataURL(uri)
	if qrErr != nil {
		s.logger.WithField("user_id", user.ID.String()).WithError(qrErr).Warn("qr code rendering failed")
	}

	s.audit.Record(ctx, user.ID, entity.AuditSetupStarted, meta, map[string]any{"method": string(entity.MFAMethodTOTP)})
	return &SetupResult{Secret: secret, OTPAuthURL: uri, QRCodeDataURL: qr}, nil
}

// ConfirmTOTPSetup enables MFA only once the caller proves they can produce
// a code from the pending secret.
func (s *MFAService) ConfirmTOTPSetup(ctx context.Context, user UserIdentity, code string, meta RequestMeta) (err error) {
	defer observe("totp_confirm", &err)

	code = strings.TrimSpace(code)
	if code == "" {
		return ErrInvalidInput
	}
	config, err := s.findConfig(ctx, user.ID)
	if err != nil {
		return err
	}
	if config != nil && config.IsEnabled {
		return ErrAlreadyEnabled
	}
	if !config.Pending() {
		return ErrNotPending
	}
	if err := s.limiter.CheckAndRecord(ctx, user.ID, OpTOTPConfirm, meta.IPAddress); err != nil {
		return err
	}
	now := s.now()
	if !s.provider.ValidateCode(*config.TOTPSecret, code, now) {
		return ErrInvalidCode
	}

	// A setup that lands after the read replaces the secret; the conditional
	// write then matches nothing.
	if err := s.configs.Enable(ctx, user.ID, *config.TOTPSecret, now); err != nil {
		if !errors.Is(err, repository.ErrStateChanged) {
			return fmt.Errorf("enable mfa: %w", err)
		}
		current, err := s.findConfig(ctx, user.ID)
		if err != nil {
			return err
		}
		if current != nil && current.IsEnabled {
			return ErrAlreadyEnabled
		}
		return ErrNotPending
	}

	s.audit.Record(ctx, user.ID, entity.AuditEnrolledTOTP, meta, nil)
	return nil
}

// DisableMFA is the one transition behind password re-authentication.
func (s *MFAService) DisableMFA(ctx context.Context, user UserIdentity, password string, meta RequestMeta) (err error) {
	defer observe("disable", &err)

	if strings.TrimSpace(password) == "" {
		return ErrInvalidInput
	}
	if err := s.limiter.CheckAndRecord(ctx, user.ID, OpDisable, meta.IPAddress); err != nil {
		return err
	}
	ok, err := s.verifyPassword(ctx, user.Email, password)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidCredential
	}

	config, err := s.findConfig(ctx, user.ID)
	if err != nil {
		return err
	}
	if config == nil || !config.IsEnabled {
		return ErrNotEnabled
	}
	if err := s.configs.Disable(ctx, user.ID, s.now()); err != nil {
		if errors.Is(err, repository.ErrStateChanged) {
			return ErrNotEnabled
		}
		return fmt.Errorf("disable mfa: %w", err)
	}

	s.audit.Record(ctx, user.ID, entity.AuditDisabled, meta, map[string]any{"method": string(config.Method)})
	s.notify(user, NotifyMFADisabled)
	return nil
}

// GetOrRegenerateRecoveryCodes hands out plaintext once per batch. Without
// regenerate, a user who already has codes gets an empty list and a message.
func (s *MFAService) GetOrRegenerateRecoveryCodes(ctx context.Context, user UserIdentity, regenerate bool, meta RequestMeta) (result *RecoveryCodesResult, err error) {
	defer observe("recovery_codes", &err)

	if err := s.requireEnabled(ctx, user.ID); err != nil {
		return nil, err
	}

	if regenerate {
		codes, err := s.vault.Replace(ctx, user.ID)
		if err != nil {
			return nil, err
		}
		s.audit.Record(ctx, user.ID, entity.AuditRecoveryCodesRegenerated, meta, map[string]any{"count": len(codes)})
		s.notify(user, NotifyRecoveryCodesRegenerated)
		return &RecoveryCodesResult{Codes: codes, Regenerated: true}, nil
	}

	codes, err := s.vault.Issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return &RecoveryCodesResult{Codes: []string{}, Message: recoveryCodesAlreadyIssued}, nil
	}
	s.audit.Record(ctx, user.ID, entity.AuditRecoveryCodesGenerated, meta, map[string]any{"count": len(codes)})
	return &RecoveryCodesResult{Codes: codes}, nil
}

// RedeemRecoveryCode spends one code for an authenticated caller and returns
// how many remain.
func (s *MFAService) RedeemRecoveryCode(ctx context.Context, user UserIdentity, code string, meta RequestMeta) (remaining int64, err error) {
	defer observe("recovery_redeem", &err)

	if strings.TrimSpace(code) == "" {
		return 0, ErrInvalidInput
	}
	if err := s.requireEnabled(ctx, user.ID); err != nil {
		return 0, err
	}
	if err := s.limiter.CheckAndRecord(ctx, user.ID, OpRecoveryRedeem, meta.IPAddress); err != nil {
		return 0, err
	}
	redeemed, err := s.vault.Redeem(ctx, user.ID, code)
	if err != nil {
		return 0, err
	}
	if !redeemed {
		return 0, ErrInvalidCode
	}
	return s.afterRedemption(ctx, user.ID, meta)
}

// VerifyChallenge completes a pending login. The TOTP code is tried first,
// then the value is tried as a recovery code.
func (s *MFAService) VerifyChallenge(ctx context.Context, challengeToken string, code string, meta RequestMeta) (result *ChallengeResult, err error) {
	defer observe("challenge_verify", &err)

	if s.challenges == nil {
		return nil, ErrMFANotConfigured
	}
	userID, err := s.challenges.ParseChallengeToken(challengeToken)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if strings.TrimSpace(code) == "" {
		return nil, ErrInvalidInput
	}

	config, err := s.findConfig(ctx, userID)
	if err != nil {
		return nil, err
	}
	if config == nil || !config.IsEnabled || config.TOTPSecret == nil {
		return nil, ErrNotEnabled
	}
	if err := s.limiter.CheckAndRecord(ctx, userID, OpChallengeVerify, meta.IPAddress); err != nil {
		return nil, err
	}

	if s.provider.ValidateCode(*config.TOTPSecret, code, s.now()) {
		remaining, err := s.vault.Remaining(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("count recovery codes: %w", err)
		}
		return &ChallengeResult{UserID: userID.String(), Factor: FactorTOTP, RecoveryCodesRemaining: remaining}, nil
	}

	redeemed, err := s.vault.Redeem(ctx, userID, code)
	if err != nil {
		return nil, err
	}
	if !redeemed {
		s.audit.Record(ctx, userID, entity.AuditChallengeFailed, meta, nil)
		return nil, ErrInvalidCode
	}
	remaining, err := s.afterRedemption(ctx, userID, meta)
	if err != nil {
		return nil, err
	}
	return &ChallengeResult{UserID: userID.String(), Factor: FactorRecoveryCode, RecoveryCodesRemaining: remaining}, nil
}

func (s *MFAService) Status(ctx context.Context, user UserIdentity) (*Status, error) {
	config, err := s.findConfig(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	status := &Status{Method: string(entity.MFAMethodNone)}
	if config == nil {
		return status, nil
	}
	status.Method = string(config.Method)
	status.IsEnabled = config.IsEnabled
	status.Pending = config.Pending()
	status.EnabledAt = config.EnabledAt
	if config.IsEnabled {
		remaining, err := s.vault.Remaining(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("count recovery codes: %w", err)
		}
		status.RecoveryCodesRemaining = remaining
	}
	return status, nil
}

func (s *MFAService) QueryAudit(ctx context.Context, user UserIdentity) ([]entity.AuditLog, error) {
	return s.audit.Query(ctx, user.ID, entity.MFAAuditActions, s.settings.AuditQueryLimit)
}

func (s *MFAService) afterRedemption(ctx context.Context, userID uuid.UUID, meta RequestMeta) (int64, error) {
	metrics.RecoveryCodesRedeemedTotal.Inc()
	remaining, err := s.vault.Remaining(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("count recovery codes: %w", err)
	}
	s.audit.Record(ctx, userID, entity.AuditRecoveryCodeUsed, meta, map[string]any{"remaining": remaining})
	return remaining, nil
}

func (s *MFAService) requireEnabled(ctx context.Context, userID uuid.UUID) error {
	config, err := s.findConfig(ctx, userID)
	if err != nil {
		return err
	}
	if config == nil || !config.IsEnabled {
		return ErrNotEnabled
	}
	return nil
}

func (s *MFAService) findConfig(ctx context.Context, userID uuid.UUID) (*entity.MFAConfig, error) {
	config, err := s.configs.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load mfa config: %w", err)
	}
	return config, nil
}

func (s *MFAService) upsertConfig(ctx context.Context, config *entity.MFAConfig) error {
	if err := s.configs.Upsert(ctx, config); err != nil {
		if errors.Is(err, repository.ErrStateChanged) {
			return ErrAlreadyEnabled
		}
		return fmt.Errorf("save mfa config: %w", err)
	}
	return nil
}

// verifyPassword bounds the identity store call; a slow provider surfaces as
// ErrIdentityTimeout instead of holding the request open.
func (s *MFAService) verifyPassword(ctx context.Context, email string, password string) (bool, error) {
	if s.identity == nil {
		return false, ErrMFANotConfigured
	}
	timeout := s.settings.IdentityTimeout
	if timeout <= 0 {
		timeout = defaultIdentityTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		ok  bool
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		ok, err := s.identity.VerifyPassword(ctx, email, password)
		done <- outcome{ok: ok, err: err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return false, ErrIdentityTimeout
		}
		return false, ctx.Err()
	case result := <-done:
		if errors.Is(result.err, context.DeadlineExceeded) {
			return false, ErrIdentityTimeout
		}
		if result.err != nil {
			return false, fmt.Errorf("verify password: %w", result.err)
		}
		return result.ok, nil
	}
}

// notify runs off the request path; delivery failures are only logged.
func (s *MFAService) notify(user UserIdentity, event NotificationEvent) {
	if s.notifier == nil || user.Email == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notificationTimeout)
		defer cancel()
		if err := s.notifier.NotifyMFAChange(ctx, user.Email, event); err != nil {
			if errors.Is(err, ErrNotifierNotConfigured) {
				return
			}
			metrics.NotificationFailuresTotal.WithLabelValues(string(event)).Inc()
			s.logger.WithFields(logrus.Fields{
				"user_id": user.ID.String(),
				"event":   string(event),
			}).WithError(err).Warn("security notification failed")
		}
	}()
}

func (s *MFAService) issuer() string {
	return fallbackIssuer(s.settings.Issuer)
}

func (s *MFAService) now() time.Time {
	return s.clock.Now()
}

func observe(operation string, err *error) {
	outcome := "ok"
	switch {
	case *err == nil:
	case isUserError(*err):
		outcome = "rejected"
	default:
		outcome = "error"
	}
	metrics.OperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// isUserError reports whether err is one of the safe, expected failures.
func isUserError(err error) bool {
	for _, target := range []error{
		ErrInvalidInput,
		ErrUnauthorized,
		ErrAlreadyEnabled,
		ErrNotEnabled,
		ErrNotPending,
		ErrInvalidCredential,
		ErrInvalidCode,
		ErrRateLimited,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
