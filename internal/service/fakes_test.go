package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"mfaguard/internal/entity"
	"mfaguard/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var errStoreDown = errors.New("store unavailable")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakeConfigRepo struct {
	mu      sync.Mutex
	configs map[uuid.UUID]entity.MFAConfig
	codes   *fakeRecoveryCodeRepo
	findErr error
	// beforeEnable runs after the caller read the row and before the write.
	beforeEnable func()
}

func newFakeConfigRepo(codes *fakeRecoveryCodeRepo) *fakeConfigRepo {
	return &fakeConfigRepo{configs: map[uuid.UUID]entity.MFAConfig{}, codes: codes}
}

func (r *fakeConfigRepo) FindByUserID(_ context.Context, userID uuid.UUID) (*entity.MFAConfig, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	config, ok := r.configs[userID]
	if !ok {
		return nil, nil
	}
	return &config, nil
}

func (r *fakeConfigRepo) Upsert(_ context.Context, config *entity.MFAConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.configs[config.UserID]; ok {
		if existing.IsEnabled {
			return repository.ErrStateChanged
		}
		stored := *config
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
		r.configs[config.UserID] = stored
		return nil
	}
	r.configs[config.UserID] = *config
	return nil
}

func (r *fakeConfigRepo) Enable(_ context.Context, userID uuid.UUID, secret string, at time.Time) error {
	if r.beforeEnable != nil {
		r.beforeEnable()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.configs[userID]
	if !ok || existing.IsEnabled || existing.TOTPSecret == nil || *existing.TOTPSecret != secret {
		return repository.ErrStateChanged
	}
	existing.Method = entity.MFAMethodTOTP
	existing.IsEnabled = true
	existing.EnabledAt = &at
	existing.UpdatedAt = at
	r.configs[userID] = existing
	return nil
}

func (r *fakeConfigRepo) Disable(_ context.Context, userID uuid.UUID, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.configs[userID]
	if !ok || !existing.IsEnabled {
		return repository.ErrStateChanged
	}
	existing.Method = entity.MFAMethodNone
	existing.IsEnabled = false
	existing.TOTPSecret = nil
	existing.EnabledAt = nil
	existing.UpdatedAt = at
	r.configs[userID] = existing
	if r.codes != nil {
		r.codes.deleteUser(userID)
	}
	return nil
}

type fakeRecoveryCodeRepo struct {
	mu    sync.Mutex
	codes []entity.RecoveryCode
}

func (r *fakeRecoveryCodeRepo) deleteUser(userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.codes[:0]
	for _, code := range r.codes {
		if code.UserID != userID {
			kept = append(kept, code)
		}
	}
	r.codes = kept
}

func (r *fakeRecoveryCodeRepo) ReplaceAll(_ context.Context, userID uuid.UUID, codes []entity.RecoveryCode) error {
	r.deleteUser(userID)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.codes = append(r.codes, codes...)
	return nil
}

func (r *fakeRecoveryCodeRepo) CreateIfNone(_ context.Context, userID uuid.UUID, codes []entity.RecoveryCode) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, code := range r.codes {
		if code.UserID == userID {
			return false, nil
		}
	}
	r.codes = append(r.codes, codes...)
	return true, nil
}

func (r *fakeRecoveryCodeRepo) ListUnused(_ context.Context, userID uuid.UUID) ([]entity.RecoveryCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var unused []entity.RecoveryCode
	for _, code := range r.codes {
		if code.UserID == userID && code.UsedAt == nil {
			unused = append(unused, code)
		}
	}
	return unused, nil
}

func (r *fakeRecoveryCodeRepo) CountAll(_ context.Context, userID uuid.UUID) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	for _, code := range r.codes {
		if code.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (r *fakeRecoveryCodeRepo) CountUnused(ctx context.Context, userID uuid.UUID) (int64, error) {
	unused, err := r.ListUnused(ctx, userID)
	return int64(len(unused)), err
}

func (r *fakeRecoveryCodeRepo) MarkUsed(_ context.Context, id uuid.UUID, usedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.codes {
		if r.codes[i].ID != id {
			continue
		}
		if r.codes[i].UsedAt != nil {
			return false, nil
		}
		at := usedAt
		r.codes[i].UsedAt = &at
		return true, nil
	}
	return false, nil
}

type fakeAttemptRepo struct {
	mu       sync.Mutex
	attempts []entity.OTPAttempt
}

func (r *fakeAttemptRepo) Record(_ context.Context, attempt *entity.OTPAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, *attempt)
	return nil
}

func (r *fakeAttemptRepo) Window(_ context.Context, userID uuid.UUID, method string, since time.Time) (int64, *time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var count int64
	var oldest *time.Time
	for _, attempt := range r.attempts {
		if attempt.UserID != userID || attempt.Method != method || !attempt.Success || !attempt.CreatedAt.After(since) {
			continue
		}
		count++
		if oldest == nil || attempt.CreatedAt.Before(*oldest) {
			at := attempt.CreatedAt
			oldest = &at
		}
	}
	return count, oldest, nil
}

func (r *fakeAttemptRepo) rows(method string) []entity.OTPAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	var rows []entity.OTPAttempt
	for _, attempt := range r.attempts {
		if attempt.Method == method {
			rows = append(rows, attempt)
		}
	}
	return rows
}

type fakeAuditRepo struct {
	mu        sync.Mutex
	logs      []entity.AuditLog
	createErr error
}

func (r *fakeAuditRepo) Create(_ context.Context, log *entity.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	r.logs = append(r.logs, *log)
	return nil
}

func (r *fakeAuditRepo) ListByUser(_ context.Context, userID uuid.UUID, actions []entity.AuditAction, limit int) ([]entity.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	allowed := make(map[entity.AuditAction]bool, len(actions))
	for _, action := range actions {
		allowed[action] = true
	}
	result := []entity.AuditLog{}
	for _, log := range r.logs {
		if log.UserID == userID && allowed[log.Action] {
			result = append(result, log)
		}
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *fakeAuditRepo) actions(userID uuid.UUID) []entity.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var actions []entity.AuditAction
	for _, log := range r.logs {
		if log.UserID == userID {
			actions = append(actions, log.Action)
		}
	}
	return actions
}

type fakeIdentityStore struct {
	tokens    map[string]UserIdentity
	passwords map[string]string
	delay     time.Duration
	err       error
}

func (s *fakeIdentityStore) Resolve(_ context.Context, token string) (*UserIdentity, error) {
	user, ok := s.tokens[token]
	if !ok {
		return nil, ErrUnauthorized
	}
	return &user, nil
}

func (s *fakeIdentityStore) VerifyPassword(ctx context.Context, email string, password string) (bool, error) {
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	if s.err != nil {
		return false, s.err
	}
	return s.passwords[email] == password, nil
}

type fakeChallengeParser struct {
	tokens map[string]uuid.UUID
}

func (p fakeChallengeParser) ParseChallengeToken(token string) (uuid.UUID, error) {
	userID, ok := p.tokens[token]
	if !ok {
		return uuid.Nil, ErrInvalidChallengeToken
	}
	return userID, nil
}

type fakeNotifier struct {
	events chan NotificationEvent
}

func (n *fakeNotifier) NotifyMFAChange(_ context.Context, _ string, event NotificationEvent) error {
	n.events <- event
	return nil
}

// fastHasher keeps bcrypt in the loop at its cheapest cost.
var fastHasher = BcryptHasher{Cost: bcrypt.MinCost}

type testEnv struct {
	clock      *fakeClock
	configs    *fakeConfigRepo
	codes      *fakeRecoveryCodeRepo
	attempts   *fakeAttemptRepo
	audit      *fakeAuditRepo
	identity   *fakeIdentityStore
	provider   *TOTPProvider
	notifier   *fakeNotifier
	challenges fakeChallengeParser
	service    *MFAService
	user       UserIdentity
}

const (
	testPassword = "correct horse battery staple"
	testToken    = "bearer-token"
)

func newTestEnv() *testEnv {
	env := &testEnv{
		clock:    newFakeClock(),
		codes:    &fakeRecoveryCodeRepo{},
		attempts: &fakeAttemptRepo{},
		audit:    &fakeAuditRepo{},
		provider: NewTOTPProvider("MFA Guard"),
		notifier: &fakeNotifier{events: make(chan NotificationEvent, 8)},
		user:     UserIdentity{ID: uuid.New(), Email: "ada@example.com"},
	}
	env.configs = newFakeConfigRepo(env.codes)
	env.identity = &fakeIdentityStore{
		tokens:    map[string]UserIdentity{testToken: env.user},
		passwords: map[string]string{env.user.Email: testPassword},
	}
	env.challenges = fakeChallengeParser{tokens: map[string]uuid.UUID{"challenge-token": env.user.ID}}
	env.service = NewMFAService(
		env.configs,
		env.identity,
		env.provider,
		NewRecoveryCodeVault(env.codes, fastHasher, env.clock, 0, 0),
		NewRateLimiter(env.attempts, env.clock, nil),
		NewAuditRecorder(env.audit, env.clock, nil),
		env.challenges,
		env.notifier,
		env.clock,
		nil,
		Settings{Issuer: "MFA Guard", IdentityTimeout: 200 * time.Millisecond},
	)
	return env
}

func (e *testEnv) code(secret string) string {
	code, err := e.provider.CodeAt(secret, e.clock.Now())
	if err != nil {
		panic(err)
	}
	return code
}

// enable runs setup and confirm and returns the secret.
func (e *testEnv) enable() string {
	ctx := context.Background()
	result, err := e.service.BeginTOTPSetup(ctx, e.user, RequestMeta{})
	if err != nil {
		panic(err)
	}
	if err := e.service.ConfirmTOTPSetup(ctx, e.user, e.code(result.Secret), RequestMeta{}); err != nil {
		panic(err)
	}
	return result.Secret
}
