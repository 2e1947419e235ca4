package service

import (
	"context"
	"errors"
	"fmt"

	"mfaguard/internal/entity"
	"mfaguard/internal/repository"
	"mfaguard/internal/utils"

	"github.com/google/uuid"
)

const (
	// RecoveryCodeAlphabet is A-Z and 2-9 without 0, O, 1 and I.
	RecoveryCodeAlphabet      = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	DefaultRecoveryCodeCount  = 10
	DefaultRecoveryCodeLength = 10
)

var ErrInvalidRecoveryCodeBatch = errors.New("invalid recovery code batch size")

// GenerateRecoveryCodes returns count distinct codes of the given length.
func GenerateRecoveryCodes(count int, length int) ([]string, error) {
	if count < 1 || length < 1 {
		return nil, ErrInvalidRecoveryCodeBatch
	}
	seen := make(map[string]struct{}, count)
	codes := make([]string, 0, count)
	for len(codes) < count {
		code, err := utils.RandomString(RecoveryCodeAlphabet, length)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

// RecoveryCodeVault stores only hashes. Plaintext leaves through Issue and
// Replace exactly once.
type RecoveryCodeVault struct {
	codes  repository.RecoveryCodeRepository
	hasher Hasher
	clock  Clock
	count  int
	length int
}

func NewRecoveryCodeVault(codes repository.RecoveryCodeRepository, hasher Hasher, clock Clock, count int, length int) *RecoveryCodeVault {
	if count <= 0 {
		count = DefaultRecoveryCodeCount
	}
	if length <= 0 {
		length = DefaultRecoveryCodeLength
	}
	if clock == nil {
		clock = RealClock{}
	}
	return &RecoveryCodeVault{codes: codes, hasher: hasher, clock: clock, count: count, length: length}
}

// Issue writes a first batch when the user has never had codes. It returns
// nil when a batch already exists, used or not.
func (v *RecoveryCodeVault) Issue(ctx context.Context, userID uuid.UUID) ([]string, error) {
	existing, err := v.codes.CountAll(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count recovery codes: %w", err)
	}
	if existing > 0 {
		return nil, nil
	}
	plain, rows, err := v.newBatch(userID)
	if err != nil {
		return nil, err
	}
	created, err := v.codes.CreateIfNone(ctx, userID, rows)
	if err != nil {
		return nil, fmt.Errorf("store recovery codes: %w", err)
	}
	if !created {
		return nil, nil
	}
	return plain, nil
}

// Replace invalidates every previous code, redeemed or not.
func (v *RecoveryCodeVault) Replace(ctx context.Context, userID uuid.UUID) ([]string, error) {
	plain, rows, err := v.newBatch(userID)
	if err != nil {
		return nil, err
	}
	if err := v.codes.ReplaceAll(ctx, userID, rows); err != nil {
		return nil, fmt.Errorf("replace recovery codes: %w", err)
	}
	return plain, nil
}

// Redeem spends a matching code. Concurrent redemptions of the same code
// resolve in the conditional update, so at most one of them returns true.
func (v *RecoveryCodeVault) Redeem(ctx context.Context, userID uuid.UUID, candidate string) (bool, error) {
	candidate = utils.NormalizeCode(candidate)
	if len(candidate) != v.length {
		return false, nil
	}
	unused, err := v.codes.ListUnused(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("list recovery codes: %w", err)
	}
	for _, code := range unused {
		if !v.hasher.Verify(code.CodeHash, candidate) {
			continue
		}
		marked, err := v.codes.MarkUsed(ctx, code.ID, v.clock.Now())
		if err != nil {
			return false, fmt.Errorf("mark recovery code used: %w", err)
		}
		return marked, nil
	}
	return false, nil
}

func (v *RecoveryCodeVault) Remaining(ctx context.Context, userID uuid.UUID) (int64, error) {
	return v.codes.CountUnused(ctx, userID)
}

func (v *RecoveryCodeVault) newBatch(userID uuid.UUID) ([]string, []entity.RecoveryCode, error) {
	plain, err := GenerateRecoveryCodes(v.count, v.length)
	if err != nil {
		return nil, nil, err
	}
	now := v.clock.Now()
	rows := make([]entity.RecoveryCode, 0, len(plain))
	for i, code := range plain {
		hash, err := v.hasher.Hash(code)
		if err != nil {
			return nil, nil, fmt.Errorf("hash recovery code %d: %w", i+1, err)
		}
		rows = append(rows, entity.RecoveryCode{
			ID:        uuid.New(),
			UserID:    userID,
			CodeHash:  hash,
			CreatedAt: now,
		})
	}
	return plain, rows, nil
}
