package service

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateRecoveryCodes(t *testing.T) {
	codes, err := GenerateRecoveryCodes(10, 10)
	require.NoError(t, err)
	require.Len(t, codes, 10)

	seen := map[string]bool{}
	for _, code := range codes {
		assert.Len(t, code, 10)
		for _, r := range code {
			assert.True(t, strings.ContainsRune(RecoveryCodeAlphabet, r), "unexpected symbol %q", r)
		}
		assert.False(t, seen[code], "duplicate code %s", code)
		seen[code] = true
	}

	_, err = GenerateRecoveryCodes(0, 10)
	assert.ErrorIs(t, err, ErrInvalidRecoveryCodeBatch)
	_, err = GenerateRecoveryCodes(10, 0)
	assert.ErrorIs(t, err, ErrInvalidRecoveryCodeBatch)
}

func TestRecoveryCodeAlphabetExcludesAmbiguousSymbols(t *testing.T) {
	for _, r := range "01IO" {
		assert.NotContains(t, RecoveryCodeAlphabet, string(r))
	}
	assert.Len(t, RecoveryCodeAlphabet, 32)
}

func newTestVault() (*RecoveryCodeVault, *fakeRecoveryCodeRepo) {
	repo := &fakeRecoveryCodeRepo{}
	return NewRecoveryCodeVault(repo, fastHasher, newFakeClock(), 0, 0), repo
}

func TestRecoveryCodeVaultStoresOnlyHashes(t *testing.T) {
	ctx := context.Background()
	vault, repo := newTestVault()
	userID := uuid.New()

	codes, err := vault.Issue(ctx, userID)
	require.NoError(t, err)
	require.Len(t, codes, DefaultRecoveryCodeCount)

	for i, row := range repo.codes {
		assert.NotEqual(t, codes[i], row.CodeHash)
		assert.True(t, strings.HasPrefix(row.CodeHash, "$2a$"))
		assert.Nil(t, row.UsedAt)
	}
}

func TestRecoveryCodeVaultIssueOnlyOnce(t *testing.T) {
	ctx := context.Background()
	vault, _ := newTestVault()
	userID := uuid.New()

	first, err := vault.Issue(ctx, userID)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	again, err := vault.Issue(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, again)
}

func TestRecoveryCodeVaultRedeemIsSingleUse(t *testing.T) {
	ctx := context.Background()
	vault, _ := newTestVault()
	userID := uuid.New()

	codes, err := vault.Issue(ctx, userID)
	require.NoError(t, err)

	ok, err := vault.Redeem(ctx, userID, codes[3])
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = vault.Redeem(ctx, userID, codes[3])
	require.NoError(t, err)
	assert.False(t, ok)

	remaining, err := vault.Remaining(ctx, userID)
	require.NoError(t, err)
	assert.EqualValues(t, DefaultRecoveryCodeCount-1, remaining)
}

func TestRecoveryCodeVaultRedeemNormalizesInput(t *testing.T) {
	ctx := context.Background()
	vault, _ := newTestVault()
	userID := uuid.New()

	codes, err := vault.Issue(ctx, userID)
	require.NoError(t, err)

	typed := " " + strings.ToLower(codes[0][:5]) + "-" + codes[0][5:] + " "
	ok, err := vault.Redeem(ctx, userID, typed)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRecoveryCodeVaultRedeemRejectsForeignAndMalformed(t *testing.T) {
	ctx := context.Background()
	vault, _ := newTestVault()
	owner := uuid.New()

	codes, err := vault.Issue(ctx, owner)
	require.NoError(t, err)

	ok, err := vault.Redeem(ctx, uuid.New(), codes[0])
	require.NoError(t, err)
	assert.False(t, ok, "codes are scoped to their owner")

	ok, err = vault.Redeem(ctx, owner, "SHORT")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecoveryCodeVaultReplaceInvalidatesPreviousBatch(t *testing.T) {
	ctx := context.Background()
	vault, _ := newTestVault()
	userID := uuid.New()

	old, err := vault.Issue(ctx, userID)
	require.NoError(t, err)
	ok, err := vault.Redeem(ctx, userID, old[0])
	require.NoError(t, err)
	require.True(t, ok)

	fresh, err := vault.Replace(ctx, userID)
	require.NoError(t, err)
	require.Len(t, fresh, DefaultRecoveryCodeCount)

	for _, code := range old[1:] {
		ok, err := vault.Redeem(ctx, userID, code)
		require.NoError(t, err)
		assert.False(t, ok)
	}
	remaining, err := vault.Remaining(ctx, userID)
	require.NoError(t, err)
	assert.EqualValues(t, DefaultRecoveryCodeCount, remaining)
}

func TestRecoveryCodeVaultConcurrentRedeem(t *testing.T) {
	ctx := context.Background()
	vault, _ := newTestVault()
	userID := uuid.New()

	codes, err := vault.Issue(ctx, userID)
	require.NoError(t, err)

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := vault.Redeem(ctx, userID, codes[0])
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins.Load())
}
