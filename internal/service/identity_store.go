package service

import (
	"context"
	"strings"

	"mfaguard/internal/repository"
	"mfaguard/internal/utils"

	"github.com/google/uuid"
)

// Keeps VerifyPassword timing flat for unknown emails.
const dummyPasswordHash = "$2a$10$CwTycUXWue0Thq9StjUM0uJ8yQbWc1x9uxw2sQ2sXUNx5x9xJ9F2S"

// JWTIdentityStore resolves bearer tokens issued by the identity provider and
// checks passwords against its users table. It never writes to that table.
type JWTIdentityStore struct {
	JWT    *utils.JWTManager
	Users  repository.UserRepository
	Hasher Hasher
}

func NewJWTIdentityStore(manager *utils.JWTManager, users repository.UserRepository, hasher Hasher) *JWTIdentityStore {
	return &JWTIdentityStore{JWT: manager, Users: users, Hasher: hasher}
}

func (s *JWTIdentityStore) Resolve(ctx context.Context, token string) (*UserIdentity, error) {
	if s.JWT == nil || strings.TrimSpace(token) == "" {
		return nil, ErrUnauthorized
	}
	claims, err := s.JWT.ParseAccessToken(token)
	if err != nil {
		return nil, ErrUnauthorized
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, ErrUnauthorized
	}
	user, err := s.Users.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil || !user.IsActive {
		return nil, ErrUnauthorized
	}
	return &UserIdentity{ID: user.ID, Email: user.Email}, nil
}

func (s *JWTIdentityStore) VerifyPassword(ctx context.Context, email string, password string) (bool, error) {
	user, err := s.Users.FindByEmail(ctx, utils.NormalizeEmail(email))
	if err != nil {
		return false, err
	}
	if user == nil || user.PasswordHash == nil {
		_ = s.Hasher.Verify(dummyPasswordHash, password)
		return false, nil
	}
	return s.Hasher.Verify(*user.PasswordHash, password), nil
}
