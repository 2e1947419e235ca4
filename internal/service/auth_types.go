package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type Settings struct {
	Issuer          string
	IdentityTimeout time.Duration
	AuditQueryLimit int
}

// UserIdentity is what the identity store hands back for a bearer token.
type UserIdentity struct {
	ID    uuid.UUID
	Email string
}

// RequestMeta is copied into audit details and the attempt ledger.
type RequestMeta struct {
	IPAddress *string
	UserAgent *string
}

type IdentityStore interface {
	Resolve(ctx context.Context, token string) (*UserIdentity, error)
	VerifyPassword(ctx context.Context, email string, password string) (bool, error)
}

type MFAProvider interface {
	GenerateSecret() (string, error)
	BuildURI(secret string, issuer string, accountLabel string) string
	QRCodeDataURL(uri string) (string, error)
	ValidateCode(secret string, code string, at time.Time) bool
}

type ChallengeTokenParser interface {
	ParseChallengeToken(token string) (uuid.UUID, error)
}

type SecurityNotifier interface {
	NotifyMFAChange(ctx context.Context, email string, event NotificationEvent) error
}

type Hasher interface {
	Hash(value string) (string, error)
	Verify(hash string, value string) bool
}

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

// BcryptHasher salts every value independently.
type BcryptHasher struct {
	Cost int
}

func (h BcryptHasher) Hash(value string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(value), cost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func (h BcryptHasher) Verify(hash string, value string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(value)) == nil
}
