package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidChallengeToken = errors.New("invalid mfa challenge token")

const challengeTokenType = "mfa"

// ChallengeTokenJWT reads the short-lived token the identity provider hands
// out after a password login when a second factor is still owed.
type ChallengeTokenJWT struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
}

type challengeClaims struct {
	UserID string `json:"sub"`
	Type   string `json:"typ"`
	jwt.RegisteredClaims
}

func (c ChallengeTokenJWT) IssueChallengeToken(userID uuid.UUID) (string, time.Duration, error) {
	ttl := c.TTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	now := time.Now()
	claims := challengeClaims{
		UserID: userID.String(),
		Type:   challengeTokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.Issuer,
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.Secret)
	if err != nil {
		return "", 0, err
	}
	return signed, ttl, nil
}

func (c ChallengeTokenJWT) ParseChallengeToken(token string) (uuid.UUID, error) {
	if len(c.Secret) == 0 {
		return uuid.Nil, ErrInvalidChallengeToken
	}
	parsed, err := jwt.ParseWithClaims(token, &challengeClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidChallengeToken
		}
		return c.Secret, nil
	}, jwt.WithExpirationRequired())
	if err != nil {
		return uuid.Nil, ErrInvalidChallengeToken
	}
	claims, ok := parsed.Claims.(*challengeClaims)
	if !ok || !parsed.Valid || claims.Type != challengeTokenType {
		return uuid.Nil, ErrInvalidChallengeToken
	}
	if c.Issuer != "" && claims.Issuer != c.Issuer {
		return uuid.Nil, ErrInvalidChallengeToken
	}
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return uuid.Nil, ErrInvalidChallengeToken
	}
	return id, nil
}
