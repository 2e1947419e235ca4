package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChallengeTokenRoundTrip(t *testing.T) {
	tokens := ChallengeTokenJWT{Secret: []byte("challenge-secret"), Issuer: "mfaguard", TTL: time.Minute}
	userID := uuid.New()

	token, ttl, err := tokens.IssueChallengeToken(userID)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, ttl)

	parsed, err := tokens.ParseChallengeToken(token)
	require.NoError(t, err)
	assert.Equal(t, userID, parsed)
}

func TestChallengeTokenRejections(t *testing.T) {
	tokens := ChallengeTokenJWT{Secret: []byte("challenge-secret"), Issuer: "mfaguard"}
	userID := uuid.New()

	sign := func(claims jwt.Claims, secret string) string {
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
		require.NoError(t, err)
		return signed
	}
	valid := jwt.RegisteredClaims{Issuer: "mfaguard", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))}

	tests := []struct {
		name  string
		token string
	}{
		{name: "garbage", token: "not-a-jwt"},
		{name: "wrong secret", token: sign(challengeClaims{UserID: userID.String(), Type: "mfa", RegisteredClaims: valid}, "other")},
		{name: "access token type", token: sign(challengeClaims{UserID: userID.String(), Type: "access", RegisteredClaims: valid}, "challenge-secret")},
		{name: "no expiry", token: sign(challengeClaims{UserID: userID.String(), Type: "mfa", RegisteredClaims: jwt.RegisteredClaims{Issuer: "mfaguard"}}, "challenge-secret")},
		{name: "expired", token: sign(challengeClaims{UserID: userID.String(), Type: "mfa", RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "mfaguard",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}}, "challenge-secret")},
		{name: "foreign issuer", token: sign(challengeClaims{UserID: userID.String(), Type: "mfa", RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		}}, "challenge-secret")},
		{name: "bad subject", token: sign(challengeClaims{UserID: "42", Type: "mfa", RegisteredClaims: valid}, "challenge-secret")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tokens.ParseChallengeToken(tt.token)
			assert.ErrorIs(t, err, ErrInvalidChallengeToken)
		})
	}
}
