package mediaprovider

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	klingTokenTTL      = 1800 * time.Second
	klingNotBeforeSkew = 5 * time.Second
)

// TokenSigner issues the HS256 tokens Kling expects on every call.
// Tokens are never cached; each outbound call signs a fresh one.
type TokenSigner struct {
	now func() time.Time
}

// NewTokenSigner creates a signer using the wall clock.
func NewTokenSigner() *TokenSigner {
	return &TokenSigner{now: time.Now}
}

// Sign returns a token with iss=accessKey, exp=now+1800s and nbf=now-5s.
func (s *TokenSigner) Sign(accessKey, secretKey string) (string, error) {
	if accessKey == "" || secretKey == "" {
		return "", errors.New("kling access key and secret key are required")
	}

	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    accessKey,
		ExpiresAt: jwt.NewNumericDate(now.Add(klingTokenTTL)),
		NotBefore: jwt.NewNumericDate(now.Add(-klingNotBeforeSkew)),
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secretKey))
}
