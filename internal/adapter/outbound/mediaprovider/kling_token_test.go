package mediaprovider

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedSigner(unix int64) *TokenSigner {
	return &TokenSigner{now: func() time.Time { return time.Unix(unix, 0) }}
}

func TestTokenSigner_Sign(t *testing.T) {
	token, err := fixedSigner(1700000000).Sign("ak-123", "sk-456")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	header, err := base64.RawURLEncoding.DecodeString(parts[0])
	require.NoError(t, err)
	assert.Equal(t, `{"alg":"HS256","typ":"JWT"}`, string(header))

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	assert.Equal(t, `{"iss":"ak-123","exp":1700001800,"nbf":1699999995}`, string(payload))

	mac := hmac.New(sha256.New, []byte("sk-456"))
	mac.Write([]byte(parts[0] + "." + parts[1]))
	assert.Equal(t, base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), parts[2])
}

func TestTokenSigner_Verifies(t *testing.T) {
	signer := NewTokenSigner()
	token, err := signer.Sign("ak", "secret")
	require.NoError(t, err)

	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(tok *jwt.Token) (any, error) {
		return []byte("secret"), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	require.NoError(t, err)

	claims := parsed.Claims.(*jwt.RegisteredClaims)
	assert.Equal(t, "ak", claims.Issuer)
	assert.WithinDuration(t, time.Now().Add(30*time.Minute), claims.ExpiresAt.Time, 5*time.Second)
}

func TestTokenSigner_FreshPerCall(t *testing.T) {
	now := int64(1700000000)
	signer := &TokenSigner{now: func() time.Time { return time.Unix(now, 0) }}

	first, err := signer.Sign("ak", "sk")
	require.NoError(t, err)
	now += 10
	second, err := signer.Sign("ak", "sk")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestTokenSigner_MissingKeys(t *testing.T) {
	_, err := NewTokenSigner().Sign("", "sk")
	assert.Error(t, err)

	_, err = NewTokenSigner().Sign("ak", "")
	assert.Error(t, err)
}
