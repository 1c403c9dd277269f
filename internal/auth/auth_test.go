package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"familybudget/internal/core"
)

func TestJWTRoundTrip(t *testing.T) {
	m := NewJWTManager("test-secret-key-32-bytes-long!!!", time.Minute)
	token, err := m.Generate(core.User{ID: "u1", Email: "ana@example.com"})
	require.NoError(t, err)

	claims, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "ana@example.com", claims.Email)
}

func TestJWTExpired(t *testing.T) {
	m := NewJWTManager("secret", time.Minute)
	issued := time.Now().Add(-time.Hour)
	m.now = func() time.Time { return issued }
	token, err := m.Generate(core.User{ID: "u1"})
	require.NoError(t, err)

	m.now = time.Now
	_, err = m.Validate(token)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestJWTWrongSecret(t *testing.T) {
	token, err := NewJWTManager("one", time.Minute).Generate(core.User{ID: "u1"})
	require.NoError(t, err)
	_, err = NewJWTManager("two", time.Minute).Validate(token)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestJWTRejectsOtherAlgorithms(t *testing.T) {
	claims := &Claims{UserID: "u1", RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = NewJWTManager("secret", time.Minute).Validate(token)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}

func TestDefaultTTL(t *testing.T) {
	assert.Equal(t, DefaultTokenTTL, NewJWTManager("s", 0).TTL())
}

func TestPasswordHashing(t *testing.T) {
	require.ErrorIs(t, ValidatePassword("short"), ErrWeakPassword)
	require.NoError(t, ValidatePassword("long enough"))

	hash, err := HashPassword("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, "correct horse", hash)
	assert.NoError(t, CheckPassword(hash, "correct horse"))
	assert.ErrorIs(t, CheckPassword(hash, "battery staple"), ErrInvalidCredentials)
}
