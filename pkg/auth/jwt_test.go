package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bfsched/kernel/internal/config"
)

func TestNewJWTService(t *testing.T) {
	service, err := NewJWTService(nil)
	require.NoError(t, err)
	require.NotNil(t, service)
	assert.NotNil(t, service.privateKey)
	assert.NotNil(t, service.publicKey)

	service, err = NewJWTService(&config.AuthConfig{Issuer: "custom", TokenExpiry: time.Hour})
	require.NoError(t, err)
	assert.Equal(t, "custom", service.issuer)
	assert.Equal(t, time.Hour, service.expiration)
}

func TestGenerateAndValidateToken(t *testing.T) {
	service, err := NewJWTService(nil)
	require.NoError(t, err)

	token, expiresAt, err := service.GenerateToken("operator")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "operator", claims.Username)
	assert.Equal(t, "operator", claims.Subject)
}

func TestValidateTokenRejectsGarbage(t *testing.T) {
	service, err := NewJWTService(nil)
	require.NoError(t, err)

	for _, tok := range []string{"", "not.a.jwt", "invalid.token.here"} {
		claims, err := service.ValidateToken(tok)
		assert.Error(t, err)
		assert.Nil(t, claims)
	}
}

func TestTokenExpiration(t *testing.T) {
	service, err := NewJWTService(&config.AuthConfig{TokenExpiry: 1 * time.Millisecond})
	require.NoError(t, err)

	token, _, err := service.GenerateToken("operator")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	claims, err := service.ValidateToken(token)
	assert.Error(t, err)
	assert.Nil(t, claims)
}

func TestTokensAreSignedWithDistinctJTI(t *testing.T) {
	service, err := NewJWTService(nil)
	require.NoError(t, err)

	a, _, err := service.GenerateToken("operator")
	require.NoError(t, err)
	b, _, err := service.GenerateToken("operator")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func BenchmarkGenerateToken(b *testing.B) {
	service, err := NewJWTService(nil)
	require.NoError(b, err)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _, err := service.GenerateToken("operator")
		require.NoError(b, err)
	}
}

func BenchmarkValidateToken(b *testing.B) {
	service, err := NewJWTService(nil)
	require.NoError(b, err)

	token, _, err := service.GenerateToken("operator")
	require.NoError(b, err)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := service.ValidateToken(token)
		require.NoError(b, err)
	}
}
