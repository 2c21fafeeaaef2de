package auth

import (
	"testing"

	"streamvault/app/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(secret string) *config.Config {
	return &config.Config{
		JWT: config.JWTConfig{
			Secret:     secret,
			ExpireTime: 1,
			Issuer:     "streamvault-test",
		},
	}
}

func TestTokenRoundTrip(t *testing.T) {
	service := NewJWTService(testConfig("secret-a"))

	token, err := service.GenerateToken(42, "acme", "editor")
	require.NoError(t, err)

	claims, err := service.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(42), claims.UserID)
	assert.Equal(t, "acme", claims.TenantID)
	assert.Equal(t, "editor", claims.Role)
	assert.Equal(t, "streamvault-test", claims.Issuer)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := NewJWTService(testConfig("secret-a")).GenerateToken(42, "acme", "viewer")
	require.NoError(t, err)

	_, err = NewJWTService(testConfig("secret-b")).ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateRejectsGarbage(t *testing.T) {
	_, err := NewJWTService(testConfig("secret-a")).ValidateToken("not-a-token")
	assert.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	cfg := testConfig("secret-a")
	cfg.JWT.ExpireTime = -1 // 已过期

	token, err := NewJWTService(cfg).GenerateToken(42, "acme", "viewer")
	require.NoError(t, err)

	_, err = NewJWTService(cfg).ValidateToken(token)
	assert.Error(t, err)
}
