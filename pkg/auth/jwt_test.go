package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidateToken(t *testing.T) {
	manager := NewJWTManager("test-secret", "opsboard", time.Hour)

	token, err := manager.GenerateToken("user-1", "Ana Diaz", "dept-er", "nurse", false, 0)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := manager.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "Ana Diaz", claims.Name)
	assert.Equal(t, "dept-er", claims.DepartmentID)
	assert.Equal(t, "nurse", claims.Role)
	assert.False(t, claims.Admin)
	assert.Equal(t, "opsboard", claims.Issuer)
}

func TestValidateTokenWrongSecret(t *testing.T) {
	manager := NewJWTManager("test-secret", "opsboard", time.Hour)
	other := NewJWTManager("other-secret", "opsboard", time.Hour)

	token, err := manager.GenerateToken("user-1", "", "", "", false, 0)
	require.NoError(t, err)

	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}

func TestValidateExpiredToken(t *testing.T) {
	manager := NewJWTManager("test-secret", "opsboard", time.Hour)

	token, err := manager.GenerateToken("user-1", "", "", "", false, -time.Minute)
	require.NoError(t, err)

	_, err = manager.ValidateToken(token)
	assert.Error(t, err)
}

func TestRefreshToken(t *testing.T) {
	manager := NewJWTManager("test-secret", "opsboard", time.Hour)

	token, err := manager.GenerateToken("user-1", "Ana", "", "doctor", true, 0)
	require.NoError(t, err)

	refreshed, err := manager.RefreshToken(token, 2*time.Hour)
	require.NoError(t, err)

	claims, err := manager.ValidateToken(refreshed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.True(t, claims.Admin)
}
