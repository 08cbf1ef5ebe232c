package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	mgr := NewJWTManager("test-secret", time.Hour)

	accountID, linkID, installationID := uuid.New(), uuid.New(), uuid.New()
	token, err := mgr.GenerateAccessToken("alice", accountID, linkID, installationID)
	require.NoError(t, err)

	claims, err := mgr.ValidateToken(token)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Handle)
	require.Equal(t, accountID, claims.AccountID)
	require.Equal(t, linkID, claims.LinkID)
	require.Equal(t, installationID, claims.InstallationID)
}

func TestValidateRejectsEmptyHandle(t *testing.T) {
	mgr := NewJWTManager("test-secret", time.Hour)

	token, err := mgr.GenerateAccessToken("", uuid.New(), uuid.New(), uuid.New())
	require.NoError(t, err)

	_, err = mgr.ValidateToken(token)
	require.Error(t, err)
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := NewJWTManager("secret-a", time.Hour).
		GenerateAccessToken("alice", uuid.New(), uuid.New(), uuid.New())
	require.NoError(t, err)

	_, err = NewJWTManager("secret-b", time.Hour).ValidateToken(token)
	require.Error(t, err)
}

func TestValidateRejectsExpired(t *testing.T) {
	mgr := NewJWTManager("test-secret", -time.Minute)

	token, err := mgr.GenerateAccessToken("alice", uuid.New(), uuid.New(), uuid.New())
	require.NoError(t, err)

	_, err = mgr.ValidateToken(token)
	require.Error(t, err)
}

func TestNewRefreshTokenIsOpaqueAndUnique(t *testing.T) {
	a, b := NewRefreshToken(), NewRefreshToken()
	require.Len(t, a, 64)
	require.NotEqual(t, a, b)
}
