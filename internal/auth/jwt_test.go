package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndValidate(t *testing.T) {
	secret := []byte("secret")

	token, err := GenerateToken(secret, 7, 0)
	require.NoError(t, err)

	actor, err := ValidateToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, int64(7), actor.UserID)
	assert.Zero(t, actor.SupplierID)
}

func TestSupplierClaim(t *testing.T) {
	secret := []byte("secret")

	token, err := GenerateToken(secret, 99, 10)
	require.NoError(t, err)

	actor, err := ValidateToken(secret, token)
	require.NoError(t, err)
	assert.Equal(t, int64(99), actor.UserID)
	assert.Equal(t, int64(10), actor.SupplierID)
}

func TestWrongSecretRejected(t *testing.T) {
	token, err := GenerateToken([]byte("secret"), 7, 0)
	require.NoError(t, err)

	_, err = ValidateToken([]byte("other"), token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGarbageRejected(t *testing.T) {
	_, err := ValidateToken([]byte("secret"), "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
