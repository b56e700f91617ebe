package password_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"tollbooth/backend/services/toll-controller/internal/password"
)

func TestBcryptHasher_RoundTrip(t *testing.T) {
	h := password.NewBcryptHasher(bcrypt.MinCost)

	hash, err := h.Hash("booth-secret")
	require.NoError(t, err)
	assert.NotEqual(t, "booth-secret", hash)

	assert.NoError(t, h.Compare(hash, "booth-secret"))
	assert.ErrorIs(t, h.Compare(hash, "wrong"), bcrypt.ErrMismatchedHashAndPassword)
}

func TestBcryptHasher_EmptyPassword(t *testing.T) {
	_, err := password.NewBcryptHasher(bcrypt.MinCost).Hash("")
	assert.ErrorIs(t, err, password.ErrEmptyPassword)
}
