package credential

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHashAndCompare(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	hashed, err := h.Hash("26-K7Q2")
	require.NoError(t, err)
	assert.NotEqual(t, "26-K7Q2", hashed)
	assert.True(t, h.Compare("26-K7Q2", hashed))
	assert.False(t, h.Compare("26-K7Q3", hashed))
}

func TestHashIsSalted(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)

	a, err := h.Hash("secret")
	require.NoError(t, err)
	b, err := h.Hash("secret")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDefaultCost(t *testing.T) {
	var h Hasher
	hashed, err := h.Hash("secret")
	require.NoError(t, err)

	cost, err := bcrypt.Cost([]byte(hashed))
	require.NoError(t, err)
	assert.Equal(t, Cost, cost)
	assert.Equal(t, Cost, NewHasher(99).cost)
}

func TestCompareRejectsGarbageHash(t *testing.T) {
	assert.False(t, NewHasher(0).Compare("secret", "not-a-hash"))
}
