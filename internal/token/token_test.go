package token

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRandomLengthAndUniqueness(t *testing.T) {
	a, err := Random(32)
	require.NoError(t, err)
	b, err := Random(32)
	require.NoError(t, err)

	// 32 bytes base64url without padding = 43 characters
	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)
}

func TestHashIsDeterministic(t *testing.T) {
	assert.Equal(t, Hash("abc"), Hash("abc"))
	assert.NotEqual(t, Hash("abc"), Hash("abd"))
	// hex-encoded sha256
	assert.Len(t, Hash("abc"), 64)
}

func TestHashWithSecret(t *testing.T) {
	h := HashWithSecret("tok", "secret")
	assert.Equal(t, Hash("toksecret"), h)
	assert.NotEqual(t, h, HashWithSecret("tok", "other"))
}

func TestEqual(t *testing.T) {
	assert.True(t, Equal(Hash("x"), Hash("x")))
	assert.False(t, Equal(Hash("x"), Hash("y")))
}
