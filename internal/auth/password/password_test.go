package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndVerify(t *testing.T) {
	hasher := NewArgon2()

	encoded, err := hasher.Hash("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$v=19$"))

	assert.True(t, hasher.Verify("correct horse battery staple", encoded))
	assert.False(t, hasher.Verify("wrong password", encoded))
}

func TestHashIsSalted(t *testing.T) {
	hasher := NewArgon2()

	first, err := hasher.Hash("same input")
	require.NoError(t, err)
	second, err := hasher.Hash("same input")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.True(t, hasher.Verify("same input", first))
	assert.True(t, hasher.Verify("same input", second))
}

func TestVerifyRejectsMalformed(t *testing.T) {
	hasher := NewArgon2()

	for _, encoded := range []string{
		"",
		"plaintext",
		"$argon2id$v=19$m=65536,t=1,p=4$tooFewParts",
		"$bcrypt$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=65536,t=1,p=4$not-base64!$aGFzaA",
	} {
		assert.False(t, hasher.Verify("anything", encoded), "encoded=%q", encoded)
	}
}
