package cryptoutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := []byte("0123456789abcdef0123456789abcdef")
	return key[:32]
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := testKey(t)
	ct, err := SealAESGCM(key, []byte("super secret totp seed"))
	require.NoError(t, err)

	pt, err := OpenAESGCM(key, ct)
	require.NoError(t, err)
	assert.Equal(t, "super secret totp seed", string(pt))
}

func TestOpenDetectsTamper(t *testing.T) {
	key := testKey(t)
	ct, err := SealAESGCM(key, []byte("payload"))
	require.NoError(t, err)

	tampered := []byte(ct)
	// flip a character in the middle of the base64 body.
	mid := len(tampered) / 2
	if tampered[mid] == 'A' {
		tampered[mid] = 'B'
	} else {
		tampered[mid] = 'A'
	}

	_, err = OpenAESGCM(key, string(tampered))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CRYPTO_TAMPERED")
}

func TestChainHashDeterministic(t *testing.T) {
	h1 := ChainHash("42", "USER_REGISTRATION", "2026-01-01T00:00:00.000000Z", GenesisHash)
	h2 := ChainHash("42", "USER_REGISTRATION", "2026-01-01T00:00:00.000000Z", GenesisHash)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
	assert.Equal(t, strings.ToLower(h1), h1)
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, ConstantTimeEqual("abc", "abc"))
	assert.False(t, ConstantTimeEqual("abc", "abd"))
	assert.False(t, ConstantTimeEqual("abc", "ab"))
}

func TestSecureTokenLength(t *testing.T) {
	tok, err := SecureToken(32)
	require.NoError(t, err)
	assert.NotEmpty(t, tok)
	tok2, err := SecureToken(32)
	require.NoError(t, err)
	assert.NotEqual(t, tok, tok2)
}
