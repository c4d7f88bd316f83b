package privacy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	oracle, err := GenerateKeyPair()
	require.NoError(t, err)
	requester, err := GenerateKeyPair()
	require.NoError(t, err)

	plaintext := []byte("3400.50")
	ciphertext, err := EncryptPrice(plaintext, requester.PublicKeyHex(), oracle, "query-nonce-1")
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, ciphertext)

	decrypted, err := DecryptPrice(ciphertext, oracle.PublicKeyHex(), requester.Private, "query-nonce-1")
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestDecrypt_WrongKeyFails(t *testing.T) {
	oracle, err := GenerateKeyPair()
	require.NoError(t, err)
	requester, err := GenerateKeyPair()
	require.NoError(t, err)
	intruder, err := GenerateKeyPair()
	require.NoError(t, err)

	ciphertext, err := EncryptPrice([]byte("3400.50"), requester.PublicKeyHex(), oracle, "query-nonce-1")
	require.NoError(t, err)

	decrypted, err := DecryptPrice(ciphertext, oracle.PublicKeyHex(), intruder.Private, "query-nonce-1")
	assert.Error(t, err)
	assert.Nil(t, decrypted)
}

func TestDecrypt_WrongNonceFails(t *testing.T) {
	oracle, err := GenerateKeyPair()
	require.NoError(t, err)
	requester, err := GenerateKeyPair()
	require.NoError(t, err)

	ciphertext, err := EncryptPrice([]byte("3400.50"), requester.PublicKeyHex(), oracle, "query-nonce-1")
	require.NoError(t, err)

	_, err = DecryptPrice(ciphertext, oracle.PublicKeyHex(), requester.Private, "query-nonce-2")
	assert.Error(t, err)
}

func TestParsePublicKey_Invalid(t *testing.T) {
	_, err := ParsePublicKey("not-hex")
	assert.Error(t, err)

	_, err = ParsePublicKey("abcd")
	assert.Error(t, err)
}
