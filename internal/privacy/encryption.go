package privacy

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/nacl/box"

	"github.com/veilora/veil-oracle-go/internal/models"
)

// BoxKeyPair is an X25519 key pair used for authenticated price encryption.
type BoxKeyPair struct {
	Public  *[32]byte
	Private *[32]byte
}

// GenerateKeyPair creates a fresh X25519 key pair.
func GenerateKeyPair() (*BoxKeyPair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}
	return &BoxKeyPair{Public: pub, Private: priv}, nil
}

// PublicKeyHex returns the hex wire form of the public key.
func (kp *BoxKeyPair) PublicKeyHex() string {
	return hex.EncodeToString(kp.Public[:])
}

// ParsePublicKey decodes a hex-encoded 32-byte X25519 public key.
func ParsePublicKey(pubHex string) (*[32]byte, error) {
	raw, err := hex.DecodeString(pubHex)
	if err != nil {
		return nil, fmt.Errorf("public key is not valid hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("public key must be 32 bytes, got %d", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &key, nil
}

// deriveBoxNonce derives the 24-byte box nonce from the query nonce. The
// replay guard upstream guarantees a query nonce is never reused for the
// same feed, so the derived nonce is unique per ciphertext.
func deriveBoxNonce(nonce string) [24]byte {
	sum := sha256.Sum256([]byte("veil-oracle-box:" + nonce))
	var out [24]byte
	copy(out[:], sum[:24])
	return out
}

// EncryptPrice seals the plaintext for the requester using the oracle's
// private key, so the requester can authenticate the sender.
func EncryptPrice(plaintext []byte, requesterPublicKey string, sender *BoxKeyPair, nonce string) ([]byte, error) {
	pub, err := ParsePublicKey(requesterPublicKey)
	if err != nil {
		return nil, models.WrapOracleError(models.ErrEncryptionFailed, "invalid requester public key", err)
	}
	boxNonce := deriveBoxNonce(nonce)
	return box.Seal(nil, plaintext, &boxNonce, pub, sender.Private), nil
}

// DecryptPrice opens a sealed price with the requester's private key and the
// oracle's public key. A wrong key fails, it never yields wrong data.
func DecryptPrice(ciphertext []byte, oraclePublicKey string, recipientPrivate *[32]byte, nonce string) ([]byte, error) {
	pub, err := ParsePublicKey(oraclePublicKey)
	if err != nil {
		return nil, models.WrapOracleError(models.ErrDecryptionFailed, "invalid oracle public key", err)
	}
	boxNonce := deriveBoxNonce(nonce)
	plaintext, ok := box.Open(nil, ciphertext, &boxNonce, pub, recipientPrivate)
	if !ok {
		return nil, models.NewOracleError(models.ErrDecryptionFailed, "authentication failed")
	}
	return plaintext, nil
}
