package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"github.com/ifiokjr/verily/internal/shared"
)

// KeySize is the length in bytes of a Cipher key.
const KeySize = chacha20poly1305.KeySize

var errShortCiphertext = errors.New("ciphertext too short")

// Cipher seals values with XChaCha20-Poly1305. The random nonce is stored
// in front of the ciphertext. A Cipher is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a KeySize-byte key.
func NewCipher(key []byte) (*Cipher, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, shared.DbEncryptionError(err)
	}
	return &Cipher{aead: aead}, nil
}

// ParseKey decodes a hex encoded key as found in ENCRYPTION_KEY.
func ParseKey(s string) ([]byte, error) {
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, shared.DbEncryptionError(fmt.Errorf("decode key: %w", err))
	}
	if len(key) != KeySize {
		return nil, shared.DbEncryptionError(fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key)))
	}
	return key, nil
}

// Seal encrypts plaintext. additionalData is authenticated but not
// encrypted and must be passed unchanged to Open.
func (c *Cipher) Seal(plaintext, additionalData []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(plaintext)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, shared.DbEncryptionError(err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

// Open decrypts a value produced by Seal.
func (c *Cipher) Open(sealed, additionalData []byte) ([]byte, error) {
	n := c.aead.NonceSize()
	if len(sealed) < n+c.aead.Overhead() {
		return nil, shared.DbEncryptionError(errShortCiphertext)
	}
	plaintext, err := c.aead.Open(nil, sealed[:n], sealed[n:], additionalData)
	if err != nil {
		return nil, shared.DbEncryptionError(err)
	}
	return plaintext, nil
}

// GenerateKey returns a fresh random KeySize-byte key, hex encoded. The
// same format is accepted by ParseKey and ParseKeypair.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", shared.DbEncryptionError(err)
	}
	return hex.EncodeToString(key), nil
}
