package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
	"fmt"

	"github.com/ifiokjr/verily/internal/shared"
)

// Keypair is an ed25519 signing key.
type Keypair struct {
	private ed25519.PrivateKey
}

// ParseKeypair derives a keypair from a hex encoded 32-byte seed.
func ParseKeypair(seedHex string) (Keypair, error) {
	seed, err := hex.DecodeString(seedHex)
	if err != nil {
		return Keypair{}, shared.DbKeypairError(fmt.Errorf("decode seed: %w", err))
	}
	if len(seed) != ed25519.SeedSize {
		return Keypair{}, shared.DbKeypairError(fmt.Errorf("seed must be %d bytes, got %d", ed25519.SeedSize, len(seed)))
	}
	return Keypair{private: ed25519.NewKeyFromSeed(seed)}, nil
}

// Public returns the verifying key.
func (k Keypair) Public() ed25519.PublicKey {
	return k.private.Public().(ed25519.PublicKey)
}

// Sign signs msg.
func (k Keypair) Sign(msg []byte) []byte {
	return ed25519.Sign(k.private, msg)
}

// Verify reports whether sig is a valid signature of msg by pub.
func Verify(pub ed25519.PublicKey, msg, sig []byte) bool {
	return len(pub) == ed25519.PublicKeySize && ed25519.Verify(pub, msg, sig)
}
