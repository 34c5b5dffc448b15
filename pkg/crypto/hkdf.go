package crypto

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// SaltForMagic returns the HKDF salt used for NanoTDF key derivation:
// SHA256(MAGIC_NUMBER + VERSION). For "L1L" this is
// 3de3ca1e50cf62d8b6aba603a96fca6761387a7ac86c3d3afe85ae2d1812edfc.
func SaltForMagic(magicVersion []byte) []byte {
	sum := sha256.Sum256(magicVersion)
	return sum[:]
}

// DeriveKey derives a symmetric encryption key from a shared secret using HKDF-SHA256.
//
// Parameters:
//   - sharedSecret: The ECDH shared secret
//   - salt: The salt for HKDF (use SaltForMagic for NanoTDF)
//   - info: Context/application-specific info (empty for payload keys)
//   - keySize: The desired output key size in bytes (e.g., 32 for AES-256)
func DeriveKey(sharedSecret, salt, info []byte, keySize int) ([]byte, error) {
	if len(sharedSecret) == 0 {
		return nil, errors.New("shared secret cannot be empty")
	}
	if keySize <= 0 {
		return nil, fmt.Errorf("key length must be positive, got %d", keySize)
	}

	reader := hkdf.New(sha256.New, sharedSecret, salt, info)

	key := make([]byte, keySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("HKDF derivation failed: %w", err)
	}

	return key, nil
}
