// Package crypto provides the cryptographic primitives behind NanoTDF:
// curve tables, ECDH, HKDF, AES-GCM and ECDSA.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

const (
	// AESKeySize is the key size for AES-256 in bytes.
	AESKeySize = 32

	// AESGCMNonceSize is the standard nonce size for AES-GCM (96 bits).
	AESGCMNonceSize = 12

	// AESGCMTagSize is the full authentication tag size for AES-GCM (128 bits).
	AESGCMTagSize = 16

	// MinGCMTagSize is the smallest tag the format allows (64 bits).
	MinGCMTagSize = 8
)

var (
	ErrInvalidKeySize   = errors.New("invalid key size: must be 32 bytes for AES-256")
	ErrInvalidNonceSize = errors.New("invalid nonce size")
	ErrInvalidTagSize   = errors.New("invalid authentication tag size")
	ErrDecryptionFailed = errors.New("decryption failed: authentication error")
)

// GenerateNonce generates a cryptographically secure random nonce for AES-GCM.
func GenerateNonce() ([]byte, error) {
	nonce := make([]byte, AESGCMNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return nonce, nil
}

// NewAESGCM creates an AES-256-GCM cipher.AEAD with the given tag size.
// Go's GCM accepts tag sizes between 12 and 16 bytes natively; shorter
// tags are produced by truncating a full tag (see truncatedGCM).
func NewAESGCM(key []byte, tagSize int) (cipher.AEAD, error) {
	if len(key) != AESKeySize {
		return nil, ErrInvalidKeySize
	}
	if tagSize < MinGCMTagSize || tagSize > AESGCMTagSize {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTagSize, tagSize)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}

	if tagSize >= 12 {
		aead, err := cipher.NewGCMWithTagSize(block, tagSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCM: %w", err)
		}
		return aead, nil
	}

	full, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &truncatedGCM{AEAD: full, tagSize: tagSize}, nil
}

// EncryptAESGCM encrypts plaintext using AES-256-GCM.
// Returns ciphertext with the (possibly truncated) authentication tag appended.
// The nonce must be unique for each encryption with the same key.
func EncryptAESGCM(key, nonce, plaintext, additionalData []byte, tagSize int) ([]byte, error) {
	aead, err := NewAESGCM(key, tagSize)
	if err != nil {
		return nil, err
	}

	if len(nonce) != AESGCMNonceSize {
		return nil, ErrInvalidNonceSize
	}

	return aead.Seal(nil, nonce, plaintext, additionalData), nil
}

// DecryptAESGCM decrypts ciphertext using AES-256-GCM.
// The ciphertext must end with the tagSize-byte authentication tag.
func DecryptAESGCM(key, nonce, ciphertext, additionalData []byte, tagSize int) ([]byte, error) {
	aead, err := NewAESGCM(key, tagSize)
	if err != nil {
		return nil, err
	}

	if len(nonce) != AESGCMNonceSize {
		return nil, ErrInvalidNonceSize
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}

// truncatedGCM exposes a full-tag GCM with a tag shortened to tagSize bytes.
// Opening recomputes the full tag and compares the prefix.
type truncatedGCM struct {
	cipher.AEAD
	tagSize int
}

func (g *truncatedGCM) Overhead() int { return g.tagSize }

func (g *truncatedGCM) Seal(dst, nonce, plaintext, additionalData []byte) []byte {
	sealed := g.AEAD.Seal(nil, nonce, plaintext, additionalData)
	sealed = sealed[:len(plaintext)+g.tagSize]
	return append(dst, sealed...)
}

func (g *truncatedGCM) Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error) {
	if len(ciphertext) < g.tagSize {
		return nil, ErrDecryptionFailed
	}
	body := ciphertext[:len(ciphertext)-g.tagSize]
	tag := ciphertext[len(ciphertext)-g.tagSize:]

	// Recover the keystream by sealing the ciphertext body as plaintext;
	// CTR mode is symmetric so this yields the candidate plaintext.
	ctr := g.AEAD.Seal(nil, nonce, body, nil)
	candidate := ctr[:len(body)]

	expected := g.AEAD.Seal(nil, nonce, candidate, additionalData)
	if !constantTimeEqual(expected[len(candidate):len(candidate)+g.tagSize], tag) {
		return nil, ErrDecryptionFailed
	}
	return append(dst, candidate...), nil
}
