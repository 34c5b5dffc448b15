// Package dek manages NanoTDF content keys on the key access side: recovering
// a content key from a header, and wrapping it for a client session.
package dek

import (
	"errors"
	"fmt"

	"github.com/opentdf/tests-sub001/pkg/crypto"
)

const (
	// KeySize is the size of a content key in bytes (256 bits for AES-256).
	KeySize = crypto.AESKeySize
)

var (
	ErrInvalidKeySize = errors.New("invalid content key size: must be 32 bytes")
	ErrKeyMismatch    = errors.New("header curve does not match the KAS key")
	ErrUnwrapFailed   = errors.New("unwrap of session-wrapped key failed")
)

// Validate checks if a key has the correct size.
func Validate(key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(key))
	}
	return nil
}
