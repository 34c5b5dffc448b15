package nanotdf

import (
	"errors"

	"github.com/opentdf/tests-sub001/pkg/crypto"
)

// Codec errors. All are fatal for the envelope being processed.
var (
	ErrTruncatedInput       = errors.New("nanotdf: buffer shorter than declared field")
	ErrInvalidPolicyType    = errors.New("nanotdf: invalid policy type")
	ErrInvalidEphemeralKey  = errors.New("nanotdf: invalid ephemeral public key")
	ErrInvalidCurveName     = crypto.ErrUnsupportedCurve
	ErrUnsupportedCipher    = errors.New("nanotdf: unsupported symmetric cipher")
	ErrPolicyTooLarge       = errors.New("nanotdf: embedded policy exceeds 65535 bytes")
	ErrInvalidLocator       = errors.New("nanotdf: invalid resource locator")
	ErrInvalidBindingLength = errors.New("nanotdf: policy binding has wrong length")
	ErrBufferTooSmall       = errors.New("nanotdf: destination buffer too small")
	ErrPayloadTooLarge      = errors.New("nanotdf: payload exceeds maximum size (16MB)")
	ErrTrailingData         = errors.New("nanotdf: trailing bytes after envelope")
)

// Crypto errors.
var (
	ErrPolicyBinding    = errors.New("nanotdf: policy binding verification failed")
	ErrDecryptAuthTag   = errors.New("nanotdf: payload authentication failed")
	ErrSignatureInvalid = errors.New("nanotdf: creator signature is invalid")
)

// Writer and reader errors.
var (
	ErrMissingRecipientKey = errors.New("recipient public key is required")
	ErrMissingLocator      = errors.New("locator is required")
	ErrMissingKeyResolver  = errors.New("key resolver is required")
	ErrWriterClosed        = errors.New("writer is closed")
	ErrReaderClosed        = errors.New("reader is closed")
)
