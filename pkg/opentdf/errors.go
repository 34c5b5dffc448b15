package opentdf

import (
	"errors"

	"github.com/opentdf/tests-sub001/pkg/kas"
	"github.com/opentdf/tests-sub001/pkg/nanotdf"
)

var (
	// Configuration errors
	ErrMissingKAS  = errors.New("KAS URL is required")
	ErrKASMismatch = errors.New("envelope names a different KAS")

	// ErrRemotePolicyAttributes is returned when attributes or dissems are
	// given for a remote policy, which cannot carry them.
	ErrRemotePolicyAttributes = errors.New("remote policy cannot carry attributes or dissems")

	// Codec errors
	ErrTruncatedInput      = nanotdf.ErrTruncatedInput
	ErrInvalidPolicyType   = nanotdf.ErrInvalidPolicyType
	ErrInvalidEphemeralKey = nanotdf.ErrInvalidEphemeralKey
	ErrInvalidCurveName    = nanotdf.ErrInvalidCurveName
	ErrPayloadTooLarge     = nanotdf.ErrPayloadTooLarge

	// Integrity errors
	ErrPolicyBinding    = nanotdf.ErrPolicyBinding
	ErrDecryptAuthTag   = nanotdf.ErrDecryptAuthTag
	ErrSignatureInvalid = nanotdf.ErrSignatureInvalid

	// KAS errors
	ErrKASDenied    = kas.ErrDenied
	ErrKASTransient = kas.ErrTransient
	ErrCanceled     = kas.ErrCanceled
)
