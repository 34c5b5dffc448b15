package dek

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/opentdf/tests-sub001/pkg/crypto"
	"github.com/opentdf/tests-sub001/pkg/nanotdf"
)

// ContentKey parses a serialized header, derives its content key with the
// KAS private key and verifies the policy binding. The header must be the
// whole of headerBytes.
//
// This is the core operation performed by a key access service when a
// client requests access. A binding failure wraps nanotdf.ErrPolicyBinding.
func ContentKey(p crypto.Provider, headerBytes []byte, kasKey *ecdsa.PrivateKey) (*nanotdf.Header, []byte, error) {
	h, n, err := nanotdf.ParseHeader(headerBytes, false)
	if err != nil {
		return nil, nil, err
	}
	if n != len(headerBytes) {
		return nil, nil, fmt.Errorf("%w: %d bytes after header", nanotdf.ErrTrailingData, len(headerBytes)-n)
	}

	if mode, err := crypto.ModeForCurve(kasKey.Curve); err != nil || mode != h.ECCMode {
		return nil, nil, fmt.Errorf("%w: header uses %s", ErrKeyMismatch, h.ECCMode)
	}

	key, err := nanotdf.DeriveContentKey(p, h, kasKey)
	if err != nil {
		return nil, nil, err
	}
	if err := nanotdf.VerifyBinding(p, h, key); err != nil {
		crypto.Zero(key)
		return nil, nil, err
	}
	return h, key, nil
}

// Rewrap recovers the content key of a header and wraps it for the client.
// It returns the wrapped key and the session public key the client needs
// to unwrap it.
//
// The flow is:
// 1. Client sends the header and its ephemeral public key to the KAS
// 2. KAS derives the content key and verifies the policy binding
// 3. KAS wraps the content key for a session shared with the client
// 4. Client unwraps the content key with its private key
func Rewrap(p crypto.Provider, headerBytes []byte, kasKey *ecdsa.PrivateKey, clientPub *ecdsa.PublicKey) ([]byte, *ecdsa.PublicKey, error) {
	h, key, err := ContentKey(p, headerBytes, kasKey)
	if err != nil {
		return nil, nil, err
	}
	defer crypto.Zero(key)

	return Wrap(p, key, clientPub, h.Salt())
}
