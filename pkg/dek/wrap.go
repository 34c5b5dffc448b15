package dek

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/opentdf/tests-sub001/pkg/crypto"
)

// Wrap seals key for a client. A fresh session key pair is generated on the
// client's curve; the wrapping key is HKDF(ECDH(sessionPriv, clientPub), salt).
// The wrapped form is nonce || ciphertext || tag.
func Wrap(p crypto.Provider, key []byte, clientPub *ecdsa.PublicKey, salt []byte) ([]byte, *ecdsa.PublicKey, error) {
	if err := Validate(key); err != nil {
		return nil, nil, err
	}
	if p == nil {
		p = crypto.DefaultProvider
	}
	if clientPub == nil {
		return nil, nil, crypto.ErrInvalidPublicKey
	}

	mode, err := crypto.ModeForCurve(clientPub.Curve)
	if err != nil {
		return nil, nil, err
	}
	session, err := p.GenerateKeyPair(mode)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate session key: %w", err)
	}

	wrapKey, err := crypto.SharedKey(p, session, clientPub, salt)
	if err != nil {
		return nil, nil, err
	}
	defer crypto.Zero(wrapKey)

	nonce, err := crypto.GenerateNonce()
	if err != nil {
		return nil, nil, err
	}
	sealed, err := p.AEADEncrypt(wrapKey, nonce, key, nil, crypto.AESGCMTagSize)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to wrap key: %w", err)
	}

	return append(nonce, sealed...), &session.PublicKey, nil
}

// Unwrap reverses Wrap on the client with its private key and the session
// public key returned by the KAS.
func Unwrap(p crypto.Provider, wrapped []byte, sessionPub *ecdsa.PublicKey, clientPriv *ecdsa.PrivateKey, salt []byte) ([]byte, error) {
	if p == nil {
		p = crypto.DefaultProvider
	}
	if len(wrapped) < crypto.AESGCMNonceSize+crypto.AESGCMTagSize {
		return nil, fmt.Errorf("%w: wrapped key is %d bytes", ErrUnwrapFailed, len(wrapped))
	}

	wrapKey, err := crypto.SharedKey(p, clientPriv, sessionPub, salt)
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(wrapKey)

	nonce := wrapped[:crypto.AESGCMNonceSize]
	key, err := p.AEADDecrypt(wrapKey, nonce, wrapped[crypto.AESGCMNonceSize:], nil, crypto.AESGCMTagSize)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnwrapFailed, err)
	}

	if err := Validate(key); err != nil {
		crypto.Zero(key)
		return nil, fmt.Errorf("unwrapped key has invalid size: %w", err)
	}
	return key, nil
}
