package nanotdf

import (
	"crypto/ecdsa"
	"crypto/subtle"
	"fmt"

	"github.com/opentdf/tests-sub001/pkg/crypto"
)

// ComputeBinding returns the policy binding for h.Policy.
//
// GMAC mode seals the policy body under the content key with the reserved
// binding IV and keeps the first 8 bytes of the tag. ECDSA mode signs the
// SHA-256 digest of the policy body with the ephemeral private key.
func ComputeBinding(p crypto.Provider, h *Header, key []byte, ephemeral *ecdsa.PrivateKey) ([]byte, error) {
	if p == nil {
		p = crypto.DefaultProvider
	}
	body, err := h.Policy.Body()
	if err != nil {
		return nil, err
	}

	if h.UseECDSABinding {
		if ephemeral == nil {
			return nil, fmt.Errorf("%w: ECDSA binding needs the ephemeral private key", ErrPolicyBinding)
		}
		return p.Sign(ephemeral, p.Digest(body))
	}
	return gmacBinding(p, h, key, body)
}

// VerifyBinding checks h.Policy.Binding. GMAC bindings need the content
// key; ECDSA bindings are checked against the ephemeral public key and key
// may be nil.
func VerifyBinding(p crypto.Provider, h *Header, key []byte) error {
	if p == nil {
		p = crypto.DefaultProvider
	}
	body, err := h.Policy.Body()
	if err != nil {
		return err
	}

	if h.UseECDSABinding {
		pub, err := h.EphemeralKey()
		if err != nil {
			return err
		}
		if !p.Verify(pub, p.Digest(body), h.Policy.Binding) {
			return ErrPolicyBinding
		}
		return nil
	}

	expected, err := gmacBinding(p, h, key, body)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare(expected, h.Policy.Binding) != 1 {
		return ErrPolicyBinding
	}
	return nil
}

func gmacBinding(p crypto.Provider, h *Header, key, body []byte) ([]byte, error) {
	tagSize := h.TagSize()
	if tagSize == 0 {
		return nil, fmt.Errorf("%w: 0x%02x", ErrUnsupportedCipher, uint8(h.SymmetricCipher))
	}
	sealed, err := p.AEADEncrypt(key, crypto.NonceFromCounter(crypto.BindingIVCounter), body, nil, tagSize)
	if err != nil {
		return nil, fmt.Errorf("gmac binding: %w", err)
	}
	tag := sealed[len(sealed)-tagSize:]
	return append([]byte(nil), tag[:GMACBindingSize]...), nil
}

// EncryptPolicyContent seals an embedded policy under the content key with
// the reserved policy IV.
func EncryptPolicyContent(p crypto.Provider, key, policy []byte, c SymmetricCipher) ([]byte, error) {
	if p == nil {
		p = crypto.DefaultProvider
	}
	return p.AEADEncrypt(key, crypto.NonceFromCounter(crypto.PolicyIVCounter), policy, nil, c.TagSize())
}

// DecryptPolicyContent reverses EncryptPolicyContent.
func DecryptPolicyContent(p crypto.Provider, key, content []byte, c SymmetricCipher) ([]byte, error) {
	if p == nil {
		p = crypto.DefaultProvider
	}
	plain, err := p.AEADDecrypt(key, crypto.NonceFromCounter(crypto.PolicyIVCounter), content, nil, c.TagSize())
	if err != nil {
		return nil, fmt.Errorf("%w: embedded policy", ErrDecryptAuthTag)
	}
	return plain, nil
}

// DeriveContentKey recomputes the payload key from the KAS private key and
// the header's ephemeral public key. Only the holder of the KAS key can
// call it; clients obtain the key through a rewrap.
func DeriveContentKey(p crypto.Provider, h *Header, kasKey *ecdsa.PrivateKey) ([]byte, error) {
	pub, err := h.EphemeralKey()
	if err != nil {
		return nil, err
	}
	key, err := crypto.SharedKey(p, kasKey, pub, h.Salt())
	if err != nil {
		return nil, fmt.Errorf("derive content key: %w", err)
	}
	return key, nil
}
