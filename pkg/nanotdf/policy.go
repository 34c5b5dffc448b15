package nanotdf

import (
	"encoding/binary"
	"fmt"
)

// Policy represents the NanoTDF policy section. Type selects which of
// Remote or Content is meaningful:
//
//	PolicyTypeRemote      type | locator | binding
//	embedded types        type | length (2 bytes, big endian) | content | binding
type Policy struct {
	// Type indicates how the policy is stored
	Type PolicyType

	// Remote is the policy locator for PolicyTypeRemote.
	Remote ResourceLocator

	// Content is the embedded policy bytes, plaintext or encrypted.
	Content []byte

	// Binding is the cryptographic binding of the policy to the key:
	// an 8-byte GMAC tag or an ECDSA signature.
	Binding []byte
}

// NewRemotePolicy returns a policy that references a remote policy document.
func NewRemotePolicy(locator ResourceLocator) (Policy, error) {
	if err := locator.Validate(); err != nil {
		return Policy{}, err
	}
	return Policy{Type: PolicyTypeRemote, Remote: locator}, nil
}

// NewEmbeddedPolicy returns an embedded policy. Content longer than
// MaxEmbeddedPolicySize is rejected here rather than at serialization.
func NewEmbeddedPolicy(t PolicyType, content []byte) (Policy, error) {
	if !t.Embedded() {
		return Policy{}, fmt.Errorf("%w: %s is not an embedded type", ErrInvalidPolicyType, t)
	}
	if len(content) > MaxEmbeddedPolicySize {
		return Policy{}, fmt.Errorf("%w: %d bytes", ErrPolicyTooLarge, len(content))
	}
	return Policy{Type: t, Content: content}, nil
}

// BindingSize returns the binding length for the binding mode and curve.
func BindingSize(useECDSA bool, mode ECCMode) (int, error) {
	if !useECDSA {
		return GMACBindingSize, nil
	}
	params, err := mode.Params()
	if err != nil {
		return 0, err
	}
	return params.SignatureSize, nil
}

// Body returns the bytes the binding covers: the serialized locator for a
// remote policy, the content for an embedded one.
func (p Policy) Body() ([]byte, error) {
	switch {
	case p.Type == PolicyTypeRemote:
		return p.Remote.MarshalBinary()
	case p.Type.Embedded():
		return p.Content, nil
	default:
		return nil, fmt.Errorf("%w: 0x%02x", ErrInvalidPolicyType, uint8(p.Type))
	}
}

// Validate checks the policy can be serialized.
func (p Policy) Validate() error {
	switch {
	case p.Type == PolicyTypeRemote:
		return p.Remote.Validate()
	case p.Type.Embedded():
		if len(p.Content) > MaxEmbeddedPolicySize {
			return fmt.Errorf("%w: %d bytes", ErrPolicyTooLarge, len(p.Content))
		}
		return nil
	default:
		return fmt.Errorf("%w: 0x%02x", ErrInvalidPolicyType, uint8(p.Type))
	}
}

// Length returns the serialized size in bytes, binding included.
func (p Policy) Length() int {
	n := 1 + len(p.Binding)
	if p.Type == PolicyTypeRemote {
		return n + p.Remote.Length()
	}
	return n + 2 + len(p.Content)
}

// AppendBinary appends the wire encoding of the policy to b.
func (p Policy) AppendBinary(b []byte) ([]byte, error) {
	switch {
	case p.Type == PolicyTypeRemote:
		b = append(b, byte(p.Type))
		var err error
		if b, err = p.Remote.AppendBinary(b); err != nil {
			return b, err
		}
	case p.Type.Embedded():
		if len(p.Content) > MaxEmbeddedPolicySize {
			return b, fmt.Errorf("%w: %d bytes", ErrPolicyTooLarge, len(p.Content))
		}
		b = append(b, byte(p.Type))
		b = binary.BigEndian.AppendUint16(b, uint16(len(p.Content)))
		b = append(b, p.Content...)
	default:
		return b, fmt.Errorf("%w: 0x%02x", ErrInvalidPolicyType, uint8(p.Type))
	}
	return append(b, p.Binding...), nil
}

// ParsePolicy decodes a policy from the start of buf. The binding length is
// fixed by the binding mode and curve from the header.
func ParsePolicy(buf []byte, useECDSA bool, mode ECCMode) (Policy, int, error) {
	var p Policy
	if len(buf) < 1 {
		return p, 0, fmt.Errorf("%w: policy type", ErrTruncatedInput)
	}
	p.Type = PolicyType(buf[0])
	off := 1

	bindingSize, err := BindingSize(useECDSA, mode)
	if err != nil {
		return p, 0, err
	}

	switch {
	case p.Type == PolicyTypeRemote:
		rl, n, err := ParseResourceLocator(buf[off:])
		if err != nil {
			return p, 0, fmt.Errorf("remote policy: %w", err)
		}
		p.Remote = rl
		off += n
	case p.Type.Embedded():
		if len(buf) < off+2 {
			return p, 0, fmt.Errorf("%w: policy content length", ErrTruncatedInput)
		}
		contentLen := int(binary.BigEndian.Uint16(buf[off:]))
		off += 2
		if len(buf) < off+contentLen {
			return p, 0, fmt.Errorf("%w: policy content needs %d bytes, have %d",
				ErrTruncatedInput, contentLen, len(buf)-off)
		}
		p.Content = append([]byte(nil), buf[off:off+contentLen]...)
		off += contentLen
	default:
		return p, 0, fmt.Errorf("%w: 0x%02x", ErrInvalidPolicyType, uint8(p.Type))
	}

	if len(buf) < off+bindingSize {
		return p, 0, fmt.Errorf("%w: policy binding needs %d bytes, have %d",
			ErrTruncatedInput, bindingSize, len(buf)-off)
	}
	p.Binding = append([]byte(nil), buf[off:off+bindingSize]...)
	off += bindingSize

	return p, off, nil
}
