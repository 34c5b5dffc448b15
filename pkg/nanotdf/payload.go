package nanotdf

import (
	"fmt"

	"github.com/opentdf/tests-sub001/pkg/crypto"
)

// Payload is the encrypted section that follows the header:
//
//	length (3 bytes, big endian, covers IV and ciphertext)
//	IV (3 bytes legacy, 12 bytes current)
//	ciphertext || tag
type Payload struct {
	IV                []byte
	CiphertextWithTag []byte

	// TagSize is the tag length at the end of CiphertextWithTag.
	TagSize int
}

// Length returns the serialized size including the length field.
func (p Payload) Length() int {
	return PayloadLengthSize + len(p.IV) + len(p.CiphertextWithTag)
}

// Ciphertext returns the encrypted bytes without the tag.
func (p Payload) Ciphertext() []byte {
	if len(p.CiphertextWithTag) < p.TagSize {
		return nil
	}
	return p.CiphertextWithTag[:len(p.CiphertextWithTag)-p.TagSize]
}

// AuthTag returns the trailing authentication tag.
func (p Payload) AuthTag() []byte {
	if len(p.CiphertextWithTag) < p.TagSize {
		return nil
	}
	return p.CiphertextWithTag[len(p.CiphertextWithTag)-p.TagSize:]
}

// Nonce expands the wire IV into the 12-byte GCM nonce.
func (p Payload) Nonce() ([]byte, error) {
	return crypto.ExpandIV(p.IV)
}

// AppendBinary appends the wire encoding of the payload to b.
func (p Payload) AppendBinary(b []byte) ([]byte, error) {
	n := len(p.IV) + len(p.CiphertextWithTag)
	if n > MaxPayloadSize {
		return b, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, n)
	}
	b = append(b, byte(n>>16), byte(n>>8), byte(n))
	b = append(b, p.IV...)
	return append(b, p.CiphertextWithTag...), nil
}

// ParsePayload decodes a payload from the start of buf.
func ParsePayload(buf []byte, ivSize, tagSize int) (Payload, int, error) {
	var p Payload
	if len(buf) < PayloadLengthSize {
		return p, 0, fmt.Errorf("%w: payload length", ErrTruncatedInput)
	}
	n := int(buf[0])<<16 | int(buf[1])<<8 | int(buf[2])
	off := PayloadLengthSize
	if len(buf) < off+n {
		return p, 0, fmt.Errorf("%w: payload needs %d bytes, have %d", ErrTruncatedInput, n, len(buf)-off)
	}
	if n < ivSize+tagSize {
		return p, 0, fmt.Errorf("%w: payload of %d bytes cannot hold a %d-byte IV and %d-byte tag",
			ErrTruncatedInput, n, ivSize, tagSize)
	}

	p.IV = append([]byte(nil), buf[off:off+ivSize]...)
	p.CiphertextWithTag = append([]byte(nil), buf[off+ivSize:off+n]...)
	p.TagSize = tagSize
	return p, off + n, nil
}

// Signature is the optional creator signature over Header || Payload.
type Signature struct {
	// PublicKey is the signer's compressed public key.
	PublicKey []byte
	// Value is the r || s ECDSA signature.
	Value []byte
}

// Length returns the serialized size.
func (s Signature) Length() int {
	return len(s.PublicKey) + len(s.Value)
}

// AppendBinary appends the wire encoding of the signature to b.
func (s Signature) AppendBinary(b []byte) []byte {
	b = append(b, s.PublicKey...)
	return append(b, s.Value...)
}

// ParseSignature decodes a signature from the start of buf.
func ParseSignature(buf []byte, mode ECCMode) (Signature, int, error) {
	var s Signature
	params, err := mode.Params()
	if err != nil {
		return s, 0, fmt.Errorf("signature curve: %w", err)
	}
	n := params.CompressedKeySize + params.SignatureSize
	if len(buf) < n {
		return s, 0, fmt.Errorf("%w: signature needs %d bytes, have %d", ErrTruncatedInput, n, len(buf))
	}
	s.PublicKey = append([]byte(nil), buf[:params.CompressedKeySize]...)
	s.Value = append([]byte(nil), buf[params.CompressedKeySize:n]...)
	return s, n, nil
}
