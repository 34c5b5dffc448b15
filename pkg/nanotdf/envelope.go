package nanotdf

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/opentdf/tests-sub001/pkg/crypto"
)

// Envelope is a parsed NanoTDF: Header || Payload || Signature?.
type Envelope struct {
	Header    *Header
	Payload   Payload
	Signature *Signature

	// raw holds the bytes the envelope was parsed from or marshaled to.
	raw       []byte
	headerLen int
	signedLen int
}

// ParseEnvelope decodes a complete NanoTDF. Trailing bytes are an error.
func ParseEnvelope(data []byte, legacy bool) (*Envelope, error) {
	h, off, err := ParseHeader(data, legacy)
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}

	payload, n, err := ParsePayload(data[off:], h.IVSize(), h.TagSize())
	if err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}

	e := &Envelope{
		Header:    h,
		Payload:   payload,
		raw:       data,
		headerLen: off,
		signedLen: off + n,
	}

	off += n
	if h.HasSignature {
		sig, n, err := ParseSignature(data[off:], h.SignatureECCMode)
		if err != nil {
			return nil, err
		}
		e.Signature = &sig
		off += n
	}

	if off != len(data) {
		return nil, fmt.Errorf("%w: %d bytes", ErrTrailingData, len(data)-off)
	}
	return e, nil
}

// ParseEnvelopeBase64 decodes standard base64 text, tolerating line breaks.
func ParseEnvelopeBase64(text string, legacy bool) (*Envelope, error) {
	data, err := DecodeBase64(text)
	if err != nil {
		return nil, err
	}
	return ParseEnvelope(data, legacy)
}

// DecodeBase64 decodes standard base64 text with any line breaks removed.
func DecodeBase64(text string) ([]byte, error) {
	text = strings.NewReplacer("\r", "", "\n", "").Replace(strings.TrimSpace(text))
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return nil, fmt.Errorf("nanotdf: invalid base64: %w", err)
	}
	return data, nil
}

// HeaderBytes returns the serialized header as it appears in the envelope.
func (e *Envelope) HeaderBytes() []byte {
	return e.raw[:e.headerLen]
}

// SignedBytes returns Header || Payload, the bytes a creator signature covers.
func (e *Envelope) SignedBytes() []byte {
	return e.raw[:e.signedLen]
}

// Bytes returns the serialized envelope.
func (e *Envelope) Bytes() []byte {
	return e.raw
}

// MarshalBinary serializes the envelope from its parts.
func (e *Envelope) MarshalBinary() ([]byte, error) {
	size := e.Header.Length() + e.Payload.Length()
	if e.Signature != nil {
		size += e.Signature.Length()
	}
	b, err := e.Header.AppendBinary(make([]byte, 0, size))
	if err != nil {
		return nil, err
	}
	if b, err = e.Payload.AppendBinary(b); err != nil {
		return nil, err
	}
	if e.Signature != nil {
		b = e.Signature.AppendBinary(b)
	}
	return b, nil
}

// VerifySignature checks the creator signature. Envelopes without a
// signature verify trivially.
func (e *Envelope) VerifySignature(p crypto.Provider) error {
	if !e.Header.HasSignature {
		return nil
	}
	if e.Signature == nil {
		return ErrSignatureInvalid
	}
	if p == nil {
		p = crypto.DefaultProvider
	}

	curve, err := crypto.CurveForMode(e.Header.SignatureECCMode)
	if err != nil {
		return err
	}
	pub, err := crypto.UnmarshalPublicKey(curve, e.Signature.PublicKey)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	if !p.Verify(pub, p.Digest(e.SignedBytes()), e.Signature.Value) {
		return ErrSignatureInvalid
	}
	return nil
}
