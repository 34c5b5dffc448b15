package nanotdf

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/opentdf/tests-sub001/pkg/crypto"
)

// RewrapPath is appended to the KAS URL to reach the rewrap endpoint.
const RewrapPath = "/v2/rewrap"

// Header represents the NanoTDF header.
// Contains all metadata needed to decrypt the payload.
type Header struct {
	// MagicVersion is the 3-byte magic number and version tag, kept verbatim.
	MagicVersion [MagicVersionSize]byte

	// KAS locates the key access service that holds the private key.
	KAS ResourceLocator

	// UseECDSABinding indicates if ECDSA is used for policy binding (vs GMAC)
	UseECDSABinding bool

	// ECCMode specifies the curve of the ephemeral key
	ECCMode ECCMode

	// HasSignature indicates if the NanoTDF includes a creator signature
	HasSignature bool

	// SignatureECCMode specifies the ECC mode for the signature (if HasSignature)
	SignatureECCMode ECCMode

	// SymmetricCipher specifies the symmetric encryption algorithm
	SymmetricCipher SymmetricCipher

	// Policy contains the policy information
	Policy Policy

	// EphemeralPublicKey is the sender's ephemeral public key, compressed.
	EphemeralPublicKey []byte

	// Legacy selects 3-byte payload IVs. It is not encoded in the header
	// bytes; parsers and writers are told which mode to use.
	Legacy bool
}

// ParseHeader decodes a header from the start of buf and reports how many
// bytes it consumed. The magic number is not checked.
func ParseHeader(buf []byte, legacy bool) (*Header, int, error) {
	h := &Header{Legacy: legacy}

	if len(buf) < MagicVersionSize {
		return nil, 0, fmt.Errorf("%w: magic number", ErrTruncatedInput)
	}
	copy(h.MagicVersion[:], buf)
	off := MagicVersionSize

	kas, n, err := ParseResourceLocator(buf[off:])
	if err != nil {
		return nil, 0, fmt.Errorf("kas locator: %w", err)
	}
	h.KAS = kas
	off += n

	if len(buf) < off+ECCBindingSize+SymmetricSize {
		return nil, 0, fmt.Errorf("%w: mode bytes", ErrTruncatedInput)
	}
	h.UseECDSABinding, h.ECCMode = decodeECCBindingMode(buf[off])
	if _, err := h.ECCMode.Params(); err != nil {
		return nil, 0, fmt.Errorf("ephemeral curve: %w", err)
	}
	off += ECCBindingSize

	h.HasSignature, h.SignatureECCMode, h.SymmetricCipher = decodeSymmetricConfig(buf[off])
	if _, err := h.SymmetricCipher.Suite(); err != nil {
		return nil, 0, err
	}
	if h.HasSignature {
		if _, err := h.SignatureECCMode.Params(); err != nil {
			return nil, 0, fmt.Errorf("signature curve: %w", err)
		}
	}
	off += SymmetricSize

	policy, n, err := ParsePolicy(buf[off:], h.UseECDSABinding, h.ECCMode)
	if err != nil {
		return nil, 0, fmt.Errorf("policy: %w", err)
	}
	h.Policy = policy
	off += n

	keySize := crypto.CompressedPublicKeySize(h.ECCMode)
	if len(buf) < off+keySize {
		return nil, 0, fmt.Errorf("%w: need %d bytes for %s, have %d",
			ErrInvalidEphemeralKey, keySize, h.ECCMode, len(buf)-off)
	}
	h.EphemeralPublicKey = append([]byte(nil), buf[off:off+keySize]...)
	off += keySize

	return h, off, nil
}

// Length returns the serialized size of the header in bytes.
func (h *Header) Length() int {
	return MagicVersionSize + h.KAS.Length() + ECCBindingSize + SymmetricSize +
		h.Policy.Length() + len(h.EphemeralPublicKey)
}

// Validate checks the locators, the policy and the field lengths against
// the curve and binding mode.
func (h *Header) Validate() error {
	if err := h.KAS.Validate(); err != nil {
		return fmt.Errorf("kas locator: %w", err)
	}
	if err := h.Policy.Validate(); err != nil {
		return fmt.Errorf("policy: %w", err)
	}
	keySize := crypto.CompressedPublicKeySize(h.ECCMode)
	if keySize == 0 {
		return fmt.Errorf("%w: mode 0x%02x", ErrInvalidCurveName, uint8(h.ECCMode))
	}
	if len(h.EphemeralPublicKey) != keySize {
		return fmt.Errorf("%w: got %d bytes, %s needs %d",
			ErrInvalidEphemeralKey, len(h.EphemeralPublicKey), h.ECCMode, keySize)
	}
	if _, err := h.SymmetricCipher.Suite(); err != nil {
		return err
	}
	if h.HasSignature {
		if _, err := h.SignatureECCMode.Params(); err != nil {
			return fmt.Errorf("signature curve: %w", err)
		}
	}
	bindingSize, err := BindingSize(h.UseECDSABinding, h.ECCMode)
	if err != nil {
		return err
	}
	if len(h.Policy.Binding) != bindingSize {
		return fmt.Errorf("%w: got %d, want %d", ErrInvalidBindingLength, len(h.Policy.Binding), bindingSize)
	}
	return nil
}

// AppendBinary appends the wire encoding of the header to b.
func (h *Header) AppendBinary(b []byte) ([]byte, error) {
	if err := h.Validate(); err != nil {
		return b, err
	}

	b = append(b, h.MagicVersion[:]...)

	var err error
	if b, err = h.KAS.AppendBinary(b); err != nil {
		return b, fmt.Errorf("kas locator: %w", err)
	}

	b = append(b,
		encodeECCBindingMode(h.UseECDSABinding, h.ECCMode),
		encodeSymmetricConfig(h.HasSignature, h.SignatureECCMode, h.SymmetricCipher))

	if b, err = h.Policy.AppendBinary(b); err != nil {
		return b, fmt.Errorf("policy: %w", err)
	}

	return append(b, h.EphemeralPublicKey...), nil
}

// MarshalBinary returns the wire encoding of the header in a buffer sized
// exactly to Length.
func (h *Header) MarshalBinary() ([]byte, error) {
	return h.AppendBinary(make([]byte, 0, h.Length()))
}

// CopyTo writes the header into dst and returns the number of bytes written.
// It fails without writing if dst is shorter than the header or the header
// does not validate.
func (h *Header) CopyTo(dst []byte) (int, error) {
	n := h.Length()
	if len(dst) < n {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", ErrBufferTooSmall, n, len(dst))
	}
	b, err := h.MarshalBinary()
	if err != nil {
		return 0, err
	}
	return copy(dst, b), nil
}

// KASURL returns the KAS base URL.
func (h *Header) KASURL() (string, error) {
	return h.KAS.URL()
}

// KASRewrapURL returns the rewrap endpoint of the header's KAS.
func (h *Header) KASRewrapURL() (string, error) {
	u, err := h.KAS.URL()
	if err != nil {
		return "", err
	}
	return u + RewrapPath, nil
}

// EphemeralKey decodes the ephemeral public key.
func (h *Header) EphemeralKey() (*ecdsa.PublicKey, error) {
	curve, err := crypto.CurveForMode(h.ECCMode)
	if err != nil {
		return nil, err
	}
	pub, err := crypto.UnmarshalPublicKey(curve, h.EphemeralPublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEphemeralKey, err)
	}
	return pub, nil
}

// IVSize returns the wire IV length of the payload that follows the header.
func (h *Header) IVSize() int {
	return IVSize(h.Legacy)
}

// TagSize returns the payload authentication tag length.
func (h *Header) TagSize() int {
	return h.SymmetricCipher.TagSize()
}

// Salt returns the HKDF salt for keys bound to this header.
func (h *Header) Salt() []byte {
	return crypto.SaltForMagic(h.MagicVersion[:])
}
