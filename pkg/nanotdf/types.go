// Package nanotdf provides encoding and decoding for the NanoTDF binary format.
// NanoTDF is a compact envelope: a header carrying the KAS locator, the curve
// and cipher configuration, a bound policy and an ephemeral public key,
// followed by an AES-GCM payload and an optional creator signature.
package nanotdf

import (
	"fmt"

	"github.com/opentdf/tests-sub001/pkg/crypto"
)

// Magic number and version tags.
const (
	// MagicNumberVersion is written by the current format: 12-byte payload IVs.
	MagicNumberVersion = "L1L"

	// LegacyMagicNumberVersion is written in legacy mode: 3-byte payload IVs.
	LegacyMagicNumberVersion = "L1K"
)

// ECCMode represents the elliptic curve parameters for NanoTDF.
type ECCMode = crypto.ECCMode

// Re-export ECC modes from crypto package
const (
	ECCModeSecp256r1 = crypto.ECCModeSecp256r1
	ECCModeSecp384r1 = crypto.ECCModeSecp384r1
	ECCModeSecp521r1 = crypto.ECCModeSecp521r1
	ECCModeSecp256k1 = crypto.ECCModeSecp256k1
)

// SymmetricCipher represents the symmetric encryption algorithm.
type SymmetricCipher uint8

const (
	// CipherAES256GCM64 uses AES-256-GCM with 64-bit (8 byte) tag
	CipherAES256GCM64 SymmetricCipher = 0x00
	// CipherAES256GCM96 uses AES-256-GCM with 96-bit (12 byte) tag
	CipherAES256GCM96 SymmetricCipher = 0x01
	// CipherAES256GCM104 uses AES-256-GCM with 104-bit (13 byte) tag
	CipherAES256GCM104 SymmetricCipher = 0x02
	// CipherAES256GCM112 uses AES-256-GCM with 112-bit (14 byte) tag
	CipherAES256GCM112 SymmetricCipher = 0x03
	// CipherAES256GCM120 uses AES-256-GCM with 120-bit (15 byte) tag
	CipherAES256GCM120 SymmetricCipher = 0x04
	// CipherAES256GCM128 uses AES-256-GCM with 128-bit (16 byte) tag
	CipherAES256GCM128 SymmetricCipher = 0x05
)

// CipherSuite describes the fixed parameters of a symmetric cipher.
type CipherSuite struct {
	Name         string
	KeySize      int
	TagBitLength int
}

// TagSize is the authentication tag length in bytes.
func (s CipherSuite) TagSize() int { return s.TagBitLength / 8 }

var cipherTable = [...]CipherSuite{
	CipherAES256GCM64:  {Name: "AES-256-GCM-64", KeySize: crypto.AESKeySize, TagBitLength: 64},
	CipherAES256GCM96:  {Name: "AES-256-GCM-96", KeySize: crypto.AESKeySize, TagBitLength: 96},
	CipherAES256GCM104: {Name: "AES-256-GCM-104", KeySize: crypto.AESKeySize, TagBitLength: 104},
	CipherAES256GCM112: {Name: "AES-256-GCM-112", KeySize: crypto.AESKeySize, TagBitLength: 112},
	CipherAES256GCM120: {Name: "AES-256-GCM-120", KeySize: crypto.AESKeySize, TagBitLength: 120},
	CipherAES256GCM128: {Name: "AES-256-GCM-128", KeySize: crypto.AESKeySize, TagBitLength: 128},
}

// Suite returns the table entry for the cipher.
func (c SymmetricCipher) Suite() (CipherSuite, error) {
	if int(c) >= len(cipherTable) {
		return CipherSuite{}, fmt.Errorf("%w: 0x%02x", ErrUnsupportedCipher, uint8(c))
	}
	return cipherTable[c], nil
}

// TagSize returns the authentication tag size in bytes for a cipher,
// or 0 for an unknown cipher.
func (c SymmetricCipher) TagSize() int {
	s, err := c.Suite()
	if err != nil {
		return 0
	}
	return s.TagSize()
}

func (c SymmetricCipher) String() string {
	if s, err := c.Suite(); err == nil {
		return s.Name
	}
	return fmt.Sprintf("cipher(0x%02x)", uint8(c))
}

// CipherForTagBits maps a tag length in bits to its cipher.
func CipherForTagBits(bits int) (SymmetricCipher, error) {
	for i, s := range cipherTable {
		if s.TagBitLength == bits {
			return SymmetricCipher(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %d-bit tag", ErrUnsupportedCipher, bits)
}

// IVSize returns the wire IV length for the payload.
func IVSize(legacy bool) int {
	if legacy {
		return LegacyIVSize
	}
	return crypto.AESGCMNonceSize
}

// ProtocolEnum represents the protocol for resource locators.
type ProtocolEnum uint8

const (
	ProtocolHTTP  ProtocolEnum = 0x00
	ProtocolHTTPS ProtocolEnum = 0x01
	// 0x02-0x0E are unreserved
	ProtocolSharedResourceDirectory ProtocolEnum = 0x0F
)

// IdentifierType represents the type of identifier in a resource locator.
type IdentifierType uint8

const (
	IdentifierNone   IdentifierType = 0x00
	Identifier2Byte  IdentifierType = 0x01
	Identifier8Byte  IdentifierType = 0x02
	Identifier32Byte IdentifierType = 0x03
)

// Size returns the size in bytes for an identifier type.
func (t IdentifierType) Size() int {
	switch t {
	case Identifier2Byte:
		return 2
	case Identifier8Byte:
		return 8
	case Identifier32Byte:
		return 32
	default:
		return 0
	}
}

func identifierTypeForSize(n int) (IdentifierType, bool) {
	switch n {
	case 0:
		return IdentifierNone, true
	case 2:
		return Identifier2Byte, true
	case 8:
		return Identifier8Byte, true
	case 32:
		return Identifier32Byte, true
	default:
		return IdentifierNone, false
	}
}

// PolicyType represents the type of policy in NanoTDF.
type PolicyType uint8

const (
	PolicyTypeRemote               PolicyType = 0x00
	PolicyTypeEmbeddedPlaintext    PolicyType = 0x01
	PolicyTypeEmbeddedEncrypted    PolicyType = 0x02
	PolicyTypeEmbeddedEncryptedPKA PolicyType = 0x03 // With Policy Key Access
)

func (t PolicyType) String() string {
	switch t {
	case PolicyTypeRemote:
		return "remote"
	case PolicyTypeEmbeddedPlaintext:
		return "embedded-plaintext"
	case PolicyTypeEmbeddedEncrypted:
		return "embedded-encrypted"
	case PolicyTypeEmbeddedEncryptedPKA:
		return "embedded-encrypted-pka"
	default:
		return fmt.Sprintf("policy(0x%02x)", uint8(t))
	}
}

// PolicyTypeForName reverses PolicyType.String.
func PolicyTypeForName(name string) (PolicyType, error) {
	for t := PolicyTypeRemote; t <= PolicyTypeEmbeddedEncryptedPKA; t++ {
		if t.String() == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidPolicyType, name)
}

// Embedded reports whether the policy content is carried in the header.
func (t PolicyType) Embedded() bool {
	return t >= PolicyTypeEmbeddedPlaintext && t <= PolicyTypeEmbeddedEncryptedPKA
}

// Field sizes
const (
	MagicVersionSize  = 3
	ECCBindingSize    = 1
	SymmetricSize     = 1
	PayloadLengthSize = 3
	LegacyIVSize      = 3
	GMACBindingSize   = 8

	// MaxLocatorBodySize is the largest body a 1-byte length can describe.
	MaxLocatorBodySize = 255

	// MaxEmbeddedPolicySize is the largest content a 2-byte length can describe.
	MaxEmbeddedPolicySize = 65535

	// MaxPayloadSize is the largest IV || ciphertext || tag a 3-byte length can describe.
	MaxPayloadSize = 1<<24 - 1
)

// ECC and binding mode byte:
//
//	bit 7     useECDSABinding
//	bits 3-6  reserved, written as zero
//	bits 0-2  ephemeral curve
const (
	eccBindingECDSABit = 7
	eccBindingCurveLow = 0
	curveFieldWidth    = 3
)

// Symmetric and payload config byte:
//
//	bit 7     hasSignature
//	bits 4-6  signature curve
//	bits 0-3  symmetric cipher
const (
	symSignatureBit   = 7
	symSigCurveLow    = 4
	symCipherLow      = 0
	cipherFieldWidth  = 4
	locatorProtoWidth = 4
	locatorIDLow      = 4
)

// bit reports whether bit pos of b is set.
func bit(b byte, pos uint) bool {
	return b&(1<<pos) != 0
}

// field extracts width bits of b starting at bit lo.
func field(b byte, lo, width uint) byte {
	return (b >> lo) & (1<<width - 1)
}

// setBit returns b with bit pos set to v.
func setBit(b byte, pos uint, v bool) byte {
	if v {
		return b | 1<<pos
	}
	return b &^ (1 << pos)
}

// setField returns b with width bits starting at lo replaced by v.
func setField(b byte, lo, width uint, v byte) byte {
	mask := byte(1<<width-1) << lo
	return b&^mask | (v<<lo)&mask
}

func encodeECCBindingMode(useECDSA bool, mode ECCMode) byte {
	b := setField(0, eccBindingCurveLow, curveFieldWidth, byte(mode))
	return setBit(b, eccBindingECDSABit, useECDSA)
}

func decodeECCBindingMode(b byte) (useECDSA bool, mode ECCMode) {
	return bit(b, eccBindingECDSABit), ECCMode(field(b, eccBindingCurveLow, curveFieldWidth))
}

func encodeSymmetricConfig(hasSignature bool, sigMode ECCMode, c SymmetricCipher) byte {
	b := setField(0, symCipherLow, cipherFieldWidth, byte(c))
	b = setField(b, symSigCurveLow, curveFieldWidth, byte(sigMode))
	return setBit(b, symSignatureBit, hasSignature)
}

func decodeSymmetricConfig(b byte) (hasSignature bool, sigMode ECCMode, c SymmetricCipher) {
	return bit(b, symSignatureBit),
		ECCMode(field(b, symSigCurveLow, curveFieldWidth)),
		SymmetricCipher(field(b, symCipherLow, cipherFieldWidth))
}
