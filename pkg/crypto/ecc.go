package crypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
)

// ECCMode represents the elliptic curve parameters used in NanoTDF.
// Maps to the Ephemeral ECC Params Enum of the wire format (3 bits).
type ECCMode uint8

const (
	// ECCModeSecp256r1 is NIST P-256 curve
	ECCModeSecp256r1 ECCMode = 0x00
	// ECCModeSecp384r1 is NIST P-384 curve
	ECCModeSecp384r1 ECCMode = 0x01
	// ECCModeSecp521r1 is NIST P-521 curve
	ECCModeSecp521r1 ECCMode = 0x02
	// ECCModeSecp256k1 is reserved by the format but not supported here.
	ECCModeSecp256k1 ECCMode = 0x03
)

var (
	ErrUnsupportedCurve     = errors.New("unsupported elliptic curve")
	ErrInvalidPublicKey     = errors.New("invalid public key")
	ErrInvalidCompressedKey = errors.New("invalid compressed public key format")
	ErrCurveMismatch        = errors.New("curve mismatch between private and public key")
)

// CurveParams holds the fixed sizes derived from a curve.
type CurveParams struct {
	// Name is the SEC 2 curve name.
	Name string
	// CompressedKeySize is the length of an X9.62 compressed point.
	CompressedKeySize int
	// SignatureSize is the length of an r || s ECDSA signature.
	SignatureSize int
	// JWTAlgorithm is the JWS algorithm that signs with this curve.
	JWTAlgorithm string
}

// curveTable is indexed by ECCMode and must be treated as read-only.
var curveTable = [...]CurveParams{
	ECCModeSecp256r1: {Name: "secp256r1", CompressedKeySize: 33, SignatureSize: 64, JWTAlgorithm: "ES256"},
	ECCModeSecp384r1: {Name: "secp384r1", CompressedKeySize: 49, SignatureSize: 96, JWTAlgorithm: "ES384"},
	ECCModeSecp521r1: {Name: "secp521r1", CompressedKeySize: 67, SignatureSize: 132, JWTAlgorithm: "ES512"},
}

// Params returns the size table entry for the mode.
func (m ECCMode) Params() (CurveParams, error) {
	if int(m) >= len(curveTable) {
		return CurveParams{}, fmt.Errorf("%w: mode 0x%02x", ErrUnsupportedCurve, uint8(m))
	}
	return curveTable[m], nil
}

// String returns the curve name, or a hex tag for unknown modes.
func (m ECCMode) String() string {
	if p, err := m.Params(); err == nil {
		return p.Name
	}
	return fmt.Sprintf("ecc(0x%02x)", uint8(m))
}

// ModeForName maps a curve name ("secp256r1", "P-256", ...) to its mode.
func ModeForName(name string) (ECCMode, error) {
	switch name {
	case "secp256r1", "P-256", "p256":
		return ECCModeSecp256r1, nil
	case "secp384r1", "P-384", "p384":
		return ECCModeSecp384r1, nil
	case "secp521r1", "P-521", "p521":
		return ECCModeSecp521r1, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedCurve, name)
	}
}

// ModeForCurve returns the mode for a Go elliptic curve.
func ModeForCurve(curve elliptic.Curve) (ECCMode, error) {
	if curve == nil {
		return 0, ErrUnsupportedCurve
	}
	return ModeForName(curve.Params().Name)
}

// CurveForMode returns the elliptic.Curve for a given ECCMode.
func CurveForMode(mode ECCMode) (elliptic.Curve, error) {
	switch mode {
	case ECCModeSecp256r1:
		return elliptic.P256(), nil
	case ECCModeSecp384r1:
		return elliptic.P384(), nil
	case ECCModeSecp521r1:
		return elliptic.P521(), nil
	case ECCModeSecp256k1:
		return nil, fmt.Errorf("%w: secp256k1 not available in standard library", ErrUnsupportedCurve)
	default:
		return nil, fmt.Errorf("%w: mode 0x%02x", ErrUnsupportedCurve, uint8(mode))
	}
}

// CompressedPublicKeySize returns the size in bytes of a compressed public key
// for the given mode, or 0 if the mode is unknown.
func CompressedPublicKeySize(mode ECCMode) int {
	p, err := mode.Params()
	if err != nil {
		return 0
	}
	return p.CompressedKeySize
}

// SignatureSize returns the size in bytes of an ECDSA signature for the given mode.
// Signature is r || s, each component padded to the curve's byte size.
func SignatureSize(mode ECCMode) int {
	p, err := mode.Params()
	if err != nil {
		return 0
	}
	return p.SignatureSize
}

// GenerateECCKeyPair generates a new ECDSA key pair for the given curve mode.
func GenerateECCKeyPair(mode ECCMode) (*ecdsa.PrivateKey, error) {
	curve, err := CurveForMode(mode)
	if err != nil {
		return nil, err
	}

	privateKey, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ECC key pair: %w", err)
	}

	return privateKey, nil
}

// CompressPublicKey compresses an ECDSA public key to X9.62 compressed format.
func CompressPublicKey(pub *ecdsa.PublicKey) ([]byte, error) {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil, ErrInvalidPublicKey
	}
	return elliptic.MarshalCompressed(pub.Curve, pub.X, pub.Y), nil
}

// DecompressPublicKey decompresses an X9.62 compressed public key.
func DecompressPublicKey(curve elliptic.Curve, compressed []byte) (*ecdsa.PublicKey, error) {
	byteLen := (curve.Params().BitSize + 7) / 8
	if len(compressed) != 1+byteLen {
		return nil, ErrInvalidCompressedKey
	}

	x, y := elliptic.UnmarshalCompressed(curve, compressed)
	if x == nil {
		return nil, ErrInvalidCompressedKey
	}

	return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
}

// UnmarshalPublicKey unmarshals a public key from either compressed or uncompressed format.
func UnmarshalPublicKey(curve elliptic.Curve, data []byte) (*ecdsa.PublicKey, error) {
	if len(data) == 0 {
		return nil, ErrInvalidPublicKey
	}

	switch data[0] {
	case 0x04:
		x, y := elliptic.Unmarshal(curve, data) //nolint:staticcheck // points arrive in X9.62 form
		if x == nil {
			return nil, ErrInvalidPublicKey
		}
		return &ecdsa.PublicKey{Curve: curve, X: x, Y: y}, nil
	case 0x02, 0x03:
		return DecompressPublicKey(curve, data)
	default:
		return nil, ErrInvalidPublicKey
	}
}

// ECDH performs Elliptic Curve Diffie-Hellman key exchange and returns the
// X coordinate of the shared point, padded to the curve byte length.
func ECDH(privateKey *ecdsa.PrivateKey, publicKey *ecdsa.PublicKey) ([]byte, error) {
	if privateKey == nil || publicKey == nil {
		return nil, ErrInvalidPublicKey
	}

	if privateKey.Curve != publicKey.Curve {
		return nil, fmt.Errorf("%w: %s and %s", ErrCurveMismatch,
			privateKey.Curve.Params().Name, publicKey.Curve.Params().Name)
	}

	priv, err := privateKey.ECDH()
	if err != nil {
		return nil, fmt.Errorf("failed to convert private key: %w", err)
	}
	pub, err := publicKey.ECDH()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}

	secret, err := priv.ECDH(pub)
	if err != nil {
		return nil, fmt.Errorf("ECDH operation failed: %w", err)
	}
	return secret, nil
}

// SignECDSA signs a message hash using ECDSA.
// Returns the signature as r || s, each padded to the curve's byte size.
func SignECDSA(privateKey *ecdsa.PrivateKey, hash []byte) ([]byte, error) {
	r, s, err := ecdsa.Sign(rand.Reader, privateKey, hash)
	if err != nil {
		return nil, fmt.Errorf("ECDSA signing failed: %w", err)
	}

	byteLen := (privateKey.Curve.Params().BitSize + 7) / 8

	sig := make([]byte, byteLen*2)
	r.FillBytes(sig[:byteLen])
	s.FillBytes(sig[byteLen:])

	return sig, nil
}

// VerifyECDSA verifies an r || s ECDSA signature.
func VerifyECDSA(publicKey *ecdsa.PublicKey, hash, signature []byte) bool {
	if publicKey == nil {
		return false
	}
	byteLen := (publicKey.Curve.Params().BitSize + 7) / 8

	if len(signature) != byteLen*2 {
		return false
	}

	r := new(big.Int).SetBytes(signature[:byteLen])
	s := new(big.Int).SetBytes(signature[byteLen:])

	return ecdsa.Verify(publicKey, hash, r, s)
}

// HashForSigning computes SHA-256 hash of data for ECDSA signing.
func HashForSigning(data []byte) []byte {
	hash := sha256.Sum256(data)
	return hash[:]
}

// MarshalPublicKeyPEM encodes a public key as a PKIX "PUBLIC KEY" PEM block.
func MarshalPublicKeyPEM(pub *ecdsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("failed to marshal public key: %w", err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// ParsePublicKeyPEM decodes an EC public key from a PKIX PEM block or a
// certificate PEM block.
func ParsePublicKeyPEM(data []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block found", ErrInvalidPublicKey)
	}

	var key any
	switch block.Type {
	case "CERTIFICATE":
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		key = cert.PublicKey
	default:
		k, err := x509.ParsePKIXPublicKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		key = k
	}

	pub, ok := key.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: expected EC key, got %T", ErrInvalidPublicKey, key)
	}
	return pub, nil
}

// MarshalPrivateKeyPEM encodes a private key as a PKCS#8 PEM block.
func MarshalPrivateKeyPEM(priv *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// ParsePrivateKeyPEM decodes an EC private key from PKCS#8 or SEC 1 PEM.
func ParsePrivateKeyPEM(data []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}

	if block.Type == "EC PRIVATE KEY" {
		return x509.ParseECPrivateKey(block.Bytes)
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse private key: %w", err)
	}
	priv, ok := key.(*ecdsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("expected EC private key, got %T", key)
	}
	return priv, nil
}
