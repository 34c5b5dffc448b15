package crypto

import (
	"crypto/ecdsa"
)

// Provider is the seam between the NanoTDF codec and a crypto backend.
// Implementations must be safe for concurrent use; key pairs passed in are
// single-use and never shared between calls by this module.
type Provider interface {
	// GenerateKeyPair returns a fresh key pair on the curve.
	GenerateKeyPair(mode ECCMode) (*ecdsa.PrivateKey, error)
	// DeriveSharedSecret runs ECDH.
	DeriveSharedSecret(priv *ecdsa.PrivateKey, pub *ecdsa.PublicKey) ([]byte, error)
	// DeriveKey runs HKDF-SHA256.
	DeriveKey(secret, salt, info []byte, size int) ([]byte, error)
	// AEADEncrypt seals with AES-256-GCM and a tagSize-byte tag.
	AEADEncrypt(key, nonce, plaintext, aad []byte, tagSize int) ([]byte, error)
	// AEADDecrypt opens an AES-256-GCM ciphertext with a tagSize-byte tag.
	AEADDecrypt(key, nonce, ciphertext, aad []byte, tagSize int) ([]byte, error)
	// Sign produces an r || s ECDSA signature over digest.
	Sign(priv *ecdsa.PrivateKey, digest []byte) ([]byte, error)
	// Verify checks an r || s ECDSA signature.
	Verify(pub *ecdsa.PublicKey, digest, signature []byte) bool
	// Digest is SHA-256.
	Digest(data []byte) []byte
}

// StdProvider implements Provider on the Go standard library and x/crypto.
type StdProvider struct{}

// DefaultProvider is used wherever no Provider is injected.
var DefaultProvider Provider = StdProvider{}

func (StdProvider) GenerateKeyPair(mode ECCMode) (*ecdsa.PrivateKey, error) {
	return GenerateECCKeyPair(mode)
}

func (StdProvider) DeriveSharedSecret(priv *ecdsa.PrivateKey, pub *ecdsa.PublicKey) ([]byte, error) {
	return ECDH(priv, pub)
}

func (StdProvider) DeriveKey(secret, salt, info []byte, size int) ([]byte, error) {
	return DeriveKey(secret, salt, info, size)
}

func (StdProvider) AEADEncrypt(key, nonce, plaintext, aad []byte, tagSize int) ([]byte, error) {
	return EncryptAESGCM(key, nonce, plaintext, aad, tagSize)
}

func (StdProvider) AEADDecrypt(key, nonce, ciphertext, aad []byte, tagSize int) ([]byte, error) {
	return DecryptAESGCM(key, nonce, ciphertext, aad, tagSize)
}

func (StdProvider) Sign(priv *ecdsa.PrivateKey, digest []byte) ([]byte, error) {
	return SignECDSA(priv, digest)
}

func (StdProvider) Verify(pub *ecdsa.PublicKey, digest, signature []byte) bool {
	return VerifyECDSA(pub, digest, signature)
}

func (StdProvider) Digest(data []byte) []byte {
	return HashForSigning(data)
}

// SharedKey runs ECDH followed by HKDF with the given salt and an empty info,
// producing an AES-256 key. Both sides of a NanoTDF exchange use it.
func SharedKey(p Provider, priv *ecdsa.PrivateKey, pub *ecdsa.PublicKey, salt []byte) ([]byte, error) {
	if p == nil {
		p = DefaultProvider
	}
	secret, err := p.DeriveSharedSecret(priv, pub)
	if err != nil {
		return nil, err
	}
	defer Zero(secret)
	return p.DeriveKey(secret, salt, nil, AESKeySize)
}

// Zero overwrites b with zeros.
func Zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
