package nanotdf

import (
	"bytes"
	"crypto/ecdsa"
	"fmt"
	"io"
	"sync"

	"github.com/opentdf/tests-sub001/pkg/crypto"
)

// Config contains configuration for NanoTDF encryption. The zero value of
// each enum field is valid: secp256r1, a 64-bit tag and a remote policy.
type Config struct {
	// KASURL is the http or https URL of the key access service.
	KASURL string

	// KASKeyID is an optional 2, 8 or 32 byte identifier of the KAS key.
	KASKeyID []byte

	// RecipientPublicKey is the KAS public key for ECDH.
	RecipientPublicKey *ecdsa.PublicKey

	// ECCMode specifies the elliptic curve of the ephemeral key. It must
	// match the curve of RecipientPublicKey.
	ECCMode ECCMode

	// SymmetricCipher specifies the AES-GCM tag size.
	SymmetricCipher SymmetricCipher

	// PolicyType specifies how the policy is stored.
	PolicyType PolicyType

	// Policy is the policy document for embedded policies.
	Policy []byte

	// PolicyLocator is the policy location for PolicyTypeRemote. When nil
	// it defaults to "{KASURL}/policy".
	PolicyLocator *ResourceLocator

	// UseECDSABinding uses ECDSA for policy binding instead of GMAC.
	UseECDSABinding bool

	// SignPayload appends a creator signature over Header || Payload.
	// SigningKey signs it, or the ephemeral key when SigningKey is nil.
	SignPayload bool
	SigningKey  *ecdsa.PrivateKey

	// Legacy writes the "L1K" magic and 3-byte payload IVs.
	Legacy bool

	// Provider is the crypto backend; nil selects crypto.DefaultProvider.
	Provider crypto.Provider
}

// Encryptor seals any number of payloads under one header and content key.
// Each payload gets the next IV from a per-key counter, so no IV repeats.
type Encryptor struct {
	mu          sync.Mutex
	config      Config
	provider    crypto.Provider
	header      *Header
	headerBytes []byte
	key         []byte
	ephemeral   *ecdsa.PrivateKey
	signer      *ecdsa.PrivateKey
	signerPub   []byte
	ivs         *crypto.IVCounter
	closed      bool
}

// NewEncryptor generates a fresh ephemeral key pair, derives the content key
// and builds the header.
func NewEncryptor(config Config) (*Encryptor, error) {
	if config.KASURL == "" {
		return nil, ErrMissingLocator
	}
	if config.RecipientPublicKey == nil {
		return nil, ErrMissingRecipientKey
	}
	if _, err := config.SymmetricCipher.Suite(); err != nil {
		return nil, err
	}

	p := config.Provider
	if p == nil {
		p = crypto.DefaultProvider
	}

	kas, err := ResourceLocatorFromURL(config.KASURL)
	if err != nil {
		return nil, err
	}
	kas.Identifier = config.KASKeyID
	if err := kas.Validate(); err != nil {
		return nil, err
	}

	if mode, err := crypto.ModeForCurve(config.RecipientPublicKey.Curve); err != nil || mode != config.ECCMode {
		return nil, fmt.Errorf("%w: recipient key is not on %s", crypto.ErrCurveMismatch, config.ECCMode)
	}

	policy, err := buildPolicy(config, kas)
	if err != nil {
		return nil, err
	}

	ephemeral, err := p.GenerateKeyPair(config.ECCMode)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}

	compressedKey, err := crypto.CompressPublicKey(&ephemeral.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to compress ephemeral key: %w", err)
	}

	h := &Header{
		KAS:                kas,
		ECCMode:            config.ECCMode,
		UseECDSABinding:    config.UseECDSABinding,
		SymmetricCipher:    config.SymmetricCipher,
		HasSignature:       config.SignPayload,
		Policy:             policy,
		EphemeralPublicKey: compressedKey,
		Legacy:             config.Legacy,
	}
	magic := MagicNumberVersion
	if config.Legacy {
		magic = LegacyMagicNumberVersion
	}
	copy(h.MagicVersion[:], magic)

	key, err := crypto.SharedKey(p, ephemeral, config.RecipientPublicKey, h.Salt())
	if err != nil {
		return nil, fmt.Errorf("key derivation failed: %w", err)
	}

	e := &Encryptor{
		config:    config,
		provider:  p,
		header:    h,
		key:       key,
		ephemeral: ephemeral,
		ivs:       crypto.NewIVCounter(),
	}

	if err := e.setupPolicy(); err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to setup policy: %w", err)
	}
	if err := e.setupSigner(); err != nil {
		e.Close()
		return nil, err
	}

	if e.headerBytes, err = h.MarshalBinary(); err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to marshal header: %w", err)
	}

	return e, nil
}

func buildPolicy(config Config, kas ResourceLocator) (Policy, error) {
	switch config.PolicyType {
	case PolicyTypeRemote:
		if config.PolicyLocator != nil {
			return NewRemotePolicy(*config.PolicyLocator)
		}
		return NewRemotePolicy(NewResourceLocator(kas.Body+"/policy", kas.Protocol))
	case PolicyTypeEmbeddedPlaintext, PolicyTypeEmbeddedEncrypted:
		return NewEmbeddedPolicy(config.PolicyType, config.Policy)
	default:
		return Policy{}, fmt.Errorf("%w: cannot write %s", ErrInvalidPolicyType, config.PolicyType)
	}
}

// setupPolicy encrypts an embedded policy if requested and computes the binding.
func (e *Encryptor) setupPolicy() error {
	if e.header.Policy.Type == PolicyTypeEmbeddedEncrypted {
		sealed, err := EncryptPolicyContent(e.provider, e.key, e.header.Policy.Content, e.config.SymmetricCipher)
		if err != nil {
			return err
		}
		if len(sealed) > MaxEmbeddedPolicySize {
			return fmt.Errorf("%w: %d bytes once encrypted", ErrPolicyTooLarge, len(sealed))
		}
		e.header.Policy.Content = sealed
	}

	binding, err := ComputeBinding(e.provider, e.header, e.key, e.ephemeral)
	if err != nil {
		return err
	}
	e.header.Policy.Binding = binding
	return nil
}

func (e *Encryptor) setupSigner() error {
	if !e.config.SignPayload {
		return nil
	}
	e.signer = e.config.SigningKey
	if e.signer == nil {
		e.signer = e.ephemeral
	}
	mode, err := crypto.ModeForCurve(e.signer.Curve)
	if err != nil {
		return fmt.Errorf("signing key: %w", err)
	}
	e.header.SignatureECCMode = mode
	if e.signerPub, err = crypto.CompressPublicKey(&e.signer.PublicKey); err != nil {
		return fmt.Errorf("signing key: %w", err)
	}
	return nil
}

// Header returns the header shared by every envelope this Encryptor seals.
func (e *Encryptor) Header() *Header {
	return e.header
}

// Seal encrypts plaintext into a complete NanoTDF.
func (e *Encryptor) Seal(plaintext []byte) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil, ErrWriterClosed
	}

	nonce, err := e.ivs.Next()
	if err != nil {
		return nil, err
	}

	tagSize := e.config.SymmetricCipher.TagSize()
	ciphertext, err := e.provider.AEADEncrypt(e.key, nonce, plaintext, nil, tagSize)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt payload: %w", err)
	}

	iv := nonce
	if e.config.Legacy {
		iv = nonce[len(nonce)-LegacyIVSize:]
	}
	payload := Payload{IV: iv, CiphertextWithTag: ciphertext, TagSize: tagSize}

	size := len(e.headerBytes) + payload.Length()
	if e.signer != nil {
		size += len(e.signerPub) + crypto.SignatureSize(e.header.SignatureECCMode)
	}
	out := make([]byte, 0, size)
	out = append(out, e.headerBytes...)
	if out, err = payload.AppendBinary(out); err != nil {
		return nil, err
	}

	if e.signer != nil {
		sig, err := e.provider.Sign(e.signer, e.provider.Digest(out))
		if err != nil {
			return nil, fmt.Errorf("failed to sign payload: %w", err)
		}
		out = Signature{PublicKey: e.signerPub, Value: sig}.AppendBinary(out)
	}

	return out, nil
}

// Close zeroes the content key. Further calls to Seal fail.
func (e *Encryptor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	crypto.Zero(e.key)
}

// Writer provides NanoTDF encryption of a buffered stream.
type Writer struct {
	dst    io.Writer
	enc    *Encryptor
	buffer bytes.Buffer
	closed bool
}

// NewWriter creates a new NanoTDF encryption writer.
func NewWriter(dst io.Writer, config Config) (*Writer, error) {
	enc, err := NewEncryptor(config)
	if err != nil {
		return nil, err
	}
	return &Writer{dst: dst, enc: enc}, nil
}

// Write buffers plaintext data for encryption.
func (w *Writer) Write(p []byte) (n int, err error) {
	if w.closed {
		return 0, ErrWriterClosed
	}

	if w.buffer.Len()+len(p) > MaxPayloadSize-crypto.AESGCMNonceSize-crypto.AESGCMTagSize {
		return 0, ErrPayloadTooLarge
	}

	return w.buffer.Write(p)
}

// Close encrypts the buffered data and writes the complete NanoTDF.
func (w *Writer) Close() error {
	if w.closed {
		return ErrWriterClosed
	}
	w.closed = true
	defer w.enc.Close()

	out, err := w.enc.Seal(w.buffer.Bytes())
	if err != nil {
		return err
	}
	crypto.Zero(w.buffer.Bytes())

	if _, err := w.dst.Write(out); err != nil {
		return fmt.Errorf("failed to write nanotdf: %w", err)
	}
	return nil
}

// Header returns the header that will be written.
func (w *Writer) Header() *Header {
	return w.enc.Header()
}

// Encrypt is a convenience function to encrypt data to NanoTDF format.
func Encrypt(plaintext []byte, config Config) ([]byte, error) {
	enc, err := NewEncryptor(config)
	if err != nil {
		return nil, err
	}
	defer enc.Close()

	return enc.Seal(plaintext)
}
