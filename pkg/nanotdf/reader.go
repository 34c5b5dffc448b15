package nanotdf

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"

	"github.com/opentdf/tests-sub001/pkg/crypto"
)

// KeyResolver recovers the content key for a header. The KAS rewrap client
// implements it over the network; NewPrivateKeyResolver implements it with
// the KAS private key in process.
type KeyResolver interface {
	ResolveKey(ctx context.Context, header *Header, headerBytes []byte) ([]byte, error)
}

// KeyResolverFunc adapts a function to KeyResolver.
type KeyResolverFunc func(ctx context.Context, header *Header, headerBytes []byte) ([]byte, error)

// ResolveKey calls f.
func (f KeyResolverFunc) ResolveKey(ctx context.Context, header *Header, headerBytes []byte) ([]byte, error) {
	return f(ctx, header, headerBytes)
}

// NewPrivateKeyResolver returns a resolver that derives the content key with
// the KAS private key and checks the policy binding.
func NewPrivateKeyResolver(kasKey *ecdsa.PrivateKey) KeyResolver {
	return KeyResolverFunc(func(_ context.Context, h *Header, _ []byte) ([]byte, error) {
		if kasKey == nil {
			return nil, ErrMissingRecipientKey
		}
		key, err := DeriveContentKey(nil, h, kasKey)
		if err != nil {
			return nil, err
		}
		if err := VerifyBinding(nil, h, key); err != nil {
			crypto.Zero(key)
			return nil, err
		}
		return key, nil
	})
}

// ReadOption configures decryption.
type ReadOption func(*readOptions)

type readOptions struct {
	legacy   bool
	provider crypto.Provider
}

// WithLegacy parses the envelope with 3-byte payload IVs.
func WithLegacy() ReadOption {
	return func(o *readOptions) { o.legacy = true }
}

// WithProvider sets the crypto backend.
func WithProvider(p crypto.Provider) ReadOption {
	return func(o *readOptions) { o.provider = p }
}

// Reader provides NanoTDF decryption.
type Reader struct {
	envelope  *Envelope
	plaintext []byte
	pos       int
	closed    bool
}

// NewReader parses data, verifies any creator signature, resolves the content
// key, checks the policy binding and decrypts the payload. No plaintext is
// retained on failure.
func NewReader(ctx context.Context, data []byte, resolver KeyResolver, opts ...ReadOption) (*Reader, error) {
	if resolver == nil {
		return nil, ErrMissingKeyResolver
	}
	o := readOptions{provider: crypto.DefaultProvider}
	for _, opt := range opts {
		opt(&o)
	}

	env, err := ParseEnvelope(data, o.legacy)
	if err != nil {
		return nil, err
	}

	if err := env.VerifySignature(o.provider); err != nil {
		return nil, err
	}

	key, err := resolver.ResolveKey(ctx, env.Header, env.HeaderBytes())
	if err != nil {
		return nil, err
	}
	defer crypto.Zero(key)

	if err := VerifyBinding(o.provider, env.Header, key); err != nil {
		return nil, err
	}

	plaintext, err := decryptPayload(o.provider, key, env)
	if err != nil {
		return nil, err
	}

	return &Reader{envelope: env, plaintext: plaintext}, nil
}

func decryptPayload(p crypto.Provider, key []byte, env *Envelope) ([]byte, error) {
	nonce, err := env.Payload.Nonce()
	if err != nil {
		return nil, fmt.Errorf("payload IV: %w", err)
	}
	plaintext, err := p.AEADDecrypt(key, nonce, env.Payload.CiphertextWithTag, nil, env.Header.TagSize())
	if err != nil {
		if errors.Is(err, crypto.ErrDecryptionFailed) {
			return nil, ErrDecryptAuthTag
		}
		return nil, fmt.Errorf("decrypt payload: %w", err)
	}
	return plaintext, nil
}

// Read implements io.Reader.
func (r *Reader) Read(p []byte) (n int, err error) {
	if r.closed {
		return 0, ErrReaderClosed
	}

	if r.pos >= len(r.plaintext) {
		return 0, io.EOF
	}

	n = copy(p, r.plaintext[r.pos:])
	r.pos += n
	return n, nil
}

// Close zeroes the plaintext buffer.
func (r *Reader) Close() error {
	if r.closed {
		return ErrReaderClosed
	}
	r.closed = true
	crypto.Zero(r.plaintext)
	return nil
}

// Header returns the parsed NanoTDF header.
func (r *Reader) Header() *Header {
	return r.envelope.Header
}

// Envelope returns the parsed envelope.
func (r *Reader) Envelope() *Envelope {
	return r.envelope
}

// ReadAll returns the complete decrypted plaintext.
func (r *Reader) ReadAll() ([]byte, error) {
	if r.closed {
		return nil, ErrReaderClosed
	}
	result := make([]byte, len(r.plaintext))
	copy(result, r.plaintext)
	return result, nil
}

// Decrypt is a convenience function to decrypt NanoTDF data.
func Decrypt(ctx context.Context, data []byte, resolver KeyResolver, opts ...ReadOption) ([]byte, error) {
	r, err := NewReader(ctx, data, resolver, opts...)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return r.ReadAll()
}
