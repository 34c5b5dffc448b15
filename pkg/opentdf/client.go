package opentdf

import (
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/opentdf/tests-sub001/internal/metrics"
	"github.com/opentdf/tests-sub001/pkg/crypto"
	"github.com/opentdf/tests-sub001/pkg/kas"
	"github.com/opentdf/tests-sub001/pkg/nanotdf"
	"github.com/opentdf/tests-sub001/pkg/policy"
)

// Client encrypts and decrypts NanoTDF envelopes against a KAS.
// It is safe for concurrent use.
type Client struct {
	kas          *kas.Client
	logger       zerolog.Logger
	provider     crypto.Provider
	curve        crypto.ECCMode
	cipher       nanotdf.SymmetricCipher
	policyType   nanotdf.PolicyType
	ecdsaBinding bool
	sign         bool
	signingKey   *ecdsa.PrivateKey
	kasKeyID     []byte
	legacy       bool
}

// NewClient returns a Client with opts applied over the defaults.
func NewClient(opts ...Option) (*Client, error) {
	c := &Client{
		logger:     zerolog.Nop(),
		provider:   crypto.DefaultProvider,
		curve:      DefaultCurve,
		cipher:     DefaultCipher,
		policyType: DefaultPolicyType,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.kas == nil {
		c.kas = kas.NewClient(kas.WithLogger(c.logger), kas.WithProvider(c.provider))
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func normalizeKASURL(kasURL string) string {
	return strings.TrimRight(kasURL, "/")
}

// Encrypt seals plaintext under a policy built from policyAttributes and
// dissems for the KAS at kasURL. A remote policy only references a document
// held elsewhere, so it accepts neither. The KAS public key is fetched on first use
// and cached for the life of the process.
func (c *Client) Encrypt(ctx context.Context, policyAttributes, dissems []string, plaintext []byte, kasURL string) ([]byte, error) {
	start := time.Now()
	out, err := c.encrypt(ctx, policyAttributes, dissems, plaintext, kasURL)
	metrics.RecordOperation(metrics.OpEncrypt, metrics.StatusFor(err), time.Since(start).Seconds())
	if err != nil {
		c.logger.Debug().Err(err).Str("kas_url", kasURL).Msg("encrypt failed")
		return nil, err
	}
	c.logger.Debug().Str("kas_url", kasURL).Int("size", len(out)).Msg("encrypted")
	return out, nil
}

func (c *Client) encrypt(ctx context.Context, attrs, dissems []string, plaintext []byte, kasURL string) ([]byte, error) {
	kasURL = normalizeKASURL(kasURL)
	if kasURL == "" {
		return nil, ErrMissingKAS
	}
	if c.policyType == nanotdf.PolicyTypeRemote && (len(attrs) > 0 || len(dissems) > 0) {
		return nil, fmt.Errorf("%w: use an embedded policy type", ErrRemotePolicyAttributes)
	}

	doc, err := policy.New(attrs, dissems).Marshal()
	if err != nil {
		return nil, err
	}

	kasKey, err := c.kas.PublicKey(ctx, kasURL, c.curve)
	if err != nil {
		return nil, fmt.Errorf("KAS public key: %w", err)
	}

	return nanotdf.Encrypt(plaintext, nanotdf.Config{
		KASURL:             kasURL,
		KASKeyID:           c.kasKeyID,
		RecipientPublicKey: kasKey,
		ECCMode:            c.curve,
		SymmetricCipher:    c.cipher,
		PolicyType:         c.policyType,
		Policy:             doc,
		UseECDSABinding:    c.ecdsaBinding,
		SignPayload:        c.sign,
		SigningKey:         c.signingKey,
		Legacy:             c.legacy,
		Provider:           c.provider,
	})
}

// EncryptBase64 is Encrypt with base64 output.
func (c *Client) EncryptBase64(ctx context.Context, policyAttributes, dissems []string, plaintext []byte, kasURL string) (string, error) {
	out, err := c.Encrypt(ctx, policyAttributes, dissems, plaintext, kasURL)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt opens a current-format envelope. When kasURL is non-empty the
// envelope must name that KAS; otherwise the KAS in the header is used.
// No plaintext is returned on failure.
func (c *Client) Decrypt(ctx context.Context, data []byte, kasURL string) ([]byte, error) {
	return c.decrypt(ctx, metrics.OpDecrypt, data, kasURL)
}

// DecryptLegacyTDF opens an envelope written with 3-byte payload IVs.
func (c *Client) DecryptLegacyTDF(ctx context.Context, data []byte, kasURL string) ([]byte, error) {
	return c.decrypt(ctx, metrics.OpDecryptLegacy, data, kasURL, nanotdf.WithLegacy())
}

// DecryptBase64 is Decrypt with base64 input. Embedded newlines are ignored.
func (c *Client) DecryptBase64(ctx context.Context, encoded, kasURL string) ([]byte, error) {
	data, err := nanotdf.DecodeBase64(encoded)
	if err != nil {
		return nil, err
	}
	return c.Decrypt(ctx, data, kasURL)
}

func (c *Client) decrypt(ctx context.Context, op string, data []byte, kasURL string, opts ...nanotdf.ReadOption) ([]byte, error) {
	start := time.Now()
	opts = append(opts, nanotdf.WithProvider(c.provider))
	plaintext, err := nanotdf.Decrypt(ctx, data, c.resolver(normalizeKASURL(kasURL)), opts...)
	metrics.RecordOperation(op, metrics.StatusFor(err), time.Since(start).Seconds())
	if err != nil {
		c.logger.Debug().Err(err).Str("operation", op).Msg("decrypt failed")
		return nil, err
	}
	return plaintext, nil
}

// resolver checks the header's KAS against expected before rewrapping.
func (c *Client) resolver(expected string) nanotdf.KeyResolver {
	return nanotdf.KeyResolverFunc(func(ctx context.Context, h *nanotdf.Header, headerBytes []byte) ([]byte, error) {
		if expected != "" {
			actual, err := h.KASURL()
			if err != nil {
				return nil, err
			}
			if actual != expected {
				return nil, fmt.Errorf("%w: header has %s, expected %s", ErrKASMismatch, actual, expected)
			}
		}
		return c.kas.ResolveKey(ctx, h, headerBytes)
	})
}
