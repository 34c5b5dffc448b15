// Package opentdf is the NanoTDF envelope orchestrator. A Client builds the
// access policy, encrypts to the KAS public key and decrypts by asking the
// KAS to rewrap the content key.
package opentdf

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/opentdf/tests-sub001/pkg/crypto"
	"github.com/opentdf/tests-sub001/pkg/kas"
	"github.com/opentdf/tests-sub001/pkg/nanotdf"
)

const (
	// DefaultCurve is the curve of the ephemeral key.
	DefaultCurve = crypto.ECCModeSecp256r1

	// DefaultCipher is AES-256-GCM with a 96-bit tag.
	DefaultCipher = nanotdf.CipherAES256GCM96

	// DefaultPolicyType keeps the policy document confidential in the header.
	DefaultPolicyType = nanotdf.PolicyTypeEmbeddedEncrypted
)

// Option configures a Client.
type Option func(*Client)

// WithKASClient sets the rewrap client. The default is kas.NewClient().
func WithKASClient(k *kas.Client) Option {
	return func(c *Client) { c.kas = k }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithCurve sets the curve used for the ephemeral key. The KAS must hold a
// key on the same curve.
func WithCurve(mode crypto.ECCMode) Option {
	return func(c *Client) { c.curve = mode }
}

// WithCipher sets the payload cipher.
func WithCipher(cipher nanotdf.SymmetricCipher) Option {
	return func(c *Client) { c.cipher = cipher }
}

// WithPolicyType selects how the policy is carried.
func WithPolicyType(t nanotdf.PolicyType) Option {
	return func(c *Client) { c.policyType = t }
}

// WithECDSABinding binds the policy with an ECDSA signature instead of GMAC.
func WithECDSABinding() Option {
	return func(c *Client) { c.ecdsaBinding = true }
}

// WithSignature appends a creator signature made with key, or with the
// ephemeral key when key is nil.
func WithSignature(key *ecdsa.PrivateKey) Option {
	return func(c *Client) {
		c.sign = true
		c.signingKey = key
	}
}

// WithKASKeyID records the KAS key identifier in the locator.
func WithKASKeyID(id []byte) Option {
	return func(c *Client) { c.kasKeyID = id }
}

// WithLegacyEncrypt writes legacy envelopes with 3-byte payload IVs. They
// must be read with DecryptLegacyTDF.
func WithLegacyEncrypt() Option {
	return func(c *Client) { c.legacy = true }
}

// WithProvider sets the crypto backend.
func WithProvider(p crypto.Provider) Option {
	return func(c *Client) { c.provider = p }
}

// validate checks the settings that NewClient cannot default.
func (c *Client) validate() error {
	if _, err := c.curve.Params(); err != nil {
		return err
	}
	if _, err := c.cipher.Suite(); err != nil {
		return err
	}
	switch c.policyType {
	case nanotdf.PolicyTypeRemote, nanotdf.PolicyTypeEmbeddedPlaintext, nanotdf.PolicyTypeEmbeddedEncrypted:
	default:
		return fmt.Errorf("%w: cannot encrypt with %s", ErrInvalidPolicyType, c.policyType)
	}
	if c.sign && c.signingKey != nil {
		if _, err := crypto.ModeForCurve(c.signingKey.Curve); err != nil {
			return fmt.Errorf("signing key: %w", err)
		}
	}
	return nil
}
