package opentdf

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentdf/tests-sub001/pkg/crypto"
	"github.com/opentdf/tests-sub001/pkg/kas"
	"github.com/opentdf/tests-sub001/pkg/nanotdf"
	"github.com/opentdf/tests-sub001/pkg/policy"
)

const secretAttr = "https://example.com/attr/classification/value/secret"

type testEnv struct {
	url       string
	keyHits   atomic.Int32
	rewraps   atomic.Int32
	tokens    kas.HMACTokens
	curveKeys []*ecdsa.PrivateKey
}

func newTestEnv(t *testing.T, decider kas.PolicyDecider) *testEnv {
	t.Helper()
	env := &testEnv{tokens: kas.HMACTokens{Secret: []byte("opentdf-test")}}
	for _, mode := range []crypto.ECCMode{crypto.ECCModeSecp256r1, crypto.ECCModeSecp384r1, crypto.ECCModeSecp521r1} {
		key, err := crypto.GenerateECCKeyPair(mode)
		require.NoError(t, err)
		env.curveKeys = append(env.curveKeys, key)
	}
	srv, err := kas.NewServer(&kas.ServerConfig{
		Keys:     env.curveKeys,
		Verifier: env.tokens,
		Decider:  decider,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case kas.PublicKeyPath:
			env.keyHits.Add(1)
		case kas.RewrapPath:
			env.rewraps.Add(1)
		}
		srv.Handler().ServeHTTP(w, r)
	}))
	t.Cleanup(ts.Close)
	env.url = ts.URL
	return env
}

func (e *testEnv) client(t *testing.T, subject string, opts ...Option) *Client {
	t.Helper()
	k := kas.NewClient(
		kas.WithTokenSource(e.tokens.Source(subject)),
		kas.WithPublicKeyCache(kas.NewPublicKeyCache()),
		kas.WithBackoff(time.Millisecond, 5*time.Millisecond),
	)
	c, err := NewClient(append([]Option{WithKASClient(k)}, opts...)...)
	require.NoError(t, err)
	return c
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.client(t, "alice")
	ctx := context.Background()

	data, err := c.Encrypt(ctx, []string{secretAttr}, []string{"alice"}, []byte("top secret"), env.url)
	require.NoError(t, err)

	parsed, err := nanotdf.ParseEnvelope(data, false)
	require.NoError(t, err)
	assert.Equal(t, DefaultCurve, parsed.Header.ECCMode)
	assert.Equal(t, DefaultCipher, parsed.Header.SymmetricCipher)
	assert.Equal(t, DefaultPolicyType, parsed.Header.Policy.Type)
	assert.NotContains(t, string(data), secretAttr, "encrypted policy must not leak")

	plaintext, err := c.Decrypt(ctx, data, "")
	require.NoError(t, err)
	assert.Equal(t, "top secret", string(plaintext))

	plaintext, err = c.Decrypt(ctx, data, env.url+"/")
	require.NoError(t, err)
	assert.Equal(t, "top secret", string(plaintext))
}

func TestEncryptOptionsMatrix(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	curves := []crypto.ECCMode{crypto.ECCModeSecp256r1, crypto.ECCModeSecp384r1, crypto.ECCModeSecp521r1}
	ciphers := []nanotdf.SymmetricCipher{nanotdf.CipherAES256GCM64, nanotdf.CipherAES256GCM96, nanotdf.CipherAES256GCM128}
	policies := []nanotdf.PolicyType{nanotdf.PolicyTypeRemote, nanotdf.PolicyTypeEmbeddedPlaintext, nanotdf.PolicyTypeEmbeddedEncrypted}

	for _, curve := range curves {
		for _, cipher := range ciphers {
			for _, pt := range policies {
				for _, ecdsaBinding := range []bool{false, true} {
					name := fmt.Sprintf("%s/%s/%s/ecdsa=%v", curve, cipher, pt, ecdsaBinding)
					t.Run(name, func(t *testing.T) {
						opts := []Option{WithCurve(curve), WithCipher(cipher), WithPolicyType(pt), WithSignature(nil)}
						if ecdsaBinding {
							opts = append(opts, WithECDSABinding())
						}
						c := env.client(t, "alice", opts...)

						attrs := []string{secretAttr}
						if pt == nanotdf.PolicyTypeRemote {
							attrs = nil
						}
						data, err := c.Encrypt(ctx, attrs, nil, []byte(name), env.url)
						require.NoError(t, err)
						plaintext, err := c.Decrypt(ctx, data, env.url)
						require.NoError(t, err)
						assert.Equal(t, name, string(plaintext))
					})
				}
			}
		}
	}
}

func TestPublicKeyFetchedOncePerClient(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.client(t, "alice")

	for i := 0; i < 5; i++ {
		_, err := c.Encrypt(context.Background(), nil, nil, []byte("x"), env.url)
		require.NoError(t, err)
	}
	assert.EqualValues(t, 1, env.keyHits.Load())
	assert.EqualValues(t, 0, env.rewraps.Load(), "encrypt never rewraps")
}

func TestDecryptRejectsOtherKAS(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.client(t, "alice")

	data, err := c.Encrypt(context.Background(), nil, nil, []byte("x"), env.url)
	require.NoError(t, err)

	plaintext, err := c.Decrypt(context.Background(), data, "https://kas.example.com")
	assert.ErrorIs(t, err, ErrKASMismatch)
	assert.Nil(t, plaintext)
	assert.EqualValues(t, 0, env.rewraps.Load())
}

func TestDecryptDenied(t *testing.T) {
	env := newTestEnv(t, kas.AttributeDecider{Entitlements: map[string][]string{"alice": {secretAttr}}})
	alice := env.client(t, "alice")
	mallory := env.client(t, "mallory")

	data, err := alice.Encrypt(context.Background(), []string{secretAttr}, nil, []byte("x"), env.url)
	require.NoError(t, err)

	plaintext, err := mallory.Decrypt(context.Background(), data, env.url)
	assert.ErrorIs(t, err, ErrKASDenied)
	assert.NotErrorIs(t, err, ErrKASTransient)
	assert.Nil(t, plaintext)
	assert.EqualValues(t, 1, env.rewraps.Load())

	plaintext, err = alice.Decrypt(context.Background(), data, env.url)
	require.NoError(t, err)
	assert.Equal(t, "x", string(plaintext))
}

func TestRemotePolicyRejectsAttributes(t *testing.T) {
	env := newTestEnv(t, kas.AttributeDecider{Entitlements: map[string][]string{"alice": {secretAttr}}})
	alice := env.client(t, "alice", WithPolicyType(nanotdf.PolicyTypeRemote))
	bob := env.client(t, "bob")
	ctx := context.Background()

	data, err := alice.Encrypt(ctx, []string{secretAttr}, []string{"alice"}, []byte("top secret"), env.url)
	assert.ErrorIs(t, err, ErrRemotePolicyAttributes)
	assert.Nil(t, data)

	data, err = alice.Encrypt(ctx, nil, []string{"alice"}, []byte("top secret"), env.url)
	assert.ErrorIs(t, err, ErrRemotePolicyAttributes)
	assert.Nil(t, data)
	assert.EqualValues(t, 0, env.keyHits.Load(), "rejected before contacting the KAS")

	data, err = alice.Encrypt(ctx, nil, nil, []byte("top secret"), env.url)
	require.NoError(t, err)

	plaintext, err := bob.Decrypt(ctx, data, env.url)
	assert.ErrorIs(t, err, ErrKASDenied)
	assert.Nil(t, plaintext)

	plaintext, err = alice.Decrypt(ctx, data, env.url)
	assert.ErrorIs(t, err, ErrKASDenied, "a remote policy the KAS cannot resolve is denied to everyone")
	assert.Nil(t, plaintext)
}

func TestDecryptTamperedPayload(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.client(t, "alice")

	data, err := c.Encrypt(context.Background(), nil, nil, []byte("integrity"), env.url)
	require.NoError(t, err)
	data[len(data)-1] ^= 0x01

	plaintext, err := c.Decrypt(context.Background(), data, env.url)
	assert.ErrorIs(t, err, ErrDecryptAuthTag)
	assert.Nil(t, plaintext)
}

func TestDecryptTamperedSignatureSkipsKAS(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.client(t, "alice", WithSignature(nil))

	data, err := c.Encrypt(context.Background(), nil, nil, []byte("signed"), env.url)
	require.NoError(t, err)
	data[len(data)-1] ^= 0x01

	_, err = c.Decrypt(context.Background(), data, env.url)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
	assert.EqualValues(t, 0, env.rewraps.Load())
}

func TestLegacyEnvelopes(t *testing.T) {
	env := newTestEnv(t, nil)
	writer := env.client(t, "alice", WithLegacyEncrypt())
	reader := env.client(t, "alice")

	data, err := writer.Encrypt(context.Background(), nil, nil, []byte("old format"), env.url)
	require.NoError(t, err)
	assert.Equal(t, nanotdf.LegacyMagicNumberVersion, string(data[:3]))

	plaintext, err := reader.DecryptLegacyTDF(context.Background(), data, env.url)
	require.NoError(t, err)
	assert.Equal(t, "old format", string(plaintext))

	plaintext, err = reader.Decrypt(context.Background(), data, env.url)
	assert.Error(t, err, "legacy mode is never auto-detected")
	assert.Nil(t, plaintext)
}

func TestBase64RoundTrip(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.client(t, "alice")

	encoded, err := c.EncryptBase64(context.Background(), nil, nil, []byte("text form"), env.url)
	require.NoError(t, err)

	wrapped := encoded[:10] + "\n" + encoded[10:] + "\n"
	plaintext, err := c.DecryptBase64(context.Background(), wrapped, env.url)
	require.NoError(t, err)
	assert.Equal(t, "text form", string(plaintext))
}

func TestStreamHelpers(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.client(t, "alice")

	var envelope bytes.Buffer
	require.NoError(t, c.EncryptTo(context.Background(), &envelope, bytes.NewReader([]byte("streamed")), nil, nil, env.url))

	var out bytes.Buffer
	require.NoError(t, c.DecryptTo(context.Background(), &out, &envelope, env.url))
	assert.Equal(t, "streamed", out.String())
}

func TestEncryptValidation(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.client(t, "alice")

	_, err := c.Encrypt(context.Background(), nil, nil, []byte("x"), "")
	assert.ErrorIs(t, err, ErrMissingKAS)

	_, err = c.Encrypt(context.Background(), []string{"not-an-attribute"}, nil, []byte("x"), env.url)
	assert.ErrorIs(t, err, policy.ErrInvalidPolicy)

	_, err = NewClient(WithPolicyType(nanotdf.PolicyTypeEmbeddedEncryptedPKA))
	assert.ErrorIs(t, err, ErrInvalidPolicyType)

	_, err = NewClient(WithCurve(crypto.ECCModeSecp256k1))
	assert.ErrorIs(t, err, ErrInvalidCurveName)

	_, err = NewClient(WithCipher(nanotdf.SymmetricCipher(9)))
	assert.Error(t, err)
}

func TestEncryptCanceled(t *testing.T) {
	env := newTestEnv(t, nil)
	c := env.client(t, "alice")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Encrypt(ctx, nil, nil, []byte("x"), env.url)
	assert.ErrorIs(t, err, ErrCanceled)
}
