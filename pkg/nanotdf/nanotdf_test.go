package nanotdf

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentdf/tests-sub001/pkg/crypto"
)

// remoteECDSAFixture is a legacy-mode envelope with KAS "kas.virtru.com",
// a remote policy and an ECDSA binding on secp256r1.
var remoteECDSAFixture = strings.Join([]string{
	"4c314c",                                   // magic
	"01", "0e", "6b61732e7669727472752e636f6d", // kas: https, 14, "kas.virtru.com"
	"80",                                             // ECDSA binding, secp256r1
	"00",                                             // no signature, AES-256-GCM-64
	"00", "01", "0e", "6b61732e7669727472752e636f6d", // remote policy locator
	strings.Repeat("ab", 64),        // binding
	"02" + strings.Repeat("cd", 32), // ephemeral key
	"00000f",                        // payload length
	"a1b2c3",                        // iv
	"deadbeef",                      // ciphertext
	"0102030405060708",              // tag
}, "")

// embeddedPlaintextFixture is a current-mode envelope with an embedded
// plaintext policy, a GMAC binding and a 128-bit tag.
var embeddedPlaintextFixture = strings.Join([]string{
	"4c314c",
	"00", "09", "6b61732e6c6f63616c", // kas: http, "kas.local"
	"00",                       // GMAC binding, secp256r1
	"05",                       // AES-256-GCM-128
	"01", "0005", "0102aabbcc", // embedded plaintext policy
	"1122334455667788", // binding
	"03" + strings.Repeat("ee", 32),
	"00001c",
	"000000000000000000000001",
	strings.Repeat("99", 16),
}, "")

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	require.NoError(t, err)
	return b
}

func newKASKey(t *testing.T, mode ECCMode) *ecdsa.PrivateKey {
	t.Helper()
	key, err := crypto.GenerateECCKeyPair(mode)
	require.NoError(t, err)
	return key
}

func TestRemoteECDSAFixture(t *testing.T) {
	data := mustHex(t, remoteECDSAFixture)

	env, err := ParseEnvelope(data, true)
	require.NoError(t, err)

	h := env.Header
	assert.Equal(t, "L1L", string(h.MagicVersion[:]))
	assert.Equal(t, ProtocolHTTPS, h.KAS.Protocol)
	assert.Equal(t, 14, len(h.KAS.Body))
	assert.Equal(t, "kas.virtru.com", h.KAS.Body)
	assert.True(t, h.UseECDSABinding)
	assert.Equal(t, ECCModeSecp256r1, h.ECCMode)
	assert.False(t, h.HasSignature)
	assert.Equal(t, CipherAES256GCM64, h.SymmetricCipher)
	assert.Equal(t, PolicyTypeRemote, h.Policy.Type)
	assert.Equal(t, "kas.virtru.com", h.Policy.Remote.Body)
	assert.Len(t, h.Policy.Binding, 64)
	assert.Len(t, h.EphemeralPublicKey, 33)

	assert.Equal(t, "a1b2c3", hex.EncodeToString(env.Payload.IV))
	assert.Equal(t, "deadbeef", hex.EncodeToString(env.Payload.Ciphertext()))
	assert.Equal(t, "0102030405060708", hex.EncodeToString(env.Payload.AuthTag()))

	rewrap, err := h.KASRewrapURL()
	require.NoError(t, err)
	assert.Equal(t, "https://kas.virtru.com/v2/rewrap", rewrap)

	out, err := env.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestEmbeddedPlaintextFixtureBase64(t *testing.T) {
	data := mustHex(t, embeddedPlaintextFixture)
	encoded := base64.StdEncoding.EncodeToString(data)

	// Wrapped base64 is accepted.
	wrapped := encoded[:20] + "\n" + encoded[20:] + "\n"
	env, err := ParseEnvelopeBase64(wrapped, false)
	require.NoError(t, err)

	assert.Equal(t, PolicyTypeEmbeddedPlaintext, env.Header.Policy.Type)
	assert.Equal(t, "0102aabbcc", hex.EncodeToString(env.Header.Policy.Content))
	assert.Equal(t, "1122334455667788", hex.EncodeToString(env.Header.Policy.Binding))
	assert.Len(t, env.Payload.IV, 12)
	assert.Empty(t, env.Payload.Ciphertext())

	out, err := env.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, encoded, base64.StdEncoding.EncodeToString(out))
}

func TestHeaderRoundTrip(t *testing.T) {
	data := mustHex(t, embeddedPlaintextFixture)

	h, n, err := ParseHeader(data, false)
	require.NoError(t, err)
	assert.Equal(t, h.Length(), n)

	out, err := h.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, data[:n], out)
	assert.Equal(t, len(out), cap(out))
}

func TestHeaderCopyTo(t *testing.T) {
	h, n, err := ParseHeader(mustHex(t, embeddedPlaintextFixture), false)
	require.NoError(t, err)

	small := make([]byte, n-1)
	_, err = h.CopyTo(small)
	assert.ErrorIs(t, err, ErrBufferTooSmall)
	assert.Equal(t, make([]byte, n-1), small)

	dst := make([]byte, n+10)
	written, err := h.CopyTo(dst)
	require.NoError(t, err)
	assert.Equal(t, n, written)

	expected, err := h.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, expected, dst[:n])

	invalid := []func(h *Header){
		func(h *Header) { h.KAS.Body = "" },
		func(h *Header) { h.Policy.Type = 0x07 },
		func(h *Header) { h.Policy.Content = make([]byte, MaxEmbeddedPolicySize+1) },
		func(h *Header) { h.EphemeralPublicKey = h.EphemeralPublicKey[:4] },
	}
	for i, mutate := range invalid {
		bad := *h
		mutate(&bad)
		untouched := make([]byte, n+MaxEmbeddedPolicySize+1)
		_, err := bad.CopyTo(untouched)
		require.Error(t, err, "case %d", i)
		assert.Equal(t, make([]byte, len(untouched)), untouched, "case %d wrote into dst", i)
	}
}

func TestTruncatedHeaderNeverParses(t *testing.T) {
	data := mustHex(t, remoteECDSAFixture)
	h, headerLen, err := ParseHeader(data, true)
	require.NoError(t, err)

	keyStart := headerLen - len(h.EphemeralPublicKey)
	for i := 0; i < headerLen; i++ {
		_, _, err := ParseHeader(data[:i], true)
		require.Error(t, err, "prefix %d", i)
		if i >= keyStart {
			assert.ErrorIs(t, err, ErrInvalidEphemeralKey, "prefix %d", i)
		} else {
			assert.ErrorIs(t, err, ErrTruncatedInput, "prefix %d", i)
		}
	}
}

func TestTruncatedEnvelope(t *testing.T) {
	data := mustHex(t, embeddedPlaintextFixture)
	_, err := ParseEnvelope(data[:len(data)-1], false)
	assert.ErrorIs(t, err, ErrTruncatedInput)

	_, err = ParseEnvelope(append(bytes.Clone(data), 0x00), false)
	assert.ErrorIs(t, err, ErrTrailingData)
}

func TestInvalidPolicyType(t *testing.T) {
	data := mustHex(t, embeddedPlaintextFixture)
	policyOffset := MagicVersionSize + 2 + len("kas.local") + 2
	data[policyOffset] = 0x07

	_, _, err := ParseHeader(data, false)
	assert.ErrorIs(t, err, ErrInvalidPolicyType)
}

func TestInvalidCurve(t *testing.T) {
	data := mustHex(t, embeddedPlaintextFixture)
	data[MagicVersionSize+2+len("kas.local")] = 0x05

	_, _, err := ParseHeader(data, false)
	assert.ErrorIs(t, err, ErrInvalidCurveName)
}

func TestUnsupportedCipher(t *testing.T) {
	data := mustHex(t, embeddedPlaintextFixture)
	data[MagicVersionSize+2+len("kas.local")+1] = 0x0A

	_, _, err := ParseHeader(data, false)
	assert.ErrorIs(t, err, ErrUnsupportedCipher)
}

func TestEmbeddedPolicyBoundary(t *testing.T) {
	p, err := NewEmbeddedPolicy(PolicyTypeEmbeddedPlaintext, make([]byte, MaxEmbeddedPolicySize))
	require.NoError(t, err)
	p.Binding = make([]byte, GMACBindingSize)

	out, err := p.AppendBinary(nil)
	require.NoError(t, err)
	assert.Len(t, out, p.Length())
	assert.Equal(t, []byte{0xFF, 0xFF}, out[1:3])

	parsed, n, err := ParsePolicy(out, false, ECCModeSecp256r1)
	require.NoError(t, err)
	assert.Equal(t, len(out), n)
	assert.Len(t, parsed.Content, MaxEmbeddedPolicySize)

	_, err = NewEmbeddedPolicy(PolicyTypeEmbeddedPlaintext, make([]byte, MaxEmbeddedPolicySize+1))
	assert.ErrorIs(t, err, ErrPolicyTooLarge)

	_, err = Policy{Type: PolicyTypeEmbeddedEncrypted, Content: make([]byte, MaxEmbeddedPolicySize+1)}.AppendBinary(nil)
	assert.ErrorIs(t, err, ErrPolicyTooLarge)

	_, err = NewEmbeddedPolicy(PolicyTypeRemote, nil)
	assert.ErrorIs(t, err, ErrInvalidPolicyType)
}

func TestLargePayload(t *testing.T) {
	p := Payload{
		IV:                crypto.NonceFromCounter(1),
		CiphertextWithTag: bytes.Repeat([]byte{0x5A}, 65533),
		TagSize:           16,
	}
	out, err := p.AppendBinary(nil)
	require.NoError(t, err)

	parsed, n, err := ParsePayload(out, 12, 16)
	require.NoError(t, err)
	assert.Equal(t, len(out), n)
	assert.Equal(t, 65533, len(parsed.CiphertextWithTag))
}

func TestResourceLocator(t *testing.T) {
	rl, err := ResourceLocatorFromURL("https://kas.example.com/kas/")
	require.NoError(t, err)
	assert.Equal(t, ProtocolHTTPS, rl.Protocol)
	assert.Equal(t, "kas.example.com/kas", rl.Body)
	assert.Equal(t, 2+len(rl.Body), rl.Length())

	rl.Identifier = []byte("e1")
	out, err := rl.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, byte(0x11), out[0])

	parsed, n, err := ParseResourceLocator(out)
	require.NoError(t, err)
	assert.Equal(t, len(out), n)
	assert.Equal(t, rl, parsed)

	_, err = ResourceLocatorFromURL("ftp://kas.example.com")
	assert.ErrorIs(t, err, ErrInvalidLocator)

	rl.Identifier = []byte("abc")
	_, err = rl.MarshalBinary()
	assert.ErrorIs(t, err, ErrInvalidLocator)

	_, err = NewResourceLocator(strings.Repeat("a", 256), ProtocolHTTP).MarshalBinary()
	assert.ErrorIs(t, err, ErrInvalidLocator)

	_, err = NewResourceLocator("dir", ProtocolSharedResourceDirectory).URL()
	assert.ErrorIs(t, err, ErrInvalidLocator)

	_, _, err = ParseResourceLocator([]byte{0x01, 0x05, 'a', 'b'})
	assert.ErrorIs(t, err, ErrTruncatedInput)
}

func TestModeBytes(t *testing.T) {
	for _, useECDSA := range []bool{false, true} {
		for mode := ECCMode(0); mode <= ECCModeSecp521r1; mode++ {
			b := encodeECCBindingMode(useECDSA, mode)
			gotECDSA, gotMode := decodeECCBindingMode(b)
			assert.Equal(t, useECDSA, gotECDSA)
			assert.Equal(t, mode, gotMode)
		}
	}
	assert.Equal(t, byte(0x82), encodeECCBindingMode(true, ECCModeSecp521r1))

	b := encodeSymmetricConfig(true, ECCModeSecp384r1, CipherAES256GCM128)
	assert.Equal(t, byte(0x95), b)
	hasSig, sigMode, c := decodeSymmetricConfig(b)
	assert.True(t, hasSig)
	assert.Equal(t, ECCModeSecp384r1, sigMode)
	assert.Equal(t, CipherAES256GCM128, c)
}

func TestCipherTable(t *testing.T) {
	expected := map[SymmetricCipher]int{
		CipherAES256GCM64:  8,
		CipherAES256GCM96:  12,
		CipherAES256GCM104: 13,
		CipherAES256GCM112: 14,
		CipherAES256GCM120: 15,
		CipherAES256GCM128: 16,
	}
	for c, tag := range expected {
		assert.Equal(t, tag, c.TagSize(), c.String())
		found, err := CipherForTagBits(tag * 8)
		require.NoError(t, err)
		assert.Equal(t, c, found)
	}
	assert.Equal(t, 0, SymmetricCipher(0x06).TagSize())
	assert.Equal(t, 3, IVSize(true))
	assert.Equal(t, 12, IVSize(false))
}

func TestEncryptDecryptAllCombinations(t *testing.T) {
	ctx := context.Background()
	plaintext := []byte("Hello, NanoTDF!")
	policyDoc := []byte(`{"uuid":"x","body":{"dataAttributes":[],"dissem":[]}}`)

	modes := []ECCMode{ECCModeSecp256r1, ECCModeSecp384r1, ECCModeSecp521r1}
	ciphers := []SymmetricCipher{CipherAES256GCM64, CipherAES256GCM96, CipherAES256GCM128}
	policies := []PolicyType{PolicyTypeRemote, PolicyTypeEmbeddedPlaintext, PolicyTypeEmbeddedEncrypted}

	for _, mode := range modes {
		kasKey := newKASKey(t, mode)
		for _, c := range ciphers {
			for _, pt := range policies {
				for _, useECDSA := range []bool{false, true} {
					name := fmt.Sprintf("%s/%s/%s/ecdsa=%v", mode, c, pt, useECDSA)
					t.Run(name, func(t *testing.T) {
						data, err := Encrypt(plaintext, Config{
							KASURL:             "https://kas.example.com",
							RecipientPublicKey: &kasKey.PublicKey,
							ECCMode:            mode,
							SymmetricCipher:    c,
							PolicyType:         pt,
							Policy:             policyDoc,
							UseECDSABinding:    useECDSA,
						})
						require.NoError(t, err)
						assert.Equal(t, MagicNumberVersion, string(data[:3]))

						env, err := ParseEnvelope(data, false)
						require.NoError(t, err)
						reencoded, err := env.MarshalBinary()
						require.NoError(t, err)
						assert.Equal(t, data, reencoded)

						decrypted, err := Decrypt(ctx, data, NewPrivateKeyResolver(kasKey))
						require.NoError(t, err)
						assert.Equal(t, plaintext, decrypted)
					})
				}
			}
		}
	}
}

func TestEmbeddedEncryptedPolicyReadable(t *testing.T) {
	kasKey := newKASKey(t, ECCModeSecp256r1)
	policyDoc := []byte(`{"body":{"dataAttributes":[{"attribute":"https://example.com/attr/a/value/b"}]}}`)

	data, err := Encrypt([]byte("x"), Config{
		KASURL:             "https://kas.example.com",
		RecipientPublicKey: &kasKey.PublicKey,
		SymmetricCipher:    CipherAES256GCM96,
		PolicyType:         PolicyTypeEmbeddedEncrypted,
		Policy:             policyDoc,
	})
	require.NoError(t, err)

	h, _, err := ParseHeader(data, false)
	require.NoError(t, err)
	assert.NotEqual(t, policyDoc, h.Policy.Content)

	key, err := DeriveContentKey(nil, h, kasKey)
	require.NoError(t, err)
	plain, err := DecryptPolicyContent(nil, key, h.Policy.Content, h.SymmetricCipher)
	require.NoError(t, err)
	assert.Equal(t, policyDoc, plain)
}

func TestLegacyMode(t *testing.T) {
	ctx := context.Background()
	kasKey := newKASKey(t, ECCModeSecp256r1)

	data, err := Encrypt([]byte("legacy payload"), Config{
		KASURL:             "http://localhost:8080",
		RecipientPublicKey: &kasKey.PublicKey,
		SymmetricCipher:    CipherAES256GCM128,
		Legacy:             true,
	})
	require.NoError(t, err)
	assert.Equal(t, LegacyMagicNumberVersion, string(data[:3]))

	env, err := ParseEnvelope(data, true)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0, 1}, env.Payload.IV)

	decrypted, err := Decrypt(ctx, data, NewPrivateKeyResolver(kasKey), WithLegacy())
	require.NoError(t, err)
	assert.Equal(t, []byte("legacy payload"), decrypted)

	_, err = Decrypt(ctx, data, NewPrivateKeyResolver(kasKey))
	assert.Error(t, err)
}

func TestWrongKeyFails(t *testing.T) {
	ctx := context.Background()
	correctKey := newKASKey(t, ECCModeSecp256r1)
	wrongKey := newKASKey(t, ECCModeSecp256r1)

	gmac, err := Encrypt([]byte("secret"), Config{
		KASURL:             "https://kas.example.com",
		RecipientPublicKey: &correctKey.PublicKey,
		SymmetricCipher:    CipherAES256GCM128,
	})
	require.NoError(t, err)
	_, err = Decrypt(ctx, gmac, NewPrivateKeyResolver(wrongKey))
	assert.ErrorIs(t, err, ErrPolicyBinding)

	ecdsaBound, err := Encrypt([]byte("secret"), Config{
		KASURL:             "https://kas.example.com",
		RecipientPublicKey: &correctKey.PublicKey,
		SymmetricCipher:    CipherAES256GCM128,
		UseECDSABinding:    true,
	})
	require.NoError(t, err)
	wrong := KeyResolverFunc(func(ctx context.Context, h *Header, _ []byte) ([]byte, error) {
		return DeriveContentKey(nil, h, wrongKey)
	})
	_, err = Decrypt(ctx, ecdsaBound, wrong)
	assert.ErrorIs(t, err, ErrDecryptAuthTag)
}

func TestTamperDetection(t *testing.T) {
	ctx := context.Background()
	kasKey := newKASKey(t, ECCModeSecp256r1)
	resolver := NewPrivateKeyResolver(kasKey)

	data, err := Encrypt([]byte("tamper me"), Config{
		KASURL:             "https://kas.example.com",
		RecipientPublicKey: &kasKey.PublicKey,
		SymmetricCipher:    CipherAES256GCM128,
		PolicyType:         PolicyTypeEmbeddedPlaintext,
		Policy:             []byte(`{"body":{}}`),
	})
	require.NoError(t, err)

	h, headerLen, err := ParseHeader(data, false)
	require.NoError(t, err)

	t.Run("policy", func(t *testing.T) {
		tampered := bytes.Clone(data)
		contentOffset := MagicVersionSize + h.KAS.Length() + 2 + 1 + 2
		tampered[contentOffset] ^= 0x01
		_, err := Decrypt(ctx, tampered, resolver)
		assert.ErrorIs(t, err, ErrPolicyBinding)
	})

	t.Run("iv", func(t *testing.T) {
		tampered := bytes.Clone(data)
		tampered[headerLen+PayloadLengthSize+11] ^= 0x01
		_, err := Decrypt(ctx, tampered, resolver)
		assert.ErrorIs(t, err, ErrDecryptAuthTag)
	})

	t.Run("ciphertext", func(t *testing.T) {
		tampered := bytes.Clone(data)
		tampered[headerLen+PayloadLengthSize+12] ^= 0x01
		_, err := Decrypt(ctx, tampered, resolver)
		assert.ErrorIs(t, err, ErrDecryptAuthTag)
	})

	t.Run("tag", func(t *testing.T) {
		tampered := bytes.Clone(data)
		tampered[len(tampered)-1] ^= 0x01
		_, err := Decrypt(ctx, tampered, resolver)
		assert.ErrorIs(t, err, ErrDecryptAuthTag)
	})
}

func TestPayloadSignature(t *testing.T) {
	ctx := context.Background()
	kasKey := newKASKey(t, ECCModeSecp256r1)
	signer := newKASKey(t, ECCModeSecp384r1)

	data, err := Encrypt([]byte("signed"), Config{
		KASURL:             "https://kas.example.com",
		RecipientPublicKey: &kasKey.PublicKey,
		SymmetricCipher:    CipherAES256GCM128,
		SignPayload:        true,
		SigningKey:         signer,
	})
	require.NoError(t, err)

	env, err := ParseEnvelope(data, false)
	require.NoError(t, err)
	require.NotNil(t, env.Signature)
	assert.Equal(t, ECCModeSecp384r1, env.Header.SignatureECCMode)
	assert.Len(t, env.Signature.Value, 96)
	require.NoError(t, env.VerifySignature(nil))

	decrypted, err := Decrypt(ctx, data, NewPrivateKeyResolver(kasKey))
	require.NoError(t, err)
	assert.Equal(t, []byte("signed"), decrypted)

	calls := 0
	counting := KeyResolverFunc(func(ctx context.Context, h *Header, b []byte) ([]byte, error) {
		calls++
		return NewPrivateKeyResolver(kasKey).ResolveKey(ctx, h, b)
	})
	tampered := bytes.Clone(data)
	tampered[env.headerLen+PayloadLengthSize+12] ^= 0x01
	_, err = Decrypt(ctx, tampered, counting)
	assert.ErrorIs(t, err, ErrSignatureInvalid)
	assert.Zero(t, calls)
}

func TestSignWithEphemeralKey(t *testing.T) {
	kasKey := newKASKey(t, ECCModeSecp256r1)
	data, err := Encrypt([]byte("signed"), Config{
		KASURL:             "https://kas.example.com",
		RecipientPublicKey: &kasKey.PublicKey,
		SymmetricCipher:    CipherAES256GCM128,
		SignPayload:        true,
	})
	require.NoError(t, err)

	env, err := ParseEnvelope(data, false)
	require.NoError(t, err)
	assert.Equal(t, env.Header.EphemeralPublicKey, env.Signature.PublicKey)
	assert.NoError(t, env.VerifySignature(nil))
}

func TestEncryptorUniqueIVs(t *testing.T) {
	ctx := context.Background()
	kasKey := newKASKey(t, ECCModeSecp256r1)

	enc, err := NewEncryptor(Config{
		KASURL:             "https://kas.example.com",
		RecipientPublicKey: &kasKey.PublicKey,
		SymmetricCipher:    CipherAES256GCM96,
	})
	require.NoError(t, err)

	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		msg := []byte(fmt.Sprintf("message %d", i))
		data, err := enc.Seal(msg)
		require.NoError(t, err)

		env, err := ParseEnvelope(data, false)
		require.NoError(t, err)
		iv := hex.EncodeToString(env.Payload.IV)
		assert.False(t, seen[iv], "iv %s reused", iv)
		seen[iv] = true

		decrypted, err := Decrypt(ctx, data, NewPrivateKeyResolver(kasKey))
		require.NoError(t, err)
		assert.Equal(t, msg, decrypted)
	}

	enc.Close()
	_, err = enc.Seal([]byte("late"))
	assert.ErrorIs(t, err, ErrWriterClosed)
}

func TestWriterReader(t *testing.T) {
	kasKey := newKASKey(t, ECCModeSecp384r1)

	var buf bytes.Buffer
	w, err := NewWriter(&buf, Config{
		KASURL:             "https://kas.example.com",
		RecipientPublicKey: &kasKey.PublicKey,
		ECCMode:            ECCModeSecp384r1,
		SymmetricCipher:    CipherAES256GCM120,
	})
	require.NoError(t, err)

	_, err = w.Write([]byte("part one, "))
	require.NoError(t, err)
	_, err = w.Write([]byte("part two"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.ErrorIs(t, w.Close(), ErrWriterClosed)

	r, err := NewReader(context.Background(), buf.Bytes(), NewPrivateKeyResolver(kasKey))
	require.NoError(t, err)
	assert.Equal(t, ECCModeSecp384r1, r.Header().ECCMode)

	var out bytes.Buffer
	_, err = out.ReadFrom(r)
	require.NoError(t, err)
	assert.Equal(t, "part one, part two", out.String())
	require.NoError(t, r.Close())
	_, err = r.Read(make([]byte, 1))
	assert.ErrorIs(t, err, ErrReaderClosed)
}

func TestEncryptConfigErrors(t *testing.T) {
	kasKey := newKASKey(t, ECCModeSecp256r1)

	_, err := Encrypt(nil, Config{RecipientPublicKey: &kasKey.PublicKey})
	assert.ErrorIs(t, err, ErrMissingLocator)

	_, err = Encrypt(nil, Config{KASURL: "https://kas.example.com"})
	assert.ErrorIs(t, err, ErrMissingRecipientKey)

	_, err = Encrypt(nil, Config{
		KASURL:             "https://kas.example.com",
		RecipientPublicKey: &kasKey.PublicKey,
		ECCMode:            ECCModeSecp384r1,
	})
	assert.ErrorIs(t, err, crypto.ErrCurveMismatch)

	_, err = Encrypt(nil, Config{
		KASURL:             "https://kas.example.com",
		RecipientPublicKey: &kasKey.PublicKey,
		PolicyType:         PolicyTypeEmbeddedPlaintext,
		Policy:             make([]byte, MaxEmbeddedPolicySize+1),
	})
	assert.ErrorIs(t, err, ErrPolicyTooLarge)

	_, err = Encrypt(nil, Config{
		KASURL:             "https://kas.example.com",
		RecipientPublicKey: &kasKey.PublicKey,
		SymmetricCipher:    SymmetricCipher(0x09),
	})
	assert.ErrorIs(t, err, ErrUnsupportedCipher)

	_, err = Decrypt(context.Background(), nil, nil)
	assert.ErrorIs(t, err, ErrMissingKeyResolver)
}
