package cli

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opentdf/tests-sub001/pkg/crypto"
	"github.com/opentdf/tests-sub001/pkg/kas"
)

const testAttr = "https://example.com/attr/classification/value/secret"

// isolate keeps tests from reading a developer's config.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("HOME", dir)
	return dir
}

func startKAS(t *testing.T) string {
	t.Helper()
	key, err := crypto.GenerateECCKeyPair(crypto.ECCModeSecp256r1)
	require.NoError(t, err)
	srv, err := kas.NewServer(&kas.ServerConfig{Keys: []*ecdsa.PrivateKey{key}})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func run(t *testing.T, stdin []byte, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetArgs(args)
	cmd.SetIn(bytes.NewReader(stdin))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestEncryptDecryptFiles(t *testing.T) {
	dir := isolate(t)
	kasURL := startKAS(t)

	in := filepath.Join(dir, "plain.txt")
	envelope := filepath.Join(dir, "plain.ntdf")
	out := filepath.Join(dir, "plain.out")
	require.NoError(t, os.WriteFile(in, []byte("cli secret"), 0o600))

	_, err := run(t, nil, "encrypt", "--kas", kasURL, "--attr", testAttr, "--in", in, "--out", envelope)
	require.NoError(t, err)

	_, err = run(t, nil, "decrypt", "--kas", kasURL, "--in", envelope, "--out", out)
	require.NoError(t, err)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "cli secret", string(got))
}

func TestEncryptDecryptBase64Pipes(t *testing.T) {
	isolate(t)
	kasURL := startKAS(t)
	t.Setenv("NANOTDF_KAS_URL", kasURL)

	encoded, err := run(t, []byte("piped"), "encrypt", "--base64")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(encoded, "\n"))

	plaintext, err := run(t, []byte(encoded), "decrypt", "--base64")
	require.NoError(t, err)
	assert.Equal(t, "piped", plaintext)
}

func TestEncryptLegacy(t *testing.T) {
	isolate(t)
	kasURL := startKAS(t)

	envelope, err := run(t, []byte("legacy"), "encrypt", "--kas", kasURL, "--legacy")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(envelope, "L1K"))

	plaintext, err := run(t, []byte(envelope), "decrypt", "--legacy")
	require.NoError(t, err)
	assert.Equal(t, "legacy", plaintext)
}

func TestEncryptWithoutKAS(t *testing.T) {
	isolate(t)
	_, err := run(t, []byte("x"), "encrypt")
	assert.ErrorContains(t, err, "no KAS URL")
}

func TestDecryptWrongKAS(t *testing.T) {
	isolate(t)
	kasURL := startKAS(t)

	envelope, err := run(t, []byte("x"), "encrypt", "--kas", kasURL)
	require.NoError(t, err)

	_, err = run(t, []byte(envelope), "decrypt", "--kas", "https://other.example.com")
	assert.ErrorContains(t, err, "different KAS")
}

func TestInspect(t *testing.T) {
	isolate(t)
	kasURL := startKAS(t)
	require.NoError(t, os.WriteFile("nanotdf.yaml", []byte(`
encrypt:
  policy_type: embedded-plaintext
  ecdsa_binding: true
  sign_payload: true
  tag_bits: 128
`), 0o600))

	envelope, err := run(t, []byte("inspect me"), "encrypt", "--kas", kasURL, "--attr", testAttr)
	require.NoError(t, err)

	out, err := run(t, []byte(envelope), "inspect", "--json")
	require.NoError(t, err)

	var info envelopeInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "L1L", info.Magic)
	assert.Equal(t, kasURL, info.KAS)
	assert.Equal(t, "secp256r1", info.Curve)
	assert.True(t, info.ECDSABinding)
	assert.Equal(t, "AES-256-GCM-128", info.Cipher)
	assert.Equal(t, "embedded-plaintext", info.PolicyType)
	assert.Contains(t, info.Policy, testAttr)
	assert.True(t, info.Signed)
	assert.Equal(t, len("inspect me"), info.CiphertextSize)
	assert.Len(t, info.IV, 24)

	text, err := run(t, []byte(envelope), "inspect")
	require.NoError(t, err)
	assert.Contains(t, text, "Policy type:     embedded-plaintext")
}

func TestInspectRejectsGarbage(t *testing.T) {
	isolate(t)
	_, err := run(t, []byte("L1L"), "inspect")
	assert.Error(t, err)
}

func TestKeygen(t *testing.T) {
	dir := isolate(t)
	pub := filepath.Join(dir, "kas.pub")

	privPEM, err := run(t, nil, "keygen", "--curve", "secp384r1", "--pub-out", pub)
	require.NoError(t, err)

	key, err := crypto.ParsePrivateKeyPEM([]byte(privPEM))
	require.NoError(t, err)
	assert.Equal(t, "P-384", key.Curve.Params().Name)

	pubPEM, err := os.ReadFile(pub)
	require.NoError(t, err)
	parsed, err := crypto.ParsePublicKeyPEM(pubPEM)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(&key.PublicKey))

	_, err = run(t, nil, "keygen", "--curve", "secp256k1")
	assert.Error(t, err)
}

func TestServerKeysFromFiles(t *testing.T) {
	dir := isolate(t)
	key, err := crypto.GenerateECCKeyPair(crypto.ECCModeSecp521r1)
	require.NoError(t, err)
	data, err := crypto.MarshalPrivateKeyPEM(key)
	require.NoError(t, err)
	path := filepath.Join(dir, "kas.pem")
	require.NoError(t, os.WriteFile(path, data, 0o600))

	a := &app{logger: zerolog.Nop()}
	keys, err := a.serverKeys([]string{path}, []string{"secp256r1"})
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.True(t, keys[0].Equal(key))

	keys, err = a.serverKeys(nil, []string{"secp256r1", "secp384r1"})
	require.NoError(t, err)
	assert.Len(t, keys, 2)
}

func TestInvalidLogLevel(t *testing.T) {
	isolate(t)
	_, err := run(t, nil, "inspect", "--log-level", "loud")
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, err := run(t, nil, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "nanotdf version dev")
}

// chdir changes the working directory for the duration of the test,
// restoring it on cleanup (equivalent of testing.T.Chdir from Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
