// Package kas implements both ends of the key access service rewrap
// protocol for NanoTDF: a retrying client that turns an envelope header
// into its content key, and a reference server that holds the KAS private
// keys and answers rewrap requests.
package kas

import (
	"github.com/opentdf/tests-sub001/pkg/crypto"
)

// HTTP paths served by a KAS.
const (
	PublicKeyPath = "/kas_public_key"
	RewrapPath    = "/v2/rewrap"
	HealthPath    = "/healthz"
	MetricsPath   = "/metrics"
)

// Header names sent with every rewrap request.
const (
	HeaderClientVersion = "X-Client-Version"
	HeaderRequestID     = "X-Request-ID"
)

// SchemaVersion is the rewrap response schema produced by Server.
const SchemaVersion = "1.0.0"

// RewrapRequest is the body POSTed to RewrapPath.
type RewrapRequest struct {
	SignedRequestToken string `json:"signedRequestToken"`
}

// RequestBody is carried as the requestBody claim of the signed request
// token.
type RequestBody struct {
	KeyAccess       KeyAccess `json:"keyAccess"`
	ClientPublicKey string    `json:"clientPublicKey"`
	Algorithm       string    `json:"algorithm"`
}

// KeyAccess describes the envelope whose key is requested. Header is the
// exact serialized NanoTDF header, base64 encoded on the wire.
type KeyAccess struct {
	Type     string `json:"type"`
	URL      string `json:"url"`
	Protocol string `json:"protocol"`
	Header   []byte `json:"header"`
}

// RewrapResponse is returned by a successful rewrap.
type RewrapResponse struct {
	EntityWrappedKey []byte `json:"entityWrappedKey"`
	SessionPublicKey string `json:"sessionPublicKey"`
	SchemaVersion    string `json:"schemaVersion,omitempty"`
}

// PublicKeyResponse is returned by PublicKeyPath unless a JWK is requested.
type PublicKeyResponse struct {
	PublicKey string `json:"publicKey"`
	KID       string `json:"kid,omitempty"`
}

// Algorithm returns the KAS algorithm name for an ECC mode, for example
// "ec:secp256r1".
func Algorithm(mode crypto.ECCMode) string {
	return "ec:" + mode.String()
}

// ModeForAlgorithm reverses Algorithm. An empty name selects secp256r1.
func ModeForAlgorithm(alg string) (crypto.ECCMode, error) {
	if alg == "" {
		return crypto.ECCModeSecp256r1, nil
	}
	name := alg
	if len(alg) > 3 && alg[:3] == "ec:" {
		name = alg[3:]
	}
	return crypto.ModeForName(name)
}
