package kas

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/opentdf/tests-sub001/pkg/crypto"
)

// TokenSource supplies the bearer token sent with rewrap requests. The token
// should be bound to the client identity the KAS authorizes against.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

// Token calls f.
func (f TokenSourceFunc) Token(ctx context.Context) (string, error) {
	return f(ctx)
}

// StaticToken returns the same token on every call.
type StaticToken string

// Token returns t, or an error when t is empty.
func (t StaticToken) Token(context.Context) (string, error) {
	if t == "" {
		return "", errors.New("empty static token")
	}
	return string(t), nil
}

// requestTokenTTL bounds how long a signed request token is accepted.
const requestTokenTTL = time.Minute

var requestTokenMethods = []string{"ES256", "ES384", "ES512"}

// ErrInvalidRequestToken is returned when a signed request token cannot be
// verified.
var ErrInvalidRequestToken = errors.New("invalid signed request token")

type requestClaims struct {
	RequestBody string `json:"requestBody"`
	jwt.RegisteredClaims
}

// SignRequest returns a JWT carrying body in its requestBody claim, signed
// with the client key whose public half body announces.
func SignRequest(key *ecdsa.PrivateKey, body RequestBody) (string, error) {
	mode, err := crypto.ModeForCurve(key.Curve)
	if err != nil {
		return "", err
	}
	params, err := mode.Params()
	if err != nil {
		return "", err
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	now := time.Now()
	claims := requestClaims{
		RequestBody: string(raw),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(requestTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.GetSigningMethod(params.JWTAlgorithm), claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", fmt.Errorf("failed to sign request token: %w", err)
	}
	return signed, nil
}

// VerifyRequest parses a signed request token and checks its signature
// against the clientPublicKey inside its own body. It returns the body and
// the client key.
func VerifyRequest(signed string) (*RequestBody, *ecdsa.PublicKey, error) {
	var (
		body      RequestBody
		clientPub *ecdsa.PublicKey
	)

	keyFunc := func(t *jwt.Token) (any, error) {
		claims, ok := t.Claims.(*requestClaims)
		if !ok || claims.RequestBody == "" {
			return nil, errors.New("missing requestBody claim")
		}
		if err := json.Unmarshal([]byte(claims.RequestBody), &body); err != nil {
			return nil, fmt.Errorf("malformed requestBody: %w", err)
		}
		pub, err := crypto.ParsePublicKeyPEM([]byte(body.ClientPublicKey))
		if err != nil {
			return nil, err
		}
		clientPub = pub
		return pub, nil
	}

	_, err := jwt.ParseWithClaims(signed, &requestClaims{}, keyFunc,
		jwt.WithValidMethods(requestTokenMethods),
		jwt.WithIssuedAt(),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidRequestToken, err)
	}
	return &body, clientPub, nil
}
