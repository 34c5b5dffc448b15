package kas

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/opentdf/tests-sub001/pkg/nanotdf"
	"github.com/opentdf/tests-sub001/pkg/policy"
)

// TokenVerifier authenticates a bearer token and returns its subject.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (string, error)
}

// TokenVerifierFunc adapts a function to TokenVerifier.
type TokenVerifierFunc func(ctx context.Context, token string) (string, error)

// Verify calls f.
func (f TokenVerifierFunc) Verify(ctx context.Context, token string) (string, error) {
	return f(ctx, token)
}

// ErrInvalidToken is returned by verifiers for tokens they do not accept.
var ErrInvalidToken = errors.New("invalid access token")

// HMACTokens issues and verifies HS256 access tokens whose subject claim
// names the entity. It serves as both TokenVerifier and, via Source, the
// client's TokenSource.
type HMACTokens struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
}

// Issue returns a signed token for subject.
func (h HMACTokens) Issue(subject string) (string, error) {
	ttl := h.TTL
	if ttl == 0 {
		ttl = time.Hour
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    h.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(h.Secret)
}

// Source returns a TokenSource issuing a fresh token for subject per call.
func (h HMACTokens) Source(subject string) TokenSource {
	return TokenSourceFunc(func(context.Context) (string, error) {
		return h.Issue(subject)
	})
}

// Verify implements TokenVerifier.
func (h HMACTokens) Verify(_ context.Context, token string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if h.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(h.Issuer))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return h.Secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims.Subject, nil
}

// AccessRequest is what a PolicyDecider sees for one rewrap.
type AccessRequest struct {
	// Subject is the authenticated entity, empty for anonymous requests.
	Subject string
	// Header is the parsed header whose binding has already been verified.
	Header *nanotdf.Header
	// Policy is the plaintext embedded policy, or nil for remote policies.
	Policy []byte
}

// PolicyDecider authorizes a rewrap. A non-nil error denies it.
type PolicyDecider interface {
	Decide(ctx context.Context, req *AccessRequest) error
}

// PolicyDeciderFunc adapts a function to PolicyDecider.
type PolicyDeciderFunc func(ctx context.Context, req *AccessRequest) error

// Decide calls f.
func (f PolicyDeciderFunc) Decide(ctx context.Context, req *AccessRequest) error {
	return f(ctx, req)
}

// AllowAll grants every request.
var AllowAll PolicyDecider = PolicyDeciderFunc(func(context.Context, *AccessRequest) error { return nil })

// ErrAccessDenied is returned by deciders that refuse a request.
var ErrAccessDenied = errors.New("access denied")

// AttributeDecider grants access when the subject holds every data
// attribute of the embedded policy and, if the policy lists a
// dissemination set, appears in it.
type AttributeDecider struct {
	// Entitlements maps a subject to the attribute URIs it holds.
	Entitlements map[string][]string
	// AllowRemote grants requests whose policy is not embedded.
	AllowRemote bool
}

// Decide implements PolicyDecider.
func (d AttributeDecider) Decide(_ context.Context, req *AccessRequest) error {
	if req.Policy == nil {
		if d.AllowRemote {
			return nil
		}
		return fmt.Errorf("%w: %s policy cannot be evaluated", ErrAccessDenied, req.Header.Policy.Type)
	}

	p, err := policy.Parse(req.Policy)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAccessDenied, err)
	}

	if dissem := p.Body.Dissem; len(dissem) > 0 && !slices.Contains(dissem, req.Subject) {
		return fmt.Errorf("%w: %q not in dissemination list", ErrAccessDenied, req.Subject)
	}

	held := d.Entitlements[req.Subject]
	for _, attr := range p.Attributes() {
		if !slices.Contains(held, attr) {
			return fmt.Errorf("%w: %q lacks %s", ErrAccessDenied, req.Subject, attr)
		}
	}
	return nil
}
