package kas

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v4"
	"golang.org/x/sync/singleflight"

	"github.com/opentdf/tests-sub001/pkg/crypto"
)

// ErrInvalidPublicKey is returned when a KAS public key document cannot be
// parsed into an EC key.
var ErrInvalidPublicKey = errors.New("invalid KAS public key")

// ParsePublicKey accepts any of the forms a KAS returns from PublicKeyPath:
// a PEM block, a JSON string holding PEM, {"publicKey": PEM} or a JWK.
func ParsePublicKey(data []byte) (*ecdsa.PublicKey, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty document", ErrInvalidPublicKey)
	}

	switch data[0] {
	case '-':
		pub, err := crypto.ParsePublicKeyPEM(data)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		return pub, nil
	case '"':
		var pemText string
		if err := json.Unmarshal(data, &pemText); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		return ParsePublicKey([]byte(pemText))
	case '{':
		var envelope struct {
			PublicKey string `json:"publicKey"`
			Kty       string `json:"kty"`
		}
		if err := json.Unmarshal(data, &envelope); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
		}
		if envelope.PublicKey != "" {
			return ParsePublicKey([]byte(envelope.PublicKey))
		}
		if envelope.Kty != "" {
			return parseJWK(data)
		}
	}
	return nil, fmt.Errorf("%w: unrecognized format", ErrInvalidPublicKey)
}

func parseJWK(data []byte) (*ecdsa.PublicKey, error) {
	var jwk jose.JSONWebKey
	if err := jwk.UnmarshalJSON(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if !jwk.Valid() {
		return nil, fmt.Errorf("%w: invalid JWK", ErrInvalidPublicKey)
	}
	switch key := jwk.Key.(type) {
	case *ecdsa.PublicKey:
		return key, nil
	case *ecdsa.PrivateKey:
		return &key.PublicKey, nil
	default:
		return nil, fmt.Errorf("%w: expected EC key, got %T", ErrInvalidPublicKey, jwk.Key)
	}
}

// MarshalJWK encodes pub as a public JWK for ECDH-ES key agreement.
func MarshalJWK(pub *ecdsa.PublicKey, kid string) ([]byte, error) {
	jwk := jose.JSONWebKey{
		Key:       pub,
		KeyID:     kid,
		Algorithm: string(jose.ECDH_ES),
		Use:       "enc",
	}
	return jwk.MarshalJSON()
}

// PublicKeyFetchTimeout bounds a shared fetch. It applies instead of the
// caller's deadline since other callers may be waiting on the same fetch.
const PublicKeyFetchTimeout = 30 * time.Second

// PublicKeyFetcher loads a KAS public key over the network.
type PublicKeyFetcher func(ctx context.Context, kasURL, algorithm string) (*ecdsa.PublicKey, error)

// PublicKeyCache holds KAS public keys for the life of the process. An entry
// is never replaced once stored, and concurrent misses for the same key
// share one fetch.
type PublicKeyCache struct {
	mu      sync.RWMutex
	entries map[string]*ecdsa.PublicKey
	group   singleflight.Group
}

// NewPublicKeyCache returns an empty cache.
func NewPublicKeyCache() *PublicKeyCache {
	return &PublicKeyCache{entries: make(map[string]*ecdsa.PublicKey)}
}

// DefaultPublicKeyCache is shared by clients that are not given their own.
var DefaultPublicKeyCache = NewPublicKeyCache()

func cacheKey(kasURL, algorithm string) string {
	return kasURL + "|" + algorithm
}

// Lookup returns a cached key without fetching.
func (c *PublicKeyCache) Lookup(kasURL, algorithm string) (*ecdsa.PublicKey, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pub, ok := c.entries[cacheKey(kasURL, algorithm)]
	return pub, ok
}

// Get returns the cached key for (kasURL, algorithm), calling fetch on a
// miss. Failed fetches are not cached. The fetch runs detached from ctx, so
// a caller that gives up returns ctx.Err() without failing the others.
func (c *PublicKeyCache) Get(ctx context.Context, kasURL, algorithm string, fetch PublicKeyFetcher) (*ecdsa.PublicKey, error) {
	if pub, ok := c.Lookup(kasURL, algorithm); ok {
		return pub, nil
	}

	key := cacheKey(kasURL, algorithm)
	ch := c.group.DoChan(key, func() (any, error) {
		if pub, ok := c.Lookup(kasURL, algorithm); ok {
			return pub, nil
		}
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), PublicKeyFetchTimeout)
		defer cancel()
		pub, err := fetch(fetchCtx, kasURL, algorithm)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		if existing, ok := c.entries[key]; ok {
			return existing, nil
		}
		c.entries[key] = pub
		return pub, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*ecdsa.PublicKey), nil
	}
}

// Len returns the number of cached keys.
func (c *PublicKeyCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
