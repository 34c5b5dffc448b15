package kas

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/opentdf/tests-sub001/internal/metrics"
	"github.com/opentdf/tests-sub001/pkg/crypto"
	"github.com/opentdf/tests-sub001/pkg/dek"
	"github.com/opentdf/tests-sub001/pkg/nanotdf"
)

// Default client settings.
const (
	DefaultMaxRetries      = 3
	DefaultInitialInterval = 100 * time.Millisecond
	DefaultMaxInterval     = 2 * time.Second
	DefaultTimeout         = 30 * time.Second
	DefaultClientVersion   = "nanotdf-go/0.1.0"

	maxResponseSize = 1 << 20
)

// Client performs rewrap and public key requests against a KAS.
// It is safe for concurrent use.
type Client struct {
	httpClient      *http.Client
	tokens          TokenSource
	logger          zerolog.Logger
	maxRetries      uint64
	initialInterval time.Duration
	maxInterval     time.Duration
	limiter         *rate.Limiter
	keys            *PublicKeyCache
	clientVersion   string
	provider        crypto.Provider
	clientMode      crypto.ECCMode
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTokenSource sets the bearer token source.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithLogger sets the logger. State transitions are logged at debug level.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMaxRetries sets how many times a transient failure is retried.
// Zero disables retries.
func WithMaxRetries(n uint64) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithBackoff sets the exponential backoff bounds between retries.
func WithBackoff(initial, maxInterval time.Duration) Option {
	return func(c *Client) {
		c.initialInterval = initial
		c.maxInterval = maxInterval
	}
}

// WithRateLimit limits outgoing KAS requests to rps per second with the
// given burst.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// WithPublicKeyCache sets the KAS public key cache.
func WithPublicKeyCache(cache *PublicKeyCache) Option {
	return func(c *Client) { c.keys = cache }
}

// WithClientVersion sets the X-Client-Version header value.
func WithClientVersion(v string) Option {
	return func(c *Client) { c.clientVersion = v }
}

// WithProvider sets the crypto backend.
func WithProvider(p crypto.Provider) Option {
	return func(c *Client) { c.provider = p }
}

// WithClientCurve sets the curve of the per-request client key pair.
func WithClientCurve(mode crypto.ECCMode) Option {
	return func(c *Client) { c.clientMode = mode }
}

// NewClient returns a client with the given options applied over defaults.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:      &http.Client{Timeout: DefaultTimeout},
		logger:          zerolog.Nop(),
		maxRetries:      DefaultMaxRetries,
		initialInterval: DefaultInitialInterval,
		maxInterval:     DefaultMaxInterval,
		limiter:         rate.NewLimiter(rate.Inf, 1),
		keys:            DefaultPublicKeyCache,
		clientVersion:   DefaultClientVersion,
		provider:        crypto.DefaultProvider,
		clientMode:      crypto.ECCModeSecp256r1,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ResolveKey implements nanotdf.KeyResolver over the rewrap protocol.
func (c *Client) ResolveKey(ctx context.Context, h *nanotdf.Header, headerBytes []byte) ([]byte, error) {
	return c.Rewrap(ctx, h, headerBytes)
}

// Rewrap asks the KAS named in the header for the content key. Transient
// failures are retried with exponential backoff; denials are returned at
// once. Cancellation of ctx aborts waits and in-flight requests and yields
// an error matching ErrCanceled.
func (c *Client) Rewrap(ctx context.Context, h *nanotdf.Header, headerBytes []byte) ([]byte, error) {
	start := time.Now()
	key, err := c.rewrap(ctx, h, headerBytes)
	metrics.RecordOperation(metrics.OpRewrap, metrics.StatusFor(err), time.Since(start).Seconds())
	return key, err
}

func (c *Client) rewrap(ctx context.Context, h *nanotdf.Header, headerBytes []byte) ([]byte, error) {
	kasURL, err := h.KASURL()
	if err != nil {
		return nil, err
	}
	endpoint, err := h.KASRewrapURL()
	if err != nil {
		return nil, err
	}

	clientKey, err := c.provider.GenerateKeyPair(c.clientMode)
	if err != nil {
		return nil, fmt.Errorf("failed to generate client key: %w", err)
	}
	clientPEM, err := crypto.MarshalPublicKeyPEM(&clientKey.PublicKey)
	if err != nil {
		return nil, err
	}

	body := RequestBody{
		KeyAccess: KeyAccess{
			Type:     "remote",
			URL:      kasURL,
			Protocol: "kas",
			Header:   headerBytes,
		},
		ClientPublicKey: clientPEM,
		Algorithm:       Algorithm(c.clientMode),
	}

	attempt := 0
	var key []byte
	op := func() error {
		attempt++
		log := c.logger.With().Str("kas_url", kasURL).Int("attempt", attempt).Logger()

		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(c.transition(log, newError(KindCanceled, kasURL, err)))
		}

		k, err := c.attempt(ctx, log, endpoint, body, clientKey, h.Salt())
		if err != nil {
			c.transition(log, err)
			if kerr := asError(err); kerr != nil && kerr.Kind.Retryable() {
				return err
			}
			return backoff.Permanent(err)
		}
		c.logState(log, StateKeyReceived)
		metrics.RecordRewrapAttempt(metrics.OutcomeKeyReceived)
		key = k
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Debug().Err(err).Str("kas_url", kasURL).Int("attempt", attempt).Dur("wait", wait).Msg("retrying rewrap")
	}

	if err := backoff.RetryNotify(op, c.backoff(ctx), notify); err != nil {
		if asError(err) == nil && ctx.Err() != nil {
			return nil, newError(KindCanceled, kasURL, ctx.Err())
		}
		return nil, err
	}
	return key, nil
}

func (c *Client) backoff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.initialInterval
	exp.MaxInterval = c.maxInterval
	exp.MaxElapsedTime = 0
	exp.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(exp, c.maxRetries), ctx)
}

// attempt runs one UNAUTHENTICATED -> TOKEN_ACQUIRED -> REQUEST_SENT pass.
func (c *Client) attempt(ctx context.Context, log zerolog.Logger, endpoint string, body RequestBody, clientKey *ecdsa.PrivateKey, salt []byte) ([]byte, error) {
	kasURL := body.KeyAccess.URL
	c.logState(log, StateUnauthenticated)

	var bearer string
	if c.tokens != nil {
		t, err := c.tokens.Token(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, newError(KindCanceled, kasURL, ctx.Err())
			}
			return nil, newError(KindUnauthenticated, kasURL, err)
		}
		bearer = t
	}
	c.logState(log, StateTokenAcquired)

	signed, err := SignRequest(clientKey, body)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(RewrapRequest{SignedRequestToken: signed})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal rewrap request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build rewrap request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderClientVersion, c.clientVersion)
	req.Header.Set(HeaderRequestID, uuid.NewString())
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	c.logState(log, StateRequestSent)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordKASRequest(RewrapPath, "0")
		if ctx.Err() != nil {
			return nil, newError(KindCanceled, kasURL, ctx.Err())
		}
		return nil, newError(KindTransient, kasURL, err)
	}
	defer resp.Body.Close()
	metrics.RecordKASRequest(RewrapPath, strconv.Itoa(resp.StatusCode))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if ctx.Err() != nil {
			return nil, newError(KindCanceled, kasURL, ctx.Err())
		}
		return nil, newError(KindTransient, kasURL, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, statusError(kasURL, resp.StatusCode, data)
	}

	var out RewrapResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, newError(KindInvalidResponse, kasURL, err)
	}
	if len(out.EntityWrappedKey) == 0 || out.SessionPublicKey == "" {
		return nil, newError(KindInvalidResponse, kasURL, errors.New("missing entityWrappedKey or sessionPublicKey"))
	}
	sessionPub, err := crypto.ParsePublicKeyPEM([]byte(out.SessionPublicKey))
	if err != nil {
		return nil, newError(KindInvalidResponse, kasURL, err)
	}
	key, err := dek.Unwrap(c.provider, out.EntityWrappedKey, sessionPub, clientKey, salt)
	if err != nil {
		return nil, newError(KindInvalidResponse, kasURL, err)
	}
	return key, nil
}

func statusError(kasURL string, status int, data []byte) *Error {
	e := newError(classifyStatus(status), kasURL, nil)
	e.StatusCode = status

	var body ErrorBody
	if json.Unmarshal(data, &body) == nil {
		e.Code = body.Code
		e.Message = body.Message
	} else if len(data) > 0 && len(data) <= 256 {
		e.Message = string(bytes.TrimSpace(data))
	}
	if e.Code == CodePolicyBindingMismatch {
		e.cause = nanotdf.ErrPolicyBinding
	}
	return e
}

func asError(err error) *Error {
	var kerr *Error
	if errors.As(err, &kerr) {
		return kerr
	}
	return nil
}

// transition logs the terminal state of a failed attempt and records it.
func (c *Client) transition(log zerolog.Logger, err error) error {
	kerr := asError(err)
	if kerr == nil {
		c.logState(log, StateDenied)
		metrics.RecordRewrapAttempt(metrics.OutcomeInvalid)
		return err
	}
	c.logState(log, stateForKind(kerr.Kind))
	metrics.RecordRewrapAttempt(outcomeFor(kerr.Kind))
	return err
}

func (c *Client) logState(log zerolog.Logger, s State) {
	log.Debug().Stringer("state", s).Msg("rewrap state")
}

func outcomeFor(k Kind) string {
	switch k {
	case KindTransient:
		return metrics.OutcomeTransient
	case KindCanceled:
		return metrics.OutcomeCanceled
	case KindInvalidResponse:
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeDenied
	}
}

// PublicKey returns the KAS public key for mode, fetching it once per
// process and caching it.
func (c *Client) PublicKey(ctx context.Context, kasURL string, mode crypto.ECCMode) (*ecdsa.PublicKey, error) {
	start := time.Now()
	pub, err := c.keys.Get(ctx, kasURL, Algorithm(mode), c.fetchPublicKey)
	if err != nil && errors.Is(err, ctx.Err()) {
		err = newError(KindCanceled, kasURL, err)
	}
	metrics.RecordOperation(metrics.OpPublicKey, metrics.StatusFor(err), time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if got, err := crypto.ModeForCurve(pub.Curve); err != nil || got != mode {
		return nil, fmt.Errorf("%w: KAS returned a %s key", crypto.ErrCurveMismatch, pub.Curve.Params().Name)
	}
	return pub, nil
}

func (c *Client) fetchPublicKey(ctx context.Context, kasURL, algorithm string) (*ecdsa.PublicKey, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, newError(KindCanceled, kasURL, err)
	}

	endpoint := kasURL + PublicKeyPath + "?" + url.Values{"algorithm": {algorithm}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build public key request: %w", err)
	}
	req.Header.Set(HeaderClientVersion, c.clientVersion)
	req.Header.Set(HeaderRequestID, uuid.NewString())

	c.logger.Debug().Str("kas_url", kasURL).Str("algorithm", algorithm).Msg("fetching KAS public key")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordKASRequest(PublicKeyPath, "0")
		if ctx.Err() != nil {
			return nil, newError(KindCanceled, kasURL, ctx.Err())
		}
		return nil, newError(KindTransient, kasURL, err)
	}
	defer resp.Body.Close()
	metrics.RecordKASRequest(PublicKeyPath, strconv.Itoa(resp.StatusCode))

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, newError(KindTransient, kasURL, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError(kasURL, resp.StatusCode, data)
	}

	pub, err := ParsePublicKey(data)
	if err != nil {
		return nil, newError(KindInvalidResponse, kasURL, err)
	}
	return pub, nil
}
