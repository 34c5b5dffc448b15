package kas

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/opentdf/tests-sub001/internal/metrics"
	"github.com/opentdf/tests-sub001/pkg/crypto"
	"github.com/opentdf/tests-sub001/pkg/dek"
	"github.com/opentdf/tests-sub001/pkg/nanotdf"
)

const maxRequestSize = 1 << 20

// ServerConfig holds the reference KAS configuration.
type ServerConfig struct {
	// Keys are the KAS private keys, at most one per curve.
	Keys []*ecdsa.PrivateKey

	// KeyID is reported as the kid of every public key.
	KeyID string

	// Verifier authenticates bearer tokens. Nil accepts anonymous requests.
	Verifier TokenVerifier

	// Decider authorizes each rewrap. Nil allows every request whose
	// policy binding verifies.
	Decider PolicyDecider

	// Logger is the request logger (optional, defaults to no-op).
	Logger *zerolog.Logger

	// Provider is the crypto backend (optional).
	Provider crypto.Provider

	// Addr is the listen address used by ListenAndServe.
	Addr string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// Server is a reference key access service.
type Server struct {
	keys     map[crypto.ECCMode]*ecdsa.PrivateKey
	keyID    string
	verifier TokenVerifier
	decider  PolicyDecider
	logger   zerolog.Logger
	provider crypto.Provider
	router   *chi.Mux
	server   *http.Server
}

// NewServer creates a KAS from cfg.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if len(cfg.Keys) == 0 {
		return nil, errors.New("at least one KAS key is required")
	}

	s := &Server{
		keys:     make(map[crypto.ECCMode]*ecdsa.PrivateKey, len(cfg.Keys)),
		keyID:    cfg.KeyID,
		verifier: cfg.Verifier,
		decider:  cfg.Decider,
		logger:   zerolog.Nop(),
		provider: cfg.Provider,
	}
	if cfg.Logger != nil {
		s.logger = *cfg.Logger
	}
	if s.provider == nil {
		s.provider = crypto.DefaultProvider
	}
	if s.decider == nil {
		s.decider = AllowAll
	}

	for _, k := range cfg.Keys {
		mode, err := crypto.ModeForCurve(k.Curve)
		if err != nil {
			return nil, err
		}
		if _, dup := s.keys[mode]; dup {
			return nil, fmt.Errorf("duplicate KAS key for %s", mode)
		}
		s.keys[mode] = k
	}

	s.router = s.setupRouter()

	readTimeout, writeTimeout, idleTimeout := cfg.ReadTimeout, cfg.WriteTimeout, cfg.IdleTimeout
	if readTimeout == 0 {
		readTimeout = 15 * time.Second
	}
	if writeTimeout == 0 {
		writeTimeout = 15 * time.Second
	}
	if idleTimeout == 0 {
		idleTimeout = 60 * time.Second
	}
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}
	return s, nil
}

func (s *Server) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(metrics.HTTPMiddleware)

	r.Get(HealthPath, s.handleHealth)
	r.Get(PublicKeyPath, s.handlePublicKey)
	r.Post(RewrapPath, s.handleRewrap)
	r.Method(http.MethodGet, MetricsPath, promhttp.Handler())

	return r
}

// Handler returns the HTTP handler serving the KAS routes.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.server.Addr).Msg("KAS listening")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (s *Server) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	mode, err := ModeForAlgorithm(r.URL.Query().Get("algorithm"))
	if err != nil {
		writeError(w, CodeInvalidRequest, err.Error(), http.StatusBadRequest)
		return
	}
	key, ok := s.keys[mode]
	if !ok {
		writeError(w, CodeInvalidRequest, "no key for "+Algorithm(mode), http.StatusNotFound)
		return
	}

	if r.URL.Query().Get("fmt") == "jwk" {
		data, err := MarshalJWK(&key.PublicKey, s.keyID)
		if err != nil {
			writeError(w, CodeInternal, "failed to encode key", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/jwk+json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	pemText, err := crypto.MarshalPublicKeyPEM(&key.PublicKey)
	if err != nil {
		writeError(w, CodeInternal, "failed to encode key", http.StatusInternalServerError)
		return
	}
	writeJSON(w, PublicKeyResponse{PublicKey: pemText, KID: s.keyID}, http.StatusOK)
}

func (s *Server) handleRewrap(w http.ResponseWriter, r *http.Request) {
	log := s.logger.With().Str("request_id", middleware.GetReqID(r.Context())).Logger()

	subject, err := s.authenticate(r)
	if err != nil {
		log.Debug().Err(err).Msg("rewrap unauthenticated")
		writeError(w, CodeUnauthenticated, err.Error(), http.StatusUnauthorized)
		return
	}

	var req RewrapRequest
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestSize))
	if err != nil || json.Unmarshal(data, &req) != nil || req.SignedRequestToken == "" {
		writeError(w, CodeInvalidRequest, "malformed rewrap request", http.StatusBadRequest)
		return
	}

	body, clientPub, err := VerifyRequest(req.SignedRequestToken)
	if err != nil {
		writeError(w, CodeInvalidRequest, err.Error(), http.StatusBadRequest)
		return
	}

	h, key, err := s.contentKey(body.KeyAccess.Header)
	if err != nil {
		code, status := CodeInvalidHeader, http.StatusBadRequest
		if errors.Is(err, nanotdf.ErrPolicyBinding) {
			code, status = CodePolicyBindingMismatch, http.StatusForbidden
		}
		log.Info().Err(err).Str("subject", subject).Msg("rewrap rejected")
		writeError(w, code, err.Error(), status)
		return
	}
	defer crypto.Zero(key)

	access := &AccessRequest{Subject: subject, Header: h}
	switch h.Policy.Type {
	case nanotdf.PolicyTypeEmbeddedPlaintext:
		access.Policy = h.Policy.Content
	case nanotdf.PolicyTypeEmbeddedEncrypted:
		plain, err := nanotdf.DecryptPolicyContent(s.provider, key, h.Policy.Content, h.SymmetricCipher)
		if err != nil {
			writeError(w, CodeInvalidHeader, err.Error(), http.StatusBadRequest)
			return
		}
		access.Policy = plain
	}

	if err := s.decider.Decide(r.Context(), access); err != nil {
		log.Info().Err(err).Str("subject", subject).Msg("rewrap denied")
		writeError(w, CodeAccessDenied, err.Error(), http.StatusForbidden)
		return
	}

	wrapped, sessionPub, err := dek.Wrap(s.provider, key, clientPub, h.Salt())
	if err != nil {
		writeError(w, CodeInvalidRequest, err.Error(), http.StatusBadRequest)
		return
	}
	sessionPEM, err := crypto.MarshalPublicKeyPEM(sessionPub)
	if err != nil {
		writeError(w, CodeInternal, "failed to encode session key", http.StatusInternalServerError)
		return
	}

	log.Debug().Str("subject", subject).Stringer("curve", h.ECCMode).Msg("rewrap granted")
	writeJSON(w, RewrapResponse{
		EntityWrappedKey: wrapped,
		SessionPublicKey: sessionPEM,
		SchemaVersion:    SchemaVersion,
	}, http.StatusOK)
}

func (s *Server) authenticate(r *http.Request) (string, error) {
	if s.verifier == nil {
		return "", nil
	}
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok || token == "" {
		return "", errors.New("missing bearer token")
	}
	return s.verifier.Verify(r.Context(), token)
}

func (s *Server) contentKey(headerBytes []byte) (*nanotdf.Header, []byte, error) {
	h, _, err := nanotdf.ParseHeader(headerBytes, false)
	if err != nil {
		return nil, nil, err
	}
	kasKey, ok := s.keys[h.ECCMode]
	if !ok {
		return nil, nil, fmt.Errorf("%w: no KAS key for %s", dek.ErrKeyMismatch, h.ECCMode)
	}
	return dek.ContentKey(s.provider, headerBytes, kasKey)
}

func writeJSON(w http.ResponseWriter, data any, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, code, message string, statusCode int) {
	writeJSON(w, ErrorBody{Code: code, Message: message}, statusCode)
}
