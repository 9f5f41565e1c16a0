package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/agencyflow/agency-oauth/instrumentation"
	"github.com/agencyflow/agency-oauth/security"
	"github.com/agencyflow/agency-oauth/storage"
)

const (
	// accessTokenBytes is the entropy of an access token; it is hex encoded to 64 characters
	accessTokenBytes = 32

	// tokenIDLogLength is the number of characters to include when logging codes and tokens
	tokenIDLogLength = 8
)

// lifecycle is implemented by stores that run a background sweep
type lifecycle interface {
	Start(ctx context.Context)
	Stop()
}

// Server implements the OAuth 2.1 authorization server logic
type Server struct {
	codeStore  storage.CodeStore
	tokenStore storage.TokenStore

	consent          *security.ConsentSigner
	clientSecretHash []byte
	allowedRedirects map[string]struct{}

	Auditor         *security.Auditor
	RateLimiter     *security.RateLimiter // IP-based rate limiter
	Instrumentation *instrumentation.Instrumentation
	Logger          *slog.Logger
	Config          *Config

	now func() time.Time

	mu      sync.Mutex
	started bool
}

// New creates a new OAuth server
func New(
	codeStore storage.CodeStore,
	tokenStore storage.TokenStore,
	config *Config,
	logger *slog.Logger,
) (*Server, error) {
	if codeStore == nil {
		return nil, fmt.Errorf("code store is required")
	}
	if tokenStore == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if config == nil {
		config = &Config{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Defaults are applied to a copy so callers can reuse their Config
	cfg := *config
	cfg.AllowedRedirectURIs = append([]string(nil), config.AllowedRedirectURIs...)
	applySecureDefaults(&cfg, logger)
	if err := validateConfig(&cfg, logger); err != nil {
		return nil, err
	}

	srv := &Server{
		codeStore:        codeStore,
		tokenStore:       tokenStore,
		allowedRedirects: make(map[string]struct{}, len(cfg.AllowedRedirectURIs)),
		Logger:           logger,
		Config:           &cfg,
		now:              time.Now,
	}
	for _, uri := range cfg.AllowedRedirectURIs {
		srv.allowedRedirects[uri] = struct{}{}
	}

	if cfg.StaticClientSecret != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(cfg.StaticClientSecret), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("failed to hash client secret: %w", err)
		}
		srv.clientSecretHash = hash
		// The plaintext is not needed after hashing
		cfg.StaticClientSecret = ""
	}

	signer, err := security.NewConsentSigner([]byte(cfg.ConsentSigningKey), cfg.ConsentLifetime(), func() time.Time {
		return srv.now()
	})
	if err != nil {
		return nil, err
	}
	srv.consent = signer
	cfg.ConsentSigningKey = ""

	return srv, nil
}

// SetClock replaces time.Now for expiry decisions, mainly for tests
func (s *Server) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// SetAuditor sets the security auditor
func (s *Server) SetAuditor(aud *security.Auditor) {
	s.Auditor = aud
	s.wireAuditMetrics()
}

// SetRateLimiter sets the IP-based rate limiter. Its cleanup loop is owned by Start and Shutdown.
func (s *Server) SetRateLimiter(rl *security.RateLimiter) {
	s.RateLimiter = rl
}

// SetInstrumentation sets the instrumentation for server and storage
func (s *Server) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.Instrumentation = inst

	type instrumentationSetter interface {
		SetInstrumentation(*instrumentation.Instrumentation)
	}
	if setter, ok := s.codeStore.(instrumentationSetter); ok {
		setter.SetInstrumentation(inst)
	}
	if setter, ok := s.tokenStore.(instrumentationSetter); ok && any(s.tokenStore) != any(s.codeStore) {
		setter.SetInstrumentation(inst)
	}
	s.wireAuditMetrics()
}

func (s *Server) wireAuditMetrics() {
	if s.Auditor == nil || s.Instrumentation == nil {
		return
	}
	metrics := s.Instrumentation.Metrics()
	s.Auditor.OnEvent(func(eventType string) {
		metrics.RecordAuditEvent(context.Background(), eventType)
	})
}

// Start launches the background sweeps of the stores and the rate limiter cleanup.
// They stop when ctx is cancelled or Shutdown is called.
func (s *Server) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true

	for _, l := range s.lifecycles() {
		l.Start(ctx)
	}
	if s.RateLimiter != nil {
		s.RateLimiter.Start(ctx)
	}
	s.Logger.Info("OAuth server started",
		"issuer", s.Config.Issuer,
		"allowed_redirect_uris", len(s.allowedRedirects))
}

// Shutdown stops the background tasks and flushes instrumentation
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, l := range s.lifecycles() {
		l.Stop()
	}
	if s.RateLimiter != nil {
		s.RateLimiter.Stop()
	}
	s.started = false

	if s.Instrumentation != nil {
		if err := s.Instrumentation.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown instrumentation: %w", err)
		}
	}
	return nil
}

func (s *Server) lifecycles() []lifecycle {
	var out []lifecycle
	if l, ok := s.codeStore.(lifecycle); ok {
		out = append(out, l)
	}
	// A single store commonly backs both interfaces
	if l, ok := s.tokenStore.(lifecycle); ok && any(s.tokenStore) != any(s.codeStore) {
		out = append(out, l)
	}
	return out
}

// IsAllowedRedirectURI reports whether uri is byte-for-byte equal to an allow-listed entry
func (s *Server) IsAllowedRedirectURI(uri string) bool {
	_, ok := s.allowedRedirects[uri]
	return ok
}

// verifyClientSecret reports whether secret matches the configured static secret.
// A server without a configured secret accepts any value.
func (s *Server) verifyClientSecret(secret string) bool {
	if s.clientSecretHash == nil || secret == "" {
		return true
	}
	return bcrypt.CompareHashAndPassword(s.clientSecretHash, []byte(secret)) == nil
}

// generateAuthorizationCode returns a 256-bit random code, base64url encoded
func generateAuthorizationCode() string {
	return oauth2.GenerateVerifier()
}

// generateAccessToken returns a 256-bit random token, hex encoded
func generateAccessToken() (string, error) {
	b := make([]byte, accessTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate access token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// isMiss reports whether a store error means the record is absent
func isMiss(err error) bool {
	return errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrExpired)
}

// expired uses the same boundary as the stores: a record is dead at ExpiresAt
func expired(now, expiresAt time.Time) bool {
	return !now.Before(expiresAt)
}

// metrics returns the metric instruments, or nil when instrumentation is not configured
func (s *Server) metrics() *instrumentation.Metrics {
	if s.Instrumentation == nil {
		return nil
	}
	return s.Instrumentation.Metrics()
}
