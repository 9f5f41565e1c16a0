package memory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agencyflow/agency-oauth/instrumentation"
	"github.com/agencyflow/agency-oauth/internal/util"
	"github.com/agencyflow/agency-oauth/storage"
)

const (
	// DefaultSweepInterval is how often expired records are removed
	DefaultSweepInterval = 10 * time.Minute

	// tokenIDLogLength is the number of characters to include when logging codes and tokens
	tokenIDLogLength = 8
)

// Compile-time interface checks
var (
	_ storage.CodeStore  = (*Store)(nil)
	_ storage.TokenStore = (*Store)(nil)
)

// Store keeps authorization codes and access tokens in two expiring maps.
// The background sweep is not started by New; the owner calls Start and Stop.
type Store struct {
	codes  *Expiring[storage.AuthorizationCode]
	tokens *Expiring[storage.AccessToken]

	now           func() time.Time
	sweepInterval time.Duration
	logger        *slog.Logger

	instrumentation *instrumentation.Instrumentation
	tracer          trace.Tracer

	lifecycle sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// Option configures a Store
type Option func(*Store)

// WithClock replaces time.Now, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithSweepInterval sets how often Start sweeps expired records
func WithSweepInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithLogger sets the store logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates an empty store
func New(opts ...Option) *Store {
	s := &Store{
		now:           time.Now,
		sweepInterval: DefaultSweepInterval,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.codes = NewExpiring[storage.AuthorizationCode](s.now)
	s.tokens = NewExpiring[storage.AccessToken](s.now)
	return s
}

// SetInstrumentation enables spans, operation metrics and size gauges.
// Call it before the store serves requests.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	s.instrumentation = inst
	if inst == nil {
		s.tracer = nil
		return
	}
	s.tracer = inst.Tracer("storage")

	err := inst.RegisterStorageSizeCallbacks(
		func() int64 { return int64(s.codes.Len()) },
		func() int64 { return int64(s.tokens.Len()) },
	)
	if err != nil {
		s.logger.Warn("Failed to register storage size callbacks", "error", err)
	}
}

// ============================================================
// Lifecycle
// ============================================================

// Start launches the background sweep. It runs until ctx is cancelled or Stop is called.
// Calling Start on a running store does nothing.
func (s *Store) Start(ctx context.Context) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.sweepLoop(ctx, s.done)
	s.logger.Debug("Storage sweep started", "interval", s.sweepInterval)
}

// Stop cancels the background sweep and waits for it to exit.
func (s *Store) Stop() {
	s.lifecycle.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.lifecycle.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Store) sweepLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep removes all expired codes and tokens and returns how many of each were removed.
func (s *Store) Sweep(ctx context.Context) (codes, tokens int) {
	codes = s.codes.Sweep()
	tokens = s.tokens.Sweep()

	if s.instrumentation != nil {
		s.instrumentation.Metrics().RecordSweep(ctx, "codes", codes)
		s.instrumentation.Metrics().RecordSweep(ctx, "tokens", tokens)
	}
	if codes > 0 || tokens > 0 {
		s.logger.Debug("Storage sweep completed",
			"codes_removed", codes,
			"tokens_removed", tokens,
			"codes_remaining", s.codes.Len(),
			"tokens_remaining", s.tokens.Len())
	}
	return codes, tokens
}

// ============================================================
// CodeStore Implementation
// ============================================================

// SaveAuthorizationCode stores a code until its ExpiresAt
func (s *Store) SaveAuthorizationCode(ctx context.Context, code *storage.AuthorizationCode) (err error) {
	ctx, span := s.startStorageSpan(ctx, "save_authorization_code")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "save_authorization_code", &err, time.Now())

	if code == nil || code.Code == "" {
		return fmt.Errorf("authorization code cannot be empty")
	}

	s.codes.PutUntil(code.Code, *code, code.ExpiresAt)
	s.logger.Debug("Saved authorization code",
		"code_prefix", util.SafeTruncate(code.Code, tokenIDLogLength),
		"client_id", code.ClientID,
		"expires_at", code.ExpiresAt)
	return nil
}

// ConsumeAuthorizationCode atomically removes and returns a code
func (s *Store) ConsumeAuthorizationCode(ctx context.Context, code string) (_ *storage.AuthorizationCode, err error) {
	ctx, span := s.startStorageSpan(ctx, "consume_authorization_code")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "consume_authorization_code", &err, time.Now())

	if code == "" {
		return nil, storage.ErrNotFound
	}

	authCode, err := s.codes.Take(code)
	switch {
	case err == nil:
		s.logger.Debug("Consumed authorization code",
			"code_prefix", util.SafeTruncate(code, tokenIDLogLength))
		return &authCode, nil
	case errors.Is(err, storage.ErrExpired):
		return &authCode, err
	default:
		return nil, err
	}
}

// ============================================================
// TokenStore Implementation
// ============================================================

// SaveAccessToken stores a token until its ExpiresAt
func (s *Store) SaveAccessToken(ctx context.Context, token *storage.AccessToken) (err error) {
	ctx, span := s.startStorageSpan(ctx, "save_access_token")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "save_access_token", &err, time.Now())

	if token == nil || token.Token == "" {
		return fmt.Errorf("access token cannot be empty")
	}

	s.tokens.PutUntil(token.Token, *token, token.ExpiresAt)
	s.logger.Debug("Saved access token",
		"token_prefix", util.SafeTruncate(token.Token, tokenIDLogLength),
		"client_id", token.ClientID,
		"expires_at", token.ExpiresAt)
	return nil
}

// GetAccessToken returns a live token. Expired records are evicted on read.
func (s *Store) GetAccessToken(ctx context.Context, token string) (_ *storage.AccessToken, err error) {
	ctx, span := s.startStorageSpan(ctx, "get_access_token")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "get_access_token", &err, time.Now())

	stored, err := s.tokens.Lookup(token)
	if err != nil {
		return nil, err
	}
	return &stored, nil
}

// DeleteAccessToken removes a token
func (s *Store) DeleteAccessToken(ctx context.Context, token string) (err error) {
	ctx, span := s.startStorageSpan(ctx, "delete_access_token")
	defer span.End()
	defer s.recordStorageOperation(ctx, span, "delete_access_token", &err, time.Now())

	s.tokens.Delete(token)
	return nil
}

// ============================================================
// Instrumentation helpers
// ============================================================

func (s *Store) startStorageSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	if s.tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}

	return s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(
			attribute.String(instrumentation.AttrStorageOperation, operation),
			attribute.String(instrumentation.AttrStorageType, "memory"),
		))
}

// recordStorageOperation records metrics for a storage operation and sets span status.
// errp is read when the deferred call runs, after the operation has returned.
func (s *Store) recordStorageOperation(ctx context.Context, span trace.Span, operation string, errp *error, startTime time.Time) {
	if s.instrumentation == nil {
		return
	}

	result := "success"
	if err := *errp; err != nil {
		result = "error"
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrExpired) {
			result = "miss"
		}
		instrumentation.RecordError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}

	durationMs := float64(time.Since(startTime).Microseconds()) / 1000
	s.instrumentation.Metrics().RecordStorageOperation(ctx, operation, result, durationMs)
}
