// Package oauth is an embedded OAuth 2.1 authorization server for a single
// protected resource.
//
// It implements the authorization code grant with mandatory PKCE S256, a consent
// step, open dynamic client registration bounded by a redirect URI allow-list,
// and bearer token validation for the protected resource. Codes and tokens live
// in memory only.
//
// Basic usage:
//
//	srv, err := oauth.NewServer(&server.Config{
//	    Issuer: "https://auth.example.com",
//	}, logger)
//	if err != nil {
//	    return err
//	}
//	srv.Start(ctx)
//	defer srv.Shutdown(context.Background())
//
//	mux := http.NewServeMux()
//	srv.Handler.RegisterRoutes(mux)
//	mux.Handle("/mcp", srv.Handler.ValidateToken(mcpHandler))
package oauth

import (
	"log/slog"
	"time"

	"github.com/agencyflow/agency-oauth/instrumentation"
	"github.com/agencyflow/agency-oauth/security"
	"github.com/agencyflow/agency-oauth/server"
	"github.com/agencyflow/agency-oauth/storage/memory"
)

// Server bundles the protocol server, its in-memory store and the HTTP handler
type Server struct {
	*server.Server

	Store   *memory.Store
	Handler *Handler
}

type options struct {
	instrumentation *instrumentation.Instrumentation
	rateLimitRPS    float64
	rateLimitBurst  int
	auditEnabled    bool
	hashAuditIPs    bool
	clock           func() time.Time
}

// Option configures NewServer
type Option func(*options)

// WithInstrumentation enables metrics and traces
func WithInstrumentation(inst *instrumentation.Instrumentation) Option {
	return func(o *options) { o.instrumentation = inst }
}

// WithRateLimit limits every client IP to rps requests per second with the given burst.
// A non-positive rps disables rate limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(o *options) {
		o.rateLimitRPS = rps
		o.rateLimitBurst = burst
	}
}

// WithAudit enables security audit records, optionally hashing client IPs
func WithAudit(enabled, hashIPs bool) Option {
	return func(o *options) {
		o.auditEnabled = enabled
		o.hashAuditIPs = hashIPs
	}
}

// WithClock replaces time.Now in the store and the server
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.clock = now }
}

// NewServer wires a memory store, the protocol server and the HTTP handler.
// The caller owns the lifecycle through Start and Shutdown.
func NewServer(config *server.Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	o := options{auditEnabled: true}
	for _, opt := range opts {
		opt(&o)
	}

	storeOpts := []memory.Option{memory.WithLogger(logger)}
	if config != nil && config.StorageCleanupInterval > 0 {
		storeOpts = append(storeOpts, memory.WithSweepInterval(config.StorageCleanupInterval))
	} else {
		storeOpts = append(storeOpts, memory.WithSweepInterval(server.DefaultStorageCleanupInterval))
	}
	if o.clock != nil {
		storeOpts = append(storeOpts, memory.WithClock(o.clock))
	}
	store := memory.New(storeOpts...)

	srv, err := server.New(store, store, config, logger)
	if err != nil {
		return nil, err
	}
	if o.clock != nil {
		srv.SetClock(o.clock)
	}

	auditor := security.NewAuditor(logger, o.auditEnabled)
	auditor.SetHashIPs(o.hashAuditIPs)
	srv.SetAuditor(auditor)

	if o.rateLimitRPS > 0 {
		srv.SetRateLimiter(security.NewRateLimiter(o.rateLimitRPS, o.rateLimitBurst, logger))
	}
	if o.instrumentation != nil {
		srv.SetInstrumentation(o.instrumentation)
	}

	return &Server{
		Server:  srv,
		Store:   store,
		Handler: NewHandler(srv, logger),
	}, nil
}
