package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	oauth "github.com/agencyflow/agency-oauth"
	"github.com/agencyflow/agency-oauth/instrumentation"
	"github.com/agencyflow/agency-oauth/internal/config"
	"github.com/agencyflow/agency-oauth/internal/logging"
	"github.com/agencyflow/agency-oauth/security"
)

// mcpPath is the sample protected resource
const mcpPath = "/mcp"

func newServeCmd() *cobra.Command {
	var opts loadOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the authorization server",
		Long: `Start the authorization server. The discovery documents, the OAuth endpoints,
/health, /metrics and a token-protected /mcp endpoint are served on one listener.
SIGINT or SIGTERM shuts the server down gracefully.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, logger)
		},
	}
	opts.register(cmd)
	return cmd
}

// newAuthServer builds the OAuth server with the process configuration
func newAuthServer(cfg *config.Config, logger *slog.Logger) (*oauth.Server, error) {
	inst, err := instrumentation.New(cfg.Instrumentation(version))
	if err != nil {
		return nil, fmt.Errorf("failed to create instrumentation: %w", err)
	}

	srv, err := oauth.NewServer(cfg.Server(), logger,
		oauth.WithInstrumentation(inst),
		oauth.WithRateLimit(cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst),
		oauth.WithAudit(!cfg.Security.AuditDisabled, cfg.Security.HashAuditIPs),
	)
	if err != nil {
		_ = inst.Shutdown(context.Background())
		return nil, err
	}
	return srv, nil
}

// newMux mounts the OAuth routes and the auxiliary endpoints
func newMux(srv *oauth.Server) http.Handler {
	mux := http.NewServeMux()
	srv.Handler.RegisterRoutes(mux)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	if srv.Instrumentation != nil {
		mux.Handle("GET /metrics", srv.Instrumentation.MetricsHandler())
	}
	mux.Handle(mcpPath, srv.Handler.ValidateToken(http.HandlerFunc(serveMCP)))

	return security.RequestIDMiddleware(mux)
}

// serveMCP stands in for the MCP endpoint and describes the caller's token
func serveMCP(w http.ResponseWriter, r *http.Request) {
	token, ok := oauth.AccessTokenFromContext(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"client_id":  token.ClientID,
		"scope":      token.Scope,
		"expires_at": token.ExpiresAt.Unix(),
	})
}

func runServe(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	srv, err := newAuthServer(cfg, logger)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           newMux(srv),
		ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	srv.Start(ctx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Authorization server listening",
			"addr", cfg.HTTP.Addr,
			"issuer", srv.Config.Issuer,
			"version", version)
		errCh <- httpServer.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutting down authorization server")
	case serveErr = <-errCh:
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("OAuth server shutdown failed", "error", err)
	}

	if serveErr != nil {
		return fmt.Errorf("http server failed: %w", serveErr)
	}
	return nil
}
