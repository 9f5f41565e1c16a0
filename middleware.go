package oauth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/agencyflow/agency-oauth/security"
	"github.com/agencyflow/agency-oauth/server"
	"github.com/agencyflow/agency-oauth/storage"
)

type contextKey string

const accessTokenKey contextKey = "access_token"

// AccessTokenFromContext returns the validated token stored by ValidateToken
func AccessTokenFromContext(ctx context.Context) (*storage.AccessToken, bool) {
	token, ok := ctx.Value(accessTokenKey).(*storage.AccessToken)
	return token, ok && token != nil
}

// ContextWithAccessToken stores a validated token in the context
func ContextWithAccessToken(ctx context.Context, token *storage.AccessToken) context.Context {
	return context.WithValue(ctx, accessTokenKey, token)
}

// ValidateToken is middleware that accepts only requests carrying a live bearer token
// issued by this server. Rejections are 401 with a challenge naming the resource metadata.
func (h *Handler) ValidateToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		clientIP := h.clientIP(r)

		if h.checkIPRateLimit(w, r, clientIP) {
			return
		}

		accessToken, ok := h.extractBearerToken(w, r)
		if !ok {
			return
		}

		token, err := h.server.ValidateAccessToken(r.Context(), accessToken)
		if err != nil {
			if !errors.Is(err, server.ErrInvalidToken) {
				h.writeInternalError(w, r, err)
				return
			}
			h.logger.Warn("Token validation failed", "ip", clientIP, "error", err)
			if h.server.Auditor != nil {
				h.server.Auditor.LogEvent(security.Event{
					Type:      security.EventTokenRejected,
					IPAddress: clientIP,
					RequestID: security.GetRequestID(r.Context()),
					Details:   map[string]any{"path": r.URL.Path},
				})
			}
			h.writeError(w, errorInvalidToken, "Token validation failed", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithAccessToken(r.Context(), token)))
	})
}

// extractBearerToken extracts the Bearer token from the Authorization header.
// Returns the token and true if successful, or writes an error and returns false.
func (h *Handler) extractBearerToken(w http.ResponseWriter, r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		h.writeError(w, errorInvalidToken, "Missing Authorization header", http.StatusUnauthorized)
		return "", false
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], tokenTypeBearer) || strings.TrimSpace(parts[1]) == "" {
		h.writeError(w, errorInvalidToken, "Invalid Authorization header format", http.StatusUnauthorized)
		return "", false
	}

	return strings.TrimSpace(parts[1]), true
}

// checkIPRateLimit checks if the client IP is rate limited. Returns true if limited.
func (h *Handler) checkIPRateLimit(w http.ResponseWriter, r *http.Request, clientIP string) bool {
	if h.server.RateLimiter == nil || h.server.RateLimiter.Allow(clientIP) {
		return false
	}

	h.logger.Warn("Rate limit exceeded", "ip", clientIP, "path", r.URL.Path)
	if h.server.Instrumentation != nil {
		h.server.Instrumentation.Metrics().RecordRateLimitExceeded(r.Context(), routeLabel(r))
	}
	if h.server.Auditor != nil {
		h.server.Auditor.LogRateLimitExceeded(clientIP, r.URL.Path)
	}

	w.Header().Set("Retry-After", "60")
	h.writeError(w, errorRateLimitExceeded, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
	return true
}
