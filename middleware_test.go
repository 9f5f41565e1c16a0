package oauth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/agencyflow/agency-oauth/internal/testutil"
)

func protectedHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := AccessTokenFromContext(r.Context())
		if !ok {
			t.Error("token missing from context")
			http.Error(w, "no token", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(token.ClientID))
	})
}

// issueToken runs the full flow and returns a fresh access token
func (e *handlerEnv) issueToken(t *testing.T) string {
	t.Helper()

	verifier, challenge := testutil.GeneratePKCE()
	consentToken := e.authorize(t, challenge)
	code := e.approve(t, challenge, consentToken).Query().Get("code")

	rec := e.exchange(code, verifier)
	if rec.Code != http.StatusOK {
		t.Fatalf("token status = %d, body = %s", rec.Code, rec.Body.String())
	}
	body := rec.Body.String()
	start := strings.Index(body, `"access_token":"`) + len(`"access_token":"`)
	return body[start : start+64]
}

func TestValidateToken(t *testing.T) {
	env := setupHandler(t, nil)
	token := env.issueToken(t)
	protected := env.srv.Handler.ValidateToken(protectedHandler(t))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantDesc   string
	}{
		{name: "valid", header: "Bearer " + token, wantStatus: http.StatusOK},
		{name: "lowercase scheme", header: "bearer " + token, wantStatus: http.StatusOK},
		{name: "missing header", wantStatus: http.StatusUnauthorized, wantDesc: "Missing Authorization header"},
		{name: "basic scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized, wantDesc: "Invalid Authorization header format"},
		{name: "empty token", header: "Bearer ", wantStatus: http.StatusUnauthorized, wantDesc: "Invalid Authorization header format"},
		{name: "unknown token", header: "Bearer " + strings.Repeat("0", 64), wantStatus: http.StatusUnauthorized, wantDesc: "Token validation failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			protected.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus == http.StatusOK {
				if rec.Body.String() != testClientID {
					t.Errorf("body = %q, want %q", rec.Body.String(), testClientID)
				}
				return
			}

			challenge := rec.Header().Get("WWW-Authenticate")
			if !strings.Contains(challenge, `resource_metadata="https://auth.example.com/.well-known/oauth-protected-resource"`) {
				t.Errorf("WWW-Authenticate = %q, missing resource_metadata", challenge)
			}
			if !strings.Contains(challenge, `error="invalid_token"`) {
				t.Errorf("WWW-Authenticate = %q, missing invalid_token", challenge)
			}
			if resp := decodeError(t, rec); resp.ErrorDescription != tt.wantDesc {
				t.Errorf("error_description = %q, want %q", resp.ErrorDescription, tt.wantDesc)
			}
		})
	}
}

func TestValidateTokenExpired(t *testing.T) {
	env := setupHandler(t, nil)
	token := env.issueToken(t)
	protected := env.srv.Handler.ValidateToken(protectedHandler(t))

	env.clock.Advance(24 * time.Hour)

	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	protected.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestAccessTokenFromContextEmpty(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, ok := AccessTokenFromContext(req.Context()); ok {
		t.Error("AccessTokenFromContext() ok = true on empty context")
	}
	if _, ok := AccessTokenFromContext(ContextWithAccessToken(req.Context(), nil)); ok {
		t.Error("AccessTokenFromContext() ok = true for nil token")
	}
}
