package oauth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/agencyflow/agency-oauth/internal/testutil"
	"github.com/agencyflow/agency-oauth/server"
)

const (
	testIssuer   = "https://auth.example.com"
	testClientID = "abc"
	testState    = "xyz"
)

var consentTokenPattern = regexp.MustCompile(`name="consent_token" value="([^"]+)"`)

type handlerEnv struct {
	srv   *Server
	mux   *http.ServeMux
	clock *testutil.MockTime
}

func setupHandler(t *testing.T, config *server.Config, opts ...Option) *handlerEnv {
	t.Helper()

	clock := testutil.NewMockTime(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if config == nil {
		config = &server.Config{}
	}
	if config.Issuer == "" {
		config.Issuer = testIssuer
	}

	opts = append([]Option{WithClock(clock.Now)}, opts...)
	srv, err := NewServer(config, testutil.DiscardLogger(), opts...)
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	mux := http.NewServeMux()
	srv.Handler.RegisterRoutes(mux)
	return &handlerEnv{srv: srv, mux: mux, clock: clock}
}

func (e *handlerEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.mux.ServeHTTP(rec, req)
	return rec
}

func authorizeQuery(challenge string) url.Values {
	return url.Values{
		"response_type":         {"code"},
		"client_id":             {testClientID},
		"redirect_uri":          {testutil.ClaudeCallback},
		"code_challenge":        {challenge},
		"code_challenge_method": {"S256"},
		"state":                 {testState},
	}
}

func postForm(path string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// authorize renders the consent page and returns the embedded consent token
func (e *handlerEnv) authorize(t *testing.T, challenge string) string {
	t.Helper()

	rec := e.do(httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+authorizeQuery(challenge).Encode(), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("authorize status = %d, body = %s", rec.Code, rec.Body.String())
	}
	match := consentTokenPattern.FindStringSubmatch(rec.Body.String())
	if match == nil {
		t.Fatalf("consent page has no consent_token: %s", rec.Body.String())
	}
	return match[1]
}

// approve submits an approval and returns the redirect location
func (e *handlerEnv) approve(t *testing.T, challenge, consentToken string) *url.URL {
	t.Helper()

	rec := e.do(postForm("/oauth/authorize", url.Values{
		"action":         {"approve"},
		"client_id":      {testClientID},
		"redirect_uri":   {testutil.ClaudeCallback},
		"code_challenge": {challenge},
		"state":          {testState},
		"consent_token":  {consentToken},
	}))
	if rec.Code != http.StatusFound {
		t.Fatalf("approve status = %d, body = %s", rec.Code, rec.Body.String())
	}
	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("invalid Location: %v", err)
	}
	return location
}

func (e *handlerEnv) exchange(code, verifier string) *httptest.ResponseRecorder {
	return e.do(postForm("/oauth/token", url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {testutil.ClaudeCallback},
		"client_id":     {testClientID},
		"code_verifier": {verifier},
	}))
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()

	var resp ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("error body is not JSON: %v (%s)", err, rec.Body.String())
	}
	return resp
}

func TestAuthorizationCodeFlow(t *testing.T) {
	env := setupHandler(t, nil)

	consentToken := env.authorize(t, testutil.RFC7636Challenge)
	location := env.approve(t, testutil.RFC7636Challenge, consentToken)

	if got := location.Scheme + "://" + location.Host + location.Path; got != testutil.ClaudeCallback {
		t.Errorf("redirect target = %q, want %q", got, testutil.ClaudeCallback)
	}
	if got := location.Query().Get("state"); got != testState {
		t.Errorf("state = %q, want %q", got, testState)
	}
	code := location.Query().Get("code")
	if code == "" {
		t.Fatal("redirect carries no code")
	}

	rec := env.exchange(code, testutil.RFC7636Verifier)
	if rec.Code != http.StatusOK {
		t.Fatalf("token status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var token TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &token); err != nil {
		t.Fatalf("token body: %v", err)
	}
	if !regexp.MustCompile(`^[0-9a-f]{64}$`).MatchString(token.AccessToken) {
		t.Errorf("access_token = %q, want 64 hex characters", token.AccessToken)
	}
	if token.TokenType != "Bearer" {
		t.Errorf("token_type = %q, want Bearer", token.TokenType)
	}
	if token.ExpiresIn != 86400 {
		t.Errorf("expires_in = %d, want 86400", token.ExpiresIn)
	}
	if token.Scope != "mcp" {
		t.Errorf("scope = %q, want mcp", token.Scope)
	}

	// Codes are single use
	rec = env.exchange(code, testutil.RFC7636Verifier)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("second exchange status = %d, want 400", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "invalid_grant" {
		t.Errorf("second exchange error = %q, want invalid_grant", resp.Error)
	}
}

func TestConsentDeny(t *testing.T) {
	env := setupHandler(t, nil)

	rec := env.do(postForm("/oauth/authorize", url.Values{
		"action":       {"deny"},
		"client_id":    {testClientID},
		"redirect_uri": {testutil.ClaudeCallback},
		"state":        {testState},
	}))
	if rec.Code != http.StatusFound {
		t.Fatalf("deny status = %d, body = %s", rec.Code, rec.Body.String())
	}

	location, err := url.Parse(rec.Header().Get("Location"))
	if err != nil {
		t.Fatalf("invalid Location: %v", err)
	}
	query := location.Query()
	if query.Get("error") != "access_denied" {
		t.Errorf("error = %q, want access_denied", query.Get("error"))
	}
	if query.Get("state") != testState {
		t.Errorf("state = %q, want %q", query.Get("state"), testState)
	}
	if query.Has("code") {
		t.Error("deny redirect must not carry a code")
	}
}

func TestConsentApproveRejectsTamperedParameters(t *testing.T) {
	env := setupHandler(t, nil)

	consentToken := env.authorize(t, testutil.RFC7636Challenge)
	_, otherChallenge := testutil.GeneratePKCE()

	rec := env.do(postForm("/oauth/authorize", url.Values{
		"action":         {"approve"},
		"client_id":      {testClientID},
		"redirect_uri":   {testutil.ClaudeCallback},
		"code_challenge": {otherChallenge},
		"state":          {testState},
		"consent_token":  {consentToken},
	}))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
	}
	if resp := decodeError(t, rec); resp.Error != "invalid_request" {
		t.Errorf("error = %q, want invalid_request", resp.Error)
	}
}

func TestAuthorizeErrors(t *testing.T) {
	tests := []struct {
		name         string
		mutate       func(url.Values)
		wantStatus   int
		wantError    string
		wantRedirect bool
	}{
		{
			name:         "missing PKCE redirects",
			mutate:       func(q url.Values) { q.Del("code_challenge") },
			wantStatus:   http.StatusFound,
			wantError:    "invalid_request",
			wantRedirect: true,
		},
		{
			name:         "plain PKCE redirects",
			mutate:       func(q url.Values) { q.Set("code_challenge_method", "plain") },
			wantStatus:   http.StatusFound,
			wantError:    "invalid_request",
			wantRedirect: true,
		},
		{
			name:         "unsupported response type redirects",
			mutate:       func(q url.Values) { q.Set("response_type", "token") },
			wantStatus:   http.StatusFound,
			wantError:    "unsupported_response_type",
			wantRedirect: true,
		},
		{
			name:       "trailing slash redirect uri",
			mutate:     func(q url.Values) { q.Set("redirect_uri", testutil.ClaudeCallback+"/") },
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_redirect_uri",
		},
		{
			name:       "redirect uri with query",
			mutate:     func(q url.Values) { q.Set("redirect_uri", testutil.ClaudeCallback+"?x=1") },
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_redirect_uri",
		},
		{
			name:       "unknown redirect uri",
			mutate:     func(q url.Values) { q.Set("redirect_uri", "https://evil.example.com/cb") },
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_redirect_uri",
		},
		{
			name:       "missing client id",
			mutate:     func(q url.Values) { q.Del("client_id") },
			wantStatus: http.StatusUnauthorized,
			wantError:  "invalid_client",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupHandler(t, nil)

			query := authorizeQuery(testutil.RFC7636Challenge)
			tt.mutate(query)
			rec := env.do(httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+query.Encode(), nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tt.wantStatus, rec.Body.String())
			}

			if tt.wantRedirect {
				location, err := url.Parse(rec.Header().Get("Location"))
				if err != nil {
					t.Fatalf("invalid Location: %v", err)
				}
				if got := location.Query().Get("error"); got != tt.wantError {
					t.Errorf("error = %q, want %q", got, tt.wantError)
				}
				if got := location.Query().Get("state"); got != testState {
					t.Errorf("state = %q, want %q", got, testState)
				}
				return
			}

			if resp := decodeError(t, rec); resp.Error != tt.wantError {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantError)
			}
		})
	}
}

func TestConsentPageHeaders(t *testing.T) {
	env := setupHandler(t, nil)

	rec := env.do(httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+authorizeQuery(testutil.RFC7636Challenge).Encode(), nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := rec.Header().Get("Content-Type"); !strings.HasPrefix(got, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", got)
	}
	if rec.Header().Get("Content-Security-Policy") == "" {
		t.Error("consent page is missing Content-Security-Policy")
	}
	if got := rec.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}

func TestConsentPageEscapesState(t *testing.T) {
	env := setupHandler(t, nil)

	query := authorizeQuery(testutil.RFC7636Challenge)
	query.Set("state", `"><script>alert(1)</script>`)
	rec := env.do(httptest.NewRequest(http.MethodGet, "/oauth/authorize?"+query.Encode(), nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "<script>alert(1)</script>") {
		t.Error("state was rendered unescaped")
	}
}

func TestTokenEndpointErrors(t *testing.T) {
	env := setupHandler(t, &server.Config{StaticClientSecret: "s3cret"})

	tests := []struct {
		name       string
		form       url.Values
		wantStatus int
		wantError  string
	}{
		{
			name:       "unsupported grant type",
			form:       url.Values{"grant_type": {"client_credentials"}, "client_id": {testClientID}},
			wantStatus: http.StatusBadRequest,
			wantError:  "unsupported_grant_type",
		},
		{
			name:       "missing client id",
			form:       url.Values{"grant_type": {"authorization_code"}, "code": {"x"}},
			wantStatus: http.StatusUnauthorized,
			wantError:  "invalid_client",
		},
		{
			name: "wrong client secret",
			form: url.Values{
				"grant_type":    {"authorization_code"},
				"code":          {"x"},
				"client_id":     {testClientID},
				"client_secret": {"nope"},
			},
			wantStatus: http.StatusUnauthorized,
			wantError:  "invalid_client",
		},
		{
			name:       "unknown code",
			form:       url.Values{"grant_type": {"authorization_code"}, "code": {"x"}, "client_id": {testClientID}},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_grant",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(postForm("/oauth/token", tt.form))
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d, body = %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if resp := decodeError(t, rec); resp.Error != tt.wantError {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantError)
			}
			if tt.wantStatus == http.StatusUnauthorized && rec.Header().Get("WWW-Authenticate") == "" {
				t.Error("401 response is missing WWW-Authenticate")
			}
		})
	}
}

func TestTokenEndpointPKCEMismatch(t *testing.T) {
	env := setupHandler(t, nil)

	consentToken := env.authorize(t, testutil.RFC7636Challenge)
	code := env.approve(t, testutil.RFC7636Challenge, consentToken).Query().Get("code")

	wrongVerifier, _ := testutil.GeneratePKCE()
	rec := env.exchange(code, wrongVerifier)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	resp := decodeError(t, rec)
	if resp.Error != "invalid_grant" || resp.ErrorDescription != "PKCE verification failed" {
		t.Errorf("error = %+v, want invalid_grant / PKCE verification failed", resp)
	}

	// The failed attempt consumed the code
	rec = env.exchange(code, testutil.RFC7636Verifier)
	if resp := decodeError(t, rec); resp.Error != "invalid_grant" {
		t.Errorf("retry error = %q, want invalid_grant", resp.Error)
	}
}

func TestTokenEndpointExpiredCode(t *testing.T) {
	env := setupHandler(t, nil)

	consentToken := env.authorize(t, testutil.RFC7636Challenge)
	code := env.approve(t, testutil.RFC7636Challenge, consentToken).Query().Get("code")

	env.clock.Advance(5 * time.Minute)

	rec := env.exchange(code, testutil.RFC7636Verifier)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if resp := decodeError(t, rec); resp.Error != "invalid_grant" {
		t.Errorf("error = %q, want invalid_grant", resp.Error)
	}
}

func TestWWWAuthenticateHeader(t *testing.T) {
	env := setupHandler(t, nil)

	rec := env.do(postForm("/oauth/token", url.Values{"grant_type": {"authorization_code"}}))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	want := `Bearer resource_metadata="https://auth.example.com/.well-known/oauth-protected-resource", ` +
		`error="invalid_client", error_description="client_id is required"`
	if got := rec.Header().Get("WWW-Authenticate"); got != want {
		t.Errorf("WWW-Authenticate = %q\nwant %q", got, want)
	}
}

func TestQuoteHeaderValue(t *testing.T) {
	if got := quoteHeaderValue(`a "b" \c`); got != `a \"b\" \\c` {
		t.Errorf("quoteHeaderValue() = %q", got)
	}
}

func TestClientRegistration(t *testing.T) {
	env := setupHandler(t, nil)

	t.Run("allowed redirect", func(t *testing.T) {
		body := `{"client_name":"Claude","redirect_uris":["` + testutil.ClaudeCallback + `"],"logo_uri":"ignored"}`
		rec := env.do(httptest.NewRequest(http.MethodPost, "/oauth/register", strings.NewReader(body)))
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}

		var resp ClientRegistrationResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("response: %v", err)
		}
		if resp.ClientID == "" {
			t.Error("client_id is empty")
		}
		if resp.ClientName != "Claude" {
			t.Errorf("client_name = %q, want Claude", resp.ClientName)
		}
		if len(resp.RedirectURIs) != 1 || resp.RedirectURIs[0] != testutil.ClaudeCallback {
			t.Errorf("redirect_uris = %v", resp.RedirectURIs)
		}
		if resp.TokenEndpointAuthMethod != "none" {
			t.Errorf("token_endpoint_auth_method = %q, want none", resp.TokenEndpointAuthMethod)
		}
	})

	t.Run("empty body", func(t *testing.T) {
		rec := env.do(httptest.NewRequest(http.MethodPost, "/oauth/register", nil))
		if rec.Code != http.StatusCreated {
			t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
		}
		var resp ClientRegistrationResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("response: %v", err)
		}
		if len(resp.RedirectURIs) != len(server.DefaultAllowedRedirectURIs) {
			t.Errorf("redirect_uris = %v, want the allow-list", resp.RedirectURIs)
		}
	})

	t.Run("malformed JSON", func(t *testing.T) {
		rec := env.do(httptest.NewRequest(http.MethodPost, "/oauth/register", strings.NewReader("{")))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		if resp := decodeError(t, rec); resp.Error != "invalid_request" {
			t.Errorf("error = %q, want invalid_request", resp.Error)
		}
	})

	t.Run("disallowed redirect", func(t *testing.T) {
		body := `{"redirect_uris":["https://evil.example.com/cb"]}`
		rec := env.do(httptest.NewRequest(http.MethodPost, "/oauth/register", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		if resp := decodeError(t, rec); resp.Error != "invalid_redirect_uri" {
			t.Errorf("error = %q, want invalid_redirect_uri", resp.Error)
		}
	})
}

func TestMetadataEndpoints(t *testing.T) {
	env := setupHandler(t, nil)

	paths := []string{
		"/.well-known/oauth-protected-resource",
		"/.well-known/oauth-protected-resource/mcp",
		"/.well-known/oauth-authorization-server",
		"/.well-known/oauth-authorization-server/mcp",
	}
	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			rec := env.do(httptest.NewRequest(http.MethodGet, path, nil))
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			if got := rec.Header().Get("Content-Type"); got != "application/json" {
				t.Errorf("Content-Type = %q", got)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
				t.Errorf("Access-Control-Allow-Origin = %q, want *", got)
			}
		})
	}

	rec := env.do(httptest.NewRequest(http.MethodGet, "/.well-known/oauth-authorization-server", nil))
	var asm AuthorizationServerMetadata
	if err := json.Unmarshal(rec.Body.Bytes(), &asm); err != nil {
		t.Fatalf("metadata: %v", err)
	}
	if asm.Issuer != testIssuer {
		t.Errorf("issuer = %q", asm.Issuer)
	}
	if asm.TokenEndpoint != testIssuer+"/oauth/token" {
		t.Errorf("token_endpoint = %q", asm.TokenEndpoint)
	}

	rec = env.do(httptest.NewRequest(http.MethodPost, "/.well-known/oauth-authorization-server", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d, want 405", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	env := setupHandler(t, nil, WithRateLimit(1, 1))

	req := func() *httptest.ResponseRecorder {
		return env.do(httptest.NewRequest(http.MethodPost, "/oauth/register", nil))
	}

	if rec := req(); rec.Code != http.StatusCreated {
		t.Fatalf("first request status = %d", rec.Code)
	}
	rec := req()
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request status = %d, want 429", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "60" {
		t.Errorf("Retry-After = %q, want 60", got)
	}
}
