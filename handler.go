package oauth

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agencyflow/agency-oauth/instrumentation"
	"github.com/agencyflow/agency-oauth/internal/util"
	"github.com/agencyflow/agency-oauth/security"
	"github.com/agencyflow/agency-oauth/server"
)

const (
	tokenTypeBearer = "Bearer"

	// maxRegistrationBodySize bounds the JSON accepted by the registration endpoint
	maxRegistrationBodySize = 64 << 10
)

// Handler is a thin HTTP adapter for the OAuth Server.
// It handles HTTP requests and delegates to the Server for business logic.
type Handler struct {
	server *server.Server
	logger *slog.Logger
	tracer trace.Tracer // OpenTelemetry tracer for HTTP layer
}

// NewHandler creates a new HTTP handler
func NewHandler(srv *server.Server, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		server: srv,
		logger: logger,
	}

	// Initialize tracer if instrumentation is enabled
	if srv.Instrumentation != nil {
		h.tracer = srv.Instrumentation.Tracer("http")
	}

	return h
}

func (h *Handler) clientIP(r *http.Request) string {
	return security.GetClientIP(r, h.server.Config.TrustProxy, h.server.Config.TrustedProxyCount)
}

// ServeProtectedResourceMetadata serves RFC 9728 Protected Resource Metadata.
// Path-suffixed requests (/.well-known/oauth-protected-resource/mcp) get the same document.
func (h *Handler) ServeProtectedResourceMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.writeMetadata(w, h.server.ProtectedResourceMetadata())
}

// ServeAuthorizationServerMetadata serves RFC 8414 Authorization Server Metadata
func (h *Handler) ServeAuthorizationServerMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.writeMetadata(w, h.server.AuthorizationServerMetadata())
}

func (h *Handler) writeMetadata(w http.ResponseWriter, metadata any) {
	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	// Discovery documents are public and fetched by browser-based clients
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(metadata)
}

// ServeAuthorization handles the authorization endpoint.
// GET validates the request and renders the consent page; POST applies the decision.
func (h *Handler) ServeAuthorization(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.serveAuthorizationRequest(w, r)
	case http.MethodPost:
		h.serveConsentDecision(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) serveAuthorizationRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	span := trace.SpanFromContext(ctx)
	clientIP := h.clientIP(r)

	if h.checkIPRateLimit(w, r, clientIP) {
		return
	}

	query := r.URL.Query()
	req := &server.AuthorizationRequest{
		ClientID:            query.Get("client_id"),
		RedirectURI:         query.Get("redirect_uri"),
		ResponseType:        query.Get("response_type"),
		CodeChallenge:       query.Get("code_challenge"),
		CodeChallengeMethod: query.Get("code_challenge_method"),
		State:               query.Get("state"),
		ClientIP:            clientIP,
	}

	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrClientID, req.ClientID),
		attribute.String(instrumentation.AttrResponseType, req.ResponseType),
		attribute.String(instrumentation.AttrPKCEMethod, req.CodeChallengeMethod),
	)

	if err := h.server.ValidateAuthorizationRequest(ctx, req); err != nil {
		h.writeAuthorizationError(w, r, req, err)
		return
	}

	consentToken, err := h.server.IssueConsentToken(req)
	if err != nil {
		h.writeInternalError(w, r, err)
		return
	}

	security.SetConsentPageHeaders(w, h.server.Config.Issuer)
	if err := renderConsentPage(w, consentPageData{
		ClientID:      req.ClientID,
		RedirectURI:   req.RedirectURI,
		CodeChallenge: req.CodeChallenge,
		State:         req.State,
		ConsentToken:  consentToken,
		Scope:         server.DefaultScope,
		Resource:      h.server.Config.ResourceURL,
		Action:        server.AuthorizationEndpointPath,
	}); err != nil {
		h.logger.Error("Failed to render consent page", "error", err)
	}
}

// writeAuthorizationError returns validation failures directly unless the redirect URI
// is allow-listed and the failure is not about the client or the redirect itself.
// Then the error travels back to the client as OAuth 2.0 redirect parameters.
func (h *Handler) writeAuthorizationError(w http.ResponseWriter, r *http.Request, req *server.AuthorizationRequest, err error) {
	oauthErr, ok := server.AsOAuthError(err)
	if !ok {
		h.writeInternalError(w, r, err)
		return
	}

	redirectable := oauthErr.Code == server.ErrorCodeUnsupportedResponseType ||
		oauthErr.Code == server.ErrorCodeInvalidRequest
	if redirectable && req.ClientID != "" && h.server.IsAllowedRedirectURI(req.RedirectURI) {
		location, buildErr := util.AppendQuery(req.RedirectURI, map[string]string{
			"error":             oauthErr.Code.String(),
			"error_description": oauthErr.Description,
			"state":             req.State,
		})
		if buildErr == nil {
			security.SetSecurityHeaders(w, h.server.Config.Issuer)
			http.Redirect(w, r, location, http.StatusFound)
			return
		}
	}

	h.writeOAuthError(w, r, err)
}

func (h *Handler) serveConsentDecision(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	span := trace.SpanFromContext(ctx)
	clientIP := h.clientIP(r)

	if h.checkIPRateLimit(w, r, clientIP) {
		return
	}

	if err := r.ParseForm(); err != nil {
		h.writeError(w, server.ErrorCodeInvalidRequest.String(), "Failed to parse request", http.StatusBadRequest)
		return
	}

	decision := &server.ConsentDecision{
		Action:        r.PostFormValue("action"),
		ClientID:      r.PostFormValue("client_id"),
		RedirectURI:   r.PostFormValue("redirect_uri"),
		CodeChallenge: r.PostFormValue("code_challenge"),
		State:         r.PostFormValue("state"),
		ConsentToken:  r.PostFormValue("consent_token"),
		ClientIP:      clientIP,
	}

	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrClientID, decision.ClientID),
		attribute.String(instrumentation.AttrConsentAction, decision.Action),
		attribute.Bool(instrumentation.AttrConsentSigned, decision.ConsentToken != ""),
	)

	location, err := h.server.DecideConsent(ctx, decision)
	if err != nil {
		h.writeOAuthError(w, r, err)
		return
	}

	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	http.Redirect(w, r, location, http.StatusFound)
}

// ServeToken handles the OAuth token endpoint
func (h *Handler) ServeToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	span := trace.SpanFromContext(ctx)
	clientIP := h.clientIP(r)

	if h.checkIPRateLimit(w, r, clientIP) {
		return
	}

	if err := r.ParseForm(); err != nil {
		h.writeError(w, server.ErrorCodeInvalidRequest.String(), "Failed to parse request", http.StatusBadRequest)
		return
	}

	req := &server.TokenRequest{
		GrantType:    r.PostFormValue("grant_type"),
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		ClientID:     r.PostFormValue("client_id"),
		ClientSecret: r.PostFormValue("client_secret"),
		CodeVerifier: r.PostFormValue("code_verifier"),
		ClientIP:     clientIP,
	}

	instrumentation.SetSpanAttributes(span,
		attribute.String(instrumentation.AttrClientID, req.ClientID),
		attribute.String(instrumentation.AttrGrantType, req.GrantType),
	)

	token, err := h.server.ExchangeAuthorizationCode(ctx, req)
	if err != nil {
		h.logger.Info("Token exchange rejected", "client_id", req.ClientID, "ip", clientIP, "error", err)
		h.writeOAuthError(w, r, err)
		return
	}

	instrumentation.SetSpanAttributes(span, attribute.Int64(instrumentation.AttrExpiresIn, h.server.Config.AccessTokenTTL))

	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(TokenResponse{
		AccessToken: token.Token,
		TokenType:   tokenTypeBearer,
		ExpiresIn:   h.server.Config.AccessTokenTTL,
		Scope:       token.Scope,
	})
}

// ServeClientRegistration handles dynamic client registration (RFC 7591)
func (h *Handler) ServeClientRegistration(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()
	clientIP := h.clientIP(r)

	if h.checkIPRateLimit(w, r, clientIP) {
		return
	}

	var req ClientRegistrationRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRegistrationBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, server.ErrorCodeInvalidRequest.String(), "Invalid client metadata JSON", http.StatusBadRequest)
		return
	}

	client, err := h.server.RegisterClient(ctx, &server.ClientRegistrationRequest{
		ClientName:   req.ClientName,
		RedirectURIs: req.RedirectURIs,
		ClientIP:     clientIP,
	})
	if err != nil {
		h.writeOAuthError(w, r, err)
		return
	}

	instrumentation.SetSpanAttributes(trace.SpanFromContext(ctx), attribute.String(instrumentation.AttrClientID, client.ClientID))

	security.SetSecurityHeaders(w, h.server.Config.Issuer)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(newClientRegistrationResponse(client))
}

// writeOAuthError writes a protocol error as JSON, or a generic server_error for anything else
func (h *Handler) writeOAuthError(w http.ResponseWriter, r *http.Request, err error) {
	oauthErr, ok := server.AsOAuthError(err)
	if !ok {
		h.writeInternalError(w, r, err)
		return
	}
	instrumentation.AddOAuthErrorAttributes(trace.SpanFromContext(r.Context()), oauthErr.Code.String(), oauthErr.Description)
	h.writeError(w, oauthErr.Code.String(), oauthErr.Description, oauthErr.Status())
}

func (h *Handler) writeInternalError(w http.ResponseWriter, r *http.Request, err error) {
	instrumentation.RecordError(trace.SpanFromContext(r.Context()), err)
	h.logger.Error("OAuth request failed",
		"path", r.URL.Path,
		"request_id", security.GetRequestID(r.Context()),
		"error", err)
	h.writeError(w, errorServerError, "Internal server error", http.StatusInternalServerError)
}

func (h *Handler) writeError(w http.ResponseWriter, code, description string, status int) {
	security.SetSecurityHeaders(w, h.server.Config.Issuer)

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", h.formatWWWAuthenticate(code, description))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:            code,
		ErrorDescription: description,
	})
}

// formatWWWAuthenticate builds an RFC 6750 challenge pointing clients at the
// protected resource metadata (RFC 9728 Section 5.1):
//
//	Bearer resource_metadata="https://example.com/.well-known/oauth-protected-resource",
//	       error="invalid_token",
//	       error_description="Token validation failed"
func (h *Handler) formatWWWAuthenticate(errCode, errorDesc string) string {
	params := []string{
		fmt.Sprintf(`resource_metadata="%s"`, quoteHeaderValue(h.server.ProtectedResourceMetadataURL())),
	}
	if errCode != "" {
		params = append(params, fmt.Sprintf(`error="%s"`, quoteHeaderValue(errCode)))
	}
	if errorDesc != "" {
		params = append(params, fmt.Sprintf(`error_description="%s"`, quoteHeaderValue(errorDesc)))
	}
	return tokenTypeBearer + " " + strings.Join(params, ", ")
}

// quoteHeaderValue escapes a value for a quoted-string; backslashes first
func quoteHeaderValue(v string) string {
	v = strings.ReplaceAll(v, `\`, `\\`)
	return strings.ReplaceAll(v, `"`, `\"`)
}
