package oauth

import (
	"github.com/agencyflow/agency-oauth/server"
)

// ProtectedResourceMetadata represents OAuth 2.0 Protected Resource Metadata (RFC 9728)
type ProtectedResourceMetadata = server.ProtectedResourceMetadata

// AuthorizationServerMetadata represents OAuth 2.0 Authorization Server Metadata (RFC 8414)
type AuthorizationServerMetadata = server.AuthorizationServerMetadata

// ErrorResponse represents an OAuth error response
type ErrorResponse struct {
	// Error is the error code
	Error string `json:"error"`

	// ErrorDescription provides additional information
	ErrorDescription string `json:"error_description,omitempty"`
}

// ClientRegistrationRequest represents a dynamic client registration request (RFC 7591).
// Fields other than these are ignored.
type ClientRegistrationRequest struct {
	// ClientName is the human-readable name of the client
	ClientName string `json:"client_name,omitempty"`

	// RedirectURIs must all be on the server's allow-list
	RedirectURIs []string `json:"redirect_uris,omitempty"`
}

// ClientRegistrationResponse represents a dynamic client registration response
type ClientRegistrationResponse struct {
	// ClientID is the client identifier
	ClientID string `json:"client_id"`

	// ClientIDIssuedAt is the time the client_id was issued
	ClientIDIssuedAt int64 `json:"client_id_issued_at"`

	// ClientName is the human-readable name of the client
	ClientName string `json:"client_name,omitempty"`

	// RedirectURIs is the array of redirection URIs
	RedirectURIs []string `json:"redirect_uris"`

	// GrantTypes is always ["authorization_code"]
	GrantTypes []string `json:"grant_types"`

	// ResponseTypes is always ["code"]
	ResponseTypes []string `json:"response_types"`

	// TokenEndpointAuthMethod is always "none"
	TokenEndpointAuthMethod string `json:"token_endpoint_auth_method"`
}

// TokenResponse represents an OAuth 2.0 token response
type TokenResponse struct {
	// AccessToken is the access token
	AccessToken string `json:"access_token"`

	// TokenType is the type of token (always "Bearer")
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int64 `json:"expires_in"`

	// Scope is the scope of the access token
	Scope string `json:"scope,omitempty"`
}

func newClientRegistrationResponse(c *server.RegisteredClient) ClientRegistrationResponse {
	return ClientRegistrationResponse{
		ClientID:                c.ClientID,
		ClientIDIssuedAt:        c.ClientIDIssuedAt,
		ClientName:              c.ClientName,
		RedirectURIs:            c.RedirectURIs,
		GrantTypes:              c.GrantTypes,
		ResponseTypes:           c.ResponseTypes,
		TokenEndpointAuthMethod: c.TokenEndpointAuthMethod,
	}
}
