package server

// Endpoint paths served by the HTTP handler
const (
	ProtectedResourceMetadataPath   = "/.well-known/oauth-protected-resource"
	AuthorizationServerMetadataPath = "/.well-known/oauth-authorization-server"
	AuthorizationEndpointPath       = "/oauth/authorize"
	TokenEndpointPath               = "/oauth/token"
	RegistrationEndpointPath        = "/oauth/register"
)

// Token endpoint authentication methods advertised in metadata
const TokenEndpointAuthMethodClientSecretPost = "client_secret_post"

// ProtectedResourceMetadata is the RFC 9728 protected resource document
type ProtectedResourceMetadata struct {
	Resource               string   `json:"resource"`
	AuthorizationServers   []string `json:"authorization_servers"`
	ScopesSupported        []string `json:"scopes_supported"`
	BearerMethodsSupported []string `json:"bearer_methods_supported"`
	ResourceName           string   `json:"resource_name,omitempty"`
}

// AuthorizationServerMetadata is the RFC 8414 authorization server document
type AuthorizationServerMetadata struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	RegistrationEndpoint              string   `json:"registration_endpoint"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	TokenEndpointAuthMethodsSupported []string `json:"token_endpoint_auth_methods_supported"`
	ScopesSupported                   []string `json:"scopes_supported"`
	ServiceDocumentation              string   `json:"service_documentation,omitempty"`
}

// ProtectedResourceMetadata returns the protected resource document for the configured issuer
func (s *Server) ProtectedResourceMetadata() ProtectedResourceMetadata {
	return ProtectedResourceMetadata{
		Resource:               s.Config.ResourceURL,
		AuthorizationServers:   []string{s.Config.Issuer},
		ScopesSupported:        []string{DefaultScope},
		BearerMethodsSupported: []string{"header"},
		ResourceName:           s.Config.ResourceName,
	}
}

// AuthorizationServerMetadata returns the authorization server document for the configured issuer
func (s *Server) AuthorizationServerMetadata() AuthorizationServerMetadata {
	return AuthorizationServerMetadata{
		Issuer:                            s.Config.Issuer,
		AuthorizationEndpoint:             s.Config.Issuer + AuthorizationEndpointPath,
		TokenEndpoint:                     s.Config.Issuer + TokenEndpointPath,
		RegistrationEndpoint:              s.Config.Issuer + RegistrationEndpointPath,
		ResponseTypesSupported:            []string{ResponseTypeCode},
		GrantTypesSupported:               []string{GrantTypeAuthorizationCode},
		CodeChallengeMethodsSupported:     []string{PKCEMethodS256},
		TokenEndpointAuthMethodsSupported: []string{TokenEndpointAuthMethodNone, TokenEndpointAuthMethodClientSecretPost},
		ScopesSupported:                   []string{DefaultScope},
		ServiceDocumentation:              s.Config.ServiceDocumentation,
	}
}

// ProtectedResourceMetadataURL is the absolute URL clients are pointed at from 401 challenges
func (s *Server) ProtectedResourceMetadataURL() string {
	return s.Config.Issuer + ProtectedResourceMetadataPath
}
