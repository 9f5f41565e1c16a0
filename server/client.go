package server

import (
	"context"

	"github.com/google/uuid"

	"github.com/agencyflow/agency-oauth/security"
)

// TokenEndpointAuthMethodNone marks a public client
const TokenEndpointAuthMethodNone = "none"

// ClientRegistrationRequest holds the accepted fields of an RFC 7591 registration request
type ClientRegistrationRequest struct {
	ClientName   string
	RedirectURIs []string

	// ClientIP is recorded in audit events only
	ClientIP string
}

// RegisteredClient is the descriptor returned to a registering client.
// Nothing is stored: client identity is advisory and the allow-list stays the trust anchor.
type RegisteredClient struct {
	ClientID                string
	ClientName              string
	RedirectURIs            []string
	GrantTypes              []string
	ResponseTypes           []string
	TokenEndpointAuthMethod string
	ClientIDIssuedAt        int64
}

// RegisterClient performs open dynamic client registration.
// Every supplied redirect URI must already be on the allow-list; when none are supplied
// the allow-list itself is returned. The client ID is the configured static ID or a random UUID.
func (s *Server) RegisterClient(ctx context.Context, req *ClientRegistrationRequest) (*RegisteredClient, error) {
	for _, uri := range req.RedirectURIs {
		if !s.IsAllowedRedirectURI(uri) {
			if s.Auditor != nil {
				s.Auditor.LogEvent(security.Event{
					Type:      security.EventClientRegistrationRejected,
					IPAddress: req.ClientIP,
					RequestID: security.GetRequestID(ctx),
					Details:   map[string]any{"redirect_uri": uri},
				})
			}
			return nil, ErrInvalidRedirectURI("redirect_uri is not allowed: " + uri)
		}
	}

	redirectURIs := req.RedirectURIs
	if len(redirectURIs) == 0 {
		redirectURIs = append([]string(nil), s.Config.AllowedRedirectURIs...)
	}

	clientID := s.Config.StaticClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	client := &RegisteredClient{
		ClientID:                clientID,
		ClientName:              req.ClientName,
		RedirectURIs:            redirectURIs,
		GrantTypes:              []string{GrantTypeAuthorizationCode},
		ResponseTypes:           []string{ResponseTypeCode},
		TokenEndpointAuthMethod: TokenEndpointAuthMethodNone,
		ClientIDIssuedAt:        s.now().Unix(),
	}

	if s.Auditor != nil {
		s.Auditor.LogClientRegistered(client.ClientID, client.ClientName, req.ClientIP)
	}
	if m := s.metrics(); m != nil {
		m.RecordClientRegistration(ctx)
	}
	s.Logger.Info("Registered client",
		"client_id", client.ClientID,
		"client_name", client.ClientName,
		"redirect_uris", len(client.RedirectURIs))
	return client, nil
}
