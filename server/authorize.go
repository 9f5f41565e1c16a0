package server

import (
	"context"

	"github.com/agencyflow/agency-oauth/security"
)

const (
	// ResponseTypeCode is the only supported response_type
	ResponseTypeCode = "code"

	// PKCEMethodS256 is the only supported code_challenge_method
	PKCEMethodS256 = "S256"
)

// AuthorizationRequest holds the query parameters of an authorization request
type AuthorizationRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	CodeChallenge       string
	CodeChallengeMethod string
	State               string

	// ClientIP is recorded in audit events only
	ClientIP string
}

// ValidateAuthorizationRequest checks an authorization request before the consent page is shown.
// It has no side effects on the stores. The returned error, if any, is an *OAuthError.
//
// Checks run in order and the first failure wins:
//  1. response_type is "code"
//  2. client_id is present
//  3. redirect_uri is on the allow-list
//  4. code_challenge_method is S256 and code_challenge is present
func (s *Server) ValidateAuthorizationRequest(ctx context.Context, req *AuthorizationRequest) error {
	err := s.validateAuthorizationRequest(req)

	errorCode := ""
	if err != nil {
		errorCode = err.Code.String()
		if s.Auditor != nil {
			s.Auditor.LogEvent(security.Event{
				Type:      security.EventAuthorizationRequestRejected,
				ClientID:  req.ClientID,
				IPAddress: req.ClientIP,
				RequestID: security.GetRequestID(ctx),
				Details: map[string]any{
					"error":       errorCode,
					"description": err.Description,
				},
			})
		}
		s.Logger.Debug("Authorization request rejected",
			"client_id", req.ClientID,
			"error", errorCode,
			"description", err.Description)
	}
	if m := s.metrics(); m != nil {
		m.RecordAuthorizationRequest(ctx, errorCode)
	}

	if err != nil {
		return err
	}
	return nil
}

func (s *Server) validateAuthorizationRequest(req *AuthorizationRequest) *OAuthError {
	if req.ResponseType != ResponseTypeCode {
		return ErrUnsupportedResponseType("response_type must be code")
	}
	if req.ClientID == "" {
		return ErrInvalidClient("client_id is required")
	}
	if req.RedirectURI == "" {
		return ErrInvalidRedirectURI("redirect_uri is required")
	}
	if !s.IsAllowedRedirectURI(req.RedirectURI) {
		return ErrInvalidRedirectURI("redirect_uri is not allowed")
	}
	// Plain PKCE is never accepted
	if req.CodeChallengeMethod != PKCEMethodS256 || req.CodeChallenge == "" {
		return ErrInvalidRequest("PKCE S256 required")
	}
	return nil
}

// IssueConsentToken signs the parameters of a validated authorization request.
// The consent page carries the token so the decision can be bound to this request.
func (s *Server) IssueConsentToken(req *AuthorizationRequest) (string, error) {
	return s.consent.Sign(security.ConsentParams{
		ClientID:      req.ClientID,
		RedirectURI:   req.RedirectURI,
		CodeChallenge: req.CodeChallenge,
		State:         req.State,
	})
}
