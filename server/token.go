package server

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/agencyflow/agency-oauth/internal/util"
	"github.com/agencyflow/agency-oauth/security"
	"github.com/agencyflow/agency-oauth/storage"
)

// GrantTypeAuthorizationCode is the only supported grant_type
const GrantTypeAuthorizationCode = "authorization_code"

// TokenRequest holds the form parameters of a token request
type TokenRequest struct {
	GrantType    string
	Code         string
	RedirectURI  string
	ClientID     string
	ClientSecret string
	CodeVerifier string

	// ClientIP is recorded in audit events only
	ClientIP string
}

// ExchangeAuthorizationCode redeems an authorization code for an access token.
//
// Checks run in order and the first failure wins:
//  1. grant_type is authorization_code
//  2. client_id is present
//  3. client_secret matches, when both a secret is configured and one is sent
//  4. the code is consumed from the store; an unknown code fails
//  5. the code has not expired
//  6. redirect_uri equals the one the code was issued for
//  7. client_id equals the one the code was issued for
//  8. code_verifier is present
//  9. the S256 digest of code_verifier equals the stored challenge
//
// The code is removed in step 4, so any later failure still leaves it unusable.
func (s *Server) ExchangeAuthorizationCode(ctx context.Context, req *TokenRequest) (*storage.AccessToken, error) {
	token, err := s.exchangeAuthorizationCode(ctx, req)

	if m := s.metrics(); m != nil {
		errorCode := ""
		if oauthErr, ok := AsOAuthError(err); ok {
			errorCode = oauthErr.Code.String()
		} else if err != nil {
			errorCode = "server_error"
		}
		m.RecordCodeExchange(ctx, errorCode)
	}
	return token, err
}

func (s *Server) exchangeAuthorizationCode(ctx context.Context, req *TokenRequest) (*storage.AccessToken, error) {
	if req.GrantType != GrantTypeAuthorizationCode {
		return nil, ErrUnsupportedGrantType("grant_type must be authorization_code")
	}
	if req.ClientID == "" {
		return nil, ErrInvalidClient("client_id is required")
	}
	if !s.verifyClientSecret(req.ClientSecret) {
		s.auditAuthFailure(req, "client secret mismatch")
		return nil, ErrInvalidClient("client authentication failed")
	}

	// Point of no return: the code is gone whatever happens below
	code, err := s.codeStore.ConsumeAuthorizationCode(ctx, req.Code)
	switch {
	case errors.Is(err, storage.ErrExpired):
		s.auditAuthFailure(req, "code expired")
		return nil, ErrInvalidGrant("code expired")
	case errors.Is(err, storage.ErrNotFound):
		s.auditAuthFailure(req, "unknown code")
		return nil, ErrInvalidGrant("unknown or expired code")
	case err != nil:
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}

	if expired(s.now(), code.ExpiresAt) {
		s.auditAuthFailure(req, "code expired")
		return nil, ErrInvalidGrant("code expired")
	}
	if code.RedirectURI != req.RedirectURI {
		s.auditAuthFailure(req, "redirect_uri mismatch")
		return nil, ErrInvalidGrant("redirect_uri mismatch")
	}
	if code.ClientID != req.ClientID {
		s.auditAuthFailure(req, "client_id mismatch")
		return nil, ErrInvalidGrant("client_id mismatch")
	}
	if req.CodeVerifier == "" {
		return nil, ErrInvalidRequest("code_verifier is required")
	}

	challenge := oauth2.S256ChallengeFromVerifier(req.CodeVerifier)
	if subtle.ConstantTimeCompare([]byte(challenge), []byte(code.CodeChallenge)) != 1 {
		if s.Auditor != nil {
			s.Auditor.LogEvent(security.Event{
				Type:      security.EventInvalidPKCE,
				ClientID:  req.ClientID,
				IPAddress: req.ClientIP,
				RequestID: security.GetRequestID(ctx),
			})
		}
		if m := s.metrics(); m != nil {
			m.RecordPKCEValidationFailed(ctx)
		}
		return nil, ErrInvalidGrant("PKCE verification failed")
	}

	return s.issueAccessToken(ctx, code, req.ClientIP)
}

func (s *Server) issueAccessToken(ctx context.Context, code *storage.AuthorizationCode, clientIP string) (*storage.AccessToken, error) {
	value, err := generateAccessToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	token := &storage.AccessToken{
		Token:     value,
		ClientID:  code.ClientID,
		Scope:     code.Scope,
		CreatedAt: now,
		ExpiresAt: now.Add(s.Config.AccessTokenLifetime()),
	}
	if err := s.tokenStore.SaveAccessToken(ctx, token); err != nil {
		return nil, fmt.Errorf("failed to save access token: %w", err)
	}

	if s.Auditor != nil {
		s.Auditor.LogTokenIssued(code.ClientID, clientIP, token.Scope)
	}
	s.Logger.Info("Access token issued",
		"client_id", code.ClientID,
		"token_prefix", util.SafeTruncate(token.Token, tokenIDLogLength),
		"expires_at", token.ExpiresAt)
	return token, nil
}

func (s *Server) auditAuthFailure(req *TokenRequest, reason string) {
	if s.Auditor != nil {
		s.Auditor.LogAuthFailure(req.ClientID, req.ClientIP, reason)
	}
	s.Logger.Debug("Token request rejected", "client_id", req.ClientID, "reason", reason)
}
