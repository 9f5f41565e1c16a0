package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/agencyflow/agency-oauth/internal/util"
	"github.com/agencyflow/agency-oauth/security"
	"github.com/agencyflow/agency-oauth/storage"
)

// Consent actions submitted by the consent page
const (
	ConsentActionApprove = "approve"
	ConsentActionDeny    = "deny"
)

// ConsentDecision is the resubmitted consent form. None of its fields are trusted.
type ConsentDecision struct {
	Action        string
	ClientID      string
	RedirectURI   string
	CodeChallenge string
	State         string

	// ConsentToken is the signed token rendered into the consent page, if any
	ConsentToken string

	// ClientIP is recorded in audit events only
	ClientIP string
}

// DecideConsent applies the resource owner's decision and returns the URL to redirect to.
//
// Deny redirects with error=access_denied. Approve mints a single-use authorization
// code and redirects with code and state. Validation failures are returned as
// *OAuthError and must be shown directly, never redirected. Infrastructure failures
// are returned wrapped.
func (s *Server) DecideConsent(ctx context.Context, d *ConsentDecision) (string, error) {
	switch d.Action {
	case ConsentActionDeny:
		return s.denyConsent(ctx, d)
	case ConsentActionApprove:
		return s.approveConsent(ctx, d)
	default:
		return "", ErrInvalidRequest("action must be approve or deny")
	}
}

func (s *Server) denyConsent(ctx context.Context, d *ConsentDecision) (string, error) {
	if !s.IsAllowedRedirectURI(d.RedirectURI) {
		return "", ErrInvalidRedirectURI("redirect_uri is not allowed")
	}

	if s.Auditor != nil {
		s.Auditor.LogEvent(security.Event{
			Type:      security.EventConsentDenied,
			ClientID:  d.ClientID,
			IPAddress: d.ClientIP,
			RequestID: security.GetRequestID(ctx),
		})
	}
	if m := s.metrics(); m != nil {
		m.RecordConsentDecision(ctx, ConsentActionDeny)
	}

	return util.AppendQuery(d.RedirectURI, map[string]string{
		"error": ErrorCodeAccessDenied.String(),
		"state": d.State,
	})
}

func (s *Server) approveConsent(ctx context.Context, d *ConsentDecision) (string, error) {
	if d.ClientID == "" {
		return "", ErrInvalidClient("client_id is required")
	}
	if !s.IsAllowedRedirectURI(d.RedirectURI) {
		return "", ErrInvalidRedirectURI("redirect_uri is not allowed")
	}
	if err := s.verifyConsentToken(ctx, d); err != nil {
		return "", err
	}
	if d.CodeChallenge == "" {
		return "", ErrInvalidRequest("PKCE S256 required")
	}

	now := s.now()
	code := &storage.AuthorizationCode{
		Code:                generateAuthorizationCode(),
		ClientID:            d.ClientID,
		RedirectURI:         d.RedirectURI,
		CodeChallenge:       d.CodeChallenge,
		CodeChallengeMethod: PKCEMethodS256,
		State:               d.State,
		Scope:               DefaultScope,
		CreatedAt:           now,
		ExpiresAt:           now.Add(s.Config.AuthorizationCodeLifetime()),
	}
	if err := s.codeStore.SaveAuthorizationCode(ctx, code); err != nil {
		return "", fmt.Errorf("failed to save authorization code: %w", err)
	}

	if s.Auditor != nil {
		s.Auditor.LogEvent(security.Event{
			Type:      security.EventConsentApproved,
			ClientID:  d.ClientID,
			IPAddress: d.ClientIP,
			RequestID: security.GetRequestID(ctx),
			Details:   map[string]any{"redirect_uri": d.RedirectURI},
		})
		s.Auditor.LogEvent(security.Event{
			Type:      security.EventAuthorizationCodeIssued,
			ClientID:  d.ClientID,
			IPAddress: d.ClientIP,
			RequestID: security.GetRequestID(ctx),
			Details:   map[string]any{"code_prefix": util.SafeTruncate(code.Code, tokenIDLogLength)},
		})
	}
	if m := s.metrics(); m != nil {
		m.RecordConsentDecision(ctx, ConsentActionApprove)
		m.RecordCodeIssued(ctx)
	}
	s.Logger.Info("Authorization code issued",
		"client_id", d.ClientID,
		"code_prefix", util.SafeTruncate(code.Code, tokenIDLogLength),
		"expires_at", code.ExpiresAt)

	return util.AppendQuery(d.RedirectURI, map[string]string{
		"code":  code.Code,
		"state": d.State,
	})
}

// verifyConsentToken checks a supplied consent token against the submitted fields.
// A missing token is only an error when RequireSignedConsent is set.
func (s *Server) verifyConsentToken(ctx context.Context, d *ConsentDecision) error {
	if d.ConsentToken == "" {
		if s.Config.RequireSignedConsent {
			return ErrInvalidRequest("consent_token is required")
		}
		return nil
	}

	err := s.consent.Verify(d.ConsentToken, security.ConsentParams{
		ClientID:      d.ClientID,
		RedirectURI:   d.RedirectURI,
		CodeChallenge: d.CodeChallenge,
		State:         d.State,
	})
	if err == nil {
		return nil
	}

	reason := "invalid"
	if errors.Is(err, security.ErrConsentMismatch) {
		reason = "mismatch"
	}
	if s.Auditor != nil {
		s.Auditor.LogEvent(security.Event{
			Type:      security.EventConsentTampered,
			ClientID:  d.ClientID,
			IPAddress: d.ClientIP,
			RequestID: security.GetRequestID(ctx),
			Details:   map[string]any{"reason": reason},
		})
	}
	s.Logger.Warn("Consent token rejected", "client_id", d.ClientID, "reason", reason, "error", err)
	return ErrInvalidRequest("consent token is invalid or does not match the request")
}
