package server

import (
	"context"
	"fmt"

	"github.com/agencyflow/agency-oauth/storage"
)

// ValidateAccessToken looks up a bearer token issued by this server.
// Unknown and expired tokens yield ErrInvalidToken; expired tokens are evicted.
func (s *Server) ValidateAccessToken(ctx context.Context, token string) (*storage.AccessToken, error) {
	stored, err := s.lookupAccessToken(ctx, token)
	if m := s.metrics(); m != nil {
		m.RecordTokenValidation(ctx, err == nil)
	}
	return stored, err
}

func (s *Server) lookupAccessToken(ctx context.Context, token string) (*storage.AccessToken, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	stored, err := s.tokenStore.GetAccessToken(ctx, token)
	if err != nil {
		if isMiss(err) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to look up access token: %w", err)
	}

	// A store with its own clock may still hold a token this server considers expired
	if expired(s.now(), stored.ExpiresAt) {
		if err := s.tokenStore.DeleteAccessToken(ctx, token); err != nil {
			s.Logger.Warn("Failed to evict expired access token", "error", err)
		}
		return nil, ErrInvalidToken
	}
	return stored, nil
}
