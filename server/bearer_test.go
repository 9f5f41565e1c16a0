package server

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/agencyflow/agency-oauth/internal/testutil"
)

func issueTestToken(t *testing.T, env *testEnv) string {
	t.Helper()
	code := env.issueCode(t, testutil.ClaudeCallback, testutil.RFC7636Challenge)
	token, err := env.srv.ExchangeAuthorizationCode(context.Background(), tokenRequestFor(code))
	if err != nil {
		t.Fatalf("ExchangeAuthorizationCode() error = %v", err)
	}
	return token.Token
}

func TestValidateAccessToken(t *testing.T) {
	env := setupTestServer(t, nil)
	token := issueTestToken(t, env)

	got, err := env.srv.ValidateAccessToken(context.Background(), token)
	if err != nil {
		t.Fatalf("ValidateAccessToken() error = %v", err)
	}
	if got.ClientID != testClientID {
		t.Errorf("ClientID = %q, want %q", got.ClientID, testClientID)
	}

	for _, bad := range []string{"", "unknown", token[:63]} {
		if _, err := env.srv.ValidateAccessToken(context.Background(), bad); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("ValidateAccessToken(%q) error = %v, want ErrInvalidToken", bad, err)
		}
	}
}

func TestValidateAccessToken_Expiry(t *testing.T) {
	tests := []struct {
		name    string
		advance time.Duration
		valid   bool
	}{
		{name: "one second before expiry", advance: 24*time.Hour - time.Second, valid: true},
		{name: "exactly at expiry", advance: 24 * time.Hour},
		{name: "long after expiry", advance: 48 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupTestServer(t, nil)
			token := issueTestToken(t, env)

			env.clock.Advance(tt.advance)

			_, err := env.srv.ValidateAccessToken(context.Background(), token)
			if tt.valid {
				if err != nil {
					t.Fatalf("ValidateAccessToken() error = %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidToken) {
				t.Fatalf("ValidateAccessToken() error = %v, want ErrInvalidToken", err)
			}

			// Moving the clock back does not resurrect an evicted token
			env.clock.Advance(-tt.advance)
			if _, err := env.srv.ValidateAccessToken(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("expired token was not evicted, error = %v", err)
			}
		})
	}
}
