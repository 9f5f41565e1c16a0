package server

import (
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/agencyflow/agency-oauth/internal/testutil"
)

func TestRegisterClient(t *testing.T) {
	env := setupTestServer(t, nil)

	client, err := env.srv.RegisterClient(context.Background(), &ClientRegistrationRequest{
		ClientName:   "Claude",
		RedirectURIs: []string{testutil.ClaudeCallback},
	})
	if err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}

	if _, err := uuid.Parse(client.ClientID); err != nil {
		t.Errorf("ClientID %q is not a UUID: %v", client.ClientID, err)
	}
	if client.ClientName != "Claude" {
		t.Errorf("ClientName = %q, want Claude", client.ClientName)
	}
	if len(client.RedirectURIs) != 1 || client.RedirectURIs[0] != testutil.ClaudeCallback {
		t.Errorf("RedirectURIs = %v", client.RedirectURIs)
	}
	if len(client.GrantTypes) != 1 || client.GrantTypes[0] != "authorization_code" {
		t.Errorf("GrantTypes = %v", client.GrantTypes)
	}
	if len(client.ResponseTypes) != 1 || client.ResponseTypes[0] != "code" {
		t.Errorf("ResponseTypes = %v", client.ResponseTypes)
	}
	if client.TokenEndpointAuthMethod != "none" {
		t.Errorf("TokenEndpointAuthMethod = %q, want none", client.TokenEndpointAuthMethod)
	}
	if client.ClientIDIssuedAt != env.clock.Now().Unix() {
		t.Errorf("ClientIDIssuedAt = %d, want %d", client.ClientIDIssuedAt, env.clock.Now().Unix())
	}

	other, err := env.srv.RegisterClient(context.Background(), &ClientRegistrationRequest{})
	if err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}
	if other.ClientID == client.ClientID {
		t.Error("random client IDs should differ")
	}
}

func TestRegisterClient_DefaultRedirectURIs(t *testing.T) {
	env := setupTestServer(t, nil)

	client, err := env.srv.RegisterClient(context.Background(), &ClientRegistrationRequest{ClientName: "Claude"})
	if err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}
	if len(client.RedirectURIs) != len(DefaultAllowedRedirectURIs) {
		t.Fatalf("RedirectURIs = %v, want the allow-list", client.RedirectURIs)
	}
	for i, uri := range DefaultAllowedRedirectURIs {
		if client.RedirectURIs[i] != uri {
			t.Errorf("RedirectURIs[%d] = %q, want %q", i, client.RedirectURIs[i], uri)
		}
	}

	// The returned slice must not alias the server's allow-list
	client.RedirectURIs[0] = "https://evil.example/cb"
	if !env.srv.IsAllowedRedirectURI(DefaultAllowedRedirectURIs[0]) || env.srv.Config.AllowedRedirectURIs[0] != DefaultAllowedRedirectURIs[0] {
		t.Error("mutating a registration response changed the allow-list")
	}
}

func TestRegisterClient_StaticClientID(t *testing.T) {
	env := setupTestServer(t, &Config{StaticClientID: "static-client"})

	client, err := env.srv.RegisterClient(context.Background(), &ClientRegistrationRequest{ClientName: "Claude"})
	if err != nil {
		t.Fatalf("RegisterClient() error = %v", err)
	}
	if client.ClientID != "static-client" {
		t.Errorf("ClientID = %q, want static-client", client.ClientID)
	}
}

func TestRegisterClient_RejectsUnlistedRedirect(t *testing.T) {
	env := setupTestServer(t, nil)

	tests := []struct {
		name string
		uris []string
	}{
		{name: "foreign host", uris: []string{"https://evil.example/cb"}},
		{name: "trailing slash", uris: []string{testutil.ClaudeCallback + "/"}},
		{name: "one bad among good", uris: []string{testutil.ClaudeCallback, "https://evil.example/cb"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := env.srv.RegisterClient(context.Background(), &ClientRegistrationRequest{RedirectURIs: tt.uris})
			if client != nil {
				t.Error("rejected registration returned a client")
			}
			assertOAuthError(t, err, ErrorCodeInvalidRedirectURI, "")
		})
	}
}
