// Package server implements the protocol logic of the embedded OAuth 2.1
// authorization server.
//
// The Server validates authorization requests, records the resource owner's
// consent decision, exchanges authorization codes for access tokens, registers
// clients and validates bearer tokens. It knows nothing about HTTP; the root
// oauth package adapts it to net/http.
//
// Key properties:
//   - Authorization code grant only, with mandatory PKCE S256
//   - Exact-match redirect URI allow-list
//   - Single-use codes, consumed before any other redemption check
//   - Open dynamic client registration (RFC 7591) bounded by the allow-list
//
// Example usage:
//
//	store := memory.New()
//	srv, err := server.New(store, store, &server.Config{
//	    Issuer: "https://auth.example.com",
//	}, logger)
//	if err != nil {
//	    return err
//	}
//	srv.Start(ctx)
//	defer srv.Shutdown(context.Background())
package server
