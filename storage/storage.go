package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no live record exists for a key.
	ErrNotFound = errors.New("record not found")

	// ErrExpired is returned when a record exists but its expiry has passed.
	// Stores remove the record before returning this error.
	ErrExpired = errors.New("record expired")
)

// AuthorizationCode is a single-use code minted after the resource owner approves a request.
type AuthorizationCode struct {
	Code                string
	ClientID            string
	RedirectURI         string
	CodeChallenge       string
	CodeChallengeMethod string
	State               string
	Scope               string
	CreatedAt           time.Time
	ExpiresAt           time.Time
}

// AccessToken is an opaque bearer credential issued by the token endpoint.
type AccessToken struct {
	Token     string
	ClientID  string
	Scope     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// CodeStore keeps authorization codes until they are redeemed or expire.
type CodeStore interface {
	// SaveAuthorizationCode stores a code until its ExpiresAt.
	SaveAuthorizationCode(ctx context.Context, code *AuthorizationCode) error

	// ConsumeAuthorizationCode atomically removes and returns a code.
	// Of any number of concurrent calls for the same code at most one returns it.
	// If the record had already expired it is still removed, and returned with ErrExpired.
	ConsumeAuthorizationCode(ctx context.Context, code string) (*AuthorizationCode, error)
}

// TokenStore keeps issued access tokens.
type TokenStore interface {
	// SaveAccessToken stores a token until its ExpiresAt.
	SaveAccessToken(ctx context.Context, token *AccessToken) error

	// GetAccessToken returns a live token. Expired tokens are evicted and
	// reported as ErrExpired.
	GetAccessToken(ctx context.Context, token string) (*AccessToken, error)

	// DeleteAccessToken removes a token. Deleting an unknown token is not an error.
	DeleteAccessToken(ctx context.Context, token string) error
}
