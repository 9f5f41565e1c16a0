package server

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode is the closed set of OAuth errors the protocol operations return
type ErrorCode int

const (
	ErrorCodeUnsupportedResponseType ErrorCode = iota + 1
	ErrorCodeUnsupportedGrantType
	ErrorCodeInvalidClient
	ErrorCodeInvalidRedirectURI
	ErrorCodeInvalidRequest
	ErrorCodeInvalidGrant
	ErrorCodeAccessDenied
)

// String returns the RFC 6749 error code
func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeUnsupportedResponseType:
		return "unsupported_response_type"
	case ErrorCodeUnsupportedGrantType:
		return "unsupported_grant_type"
	case ErrorCodeInvalidClient:
		return "invalid_client"
	case ErrorCodeInvalidRedirectURI:
		return "invalid_redirect_uri"
	case ErrorCodeInvalidRequest:
		return "invalid_request"
	case ErrorCodeInvalidGrant:
		return "invalid_grant"
	case ErrorCodeAccessDenied:
		return "access_denied"
	default:
		return fmt.Sprintf("ErrorCode(%d)", int(c))
	}
}

// Status returns the HTTP status for a directly returned error
func (c ErrorCode) Status() int {
	switch c {
	case ErrorCodeInvalidClient:
		return http.StatusUnauthorized
	case ErrorCodeAccessDenied:
		return http.StatusForbidden
	case ErrorCodeUnsupportedResponseType,
		ErrorCodeUnsupportedGrantType,
		ErrorCodeInvalidRedirectURI,
		ErrorCodeInvalidRequest,
		ErrorCodeInvalidGrant:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// OAuthError is a terminal validation failure of a protocol operation
type OAuthError struct {
	Code        ErrorCode
	Description string
}

// Error implements the error interface
func (e *OAuthError) Error() string {
	if e.Description == "" {
		return e.Code.String()
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Status returns the HTTP status code for the error
func (e *OAuthError) Status() int {
	return e.Code.Status()
}

// NewOAuthError creates a new OAuth error
func NewOAuthError(code ErrorCode, description string) *OAuthError {
	return &OAuthError{Code: code, Description: description}
}

// AsOAuthError extracts an OAuthError from err's chain
func AsOAuthError(err error) (*OAuthError, bool) {
	var oauthErr *OAuthError
	if errors.As(err, &oauthErr) {
		return oauthErr, true
	}
	return nil, false
}

// ErrInvalidToken is returned by ValidateAccessToken for unknown or expired tokens
var ErrInvalidToken = errors.New("invalid or expired access token")

// ErrUnsupportedResponseType indicates a response_type other than "code"
func ErrUnsupportedResponseType(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeUnsupportedResponseType, desc)
}

// ErrUnsupportedGrantType indicates a grant_type other than "authorization_code"
func ErrUnsupportedGrantType(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeUnsupportedGrantType, desc)
}

// ErrInvalidClient indicates a missing client_id or a client secret mismatch
func ErrInvalidClient(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeInvalidClient, desc)
}

// ErrInvalidRedirectURI indicates a redirect URI outside the allow-list
func ErrInvalidRedirectURI(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeInvalidRedirectURI, desc)
}

// ErrInvalidRequest indicates malformed PKCE parameters or a missing verifier
func ErrInvalidRequest(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeInvalidRequest, desc)
}

// ErrInvalidGrant indicates an unknown, expired, consumed or mismatched authorization code
func ErrInvalidGrant(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeInvalidGrant, desc)
}

// ErrAccessDenied indicates the resource owner declined consent
func ErrAccessDenied(desc string) *OAuthError {
	return NewOAuthError(ErrorCodeAccessDenied, desc)
}
