package oauth

import (
	"github.com/agencyflow/agency-oauth/server"
)

// ErrorCode is the closed set of protocol errors, see server.ErrorCode
type ErrorCode = server.ErrorCode

// OAuthError is a protocol validation failure, see server.OAuthError
type OAuthError = server.OAuthError

// Protocol error codes
const (
	ErrorCodeUnsupportedResponseType = server.ErrorCodeUnsupportedResponseType
	ErrorCodeUnsupportedGrantType    = server.ErrorCodeUnsupportedGrantType
	ErrorCodeInvalidClient           = server.ErrorCodeInvalidClient
	ErrorCodeInvalidRedirectURI      = server.ErrorCodeInvalidRedirectURI
	ErrorCodeInvalidRequest          = server.ErrorCodeInvalidRequest
	ErrorCodeInvalidGrant            = server.ErrorCodeInvalidGrant
	ErrorCodeAccessDenied            = server.ErrorCodeAccessDenied
)

// Error codes written only by the HTTP layer
const (
	errorInvalidToken      = "invalid_token"
	errorServerError       = "server_error"
	errorRateLimitExceeded = "rate_limit_exceeded"
)

// ErrInvalidToken is returned for unknown or expired bearer tokens
var ErrInvalidToken = server.ErrInvalidToken
