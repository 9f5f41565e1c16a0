package security

// Event type constants for security audit logging.
const (
	// Authorization flow events

	// EventAuthorizationRequestRejected is logged when GET /oauth/authorize fails validation
	EventAuthorizationRequestRejected = "authorization_request_rejected"

	// EventConsentApproved is logged when the resource owner approves a request
	EventConsentApproved = "consent_approved"

	// EventConsentDenied is logged when the resource owner declines a request
	EventConsentDenied = "consent_denied"

	// EventConsentTampered is logged when a signed consent token does not match the submitted form
	EventConsentTampered = "consent_tampered"

	// EventAuthorizationCodeIssued is logged when an authorization code is minted
	EventAuthorizationCodeIssued = "authorization_code_issued"

	// Token events

	// EventTokenIssued is logged when an access token is issued to a client
	EventTokenIssued = "token_issued"

	// EventTokenRejected is logged when a bearer token is unknown or expired
	EventTokenRejected = "token_rejected" //nolint:gosec // G101: event type name, not a credential

	// Client registration events

	// EventClientRegistered is logged when a client registers dynamically
	EventClientRegistered = "client_registered"

	// EventClientRegistrationRejected is logged when registration fails allow-list validation
	EventClientRegistrationRejected = "client_registration_rejected"

	// Security violation events

	// EventAuthFailure is logged when client authentication or code redemption fails
	EventAuthFailure = "auth_failure"

	// EventRateLimitExceeded is logged when a rate limit is exceeded
	EventRateLimitExceeded = "rate_limit_exceeded"

	// EventInvalidPKCE is logged when a code verifier does not match the stored challenge
	EventInvalidPKCE = "pkce_validation_failed"
)
