package server

import (
	"time"
)

// Default protocol values
const (
	// DefaultScope is the single scope issued with every token
	DefaultScope = "mcp"

	// DefaultAuthorizationCodeTTL is the authorization code lifetime in seconds
	DefaultAuthorizationCodeTTL int64 = 300

	// DefaultAccessTokenTTL is the access token lifetime in seconds
	DefaultAccessTokenTTL int64 = 86400

	// DefaultConsentTTL is how long a rendered consent page can be submitted, in seconds
	DefaultConsentTTL int64 = 600

	// DefaultStorageCleanupInterval is how often expired codes and tokens are swept
	DefaultStorageCleanupInterval = 10 * time.Minute
)

// DefaultAllowedRedirectURIs is used when Config.AllowedRedirectURIs is empty
var DefaultAllowedRedirectURIs = []string{
	"https://claude.ai/api/mcp/auth_callback",
	"https://claude.com/api/mcp/auth_callback",
}

// Config holds OAuth server configuration
type Config struct {
	// Issuer is the server's externally reachable base URL.
	// Every absolute URL in the metadata documents is derived from it.
	Issuer string

	// ResourceURL identifies the protected resource in its metadata document
	// Default: Issuer
	ResourceURL string

	// ResourceName is the optional human-readable resource_name of the protected resource
	ResourceName string

	// ServiceDocumentation is an optional URL advertised in the authorization server metadata
	ServiceDocumentation string

	// AllowedRedirectURIs is the exact-match allow-list of redirect URIs.
	// No normalization is applied: a trailing slash or added query string is a different URI.
	// Default: DefaultAllowedRedirectURIs
	AllowedRedirectURIs []string

	// StaticClientID is returned by client registration instead of a random ID when set
	StaticClientID string

	// StaticClientSecret, when set, is checked at the token endpoint if the client sends one.
	// Only its bcrypt hash is kept once the server is created. Max 72 bytes.
	StaticClientSecret string

	// AuthorizationCodeTTL is how long authorization codes are valid
	AuthorizationCodeTTL int64 // seconds, default: 300 (5 minutes)

	// AccessTokenTTL is how long access tokens are valid
	AccessTokenTTL int64 // seconds, default: 86400 (24 hours)

	// ConsentTTL is how long a signed consent page stays valid
	ConsentTTL int64 // seconds, default: 600 (10 minutes)

	// StorageCleanupInterval is how often the stores sweep expired records
	// Default: 10 minutes
	StorageCleanupInterval time.Duration

	// ConsentSigningKey is the HS256 key for consent tokens. At least 32 bytes.
	// When empty a random key is generated, so consent pages do not survive a restart.
	ConsentSigningKey string

	// RequireSignedConsent rejects consent decisions that do not carry a consent token.
	// When false, a supplied token is still verified but a bare form post is accepted.
	// Default: false
	RequireSignedConsent bool

	// TrustProxy enables trusting X-Forwarded-For and X-Real-IP headers
	// WARNING: Only enable if behind a trusted reverse proxy (nginx, HAProxy, etc.)
	// Default: false
	TrustProxy bool // default: false

	// TrustedProxyCount is the number of trusted proxies in front of this server
	// The client IP will be extracted as: ips[len(ips) - TrustedProxyCount - 1]
	// Default: 1
	TrustedProxyCount int // default: 1

	// AllowInsecureHTTP permits an http:// issuer on a non-loopback host
	// WARNING: tokens travel in clear text
	// Default: false
	AllowInsecureHTTP bool
}

// AuthorizationCodeLifetime returns AuthorizationCodeTTL as a duration
func (c *Config) AuthorizationCodeLifetime() time.Duration {
	return time.Duration(c.AuthorizationCodeTTL) * time.Second
}

// AccessTokenLifetime returns AccessTokenTTL as a duration
func (c *Config) AccessTokenLifetime() time.Duration {
	return time.Duration(c.AccessTokenTTL) * time.Second
}

// ConsentLifetime returns ConsentTTL as a duration
func (c *Config) ConsentLifetime() time.Duration {
	return time.Duration(c.ConsentTTL) * time.Second
}
