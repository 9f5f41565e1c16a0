package server

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/agencyflow/agency-oauth/internal/util"
)

const (
	// bcryptMaxSecretLength is the longest secret bcrypt hashes without truncation
	bcryptMaxSecretLength = 72

	// minConsentKeyLength is the minimum HS256 key size accepted
	minConsentKeyLength = 32

	oauth21SecurityBestPracticesURL = "https://datatracker.ietf.org/doc/html/draft-ietf-oauth-v2-1-10#section-4.1.1"
)

// applySecureDefaults fills unset values and logs warnings for insecure settings.
// It does not reject anything; validateConfig does.
func applySecureDefaults(config *Config, logger *slog.Logger) *Config {
	applyTimeDefaults(config)
	applySecurityDefaults(config)
	logSecurityWarnings(config, logger)
	return config
}

// applyTimeDefaults sets default values for time-based configuration.
func applyTimeDefaults(config *Config) {
	if config.AuthorizationCodeTTL <= 0 {
		config.AuthorizationCodeTTL = DefaultAuthorizationCodeTTL
	}
	if config.AccessTokenTTL <= 0 {
		config.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if config.ConsentTTL <= 0 {
		config.ConsentTTL = DefaultConsentTTL
	}
	if config.StorageCleanupInterval <= 0 {
		config.StorageCleanupInterval = DefaultStorageCleanupInterval
	}
}

func applySecurityDefaults(config *Config) {
	config.Issuer = strings.TrimSuffix(config.Issuer, "/")
	if config.ResourceURL == "" {
		config.ResourceURL = config.Issuer
	}
	if len(config.AllowedRedirectURIs) == 0 {
		config.AllowedRedirectURIs = append([]string(nil), DefaultAllowedRedirectURIs...)
	}
	if config.TrustedProxyCount <= 0 {
		config.TrustedProxyCount = 1
	}
}

func logSecurityWarnings(config *Config, logger *slog.Logger) {
	if config.TrustProxy {
		logger.Warn("⚠️  SECURITY NOTICE: Trusting proxy headers",
			"risk", "IP spoofing if proxy is not properly configured",
			"recommendation", "Only enable behind trusted reverse proxies",
			"config", "TrustedProxyCount should match your proxy chain length")
	}
	if !config.RequireSignedConsent {
		logger.Info("Unsigned consent decisions are accepted",
			"note", "Consent tokens are still verified when present",
			"recommendation", "Set RequireSignedConsent=true once all clients use the rendered consent page")
	}
	if config.ConsentSigningKey == "" {
		logger.Info("No consent signing key configured, generating an ephemeral key",
			"effect", "Consent pages rendered before a restart cannot be submitted after it")
	}
	if config.StaticClientSecret == "" && config.StaticClientID != "" {
		logger.Info("Static client has no secret, it is treated as a public client",
			"client_id", config.StaticClientID)
	}
}

// validateConfig rejects configurations the server cannot run safely with.
// It expects applySecureDefaults to have run.
func validateConfig(config *Config, logger *slog.Logger) error {
	if err := validateIssuer(config, logger); err != nil {
		return err
	}

	for _, uri := range config.AllowedRedirectURIs {
		if err := validateAllowedRedirectURI(uri); err != nil {
			return err
		}
	}

	if len(config.StaticClientSecret) > bcryptMaxSecretLength {
		return fmt.Errorf("static client secret must be at most %d bytes (got %d)",
			bcryptMaxSecretLength, len(config.StaticClientSecret))
	}

	if config.ConsentSigningKey != "" && len(config.ConsentSigningKey) < minConsentKeyLength {
		return fmt.Errorf("consent signing key must be at least %d bytes (got %d)",
			minConsentKeyLength, len(config.ConsentSigningKey))
	}

	return nil
}

// validateIssuer enforces an absolute issuer URL and HTTPS outside localhost.
//
// - HTTPS: Always allowed
// - HTTP on localhost: Allowed with warning (development)
// - HTTP on non-localhost: Blocked unless AllowInsecureHTTP=true
func validateIssuer(config *Config, logger *slog.Logger) error {
	if config.Issuer == "" {
		return fmt.Errorf("issuer is required")
	}

	issuerURL, err := url.Parse(config.Issuer)
	if err != nil {
		return fmt.Errorf("invalid issuer URL: %w", err)
	}
	if issuerURL.Host == "" {
		return fmt.Errorf("issuer must be an absolute URL (got %q)", config.Issuer)
	}
	if issuerURL.RawQuery != "" || issuerURL.Fragment != "" {
		return fmt.Errorf("issuer must not contain a query or fragment (got %q)", config.Issuer)
	}

	switch issuerURL.Scheme {
	case "https":
		return nil
	case "http":
	default:
		return fmt.Errorf("invalid issuer URL scheme: %s (must be http or https)", issuerURL.Scheme)
	}

	hostname := issuerURL.Hostname()
	if util.IsLoopbackHost(hostname) {
		if !config.AllowInsecureHTTP {
			logger.Warn("⚠️  DEVELOPMENT WARNING: Running OAuth over HTTP on localhost",
				"issuer", config.Issuer,
				"risk", "Credentials exposed on local network",
				"to_suppress", "Set AllowInsecureHTTP=true in Config",
				"learn_more", oauth21SecurityBestPracticesURL)
		}
		return nil
	}

	if !config.AllowInsecureHTTP {
		return fmt.Errorf(
			"SECURITY ERROR: Issuer must use HTTPS in production (got %s://%s). "+
				"To run on localhost for development, use a loopback host. "+
				"To accept the risk, set AllowInsecureHTTP=true",
			issuerURL.Scheme,
			hostname,
		)
	}

	logger.Error("🚨 CRITICAL SECURITY WARNING: Running OAuth server over HTTP",
		"issuer", config.Issuer,
		"hostname", hostname,
		"risk", "All tokens and credentials exposed to network sniffing and MITM attacks",
		"action_required", "Switch to HTTPS immediately",
		"learn_more", oauth21SecurityBestPracticesURL)
	return nil
}

func validateAllowedRedirectURI(uri string) error {
	parsed, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid allowed redirect URI %q: %w", uri, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("allowed redirect URI must be absolute (got %q)", uri)
	}
	if parsed.Fragment != "" {
		return fmt.Errorf("allowed redirect URI must not contain a fragment (got %q)", uri)
	}
	return nil
}
