// Package config loads the authserver process configuration.
//
// Sources, lowest precedence first: env-default tags, the optional YAML file,
// the environment (after a .env file in the working directory has been loaded).
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"github.com/agencyflow/agency-oauth/instrumentation"
	"github.com/agencyflow/agency-oauth/server"
)

const redacted = "[REDACTED]"

// Config is the full process configuration
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	OAuth     OAuthConfig     `yaml:"oauth"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Log       LogConfig       `yaml:"log"`
	Security  SecurityConfig  `yaml:"security"`
}

// HTTPConfig configures the listener
type HTTPConfig struct {
	Addr              string        `yaml:"addr" env:"AUTHSERVER_HTTP_ADDR" env-default:":8080"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" env:"AUTHSERVER_HTTP_READ_HEADER_TIMEOUT" env-default:"10s"`
	ReadTimeout       time.Duration `yaml:"read_timeout" env:"AUTHSERVER_HTTP_READ_TIMEOUT" env-default:"30s"`
	WriteTimeout      time.Duration `yaml:"write_timeout" env:"AUTHSERVER_HTTP_WRITE_TIMEOUT" env-default:"30s"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" env:"AUTHSERVER_HTTP_IDLE_TIMEOUT" env-default:"120s"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" env:"AUTHSERVER_HTTP_SHUTDOWN_TIMEOUT" env-default:"15s"`
}

// OAuthConfig maps onto server.Config
type OAuthConfig struct {
	Issuer                 string        `yaml:"issuer" env:"AUTHSERVER_ISSUER"`
	ResourceURL            string        `yaml:"resource_url" env:"AUTHSERVER_RESOURCE_URL"`
	ResourceName           string        `yaml:"resource_name" env:"AUTHSERVER_RESOURCE_NAME"`
	ServiceDocumentation   string        `yaml:"service_documentation" env:"AUTHSERVER_SERVICE_DOCUMENTATION"`
	AllowedRedirectURIs    []string      `yaml:"allowed_redirect_uris" env:"AUTHSERVER_ALLOWED_REDIRECT_URIS" env-separator:","`
	StaticClientID         string        `yaml:"static_client_id" env:"AUTHSERVER_STATIC_CLIENT_ID"`
	StaticClientSecret     string        `yaml:"static_client_secret" env:"AUTHSERVER_STATIC_CLIENT_SECRET"`
	AuthorizationCodeTTL   int64         `yaml:"authorization_code_ttl" env:"AUTHSERVER_AUTHORIZATION_CODE_TTL" env-default:"300"`
	AccessTokenTTL         int64         `yaml:"access_token_ttl" env:"AUTHSERVER_ACCESS_TOKEN_TTL" env-default:"86400"`
	ConsentTTL             int64         `yaml:"consent_ttl" env:"AUTHSERVER_CONSENT_TTL" env-default:"600"`
	StorageCleanupInterval time.Duration `yaml:"storage_cleanup_interval" env:"AUTHSERVER_STORAGE_CLEANUP_INTERVAL" env-default:"10m"`
	ConsentSigningKey      string        `yaml:"consent_signing_key" env:"AUTHSERVER_CONSENT_SIGNING_KEY"`
	RequireSignedConsent   bool          `yaml:"require_signed_consent" env:"AUTHSERVER_REQUIRE_SIGNED_CONSENT"`
	TrustProxy             bool          `yaml:"trust_proxy" env:"AUTHSERVER_TRUST_PROXY"`
	TrustedProxyCount      int           `yaml:"trusted_proxy_count" env:"AUTHSERVER_TRUSTED_PROXY_COUNT" env-default:"1"`
	AllowInsecureHTTP      bool          `yaml:"allow_insecure_http" env:"AUTHSERVER_ALLOW_INSECURE_HTTP"`
}

// TelemetryConfig maps onto instrumentation.Config
type TelemetryConfig struct {
	// Disabled turns metrics and tracing off. Zero values are overwritten by
	// env-default, so on-by-default switches are expressed as their negation.
	Disabled        bool   `yaml:"disabled" env:"AUTHSERVER_TELEMETRY_DISABLED"`
	ServiceName     string `yaml:"service_name" env:"AUTHSERVER_TELEMETRY_SERVICE_NAME" env-default:"agency-oauth"`
	MetricsExporter string `yaml:"metrics_exporter" env:"AUTHSERVER_TELEMETRY_METRICS_EXPORTER" env-default:"prometheus"`
	TracesExporter  string `yaml:"traces_exporter" env:"AUTHSERVER_TELEMETRY_TRACES_EXPORTER" env-default:"none"`
	LogClientIPs    bool   `yaml:"log_client_ips" env:"AUTHSERVER_TELEMETRY_LOG_CLIENT_IPS"`
}

// LogConfig selects the logger
type LogConfig struct {
	Level  string `yaml:"level" env:"AUTHSERVER_LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"AUTHSERVER_LOG_FORMAT" env-default:"text"`
}

// SecurityConfig configures rate limiting and auditing
type SecurityConfig struct {
	RateLimitRPS   float64 `yaml:"rate_limit_rps" env:"AUTHSERVER_RATE_LIMIT_RPS" env-default:"10"`
	RateLimitBurst int     `yaml:"rate_limit_burst" env:"AUTHSERVER_RATE_LIMIT_BURST" env-default:"20"`
	AuditDisabled  bool    `yaml:"audit_disabled" env:"AUTHSERVER_AUDIT_DISABLED"`
	HashAuditIPs   bool    `yaml:"hash_audit_ips" env:"AUTHSERVER_HASH_AUDIT_IPS"`
}

// Load reads .env from the working directory if present, then path (when not empty)
// and the environment.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	var cfg Config
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		return &cfg, nil
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	return &cfg, nil
}

// Server returns the OAuth server configuration
func (c *Config) Server() *server.Config {
	return &server.Config{
		Issuer:                 c.OAuth.Issuer,
		ResourceURL:            c.OAuth.ResourceURL,
		ResourceName:           c.OAuth.ResourceName,
		ServiceDocumentation:   c.OAuth.ServiceDocumentation,
		AllowedRedirectURIs:    append([]string(nil), c.OAuth.AllowedRedirectURIs...),
		StaticClientID:         c.OAuth.StaticClientID,
		StaticClientSecret:     c.OAuth.StaticClientSecret,
		AuthorizationCodeTTL:   c.OAuth.AuthorizationCodeTTL,
		AccessTokenTTL:         c.OAuth.AccessTokenTTL,
		ConsentTTL:             c.OAuth.ConsentTTL,
		StorageCleanupInterval: c.OAuth.StorageCleanupInterval,
		ConsentSigningKey:      c.OAuth.ConsentSigningKey,
		RequireSignedConsent:   c.OAuth.RequireSignedConsent,
		TrustProxy:             c.OAuth.TrustProxy,
		TrustedProxyCount:      c.OAuth.TrustedProxyCount,
		AllowInsecureHTTP:      c.OAuth.AllowInsecureHTTP,
	}
}

// Instrumentation returns the telemetry configuration for the given build version
func (c *Config) Instrumentation(version string) instrumentation.Config {
	return instrumentation.Config{
		ServiceName:     c.Telemetry.ServiceName,
		ServiceVersion:  version,
		Enabled:         !c.Telemetry.Disabled,
		MetricsExporter: c.Telemetry.MetricsExporter,
		TracesExporter:  c.Telemetry.TracesExporter,
		LogClientIPs:    c.Telemetry.LogClientIPs,
	}
}

// Redacted returns a copy safe to print
func (c *Config) Redacted() *Config {
	out := *c
	out.OAuth.AllowedRedirectURIs = append([]string(nil), c.OAuth.AllowedRedirectURIs...)
	if out.OAuth.StaticClientSecret != "" {
		out.OAuth.StaticClientSecret = redacted
	}
	if out.OAuth.ConsentSigningKey != "" {
		out.OAuth.ConsentSigningKey = redacted
	}
	return &out
}
