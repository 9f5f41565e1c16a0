// Package security holds the cross-cutting protections used by the authorization
// server's HTTP surface.
//
// # Rate Limiting
//
// RateLimiter keeps one token bucket per client IP. At most DefaultMaxLimiters keys
// are tracked; past that the least recently used key is evicted. Idle keys are
// removed by a cleanup loop owned by the caller:
//
//	limiter := security.NewRateLimiter(10, 20, logger)
//	limiter.Start(ctx)
//	defer limiter.Stop()
//
//	if !limiter.Allow(clientIP) {
//	    // respond 429
//	}
//
// # Consent Binding
//
// ConsentSigner issues a short-lived HS256 token over the parameters a consent page
// was rendered for. The decision POST carries the token back and Verify rejects any
// token whose parameters differ from the submitted form.
//
// # Audit Logging
//
// Auditor writes one structured "security_audit" record per event. IPs can be
// replaced by a truncated SHA-256 hash with SetHashIPs.
package security
