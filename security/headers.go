package security

import (
	"net/http"
	"net/url"
)

const (
	// apiContentSecurityPolicy blocks every resource type; JSON responses load nothing
	apiContentSecurityPolicy = "default-src 'none'; frame-ancestors 'none'"

	// consentContentSecurityPolicy allows the consent page's inline styles only.
	// form-action is left unset: browsers apply it to the redirect that follows the POST.
	consentContentSecurityPolicy = "default-src 'none'; style-src 'unsafe-inline'; frame-ancestors 'none'; base-uri 'none'"
)

// SetSecurityHeaders sets the headers shared by every OAuth response
func SetSecurityHeaders(w http.ResponseWriter, serverURL string) {
	setCommonHeaders(w, serverURL)
	w.Header().Set("Content-Security-Policy", apiContentSecurityPolicy)
}

// SetConsentPageHeaders sets the security headers for the HTML consent page
func SetConsentPageHeaders(w http.ResponseWriter, serverURL string) {
	setCommonHeaders(w, serverURL)
	w.Header().Set("Content-Security-Policy", consentContentSecurityPolicy)
}

func setCommonHeaders(w http.ResponseWriter, serverURL string) {
	h := w.Header()

	// Prevent clickjacking; the consent page must never be framed
	h.Set("X-Frame-Options", "DENY")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Referrer-Policy", "no-referrer")

	if parsed, err := url.Parse(serverURL); err == nil && parsed.Scheme == "https" {
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}

	// Codes and tokens must not be cached by browsers or intermediaries
	h.Set("Cache-Control", "no-store")
	h.Set("Pragma", "no-cache")
}
