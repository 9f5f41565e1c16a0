package security

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	// DefaultConsentTTL is how long a rendered consent page stays valid
	DefaultConsentTTL = 10 * time.Minute

	consentKeyLength = 32
	consentAudience  = "consent"
)

var (
	// ErrConsentTokenInvalid is returned when a consent token fails signature or expiry checks
	ErrConsentTokenInvalid = errors.New("consent token invalid")

	// ErrConsentMismatch is returned when a valid consent token was issued for different parameters
	ErrConsentMismatch = errors.New("consent token does not match request")
)

// ConsentParams are the authorization parameters a consent page was rendered for
type ConsentParams struct {
	ClientID      string `json:"client_id"`
	RedirectURI   string `json:"redirect_uri"`
	CodeChallenge string `json:"code_challenge"`
	State         string `json:"state,omitempty"`
}

type consentClaims struct {
	ConsentParams
	jwt.RegisteredClaims
}

// ConsentSigner binds the consent form POST to the GET that rendered it, so the
// decision cannot be replayed with altered parameters.
type ConsentSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewConsentSigner creates a signer. An empty key is replaced by 32 random bytes,
// which invalidates outstanding consent pages on restart.
func NewConsentSigner(key []byte, ttl time.Duration, now func() time.Time) (*ConsentSigner, error) {
	if len(key) == 0 {
		key = make([]byte, consentKeyLength)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate consent signing key: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = DefaultConsentTTL
	}
	if now == nil {
		now = time.Now
	}
	return &ConsentSigner{key: key, ttl: ttl, now: now}, nil
}

// Sign returns an HS256 token over params
func (s *ConsentSigner) Sign(params ConsentParams) (string, error) {
	issued := s.now()
	claims := consentClaims{
		ConsentParams: params,
		RegisteredClaims: jwt.RegisteredClaims{
			Audience:  jwt.ClaimStrings{consentAudience},
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign consent token: %w", err)
	}
	return signed, nil
}

// Verify checks the token signature and expiry and that it was issued for want
func (s *ConsentSigner) Verify(token string, want ConsentParams) error {
	var claims consentClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(consentAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrConsentTokenInvalid, err)
	}

	if claims.ConsentParams != want {
		return ErrConsentMismatch
	}
	return nil
}
