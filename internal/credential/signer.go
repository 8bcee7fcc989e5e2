// Package credential mints the bearer credential presented to the messaging
// provider: a JWT signed with a service-account RSA key.
package credential

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AssertionLifetime is how long a minted assertion stays valid.
const AssertionLifetime = time.Hour

var (
	// ErrInvalidConfig is returned when the service account is missing a required field.
	ErrInvalidConfig = errors.New("invalid service account config")
	// ErrInvalidKey is returned when the private key cannot be decoded as an RSA key.
	ErrInvalidKey = errors.New("invalid service account private key")
)

// ServiceAccount is the identity used to sign assertions. It is loaded once
// per process and never mutated.
type ServiceAccount struct {
	IssuerEmail string
	// PrivateKeyPEM is a PKCS8 (or PKCS1) PEM encoded RSA private key.
	PrivateKeyPEM string
	Audience      string
	Scope         string
	ProjectID     string
}

// CacheKey identifies the assertions this account produces.
func (sa ServiceAccount) CacheKey() string {
	return sa.IssuerEmail + "|" + sa.Audience + "|" + sa.Scope
}

func (sa ServiceAccount) validate() error {
	var missing []string
	if sa.IssuerEmail == "" {
		missing = append(missing, "issuer email")
	}
	if sa.Audience == "" {
		missing = append(missing, "audience")
	}
	if sa.Scope == "" {
		missing = append(missing, "scope")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidConfig, strings.Join(missing, ", "))
	}
	return nil
}

// Assertion is a signed bearer token and its validity window.
type Assertion struct {
	Token     string    `json:"token"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ValidAt reports whether the assertion is still usable at t with at least
// margin left before it expires.
func (a Assertion) ValidAt(t time.Time, margin time.Duration) bool {
	return a.Token != "" && t.Add(margin).Before(a.ExpiresAt)
}

// Mint builds and signs an RS256 assertion for sa, issued at now.
//
// The header is {"alg":"RS256","typ":"JWT"} and the payload carries iss, sub
// (equal to iss), aud, iat, exp (iat + one hour) and scope. Mint has no side
// effects.
func Mint(sa ServiceAccount, now time.Time) (Assertion, error) {
	if err := sa.validate(); err != nil {
		return Assertion{}, err
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM([]byte(normalizePEM(sa.PrivateKeyPEM)))
	if err != nil {
		return Assertion{}, fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}

	issuedAt := now.Unix()
	expiresAt := issuedAt + int64(AssertionLifetime/time.Second)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":   sa.IssuerEmail,
		"sub":   sa.IssuerEmail,
		"aud":   sa.Audience,
		"iat":   issuedAt,
		"exp":   expiresAt,
		"scope": sa.Scope,
	})

	signed, err := token.SignedString(key)
	if err != nil {
		return Assertion{}, fmt.Errorf("failed to sign assertion: %w", err)
	}

	return Assertion{
		Token:     signed,
		IssuedAt:  time.Unix(issuedAt, 0),
		ExpiresAt: time.Unix(expiresAt, 0),
	}, nil
}

// normalizePEM undoes the "\n" escaping keys pick up when passed through
// environment variables or JSON.
func normalizePEM(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, `\n`, "\n"))
}
