package credential

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/oauth2"
	oauthjwt "golang.org/x/oauth2/jwt"
)

// DefaultTokenURL is Google's OAuth2 token endpoint.
const DefaultTokenURL = "https://oauth2.googleapis.com/token"

// Exchange trades a signed assertion for an OAuth2 access token using the
// JWT-bearer grant (RFC 7523). Tokens are reused until they expire.
type Exchange struct {
	ts oauth2.TokenSource
}

// NewExchange configures the grant for sa against tokenURL. ctx is used for
// the token HTTP calls and should live as long as the Exchange.
func NewExchange(ctx context.Context, sa ServiceAccount, tokenURL string) (*Exchange, error) {
	if sa.IssuerEmail == "" || sa.Scope == "" {
		return nil, fmt.Errorf("%w: exchange requires issuer email and scope", ErrInvalidConfig)
	}
	if sa.PrivateKeyPEM == "" {
		return nil, fmt.Errorf("%w: empty private key", ErrInvalidKey)
	}
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}

	cfg := &oauthjwt.Config{
		Email:      sa.IssuerEmail,
		PrivateKey: []byte(normalizePEM(sa.PrivateKeyPEM)),
		Scopes:     strings.Fields(sa.Scope),
		TokenURL:   tokenURL,
		Expires:    AssertionLifetime,
	}
	return &Exchange{ts: cfg.TokenSource(ctx)}, nil
}

func (e *Exchange) Bearer(_ context.Context) (Assertion, error) {
	tok, err := e.ts.Token()
	if err != nil {
		return Assertion{}, fmt.Errorf("token exchange failed: %w", err)
	}
	expiry := tok.Expiry
	if expiry.IsZero() {
		expiry = time.Now().Add(AssertionLifetime)
	}
	return Assertion{
		Token:     tok.AccessToken,
		IssuedAt:  expiry.Add(-AssertionLifetime),
		ExpiresAt: expiry,
	}, nil
}
