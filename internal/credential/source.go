package credential

import (
	"context"
	"fmt"
	"time"

	"github.com/tinywideclouds/go-reminder-service/pkg/dispatch"
	"golang.org/x/oauth2"
)

// Source hands out bearer credentials for provider calls.
type Source interface {
	Bearer(ctx context.Context) (Assertion, error)
}

// SelfSigned mints a fresh assertion on every call.
type SelfSigned struct {
	account ServiceAccount
	now     func() time.Time
}

// NewSelfSigned returns a Source signing with sa. A nil clock means time.Now.
func NewSelfSigned(sa ServiceAccount, now func() time.Time) *SelfSigned {
	if now == nil {
		now = time.Now
	}
	return &SelfSigned{account: sa, now: now}
}

func (s *SelfSigned) Bearer(_ context.Context) (Assertion, error) {
	return Mint(s.account, s.now())
}

// TokenSource adapts src to an oauth2.TokenSource so SDK clients can
// authenticate with the same credential.
func TokenSource(ctx context.Context, src Source) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, src: src}
}

type tokenSource struct {
	ctx context.Context
	src Source
}

func (t *tokenSource) Token() (*oauth2.Token, error) {
	a, err := t.src.Bearer(t.ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: bearer source failed: %w", dispatch.ErrCredentialUnavailable, err)
	}
	return &oauth2.Token{
		AccessToken: a.Token,
		TokenType:   "Bearer",
		Expiry:      a.ExpiresAt,
	}, nil
}
