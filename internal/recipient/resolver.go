// Package recipient decides whether a user should receive a notification and
// to which devices.
package recipient

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tinywideclouds/go-reminder-service/pkg/dispatch"
)

// Gate reasons reported to the caller.
const (
	ReasonDisabled = "Notifications disabled"
	ReasonNoTokens = "no tokens"
)

// Resolution is either a set of tokens to notify or a gate reason.
type Resolution struct {
	Tokens []dispatch.DeviceToken
	// Gated is true when nothing should be sent; Reason says why.
	Gated  bool
	Reason string
}

// Resolver reads preferences and device tokens from the store.
type Resolver struct {
	store  dispatch.Store
	logger *slog.Logger
}

func NewResolver(store dispatch.Store, logger *slog.Logger) *Resolver {
	return &Resolver{store: store, logger: logger.With("component", "RecipientResolver")}
}

// Resolve returns the user's tokens when the user has opted in to t.
// A missing preference counts as opted out. Storage failures are returned as errors.
func (r *Resolver) Resolve(ctx context.Context, userID string, t dispatch.NotificationType) (Resolution, error) {
	pref, err := r.store.GetPreference(ctx, userID)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to read preferences for user %s: %w", userID, err)
	}
	if !pref.Allows(t) {
		r.logger.Debug("Notification gated by preference", "user", userID, "type", t, "has_preference", pref != nil)
		return Resolution{Gated: true, Reason: ReasonDisabled}, nil
	}

	tokens, err := r.store.ListTokens(ctx, userID)
	if err != nil {
		return Resolution{}, fmt.Errorf("failed to list tokens for user %s: %w", userID, err)
	}
	if len(tokens) == 0 {
		r.logger.Debug("No registered devices", "user", userID)
		return Resolution{Gated: true, Reason: ReasonNoTokens}, nil
	}
	return Resolution{Tokens: tokens}, nil
}
