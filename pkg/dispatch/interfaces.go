// Package dispatch holds the contracts and domain models shared by the
// reminder service components.
package dispatch

import (
	"context"
)

// Sender defines the contract for a component that delivers one message to
// one device token through the messaging provider.
type Sender interface {
	// Send delivers msg to token, presenting bearer as the provider credential.
	// A provider rejection is returned as a *ProviderError; any other error
	// means the provider could not be reached.
	Send(ctx context.Context, bearer string, token string, msg Message) error
}

// PreferenceStore reads and writes per-user notification preferences.
type PreferenceStore interface {
	// GetPreference returns nil, nil when the user has no preference row.
	GetPreference(ctx context.Context, userID string) (*NotificationPreference, error)
	SetPreference(ctx context.Context, pref NotificationPreference) error
}

// TokenStore defines the contract for managing user device tokens.
// It allows the service to remember "where" to send notifications for a user.
type TokenStore interface {
	// RegisterToken adds a device token for a user. Registering the same
	// token twice is an upsert.
	RegisterToken(ctx context.Context, token DeviceToken) error

	// ListTokens retrieves all registered tokens for a user.
	ListTokens(ctx context.Context, userID string) ([]DeviceToken, error)

	// DeleteToken removes a token. Deleting a token that does not exist is not an error.
	DeleteToken(ctx context.Context, token DeviceToken) error
}

// Store is the persistence collaborator used by the service.
type Store interface {
	PreferenceStore
	TokenStore
}
