package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tinywideclouds/go-reminder-service/pkg/dispatch"
)

// FirestoreStore implements dispatch.Store using Google Cloud Firestore.
//
//	users/{userID}                      preference flags
//	users/{userID}/devices/{sha256(tok)} device tokens
type FirestoreStore struct {
	client *firestore.Client
	logger *slog.Logger
}

func NewFirestoreStore(client *firestore.Client, logger *slog.Logger) *FirestoreStore {
	return &FirestoreStore{client: client, logger: logger.With("component", "FirestoreStore")}
}

// deviceRecord is the internal DB representation of a registered device.
type deviceRecord struct {
	Platform  string    `firestore:"platform"`
	Token     string    `firestore:"token"`
	UpdatedAt time.Time `firestore:"updated_at"`
}

// --- Preferences ---

func (s *FirestoreStore) GetPreference(ctx context.Context, userID string) (*dispatch.NotificationPreference, error) {
	doc, err := s.userRef(userID).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get preferences for %s: %w", userID, err)
	}

	var pref dispatch.NotificationPreference
	if err := doc.DataTo(&pref); err != nil {
		return nil, fmt.Errorf("failed to decode preferences for %s: %w", userID, err)
	}
	pref.UserID = userID
	return &pref, nil
}

func (s *FirestoreStore) SetPreference(ctx context.Context, pref dispatch.NotificationPreference) error {
	// Merge so other fields on the user document survive.
	_, err := s.userRef(pref.UserID).Set(ctx, map[string]any{
		"meal_reminders_enabled": pref.MealRemindersEnabled,
		"weekly_reports_enabled": pref.WeeklyReportsEnabled,
		"updated_at":             time.Now(),
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("failed to set preferences for %s: %w", pref.UserID, err)
	}
	return nil
}

// --- Devices ---

func (s *FirestoreStore) RegisterToken(ctx context.Context, token dispatch.DeviceToken) error {
	// Use hash of token as Doc ID to prevent duplicates and hot-spotting
	record := deviceRecord{
		Platform:  "fcm",
		Token:     token.PushToken,
		UpdatedAt: time.Now(),
	}

	if _, err := s.deviceRef(token).Set(ctx, record); err != nil {
		return fmt.Errorf("failed to register token for %s: %w", token.UserID, err)
	}
	return nil
}

// DeleteToken removes the device doc. Deleting a missing doc succeeds.
func (s *FirestoreStore) DeleteToken(ctx context.Context, token dispatch.DeviceToken) error {
	if _, err := s.deviceRef(token).Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete token for %s: %w", token.UserID, err)
	}
	return nil
}

func (s *FirestoreStore) ListTokens(ctx context.Context, userID string) ([]dispatch.DeviceToken, error) {
	iter := s.devicesCollection(userID).Documents(ctx)
	defer iter.Stop()

	tokens := make([]dispatch.DeviceToken, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}

		var record deviceRecord
		if err := doc.DataTo(&record); err != nil || record.Token == "" {
			s.logger.Warn("Skipping unreadable device record", "user", userID, "doc", doc.Ref.ID, "err", err)
			continue
		}
		tokens = append(tokens, dispatch.DeviceToken{UserID: userID, PushToken: record.Token})
	}

	return tokens, nil
}

// --- Helpers ---

func (s *FirestoreStore) userRef(userID string) *firestore.DocumentRef {
	return s.client.Collection("users").Doc(userID)
}

// deviceRef: users/{userID}/devices/{deviceHash}
func (s *FirestoreStore) deviceRef(token dispatch.DeviceToken) *firestore.DocumentRef {
	return s.devicesCollection(token.UserID).Doc(hashToken(token.PushToken))
}

func (s *FirestoreStore) devicesCollection(userID string) *firestore.CollectionRef {
	return s.userRef(userID).Collection("devices")
}

func hashToken(t string) string {
	sum := sha256.Sum256([]byte(t))
	return hex.EncodeToString(sum[:])
}
