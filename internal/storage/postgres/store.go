package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/tinywideclouds/go-reminder-service/pkg/dispatch"
)

var _ dispatch.Store = (*Store)(nil)

type Store struct {
	db *DB
}

func NewStore(db *DB) *Store { return &Store{db: db} }

const (
	qGetPreference = `
SELECT meal_reminders_enabled, weekly_reports_enabled
FROM notification_preferences
WHERE user_id = $1;
`

	qUpsertPreference = `
INSERT INTO notification_preferences (user_id, meal_reminders_enabled, weekly_reports_enabled)
VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE
SET meal_reminders_enabled = EXCLUDED.meal_reminders_enabled,
    weekly_reports_enabled = EXCLUDED.weekly_reports_enabled,
    updated_at = NOW();
`

	qInsertToken = `
INSERT INTO device_tokens (user_id, push_token)
VALUES ($1, $2)
ON CONFLICT (user_id, push_token) DO UPDATE SET updated_at = NOW();
`

	qListTokens = `
SELECT user_id, push_token
FROM device_tokens
WHERE user_id = $1
ORDER BY created_at, push_token;
`

	qDeleteToken = `DELETE FROM device_tokens WHERE user_id = $1 AND push_token = $2;`
)

func (s *Store) GetPreference(ctx context.Context, userID string) (*dispatch.NotificationPreference, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	pref := dispatch.NotificationPreference{UserID: userID}
	err := s.db.Pool.QueryRow(ctx, qGetPreference, userID).Scan(&pref.MealRemindersEnabled, &pref.WeeklyReportsEnabled)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preference: %w", err)
	}
	return &pref, nil
}

func (s *Store) SetPreference(ctx context.Context, pref dispatch.NotificationPreference) error {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	if _, err := s.db.Pool.Exec(ctx, qUpsertPreference, pref.UserID, pref.MealRemindersEnabled, pref.WeeklyReportsEnabled); err != nil {
		return fmt.Errorf("upsert preference: %w", err)
	}
	return nil
}

func (s *Store) RegisterToken(ctx context.Context, token dispatch.DeviceToken) error {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	if _, err := s.db.Pool.Exec(ctx, qInsertToken, token.UserID, token.PushToken); err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

func (s *Store) ListTokens(ctx context.Context, userID string) ([]dispatch.DeviceToken, error) {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.Pool.Query(ctx, qListTokens, userID)
	if err != nil {
		return nil, fmt.Errorf("list tokens: %w", err)
	}
	tokens, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (dispatch.DeviceToken, error) {
		var t dispatch.DeviceToken
		err := row.Scan(&t.UserID, &t.PushToken)
		return t, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan tokens: %w", err)
	}
	return tokens, nil
}

// DeleteToken removes the row if present; a missing row is not an error.
func (s *Store) DeleteToken(ctx context.Context, token dispatch.DeviceToken) error {
	ctx, cancel := s.db.withTimeout(ctx)
	defer cancel()

	if _, err := s.db.Pool.Exec(ctx, qDeleteToken, token.UserID, token.PushToken); err != nil {
		return fmt.Errorf("delete token: %w", err)
	}
	return nil
}
