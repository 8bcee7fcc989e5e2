package dispatch

import (
	"errors"
	"fmt"
)

// NotificationType selects the copy and the preference flag for a request.
type NotificationType string

const (
	TypeMealReminder NotificationType = "meal_reminder"
	TypeWeeklyReport NotificationType = "weekly_report"
)

// Valid reports whether t is one of the supported notification types.
func (t NotificationType) Valid() bool {
	return t == TypeMealReminder || t == TypeWeeklyReport
}

// NotificationPreference is the per-user opt-in row.
type NotificationPreference struct {
	UserID               string `json:"userId" firestore:"-"`
	MealRemindersEnabled bool   `json:"mealRemindersEnabled" firestore:"meal_reminders_enabled"`
	WeeklyReportsEnabled bool   `json:"weeklyReportsEnabled" firestore:"weekly_reports_enabled"`
}

// Allows reports whether the preference opts in to notifications of type t.
func (p *NotificationPreference) Allows(t NotificationType) bool {
	if p == nil {
		return false
	}
	switch t {
	case TypeMealReminder:
		return p.MealRemindersEnabled
	case TypeWeeklyReport:
		return p.WeeklyReportsEnabled
	default:
		return false
	}
}

// DeviceToken is a per-user, per-device push registration.
type DeviceToken struct {
	UserID    string `json:"userId"`
	PushToken string `json:"pushToken"`
}

// Message is the provider-independent content of one notification.
type Message struct {
	Type        NotificationType
	Title       string
	Body        string
	ClickAction string
	// Data is delivered to the client alongside the notification for routing.
	Data map[string]string
}

// OutcomeStatus is the per-token delivery result.
type OutcomeStatus string

const (
	StatusSent   OutcomeStatus = "sent"
	StatusFailed OutcomeStatus = "failed"
)

// FailureKind classifies a failed send.
type FailureKind string

const (
	// FailureTransient is a provider-side rejection that may succeed later.
	FailureTransient FailureKind = "transient"
	// FailurePermanentToken means the token will never be valid again.
	FailurePermanentToken FailureKind = "permanent_token"
	// FailureUnreachable means the request never got a provider response.
	FailureUnreachable FailureKind = "unreachable"
	// FailureCredential means the sender could not authenticate to the provider.
	FailureCredential FailureKind = "credential"
	// FailureSkipped means the send was not attempted because the caller went away.
	FailureSkipped FailureKind = "skipped"
)

// DispatchOutcome is the result of one send.
type DispatchOutcome struct {
	Token         string        `json:"token"`
	Status        OutcomeStatus `json:"status"`
	Kind          FailureKind   `json:"kind,omitempty"`
	FailureReason string        `json:"failureReason,omitempty"`
}

// DispatchSummary aggregates the outcomes of one fan-out.
type DispatchSummary struct {
	SentCount   int               `json:"sent"`
	FailedCount int               `json:"failed"`
	PrunedCount int               `json:"pruned"`
	Failures    []DispatchOutcome `json:"failures,omitempty"`
}

// ErrProviderUnreachable is returned when no send in a batch reached the provider.
var ErrProviderUnreachable = errors.New("messaging provider unreachable")

// ErrCredentialUnavailable is returned by senders that could not obtain
// credentials for the provider call.
var ErrCredentialUnavailable = errors.New("provider credential unavailable")

// ProviderError is a structured rejection returned by the messaging provider.
type ProviderError struct {
	HTTPStatus int
	// Status is the canonical error status, e.g. "NOT_FOUND".
	Status string
	// ErrorCode is the provider specific code, e.g. FCM's "UNREGISTERED".
	ErrorCode string
	Message   string
}

func (e *ProviderError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("provider rejected message: http %d %s (%s): %s", e.HTTPStatus, e.Status, e.ErrorCode, e.Message)
	}
	return fmt.Sprintf("provider rejected message: http %d %s: %s", e.HTTPStatus, e.Status, e.Message)
}

// PermanentToken reports whether the rejection means the device token itself is dead.
func (e *ProviderError) PermanentToken() bool {
	switch e.Status {
	case "INVALID_ARGUMENT", "NOT_FOUND":
		return true
	}
	switch e.ErrorCode {
	case "UNREGISTERED", "INVALID_ARGUMENT":
		return true
	}
	return false
}
