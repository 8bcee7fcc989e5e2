package fcm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/http"

	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"
	"github.com/tinywideclouds/go-reminder-service/pkg/dispatch"
	"golang.org/x/oauth2"
)

// MessagingClient defines the subset of the Firebase Messaging API we use.
// This interface allows us to mock the client for unit testing.
type MessagingClient interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// SDKSender delivers through the Firebase Admin SDK. The SDK authenticates
// itself (see credential.TokenSource), so the per-call bearer is unused.
type SDKSender struct {
	client      MessagingClient
	credentials oauth2.TokenSource
	hints       Hints
	logger      *slog.Logger
}

// NewSDKSender accepts the concrete client but stores it as the interface.
// Note: *messaging.Client automatically satisfies this interface.
//
// credentials is the token source the client was built with. When set, a
// failure without a provider response is checked against it so credential
// failures are not reported as transport failures. It may be nil.
func NewSDKSender(client MessagingClient, credentials oauth2.TokenSource, hints Hints, logger *slog.Logger) *SDKSender {
	return &SDKSender{
		client:      client,
		credentials: credentials,
		hints:       hints,
		logger:      logger.With("component", "FCMSDKSender"),
	}
}

func (s *SDKSender) Send(ctx context.Context, _ string, token string, msg dispatch.Message) error {
	badge := s.hints.Badge
	m := &messaging.Message{
		Token: token,
		Data:  maps.Clone(msg.Data),
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Android: &messaging.AndroidConfig{
			Priority: "high",
			Notification: &messaging.AndroidNotification{
				Sound:     s.hints.Sound,
				ChannelID: s.hints.AndroidChannelID,
			},
		},
		APNS: &messaging.APNSConfig{
			Headers: map[string]string{"apns-priority": "10"},
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound:            s.hints.Sound,
					Badge:            &badge,
					ContentAvailable: true,
				},
			},
		},
	}

	if _, err := s.client.Send(ctx, m); err != nil {
		return s.classify(err)
	}
	return nil
}

func (s *SDKSender) classify(err error) error {
	switch {
	case errors.Is(err, dispatch.ErrCredentialUnavailable):
		return err
	case messaging.IsRegistrationTokenNotRegistered(err):
		return &dispatch.ProviderError{HTTPStatus: http.StatusNotFound, Status: "NOT_FOUND", ErrorCode: "UNREGISTERED", Message: err.Error()}
	case messaging.IsInvalidArgument(err):
		return &dispatch.ProviderError{HTTPStatus: http.StatusBadRequest, Status: "INVALID_ARGUMENT", Message: err.Error()}
	}

	if resp := errorutils.HTTPResponse(err); resp != nil {
		return &dispatch.ProviderError{HTTPStatus: resp.StatusCode, Status: CanonicalStatus(resp.StatusCode), Message: err.Error()}
	}

	// The SDK flattens token source failures into plain transport errors.
	if s.credentials != nil {
		if _, tokErr := s.credentials.Token(); tokErr != nil {
			s.logger.Warn("FCM credential unavailable", "err", tokErr)
			return fmt.Errorf("%w: %w", dispatch.ErrCredentialUnavailable, tokErr)
		}
	}
	return fmt.Errorf("fcm sdk transport failed: %w", err)
}

// CanonicalStatus maps an FCM v1 HTTP status to its canonical error status,
// or "" when the code has no fixed mapping.
func CanonicalStatus(code int) string {
	switch code {
	case http.StatusBadRequest:
		return "INVALID_ARGUMENT"
	case http.StatusUnauthorized:
		return "UNAUTHENTICATED"
	case http.StatusForbidden:
		return "PERMISSION_DENIED"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusTooManyRequests:
		return "RESOURCE_EXHAUSTED"
	case http.StatusInternalServerError:
		return "INTERNAL"
	case http.StatusServiceUnavailable:
		return "UNAVAILABLE"
	default:
		return ""
	}
}
