// Package fcm delivers notifications through Firebase Cloud Messaging.
package fcm

import (
	"maps"

	"github.com/tinywideclouds/go-reminder-service/pkg/dispatch"
)

// Hints are the platform-specific delivery settings applied to every message.
type Hints struct {
	// Sound is played on both Android and iOS.
	Sound string
	// AndroidChannelID routes the notification to an Android notification channel.
	AndroidChannelID string
	// Badge is the iOS app icon badge count.
	Badge int
}

// DefaultHints are used when no hints are configured.
var DefaultHints = Hints{
	Sound:            "default",
	AndroidChannelID: "reminders",
	Badge:            1,
}

// sendRequest is the FCM HTTP v1 messages:send body.
type sendRequest struct {
	Message message `json:"message"`
}

type message struct {
	Token        string             `json:"token"`
	Notification *notificationBlock `json:"notification,omitempty"`
	Android      *androidConfig     `json:"android,omitempty"`
	APNS         *apnsConfig        `json:"apns,omitempty"`
	Data         map[string]string  `json:"data,omitempty"`
}

type notificationBlock struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

type androidConfig struct {
	Priority     string               `json:"priority"`
	Notification *androidNotification `json:"notification,omitempty"`
}

type androidNotification struct {
	Sound     string `json:"sound,omitempty"`
	ChannelID string `json:"channel_id,omitempty"`
}

type apnsConfig struct {
	Headers map[string]string `json:"headers,omitempty"`
	Payload apnsPayload       `json:"payload"`
}

type apnsPayload struct {
	Aps aps `json:"aps"`
}

type aps struct {
	Sound            string `json:"sound,omitempty"`
	Badge            int    `json:"badge"`
	ContentAvailable int    `json:"content-available"`
}

func buildRequest(token string, msg dispatch.Message, hints Hints) sendRequest {
	return sendRequest{
		Message: message{
			Token: token,
			Notification: &notificationBlock{
				Title: msg.Title,
				Body:  msg.Body,
			},
			Android: &androidConfig{
				Priority: "high",
				Notification: &androidNotification{
					Sound:     hints.Sound,
					ChannelID: hints.AndroidChannelID,
				},
			},
			APNS: &apnsConfig{
				Headers: map[string]string{"apns-priority": "10"},
				Payload: apnsPayload{Aps: aps{
					Sound:            hints.Sound,
					Badge:            hints.Badge,
					ContentAvailable: 1,
				}},
			},
			Data: maps.Clone(msg.Data),
		},
	}
}
