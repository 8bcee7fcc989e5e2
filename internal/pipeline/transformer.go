// Package pipeline contains the core message processing components for the service.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-reminder-service/internal/notify"
)

// NotificationRequestTransformer is a dataflow Transformer that unmarshals
// and validates a raw message payload into a notify.Request.
//
// Malformed JSON, an unsupported type or a missing user set skip=true so the
// StreamingService can handle the Nack/DLQ logic.
func NotificationRequestTransformer(
	_ context.Context,
	msg *messagepipeline.Message,
) (*notify.Request, bool, error) {
	var req notify.Request

	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		return nil, true, fmt.Errorf("failed to unmarshal notification request from message %s: %w", msg.ID, err)
	}

	if err := req.Validate(); err != nil {
		return nil, true, fmt.Errorf("invalid notification request in message %s: %w", msg.ID, err)
	}

	return &req, false, nil
}
