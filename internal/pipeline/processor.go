package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-reminder-service/internal/notify"
)

// RequestHandler is satisfied by *notify.Handler.
type RequestHandler interface {
	Handle(ctx context.Context, req notify.Request) (notify.Response, error)
}

// NewProcessor hands each request to the notification handler.
// Gated requests and partial per-token failures are acknowledged; only
// request-level failures (credential, storage, provider unreachable) are
// returned so the message is redelivered.
func NewProcessor(
	handler RequestHandler,
	logger *slog.Logger,
) messagepipeline.StreamProcessor[notify.Request] {

	return func(ctx context.Context, original messagepipeline.Message, request *notify.Request) error {
		procLogger := logger.With(
			"user", request.UserID,
			"type", request.Type,
			"pubsub_msg_id", original.ID,
		)

		resp, err := handler.Handle(ctx, *request)
		if err != nil {
			if errors.Is(err, notify.ErrUnsupportedType) || errors.Is(err, notify.ErrInvalidRequest) {
				procLogger.Warn("Dropping invalid request", "err", err)
				return nil
			}
			procLogger.Error("Notification request failed", "err", err)
			return err // Retryable
		}

		if !resp.Success {
			procLogger.Info("Notification not sent", "reason", resp.Message)
			return nil
		}
		procLogger.Info("Notification dispatched", "sent", resp.Sent, "failed", resp.Failed)
		return nil
	}
}
