// Package notify turns a notification request into a dispatched push.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tinywideclouds/go-reminder-service/internal/credential"
	"github.com/tinywideclouds/go-reminder-service/internal/metrics"
	"github.com/tinywideclouds/go-reminder-service/internal/recipient"
	"github.com/tinywideclouds/go-reminder-service/pkg/dispatch"
)

var (
	ErrUnsupportedType = errors.New("unsupported notification type")
	ErrInvalidRequest  = errors.New("invalid notification request")
)

// Request is the inbound trigger.
type Request struct {
	Type   dispatch.NotificationType `json:"type"`
	UserID string                    `json:"userId"`
}

// Validate checks the request shape without touching any collaborator.
func (r Request) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("%w: %q", ErrUnsupportedType, r.Type)
	}
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("%w: userId is required", ErrInvalidRequest)
	}
	return nil
}

// Response is the caller-facing result. A gated request is not an error:
// it reports Success false with the gate reason.
type Response struct {
	Success bool
	Sent    int
	Failed  int
	Message string
	// Summary carries the per-token detail of a dispatched request.
	Summary dispatch.DispatchSummary
}

// MarshalJSON renders {success, sent, failed} or {success, message}.
func (r Response) MarshalJSON() ([]byte, error) {
	if r.Success {
		return json.Marshal(struct {
			Success bool `json:"success"`
			Sent    int  `json:"sent"`
			Failed  int  `json:"failed"`
		}{r.Success, r.Sent, r.Failed})
	}
	return json.Marshal(struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}{r.Success, r.Message})
}

// Resolver is satisfied by *recipient.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, userID string, t dispatch.NotificationType) (recipient.Resolution, error)
}

// Dispatcher is satisfied by *fanout.Dispatcher.
type Dispatcher interface {
	DispatchAll(ctx context.Context, bearer string, msg dispatch.Message, tokens []dispatch.DeviceToken) (dispatch.DispatchSummary, error)
}

// Recorder is satisfied by *metrics.DispatchMetrics.
type Recorder interface {
	RecordRequest(t dispatch.NotificationType, result string)
}

// Handler orchestrates resolve, credential and dispatch for one request.
type Handler struct {
	resolver   Resolver
	source     credential.Source
	dispatcher Dispatcher
	recorder   Recorder
	logger     *slog.Logger
}

// NewHandler wires the handler. recorder may be nil.
func NewHandler(resolver Resolver, source credential.Source, dispatcher Dispatcher, recorder Recorder, logger *slog.Logger) *Handler {
	return &Handler{
		resolver:   resolver,
		source:     source,
		dispatcher: dispatcher,
		recorder:   recorder,
		logger:     logger.With("component", "NotificationHandler"),
	}
}

// Handle validates req, resolves recipients and, unless gated, obtains one
// bearer credential and fans the message out to every device.
func (h *Handler) Handle(ctx context.Context, req Request) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, err
	}
	msg, ok := MessageFor(req.Type)
	if !ok {
		return Response{}, fmt.Errorf("%w: no message for %q", ErrUnsupportedType, req.Type)
	}
	log := h.logger.With("user", req.UserID, "type", req.Type)

	res, err := h.resolver.Resolve(ctx, req.UserID, req.Type)
	if err != nil {
		h.record(req.Type, metrics.ResultError)
		return Response{}, err
	}
	if res.Gated {
		log.Info("Request gated", "reason", res.Reason)
		h.record(req.Type, metrics.ResultGated)
		return Response{Success: false, Message: res.Reason}, nil
	}

	assertion, err := h.source.Bearer(ctx)
	if err != nil {
		log.Error("Failed to obtain provider credential", "err", err)
		h.record(req.Type, metrics.ResultError)
		return Response{}, fmt.Errorf("failed to obtain provider credential: %w", err)
	}

	summary, err := h.dispatcher.DispatchAll(ctx, assertion.Token, msg, res.Tokens)
	if err != nil {
		log.Error("Dispatch failed", "err", err)
		h.record(req.Type, metrics.ResultError)
		return Response{}, err
	}

	h.record(req.Type, metrics.ResultDispatched)
	return Response{
		Success: true,
		Sent:    summary.SentCount,
		Failed:  summary.FailedCount,
		Summary: summary,
	}, nil
}

func (h *Handler) record(t dispatch.NotificationType, result string) {
	if h.recorder != nil {
		h.recorder.RecordRequest(t, result)
	}
}
