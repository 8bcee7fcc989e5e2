package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-microservice-base/pkg/response"
	"github.com/tinywideclouds/go-reminder-service/internal/notify"
	"github.com/tinywideclouds/go-reminder-service/pkg/dispatch"
)

// maxRequestBody caps the send request body.
const maxRequestBody = 4 << 10

// RequestHandler is satisfied by *notify.Handler.
type RequestHandler interface {
	Handle(ctx context.Context, req notify.Request) (notify.Response, error)
}

// NotifyAPI exposes the send endpoint to trusted backend callers.
type NotifyAPI struct {
	Handler RequestHandler
	Logger  *slog.Logger
}

func NewNotifyAPI(handler RequestHandler, logger *slog.Logger) *NotifyAPI {
	return &NotifyAPI{
		Handler: handler,
		Logger:  logger,
	}
}

func (api *NotifyAPI) Send(w http.ResponseWriter, r *http.Request) {
	var req notify.Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	resp, err := api.Handler.Handle(r.Context(), req)
	if err != nil {
		status, msg := statusFor(err)
		if status >= http.StatusInternalServerError {
			api.Logger.Error("Send: request failed", "user", req.UserID, "type", req.Type, "err", err)
		}
		response.WriteJSONError(w, status, msg)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		api.Logger.Warn("Send: failed to write response", "err", err)
	}
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, notify.ErrUnsupportedType), errors.Is(err, notify.ErrInvalidRequest):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, dispatch.ErrProviderUnreachable):
		return http.StatusBadGateway, "messaging provider unreachable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
