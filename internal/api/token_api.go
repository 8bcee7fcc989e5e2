package api

import (
	"encoding/json"
	"net/http"

	"log/slog"

	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-microservice-base/pkg/response"
	"github.com/tinywideclouds/go-reminder-service/pkg/dispatch"
)

// TokenAPI lets an authenticated user manage their devices and opt-ins.
type TokenAPI struct {
	Store  dispatch.Store
	Logger *slog.Logger
}

func NewTokenAPI(store dispatch.Store, logger *slog.Logger) *TokenAPI {
	return &TokenAPI{
		Store:  store,
		Logger: logger,
	}
}

type DeviceRequest struct {
	Token string `json:"token"`
}

type PreferenceRequest struct {
	MealRemindersEnabled bool `json:"mealRemindersEnabled"`
	WeeklyReportsEnabled bool `json:"weeklyReportsEnabled"`
}

func (api *TokenAPI) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.GetUserHandleFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req DeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if req.Token == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing token")
		return
	}

	if err := api.Store.RegisterToken(ctx, dispatch.DeviceToken{UserID: userID, PushToken: req.Token}); err != nil {
		api.Logger.Error("failed to register device", "user", userID, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (api *TokenAPI) UnregisterDevice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.GetUserHandleFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req DeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	if req.Token == "" {
		response.WriteJSONError(w, http.StatusBadRequest, "missing token")
		return
	}

	if err := api.Store.DeleteToken(ctx, dispatch.DeviceToken{UserID: userID, PushToken: req.Token}); err != nil {
		// Log but don't fail hard; idempotency is preferred for unregister
		api.Logger.Warn("failed to unregister device", "user", userID, "err", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

func (api *TokenAPI) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID, ok := middleware.GetUserHandleFromContext(ctx)
	if !ok {
		response.WriteJSONError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req PreferenceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.WriteJSONError(w, http.StatusBadRequest, "invalid json")
		return
	}

	pref := dispatch.NotificationPreference{
		UserID:               userID,
		MealRemindersEnabled: req.MealRemindersEnabled,
		WeeklyReportsEnabled: req.WeeklyReportsEnabled,
	}
	if err := api.Store.SetPreference(ctx, pref); err != nil {
		api.Logger.Error("failed to store preferences", "user", userID, "err", err)
		response.WriteJSONError(w, http.StatusInternalServerError, "storage failed")
		return
	}
	api.Logger.Info("UpdatePreferences: stored", "user", userID,
		"meal_reminders", pref.MealRemindersEnabled, "weekly_reports", pref.WeeklyReportsEnabled)

	w.WriteHeader(http.StatusNoContent)
}
