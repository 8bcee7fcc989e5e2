package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tinywideclouds/go-reminder-service/pkg/dispatch"
)

// DefaultEndpoint is the FCM HTTP v1 API host.
const DefaultEndpoint = "https://fcm.googleapis.com"

// maxErrorBody bounds how much of a rejection body is read.
const maxErrorBody = 64 << 10

// HTTPSender posts one message per token to the FCM HTTP v1 send endpoint,
// authenticating with a caller-supplied bearer credential.
type HTTPSender struct {
	client  *http.Client
	sendURL string
	hints   Hints
	logger  *slog.Logger
}

// NewHTTPSender targets {baseURL}/v1/projects/{projectID}/messages:send.
// A nil client uses a plain http.Client; per-send deadlines come from the context.
func NewHTTPSender(baseURL, projectID string, hints Hints, client *http.Client, logger *slog.Logger) *HTTPSender {
	if baseURL == "" {
		baseURL = DefaultEndpoint
	}
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPSender{
		client:  client,
		sendURL: fmt.Sprintf("%s/v1/projects/%s/messages:send", strings.TrimRight(baseURL, "/"), projectID),
		hints:   hints,
		logger:  logger.With("component", "FCMHTTPSender"),
	}
}

// SendURL returns the endpoint messages are posted to.
func (s *HTTPSender) SendURL() string {
	return s.sendURL
}

func (s *HTTPSender) Send(ctx context.Context, bearer string, token string, msg dispatch.Message) error {
	body, err := json.Marshal(buildRequest(token, msg, s.hints))
	if err != nil {
		return fmt.Errorf("failed to marshal fcm payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.sendURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build fcm request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("fcm transport failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	perr := parseErrorBody(resp.StatusCode, raw)
	s.logger.Debug("FCM rejected message", "http_status", resp.StatusCode, "status", perr.Status, "error_code", perr.ErrorCode)
	return perr
}

// errorBody is the google.rpc.Status envelope FCM returns on rejection.
type errorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
		Details []struct {
			Type      string `json:"@type"`
			ErrorCode string `json:"errorCode"`
		} `json:"details"`
	} `json:"error"`
}

func parseErrorBody(httpStatus int, raw []byte) *dispatch.ProviderError {
	perr := &dispatch.ProviderError{HTTPStatus: httpStatus}

	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err != nil || eb.Error.Status == "" {
		// Unstructured body (e.g. a proxy error page); keep a short excerpt.
		perr.Message = strings.TrimSpace(string(raw))
		if len(perr.Message) > 256 {
			perr.Message = perr.Message[:256]
		}
		return perr
	}

	perr.Status = eb.Error.Status
	perr.Message = eb.Error.Message
	for _, d := range eb.Error.Details {
		if d.ErrorCode != "" {
			perr.ErrorCode = d.ErrorCode
			break
		}
	}
	return perr
}
