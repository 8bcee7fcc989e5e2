package reminderservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/illmade-knight/go-dataflow/pkg/messagepipeline"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"github.com/tinywideclouds/go-microservice-base/pkg/middleware"
	"github.com/tinywideclouds/go-reminder-service/internal/api"
	"github.com/tinywideclouds/go-reminder-service/internal/credential"
	"github.com/tinywideclouds/go-reminder-service/internal/metrics"
	"github.com/tinywideclouds/go-reminder-service/internal/notify"
	"github.com/tinywideclouds/go-reminder-service/internal/pipeline"
	"github.com/tinywideclouds/go-reminder-service/pkg/dispatch"
	"github.com/tinywideclouds/go-reminder-service/reminderservice/config"
)

type Wrapper struct {
	*microservice.BaseServer
	// pipelineService is nil when no subscription is configured.
	pipelineService *messagepipeline.StreamingService[notify.Request]
	handler         *notify.Handler
	metrics         *metrics.DispatchMetrics
	logger          *slog.Logger
}

// New assembles the service. consumer may be nil, in which case only the
// HTTP trigger is served.
func New(
	cfg *config.Config,
	consumer messagepipeline.MessageConsumer,
	store dispatch.Store,
	sender dispatch.Sender,
	source credential.Source,
	authMiddleware func(http.Handler) http.Handler,
	logger *slog.Logger,
) (*Wrapper, error) {

	// 1. Base Server
	baseServer := microservice.NewBaseServer(logger, cfg.ListenAddr)

	// 2. Metrics
	dispatchMetrics, err := metrics.NewDispatchMetrics(nil)
	if err != nil {
		return nil, err
	}

	// 3. Request Handler
	handler := NewHandler(store, sender, source, cfg.Dispatch, dispatchMetrics, logger)

	w := &Wrapper{
		BaseServer: baseServer,
		handler:    handler,
		metrics:    dispatchMetrics,
		logger:     logger,
	}

	// 4. Pipeline
	if consumer != nil {
		streamingService, err := messagepipeline.NewStreamingService(
			messagepipeline.StreamingServiceConfig{NumWorkers: cfg.NumPipelineWorkers},
			consumer,
			pipeline.NotificationRequestTransformer,
			pipeline.NewProcessor(handler, logger),
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create streaming service: %w", err)
		}
		w.pipelineService = streamingService
	}

	// 5. APIs
	notifyAPI := api.NewNotifyAPI(handler, logger)
	tokenAPI := api.NewTokenAPI(store, logger)

	// Register Routes
	mux := baseServer.Mux()
	corsMiddleware := middleware.NewCorsMiddleware(cfg.CorsConfig, logger)

	handle := func(pattern string, handlerFunc http.HandlerFunc) {
		mux.Handle(pattern, corsMiddleware(authMiddleware(handlerFunc)))
	}

	// 1. Trigger (service-to-service, no CORS)
	mux.Handle("POST /api/v1/notifications/send", authMiddleware(http.HandlerFunc(notifyAPI.Send)))

	// 2. Devices and opt-ins for the authenticated user
	handle("POST /api/v1/devices/register", tokenAPI.RegisterDevice)
	handle("POST /api/v1/devices/unregister", tokenAPI.UnregisterDevice)
	handle("PUT /api/v1/preferences", tokenAPI.UpdatePreferences)

	// 3. Global OPTIONS for the API namespace (CORS preflight)
	mux.Handle("OPTIONS /api/v1/", corsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Just returns 200 OK with CORS headers handled by middleware
	})))

	// 4. Dispatch metrics
	mux.Handle("GET /metrics/dispatch", dispatchMetrics.Handler())

	return w, nil
}

// Handler exposes the request handler shared by the HTTP and Pub/Sub triggers.
func (w *Wrapper) Handler() *notify.Handler {
	return w.handler
}

// Metrics exposes the dispatch metrics.
func (w *Wrapper) Metrics() *metrics.DispatchMetrics {
	return w.metrics
}

func (w *Wrapper) Start(ctx context.Context) error {
	if w.pipelineService != nil {
		w.logger.Info("Core processing pipeline starting...")
		if err := w.pipelineService.Start(ctx); err != nil {
			return fmt.Errorf("failed to start processing service: %w", err)
		}
	} else {
		w.logger.Info("No subscription configured, serving HTTP trigger only")
	}
	w.SetReady(true)
	w.logger.Info("Service is now ready.")
	return w.BaseServer.Start()
}

func (w *Wrapper) Shutdown(ctx context.Context) error {
	w.logger.Info("Shutting down service components...")
	var finalErr error
	if w.pipelineService != nil {
		if err := w.pipelineService.Stop(ctx); err != nil {
			w.logger.Error("Processing pipeline shutdown failed.", "err", err)
			finalErr = err
		}
	}
	if err := w.BaseServer.Shutdown(ctx); err != nil {
		w.logger.Error("HTTP server shutdown failed.", "err", err)
		finalErr = err
	}
	w.logger.Info("Service shutdown complete.")
	return finalErr
}
