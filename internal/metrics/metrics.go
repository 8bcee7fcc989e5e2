// Package metrics provides the Prometheus metrics for notification dispatch.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tinywideclouds/go-reminder-service/pkg/dispatch"
)

// Request results recorded by RecordRequest.
const (
	ResultDispatched = "dispatched"
	ResultGated      = "gated"
	ResultError      = "error"
)

// DispatchMetrics contains the metrics recorded by the handler and the dispatcher.
type DispatchMetrics struct {
	RequestsTotal     *prometheus.CounterVec   // Requests by notification type and result
	SendsTotal        *prometheus.CounterVec   // Per-token sends by outcome
	SendDuration      *prometheus.HistogramVec // Provider call latency by outcome
	TokensPrunedTotal prometheus.Counter       // Permanently invalid tokens deleted

	registry *prometheus.Registry
}

// NewDispatchMetrics creates the metrics and registers them with registry.
// A nil registry gets a fresh one.
func NewDispatchMetrics(registry *prometheus.Registry) (*DispatchMetrics, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &DispatchMetrics{
		registry: registry,
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reminder_requests_total",
				Help: "Total number of notification requests by notification type and result",
			},
			[]string{"notification_type", "result"}, // result: dispatched, gated, error
		),
		SendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reminder_sends_total",
				Help: "Total number of per-token provider sends by outcome",
			},
			[]string{"outcome"}, // outcome: sent, transient, permanent_token, unreachable, credential, skipped
		),
		SendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reminder_send_duration_seconds",
				Help:    "Time taken for one provider send by outcome",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"outcome"},
		),
		TokensPrunedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "reminder_tokens_pruned_total",
				Help: "Total number of permanently invalid device tokens deleted",
			},
		),
	}

	for _, c := range []prometheus.Collector{m.RequestsTotal, m.SendsTotal, m.SendDuration, m.TokensPrunedTotal} {
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("failed to register dispatch metrics: %w", err)
		}
	}
	return m, nil
}

// RecordSend counts one send outcome and its latency.
func (m *DispatchMetrics) RecordSend(outcome dispatch.DispatchOutcome, elapsed time.Duration) {
	label := string(dispatch.StatusSent)
	if outcome.Status == dispatch.StatusFailed {
		label = string(outcome.Kind)
	}
	m.SendsTotal.WithLabelValues(label).Inc()
	if outcome.Kind != dispatch.FailureSkipped {
		m.SendDuration.WithLabelValues(label).Observe(elapsed.Seconds())
	}
}

// RecordPrune counts one deleted token.
func (m *DispatchMetrics) RecordPrune() {
	m.TokensPrunedTotal.Inc()
}

// RecordRequest counts one handled request.
func (m *DispatchMetrics) RecordRequest(t dispatch.NotificationType, result string) {
	m.RequestsTotal.WithLabelValues(string(t), result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *DispatchMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
