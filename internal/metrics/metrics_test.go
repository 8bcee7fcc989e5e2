package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tinywideclouds/go-reminder-service/internal/metrics"
	"github.com/tinywideclouds/go-reminder-service/pkg/dispatch"
)

func TestDispatchMetrics_Recording(t *testing.T) {
	m, err := metrics.NewDispatchMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordSend(dispatch.DispatchOutcome{Token: "a", Status: dispatch.StatusSent}, 20*time.Millisecond)
	m.RecordSend(dispatch.DispatchOutcome{Token: "b", Status: dispatch.StatusSent}, 30*time.Millisecond)
	m.RecordSend(dispatch.DispatchOutcome{Token: "c", Status: dispatch.StatusFailed, Kind: dispatch.FailurePermanentToken}, time.Millisecond)
	m.RecordSend(dispatch.DispatchOutcome{Token: "d", Status: dispatch.StatusFailed, Kind: dispatch.FailureSkipped}, 0)
	m.RecordPrune()
	m.RecordRequest(dispatch.TypeMealReminder, metrics.ResultDispatched)
	m.RecordRequest(dispatch.TypeWeeklyReport, metrics.ResultGated)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.SendsTotal.WithLabelValues("sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SendsTotal.WithLabelValues("permanent_token")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SendsTotal.WithLabelValues("skipped")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TokensPrunedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("meal_reminder", "dispatched")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("weekly_report", "gated")))
}

func TestDispatchMetrics_DuplicateRegistrationFails(t *testing.T) {
	registry := prometheus.NewRegistry()
	_, err := metrics.NewDispatchMetrics(registry)
	require.NoError(t, err)

	_, err = metrics.NewDispatchMetrics(registry)
	assert.Error(t, err)
}

func TestDispatchMetrics_Handler(t *testing.T) {
	m, err := metrics.NewDispatchMetrics(nil)
	require.NoError(t, err)
	m.RecordPrune()

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body, _ := io.ReadAll(rr.Body)
	assert.Contains(t, string(body), "reminder_tokens_pruned_total 1")
}
