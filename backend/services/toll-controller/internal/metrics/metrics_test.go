package metrics_test

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tollbooth/backend/services/toll-controller/internal/metrics"
)

func TestMetrics_NilReceiverIsNoop(t *testing.T) {
	var m *metrics.Metrics
	assert.NotPanics(t, func() {
		m.LineReceived("TRANSACTION")
		m.HandlerFailed("CAPTURE")
		m.LedgerAppended(1, 500)
		m.LedgerLoaded(3)
		m.LedgerWrite(errors.New("disk full"))
		m.CaptureObserved(metrics.CaptureOK, time.Second)
		m.DeviceConnected(true)
		m.SinkFailed(metrics.SinkRedis)
		m.HTTPObserved("GET", "/health", 200, time.Millisecond)
	})
}

func TestMetrics_CollectsOnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.LineReceived("TRANSACTION")
	m.LineReceived("")
	m.LineReceived("")
	m.LedgerAppended(2, 500)
	m.LedgerWrite(errors.New("disk full"))
	m.CaptureObserved(metrics.CaptureTimeout, 10*time.Second)

	families, err := reg.Gather()
	require.NoError(t, err)
	byName := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		byName[f.GetName()] = f
	}

	lines := byName["toll_serial_lines_total"]
	require.NotNil(t, lines)
	counts := map[string]float64{}
	for _, metric := range lines.GetMetric() {
		counts[metric.GetLabel()[0].GetValue()] = metric.GetCounter().GetValue()
	}
	assert.Equal(t, 1.0, counts["TRANSACTION"])
	assert.Equal(t, 2.0, counts["malformed"])

	require.NotNil(t, byName["toll_ledger_records"])
	assert.Equal(t, 2.0, byName["toll_ledger_records"].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 1.0, byName["toll_ledger_dirty"].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 500.0, byName["toll_revenue_minor_units_total"].GetMetric()[0].GetCounter().GetValue())
}

func TestMetrics_HTTPObserved(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	m.HTTPObserved("GET", "/api/v1/status", 200, 3*time.Millisecond)
	m.HTTPObserved("GET", "/api/v1/status", 401, time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)
	var requests *dto.MetricFamily
	for _, f := range families {
		if f.GetName() == "toll_http_requests_total" {
			requests = f
		}
	}
	require.NotNil(t, requests)
	assert.Len(t, requests.GetMetric(), 2)
}
