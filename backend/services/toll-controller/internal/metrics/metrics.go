package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result labels for capture attempts.
const (
	CaptureOK      = "ok"
	CaptureFailed  = "failed"
	CaptureTimeout = "timeout"
)

// Sink labels for best-effort secondary writes.
const (
	SinkPostgres = "postgres"
	SinkJournal  = "journal"
	SinkRedis    = "redis"
)

// Metrics groups the controller's Prometheus collectors. All methods are safe on a nil
// receiver so components can run without instrumentation in tests.
type Metrics struct {
	lines          *prometheus.CounterVec
	handlerErrors  *prometheus.CounterVec
	ledgerRecords  prometheus.Gauge
	ledgerFailures prometheus.Counter
	ledgerDirty    prometheus.Gauge
	revenue        prometheus.Counter
	captures       *prometheus.CounterVec
	captureLatency prometheus.Histogram
	deviceUp       prometheus.Gauge
	sinkFailures   *prometheus.CounterVec
	httpRequests   *prometheus.CounterVec
	httpLatency    *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		lines: f.NewCounterVec(prometheus.CounterOpts{
			Name: "toll_serial_lines_total",
			Help: "Serial lines received, labeled by decoded tag (malformed for decode failures)",
		}, []string{"tag"}),
		handlerErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "toll_event_handler_errors_total",
			Help: "Events whose handler returned an error",
		}, []string{"tag"}),
		ledgerRecords: f.NewGauge(prometheus.GaugeOpts{
			Name: "toll_ledger_records",
			Help: "Transactions held in the ledger",
		}),
		ledgerFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "toll_ledger_write_failures_total",
			Help: "Failed full rewrites of the ledger file",
		}),
		ledgerDirty: f.NewGauge(prometheus.GaugeOpts{
			Name: "toll_ledger_dirty",
			Help: "1 while the ledger file is behind the in-memory ledger",
		}),
		revenue: f.NewCounter(prometheus.CounterOpts{
			Name: "toll_revenue_minor_units_total",
			Help: "Sum of transaction amounts since process start",
		}),
		captures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "toll_captures_total",
			Help: "Image capture attempts by result",
		}, []string{"result"}),
		captureLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "toll_capture_duration_seconds",
			Help:    "Latency of the external capture command",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		deviceUp: f.NewGauge(prometheus.GaugeOpts{
			Name: "toll_device_connected",
			Help: "1 while the serial controller is connected",
		}),
		sinkFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "toll_sink_failures_total",
			Help: "Failed best-effort writes to secondary sinks",
		}, []string{"sink"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "toll_http_requests_total",
			Help: "Presentation API requests, labeled by status code",
		}, []string{"method", "endpoint", "status"}),
		httpLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "toll_http_request_duration_seconds",
			Help:    "Latency distribution of presentation API requests",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"method", "endpoint"}),
	}
}

// LineReceived counts a decoded line.
func (m *Metrics) LineReceived(tag string) {
	if m == nil {
		return
	}
	if tag == "" {
		tag = "malformed"
	}
	m.lines.WithLabelValues(tag).Inc()
}

// HandlerFailed counts a handler error.
func (m *Metrics) HandlerFailed(tag string) {
	if m == nil {
		return
	}
	m.handlerErrors.WithLabelValues(tag).Inc()
}

// LedgerAppended records a committed transaction.
func (m *Metrics) LedgerAppended(records int, amount int64) {
	if m == nil {
		return
	}
	m.ledgerRecords.Set(float64(records))
	m.revenue.Add(float64(amount))
}

// LedgerLoaded sets the record gauge after startup.
func (m *Metrics) LedgerLoaded(records int) {
	if m == nil {
		return
	}
	m.ledgerRecords.Set(float64(records))
}

// LedgerWrite records the outcome of a ledger rewrite.
func (m *Metrics) LedgerWrite(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.ledgerFailures.Inc()
		m.ledgerDirty.Set(1)
		return
	}
	m.ledgerDirty.Set(0)
}

// CaptureObserved records one capture attempt.
func (m *Metrics) CaptureObserved(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.captures.WithLabelValues(result).Inc()
	m.captureLatency.Observe(d.Seconds())
}

// DeviceConnected flips the device gauge.
func (m *Metrics) DeviceConnected(up bool) {
	if m == nil {
		return
	}
	if up {
		m.deviceUp.Set(1)
		return
	}
	m.deviceUp.Set(0)
}

// SinkFailed counts a failed secondary write.
func (m *Metrics) SinkFailed(sink string) {
	if m == nil {
		return
	}
	m.sinkFailures.WithLabelValues(sink).Inc()
}

// HTTPObserved records one API request.
func (m *Metrics) HTTPObserved(method, endpoint string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, endpoint, strconv.Itoa(status)).Inc()
	m.httpLatency.WithLabelValues(method, endpoint).Observe(d.Seconds())
}
