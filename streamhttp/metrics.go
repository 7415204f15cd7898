package streamhttp

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsPrefix = "mcp_"

// Metrics holds the transport's instrumentation. A nil *Metrics is valid and
// records nothing, so the handler can run unregistered in tests.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	rpcTotal        *prometheus.CounterVec
	inFlight        prometheus.Gauge
	requestDuration prometheus.Histogram
}

// NewMetrics registers the transport metrics against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricsPrefix + "http_requests_total",
				Help: "HTTP requests handled, by status code",
			},
			[]string{"code"},
		),
		rpcTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricsPrefix + "rpc_requests_total",
				Help: "JSON-RPC requests dispatched, by method and outcome",
			},
			[]string{"method", "outcome"},
		),
		inFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: metricsPrefix + "requests_in_flight",
				Help: "POST exchanges currently being served",
			},
		),
		requestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricsPrefix + "request_duration_seconds",
				Help:    "Wall time of a POST exchange",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
		),
	}
}

func (m *Metrics) observeHTTP(code string, dur time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(code).Inc()
	m.requestDuration.Observe(dur.Seconds())
}

func (m *Metrics) observeRPC(method, outcome string) {
	if m == nil {
		return
	}
	m.rpcTotal.WithLabelValues(method, outcome).Inc()
}

func (m *Metrics) enterRequest() {
	if m == nil {
		return
	}
	m.inFlight.Inc()
}

func (m *Metrics) leaveRequest() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}
