package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// InferenceMetrics contains all Prometheus metrics related to the remote
// inference endpoint.
type InferenceMetrics struct {
	RequestsTotal  *prometheus.CounterVec
	RequestLatency prometheus.Histogram
	EndpointOnline prometheus.Gauge
	registry       *prometheus.Registry
}

// NewInferenceMetrics creates a new instance of InferenceMetrics.
func NewInferenceMetrics(registry *prometheus.Registry) (*InferenceMetrics, error) {
	m := &InferenceMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize inference metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register inference metrics: %w", err)
	}
	return m, nil
}

func (m *InferenceMetrics) initMetrics() error {
	m.RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inference_requests_total",
		Help: "Total number of inference requests by outcome",
	}, []string{"status"}) // ok, offline, malformed

	m.RequestLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "inference_request_latency_seconds",
		Help:    "Latency of inference requests in seconds",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	m.EndpointOnline = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "inference_endpoint_online",
		Help: "Whether the last contact with the inference endpoint succeeded (1 or 0)",
	})

	return nil
}

// RecordRequest records one inference request with its outcome and latency.
func (m *InferenceMetrics) RecordRequest(status string, seconds float64) {
	m.RequestsTotal.WithLabelValues(status).Inc()
	m.RequestLatency.Observe(seconds)
}

// UpdateEndpointStatus mirrors the shared online flag into the gauge.
func (m *InferenceMetrics) UpdateEndpointStatus(online bool) {
	if online {
		m.EndpointOnline.Set(1)
	} else {
		m.EndpointOnline.Set(0)
	}
}

// Describe implements the prometheus.Collector interface.
func (m *InferenceMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.RequestsTotal.Describe(ch)
	ch <- m.RequestLatency.Desc()
	ch <- m.EndpointOnline.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *InferenceMetrics) Collect(ch chan<- prometheus.Metric) {
	m.RequestsTotal.Collect(ch)
	ch <- m.RequestLatency
	ch <- m.EndpointOnline
}
