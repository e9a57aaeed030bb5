// Package metrics provides custom Prometheus metrics for various components of the application.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ScannerMetrics contains all Prometheus metrics related to the realtime
// detection loop.
type ScannerMetrics struct {
	FramesReceived   prometheus.Counter
	SamplesSubmitted prometheus.Counter
	SamplesSkipped   *prometheus.CounterVec
	DetectionsTotal  *prometheus.CounterVec
	FPS              prometheus.Gauge
	CapturesTotal    *prometheus.CounterVec
	registry         *prometheus.Registry
}

// NewScannerMetrics creates a new instance of ScannerMetrics.
func NewScannerMetrics(registry *prometheus.Registry) (*ScannerMetrics, error) {
	m := &ScannerMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize scanner metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register scanner metrics: %w", err)
	}
	return m, nil
}

func (m *ScannerMetrics) initMetrics() error {
	m.FramesReceived = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scanner_frames_received_total",
		Help: "Total number of frames delivered by the camera source",
	})

	m.SamplesSubmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "scanner_samples_submitted_total",
		Help: "Total number of frames submitted for inference",
	})

	m.SamplesSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scanner_samples_skipped_total",
		Help: "Total number of frames skipped without inference",
	}, []string{"reason"}) // throttled, busy, paused

	m.DetectionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scanner_detections_total",
		Help: "Total number of stabilized results by display label",
	}, []string{"label"})

	m.FPS = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scanner_frames_per_second",
		Help: "Frames received from the camera source in the last second",
	})

	m.CapturesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scanner_captures_total",
		Help: "Total number of capture and save operations",
	}, []string{"status"}) // saved, failed

	return nil
}

// RecordSkip increments the skip counter for the given reason.
func (m *ScannerMetrics) RecordSkip(reason string) {
	m.SamplesSkipped.WithLabelValues(reason).Inc()
}

// RecordDetection increments the per-label detection counter.
func (m *ScannerMetrics) RecordDetection(label string) {
	m.DetectionsTotal.WithLabelValues(label).Inc()
}

// RecordCapture increments the capture counter for the given outcome.
func (m *ScannerMetrics) RecordCapture(status string) {
	m.CapturesTotal.WithLabelValues(status).Inc()
}

// Describe implements the prometheus.Collector interface.
func (m *ScannerMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.FramesReceived.Desc()
	ch <- m.SamplesSubmitted.Desc()
	m.SamplesSkipped.Describe(ch)
	m.DetectionsTotal.Describe(ch)
	ch <- m.FPS.Desc()
	m.CapturesTotal.Describe(ch)
}

// Collect implements the prometheus.Collector interface.
func (m *ScannerMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.FramesReceived
	ch <- m.SamplesSubmitted
	m.SamplesSkipped.Collect(ch)
	m.DetectionsTotal.Collect(ch)
	ch <- m.FPS
	m.CapturesTotal.Collect(ch)
}
