// Package metrics provides custom Prometheus metrics for the detection pipeline.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// DetectionMetrics contains all Prometheus metrics related to the detection
// pipeline: uploads, validation rejections, classified detections and model
// inference performance.
type DetectionMetrics struct {
	UploadsTotal      *prometheus.CounterVec
	RejectionsTotal   *prometheus.CounterVec
	DetectionsTotal   *prometheus.CounterVec
	InferenceDuration *prometheus.HistogramVec
	InferenceErrors   *prometheus.CounterVec
	ModelLoadedGauge  prometheus.Gauge

	registry *prometheus.Registry
}

// NewDetectionMetrics creates a new instance of DetectionMetrics and registers
// it with the provided registry.
func NewDetectionMetrics(registry *prometheus.Registry) (*DetectionMetrics, error) {
	m := &DetectionMetrics{registry: registry}
	if err := m.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to initialize detection metrics: %w", err)
	}
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register detection metrics: %w", err)
	}
	return m, nil
}

func (m *DetectionMetrics) initMetrics() error {
	m.UploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafguard_uploads_total",
			Help: "Total number of processed uploads partitioned by final status.",
		},
		[]string{"status"},
	)

	m.RejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafguard_rejections_total",
			Help: "Total number of rejected uploads partitioned by rejection reason.",
		},
		[]string{"reason"},
	)

	m.DetectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafguard_detections_total",
			Help: "Total number of completed detections partitioned by severity.",
		},
		[]string{"severity"},
	)

	m.InferenceDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "leafguard_inference_duration_seconds",
			Help:    "Time taken for a model inference",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"model"},
	)

	m.InferenceErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leafguard_inference_errors_total",
			Help: "Total number of inference errors",
		},
		[]string{"model"},
	)

	m.ModelLoadedGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "leafguard_model_loaded",
			Help: "Whether the classifier model is currently loaded (1) or not (0)",
		},
	)

	return nil
}

// RecordUpload increments the upload counter for a final lifecycle status.
func (m *DetectionMetrics) RecordUpload(status string) {
	m.UploadsTotal.WithLabelValues(status).Inc()
}

// RecordRejection increments the rejection counter for a validation reason.
func (m *DetectionMetrics) RecordRejection(reason string) {
	m.RejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordDetection increments the detection counter for a severity grade.
func (m *DetectionMetrics) RecordDetection(severity string) {
	m.DetectionsTotal.WithLabelValues(severity).Inc()
}

// RecordInference records metrics for one inference call.
func (m *DetectionMetrics) RecordInference(model string, durationSeconds float64, err error) {
	if err != nil {
		m.InferenceErrors.WithLabelValues(model).Inc()
		return
	}
	m.InferenceDuration.WithLabelValues(model).Observe(durationSeconds)
}

// SetModelLoaded records whether the classifier model is loaded.
func (m *DetectionMetrics) SetModelLoaded(loaded bool) {
	if loaded {
		m.ModelLoadedGauge.Set(1)
	} else {
		m.ModelLoadedGauge.Set(0)
	}
}

// Describe implements the prometheus.Collector interface.
func (m *DetectionMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.UploadsTotal.Describe(ch)
	m.RejectionsTotal.Describe(ch)
	m.DetectionsTotal.Describe(ch)
	m.InferenceDuration.Describe(ch)
	m.InferenceErrors.Describe(ch)
	ch <- m.ModelLoadedGauge.Desc()
}

// Collect implements the prometheus.Collector interface.
func (m *DetectionMetrics) Collect(ch chan<- prometheus.Metric) {
	m.UploadsTotal.Collect(ch)
	m.RejectionsTotal.Collect(ch)
	m.DetectionsTotal.Collect(ch)
	m.InferenceDuration.Collect(ch)
	m.InferenceErrors.Collect(ch)
	ch <- m.ModelLoadedGauge
}
