package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for the inference counter.
const (
	OutcomeSuccess = "success"
	OutcomeEmpty   = "empty"
	OutcomeFailure = "failure"
)

// Metrics holds all application metrics
type Metrics struct {
	Inferences        *prometheus.CounterVec
	InferenceDuration prometheus.Histogram
	Detections        *prometheus.CounterVec
	ModelLoaded       prometheus.Gauge

	registry *prometheus.Registry
}

// New creates a new Metrics instance with its own registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Inferences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "detect_inferences_total",
			Help: "Inference calls by outcome",
		}, []string{"outcome"}),
		InferenceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "detect_inference_duration_seconds",
			Help:    "Time spent in predict and plot",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
		Detections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "detect_detections_total",
			Help: "Detections returned, by class name",
		}, []string{"class"}),
		ModelLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "detect_model_loaded",
			Help: "1 when a detection model is loaded and serving",
		}),
	}

	m.registry.MustRegister(m.Inferences, m.InferenceDuration, m.Detections, m.ModelLoaded)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for Prometheus scraping
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
