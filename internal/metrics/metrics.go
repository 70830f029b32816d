// Package metrics exposes Prometheus collectors for the gesture pipeline.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ayusman/camgestures/internal/knn"
)

// Failure kinds used as the "kind" label of gesture_failures_total.
const (
	FailureCamera         = "camera"
	FailureModel          = "model"
	FailureClassification = "classification"
	FailurePlugin         = "plugin"
	FailureStore          = "store"
)

// Metrics holds all pipeline metrics
type Metrics struct {
	FramesCaptured atomic.Uint64
	FramesSkipped  atomic.Uint64
	ExamplesAdded  atomic.Uint64
	Predictions    atomic.Uint64

	events    *prometheus.CounterVec
	failures  *prometheus.CounterVec
	inference prometheus.Histogram

	mu    sync.RWMutex
	state string

	registry *prometheus.Registry
}

// New creates a Metrics instance with its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gesture_events_emitted_total",
				Help: "Events emitted by the lifecycle controller",
			},
			[]string{"event"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gesture_failures_total",
				Help: "Pipeline failures by kind",
			},
			[]string{"kind"},
		),
		inference: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gesture_inference_seconds",
				Help:    "Embedding inference latency in seconds",
				Buckets: prometheus.ExponentialBuckets(0.002, 2, 10),
			},
		),
	}

	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	m.registry.MustRegister(m.events, m.failures, m.inference)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "gesture_frames_captured_total",
			Help: "Frames read from the camera",
		},
		func() float64 { return float64(m.FramesCaptured.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "gesture_frames_skipped_total",
			Help: "Frames captured but not passed to inference",
		},
		func() float64 { return float64(m.FramesSkipped.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "gesture_examples_added_total",
			Help: "Training examples added to the classifier",
		},
		func() float64 { return float64(m.ExamplesAdded.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "gesture_predictions_total",
			Help: "Classifier predictions",
		},
		func() float64 { return float64(m.Predictions.Load()) },
	))

	for _, s := range []string{"training", "testing", "verifying", "predicting"} {
		state := s
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name:        "gesture_session_state",
				Help:        "1 for the current session state",
				ConstLabels: prometheus.Labels{"state": state},
			},
			func() float64 {
				m.mu.RLock()
				defer m.mu.RUnlock()
				if m.state == state {
					return 1
				}
				return 0
			},
		))
	}
}

// ObserveEvent counts an emitted event.
func (m *Metrics) ObserveEvent(event string) {
	m.events.WithLabelValues(event).Inc()
}

// ObserveFailure counts a failure of the given kind.
func (m *Metrics) ObserveFailure(kind string) {
	m.failures.WithLabelValues(kind).Inc()
}

// ObserveInference records the duration of one embedding inference.
func (m *Metrics) ObserveInference(d time.Duration) {
	m.inference.Observe(d.Seconds())
}

// SetState records the current session state.
func (m *Metrics) SetState(state string) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// classifier is the subset of the KNN classifier the lifecycle uses.
type classifier interface {
	AddExample(vec []float32, label int) error
	Predict(vec []float32, k int) (knn.Prediction, error)
	ClearAllClasses()
}

// Classifier counts examples and predictions passing through a classifier.
type Classifier struct {
	inner   classifier
	metrics *Metrics
}

// WrapClassifier instruments inner with m.
func WrapClassifier(inner classifier, m *Metrics) *Classifier {
	return &Classifier{inner: inner, metrics: m}
}

// AddExample forwards to the wrapped classifier.
func (c *Classifier) AddExample(vec []float32, label int) error {
	if err := c.inner.AddExample(vec, label); err != nil {
		return err
	}
	c.metrics.ExamplesAdded.Add(1)
	return nil
}

// Predict forwards to the wrapped classifier.
func (c *Classifier) Predict(vec []float32, k int) (knn.Prediction, error) {
	pred, err := c.inner.Predict(vec, k)
	if err != nil {
		return pred, err
	}
	c.metrics.Predictions.Add(1)
	return pred, nil
}

// ClearAllClasses forwards to the wrapped classifier.
func (c *Classifier) ClearAllClasses() {
	c.inner.ClearAllClasses()
}
