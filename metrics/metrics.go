// Package metrics - Prometheus instrumentation for model loading and classification.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Status label values for classify_requests_total.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Collector holds every classification metric and implements both
// models.LoadObserver and classifier.Observer.
type Collector struct {
	InferenceDuration *prometheus.HistogramVec
	Requests          *prometheus.CounterVec
	ModelsLoaded      prometheus.Gauge
	LoadDuration      *prometheus.GaugeVec
}

// NewCollector creates the metrics and registers them with registry.
//
// Arguments:
//   - registry: The registry to register with.
//
// Returns:
//   - *Collector: The collector.
//   - error: An error if any metric is already registered.
func NewCollector(registry prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		InferenceDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "classify_inference_duration_seconds",
				Help:    "Time taken to encode, run and decode one image.",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
			},
			[]string{"model"},
		),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "classify_requests_total",
				Help: "Total number of classification calls partitioned by model and status.",
			},
			[]string{"model", "status"},
		),
		ModelsLoaded: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "classify_models_loaded",
				Help: "Number of models currently loaded.",
			},
		),
		LoadDuration: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "classify_model_load_duration_seconds",
				Help: "Time taken to load the most recent instance of each model.",
			},
			[]string{"model"},
		),
	}
	for _, col := range c.collectors() {
		if err := registry.Register(col); err != nil {
			return nil, fmt.Errorf("failed to register classify metrics: %w", err)
		}
	}
	return c, nil
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{c.InferenceDuration, c.Requests, c.ModelsLoaded, c.LoadDuration}
}

// ObserveInference implements classifier.Observer.
func (c *Collector) ObserveInference(modelID string, elapsed time.Duration, err error) {
	status := StatusOK
	if err != nil {
		status = StatusError
	} else {
		c.InferenceDuration.WithLabelValues(modelID).Observe(elapsed.Seconds())
	}
	c.Requests.WithLabelValues(modelID, status).Inc()
}

// ObserveLoad implements models.LoadObserver.
func (c *Collector) ObserveLoad(modelID string, d time.Duration) {
	c.LoadDuration.WithLabelValues(modelID).Set(d.Seconds())
}

// SetLoaded implements models.LoadObserver.
func (c *Collector) SetLoaded(n int) {
	c.ModelsLoaded.Set(float64(n))
}
