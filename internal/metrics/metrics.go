// Package metrics provides Prometheus metrics collection for the SmartAir Guardian service.
// It defines the ingestion, inference and model lifecycle metrics exposed on the
// Prometheus metrics endpoint.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Ingestion metrics
	ReadingsIngested prometheus.Counter // Readings accepted and stored
	ReadingsRejected prometheus.Counter // Readings refused by validation or inference
	ReadingsStored   prometheus.Gauge   // Readings currently held in memory
	MQTTMessages     prometheus.Counter // Messages received from the broker
	StreamClients    prometheus.Gauge   // Connected live-stream clients

	// Inference metrics
	MLPredictions prometheus.Counter
	MLFailures    prometheus.Counter
	MLLatency     prometheus.Histogram
	MLAnomalies   prometheus.Counter
	MLRiskLevels  *prometheus.CounterVec
	MLCacheHits   prometheus.Counter

	// Model lifecycle metrics
	MLModelLoads        prometheus.Counter
	MLModelLoadFailures prometheus.Counter

	// HTTP metrics
	HTTPRequestDuration *prometheus.HistogramVec

	ErrorsTotal prometheus.Counter
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		ReadingsIngested: factory.NewCounter(prometheus.CounterOpts{
			Name: "readings_ingested_total",
			Help: "Total number of sensor readings accepted",
		}),
		ReadingsRejected: factory.NewCounter(prometheus.CounterOpts{
			Name: "readings_rejected_total",
			Help: "Total number of sensor readings rejected",
		}),
		ReadingsStored: factory.NewGauge(prometheus.GaugeOpts{
			Name: "readings_stored",
			Help: "Number of readings currently held in memory",
		}),
		MQTTMessages: factory.NewCounter(prometheus.CounterOpts{
			Name: "mqtt_messages_total",
			Help: "Total number of messages received from the MQTT broker",
		}),
		StreamClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "stream_clients",
			Help: "Number of connected live-stream clients",
		}),
		MLPredictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_predictions_total",
			Help: "Total number of model predictions made",
		}),
		MLFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_failures_total",
			Help: "Total number of failed predictions",
		}),
		MLLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ml_latency_seconds",
			Help:    "Prediction latency in seconds (end-to-end)",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		MLAnomalies: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_anomalies_total",
			Help: "Total number of readings flagged as anomalous",
		}),
		MLRiskLevels: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ml_risk_level_total",
			Help: "Predictions by risk level",
		}, []string{"level"}),
		MLCacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_cache_hits_total",
			Help: "Total number of predictions served from cache",
		}),
		MLModelLoads: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_model_loads_total",
			Help: "Total number of successful model set loads",
		}),
		MLModelLoadFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "ml_model_load_failures_total",
			Help: "Total number of failed model set loads",
		}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "status"}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(route string, status int, seconds float64) {
	m.HTTPRequestDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(seconds)
}

// GetErrorRate returns the fraction of received readings that were rejected, or 0 before any reading.
func (m *Metrics) GetErrorRate() float64 {
	var ingested, rejected float64

	metricFamilies, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return 0
	}

	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case "readings_ingested_total":
			for _, m := range mf.Metric {
				ingested = m.GetCounter().GetValue()
			}
		case "readings_rejected_total":
			for _, m := range mf.Metric {
				rejected = m.GetCounter().GetValue()
			}
		}
	}

	total := ingested + rejected
	if total == 0 {
		return 0
	}
	return rejected / total
}
