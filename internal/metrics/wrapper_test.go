package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWrapper(t *testing.T) (*Metrics, *MetricsWrapper, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	m := NewWithRegistry(registry)
	return m, NewWrapper(m), registry
}

func TestNewWrapper(t *testing.T) {
	m, wrapper, _ := newTestWrapper(t)
	require.NotNil(t, wrapper)
	assert.Same(t, m, wrapper.m)
}

func TestMetricsWrapper_MLMethods(t *testing.T) {
	m, wrapper, _ := newTestWrapper(t)

	wrapper.MLPredictionsInc()
	wrapper.MLPredictionsInc()
	wrapper.MLFailuresInc()
	wrapper.MLAnomaliesInc()
	wrapper.MLCacheHitsInc()
	wrapper.MLModelLoadsInc()
	wrapper.MLModelLoadFailuresInc()
	wrapper.MLModelLoadFailuresInc()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MLPredictions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MLFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MLAnomalies))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MLCacheHits))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MLModelLoads))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MLModelLoadFailures))
}

func TestMetricsWrapper_RiskLevels(t *testing.T) {
	m, wrapper, _ := newTestWrapper(t)

	wrapper.MLRiskLevelInc(0)
	wrapper.MLRiskLevelInc(2)
	wrapper.MLRiskLevelInc(2)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.MLRiskLevels.WithLabelValues("0")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MLRiskLevels.WithLabelValues("2")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.MLRiskLevels.WithLabelValues("3")))
}

func TestMetricsWrapper_IngestionMethods(t *testing.T) {
	m, wrapper, _ := newTestWrapper(t)

	wrapper.ReadingIngestedInc()
	wrapper.ReadingRejectedInc()
	wrapper.MQTTMessageInc()
	wrapper.ReadingsStoredSet(42)
	wrapper.StreamClientsSet(3)
	wrapper.StreamClientsSet(1)
	wrapper.ErrorsInc()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReadingsIngested))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReadingsRejected))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MQTTMessages))
	assert.Equal(t, 42.0, testutil.ToFloat64(m.ReadingsStored))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StreamClients))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ErrorsTotal))
}

func TestMetricsWrapper_Histograms(t *testing.T) {
	m, wrapper, registry := newTestWrapper(t)

	for _, v := range []float64{0.0002, 0.003, 0.04} {
		wrapper.MLLatencyObserve(v)
	}
	wrapper.ObserveRequest("/ingest", 200, 0.01)
	wrapper.ObserveRequest("/ingest", 422, 0.002)

	count, err := testutil.GatherAndCount(registry, "ml_latency_seconds", "http_request_duration_seconds")
	require.NoError(t, err)
	// One histogram series for latency, two label sets for requests.
	assert.Equal(t, 3, count)
	assert.Equal(t, 2, testutil.CollectAndCount(m.HTTPRequestDuration))
}

func TestNewWithRegistry_DuplicateRegistrationPanics(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewWithRegistry(registry)
	assert.Panics(t, func() { NewWithRegistry(registry) })
}
