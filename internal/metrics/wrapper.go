package metrics

import "strconv"

// MetricsWrapper adapts Metrics to the narrow interfaces the inference and ingestion
// packages depend on, so those packages never import Prometheus.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) MLPredictionsInc() { w.m.MLPredictions.Inc() }

func (w *MetricsWrapper) MLFailuresInc() { w.m.MLFailures.Inc() }

func (w *MetricsWrapper) MLLatencyObserve(v float64) { w.m.MLLatency.Observe(v) }

func (w *MetricsWrapper) MLAnomaliesInc() { w.m.MLAnomalies.Inc() }

func (w *MetricsWrapper) MLRiskLevelInc(level int) {
	w.m.MLRiskLevels.WithLabelValues(strconv.Itoa(level)).Inc()
}

func (w *MetricsWrapper) MLModelLoadsInc() { w.m.MLModelLoads.Inc() }

func (w *MetricsWrapper) MLModelLoadFailuresInc() { w.m.MLModelLoadFailures.Inc() }

func (w *MetricsWrapper) MLCacheHitsInc() { w.m.MLCacheHits.Inc() }

func (w *MetricsWrapper) ReadingIngestedInc() { w.m.ReadingsIngested.Inc() }

func (w *MetricsWrapper) ReadingRejectedInc() { w.m.ReadingsRejected.Inc() }

func (w *MetricsWrapper) ReadingsStoredSet(n int) { w.m.ReadingsStored.Set(float64(n)) }

func (w *MetricsWrapper) MQTTMessageInc() { w.m.MQTTMessages.Inc() }

func (w *MetricsWrapper) StreamClientsSet(n int) { w.m.StreamClients.Set(float64(n)) }

func (w *MetricsWrapper) ObserveRequest(route string, status int, seconds float64) {
	w.m.ObserveRequest(route, status, seconds)
}

func (w *MetricsWrapper) ErrorsInc() { w.m.ErrorsTotal.Inc() }
