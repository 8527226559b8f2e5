package ml

import "sync"

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu                sync.Mutex
	predictions       int
	failures          int
	latencySum        float64
	anomalies         int
	riskLevels        map[int]int
	modelLoads        int
	modelLoadFailures int
	cacheHits         int
}

func (m *MockMetrics) MLPredictionsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions++
}

func (m *MockMetrics) MLFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *MockMetrics) MLLatencyObserve(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
}

func (m *MockMetrics) MLAnomaliesInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.anomalies++
}

func (m *MockMetrics) MLRiskLevelInc(level int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.riskLevels == nil {
		m.riskLevels = make(map[int]int)
	}
	m.riskLevels[level]++
}

func (m *MockMetrics) MLModelLoadsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelLoads++
}

func (m *MockMetrics) MLModelLoadFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelLoadFailures++
}

func (m *MockMetrics) MLCacheHitsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheHits++
}

// Counts returns predictions, failures and cache hits recorded so far.
func (m *MockMetrics) Counts() (predictions, failures, cacheHits int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.predictions, m.failures, m.cacheHits
}

// Loads returns successful and failed model load counts.
func (m *MockMetrics) Loads() (ok, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.modelLoads, m.modelLoadFailures
}
