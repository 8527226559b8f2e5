package ml

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"smartair-guardian/internal/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubModels returns a model set whose classifier always answers class.
func stubModels(class int) *Models {
	probs := make([]float64, 4)
	classes := []int{0, 1, 2, 3}
	probs[3] = 1
	classes[3] = class

	return &Models{
		Anomaly: &IsolationForest{
			Trees:      []isolationTree{{Nodes: []isolationNode{{Leaf: true, Size: 1}}}},
			SampleSize: 2,
			Threshold:  1,
		},
		Risk: &RandomForest{
			Classes: classes,
			Trees:   []decisionTree{{Nodes: []decisionNode{{Leaf: true, Probs: probs}}}},
		},
		Forecast: &LinearRegression{Coef: [features.Count]float64{1, 0, 0, 0}, Intercept: 5},
	}
}

func TestEngine_Predict(t *testing.T) {
	models, _, _ := trainedFixture(t)
	metrics := &MockMetrics{}
	engine := NewEngine(NewRegistry(LoaderFunc(func() (*Models, error) { return models, nil }), metrics), EngineConfig{}, metrics)

	v := features.Vector{CO2: 420.5, PM25: 32.1, Temp: 24.3, Humidity: 55.8}
	got, err := engine.Predict(context.Background(), v)
	require.NoError(t, err)

	want, err := models.Predict(v)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	predictions, failures, _ := metrics.Counts()
	assert.Equal(t, 1, predictions)
	assert.Equal(t, 0, failures)
}

func TestEngine_RejectsNonFiniteInputBeforeLoading(t *testing.T) {
	var loads atomic.Int32
	reg := NewRegistry(LoaderFunc(func() (*Models, error) {
		loads.Add(1)
		return stubModels(1), nil
	}), nil)
	metrics := &MockMetrics{}
	engine := NewEngine(reg, EngineConfig{}, metrics)

	tests := []struct {
		name string
		in   features.Vector
	}{
		{"nan co2", features.Vector{CO2: math.NaN(), PM25: 10, Temp: 20, Humidity: 40}},
		{"inf pm25", features.Vector{CO2: 400, PM25: math.Inf(1), Temp: 20, Humidity: 40}},
		{"neg inf humidity", features.Vector{CO2: 400, PM25: 10, Temp: 20, Humidity: math.Inf(-1)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Predict(context.Background(), tt.in)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidFeature))
		})
	}

	assert.Equal(t, int32(0), loads.Load())
	_, failures, _ := metrics.Counts()
	assert.Equal(t, len(tests), failures)
}

func TestEngine_UnknownClassIsConsistencyFault(t *testing.T) {
	reg := NewRegistry(LoaderFunc(func() (*Models, error) { return stubModels(7), nil }), nil)
	engine := NewEngine(reg, EngineConfig{}, nil)

	_, err := engine.Predict(context.Background(), features.Vector{CO2: 400, PM25: 10, Temp: 20, Humidity: 40})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInternalConsistency))
	assert.False(t, errors.Is(err, ErrInvalidFeature))
}

func TestEngine_ModelsUnavailable(t *testing.T) {
	engine := NewEngine(NewRegistry(DirLoader(t.TempDir()), nil), EngineConfig{}, nil)

	_, err := engine.Predict(context.Background(), features.Vector{CO2: 400, PM25: 10, Temp: 20, Humidity: 40})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelsUnavailable))
}

func TestEngine_CacheServesRepeatedInput(t *testing.T) {
	metrics := &MockMetrics{}
	reg := NewRegistry(LoaderFunc(func() (*Models, error) { return stubModels(2), nil }), metrics)
	engine := NewEngine(reg, EngineConfig{CacheTTL: time.Minute}, metrics)

	v := features.Vector{CO2: 400, PM25: 10, Temp: 20, Humidity: 40}
	first, err := engine.Predict(context.Background(), v)
	require.NoError(t, err)
	second, err := engine.Predict(context.Background(), v)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, Prediction{IsAnomaly: false, RiskLevel: 2, CO2NextPred: 405}, first)

	predictions, _, hits := metrics.Counts()
	assert.Equal(t, 1, predictions)
	assert.Equal(t, 1, hits)

	// A different vector misses.
	_, err = engine.Predict(context.Background(), features.Vector{CO2: 401, PM25: 10, Temp: 20, Humidity: 40})
	require.NoError(t, err)
	predictions, _, hits = metrics.Counts()
	assert.Equal(t, 2, predictions)
	assert.Equal(t, 1, hits)
}
