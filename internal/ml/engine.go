package ml

import (
	"context"
	"fmt"
	"math"
	"time"

	"smartair-guardian/internal/features"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"
)

// MetricsInterface defines the metrics the inference path reports.
type MetricsInterface interface {
	MLPredictionsInc()
	MLFailuresInc()
	MLLatencyObserve(float64)
	MLAnomaliesInc()
	MLRiskLevelInc(int)
	MLModelLoadsInc()
	MLModelLoadFailuresInc()
	MLCacheHitsInc()
}

type noopMetrics struct{}

func (noopMetrics) MLPredictionsInc()        {}
func (noopMetrics) MLFailuresInc()           {}
func (noopMetrics) MLLatencyObserve(float64) {}
func (noopMetrics) MLAnomaliesInc()          {}
func (noopMetrics) MLRiskLevelInc(int)       {}
func (noopMetrics) MLModelLoadsInc()         {}
func (noopMetrics) MLModelLoadFailuresInc()  {}
func (noopMetrics) MLCacheHitsInc()          {}

// Predictor enriches a feature vector with model outputs.
type Predictor interface {
	Predict(ctx context.Context, v features.Vector) (Prediction, error)
}

// EngineConfig configures an Engine.
type EngineConfig struct {
	// CacheTTL keeps recent predictions keyed by the exact input. Zero disables the cache.
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// Engine is the inference entry point. It validates input, obtains the shared model set from the
// registry and runs the three estimators.
type Engine struct {
	registry *Registry
	cache    *cache.Cache
	metrics  MetricsInterface
}

var _ Predictor = (*Engine)(nil)

// NewEngine creates an Engine backed by registry. metrics may be nil.
func NewEngine(registry *Registry, cfg EngineConfig, metrics MetricsInterface) *Engine {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	e := &Engine{registry: registry, metrics: metrics}
	if cfg.CacheTTL > 0 {
		e.cache = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	return e
}

// Predict returns the enrichment for v. Non-finite input fails with ErrInvalidFeature before the
// models are touched; a missing model set fails with ErrModelsUnavailable.
func (e *Engine) Predict(ctx context.Context, v features.Vector) (Prediction, error) {
	start := time.Now()

	if err := v.Validate(); err != nil {
		e.metrics.MLFailuresInc()
		return Prediction{}, fmt.Errorf("%w: %w", ErrInvalidFeature, err)
	}

	key := cacheKey(v)
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			e.metrics.MLCacheHitsInc()
			return cached.(Prediction), nil
		}
	}

	models, err := e.registry.Models(ctx)
	if err != nil {
		e.metrics.MLFailuresInc()
		return Prediction{}, err
	}

	p, err := models.Predict(v)
	if err != nil {
		e.metrics.MLFailuresInc()
		log.Error().Err(err).Interface("features", v).Msg("Model output outside contract")
		return Prediction{}, err
	}

	e.metrics.MLPredictionsInc()
	e.metrics.MLLatencyObserve(time.Since(start).Seconds())
	e.metrics.MLRiskLevelInc(p.RiskLevel)
	if p.IsAnomaly {
		e.metrics.MLAnomaliesInc()
	}

	if e.cache != nil {
		e.cache.SetDefault(key, p)
	}
	return p, nil
}

func cacheKey(v features.Vector) string {
	x := v.Values()
	return fmt.Sprintf("%016x%016x%016x%016x",
		math.Float64bits(x[0]), math.Float64bits(x[1]), math.Float64bits(x[2]), math.Float64bits(x[3]))
}
