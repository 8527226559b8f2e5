package ml

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Loader produces a complete model set.
type Loader interface {
	Load() (*Models, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func() (*Models, error)

func (f LoaderFunc) Load() (*Models, error) { return f() }

// DirLoader loads the artifact set from a models directory.
type DirLoader string

func (d DirLoader) Load() (*Models, error) { return LoadAll(string(d)) }

// State is the lifecycle stage of a Registry.
type State int

const (
	StateUnloaded State = iota
	StateLoading
	StateLoaded
)

func (s State) String() string {
	switch s {
	case StateUnloaded:
		return "unloaded"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Status is a point-in-time view of a Registry.
type Status struct {
	State     State
	LastError error
	LoadedAt  time.Time
	Metadata  ModelMetadata
}

// Registry owns the process-wide model set. The set is loaded at most once per successful attempt;
// concurrent callers share a single in-flight load, and a failed load leaves the registry unloaded
// so the next caller retries.
type Registry struct {
	loader  Loader
	metrics MetricsInterface
	group   singleflight.Group

	mu       sync.RWMutex
	models   *Models
	state    State
	lastErr  error
	loadedAt time.Time
}

// NewRegistry creates an unloaded registry. metrics may be nil.
func NewRegistry(loader Loader, metrics MetricsInterface) *Registry {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Registry{loader: loader, metrics: metrics}
}

// Models returns the loaded model set, loading it first if needed. ctx bounds only the wait; an
// abandoned wait does not cancel the load other callers may be sharing.
func (r *Registry) Models(ctx context.Context) (*Models, error) {
	if m := r.current(); m != nil {
		return m, nil
	}

	ch := r.group.DoChan("models", r.load)
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrModelsUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Models), nil
	}
}

// Ready reports whether a model set is loaded.
func (r *Registry) Ready() bool {
	return r.current() != nil
}

// Status reports the registry state and the most recent load failure, if any.
func (r *Registry) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := Status{State: r.state, LastError: r.lastErr, LoadedAt: r.loadedAt}
	if r.models != nil {
		s.Metadata = r.models.Metadata
	}
	return s
}

func (r *Registry) current() *Models {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.models
}

func (r *Registry) load() (any, error) {
	r.mu.Lock()
	if r.models != nil {
		m := r.models
		r.mu.Unlock()
		return m, nil
	}
	r.state = StateLoading
	r.mu.Unlock()

	start := time.Now()
	m, err := r.loader.Load()
	if err == nil && (m == nil || m.Anomaly == nil || m.Risk == nil || m.Forecast == nil) {
		err = fmt.Errorf("loader returned an incomplete model set")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.state = StateUnloaded
		r.lastErr = err
		r.metrics.MLModelLoadFailuresInc()
		missing, corrupt := FailedArtifacts(err)
		log.Error().Err(err).
			Strs("missing", missing).
			Strs("corrupt", corrupt).
			Msg("Model load failed")
		return nil, fmt.Errorf("%w: %w", ErrModelsUnavailable, err)
	}

	r.models = m
	r.state = StateLoaded
	r.lastErr = nil
	r.loadedAt = time.Now()
	r.metrics.MLModelLoadsInc()
	log.Info().
		Str("run_id", m.Metadata.RunID).
		Time("trained_at", m.Metadata.TrainedAt).
		Dur("took", time.Since(start)).
		Msg("Models loaded")
	return m, nil
}
