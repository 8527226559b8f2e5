package ml

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_FailureThenProvision(t *testing.T) {
	models, _, _ := trainedFixture(t)
	dir := t.TempDir()
	metrics := &MockMetrics{}
	reg := NewRegistry(DirLoader(dir), metrics)

	assert.Equal(t, StateUnloaded, reg.Status().State)
	assert.False(t, reg.Ready())

	_, err := reg.Models(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelsUnavailable))
	assert.True(t, errors.Is(err, ErrArtifactMissing))

	status := reg.Status()
	assert.Equal(t, StateUnloaded, status.State)
	require.Error(t, status.LastError)
	missing, _ := FailedArtifacts(status.LastError)
	assert.Equal(t, ArtifactNames, missing)

	// Provisioning the directory makes the next call succeed without a restart.
	require.NoError(t, SaveAll(dir, models))

	got, err := reg.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.Metadata.RunID, got.Metadata.RunID)

	status = reg.Status()
	assert.Equal(t, StateLoaded, status.State)
	assert.NoError(t, status.LastError)
	assert.False(t, status.LoadedAt.IsZero())
	assert.True(t, reg.Ready())

	ok, failed := metrics.Loads()
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, failed)
}

func TestRegistry_ConcurrentCallersShareOneLoad(t *testing.T) {
	models, _, _ := trainedFixture(t)

	var calls atomic.Int32
	loader := LoaderFunc(func() (*Models, error) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		return models, nil
	})
	reg := NewRegistry(loader, nil)

	const callers = 32
	results := make([]*Models, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := reg.Models(context.Background())
			assert.NoError(t, err)
			results[i] = m
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, m := range results {
		assert.Same(t, models, m)
	}

	// Loaded registries never call the loader again.
	_, err := reg.Models(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestRegistry_WaitHonorsContext(t *testing.T) {
	models, _, _ := trainedFixture(t)

	release := make(chan struct{})
	reg := NewRegistry(LoaderFunc(func() (*Models, error) {
		<-release
		return models, nil
	}), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := reg.Models(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelsUnavailable))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Equal(t, StateLoading, reg.Status().State)

	close(release)

	// The abandoned load still completes for later callers.
	m, err := reg.Models(context.Background())
	require.NoError(t, err)
	assert.Same(t, models, m)
}

func TestRegistry_IncompleteSetIsAFailure(t *testing.T) {
	reg := NewRegistry(LoaderFunc(func() (*Models, error) {
		return &Models{Anomaly: &IsolationForest{}}, nil
	}), nil)

	_, err := reg.Models(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrModelsUnavailable))
	assert.False(t, reg.Ready())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unloaded", StateUnloaded.String())
	assert.Equal(t, "loading", StateLoading.String())
	assert.Equal(t, "loaded", StateLoaded.String())
	assert.Equal(t, "state(9)", State(9).String())
}
