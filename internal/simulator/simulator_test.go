package simulator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"smartair-guardian/internal/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerator_StaysInRange(t *testing.T) {
	gen := NewGenerator("virtual_esp32_001", 7)
	for i := 0; i < 1000; i++ {
		r := gen.Next()
		assert.Equal(t, "virtual_esp32_001", r.SensorID)
		for c, v := range r.Values() {
			assert.GreaterOrEqual(t, v, Ranges[c][0], features.Names[c])
			assert.LessOrEqual(t, v, Ranges[c][1], features.Names[c])
		}
	}
}

func TestGenerator_Deterministic(t *testing.T) {
	a, b := NewGenerator("s", 99), NewGenerator("s", 99)
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.Next(), b.Next())
	}
	assert.NotEqual(t, NewGenerator("s", 1).Next(), NewGenerator("s", 2).Next())
}

func TestReading_WireShape(t *testing.T) {
	data, err := json.Marshal(Reading{SensorID: "s", Vector: features.Vector{CO2: 1, PM25: 2, Temp: 3, Humidity: 4}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"sensor_id":"s","co2":1,"pm25":2,"temp":3,"humidity":4}`, string(data))
}

func TestHTTPPublisher(t *testing.T) {
	var got Reading
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/ingest", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		if got.SensorID == "broken" {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"detail":"models unavailable"}`))
			return
		}
		w.Write([]byte(`{"id":"x","sensor_id":"s","co2":500,"pm25":20,"temp":22,"humidity":50,` +
			`"is_anomaly":false,"risk_level":1,"co2_next_pred":501.2}`))
	}))
	defer srv.Close()

	pub := NewHTTPPublisher(srv.URL+"/ingest", time.Second)

	r := NewGenerator("virtual_esp32_001", 1).Next()
	require.NoError(t, pub.Publish(context.Background(), r))
	assert.Equal(t, r, got)

	err := pub.Publish(context.Background(), Reading{SensorID: "broken"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "models unavailable")
}

type countingPublisher struct {
	calls atomic.Int32
	fail  bool
}

func (p *countingPublisher) Publish(context.Context, Reading) error {
	p.calls.Add(1)
	if p.fail {
		return errors.New("unreachable")
	}
	return nil
}

func TestRun_PublishesUntilCancelled(t *testing.T) {
	pub := &countingPublisher{}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan int)
	go func() {
		sent, err := Run(ctx, NewGenerator("s", 1), pub, 5*time.Millisecond)
		assert.NoError(t, err)
		done <- sent
	}()

	require.Eventually(t, func() bool { return pub.calls.Load() >= 3 }, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case sent := <-done:
		assert.GreaterOrEqual(t, sent, 3)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestRun_ErrorsDoNotStopTheLoop(t *testing.T) {
	pub := &countingPublisher{fail: true}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	sent, err := Run(ctx, NewGenerator("s", 1), pub, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Greater(t, pub.calls.Load(), int32(1))
}

func TestRun_RejectsNonPositiveInterval(t *testing.T) {
	_, err := Run(context.Background(), NewGenerator("s", 1), &countingPublisher{}, 0)
	assert.Error(t, err)
}
