// Package simulator publishes synthetic sensor readings, standing in for field hardware during
// development. Readings go either to the HTTP ingest endpoint or to an MQTT topic.
package simulator

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"smartair-guardian/internal/features"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/stat/distuv"
)

// Ranges sampled uniformly for each measurement, in model input order.
var Ranges = [features.Count][2]float64{
	features.CO2:      {350, 900},
	features.PM25:     {5, 90},
	features.Temp:     {18, 32},
	features.Humidity: {30, 80},
}

// Reading is the payload a simulated sensor sends.
type Reading struct {
	SensorID string `json:"sensor_id"`
	features.Vector
}

// Generator draws readings for one sensor. Safe for concurrent use.
type Generator struct {
	sensorID string
	mu       sync.Mutex
	dists    [features.Count]distuv.Uniform
}

// NewGenerator seeds a generator. Equal seeds produce equal sequences.
func NewGenerator(sensorID string, seed uint64) *Generator {
	src := rand.NewPCG(seed, seed^0x51a1_a7e5)
	g := &Generator{sensorID: sensorID}
	for i, r := range Ranges {
		g.dists[i] = distuv.Uniform{Min: r[0], Max: r[1], Src: src}
	}
	return g
}

// Next returns the next reading.
func (g *Generator) Next() Reading {
	g.mu.Lock()
	defer g.mu.Unlock()

	var x [features.Count]float64
	for i := range x {
		x[i] = g.dists[i].Rand()
	}
	return Reading{SensorID: g.sensorID, Vector: features.FromValues(x)}
}

// Publisher delivers one reading.
type Publisher interface {
	Publish(ctx context.Context, r Reading) error
}

// Run publishes a reading immediately and then every interval until ctx is done. Publish errors
// are logged and do not stop the loop. It returns the number of readings delivered.
func Run(ctx context.Context, gen *Generator, pub Publisher, interval time.Duration) (int, error) {
	if interval <= 0 {
		return 0, fmt.Errorf("publish interval must be positive, got %s", interval)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sent := 0
	for {
		if err := pub.Publish(ctx, gen.Next()); err != nil {
			log.Warn().Err(err).Msg("Publish failed")
		} else {
			sent++
		}

		select {
		case <-ctx.Done():
			return sent, nil
		case <-ticker.C:
		}
	}
}
