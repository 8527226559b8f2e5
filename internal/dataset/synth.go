// Package dataset synthesizes the labeled air-quality table the models are trained on.
//
// Each feature is drawn from a normal distribution and clamped to a plausible range. Two targets
// are derived per row: a rule-based risk level and a next-step CO2 value equal to the current CO2
// plus Gaussian noise. The CO2 target makes the trained forecaster a noisy first-order predictor of
// the current reading, not a time-series model; this is a known limitation of the synthetic data.
//
// Generation is a pure function of (n, seed).
package dataset

import (
	"fmt"
	"math/rand/v2"

	"smartair-guardian/internal/common"
	"smartair-guardian/internal/features"

	"gonum.org/v1/gonum/stat/distuv"
)

// Risk levels.
const (
	RiskLow = iota
	RiskModerate
	RiskHigh
	RiskDangerous
)

// RiskLevels is the number of risk classes.
const RiskLevels = 4

// Default generation parameters.
const (
	DefaultSamples = common.DefaultTrainingSamples
	DefaultSeed    = common.DefaultTrainingSeed
)

// pcgStream is the second PCG word; the seed supplies the first.
const pcgStream = 0x5eed_a1e0_c02d_a7a5

// Spec describes how one column is sampled.
type Spec struct {
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// Column sampling parameters, in model input order.
var Columns = [features.Count]Spec{
	features.CO2:      {Mean: 450, StdDev: 80, Min: 300, Max: 1000},
	features.PM25:     {Mean: 25, StdDev: 10, Min: 5, Max: 120},
	features.Temp:     {Mean: 24, StdDev: 3, Min: 15, Max: 35},
	features.Humidity: {Mean: 55, StdDev: 10, Min: 20, Max: 90},
}

// Next-CO2 target parameters.
const (
	NextCO2NoiseStdDev = 20
	NextCO2Min         = 300
	NextCO2Max         = 1100
)

// Row is one training example.
type Row struct {
	features.Vector
	RiskLevel int     `json:"risk_level"`
	NextCO2   float64 `json:"next_co2"`
}

// Generate returns n rows drawn from a PCG source seeded with seed.
// The same (n, seed) always yields the same table.
func Generate(n int, seed uint64) ([]Row, error) {
	if n <= 0 {
		return nil, fmt.Errorf("sample count must be positive, got %d", n)
	}

	src := rand.NewPCG(seed, seed^pcgStream)

	var cols [features.Count][]float64
	for i, spec := range Columns {
		cols[i] = sampleClamped(distuv.Normal{Mu: spec.Mean, Sigma: spec.StdDev, Src: src}, n, spec.Min, spec.Max)
	}
	noise := sample(distuv.Normal{Mu: 0, Sigma: NextCO2NoiseStdDev, Src: src}, n)

	rows := make([]Row, n)
	for i := range rows {
		var x [features.Count]float64
		for j := range x {
			x[j] = cols[j][i]
		}
		v := features.FromValues(x)
		rows[i] = Row{
			Vector:    v,
			RiskLevel: RiskLevel(v.CO2, v.PM25),
			NextCO2:   clamp(v.CO2+noise[i], NextCO2Min, NextCO2Max),
		}
	}
	return rows, nil
}

// RiskLevel labels a reading. Rules are evaluated in order and the first match wins.
func RiskLevel(co2, pm25 float64) int {
	switch {
	case co2 < 500 && pm25 < 25:
		return RiskLow
	case co2 < 700 && pm25 < 40:
		return RiskModerate
	case co2 < 900 && pm25 < 70:
		return RiskHigh
	default:
		return RiskDangerous
	}
}

// Matrix returns the feature columns of rows as model input.
func Matrix(rows []Row) [][features.Count]float64 {
	x := make([][features.Count]float64, len(rows))
	for i, r := range rows {
		x[i] = r.Values()
	}
	return x
}

func sample(d distuv.Normal, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = d.Rand()
	}
	return out
}

func sampleClamped(d distuv.Normal, n int, lo, hi float64) []float64 {
	out := sample(d, n)
	for i, v := range out {
		out[i] = clamp(v, lo, hi)
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
