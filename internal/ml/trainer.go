package ml

import (
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"smartair-guardian/internal/common"
	"smartair-guardian/internal/dataset"
	"smartair-guardian/internal/features"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog/log"
)

// MinTrainingRows is the smallest table Train accepts.
const MinTrainingRows = common.MinTrainingRows

// TrainConfig controls a training run.
type TrainConfig struct {
	SplitSeed       uint64
	TestFraction    float64
	IsolationForest IsolationForestConfig
	RandomForest    RandomForestConfig
}

// DefaultTrainConfig seeds every stochastic step from seed and holds out 20% for classifier evaluation.
func DefaultTrainConfig(seed uint64) TrainConfig {
	return TrainConfig{
		SplitSeed:       seed,
		TestFraction:    0.2,
		IsolationForest: DefaultIsolationForestConfig(seed),
		RandomForest:    DefaultRandomForestConfig(seed),
	}
}

// Report carries the evaluation metrics of a training run. Metrics are informational only.
type Report struct {
	RunID            string    `json:"run_id"`
	TrainedAt        time.Time `json:"trained_at"`
	Samples          int       `json:"samples"`
	TrainSize        int       `json:"train_size"`
	TestSize         int       `json:"test_size"`
	Accuracy         float64   `json:"accuracy"`
	R2               float64   `json:"r2"`
	ResidualStdDev   float64   `json:"residual_std_dev"`
	AnomalyRate      float64   `json:"anomaly_rate"`
	AnomalyThreshold float64   `json:"anomaly_threshold"`
}

// Train fits the anomaly detector, risk classifier and CO2 forecaster on rows.
// The three fits are independent. Any non-finite value or unknown risk label aborts the run.
func Train(rows []dataset.Row, cfg TrainConfig) (*Models, Report, error) {
	if len(rows) < MinTrainingRows {
		return nil, Report{}, fmt.Errorf("training needs at least %d rows, got %d", MinTrainingRows, len(rows))
	}
	if err := checkRows(rows); err != nil {
		return nil, Report{}, err
	}

	x := dataset.Matrix(rows)
	risk := make([]int, len(rows))
	next := make([]float64, len(rows))
	for i, r := range rows {
		risk[i] = r.RiskLevel
		next[i] = r.NextCO2
	}

	anomaly, err := FitIsolationForest(x, cfg.IsolationForest)
	if err != nil {
		return nil, Report{}, fmt.Errorf("fit anomaly detector: %w", err)
	}

	trainIdx, testIdx, err := splitIndices(len(rows), cfg.TestFraction, cfg.SplitSeed)
	if err != nil {
		return nil, Report{}, err
	}
	classifier, err := FitRandomForest(pick(x, trainIdx), pick(risk, trainIdx), dataset.RiskLevels, cfg.RandomForest)
	if err != nil {
		return nil, Report{}, fmt.Errorf("fit risk classifier: %w", err)
	}
	accuracy := classifier.Accuracy(pick(x, testIdx), pick(risk, testIdx))

	forecaster, err := FitLinearRegression(x, next)
	if err != nil {
		return nil, Report{}, fmt.Errorf("fit co2 forecaster: %w", err)
	}

	residuals := make(stats.Float64Data, len(rows))
	flagged := 0
	for i := range x {
		residuals[i] = next[i] - forecaster.Predict(x[i])
		if anomaly.IsAnomaly(x[i]) {
			flagged++
		}
	}
	residualSD, err := residuals.StandardDeviation()
	if err != nil {
		return nil, Report{}, fmt.Errorf("residual spread: %w", err)
	}

	report := Report{
		RunID:            uuid.NewString(),
		TrainedAt:        time.Now().UTC(),
		Samples:          len(rows),
		TrainSize:        len(trainIdx),
		TestSize:         len(testIdx),
		Accuracy:         accuracy,
		R2:               forecaster.RSquared(x, next),
		ResidualStdDev:   residualSD,
		AnomalyRate:      float64(flagged) / float64(len(rows)),
		AnomalyThreshold: anomaly.Threshold,
	}

	log.Info().
		Str("run_id", report.RunID).
		Int("samples", report.Samples).
		Float64("accuracy", report.Accuracy).
		Float64("r2", report.R2).
		Float64("anomaly_rate", report.AnomalyRate).
		Msg("training complete")

	models := &Models{
		Anomaly:  anomaly,
		Risk:     classifier,
		Forecast: forecaster,
		Metadata: ModelMetadata{
			RunID:     report.RunID,
			TrainedAt: report.TrainedAt,
			Features:  append([]string(nil), features.Names[:]...),
		},
	}
	return models, report, nil
}

func checkRows(rows []dataset.Row) error {
	for i, r := range rows {
		if err := r.Validate(); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
		if math.IsNaN(r.NextCO2) || math.IsInf(r.NextCO2, 0) {
			return fmt.Errorf("row %d: next_co2 is not finite", i)
		}
		if r.RiskLevel < 0 || r.RiskLevel >= dataset.RiskLevels {
			return fmt.Errorf("row %d: risk level %d outside [0, %d)", i, r.RiskLevel, dataset.RiskLevels)
		}
	}
	return nil
}

// splitIndices shuffles [0, n) and returns (train, test) with ceil(n*testFraction) test rows.
func splitIndices(n int, testFraction float64, seed uint64) ([]int, []int, error) {
	if testFraction <= 0 || testFraction >= 1 {
		return nil, nil, fmt.Errorf("test fraction must be in (0, 1), got %f", testFraction)
	}
	nTest := int(math.Ceil(float64(n) * testFraction))
	if nTest >= n {
		return nil, nil, fmt.Errorf("test fraction %f leaves no training rows out of %d", testFraction, n)
	}

	perm := rand.New(rand.NewPCG(seed, seed^0x5b117)).Perm(n)
	return perm[nTest:], perm[:nTest], nil
}

func pick[T any](s []T, idx []int) []T {
	out := make([]T, len(idx))
	for i, j := range idx {
		out[i] = s[j]
	}
	return out
}
