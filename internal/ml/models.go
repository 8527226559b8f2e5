package ml

import (
	"fmt"
	"time"

	"smartair-guardian/internal/dataset"
	"smartair-guardian/internal/features"
)

// Artifact names. Each is stored as <name>.json in the models directory.
const (
	ArtifactIsolationForest = "isolation_forest"
	ArtifactRandomForest    = "random_forest_risk"
	ArtifactLinearRegCO2    = "linear_regression_co2"
)

// ArtifactNames lists every artifact a complete model set needs.
var ArtifactNames = []string{ArtifactIsolationForest, ArtifactRandomForest, ArtifactLinearRegCO2}

// ModelMetadata identifies the training run that produced a model set.
type ModelMetadata struct {
	RunID     string    `json:"run_id"`
	TrainedAt time.Time `json:"trained_at"`
	Features  []string  `json:"features"`
}

// Models is a complete, immutable set of fitted estimators.
type Models struct {
	Anomaly  *IsolationForest
	Risk     *RandomForest
	Forecast *LinearRegression
	Metadata ModelMetadata
}

// Prediction is the enrichment attached to one reading.
type Prediction struct {
	IsAnomaly   bool    `json:"is_anomaly"`
	RiskLevel   int     `json:"risk_level"`
	CO2NextPred float64 `json:"co2_next_pred"`
}

// Predict runs all three estimators on v. The caller is responsible for rejecting non-finite input.
func (m *Models) Predict(v features.Vector) (Prediction, error) {
	x := v.Values()

	risk := m.Risk.PredictClass(x)
	if risk < dataset.RiskLow || risk > dataset.RiskDangerous {
		return Prediction{}, fmt.Errorf("%w: risk classifier returned class %d", ErrInternalConsistency, risk)
	}

	return Prediction{
		IsAnomaly:   m.Anomaly.IsAnomaly(x),
		RiskLevel:   risk,
		CO2NextPred: m.Forecast.Predict(x),
	}, nil
}
