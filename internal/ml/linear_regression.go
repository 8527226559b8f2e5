package ml

import (
	"fmt"
	"math"

	"smartair-guardian/internal/features"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// LinearRegression is an ordinary least squares model with intercept.
type LinearRegression struct {
	Coef      [features.Count]float64 `json:"coef"`
	Intercept float64                 `json:"intercept"`
}

// FitLinearRegression solves min ||Xb - y|| through a QR factorization of the design matrix.
func FitLinearRegression(x [][features.Count]float64, y []float64) (*LinearRegression, error) {
	n, p := len(x), features.Count+1
	if len(y) != n {
		return nil, fmt.Errorf("feature rows (%d) and targets (%d) differ", n, len(y))
	}
	if n < p {
		return nil, fmt.Errorf("linear regression needs at least %d samples, got %d", p, n)
	}

	design := mat.NewDense(n, p, nil)
	for i, row := range x {
		design.Set(i, 0, 1)
		for j, v := range row {
			design.Set(i, j+1, v)
		}
	}
	target := mat.NewVecDense(n, append([]float64(nil), y...))

	var qr mat.QR
	qr.Factorize(design)

	beta := mat.NewVecDense(p, nil)
	if err := qr.SolveVecTo(beta, false, target); err != nil {
		return nil, fmt.Errorf("least squares solve: %w", err)
	}

	lr := &LinearRegression{Intercept: beta.AtVec(0)}
	for j := range lr.Coef {
		lr.Coef[j] = beta.AtVec(j + 1)
	}
	if err := lr.validate(); err != nil {
		return nil, err
	}
	return lr, nil
}

// Predict returns the fitted value for x. No clamping is applied.
func (lr *LinearRegression) Predict(x [features.Count]float64) float64 {
	v := lr.Intercept
	for j, c := range lr.Coef {
		v += c * x[j]
	}
	return v
}

// RSquared is the coefficient of determination of the model on (x, y).
func (lr *LinearRegression) RSquared(x [][features.Count]float64, y []float64) float64 {
	estimates := make([]float64, len(x))
	for i := range x {
		estimates[i] = lr.Predict(x[i])
	}
	return stat.RSquaredFrom(estimates, y, nil)
}

func (lr *LinearRegression) validate() error {
	if math.IsNaN(lr.Intercept) || math.IsInf(lr.Intercept, 0) {
		return fmt.Errorf("linear regression intercept is not finite")
	}
	for j, c := range lr.Coef {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return fmt.Errorf("linear regression coefficient for %s is not finite", features.Names[j])
		}
	}
	return nil
}
