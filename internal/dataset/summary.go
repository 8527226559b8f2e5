package dataset

import (
	"fmt"

	"smartair-guardian/internal/features"

	"github.com/montanaflynn/stats"
)

// ColumnSummary holds descriptive statistics of one column.
type ColumnSummary struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Summary describes a generated table for operator logs.
type Summary struct {
	Rows       int                      `json:"rows"`
	Columns    map[string]ColumnSummary `json:"columns"`
	NextCO2    ColumnSummary            `json:"next_co2"`
	RiskCounts [RiskLevels]int          `json:"risk_counts"`
}

// Summarize computes per-column statistics and the risk class histogram.
func Summarize(rows []Row) (Summary, error) {
	if len(rows) == 0 {
		return Summary{}, fmt.Errorf("cannot summarize an empty table")
	}

	s := Summary{
		Rows:    len(rows),
		Columns: make(map[string]ColumnSummary, features.Count),
	}

	var cols [features.Count]stats.Float64Data
	next := make(stats.Float64Data, len(rows))
	for i, r := range rows {
		for j, v := range r.Values() {
			cols[j] = append(cols[j], v)
		}
		next[i] = r.NextCO2
		if r.RiskLevel >= 0 && r.RiskLevel < RiskLevels {
			s.RiskCounts[r.RiskLevel]++
		}
	}

	for j, data := range cols {
		cs, err := summarizeColumn(data)
		if err != nil {
			return Summary{}, fmt.Errorf("summarize %s: %w", features.Names[j], err)
		}
		s.Columns[features.Names[j]] = cs
	}

	cs, err := summarizeColumn(next)
	if err != nil {
		return Summary{}, fmt.Errorf("summarize next_co2: %w", err)
	}
	s.NextCO2 = cs

	return s, nil
}

func summarizeColumn(data stats.Float64Data) (ColumnSummary, error) {
	mean, err := data.Mean()
	if err != nil {
		return ColumnSummary{}, err
	}
	sd, err := data.StandardDeviation()
	if err != nil {
		return ColumnSummary{}, err
	}
	lo, err := data.Min()
	if err != nil {
		return ColumnSummary{}, err
	}
	hi, err := data.Max()
	if err != nil {
		return ColumnSummary{}, err
	}
	return ColumnSummary{Mean: mean, StdDev: sd, Min: lo, Max: hi}, nil
}
