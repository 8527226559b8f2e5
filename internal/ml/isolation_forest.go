package ml

import (
	"fmt"
	"math"
	"math/rand/v2"

	"smartair-guardian/internal/features"

	"github.com/montanaflynn/stats"
)

const eulerGamma = 0.5772156649015329

// IsolationForestConfig controls anomaly detector fitting.
type IsolationForestConfig struct {
	Trees         int     `yaml:"trees"`
	MaxSamples    int     `yaml:"maxSamples"`
	Contamination float64 `yaml:"contamination"`
	Seed          uint64  `yaml:"seed"`
}

// DefaultIsolationForestConfig mirrors the production detector: 100 trees, 256-row sub-samples,
// 5% expected outliers.
func DefaultIsolationForestConfig(seed uint64) IsolationForestConfig {
	return IsolationForestConfig{
		Trees:         100,
		MaxSamples:    256,
		Contamination: 0.05,
		Seed:          seed,
	}
}

type isolationNode struct {
	Leaf      bool    `json:"leaf,omitempty"`
	Size      int     `json:"size,omitempty"`
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
}

type isolationTree struct {
	Nodes []isolationNode `json:"nodes"`
}

// IsolationForest flags samples that are isolated by fewer random splits than the training data.
type IsolationForest struct {
	Trees         []isolationTree `json:"trees"`
	SampleSize    int             `json:"sample_size"`
	Contamination float64         `json:"contamination"`
	Threshold     float64         `json:"threshold"`
}

// FitIsolationForest fits the detector on x without labels. The decision threshold is set so that
// the configured contamination fraction of x scores above it.
func FitIsolationForest(x [][features.Count]float64, cfg IsolationForestConfig) (*IsolationForest, error) {
	if len(x) < 2 {
		return nil, fmt.Errorf("isolation forest needs at least 2 samples, got %d", len(x))
	}
	if cfg.Trees <= 0 {
		return nil, fmt.Errorf("isolation forest tree count must be positive, got %d", cfg.Trees)
	}
	if cfg.Contamination <= 0 || cfg.Contamination > 0.5 {
		return nil, fmt.Errorf("contamination must be in (0, 0.5], got %f", cfg.Contamination)
	}

	psi := cfg.MaxSamples
	if psi <= 0 || psi > len(x) {
		psi = len(x)
	}
	limit := int(math.Ceil(math.Log2(float64(psi))))

	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x150f0e57))
	f := &IsolationForest{
		Trees:         make([]isolationTree, cfg.Trees),
		SampleSize:    psi,
		Contamination: cfg.Contamination,
	}

	for t := range f.Trees {
		idx := rng.Perm(len(x))[:psi]
		var tree isolationTree
		tree.grow(rng, x, idx, 0, limit)
		f.Trees[t] = tree
	}

	scores := make(stats.Float64Data, len(x))
	for i, row := range x {
		scores[i] = f.Score(row)
	}
	threshold, err := scores.Percentile(100 * (1 - cfg.Contamination))
	if err != nil {
		return nil, fmt.Errorf("anomaly threshold: %w", err)
	}
	f.Threshold = threshold

	return f, nil
}

func (t *isolationTree) grow(rng *rand.Rand, x [][features.Count]float64, idx []int, depth, limit int) int {
	id := len(t.Nodes)
	t.Nodes = append(t.Nodes, isolationNode{})

	if depth >= limit || len(idx) <= 1 {
		t.Nodes[id] = isolationNode{Leaf: true, Size: len(idx)}
		return id
	}

	// Only columns that still vary can split this node.
	var candidates []int
	var lo, hi [features.Count]float64
	for j := 0; j < features.Count; j++ {
		lo[j], hi[j] = x[idx[0]][j], x[idx[0]][j]
		for _, i := range idx[1:] {
			lo[j] = math.Min(lo[j], x[i][j])
			hi[j] = math.Max(hi[j], x[i][j])
		}
		if hi[j] > lo[j] {
			candidates = append(candidates, j)
		}
	}
	if len(candidates) == 0 {
		t.Nodes[id] = isolationNode{Leaf: true, Size: len(idx)}
		return id
	}

	feature := candidates[rng.IntN(len(candidates))]
	threshold := lo[feature] + rng.Float64()*(hi[feature]-lo[feature])

	var left, right []int
	for _, i := range idx {
		if x[i][feature] < threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := t.grow(rng, x, left, depth+1, limit)
	r := t.grow(rng, x, right, depth+1, limit)
	t.Nodes[id] = isolationNode{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return id
}

func (t *isolationTree) pathLength(x [features.Count]float64) float64 {
	i, depth := 0, 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return float64(depth) + averagePathLength(n.Size)
		}
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
		depth++
	}
}

// Score returns the anomaly score in (0, 1]; higher is more anomalous.
func (f *IsolationForest) Score(x [features.Count]float64) float64 {
	var total float64
	for i := range f.Trees {
		total += f.Trees[i].pathLength(x)
	}
	mean := total / float64(len(f.Trees))
	return math.Pow(2, -mean/averagePathLength(f.SampleSize))
}

// IsAnomaly reports whether x scores above the fitted threshold.
func (f *IsolationForest) IsAnomaly(x [features.Count]float64) bool {
	return f.Score(x) > f.Threshold
}

func (f *IsolationForest) validate() error {
	if len(f.Trees) == 0 {
		return fmt.Errorf("isolation forest has no trees")
	}
	if f.SampleSize < 2 {
		return fmt.Errorf("isolation forest sample size %d is too small", f.SampleSize)
	}
	if math.IsNaN(f.Threshold) || math.IsInf(f.Threshold, 0) {
		return fmt.Errorf("isolation forest threshold is not finite")
	}
	for t, tree := range f.Trees {
		if err := tree.validate(); err != nil {
			return fmt.Errorf("tree %d: %w", t, err)
		}
	}
	return nil
}

func (t isolationTree) validate() error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Leaf {
			continue
		}
		if n.Feature < 0 || n.Feature >= features.Count {
			return fmt.Errorf("node %d: feature %d out of range", i, n.Feature)
		}
		// Children are always appended after their parent, which also rules out cycles.
		if n.Left <= i || n.Left >= len(t.Nodes) || n.Right <= i || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d: child index out of range", i)
		}
	}
	return nil
}

// averagePathLength is the expected path length of an unsuccessful binary search tree lookup
// among n points, used to normalize isolation depths.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		fn := float64(n)
		return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
	}
}
