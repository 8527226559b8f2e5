package ml

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"smartair-guardian/internal/features"
)

// RandomForestConfig controls risk classifier fitting.
type RandomForestConfig struct {
	Trees       int    `yaml:"trees"`
	MaxDepth    int    `yaml:"maxDepth"`
	MaxFeatures int    `yaml:"maxFeatures"`
	Seed        uint64 `yaml:"seed"`
}

// DefaultRandomForestConfig returns 150 bootstrap trees of depth at most 8, considering
// floor(sqrt(features)) columns per split.
func DefaultRandomForestConfig(seed uint64) RandomForestConfig {
	return RandomForestConfig{
		Trees:       150,
		MaxDepth:    8,
		MaxFeatures: int(math.Sqrt(features.Count)),
		Seed:        seed,
	}
}

type decisionNode struct {
	Leaf      bool      `json:"leaf,omitempty"`
	Probs     []float64 `json:"probs,omitempty"`
	Feature   int       `json:"feature,omitempty"`
	Threshold float64   `json:"threshold,omitempty"`
	Left      int       `json:"left,omitempty"`
	Right     int       `json:"right,omitempty"`
}

type decisionTree struct {
	Nodes []decisionNode `json:"nodes"`
}

// RandomForest is a bagged ensemble of Gini decision trees. Leaves store class probabilities and the
// forest predicts the class with the highest mean probability.
type RandomForest struct {
	Classes []int          `json:"classes"`
	Trees   []decisionTree `json:"trees"`
}

type treeBuilder struct {
	rng         *rand.Rand
	x           [][features.Count]float64
	y           []int
	classes     int
	maxDepth    int
	maxFeatures int
}

// FitRandomForest fits a classifier for labels in [0, classes).
func FitRandomForest(x [][features.Count]float64, y []int, classes int, cfg RandomForestConfig) (*RandomForest, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("random forest needs at least one sample")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("feature rows (%d) and labels (%d) differ", len(x), len(y))
	}
	if cfg.Trees <= 0 || cfg.MaxDepth <= 0 {
		return nil, fmt.Errorf("random forest needs positive tree count and depth, got %d and %d", cfg.Trees, cfg.MaxDepth)
	}
	for i, label := range y {
		if label < 0 || label >= classes {
			return nil, fmt.Errorf("label %d at row %d outside [0, %d)", label, i, classes)
		}
	}

	maxFeatures := cfg.MaxFeatures
	if maxFeatures <= 0 || maxFeatures > features.Count {
		maxFeatures = features.Count
	}

	b := &treeBuilder{
		rng:         rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x7a4d0f0e57)),
		x:           x,
		y:           y,
		classes:     classes,
		maxDepth:    cfg.MaxDepth,
		maxFeatures: maxFeatures,
	}

	f := &RandomForest{
		Classes: make([]int, classes),
		Trees:   make([]decisionTree, cfg.Trees),
	}
	for c := range f.Classes {
		f.Classes[c] = c
	}

	for t := range f.Trees {
		sample := make([]int, len(x))
		for i := range sample {
			sample[i] = b.rng.IntN(len(x))
		}
		var tree decisionTree
		b.grow(&tree, sample, 0)
		f.Trees[t] = tree
	}

	return f, nil
}

func (b *treeBuilder) grow(t *decisionTree, idx []int, depth int) int {
	id := len(t.Nodes)
	t.Nodes = append(t.Nodes, decisionNode{})

	counts := make([]float64, b.classes)
	for _, i := range idx {
		counts[b.y[i]]++
	}

	if depth >= b.maxDepth || len(idx) < 2 || isPure(counts) {
		t.Nodes[id] = b.leaf(counts, len(idx))
		return id
	}

	feature, threshold, ok := b.bestSplit(idx, counts)
	if !ok {
		t.Nodes[id] = b.leaf(counts, len(idx))
		return id
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i][feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	l := b.grow(t, left, depth+1)
	r := b.grow(t, right, depth+1)
	t.Nodes[id] = decisionNode{Feature: feature, Threshold: threshold, Left: l, Right: r}
	return id
}

func (b *treeBuilder) leaf(counts []float64, n int) decisionNode {
	probs := make([]float64, len(counts))
	for c, v := range counts {
		probs[c] = v / float64(n)
	}
	return decisionNode{Leaf: true, Probs: probs}
}

// bestSplit scans a random subset of columns for the threshold with the lowest weighted Gini impurity.
func (b *treeBuilder) bestSplit(idx []int, total []float64) (int, float64, bool) {
	bestFeature, bestThreshold := -1, 0.0
	bestImpurity := math.Inf(1)
	n := float64(len(idx))

	sorted := make([]int, len(idx))
	left := make([]float64, b.classes)
	right := make([]float64, b.classes)

	for _, feature := range b.rng.Perm(features.Count)[:b.maxFeatures] {
		copy(sorted, idx)
		sort.Slice(sorted, func(i, j int) bool {
			return b.x[sorted[i]][feature] < b.x[sorted[j]][feature]
		})

		for c := range left {
			left[c] = 0
			right[c] = total[c]
		}

		for k := 0; k < len(sorted)-1; k++ {
			label := b.y[sorted[k]]
			left[label]++
			right[label]--

			cur, next := b.x[sorted[k]][feature], b.x[sorted[k+1]][feature]
			if cur == next {
				continue
			}

			nl := float64(k + 1)
			nr := n - nl
			impurity := (nl*gini(left, nl) + nr*gini(right, nr)) / n
			if impurity < bestImpurity {
				bestImpurity = impurity
				bestFeature = feature
				bestThreshold = cur + (next-cur)/2
				// Midpoints of adjacent floats can round up to next.
				if bestThreshold >= next {
					bestThreshold = cur
				}
			}
		}
	}

	return bestFeature, bestThreshold, bestFeature >= 0
}

func gini(counts []float64, n float64) float64 {
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, c := range counts {
		p := c / n
		sum += p * p
	}
	return 1 - sum
}

func isPure(counts []float64) bool {
	nonZero := 0
	for _, c := range counts {
		if c > 0 {
			nonZero++
		}
	}
	return nonZero <= 1
}

// Probabilities returns the mean leaf class distribution over all trees.
func (f *RandomForest) Probabilities(x [features.Count]float64) []float64 {
	probs := make([]float64, len(f.Classes))
	for ti := range f.Trees {
		leaf := f.Trees[ti].leafFor(x)
		for c, p := range leaf.Probs {
			probs[c] += p
		}
	}
	for c := range probs {
		probs[c] /= float64(len(f.Trees))
	}
	return probs
}

// PredictClass returns the class label with the highest mean probability; ties go to the lower index.
func (f *RandomForest) PredictClass(x [features.Count]float64) int {
	probs := f.Probabilities(x)
	best := 0
	for c := 1; c < len(probs); c++ {
		if probs[c] > probs[best] {
			best = c
		}
	}
	return f.Classes[best]
}

// Accuracy is the fraction of rows whose predicted class equals the label.
func (f *RandomForest) Accuracy(x [][features.Count]float64, y []int) float64 {
	if len(x) == 0 {
		return 0
	}
	correct := 0
	for i := range x {
		if f.PredictClass(x[i]) == y[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(x))
}

func (t *decisionTree) leafFor(x [features.Count]float64) decisionNode {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return n
		}
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

func (f *RandomForest) validate() error {
	if len(f.Classes) == 0 {
		return fmt.Errorf("random forest has no classes")
	}
	if len(f.Trees) == 0 {
		return fmt.Errorf("random forest has no trees")
	}
	for ti, t := range f.Trees {
		if len(t.Nodes) == 0 {
			return fmt.Errorf("tree %d: empty tree", ti)
		}
		for i, n := range t.Nodes {
			if n.Leaf {
				if len(n.Probs) != len(f.Classes) {
					return fmt.Errorf("tree %d node %d: %d probabilities for %d classes", ti, i, len(n.Probs), len(f.Classes))
				}
				continue
			}
			if n.Feature < 0 || n.Feature >= features.Count {
				return fmt.Errorf("tree %d node %d: feature %d out of range", ti, i, n.Feature)
			}
			if n.Left <= i || n.Left >= len(t.Nodes) || n.Right <= i || n.Right >= len(t.Nodes) {
				return fmt.Errorf("tree %d node %d: child index out of range", ti, i)
			}
		}
	}
	return nil
}
