package detection

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sort"
)

const eulerGamma = 0.5772156649015329

// IsolationForestConfig holds the model hyper-parameters.
type IsolationForestConfig struct {
	// Trees is the number of isolation trees in the ensemble.
	Trees int
	// MaxSamples caps the sub-sample drawn for each tree.
	MaxSamples int
	// Contamination is the expected share of outliers, in (0, 0.5].
	Contamination float64
	// Seed makes every fit reproducible for a given data set.
	Seed int64
}

// DefaultIsolationForestConfig returns the parameters used by the service.
func DefaultIsolationForestConfig() IsolationForestConfig {
	return IsolationForestConfig{
		Trees:         100,
		MaxSamples:    256,
		Contamination: 0.1,
		Seed:          42,
	}
}

func (c IsolationForestConfig) validate() error {
	if c.Trees <= 0 {
		return fmt.Errorf("trees must be positive, got %d", c.Trees)
	}
	if c.MaxSamples <= 0 {
		return fmt.Errorf("max samples must be positive, got %d", c.MaxSamples)
	}
	if !(c.Contamination > 0 && c.Contamination <= 0.5) {
		return fmt.Errorf("contamination must be in (0, 0.5], got %v", c.Contamination)
	}
	return nil
}

// IsolationForest scores samples by how quickly random axis-aligned splits
// separate them from the rest of the data. It is not safe for concurrent use.
type IsolationForest struct {
	cfg        IsolationForestConfig
	trees      []*isoNode
	sampleSize int
	dims       int
	offset     float64
}

type isoNode struct {
	feature     int
	threshold   float64
	left, right *isoNode
	size        int
}

func NewIsolationForest(cfg IsolationForestConfig) *IsolationForest {
	return &IsolationForest{cfg: cfg}
}

// Fit grows a fresh ensemble on data, replacing any previous fit, and sets the
// decision offset so that a Contamination share of data falls below zero.
func (f *IsolationForest) Fit(data [][]float64) error {
	if err := f.cfg.validate(); err != nil {
		return err
	}
	dims, err := checkMatrix(data, 0)
	if err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(f.cfg.Seed))
	n := len(data)
	sampleSize := min(f.cfg.MaxSamples, n)
	maxDepth := int(math.Ceil(math.Log2(float64(max(sampleSize, 2)))))

	trees := make([]*isoNode, f.cfg.Trees)
	for t := range trees {
		idx := rng.Perm(n)[:sampleSize]
		trees[t] = growTree(data, idx, 0, maxDepth, dims, rng)
	}

	f.trees = trees
	f.sampleSize = sampleSize
	f.dims = dims
	f.offset = 0

	scores, err := f.ScoreSamples(data)
	if err != nil {
		return err
	}
	f.offset = percentile(scores, 100*f.cfg.Contamination)
	return nil
}

// ScoreSamples returns the opposite of the anomaly score of each sample, in
// [-1, 0). Lower values are more abnormal.
func (f *IsolationForest) ScoreSamples(data [][]float64) ([]float64, error) {
	if f.trees == nil {
		return nil, errors.New("isolation forest is not fitted")
	}
	if _, err := checkMatrix(data, f.dims); err != nil {
		return nil, err
	}

	denominator := float64(len(f.trees)) * averagePathLength(f.sampleSize)
	scores := make([]float64, len(data))
	for i, x := range data {
		var depth float64
		for _, tree := range f.trees {
			depth += pathLength(x, tree)
		}
		ratio := 1.0
		if denominator != 0 {
			ratio = depth / denominator
		}
		scores[i] = -math.Pow(2, -ratio)
	}
	return scores, nil
}

// DecisionFunction shifts ScoreSamples by the fitted offset. Negative values
// are outliers.
func (f *IsolationForest) DecisionFunction(data [][]float64) ([]float64, error) {
	scores, err := f.ScoreSamples(data)
	if err != nil {
		return nil, err
	}
	for i := range scores {
		scores[i] -= f.offset
	}
	return scores, nil
}

// Predict reports, per sample, whether it is an outlier.
func (f *IsolationForest) Predict(data [][]float64) ([]bool, error) {
	decision, err := f.DecisionFunction(data)
	if err != nil {
		return nil, err
	}
	outliers := make([]bool, len(decision))
	for i, d := range decision {
		outliers[i] = d < 0
	}
	return outliers, nil
}

func growTree(data [][]float64, idx []int, depth, maxDepth, dims int, rng *rand.Rand) *isoNode {
	if depth >= maxDepth || len(idx) <= 1 {
		return &isoNode{size: len(idx)}
	}

	type span struct {
		feature int
		lo, hi  float64
	}
	spans := make([]span, 0, dims)
	for j := 0; j < dims; j++ {
		lo, hi := data[idx[0]][j], data[idx[0]][j]
		for _, i := range idx[1:] {
			v := data[i][j]
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		if hi > lo {
			spans = append(spans, span{j, lo, hi})
		}
	}
	// every remaining sample is identical
	if len(spans) == 0 {
		return &isoNode{size: len(idx)}
	}

	s := spans[rng.Intn(len(spans))]
	threshold := s.lo + rng.Float64()*(s.hi-s.lo)

	var left, right []int
	for _, i := range idx {
		if data[i][s.feature] <= threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	return &isoNode{
		feature:   s.feature,
		threshold: threshold,
		left:      growTree(data, left, depth+1, maxDepth, dims, rng),
		right:     growTree(data, right, depth+1, maxDepth, dims, rng),
		size:      len(idx),
	}
}

func pathLength(x []float64, n *isoNode) float64 {
	var depth float64
	for n.left != nil {
		if x[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return depth + averagePathLength(n.size)
}

// averagePathLength is the mean depth of an unsuccessful search in a binary
// search tree of n nodes.
func averagePathLength(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	}
	fn := float64(n)
	return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
}

// percentile uses linear interpolation between closest ranks.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	return sorted[lo] + (sorted[hi]-sorted[lo])*(rank-float64(lo))
}

// checkMatrix validates shape and values. want == 0 accepts any width.
func checkMatrix(data [][]float64, want int) (int, error) {
	if len(data) == 0 {
		return 0, errors.New("no samples")
	}
	dims := want
	if dims == 0 {
		dims = len(data[0])
	}
	if dims == 0 {
		return 0, errors.New("samples have no features")
	}
	for i, row := range data {
		if len(row) != dims {
			return 0, fmt.Errorf("sample %d has %d features, want %d", i, len(row), dims)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return 0, fmt.Errorf("sample %d feature %d is not finite", i, j)
			}
		}
	}
	return dims, nil
}
