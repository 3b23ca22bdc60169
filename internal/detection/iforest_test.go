package detection

import (
	"math"
	"math/rand"
	"testing"
)

func TestAveragePathLength(t *testing.T) {
	tests := []struct {
		n    int
		want float64
	}{
		{0, 0},
		{1, 0},
		{2, 1},
		{3, 2*(math.Log(2)+eulerGamma) - 2*2.0/3.0},
		{256, 2*(math.Log(255)+eulerGamma) - 2*255.0/256.0},
	}
	for _, tt := range tests {
		if got := averagePathLength(tt.n); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("averagePathLength(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

func TestPercentile(t *testing.T) {
	values := []float64{4, 1, 3, 2, 5}
	tests := []struct {
		p    float64
		want float64
	}{
		{0, 1},
		{100, 5},
		{50, 3},
		{10, 1.4},
		{25, 2},
	}
	for _, tt := range tests {
		if got := percentile(values, tt.p); math.Abs(got-tt.want) > 1e-12 {
			t.Errorf("percentile(%v) = %v, want %v", tt.p, got, tt.want)
		}
	}
	if values[0] != 4 {
		t.Error("percentile must not reorder its input")
	}
}

func TestIsolationForest_FitErrors(t *testing.T) {
	tests := []struct {
		name string
		cfg  IsolationForestConfig
		data [][]float64
	}{
		{"no samples", DefaultIsolationForestConfig(), nil},
		{"no features", DefaultIsolationForestConfig(), [][]float64{{}}},
		{"ragged rows", DefaultIsolationForestConfig(), [][]float64{{1, 2}, {3}}},
		{"nan value", DefaultIsolationForestConfig(), [][]float64{{1}, {math.NaN()}}},
		{"zero contamination", IsolationForestConfig{Trees: 10, MaxSamples: 16, Contamination: 0}, [][]float64{{1}, {2}}},
		{"zero trees", IsolationForestConfig{Trees: 0, MaxSamples: 16, Contamination: 0.1}, [][]float64{{1}, {2}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewIsolationForest(tt.cfg)
			if err := f.Fit(tt.data); err == nil {
				t.Error("expected Fit error")
			}
		})
	}
}

func TestIsolationForest_ScoreBeforeFit(t *testing.T) {
	f := NewIsolationForest(DefaultIsolationForestConfig())
	if _, err := f.ScoreSamples([][]float64{{1}}); err == nil {
		t.Error("expected error scoring an unfitted forest")
	}
}

func TestIsolationForest_DimensionMismatch(t *testing.T) {
	f := NewIsolationForest(DefaultIsolationForestConfig())
	if err := f.Fit([][]float64{{1, 2}, {2, 3}, {3, 4}}); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	if _, err := f.DecisionFunction([][]float64{{1, 2, 3}}); err == nil {
		t.Error("expected error for wrong feature count")
	}
}

func TestIsolationForest_ScoreRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	data := make([][]float64, 300)
	for i := range data {
		data[i] = []float64{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}
	}

	f := NewIsolationForest(DefaultIsolationForestConfig())
	if err := f.Fit(data); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	scores, err := f.ScoreSamples(data)
	if err != nil {
		t.Fatalf("ScoreSamples: %v", err)
	}
	for i, s := range scores {
		if s >= 0 || s < -1 {
			t.Fatalf("score[%d] = %v outside [-1, 0)", i, s)
		}
	}

	outliers, err := f.Predict(data)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	n := 0
	for _, o := range outliers {
		if o {
			n++
		}
	}
	if n < 20 || n > 36 {
		t.Errorf("flagged %d of %d samples, want about 10%%", n, len(data))
	}
}

func TestIsolationForest_FarPointScoresLowest(t *testing.T) {
	data := [][]float64{{0, 0}, {0.1, 0.2}, {0.2, 0.1}, {-0.1, 0}, {0, -0.2}, {0.1, 0.1}, {50, 50}, {-0.2, 0.1}}
	f := NewIsolationForest(DefaultIsolationForestConfig())
	if err := f.Fit(data); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	scores, err := f.ScoreSamples(data)
	if err != nil {
		t.Fatalf("ScoreSamples: %v", err)
	}
	for i, s := range scores {
		if i != 6 && s <= scores[6] {
			t.Errorf("score[%d] = %v not above far point score %v", i, s, scores[6])
		}
	}
}

func TestIsolationForest_IdenticalSamples(t *testing.T) {
	data := [][]float64{{5, 5}, {5, 5}, {5, 5}, {5, 5}}
	f := NewIsolationForest(DefaultIsolationForestConfig())
	if err := f.Fit(data); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	outliers, err := f.Predict(data)
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	for i, o := range outliers {
		if o {
			t.Errorf("sample %d flagged among identical samples", i)
		}
	}
}

func TestIsolationForest_SingleSample(t *testing.T) {
	f := NewIsolationForest(DefaultIsolationForestConfig())
	if err := f.Fit([][]float64{{1, 2, 3}}); err != nil {
		t.Fatalf("Fit: %v", err)
	}
	scores, err := f.ScoreSamples([][]float64{{1, 2, 3}})
	if err != nil {
		t.Fatalf("ScoreSamples: %v", err)
	}
	if scores[0] != -0.5 {
		t.Errorf("single sample score = %v, want -0.5", scores[0])
	}
}
