// Package detection holds the per-packet decision logic: the isolation-forest
// anomaly detector, the rule-based attack classifier and the batch alert rules
// built on top of both.
package detection

import (
	"sync"

	"github.com/nshruti113/packet-analysis-service/internal/models"
)

// AnomalyDetector flags outliers inside a single batch of feature vectors.
//
// The underlying forest is shared by the whole process and built lazily on
// first use. It is re-fitted on every call, so fit and score run as one
// critical section: concurrent callers queue instead of scoring against a
// model fitted on someone else's batch. Scores are therefore batch-relative
// and must not be compared across calls.
type AnomalyDetector struct {
	cfg IsolationForestConfig

	once   sync.Once
	mu     sync.Mutex
	forest *IsolationForest
}

func NewAnomalyDetector(cfg IsolationForestConfig) *AnomalyDetector {
	return &AnomalyDetector{cfg: cfg}
}

// Config returns the model parameters.
func (d *AnomalyDetector) Config() IsolationForestConfig {
	return d.cfg
}

func (d *AnomalyDetector) model() *IsolationForest {
	d.once.Do(func() {
		d.forest = NewIsolationForest(d.cfg)
	})
	return d.forest
}

// Detect fits the model on vectors and scores the same vectors. Anomalies are
// indices into vectors; Scores has one entry per vector, higher meaning more
// anomalous. An empty input yields an empty result.
func (d *AnomalyDetector) Detect(vectors []models.FeatureVector) (models.AnomalyResult, error) {
	result := models.AnomalyResult{
		Anomalies: []int{},
		Scores:    make([]float64, len(vectors)),
	}
	if len(vectors) == 0 {
		return result, nil
	}

	data := make([][]float64, len(vectors))
	for i, v := range vectors {
		data[i] = append([]float64(nil), v[:]...)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	forest := d.model()
	if err := forest.Fit(data); err != nil {
		return models.AnomalyResult{}, Internal("fit anomaly model", err)
	}
	decision, err := forest.DecisionFunction(data)
	if err != nil {
		return models.AnomalyResult{}, Internal("score anomaly model", err)
	}

	for i, s := range decision {
		if s < 0 {
			result.Anomalies = append(result.Anomalies, i)
		}
		result.Scores[i] = -s
	}
	return result, nil
}
