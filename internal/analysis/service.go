// Package analysis wires the feature extractor, the anomaly detector and the
// attack classifier into the four operations exposed by the service.
package analysis

import (
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/nshruti113/packet-analysis-service/internal/detection"
	"github.com/nshruti113/packet-analysis-service/internal/features"
	"github.com/nshruti113/packet-analysis-service/internal/metrics"
	"github.com/nshruti113/packet-analysis-service/internal/models"
)

const (
	StatusSuccess = "success"

	emptyBatchMessage = "no packets to analyze"
)

// Service is safe for concurrent use. The anomaly detector serialises its own
// fit and score; everything else is stateless.
type Service struct {
	log        *logrus.Logger
	extractor  *features.Extractor
	detector   *detection.AnomalyDetector
	classifier *detection.AttackClassifier
}

// New creates a Service around detector and the default classifier rules.
func New(detector *detection.AnomalyDetector, log *logrus.Logger) *Service {
	return &Service{
		log:        log,
		extractor:  features.NewExtractor(),
		detector:   detector,
		classifier: detection.NewAttackClassifier(),
	}
}

// Detector returns the anomaly detector.
func (s *Service) Detector() *detection.AnomalyDetector { return s.detector }

// Classifier returns the attack classifier.
func (s *Service) Classifier() *detection.AttackClassifier { return s.classifier }

// ExtractFeatures builds the named feature record for every packet.
func (s *Service) ExtractFeatures(packets []models.Packet) models.ExtractResponse {
	defer observe("extract", time.Now())
	metrics.PacketsAnalyzed.WithLabelValues("extract").Add(float64(len(packets)))

	records := s.extractor.ExtendedRecords(packets)
	return models.ExtractResponse{Features: records, Count: len(records)}
}

// DetectAnomalies scores packets against a model fitted on the same packets.
func (s *Service) DetectAnomalies(packets []models.Packet) (models.AnomalyResponse, error) {
	defer observe("anomaly", time.Now())
	metrics.PacketsAnalyzed.WithLabelValues("anomaly").Add(float64(len(packets)))

	res, err := s.detector.Detect(s.extractor.Vectors(packets))
	if err != nil {
		s.fail(err, "anomaly", len(packets))
		return models.AnomalyResponse{}, err
	}
	metrics.AnomaliesFlagged.Add(float64(len(res.Anomalies)))
	return res, nil
}

// ClassifyAttacks labels every packet.
func (s *Service) ClassifyAttacks(packets []models.Packet) models.ClassifyResponse {
	defer observe("attack", time.Now())
	metrics.PacketsAnalyzed.WithLabelValues("attack").Add(float64(len(packets)))

	res := s.classifier.Classify(s.extractor.Vectors(packets))
	countLabels(res.Classifications)
	return res
}

// AnalyzeBatch extracts features once and feeds the same vectors to the
// detector and the classifier. All arrays in the result follow input order.
// An empty batch succeeds without touching either model.
func (s *Service) AnalyzeBatch(packets []models.Packet) (models.BatchResponse, error) {
	if len(packets) == 0 {
		return models.BatchResponse{
			Anomalies:       []int{},
			Scores:          []float64{},
			Classifications: []models.AttackLabel{},
			Probabilities:   []models.Distribution{},
			Status:          StatusSuccess,
			Message:         emptyBatchMessage,
		}, nil
	}

	defer observe("batch", time.Now())
	metrics.PacketsAnalyzed.WithLabelValues("batch").Add(float64(len(packets)))

	vectors := s.extractor.Vectors(packets)

	anomalies, err := s.detector.Detect(vectors)
	if err != nil {
		s.fail(err, "batch", len(packets))
		return models.BatchResponse{}, err
	}
	classes := s.classifier.Classify(vectors)

	metrics.AnomaliesFlagged.Add(float64(len(anomalies.Anomalies)))
	countLabels(classes.Classifications)

	s.log.WithFields(logrus.Fields{
		"packets":   len(packets),
		"anomalies": len(anomalies.Anomalies),
	}).Debug("Batch analysed")

	return models.BatchResponse{
		Anomalies:       anomalies.Anomalies,
		Scores:          anomalies.Scores,
		Classifications: classes.Classifications,
		Probabilities:   classes.Probabilities,
		Status:          StatusSuccess,
	}, nil
}

// Summarize condenses a finished batch into a history record.
func (s *Service) Summarize(packets []models.Packet, verdict models.BatchResponse, source string) models.AnalysisRecord {
	labels := make(map[models.AttackLabel]int)
	for _, l := range verdict.Classifications {
		labels[l]++
	}
	record := models.AnalysisRecord{
		ID:           uuid.New().String(),
		Timestamp:    time.Now(),
		Source:       source,
		PacketCount:  len(packets),
		AnomalyCount: len(verdict.Anomalies),
		LabelCounts:  labels,
	}
	if len(packets) > 0 {
		record.Statistics = detection.CalculateMetrics(packets)
	}
	return record
}

func (s *Service) fail(err error, op string, n int) {
	kind := detection.KindOf(err)
	metrics.AnalysisFailures.WithLabelValues(string(kind)).Inc()
	s.log.WithError(err).WithFields(logrus.Fields{
		"operation": op,
		"packets":   n,
		"kind":      kind,
	}).Error("Analysis failed")
}

func countLabels(labels []models.AttackLabel) {
	for _, l := range labels {
		metrics.Classifications.WithLabelValues(string(l)).Inc()
	}
}

func observe(op string, start time.Time) {
	metrics.BatchDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
