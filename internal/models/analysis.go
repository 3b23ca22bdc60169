package models

import "time"

// AttackLabel is one of the four classes produced by the attack classifier.
type AttackLabel string

const (
	LabelNormal   AttackLabel = "normal"
	LabelDDoS     AttackLabel = "ddos"
	LabelPortScan AttackLabel = "portscan"
	LabelOther    AttackLabel = "other"
)

// Labels lists the label space in distribution order.
var Labels = [4]AttackLabel{LabelNormal, LabelDDoS, LabelPortScan, LabelOther}

// Distribution is a probability vector ordered as Labels.
type Distribution [4]float64

// AnomalyResult is the outcome of one anomaly detection pass. Scores are only
// comparable within the batch they were computed for.
type AnomalyResult struct {
	Anomalies []int     `json:"anomalies"`
	Scores    []float64 `json:"scores"`
}

// ClassificationResult holds one label and distribution per input item.
type ClassificationResult struct {
	Classifications []AttackLabel  `json:"classifications"`
	Probabilities   []Distribution `json:"probabilities"`
}

// PacketsRequest is the envelope used by the extraction and batch operations.
type PacketsRequest struct {
	Packets []Packet `json:"packets"`
}

// FeaturesRequest is the envelope used by the anomaly and attack operations.
// Despite the name it carries raw packets.
type FeaturesRequest struct {
	Features []Packet `json:"features"`
}

// ExtractResponse is returned by feature extraction.
type ExtractResponse struct {
	Features []ExtendedFeatureRecord `json:"features"`
	Count    int                     `json:"count"`
}

// AnomalyResponse is returned by anomaly detection.
type AnomalyResponse = AnomalyResult

// ClassifyResponse is returned by attack classification.
type ClassifyResponse = ClassificationResult

// BatchResponse merges anomaly detection and classification for one batch.
// All arrays are aligned to the input packet order.
type BatchResponse struct {
	Anomalies       []int          `json:"anomalies"`
	Scores          []float64      `json:"scores"`
	Classifications []AttackLabel  `json:"classifications"`
	Probabilities   []Distribution `json:"probabilities"`
	Status          string         `json:"status"`
	Message         string         `json:"message,omitempty"`
}

// AnalysisRecord summarises a finished batch for the history store.
type AnalysisRecord struct {
	ID           string              `json:"id"`
	Timestamp    time.Time           `json:"timestamp"`
	Source       string              `json:"source"`
	PacketCount  int                 `json:"packet_count"`
	AnomalyCount int                 `json:"anomaly_count"`
	LabelCounts  map[AttackLabel]int `json:"label_counts"`
	Statistics   *Metrics            `json:"statistics,omitempty"`
}
