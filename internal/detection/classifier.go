package detection

import (
	"github.com/nshruti113/packet-analysis-service/internal/models"
)

// Probabilities are fixed per label and shared with downstream consumers.
var labelDistributions = map[models.AttackLabel]models.Distribution{
	models.LabelNormal:   {0.9, 0.03, 0.03, 0.04},
	models.LabelDDoS:     {0.1, 0.8, 0.05, 0.05},
	models.LabelPortScan: {0.1, 0.05, 0.8, 0.05},
	models.LabelOther:    {0.2, 0.2, 0.2, 0.4},
}

// DistributionFor returns the probability vector reported for label.
func DistributionFor(label models.AttackLabel) models.Distribution {
	return labelDistributions[label]
}

// Rule maps a feature vector condition to a label.
type Rule struct {
	ID          string
	Label       models.AttackLabel
	Description string
	Condition   func(v models.FeatureVector) bool
}

// AttackClassifier assigns each vector the label of the first matching rule,
// falling back to normal. It has no learned parameters.
//
// LabelOther is part of the label space but no rule currently yields it.
type AttackClassifier struct {
	rules []*Rule
}

// NewAttackClassifier creates a classifier with the default rule set.
func NewAttackClassifier() *AttackClassifier {
	return &AttackClassifier{rules: defaultRules()}
}

// Rules returns the loaded rules in evaluation order (read-only).
func (c *AttackClassifier) Rules() []*Rule {
	return c.rules
}

// Label classifies a single vector.
func (c *AttackClassifier) Label(v models.FeatureVector) models.AttackLabel {
	for _, rule := range c.rules {
		if rule.Condition(v) {
			return rule.Label
		}
	}
	return models.LabelNormal
}

// Classify labels vectors in order.
func (c *AttackClassifier) Classify(vectors []models.FeatureVector) models.ClassificationResult {
	result := models.ClassificationResult{
		Classifications: make([]models.AttackLabel, len(vectors)),
		Probabilities:   make([]models.Distribution, len(vectors)),
	}
	for i, v := range vectors {
		label := c.Label(v)
		result.Classifications[i] = label
		result.Probabilities[i] = DistributionFor(label)
	}
	return result
}

func isTCPSyn(v models.FeatureVector) bool {
	return v.Protocol() == models.ProtocolTCP && v.HasFlag(models.FlagSYN)
}

func defaultRules() []*Rule {
	return []*Rule{
		{
			ID:          "CLS-001",
			Label:       models.LabelDDoS,
			Description: "Small TCP SYN packet, typical of SYN flood traffic",
			Condition: func(v models.FeatureVector) bool {
				return isTCPSyn(v) && v.Length() < 100
			},
		},
		{
			ID:          "CLS-002",
			Label:       models.LabelPortScan,
			Description: "TCP SYN towards an unprivileged port",
			Condition: func(v models.FeatureVector) bool {
				return isTCPSyn(v) && v.DestinationPort() > 1024
			},
		},
	}
}
