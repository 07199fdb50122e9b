package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

// Severity classifies a risk factor score.
type Severity string

const (
	SeverityHigh   Severity = "high"
	SeverityMedium Severity = "medium"
	SeverityLow    Severity = "low"
)

// Severity banding thresholds.
const (
	HighSeverityThreshold   = 70.0
	MediumSeverityThreshold = 40.0
)

// SeverityForScore maps a 0-100 score to a severity band.
func SeverityForScore(score float64) Severity {
	switch {
	case score >= HighSeverityThreshold:
		return SeverityHigh
	case score >= MediumSeverityThreshold:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// ClampScore bounds a score to [0,100].
func ClampScore(score float64) float64 {
	return math.Min(100, math.Max(0, score))
}

// RiskFactor is the base shape shared by all factor specializations.
type RiskFactor struct {
	ID          string   `json:"id"`
	Score       float64  `json:"score"` // 0-100
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
	Details     string   `json:"details,omitempty"`
}

// Impact is a closed variant: either a numeric score adjustment or the
// "Maximum" sentinel that forces the score to 100.
type Impact struct {
	maximum bool
	value   float64
}

// NumericImpact returns an impact that adds value to the base score.
func NumericImpact(value float64) Impact {
	return Impact{value: value}
}

// MaximumImpact returns the sentinel impact forcing score 100.
func MaximumImpact() Impact {
	return Impact{maximum: true}
}

// IsMaximum reports whether this is the Maximum sentinel.
func (i Impact) IsMaximum() bool { return i.maximum }

// Value returns the numeric adjustment; zero for the Maximum sentinel.
func (i Impact) Value() float64 { return i.value }

// MarshalJSON encodes Maximum as the string literal "Maximum".
func (i Impact) MarshalJSON() ([]byte, error) {
	if i.maximum {
		return json.Marshal("Maximum")
	}
	return json.Marshal(i.value)
}

// UnmarshalJSON accepts either a number or the string "Maximum".
func (i *Impact) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "Maximum" {
			return fmt.Errorf("invalid impact literal %q", s)
		}
		*i = MaximumImpact()
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("impact must be a number or \"Maximum\": %w", err)
	}
	*i = NumericImpact(v)
	return nil
}

// Modifier adjusts an entity risk score based on behavioral signals.
type Modifier struct {
	Type   string `json:"type"`
	Impact Impact `json:"impact"`
}

// EntityRiskFactor carries entity-type risk details.
type EntityRiskFactor struct {
	RiskFactor
	EntityType string     `json:"entityType"`
	Tags       []string   `json:"tags,omitempty"`
	Modifiers  []Modifier `json:"modifiers,omitempty"`
}

// JurisdictionRiskFactor carries country risk details.
type JurisdictionRiskFactor struct {
	RiskFactor
	Countries        []string           `json:"countries"`
	IndividualScores map[string]float64 `json:"individualScores,omitempty"`
}

// TransactionRiskKind identifies one dimension of transaction-graph risk.
type TransactionRiskKind string

const (
	RiskKindAmount   TransactionRiskKind = "amount"
	RiskKindSender   TransactionRiskKind = "sender"
	RiskKindReceiver TransactionRiskKind = "receiver"
	RiskKindPattern  TransactionRiskKind = "pattern"
	RiskKindTiming   TransactionRiskKind = "timing"
)

// Hop records one decayed counterparty contribution during graph traversal.
type Hop struct {
	TxHash    string  `json:"txHash"`
	RiskScore float64 `json:"riskScore"`
	HopLevel  int     `json:"hopLevel"`
	Weight    float64 `json:"weight"`
}

// TransactionRiskFactor carries per-kind transaction risk, with hop
// contributions for graph-derived kinds.
type TransactionRiskFactor struct {
	RiskFactor
	Kind TransactionRiskKind `json:"kind"`
	Hops []Hop               `json:"hops,omitempty"`
}

// EntityRiskSummary is an ordered factor collection with its aggregate.
type EntityRiskSummary struct {
	Factors        []EntityRiskFactor `json:"factors"`
	AggregateScore float64            `json:"aggregateScore"`
}

// JurisdictionRiskSummary is an ordered factor collection with its aggregate.
type JurisdictionRiskSummary struct {
	Factors        []JurisdictionRiskFactor `json:"factors"`
	AggregateScore float64                  `json:"aggregateScore"`
}

// TransactionRiskSummary is an ordered factor collection with its aggregate.
type TransactionRiskSummary struct {
	Factors        []TransactionRiskFactor `json:"factors"`
	AggregateScore float64                 `json:"aggregateScore"`
}

// AnalysisType distinguishes address-level from transaction-level scoring.
type AnalysisType string

const (
	AnalysisAddress     AnalysisType = "address"
	AnalysisTransaction AnalysisType = "transaction"
)

// RiskScoringResult is the complete, ephemeral output of one scoring run.
// It may be cached but is never the system of record.
type RiskScoringResult struct {
	Subject          string                  `json:"subject"`
	AnalysisType     AnalysisType            `json:"analysisType"`
	EntityRisk       EntityRiskSummary       `json:"entityRisk"`
	JurisdictionRisk JurisdictionRiskSummary `json:"jurisdictionRisk"`
	TransactionRisk  TransactionRiskSummary  `json:"transactionRisk"`
	OverallRisk      float64                 `json:"overallRisk"` // 0-100, rounded

	// Partial is set when the chain source was unreachable for part of the
	// traversal and missing hops were treated as zero contribution.
	Partial bool `json:"partial,omitempty"`
}
