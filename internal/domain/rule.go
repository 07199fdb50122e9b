package domain

import "time"

// RiskRuleConfig defines one configurable transaction risk rule.
// The CEL expression is evaluated against the seed transaction and must
// return a numeric score in [0,100] or a bool (true = 100, false = 0).
// Each rule feeds the transaction-risk kind it is configured for.
type RiskRuleConfig struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Kind        TransactionRiskKind `json:"kind"`
	Expression  string              `json:"expression"`
	Enabled     bool                `json:"enabled"`
	CreatedAt   time.Time           `json:"createdAt,omitempty"`
	UpdatedAt   time.Time           `json:"updatedAt,omitempty"`
}
