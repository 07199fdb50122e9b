package rules

import "github.com/opensource-finance/harrier/internal/domain"

// DefaultRiskRules returns the rule set loaded when the database holds no
// configured rules. Organizations typically replace these with their own.
func DefaultRiskRules() []*domain.RiskRuleConfig {
	return []*domain.RiskRuleConfig{
		{
			ID:          "builtin-large-amount",
			Name:        "Large Amount",
			Description: "Transactions above the large-amount threshold",
			Kind:        domain.RiskKindAmount,
			Expression:  "amount > 10000.0 ? 60.0 : (amount > 1000.0 ? 25.0 : 0.0)",
			Enabled:     true,
		},
		{
			ID:          "builtin-very-large-amount",
			Name:        "Very Large Amount",
			Description: "Transactions above the reporting threshold",
			Kind:        domain.RiskKindAmount,
			Expression:  "amount > 100000.0 ? 85.0 : 0.0",
			Enabled:     true,
		},
		{
			ID:          "builtin-velocity-burst",
			Name:        "Velocity Burst",
			Description: "Many transactions on one address in a short window",
			Kind:        domain.RiskKindPattern,
			Expression:  "velocity_count > 20 ? 70.0 : (velocity_count > 10 ? 40.0 : 0.0)",
			Enabled:     true,
		},
		{
			ID:          "builtin-fan-out",
			Name:        "Fan Out",
			Description: "One input spraying to many outputs",
			Kind:        domain.RiskKindPattern,
			Expression:  "input_count <= 2 && output_count > 10 ? 55.0 : 0.0",
			Enabled:     true,
		},
		{
			ID:          "builtin-odd-hours",
			Name:        "Odd Hours",
			Description: "Activity during low-traffic UTC hours",
			Kind:        domain.RiskKindTiming,
			Expression:  "hour_of_day < 6 ? 30.0 : 0.0",
			Enabled:     true,
		},
	}
}
