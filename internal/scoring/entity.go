// Package scoring computes entity, jurisdiction and transaction-graph risk
// and combines them into an overall score.
package scoring

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/refdata"
)

// EntityScorer computes entity-type risk from the catalog snapshot.
type EntityScorer struct {
	ref *refdata.Store
}

// NewEntityScorer creates an entity scorer over a reference-data store.
func NewEntityScorer(ref *refdata.Store) *EntityScorer {
	return &EntityScorer{ref: ref}
}

// Score computes the entity risk for a resolved attribution. Unknown entity
// types score zero and are flagged in the factor description; they never
// fail the scoring run.
func (s *EntityScorer) Score(attr *domain.ResolvedAttribution, modifiers []domain.Modifier) domain.EntityRiskSummary {
	factor := s.Factor(attr, modifiers)
	return domain.EntityRiskSummary{
		Factors:        []domain.EntityRiskFactor{factor},
		AggregateScore: factor.Score,
	}
}

// Factor computes a single entity risk factor.
func (s *EntityScorer) Factor(attr *domain.ResolvedAttribution, modifiers []domain.Modifier) domain.EntityRiskFactor {
	factor := domain.EntityRiskFactor{
		RiskFactor: domain.RiskFactor{
			ID: uuid.New().String(),
		},
		EntityType: attr.EntityType,
		Modifiers:  modifiers,
	}

	base := 0.0
	switch {
	case !attr.Attributed:
		factor.Description = "address is unattributed"
	default:
		info, ok := s.ref.EntityType(attr.EntityType)
		if !ok {
			factor.Description = fmt.Sprintf("unknown entity type %q", attr.EntityType)
		} else {
			base = info.RiskScore
			factor.Description = fmt.Sprintf("entity type %s (%s)", info.EntityType, info.Category)
			if info.RiskFlag {
				factor.Tags = append(factor.Tags, "flagged")
			}
		}
	}

	// Apply modifiers. The Maximum sentinel dominates everything.
	forced := false
	for _, m := range modifiers {
		if m.Impact.IsMaximum() {
			forced = true
			continue
		}
		base += m.Impact.Value()
	}

	if forced {
		factor.Score = 100
	} else {
		factor.Score = domain.ClampScore(base)
	}
	factor.Severity = domain.SeverityForScore(factor.Score)

	return factor
}
