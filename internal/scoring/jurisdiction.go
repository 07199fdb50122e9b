package scoring

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/refdata"
)

// JurisdictionScorer computes country risk from the jurisdiction snapshot.
// The worst jurisdiction dominates: the aggregate is the maximum, never an
// average that could dilute a sanctioned country.
type JurisdictionScorer struct {
	ref *refdata.Store
}

// NewJurisdictionScorer creates a jurisdiction scorer over a reference-data store.
func NewJurisdictionScorer(ref *refdata.Store) *JurisdictionScorer {
	return &JurisdictionScorer{ref: ref}
}

// Score computes jurisdiction risk for a set of countries. Countries absent
// from the jurisdiction table contribute nothing and are logged.
func (s *JurisdictionScorer) Score(countries []string) domain.JurisdictionRiskSummary {
	summary := domain.JurisdictionRiskSummary{}

	seen := make(map[string]bool)
	for _, country := range countries {
		if country == "" || seen[country] {
			continue
		}
		seen[country] = true

		score, ok := s.ref.JurisdictionScore(country)
		if !ok {
			slog.Debug("no jurisdiction score for country", "country", country)
			continue
		}

		factor := domain.JurisdictionRiskFactor{
			RiskFactor: domain.RiskFactor{
				ID:          uuid.New().String(),
				Score:       score,
				Severity:    domain.SeverityForScore(score),
				Description: fmt.Sprintf("jurisdiction risk for %s", country),
			},
			Countries:        []string{country},
			IndividualScores: map[string]float64{country: score},
		}
		summary.Factors = append(summary.Factors, factor)

		if score > summary.AggregateScore {
			summary.AggregateScore = score
		}
	}

	return summary
}
