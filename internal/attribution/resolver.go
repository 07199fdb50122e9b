// Package attribution resolves an address to the entity assignment
// best-supported by the available attribution sources.
package attribution

import (
	"sort"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Resolve selects the single winning attribution for an address.
//
// Candidates are ordered by a total-order comparator: priorityRank ascending,
// then observedDate descending (most recent wins), then priority ascending.
// The first record after sorting wins. An empty record set resolves to
// "unattributed" rather than an error.
//
// Resolve is pure: it never mutates its input and repeated calls with the
// same records (in any order) return the same winner.
func Resolve(address string, records []*domain.AttributionRecord) *domain.ResolvedAttribution {
	if len(records) == 0 {
		return domain.Unattributed(address)
	}

	sorted := make([]*domain.AttributionRecord, len(records))
	copy(sorted, records)

	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.PriorityRank != b.PriorityRank {
			return a.PriorityRank < b.PriorityRank
		}
		if !a.ObservedDate.Equal(b.ObservedDate) {
			return a.ObservedDate.After(b.ObservedDate)
		}
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		// Tie-break on ID so resolution is deterministic under reordering
		// even for fully duplicated rank fields.
		return a.ID < b.ID
	})

	winner := sorted[0]

	countries := make([]string, len(winner.Countries))
	copy(countries, winner.Countries)

	return &domain.ResolvedAttribution{
		Address:         address,
		Attributed:      true,
		EntityID:        winner.EntityID,
		EntityType:      winner.EntityType,
		BeneficialOwner: winner.BeneficialOwner,
		Custodian:       winner.Custodian,
		Source:          winner.Source,
		Countries:       countries,
	}
}
