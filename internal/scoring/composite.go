package scoring

import (
	"math"

	"github.com/opensource-finance/harrier/internal/domain"
)

// ValidateWeights rejects weight sets that do not sum to 1.0. Callers must
// check this before any scoring executes.
func ValidateWeights(w domain.RiskWeights) error {
	return w.Validate()
}

// Composite combines the three aggregate scores into the overall risk.
// Pure computation, no I/O.
func Composite(entity, jurisdiction, transaction float64, w domain.RiskWeights) float64 {
	overall := entity*w.Entity + jurisdiction*w.Jurisdiction + transaction*w.Transaction
	return domain.ClampScore(math.Round(overall*100) / 100)
}
