package pipeline

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/harrier/internal/domain"
)

// transitions is the single source of truth for legal case-status moves.
// CLOSED_WITH_NOTE and CLOSED_WITH_SAR are terminal.
var transitions = map[domain.CaseStatus][]domain.CaseStatus{
	domain.StatusUnassigned: {domain.StatusUnreviewed},
	domain.StatusUnreviewed: {domain.StatusInReview},
	domain.StatusInReview:   {domain.StatusApproved, domain.StatusHold},
	domain.StatusApproved:   {domain.StatusClosedWithNote, domain.StatusClosedWithSAR},
	domain.StatusHold:       {domain.StatusInReview, domain.StatusClosedWithNote, domain.StatusClosedWithSAR},
	domain.StatusClosedWithNote: {},
	domain.StatusClosedWithSAR:  {},
}

// TransitionError reports an illegal case-status move, naming the attempted
// transition and the moves allowed from the current state.
type TransitionError struct {
	From    domain.CaseStatus
	To      domain.CaseStatus
	Allowed []domain.CaseStatus
}

func (e *TransitionError) Error() string {
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("illegal transition %s -> %s: %s is terminal", e.From, e.To, e.From)
	}
	allowed := make([]string, len(e.Allowed))
	for i, s := range e.Allowed {
		allowed[i] = string(s)
	}
	return fmt.Sprintf("illegal transition %s -> %s: allowed from %s: %s",
		e.From, e.To, e.From, strings.Join(allowed, ", "))
}

// CanTransition checks a status move against the transition table.
func CanTransition(from, to domain.CaseStatus) error {
	allowed, ok := transitions[from]
	if !ok {
		return fmt.Errorf("unknown case status %q", from)
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return &TransitionError{From: from, To: to, Allowed: allowed}
}

// IsTerminal reports whether a status admits no further transitions.
func IsTerminal(status domain.CaseStatus) bool {
	return len(transitions[status]) == 0
}
