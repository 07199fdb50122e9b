package domain

import "time"

// CaseStatus is the review state of a compliance transaction.
type CaseStatus string

const (
	StatusUnassigned     CaseStatus = "UNASSIGNED"
	StatusUnreviewed     CaseStatus = "UNREVIEWED"
	StatusInReview       CaseStatus = "IN_REVIEW"
	StatusApproved       CaseStatus = "APPROVED"
	StatusHold           CaseStatus = "HOLD"
	StatusClosedWithNote CaseStatus = "CLOSED_WITH_NOTE"
	StatusClosedWithSAR  CaseStatus = "CLOSED_WITH_SAR"
)

// StatusChange is one append-only entry of a case's status history.
type StatusChange struct {
	Status    CaseStatus `json:"status"`
	Timestamp time.Time  `json:"timestamp"`
	Reviewer  string     `json:"reviewer,omitempty"`
}

// ComplianceTransaction is a review case for a transaction that touched a
// monitored address. Status is mutated only through the pipeline's state
// machine; StatusHistory always ends with the current status.
type ComplianceTransaction struct {
	ID                   string     `json:"id"`
	TxID                 string     `json:"txId"`
	ClientID             string     `json:"clientId,omitempty"`
	MonitoredAddressID   string     `json:"monitoredAddressId"`
	CounterpartyEntities []string   `json:"counterpartyEntities,omitempty"`
	Blockchain           string     `json:"blockchain"`
	Amount               float64    `json:"amount"`
	Timestamp            time.Time  `json:"timestamp"`
	RiskScores           []float64  `json:"riskScores,omitempty"`
	OrganizationID       string     `json:"organizationId"`
	Notes                string     `json:"notes,omitempty"`
	SARSubmitted         bool       `json:"sarSubmitted"`
	SARReportRef         string     `json:"sarReportRef,omitempty"`
	ReviewerID           string     `json:"reviewerId,omitempty"`
	ReviewTimestamp      *time.Time `json:"reviewTimestamp,omitempty"`
	Status               CaseStatus `json:"status"`

	StatusHistory []StatusChange `json:"statusHistory"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LatestRiskScore returns the most recent risk score, or 0 if none recorded.
func (c *ComplianceTransaction) LatestRiskScore() float64 {
	if len(c.RiskScores) == 0 {
		return 0
	}
	return c.RiskScores[len(c.RiskScores)-1]
}

// AssigneeUpdate is one item of a bulk assignee operation.
type AssigneeUpdate struct {
	CaseID     string `json:"caseId"`
	ReviewerID string `json:"reviewerId"`
}

// CaseResult is the per-case outcome of a bulk operation.
type CaseResult struct {
	CaseID    string `json:"caseId"`
	Succeeded bool   `json:"succeeded"`
	Error     string `json:"error,omitempty"`
}
