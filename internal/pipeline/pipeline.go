// Package pipeline manages compliance transaction cases: detection of chain
// activity touching monitored addresses, case creation, and the review state
// machine. Status is mutated only here; every transition appends a history
// entry that commits atomically with the status write.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/keylock"
	"github.com/opensource-finance/harrier/internal/repository"
)

// ErrScanInProgress is returned when a scan is requested while a previous
// run for the same pipeline has not finished.
var ErrScanInProgress = errors.New("transaction scan already in progress")

// Scorer scores a seed transaction; satisfied by the scoring service.
type Scorer interface {
	ScoreTransaction(ctx context.Context, organizationID, txID string) (*domain.RiskScoringResult, error)
}

// Service is the compliance case pipeline.
type Service struct {
	repo   domain.Repository
	bus    domain.EventBus
	scorer Scorer
	source domain.ChainSource
	cfg    domain.PipelineConfig

	locks  *keylock.KeyedMutex
	scanMu sync.Mutex
}

func NewService(repo domain.Repository, bus domain.EventBus, scorer Scorer, source domain.ChainSource, cfg domain.PipelineConfig) *Service {
	return &Service{
		repo:   repo,
		bus:    bus,
		scorer: scorer,
		source: source,
		cfg:    cfg,
		locks:  keylock.New(),
	}
}

// StatusUpdate carries the optional fields of a status transition.
type StatusUpdate struct {
	Notes        string
	SARReportRef string
}

// UpdateStatus moves a case through the state machine. The history entry and
// the status write commit in one repository transaction, entry first.
func (s *Service) UpdateStatus(ctx context.Context, organizationID, actorID, caseID string, to domain.CaseStatus, update StatusUpdate) (*domain.ComplianceTransaction, error) {
	if organizationID == "" || actorID == "" || caseID == "" {
		return nil, fmt.Errorf("%w: organizationID, actorID and caseID are required", repository.ErrInvalidInput)
	}

	s.locks.Lock(lockKey(organizationID, caseID))
	defer s.locks.Unlock(lockKey(organizationID, caseID))

	c, err := s.repo.GetComplianceTransaction(ctx, organizationID, caseID)
	if err != nil {
		return nil, err
	}

	if err := CanTransition(c.Status, to); err != nil {
		return nil, err
	}

	// Closure prerequisites, checked before any write.
	switch to {
	case domain.StatusClosedWithSAR:
		if update.SARReportRef == "" {
			return nil, fmt.Errorf("%w: CLOSED_WITH_SAR requires a SAR report reference", repository.ErrInvalidInput)
		}
	case domain.StatusClosedWithNote:
		if update.Notes == "" && c.Notes == "" {
			return nil, fmt.Errorf("%w: CLOSED_WITH_NOTE requires notes", repository.ErrInvalidInput)
		}
	}

	now := time.Now().UTC()
	from := c.Status
	c.Status = to
	c.UpdatedAt = now
	if update.Notes != "" {
		c.Notes = update.Notes
	}
	if to == domain.StatusClosedWithSAR {
		c.SARSubmitted = true
		c.SARReportRef = update.SARReportRef
	}
	if to == domain.StatusInReview && c.ReviewTimestamp == nil {
		c.ReviewTimestamp = &now
	}

	entry := &domain.StatusChange{Status: to, Timestamp: now, Reviewer: actorID}
	c.StatusHistory = append(c.StatusHistory, *entry)

	if err := s.repo.UpdateComplianceTransaction(ctx, organizationID, c, entry); err != nil {
		return nil, err
	}

	slog.Info("case status changed",
		"organization_id", organizationID,
		"case_id", c.ID,
		"from", from,
		"to", to,
		"actor", actorID)

	s.publish(ctx, organizationID, domain.TopicCaseStatusChanged, map[string]any{
		"caseId": c.ID,
		"txId":   c.TxID,
		"from":   from,
		"to":     to,
		"actor":  actorID,
	})

	return c, nil
}

// Assign sets the case reviewer. Assigning an UNASSIGNED case atomically
// moves it to UNREVIEWED; otherwise only the reviewer changes.
func (s *Service) Assign(ctx context.Context, organizationID, actorID, caseID, reviewerID string) (*domain.ComplianceTransaction, error) {
	if organizationID == "" || caseID == "" || reviewerID == "" {
		return nil, fmt.Errorf("%w: organizationID, caseID and reviewerID are required", repository.ErrInvalidInput)
	}

	s.locks.Lock(lockKey(organizationID, caseID))
	defer s.locks.Unlock(lockKey(organizationID, caseID))

	c, err := s.repo.GetComplianceTransaction(ctx, organizationID, caseID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	c.ReviewerID = reviewerID
	c.UpdatedAt = now

	var entry *domain.StatusChange
	if c.Status == domain.StatusUnassigned {
		c.Status = domain.StatusUnreviewed
		entry = &domain.StatusChange{Status: domain.StatusUnreviewed, Timestamp: now, Reviewer: actorID}
		c.StatusHistory = append(c.StatusHistory, *entry)
	}

	if err := s.repo.UpdateComplianceTransaction(ctx, organizationID, c, entry); err != nil {
		return nil, err
	}

	if entry != nil {
		s.publish(ctx, organizationID, domain.TopicCaseStatusChanged, map[string]any{
			"caseId": c.ID,
			"txId":   c.TxID,
			"from":   domain.StatusUnassigned,
			"to":     domain.StatusUnreviewed,
			"actor":  actorID,
		})
	}

	return c, nil
}

// BulkAssign applies assignee updates case by case. Items succeed or fail
// independently; results are itemized in input order.
func (s *Service) BulkAssign(ctx context.Context, organizationID, actorID string, updates []domain.AssigneeUpdate) ([]domain.CaseResult, error) {
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organizationID is required", repository.ErrInvalidInput)
	}

	results := make([]domain.CaseResult, 0, len(updates))
	for _, u := range updates {
		result := domain.CaseResult{CaseID: u.CaseID}
		if _, err := s.Assign(ctx, organizationID, actorID, u.CaseID, u.ReviewerID); err != nil {
			result.Error = err.Error()
		} else {
			result.Succeeded = true
		}
		results = append(results, result)
	}
	return results, nil
}

// Get returns one case with its full status history.
func (s *Service) Get(ctx context.Context, organizationID, caseID string) (*domain.ComplianceTransaction, error) {
	return s.repo.GetComplianceTransaction(ctx, organizationID, caseID)
}

// List returns the organization's cases, optionally filtered by status.
func (s *Service) List(ctx context.Context, organizationID string, status domain.CaseStatus) ([]*domain.ComplianceTransaction, error) {
	return s.repo.ListComplianceTransactions(ctx, organizationID, status)
}

// ScanResult summarizes one ProcessOrganizationTransactions run.
type ScanResult struct {
	AddressesScanned int      `json:"addressesScanned"`
	TransactionsSeen int      `json:"transactionsSeen"`
	CasesCreated     int      `json:"casesCreated"`
	Errors           []string `json:"errors,omitempty"`
}

// ProcessOrganizationTransactions scans chain activity for the organization's
// active monitored addresses and opens a case for each new transaction.
// Overlapping runs are rejected with ErrScanInProgress.
func (s *Service) ProcessOrganizationTransactions(ctx context.Context, organizationID string) (*ScanResult, error) {
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organizationID is required", repository.ErrInvalidInput)
	}

	if !s.scanMu.TryLock() {
		return nil, ErrScanInProgress
	}
	defer s.scanMu.Unlock()

	addresses, err := s.repo.ListMonitoredAddresses(ctx, organizationID, true)
	if err != nil {
		return nil, err
	}

	since := time.Time{}
	if s.cfg.ScanLookbackSecs > 0 {
		since = time.Now().UTC().Add(-time.Duration(s.cfg.ScanLookbackSecs) * time.Second)
	}

	result := &ScanResult{}
	for _, addr := range addresses {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.AddressesScanned++

		txs, err := s.source.GetAddressTransactions(ctx, addr.Address, since, 0)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("address %s: %v", addr.Address, err))
			continue
		}

		for _, tx := range txs {
			result.TransactionsSeen++
			created, err := s.ProcessChainTransaction(ctx, organizationID, tx, addr)
			if err != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("tx %s: %v", tx.Hash, err))
				continue
			}
			if created != nil {
				result.CasesCreated++
			}
		}
	}

	slog.Info("transaction scan finished",
		"organization_id", organizationID,
		"addresses", result.AddressesScanned,
		"transactions", result.TransactionsSeen,
		"cases_created", result.CasesCreated,
		"errors", len(result.Errors))

	return result, nil
}

// ProcessChainTransaction opens a case for a chain transaction touching a
// monitored address. Returns (nil, nil) when a case for (txID, address)
// already exists. Scoring degradation never blocks case creation.
func (s *Service) ProcessChainTransaction(ctx context.Context, organizationID string, tx *domain.ChainTransaction, monitored *domain.MonitoredAddress) (*domain.ComplianceTransaction, error) {
	if tx == nil || monitored == nil {
		return nil, fmt.Errorf("%w: transaction and monitored address are required", repository.ErrInvalidInput)
	}

	existing, err := s.repo.GetComplianceTransactionByTxID(ctx, organizationID, tx.Hash, monitored.ID)
	if err == nil && existing != nil {
		return nil, nil
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	var overall float64
	var riskScores []float64
	if s.scorer != nil {
		scored, err := s.scorer.ScoreTransaction(ctx, organizationID, tx.Hash)
		if err != nil {
			slog.Warn("scoring failed, case opens unscored",
				"organization_id", organizationID,
				"tx_id", tx.Hash,
				"error", err)
		} else {
			overall = scored.OverallRisk
			riskScores = []float64{scored.OverallRisk}
		}
	}

	senders, receivers := tx.Counterparties(monitored.Address)
	now := time.Now().UTC()

	c := &domain.ComplianceTransaction{
		ID:                   uuid.New().String(),
		TxID:                 tx.Hash,
		ClientID:             monitored.ClientID,
		MonitoredAddressID:   monitored.ID,
		CounterpartyEntities: append(senders, receivers...),
		Blockchain:           tx.Blockchain,
		Amount:               tx.Amount,
		Timestamp:            tx.Timestamp,
		RiskScores:           riskScores,
		OrganizationID:       organizationID,
		Status:               domain.StatusUnassigned,
		StatusHistory: []domain.StatusChange{
			{Status: domain.StatusUnassigned, Timestamp: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.CreateComplianceTransaction(ctx, organizationID, c); err != nil {
		return nil, err
	}

	slog.Info("case created",
		"organization_id", organizationID,
		"case_id", c.ID,
		"tx_id", c.TxID,
		"risk_score", overall)

	s.publish(ctx, organizationID, domain.TopicCaseCreated, map[string]any{
		"caseId":    c.ID,
		"txId":      c.TxID,
		"addressId": monitored.ID,
		"riskScore": overall,
	})
	if overall >= s.cfg.AlertThreshold && s.cfg.AlertThreshold > 0 {
		s.publish(ctx, organizationID, domain.TopicAlert, map[string]any{
			"caseId":    c.ID,
			"txId":      c.TxID,
			"riskScore": overall,
		})
	}

	return c, nil
}

func (s *Service) publish(ctx context.Context, organizationID, topic string, payload map[string]any) {
	if s.bus == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, organizationID, topic, data); err != nil {
		slog.Warn("event publish failed", "topic", topic, "error", err)
	}
}

func lockKey(organizationID, caseID string) string {
	return organizationID + ":" + caseID
}
