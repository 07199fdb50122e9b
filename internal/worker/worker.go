// Package worker runs the asynchronous screening loop: it reacts to
// observed-transaction events and drives the periodic scan for an
// organization.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/pipeline"
)

// ObservedTransaction is the payload of a TopicTransactionObserved event.
type ObservedTransaction struct {
	TxID               string `json:"txId"`
	MonitoredAddressID string `json:"monitoredAddressId"`
}

// Worker consumes observed-transaction events and runs the scheduled scan
// for one organization. Overlapping scans are skipped, not queued.
type Worker struct {
	pipe           *pipeline.Service
	bus            domain.EventBus
	repo           domain.Repository
	source         domain.ChainSource
	organizationID string
	interval       time.Duration

	mu      sync.Mutex
	sub     domain.Subscription
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func New(pipe *pipeline.Service, bus domain.EventBus, repo domain.Repository, source domain.ChainSource, organizationID string, cfg domain.PipelineConfig) *Worker {
	interval := time.Duration(cfg.ScanIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Worker{
		pipe:           pipe,
		bus:            bus,
		repo:           repo,
		source:         source,
		organizationID: organizationID,
		interval:       interval,
	}
}

// Start subscribes to observed-transaction events and launches the scan
// ticker. It returns once the loop is running.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return fmt.Errorf("worker already started")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	w.cancel = cancel

	sub, err := w.bus.Subscribe(runCtx, w.organizationID, domain.TopicTransactionObserved, w.handleObserved)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	w.sub = sub

	w.wg.Add(1)
	go w.scanLoop(runCtx)

	w.started = true
	slog.Info("worker started",
		"organization_id", w.organizationID,
		"scan_interval", w.interval)
	return nil
}

// Stop tears down the subscription and waits for the scan loop to exit.
func (w *Worker) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return nil
	}

	if w.sub != nil {
		_ = w.sub.Unsubscribe()
		w.sub = nil
	}
	w.cancel()
	w.wg.Wait()
	w.started = false

	slog.Info("worker stopped", "organization_id", w.organizationID)
	return nil
}

func (w *Worker) scanLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.runScan(ctx)
		}
	}
}

func (w *Worker) runScan(ctx context.Context) {
	result, err := w.pipe.ProcessOrganizationTransactions(ctx, w.organizationID)
	if err != nil {
		if errors.Is(err, pipeline.ErrScanInProgress) {
			slog.Debug("scan skipped, previous run still active",
				"organization_id", w.organizationID)
			return
		}
		slog.Error("scheduled scan failed",
			"organization_id", w.organizationID,
			"error", err)
		return
	}
	if result.CasesCreated > 0 || len(result.Errors) > 0 {
		slog.Info("scheduled scan finished",
			"organization_id", w.organizationID,
			"cases_created", result.CasesCreated,
			"errors", len(result.Errors))
	}
}

// handleObserved opens a case for one externally observed transaction.
func (w *Worker) handleObserved(ctx context.Context, msg *domain.Message) error {
	var event ObservedTransaction
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		return fmt.Errorf("malformed observed-transaction payload: %w", err)
	}
	if event.TxID == "" || event.MonitoredAddressID == "" {
		return fmt.Errorf("observed-transaction event requires txId and monitoredAddressId")
	}

	tx, err := w.source.GetTransaction(ctx, event.TxID)
	if err != nil {
		return fmt.Errorf("failed to fetch observed transaction %s: %w", event.TxID, err)
	}

	monitored, err := w.repo.GetMonitoredAddress(ctx, w.organizationID, event.MonitoredAddressID)
	if err != nil {
		return fmt.Errorf("failed to load monitored address %s: %w", event.MonitoredAddressID, err)
	}

	if _, err := w.pipe.ProcessChainTransaction(ctx, w.organizationID, tx, monitored); err != nil {
		return fmt.Errorf("failed to process observed transaction: %w", err)
	}
	return nil
}
