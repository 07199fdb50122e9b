package chain

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// MemorySource is an in-memory ChainSource used in tests and local runs
// where no indexer is available.
type MemorySource struct {
	mu     sync.RWMutex
	txs    map[string]*domain.ChainTransaction
	byAddr map[string][]string

	// FailAddresses simulates indexer outages for specific addresses.
	FailAddresses map[string]bool
}

// NewMemorySource creates an empty in-memory chain source.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		txs:           make(map[string]*domain.ChainTransaction),
		byAddr:        make(map[string][]string),
		FailAddresses: make(map[string]bool),
	}
}

// AddTransaction registers a transaction and indexes it under all of its
// input and output addresses.
func (s *MemorySource) AddTransaction(tx *domain.ChainTransaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.txs[tx.Hash] = tx

	seen := make(map[string]bool)
	for _, in := range tx.Inputs {
		if !seen[in.Address] {
			seen[in.Address] = true
			s.byAddr[in.Address] = append(s.byAddr[in.Address], tx.Hash)
		}
	}
	for _, out := range tx.Outputs {
		if !seen[out.Address] {
			seen[out.Address] = true
			s.byAddr[out.Address] = append(s.byAddr[out.Address], tx.Hash)
		}
	}
}

// GetTransaction retrieves a transaction by hash.
func (s *MemorySource) GetTransaction(ctx context.Context, txID string) (*domain.ChainTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tx, ok := s.txs[txID]
	if !ok {
		return nil, fmt.Errorf("transaction %s not found", txID)
	}
	return tx, nil
}

// GetAddressTransactions retrieves transactions touching an address,
// newest first.
func (s *MemorySource) GetAddressTransactions(ctx context.Context, address string, since time.Time, limit int) ([]*domain.ChainTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.FailAddresses[address] {
		return nil, fmt.Errorf("simulated indexer failure for %s", address)
	}

	var txs []*domain.ChainTransaction
	for _, hash := range s.byAddr[address] {
		tx := s.txs[hash]
		if !since.IsZero() && tx.Timestamp.Before(since) {
			continue
		}
		txs = append(txs, tx)
	}

	sort.Slice(txs, func(i, j int) bool {
		return txs[i].Timestamp.After(txs[j].Timestamp)
	})

	if limit > 0 && len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

// Ping always succeeds for the in-memory source.
func (s *MemorySource) Ping(ctx context.Context) error {
	return nil
}
