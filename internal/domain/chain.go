package domain

import (
	"context"
	"time"
)

// ChainEndpoint is one input or output of a chain transaction.
type ChainEndpoint struct {
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
}

// ChainTransaction is a transaction as reported by the blockchain source.
// Inputs and outputs define the edges of the transaction graph.
type ChainTransaction struct {
	Hash       string          `json:"hash"`
	Blockchain string          `json:"blockchain"`
	Inputs     []ChainEndpoint `json:"inputs"`
	Outputs    []ChainEndpoint `json:"outputs"`
	Amount     float64         `json:"amount"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Counterparties returns the distinct addresses on both sides of the
// transaction, excluding the given subject address.
func (t *ChainTransaction) Counterparties(subject string) (senders, receivers []string) {
	seen := map[string]bool{subject: true}
	for _, in := range t.Inputs {
		if !seen[in.Address] {
			seen[in.Address] = true
			senders = append(senders, in.Address)
		}
	}
	for _, out := range t.Outputs {
		if !seen[out.Address] {
			seen[out.Address] = true
			receivers = append(receivers, out.Address)
		}
	}
	return senders, receivers
}

// ChainSource is the read-only blockchain data oracle.
type ChainSource interface {
	// GetTransaction retrieves a transaction by hash.
	GetTransaction(ctx context.Context, txID string) (*ChainTransaction, error)

	// GetAddressTransactions retrieves transactions touching an address,
	// newest first, limited to limit entries.
	GetAddressTransactions(ctx context.Context, address string, since time.Time, limit int) ([]*ChainTransaction, error)

	// Health check
	Ping(ctx context.Context) error
}

// ChainConfig holds configuration for the blockchain source client.
type ChainConfig struct {
	// BaseURL of the chain indexer API.
	BaseURL string

	// TimeoutSecs is the per-request timeout in seconds.
	TimeoutSecs int

	// PageLimit caps transactions fetched per address query.
	PageLimit int
}
