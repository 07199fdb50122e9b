// Package chain provides blockchain data source clients.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// HTTPSource is a ChainSource backed by a chain indexer's HTTP API.
type HTTPSource struct {
	baseURL   string
	client    *http.Client
	pageLimit int
}

// NewHTTPSource creates a chain source client from configuration.
func NewHTTPSource(cfg domain.ChainConfig) (*HTTPSource, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("chain base URL is required")
	}

	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	pageLimit := cfg.PageLimit
	if pageLimit <= 0 {
		pageLimit = 100
	}

	return &HTTPSource{
		baseURL:   cfg.BaseURL,
		client:    &http.Client{Timeout: timeout},
		pageLimit: pageLimit,
	}, nil
}

// GetTransaction retrieves a transaction by hash.
func (s *HTTPSource) GetTransaction(ctx context.Context, txID string) (*domain.ChainTransaction, error) {
	if txID == "" {
		return nil, fmt.Errorf("txID is required")
	}

	endpoint := fmt.Sprintf("%s/v1/transactions/%s", s.baseURL, url.PathEscape(txID))

	var tx domain.ChainTransaction
	if err := s.getJSON(ctx, endpoint, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// GetAddressTransactions retrieves transactions touching an address.
func (s *HTTPSource) GetAddressTransactions(ctx context.Context, address string, since time.Time, limit int) ([]*domain.ChainTransaction, error) {
	if address == "" {
		return nil, fmt.Errorf("address is required")
	}
	if limit <= 0 || limit > s.pageLimit {
		limit = s.pageLimit
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339))
	}

	endpoint := fmt.Sprintf("%s/v1/addresses/%s/transactions?%s",
		s.baseURL, url.PathEscape(address), q.Encode())

	var txs []*domain.ChainTransaction
	if err := s.getJSON(ctx, endpoint, &txs); err != nil {
		return nil, err
	}
	return txs, nil
}

// Ping checks indexer connectivity.
func (s *HTTPSource) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/v1/health", nil)
	if err != nil {
		return err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("chain source unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chain source unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func (s *HTTPSource) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("chain source request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("chain source: not found")
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("chain source: unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("chain source: decode response: %w", err)
	}
	return nil
}
