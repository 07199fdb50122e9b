// Package velocity provides transaction velocity calculation.
package velocity

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Service counts on-chain transactions for an address within a time window.
// Counts are cached briefly so repeated rule evaluations during one scan do
// not hammer the chain source.
type Service struct {
	source   domain.ChainSource
	cache    domain.Cache
	cacheTTL time.Duration
	maxTxs   int
}

// NewService creates a new velocity service.
func NewService(source domain.ChainSource, cache domain.Cache) *Service {
	return &Service{
		source:   source,
		cache:    cache,
		cacheTTL: 30 * time.Second,
		maxTxs:   500,
	}
}

// GetTransactionCount returns the number of chain transactions touching an
// address within the window. This is the VelocityGetter signature expected
// by the rule engine.
func (s *Service) GetTransactionCount(ctx context.Context, organizationID, address string, windowSecs int) (int64, error) {
	if organizationID == "" || address == "" {
		return 0, fmt.Errorf("organizationID and address are required")
	}
	if s.source == nil {
		return 0, fmt.Errorf("no chain source available")
	}

	cacheKey := "velocity:" + address + ":" + strconv.Itoa(windowSecs)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, organizationID, cacheKey); err == nil && data != nil {
			var count int64
			if err := json.Unmarshal(data, &count); err == nil {
				return count, nil
			}
		}
	}

	since := time.Now().Add(-time.Duration(windowSecs) * time.Second)
	txs, err := s.source.GetAddressTransactions(ctx, address, since, s.maxTxs)
	if err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	count := int64(len(txs))

	if s.cache != nil {
		if data, err := json.Marshal(count); err == nil {
			_ = s.cache.Set(ctx, organizationID, cacheKey, data, s.cacheTTL)
		}
	}

	return count, nil
}

// GetVelocityGetter returns a VelocityGetter function for the rule engine.
func (s *Service) GetVelocityGetter() func(ctx context.Context, organizationID, address string, windowSecs int) (int64, error) {
	return s.GetTransactionCount
}
