// Package refdata holds in-memory snapshots of the entity-type catalog and
// jurisdiction score table. The scoring path reads the latest committed
// snapshot; a reference-data sync replaces the snapshot atomically and never
// blocks readers mid-refresh.
package refdata

import (
	"context"
	"log/slog"
	"sync"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Store is the hot-reloadable reference data snapshot.
type Store struct {
	mu            sync.RWMutex
	entityTypes   map[string]*domain.EntityTypeInfo
	jurisdictions map[string]float64
}

// NewStore creates an empty reference data store.
func NewStore() *Store {
	return &Store{
		entityTypes:   make(map[string]*domain.EntityTypeInfo),
		jurisdictions: make(map[string]float64),
	}
}

// LoadEntityTypes replaces the entity-type catalog snapshot.
func (s *Store) LoadEntityTypes(infos []*domain.EntityTypeInfo) {
	next := make(map[string]*domain.EntityTypeInfo, len(infos))
	for _, info := range infos {
		next[info.EntityType] = info
	}

	s.mu.Lock()
	s.entityTypes = next
	s.mu.Unlock()
}

// LoadJurisdictions replaces the jurisdiction score snapshot.
func (s *Store) LoadJurisdictions(scores []*domain.JurisdictionScore) {
	next := make(map[string]float64, len(scores))
	for _, js := range scores {
		next[js.Country] = js.Score
	}

	s.mu.Lock()
	s.jurisdictions = next
	s.mu.Unlock()
}

// Reload refreshes both snapshots from the repository.
func (s *Store) Reload(ctx context.Context, repo domain.Repository) error {
	entityTypes, err := repo.ListEntityTypes(ctx)
	if err != nil {
		return err
	}
	jurisdictions, err := repo.ListJurisdictionScores(ctx)
	if err != nil {
		return err
	}

	s.LoadEntityTypes(entityTypes)
	s.LoadJurisdictions(jurisdictions)

	slog.Info("reference data reloaded",
		"entity_types", len(entityTypes),
		"jurisdictions", len(jurisdictions),
	)
	return nil
}

// EntityType looks up a catalog entry by entity type.
func (s *Store) EntityType(entityType string) (*domain.EntityTypeInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	info, ok := s.entityTypes[entityType]
	return info, ok
}

// JurisdictionScore looks up the risk score for a country.
func (s *Store) JurisdictionScore(country string) (float64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	score, ok := s.jurisdictions[country]
	return score, ok
}

// EntityTypeCount returns the number of catalog entries loaded.
func (s *Store) EntityTypeCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entityTypes)
}

// JurisdictionCount returns the number of jurisdictions loaded.
func (s *Store) JurisdictionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jurisdictions)
}
