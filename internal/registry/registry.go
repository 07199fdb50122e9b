// Package registry manages an organization's monitored-address watch list.
// Every mutation appends audit change records; the row and its records commit
// in one repository transaction. Addresses with history are never hard-deleted.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/keylock"
	"github.com/opensource-finance/harrier/internal/repository"
)

// addressPattern accepts hex (0x-prefixed) and base58/bech32-style addresses.
var addressPattern = regexp.MustCompile(`^[A-Za-z0-9]{6,128}$`)

// Service is the monitored-address registry. Writes to the same address are
// serialized per key; different addresses proceed concurrently.
type Service struct {
	repo  domain.Repository
	locks *keylock.KeyedMutex
}

func NewService(repo domain.Repository) *Service {
	return &Service{
		repo:  repo,
		locks: keylock.New(),
	}
}

// UpdateInput carries the mutable fields of a monitored address. Nil fields
// are left unchanged.
type UpdateInput struct {
	ClientID   *string
	Blockchain *string
	Notes      *string
}

// Register adds an address to the organization's watch list. The create
// change record and the row commit together.
func (s *Service) Register(ctx context.Context, organizationID, actorID string, addr *domain.MonitoredAddress) (*domain.MonitoredAddress, error) {
	if err := validateActor(organizationID, actorID); err != nil {
		return nil, err
	}
	if addr == nil {
		return nil, fmt.Errorf("%w: monitored address is required", repository.ErrInvalidInput)
	}
	addr.Address = strings.TrimSpace(addr.Address)
	if err := ValidateAddress(addr.Address); err != nil {
		return nil, err
	}
	if addr.Blockchain == "" {
		return nil, fmt.Errorf("%w: blockchain is required", repository.ErrInvalidInput)
	}

	s.locks.Lock(lockKey(organizationID, addr.Address))
	defer s.locks.Unlock(lockKey(organizationID, addr.Address))

	now := time.Now().UTC()
	addr.ID = uuid.New().String()
	addr.OrganizationID = organizationID
	addr.IsActive = true
	addr.CreatedAt = now
	addr.UpdatedAt = now

	change := &domain.MonitoredAddressChange{
		ID:                 uuid.New().String(),
		MonitoredAddressID: addr.ID,
		OrganizationID:     organizationID,
		ChangeType:         domain.ChangeCreate,
		NewValue:           addr.Address,
		ChangedByID:        actorID,
		Timestamp:          now,
	}

	if err := s.repo.SaveMonitoredAddress(ctx, organizationID, addr, change); err != nil {
		return nil, err
	}

	slog.Info("monitored address registered",
		"organization_id", organizationID,
		"address_id", addr.ID,
		"blockchain", addr.Blockchain)

	return addr, nil
}

// Update applies a field-level diff to an existing address. One change
// record per changed field, carrying old and new values; all records and the
// row commit in one transaction. A no-op update writes nothing.
func (s *Service) Update(ctx context.Context, organizationID, actorID, id string, input *UpdateInput) (*domain.MonitoredAddress, error) {
	if err := validateActor(organizationID, actorID); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, fmt.Errorf("%w: address id is required", repository.ErrInvalidInput)
	}
	if input == nil {
		return nil, fmt.Errorf("%w: update input is required", repository.ErrInvalidInput)
	}

	s.locks.Lock(lockKey(organizationID, id))
	defer s.locks.Unlock(lockKey(organizationID, id))

	addr, err := s.repo.GetMonitoredAddress(ctx, organizationID, id)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var changes []*domain.MonitoredAddressChange

	diff := func(field, oldValue, newValue string) {
		changes = append(changes, &domain.MonitoredAddressChange{
			ID:                 uuid.New().String(),
			MonitoredAddressID: addr.ID,
			OrganizationID:     organizationID,
			ChangeType:         domain.ChangeUpdate,
			FieldName:          field,
			OldValue:           oldValue,
			NewValue:           newValue,
			ChangedByID:        actorID,
			Timestamp:          now,
		})
	}

	if input.ClientID != nil && *input.ClientID != addr.ClientID {
		diff("clientId", addr.ClientID, *input.ClientID)
		addr.ClientID = *input.ClientID
	}
	if input.Blockchain != nil && *input.Blockchain != addr.Blockchain {
		if *input.Blockchain == "" {
			return nil, fmt.Errorf("%w: blockchain cannot be cleared", repository.ErrInvalidInput)
		}
		diff("blockchain", addr.Blockchain, *input.Blockchain)
		addr.Blockchain = *input.Blockchain
	}
	if input.Notes != nil && *input.Notes != addr.Notes {
		diff("notes", addr.Notes, *input.Notes)
		addr.Notes = *input.Notes
	}

	if len(changes) == 0 {
		return addr, nil
	}

	addr.UpdatedAt = now
	if err := s.repo.UpdateMonitoredAddress(ctx, organizationID, addr, changes); err != nil {
		return nil, err
	}
	return addr, nil
}

// Deactivate soft-disables an address. The row keeps its history; a
// status_change record marks the transition.
func (s *Service) Deactivate(ctx context.Context, organizationID, actorID, id string) error {
	if err := validateActor(organizationID, actorID); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("%w: address id is required", repository.ErrInvalidInput)
	}

	s.locks.Lock(lockKey(organizationID, id))
	defer s.locks.Unlock(lockKey(organizationID, id))

	addr, err := s.repo.GetMonitoredAddress(ctx, organizationID, id)
	if err != nil {
		return err
	}
	if !addr.IsActive {
		return nil
	}

	now := time.Now().UTC()
	addr.IsActive = false
	addr.UpdatedAt = now

	change := &domain.MonitoredAddressChange{
		ID:                 uuid.New().String(),
		MonitoredAddressID: addr.ID,
		OrganizationID:     organizationID,
		ChangeType:         domain.ChangeStatusChange,
		FieldName:          "isActive",
		OldValue:           "true",
		NewValue:           "false",
		ChangedByID:        actorID,
		Timestamp:          now,
	}

	if err := s.repo.UpdateMonitoredAddress(ctx, organizationID, addr, []*domain.MonitoredAddressChange{change}); err != nil {
		return err
	}

	slog.Info("monitored address deactivated",
		"organization_id", organizationID,
		"address_id", addr.ID)
	return nil
}

// BulkUpload registers a batch of addresses. Rows succeed or fail
// independently; there is no cross-row rollback. Results are itemized in
// input order.
func (s *Service) BulkUpload(ctx context.Context, organizationID, actorID string, rows []*domain.MonitoredAddress) ([]domain.AddressRowResult, error) {
	if err := validateActor(organizationID, actorID); err != nil {
		return nil, err
	}

	results := make([]domain.AddressRowResult, 0, len(rows))
	for i, row := range rows {
		result := domain.AddressRowResult{Index: i}
		if row != nil {
			result.Address = row.Address
		}

		saved, err := s.Register(ctx, organizationID, actorID, row)
		if err != nil {
			result.Error = err.Error()
		} else {
			result.Succeeded = true
			result.ID = saved.ID
			result.Address = saved.Address
		}
		results = append(results, result)
	}

	succeeded := 0
	for _, r := range results {
		if r.Succeeded {
			succeeded++
		}
	}
	slog.Info("bulk address upload finished",
		"organization_id", organizationID,
		"total", len(rows),
		"succeeded", succeeded)

	return results, nil
}

// Get returns one monitored address by id.
func (s *Service) Get(ctx context.Context, organizationID, id string) (*domain.MonitoredAddress, error) {
	return s.repo.GetMonitoredAddress(ctx, organizationID, id)
}

// GetByAddress returns one monitored address by its chain address.
func (s *Service) GetByAddress(ctx context.Context, organizationID, address string) (*domain.MonitoredAddress, error) {
	return s.repo.GetMonitoredAddressByAddress(ctx, organizationID, address)
}

// List returns the organization's watch list, optionally active entries only.
func (s *Service) List(ctx context.Context, organizationID string, activeOnly bool) ([]*domain.MonitoredAddress, error) {
	return s.repo.ListMonitoredAddresses(ctx, organizationID, activeOnly)
}

// History returns the audit change records for an address, most recent first.
func (s *Service) History(ctx context.Context, organizationID, id string) ([]*domain.MonitoredAddressChange, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: address id is required", repository.ErrInvalidInput)
	}
	// Missing addresses report not-found rather than an empty history.
	if _, err := s.repo.GetMonitoredAddress(ctx, organizationID, id); err != nil {
		return nil, err
	}
	return s.repo.GetAddressChanges(ctx, organizationID, id)
}

// ValidateAddress checks the address format shared by all supported chains.
func ValidateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("%w: address is required", repository.ErrInvalidInput)
	}
	candidate := strings.TrimPrefix(address, "0x")
	if !addressPattern.MatchString(candidate) {
		return fmt.Errorf("%w: malformed address %q", repository.ErrInvalidInput, address)
	}
	return nil
}

func validateActor(organizationID, actorID string) error {
	if organizationID == "" {
		return fmt.Errorf("%w: organizationID is required", repository.ErrInvalidInput)
	}
	if actorID == "" {
		return fmt.Errorf("%w: actorID is required", repository.ErrInvalidInput)
	}
	return nil
}

func lockKey(organizationID, key string) string {
	return organizationID + ":" + key
}
