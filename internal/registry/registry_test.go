package registry

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/repository"
)

func newTestRegistry(t *testing.T) *Service {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "registry-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return NewService(repo)
}

func TestValidateAddress(t *testing.T) {
	valid := []string{
		"bc1qxy2kgdygjrsqtzq2n0yrf2493p83kkfjhx0wlh",
		"0x742d35Cc6634C0532925a3b844Bc454e4438f44e",
		"1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa",
	}
	for _, addr := range valid {
		if err := ValidateAddress(addr); err != nil {
			t.Errorf("expected %q to be valid: %v", addr, err)
		}
	}

	invalid := []string{"", "abc", "with spaces not ok", "has-dashes-in-it", "0x"}
	for _, addr := range invalid {
		if err := ValidateAddress(addr); err == nil {
			t.Errorf("expected %q to be rejected", addr)
		}
	}
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	orgID := "org-001"
	actorID := "analyst-1"

	t.Run("CreatesWithAuditRecord", func(t *testing.T) {
		svc := newTestRegistry(t)

		addr, err := svc.Register(ctx, orgID, actorID, &domain.MonitoredAddress{
			Address:    "bc1qregistered0001",
			Blockchain: "bitcoin",
			ClientID:   "client-9",
		})
		if err != nil {
			t.Fatalf("Register failed: %v", err)
		}
		if addr.ID == "" {
			t.Error("expected generated id")
		}
		if !addr.IsActive {
			t.Error("expected new address to be active")
		}

		history, err := svc.History(ctx, orgID, addr.ID)
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(history) != 1 {
			t.Fatalf("expected 1 change record, got %d", len(history))
		}
		if history[0].ChangeType != domain.ChangeCreate {
			t.Errorf("expected create record, got %s", history[0].ChangeType)
		}
		if history[0].ChangedByID != actorID {
			t.Errorf("expected actor %s, got %s", actorID, history[0].ChangedByID)
		}
	})

	t.Run("RejectsDuplicate", func(t *testing.T) {
		svc := newTestRegistry(t)

		first := &domain.MonitoredAddress{Address: "bc1qduplicate0001", Blockchain: "bitcoin"}
		if _, err := svc.Register(ctx, orgID, actorID, first); err != nil {
			t.Fatalf("Register failed: %v", err)
		}

		second := &domain.MonitoredAddress{Address: "bc1qduplicate0001", Blockchain: "bitcoin"}
		_, err := svc.Register(ctx, orgID, actorID, second)
		if !errors.Is(err, repository.ErrDuplicate) {
			t.Errorf("expected ErrDuplicate, got %v", err)
		}
	})

	t.Run("RejectsMalformedAddress", func(t *testing.T) {
		svc := newTestRegistry(t)

		_, err := svc.Register(ctx, orgID, actorID, &domain.MonitoredAddress{
			Address:    "not a chain address",
			Blockchain: "bitcoin",
		})
		if !errors.Is(err, repository.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
	})

	t.Run("RequiresActor", func(t *testing.T) {
		svc := newTestRegistry(t)

		_, err := svc.Register(ctx, orgID, "", &domain.MonitoredAddress{
			Address:    "bc1qnoactor000001",
			Blockchain: "bitcoin",
		})
		if !errors.Is(err, repository.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for missing actor, got %v", err)
		}
	})
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	orgID := "org-001"
	actorID := "analyst-1"

	t.Run("SingleFieldProducesOneRecord", func(t *testing.T) {
		svc := newTestRegistry(t)

		addr, err := svc.Register(ctx, orgID, actorID, &domain.MonitoredAddress{
			Address:    "bc1qupdateme00001",
			Blockchain: "bitcoin",
			Notes:      "original",
		})
		if err != nil {
			t.Fatalf("Register failed: %v", err)
		}

		notes := "escalated by compliance"
		updated, err := svc.Update(ctx, orgID, actorID, addr.ID, &UpdateInput{Notes: &notes})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if updated.Notes != notes {
			t.Errorf("expected updated notes, got %q", updated.Notes)
		}

		history, err := svc.History(ctx, orgID, addr.ID)
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		// create + one update
		if len(history) != 2 {
			t.Fatalf("expected 2 change records, got %d", len(history))
		}

		var update *domain.MonitoredAddressChange
		for _, c := range history {
			if c.ChangeType == domain.ChangeUpdate {
				update = c
			}
		}
		if update == nil {
			t.Fatal("expected an update change record")
		}
		if update.FieldName != "notes" || update.OldValue != "original" || update.NewValue != notes {
			t.Errorf("unexpected diff record: %+v", update)
		}
	})

	t.Run("MultipleFieldsProduceOneRecordEach", func(t *testing.T) {
		svc := newTestRegistry(t)

		addr, err := svc.Register(ctx, orgID, actorID, &domain.MonitoredAddress{
			Address:    "bc1qupdateme00002",
			Blockchain: "bitcoin",
		})
		if err != nil {
			t.Fatalf("Register failed: %v", err)
		}

		clientID := "client-44"
		notes := "linked to case"
		if _, err := svc.Update(ctx, orgID, actorID, addr.ID, &UpdateInput{
			ClientID: &clientID,
			Notes:    &notes,
		}); err != nil {
			t.Fatalf("Update failed: %v", err)
		}

		history, err := svc.History(ctx, orgID, addr.ID)
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(history) != 3 {
			t.Fatalf("expected 3 change records, got %d", len(history))
		}
	})

	t.Run("NoopWritesNothing", func(t *testing.T) {
		svc := newTestRegistry(t)

		addr, err := svc.Register(ctx, orgID, actorID, &domain.MonitoredAddress{
			Address:    "bc1qupdateme00003",
			Blockchain: "bitcoin",
			Notes:      "same",
		})
		if err != nil {
			t.Fatalf("Register failed: %v", err)
		}

		same := "same"
		if _, err := svc.Update(ctx, orgID, actorID, addr.ID, &UpdateInput{Notes: &same}); err != nil {
			t.Fatalf("Update failed: %v", err)
		}

		history, err := svc.History(ctx, orgID, addr.ID)
		if err != nil {
			t.Fatalf("History failed: %v", err)
		}
		if len(history) != 1 {
			t.Errorf("expected only the create record, got %d", len(history))
		}
	})

	t.Run("MissingAddress", func(t *testing.T) {
		svc := newTestRegistry(t)

		notes := "whatever"
		_, err := svc.Update(ctx, orgID, actorID, "no-such-id", &UpdateInput{Notes: &notes})
		if !errors.Is(err, repository.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestDeactivate(t *testing.T) {
	ctx := context.Background()
	orgID := "org-001"
	actorID := "analyst-1"

	svc := newTestRegistry(t)

	addr, err := svc.Register(ctx, orgID, actorID, &domain.MonitoredAddress{
		Address:    "bc1qdeactivate001",
		Blockchain: "bitcoin",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if err := svc.Deactivate(ctx, orgID, actorID, addr.ID); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}

	got, err := svc.Get(ctx, orgID, addr.ID)
	if err != nil {
		t.Fatalf("Get after deactivation failed: %v", err)
	}
	if got.IsActive {
		t.Error("expected address to be inactive")
	}

	active, err := svc.List(ctx, orgID, true)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(active) != 0 {
		t.Errorf("expected no active addresses, got %d", len(active))
	}

	all, err := svc.List(ctx, orgID, false)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 1 {
		t.Errorf("expected soft-deleted row to remain, got %d rows", len(all))
	}

	history, err := svc.History(ctx, orgID, addr.ID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected 2 change records, got %d", len(history))
	}
	if history[0].ChangeType != domain.ChangeStatusChange {
		t.Errorf("expected most recent record to be status_change, got %s", history[0].ChangeType)
	}

	// Deactivating twice is a no-op, not an error.
	if err := svc.Deactivate(ctx, orgID, actorID, addr.ID); err != nil {
		t.Fatalf("second Deactivate failed: %v", err)
	}
	history, _ = svc.History(ctx, orgID, addr.ID)
	if len(history) != 2 {
		t.Errorf("expected no extra record for repeated deactivation, got %d", len(history))
	}
}

func TestBulkUpload(t *testing.T) {
	ctx := context.Background()
	orgID := "org-001"
	actorID := "analyst-1"

	svc := newTestRegistry(t)

	rows := []*domain.MonitoredAddress{
		{Address: "bc1qbulk00000001", Blockchain: "bitcoin"},
		{Address: "bc1qbulk00000002", Blockchain: "bitcoin"},
		{Address: "bad address", Blockchain: "bitcoin"},
		{Address: "bc1qbulk00000003", Blockchain: "bitcoin"},
	}

	results, err := svc.BulkUpload(ctx, orgID, actorID, rows)
	if err != nil {
		t.Fatalf("BulkUpload failed: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}

	for _, i := range []int{0, 1, 3} {
		if !results[i].Succeeded {
			t.Errorf("row %d: expected success, got %q", i, results[i].Error)
		}
		if results[i].ID == "" {
			t.Errorf("row %d: expected an id", i)
		}
	}
	if results[2].Succeeded {
		t.Error("row 2: expected failure for malformed address")
	}
	if results[2].Error == "" {
		t.Error("row 2: expected an itemized error message")
	}

	// The bad row must not roll back its neighbors.
	all, err := svc.List(ctx, orgID, true)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 registered addresses, got %d", len(all))
	}
}

func TestOrganizationIsolation(t *testing.T) {
	ctx := context.Background()
	actorID := "analyst-1"

	svc := newTestRegistry(t)

	addr, err := svc.Register(ctx, "org-001", actorID, &domain.MonitoredAddress{
		Address:    "bc1qisolated0001",
		Blockchain: "bitcoin",
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	if _, err := svc.Get(ctx, "org-002", addr.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound across organizations, got %v", err)
	}
	if _, err := svc.History(ctx, "org-002", addr.ID); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound for cross-org history, got %v", err)
	}
}
