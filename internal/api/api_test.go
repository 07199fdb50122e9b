package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/chain"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/pipeline"
	"github.com/opensource-finance/harrier/internal/refdata"
	"github.com/opensource-finance/harrier/internal/registry"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/rules"
	"github.com/opensource-finance/harrier/internal/scoring"
)

const testOrgHeader = "org-001"

// createTestServer wires a full Community-tier stack over a temp database.
func createTestServer(t *testing.T) (*Server, domain.Repository, *chain.MemorySource) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "api-test-*.db")
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

	ctx := context.Background()
	seedRef := []*domain.EntityTypeInfo{
		{EntityType: "exchange", Category: "custodial", RiskScore: 30},
		{EntityType: "mixer", Category: "obfuscation", RiskScore: 95, RiskFlag: true},
	}
	for _, info := range seedRef {
		if err := repo.SaveEntityType(ctx, info); err != nil {
			t.Fatalf("failed to seed entity type: %v", err)
		}
	}
	for _, js := range []*domain.JurisdictionScore{
		{Country: "KP", Score: 100},
		{Country: "CH", Score: 15},
	} {
		if err := repo.SaveJurisdictionScore(ctx, js); err != nil {
			t.Fatalf("failed to seed jurisdiction: %v", err)
		}
	}

	ref := refdata.NewStore()
	if err := ref.Reload(ctx, repo); err != nil {
		t.Fatalf("failed to load reference data: %v", err)
	}

	lru := cache.NewLRUCache(100)
	t.Cleanup(func() { lru.Close() })

	source := chain.NewMemorySource()

	engine, err := rules.NewEngine(nil, 4)
	if err != nil {
		t.Fatalf("failed to create rule engine: %v", err)
	}

	scoringCfg := domain.ScoringConfig{
		Weights:        domain.RiskWeights{Entity: 0.5, Jurisdiction: 0.3, Transaction: 0.2},
		MaxHops:        3,
		HopWeightDecay: 0.5,
		CacheTTL:       60,
		VelocityWindow: 3600,
	}
	scoringSvc, err := scoring.NewService(repo, lru, source, ref, engine, scoringCfg)
	if err != nil {
		t.Fatalf("failed to create scoring service: %v", err)
	}

	registrySvc := registry.NewService(repo)
	pipelineSvc := pipeline.NewService(repo, nil, scoringSvc, source, domain.PipelineConfig{
		ScanIntervalSecs: 300,
		ScanLookbackSecs: 86400,
		AlertThreshold:   70,
	})

	cfg := domain.ServerConfig{
		Host:         "localhost",
		Port:         8080,
		ReadTimeout:  30,
		WriteTimeout: 30,
	}
	server := NewServer(cfg, repo, lru, scoringSvc, registrySvc, pipelineSvc, engine, ref, "test-v1")
	return server, repo, source
}

func doRequest(t *testing.T, server *Server, method, path string, body any, withActor bool) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(OrganizationIDHeader, testOrgHeader)
	if withActor {
		req.Header.Set(ActorIDHeader, "analyst-1")
	}

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	return rr
}

func TestHealthEndpoints(t *testing.T) {
	server, _, _ := createTestServer(t)

	t.Run("Health", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rr.Code)
		}
		var resp map[string]string
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp["status"] != "healthy" {
			t.Errorf("expected healthy, got %s", resp["status"])
		}
		if resp["version"] != "test-v1" {
			t.Errorf("expected version test-v1, got %s", resp["version"])
		}
	})

	t.Run("Ready", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ready", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("MissingOrganizationHeader", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/addresses", nil)
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 without organization header, got %d", rr.Code)
		}
	})
}

func TestScoreEndpoints(t *testing.T) {
	server, repo, source := createTestServer(t)
	ctx := context.Background()

	if err := repo.SaveAttributionRecord(ctx, &domain.AttributionRecord{
		Address:      "bc1qapiscored001",
		EntityID:     "entity-1",
		EntityType:   "mixer",
		Priority:     1,
		PriorityRank: 10,
		Source:       "test",
		ObservedDate: time.Now().UTC(),
		Countries:    []string{"KP"},
	}); err != nil {
		t.Fatalf("failed to seed attribution: %v", err)
	}

	t.Run("ScoreAddress", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/score/address",
			ScoreAddressRequest{Address: "bc1qapiscored001"}, false)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var result domain.RiskScoringResult
		if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		// mixer 95 * 0.5 + KP 100 * 0.3 = 77.5
		if result.OverallRisk != 77.5 {
			t.Errorf("expected overall 77.5, got %.2f", result.OverallRisk)
		}
	})

	t.Run("ScoreAddressMissingBody", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/score/address",
			ScoreAddressRequest{}, false)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400, got %d", rr.Code)
		}
	})

	t.Run("ScoreTransaction", func(t *testing.T) {
		source.AddTransaction(&domain.ChainTransaction{
			Hash:       "api-tx-1",
			Blockchain: "bitcoin",
			Inputs:     []domain.ChainEndpoint{{Address: "bc1qapiscored001", Amount: 2}},
			Outputs:    []domain.ChainEndpoint{{Address: "bc1qapireceiver1", Amount: 2}},
			Amount:     2,
			Timestamp:  time.Now().UTC(),
		})

		rr := doRequest(t, server, http.MethodPost, "/score/transaction",
			ScoreTransactionRequest{TxID: "api-tx-1"}, false)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var result domain.RiskScoringResult
		if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if result.EntityRisk.AggregateScore != 95 {
			t.Errorf("expected entity 95, got %.1f", result.EntityRisk.AggregateScore)
		}
	})
}

func TestAddressEndpoints(t *testing.T) {
	server, _, _ := createTestServer(t)

	var created domain.MonitoredAddress

	t.Run("Register", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/addresses",
			RegisterAddressRequest{Address: "bc1qapiwatch0001", Blockchain: "bitcoin"}, true)

		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if created.ID == "" || !created.IsActive {
			t.Errorf("unexpected created address: %+v", created)
		}
	})

	t.Run("RegisterWithoutActor", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/addresses",
			RegisterAddressRequest{Address: "bc1qapiwatch0002", Blockchain: "bitcoin"}, false)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 without actor header, got %d", rr.Code)
		}
	})

	t.Run("DuplicateConflicts", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/addresses",
			RegisterAddressRequest{Address: "bc1qapiwatch0001", Blockchain: "bitcoin"}, true)
		if rr.Code != http.StatusConflict {
			t.Errorf("expected 409 for duplicate, got %d", rr.Code)
		}
	})

	t.Run("Get", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/addresses/"+created.ID, nil, false)
		if rr.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rr.Code)
		}
	})

	t.Run("GetMissing", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/addresses/no-such-id", nil, false)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected 404, got %d", rr.Code)
		}
	})

	t.Run("Update", func(t *testing.T) {
		notes := "api update"
		rr := doRequest(t, server, http.MethodPut, "/addresses/"+created.ID,
			UpdateAddressRequest{Notes: &notes}, true)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("History", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/addresses/"+created.ID+"/history", nil, false)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		var resp struct {
			Changes []domain.MonitoredAddressChange `json:"changes"`
			Count   int                             `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		// create + notes update
		if resp.Count != 2 {
			t.Errorf("expected 2 change records, got %d", resp.Count)
		}
	})

	t.Run("BulkUpload", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/addresses/bulk", BulkUploadRequest{
			Addresses: []RegisterAddressRequest{
				{Address: "bc1qapibulk00001", Blockchain: "bitcoin"},
				{Address: "not valid", Blockchain: "bitcoin"},
				{Address: "bc1qapibulk00002", Blockchain: "bitcoin"},
			},
		}, true)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var resp struct {
			Succeeded int `json:"succeeded"`
			Failed    int `json:"failed"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Succeeded != 2 || resp.Failed != 1 {
			t.Errorf("expected 2 succeeded / 1 failed, got %d/%d", resp.Succeeded, resp.Failed)
		}
	})

	t.Run("Deactivate", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodDelete, "/addresses/"+created.ID, nil, true)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}

		list := doRequest(t, server, http.MethodGet, "/addresses?active=true", nil, false)
		var resp struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal(list.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != 2 {
			t.Errorf("expected 2 active addresses after deactivation, got %d", resp.Count)
		}
	})
}

func TestCaseEndpoints(t *testing.T) {
	server, _, source := createTestServer(t)

	// Register a watched address, plant chain activity, then scan.
	rr := doRequest(t, server, http.MethodPost, "/addresses",
		RegisterAddressRequest{Address: "bc1qapicase00001", Blockchain: "bitcoin"}, true)
	if rr.Code != http.StatusCreated {
		t.Fatalf("failed to register address: %d %s", rr.Code, rr.Body.String())
	}

	source.AddTransaction(&domain.ChainTransaction{
		Hash:       "api-case-tx-1",
		Blockchain: "bitcoin",
		Inputs:     []domain.ChainEndpoint{{Address: "bc1qapipayer0001", Amount: 9}},
		Outputs:    []domain.ChainEndpoint{{Address: "bc1qapicase00001", Amount: 9}},
		Amount:     9,
		Timestamp:  time.Now().UTC(),
	})

	t.Run("ScanCreatesCase", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/scan", nil, false)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var result pipeline.ScanResult
		if err := json.Unmarshal(rr.Body.Bytes(), &result); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if result.CasesCreated != 1 {
			t.Errorf("expected 1 case, got %d", result.CasesCreated)
		}
	})

	var caseID string

	t.Run("List", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/cases", nil, false)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		var resp struct {
			Cases []domain.ComplianceTransaction `json:"cases"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if len(resp.Cases) != 1 {
			t.Fatalf("expected 1 case, got %d", len(resp.Cases))
		}
		caseID = resp.Cases[0].ID
		if resp.Cases[0].Status != domain.StatusUnassigned {
			t.Errorf("expected UNASSIGNED, got %s", resp.Cases[0].Status)
		}
	})

	t.Run("Assign", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/cases/"+caseID+"/assignee",
			AssignCaseRequest{ReviewerID: "analyst-7"}, true)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var c domain.ComplianceTransaction
		if err := json.Unmarshal(rr.Body.Bytes(), &c); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if c.Status != domain.StatusUnreviewed {
			t.Errorf("expected UNREVIEWED after assignment, got %s", c.Status)
		}
	})

	t.Run("IllegalTransitionConflicts", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/cases/"+caseID+"/status",
			UpdateCaseStatusRequest{Status: domain.StatusClosedWithSAR, SARReportRef: "SAR-1"}, true)
		if rr.Code != http.StatusConflict {
			t.Errorf("expected 409 for illegal transition, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("StatusProgression", func(t *testing.T) {
		for _, status := range []domain.CaseStatus{domain.StatusInReview, domain.StatusApproved} {
			rr := doRequest(t, server, http.MethodPost, "/cases/"+caseID+"/status",
				UpdateCaseStatusRequest{Status: status}, true)
			if rr.Code != http.StatusOK {
				t.Fatalf("transition to %s: expected 200, got %d: %s", status, rr.Code, rr.Body.String())
			}
		}

		// SAR closure without a report reference is a validation error.
		rr := doRequest(t, server, http.MethodPost, "/cases/"+caseID+"/status",
			UpdateCaseStatusRequest{Status: domain.StatusClosedWithSAR}, true)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 without SAR ref, got %d", rr.Code)
		}

		rr = doRequest(t, server, http.MethodPost, "/cases/"+caseID+"/status",
			UpdateCaseStatusRequest{Status: domain.StatusClosedWithSAR, SARReportRef: "SAR-2026-042"}, true)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
		var c domain.ComplianceTransaction
		if err := json.Unmarshal(rr.Body.Bytes(), &c); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if !c.SARSubmitted {
			t.Error("expected sarSubmitted true")
		}
		if len(c.StatusHistory) != 5 {
			t.Errorf("expected 5 history entries, got %d", len(c.StatusHistory))
		}
	})
}

func TestRuleEndpoints(t *testing.T) {
	server, _, _ := createTestServer(t)

	t.Run("Create", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/rules", CreateRuleRequest{
			ID:         "api-rule-1",
			Name:       "Large transfers",
			Kind:       domain.RiskKindAmount,
			Expression: "amount > 50000.0 ? 75.0 : 0.0",
			Enabled:    true,
		}, false)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("CreateRejectsBadExpression", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/rules", CreateRuleRequest{
			ID:         "api-rule-2",
			Name:       "Broken",
			Kind:       domain.RiskKindAmount,
			Expression: "amount >>> nonsense",
			Enabled:    true,
		}, false)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected 400 for bad CEL, got %d", rr.Code)
		}
	})

	t.Run("List", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodGet, "/rules", nil, false)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		var resp struct {
			Count int `json:"count"`
		}
		if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
			t.Fatalf("failed to parse response: %v", err)
		}
		if resp.Count != 1 {
			t.Errorf("expected 1 loaded rule, got %d", resp.Count)
		}
	})

	t.Run("Reload", func(t *testing.T) {
		rr := doRequest(t, server, http.MethodPost, "/rules/reload", nil, false)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
		}
	})
}

func TestRefDataReload(t *testing.T) {
	server, repo, _ := createTestServer(t)

	if err := repo.SaveEntityType(context.Background(), &domain.EntityTypeInfo{
		EntityType: "darknet_market",
		Category:   "illicit",
		RiskScore:  100,
		RiskFlag:   true,
	}); err != nil {
		t.Fatalf("failed to save entity type: %v", err)
	}

	rr := doRequest(t, server, http.MethodPost, "/refdata/reload", nil, false)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		EntityTypes int `json:"entityTypes"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if resp.EntityTypes != 3 {
		t.Errorf("expected 3 entity types after reload, got %d", resp.EntityTypes)
	}
}
