package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/pipeline"
	"github.com/opensource-finance/harrier/internal/refdata"
	"github.com/opensource-finance/harrier/internal/registry"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/rules"
	"github.com/opensource-finance/harrier/internal/scoring"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	scoring  *scoring.Service
	registry *registry.Service
	pipeline *pipeline.Service
	engine   *rules.Engine
	ref      *refdata.Store
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, scoringSvc *scoring.Service, registrySvc *registry.Service, pipelineSvc *pipeline.Service, engine *rules.Engine, ref *refdata.Store, version string) *Handler {
	return &Handler{
		repo:     repo,
		cache:    cache,
		scoring:  scoringSvc,
		registry: registrySvc,
		pipeline: pipelineSvc,
		engine:   engine,
		ref:      ref,
		version:  version,
	}
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ScoreAddressRequest is the request body for POST /score/address.
type ScoreAddressRequest struct {
	Address string `json:"address"`
}

// ScoreAddress runs a full risk scoring pass for an address.
func (h *Handler) ScoreAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	organizationID := GetOrganizationID(ctx)

	var req ScoreAddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Address == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "address is required",
		})
		return
	}

	result, err := h.scoring.ScoreAddress(ctx, organizationID, req.Address)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ScoreTransactionRequest is the request body for POST /score/transaction.
type ScoreTransactionRequest struct {
	TxID string `json:"txId"`
}

// ScoreTransaction runs a full risk scoring pass for a transaction.
func (h *Handler) ScoreTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	organizationID := GetOrganizationID(ctx)

	var req ScoreTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.TxID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "txId is required",
		})
		return
	}

	result, err := h.scoring.ScoreTransaction(ctx, organizationID, req.TxID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RegisterAddressRequest is the request body for POST /addresses.
type RegisterAddressRequest struct {
	Address    string `json:"address"`
	Blockchain string `json:"blockchain"`
	ClientID   string `json:"clientId,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// RegisterAddress adds an address to the organization's watch list.
func (h *Handler) RegisterAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	organizationID := GetOrganizationID(ctx)
	actorID := GetActorID(ctx)
	if actorID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "X-Actor-ID header is required for watch list changes",
		})
		return
	}

	var req RegisterAddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	addr, err := h.registry.Register(ctx, organizationID, actorID, &domain.MonitoredAddress{
		Address:    req.Address,
		Blockchain: req.Blockchain,
		ClientID:   req.ClientID,
		Notes:      req.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, addr)
}

// ListAddresses returns the watch list, optionally active entries only.
func (h *Handler) ListAddresses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	organizationID := GetOrganizationID(ctx)

	activeOnly := r.URL.Query().Get("active") == "true"
	addrs, err := h.registry.List(ctx, organizationID, activeOnly)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"addresses": addrsOrEmpty(addrs),
		"count":     len(addrs),
	})
}

// GetAddress returns one monitored address by id.
func (h *Handler) GetAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	organizationID := GetOrganizationID(ctx)
	id := chi.URLParam(r, "id")

	addr, err := h.registry.Get(ctx, organizationID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, addr)
}

// UpdateAddressRequest is the request body for PUT /addresses/{id}.
// Nil fields are left unchanged.
type UpdateAddressRequest struct {
	ClientID   *string `json:"clientId,omitempty"`
	Blockchain *string `json:"blockchain,omitempty"`
	Notes      *string `json:"notes,omitempty"`
}

// UpdateAddress applies a field-level diff to a monitored address.
func (h *Handler) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	organizationID := GetOrganizationID(ctx)
	actorID := GetActorID(ctx)
	if actorID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "X-Actor-ID header is required for watch list changes",
		})
		return
	}
	id := chi.URLParam(r, "id")

	var req UpdateAddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	addr, err := h.registry.Update(ctx, organizationID, actorID, id, &registry.UpdateInput{
		ClientID:   req.ClientID,
		Blockchain: req.Blockchain,
		Notes:      req.Notes,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, addr)
}

// DeactivateAddress soft-disables a monitored address.
func (h *Handler) DeactivateAddress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	organizationID := GetOrganizationID(ctx)
	actorID := GetActorID(ctx)
	if actorID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "X-Actor-ID header is required for watch list changes",
		})
		return
	}
	id := chi.URLParam(r, "id")

	if err := h.registry.Deactivate(ctx, organizationID, actorID, id); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "address deactivated",
	})
}

// BulkUploadRequest is the request body for POST /addresses/bulk.
type BulkUploadRequest struct {
	Addresses []RegisterAddressRequest `json:"addresses"`
}

// BulkUploadAddresses registers a batch of addresses with itemized results.
func (h *Handler) BulkUploadAddresses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	organizationID := GetOrganizationID(ctx)
	actorID := GetActorID(ctx)
	if actorID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "X-Actor-ID header is required for watch list changes",
		})
		return
	}

	var req BulkUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Addresses) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "addresses is required",
		})
		return
	}

	rows := make([]*domain.MonitoredAddress, len(req.Addresses))
	for i, a := range req.Addresses {
		rows[i] = &domain.MonitoredAddress{
			Address:    a.Address,
			Blockchain: a.Blockchain,
			ClientID:   a.ClientID,
			Notes:      a.Notes,
		}
	}

	results, err := h.registry.BulkUpload(ctx, organizationID, actorID, rows)
	if err != nil {
		writeError(w, err)
		return
	}

	succeeded := 0
	for _, res := range results {
		if res.Succeeded {
			succeeded++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results":   results,
		"total":     len(results),
		"succeeded": succeeded,
		"failed":    len(results) - succeeded,
	})
}

// GetAddressHistory returns the audit change records for an address.
func (h *Handler) GetAddressHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	organizationID := GetOrganizationID(ctx)
	id := chi.URLParam(r, "id")

	changes, err := h.registry.History(ctx, organizationID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"changes": changes,
		"count":   len(changes),
	})
}

// ListCases returns the organization's compliance cases.
func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	organizationID := GetOrganizationID(ctx)

	status := domain.CaseStatus(r.URL.Query().Get("status"))
	cases, err := h.pipeline.List(ctx, organizationID, status)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cases": cases,
		"count": len(cases),
	})
}

// GetCase returns one case with its full status history.
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	organizationID := GetOrganizationID(ctx)
	id := chi.URLParam(r, "id")

	c, err := h.pipeline.Get(ctx, organizationID, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// UpdateCaseStatusRequest is the request body for POST /cases/{id}/status.
type UpdateCaseStatusRequest struct {
	Status       domain.CaseStatus `json:"status"`
	Notes        string            `json:"notes,omitempty"`
	SARReportRef string            `json:"sarReportRef,omitempty"`
}

// UpdateCaseStatus moves a case through the review state machine.
func (h *Handler) UpdateCaseStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	organizationID := GetOrganizationID(ctx)
	actorID := GetActorID(ctx)
	if actorID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "X-Actor-ID header is required for case changes",
		})
		return
	}
	id := chi.URLParam(r, "id")

	var req UpdateCaseStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.Status == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "status is required",
		})
		return
	}

	c, err := h.pipeline.UpdateStatus(ctx, organizationID, actorID, id, req.Status, pipeline.StatusUpdate{
		Notes:        req.Notes,
		SARReportRef: req.SARReportRef,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// AssignCaseRequest is the request body for POST /cases/{id}/assignee.
type AssignCaseRequest struct {
	ReviewerID string `json:"reviewerId"`
}

// AssignCase sets the case reviewer.
func (h *Handler) AssignCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	organizationID := GetOrganizationID(ctx)
	actorID := GetActorID(ctx)
	if actorID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "X-Actor-ID header is required for case changes",
		})
		return
	}
	id := chi.URLParam(r, "id")

	var req AssignCaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	c, err := h.pipeline.Assign(ctx, organizationID, actorID, id, req.ReviewerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// BulkAssignRequest is the request body for POST /cases/assignees.
type BulkAssignRequest struct {
	Updates []domain.AssigneeUpdate `json:"updates"`
}

// BulkAssignCases applies assignee updates with itemized results.
func (h *Handler) BulkAssignCases(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	organizationID := GetOrganizationID(ctx)
	actorID := GetActorID(ctx)
	if actorID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "X-Actor-ID header is required for case changes",
		})
		return
	}

	var req BulkAssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Updates) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "updates is required",
		})
		return
	}

	results, err := h.pipeline.BulkAssign(ctx, organizationID, actorID, req.Updates)
	if err != nil {
		writeError(w, err)
		return
	}

	succeeded := 0
	for _, res := range results {
		if res.Succeeded {
			succeeded++
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"results":   results,
		"total":     len(results),
		"succeeded": succeeded,
		"failed":    len(results) - succeeded,
	})
}

// TriggerScan runs the transaction scan for the organization.
func (h *Handler) TriggerScan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	organizationID := GetOrganizationID(ctx)

	result, err := h.pipeline.ProcessOrganizationTransactions(ctx, organizationID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ListRules returns all loaded risk rules from the engine.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loadedRules := h.engine.GetLoadedRules()

	writeJSON(w, http.StatusOK, map[string]any{
		"rules": loadedRules,
		"count": len(loadedRules),
	})
}

// CreateRuleRequest is the request body for creating a risk rule.
type CreateRuleRequest struct {
	ID          string                     `json:"id"`
	Name        string                     `json:"name"`
	Description string                     `json:"description,omitempty"`
	Kind        domain.TransactionRiskKind `json:"kind"`
	Expression  string                     `json:"expression"`
	Enabled     bool                       `json:"enabled"`
}

// CreateRule validates, persists and loads a risk rule.
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "id, name, and expression are required",
		})
		return
	}

	now := time.Now().UTC()
	cfg := &domain.RiskRuleConfig{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		Kind:        req.Kind,
		Expression:  req.Expression,
		Enabled:     req.Enabled,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.engine.LoadRule(cfg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid CEL expression: " + err.Error(),
		})
		return
	}

	if err := h.repo.SaveRiskRule(ctx, cfg); err != nil {
		slog.Error("failed to save risk rule", "id", cfg.ID, "error", err)
		writeError(w, err)
		return
	}

	slog.Info("risk rule created", "id", cfg.ID, "kind", cfg.Kind)
	writeJSON(w, http.StatusCreated, cfg)
}

// ReloadRules reloads all enabled rules from the database into the engine.
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	dbRules, err := h.repo.ListRiskRules(ctx)
	if err != nil {
		slog.Error("failed to list risk rules", "error", err)
		writeError(w, err)
		return
	}

	if err := h.engine.ReloadRules(dbRules); err != nil {
		slog.Error("failed to reload risk rules", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to reload rules: " + err.Error(),
		})
		return
	}

	slog.Info("risk rules reloaded", "count", len(dbRules))
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "rules reloaded successfully",
		"count":   len(dbRules),
	})
}

// ReloadRefData refreshes the entity-type catalog and jurisdiction table
// snapshots from the repository.
func (h *Handler) ReloadRefData(w http.ResponseWriter, r *http.Request) {
	if err := h.ref.Reload(r.Context(), h.repo); err != nil {
		slog.Error("failed to reload reference data", "error", err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":       "reference data reloaded",
		"entityTypes":   h.ref.EntityTypeCount(),
		"jurisdictions": h.ref.JurisdictionCount(),
	})
}

// writeError maps service errors onto HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	var te *pipeline.TransitionError
	switch {
	case errors.Is(err, repository.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, repository.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, repository.ErrDuplicate):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.As(err, &te):
		writeJSON(w, http.StatusConflict, map[string]string{"error": te.Error()})
	case errors.Is(err, pipeline.ErrScanInProgress):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	default:
		slog.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func addrsOrEmpty(addrs []*domain.MonitoredAddress) []*domain.MonitoredAddress {
	if addrs == nil {
		return []*domain.MonitoredAddress{}
	}
	return addrs
}
