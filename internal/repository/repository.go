// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/harrier/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrDuplicate    = errors.New("record already exists")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	// Run migrations
	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveAttributionRecord stores one attribution record. Records are immutable
// once ingested, so this is insert-only.
func (r *SQLRepository) SaveAttributionRecord(ctx context.Context, rec *domain.AttributionRecord) error {
	if rec.Address == "" || rec.Source == "" {
		return fmt.Errorf("%w: address and source are required", ErrInvalidInput)
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	countries, _ := json.Marshal(rec.Countries)

	query := `
		INSERT INTO attribution_records (
			id, address, entity_id, entity_type, beneficial_owner, custodian,
			rule_type, rule_address, priority, source, observed_date,
			priority_rank, countries, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rec.ID, rec.Address, rec.EntityID, rec.EntityType,
		rec.BeneficialOwner, rec.Custodian,
		rec.RuleType, rec.RuleAddress, rec.Priority, rec.Source,
		rec.ObservedDate, rec.PriorityRank, string(countries),
		time.Now().UTC(),
	)
	return err
}

// GetAttributionRecords retrieves all attribution records for an address.
func (r *SQLRepository) GetAttributionRecords(ctx context.Context, address string) ([]*domain.AttributionRecord, error) {
	if address == "" {
		return nil, fmt.Errorf("%w: address is required", ErrInvalidInput)
	}

	query := `
		SELECT id, address, entity_id, entity_type, beneficial_owner, custodian,
			   rule_type, rule_address, priority, source, observed_date,
			   priority_rank, countries
		FROM attribution_records
		WHERE address = ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), address)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.AttributionRecord
	for rows.Next() {
		var rec domain.AttributionRecord
		var countries string

		if err := rows.Scan(
			&rec.ID, &rec.Address, &rec.EntityID, &rec.EntityType,
			&rec.BeneficialOwner, &rec.Custodian,
			&rec.RuleType, &rec.RuleAddress, &rec.Priority, &rec.Source,
			&rec.ObservedDate, &rec.PriorityRank, &countries,
		); err != nil {
			return nil, err
		}

		if countries != "" {
			json.Unmarshal([]byte(countries), &rec.Countries)
		}
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// SaveEntityType upserts one entity-type catalog entry.
func (r *SQLRepository) SaveEntityType(ctx context.Context, info *domain.EntityTypeInfo) error {
	if info.EntityType == "" {
		return fmt.Errorf("%w: entityType is required", ErrInvalidInput)
	}
	if info.RiskScore < 0 || info.RiskScore > 100 {
		return fmt.Errorf("%w: risk score must be in [0,100]", ErrInvalidInput)
	}

	riskFlag := 0
	if info.RiskFlag {
		riskFlag = 1
	}

	query := `
		INSERT INTO entity_types (entity_type, category, risk_score, risk_flag, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(entity_type) DO UPDATE SET
			category = excluded.category,
			risk_score = excluded.risk_score,
			risk_flag = excluded.risk_flag,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		info.EntityType, info.Category, info.RiskScore, riskFlag, time.Now().UTC(),
	)
	return err
}

// ListEntityTypes retrieves the full entity-type catalog.
func (r *SQLRepository) ListEntityTypes(ctx context.Context) ([]*domain.EntityTypeInfo, error) {
	query := `SELECT entity_type, category, risk_score, risk_flag, updated_at FROM entity_types ORDER BY entity_type`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var infos []*domain.EntityTypeInfo
	for rows.Next() {
		var info domain.EntityTypeInfo
		var riskFlag int
		if err := rows.Scan(&info.EntityType, &info.Category, &info.RiskScore, &riskFlag, &info.UpdatedAt); err != nil {
			return nil, err
		}
		info.RiskFlag = riskFlag == 1
		infos = append(infos, &info)
	}

	return infos, rows.Err()
}

// SaveJurisdictionScore upserts one jurisdiction score.
func (r *SQLRepository) SaveJurisdictionScore(ctx context.Context, js *domain.JurisdictionScore) error {
	if js.Country == "" {
		return fmt.Errorf("%w: country is required", ErrInvalidInput)
	}

	query := `
		INSERT INTO jurisdiction_scores (country, score, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(country) DO UPDATE SET
			score = excluded.score,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query), js.Country, js.Score, time.Now().UTC())
	return err
}

// ListJurisdictionScores retrieves the full jurisdiction table.
func (r *SQLRepository) ListJurisdictionScores(ctx context.Context) ([]*domain.JurisdictionScore, error) {
	query := `SELECT country, score, updated_at FROM jurisdiction_scores ORDER BY country`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scores []*domain.JurisdictionScore
	for rows.Next() {
		var js domain.JurisdictionScore
		if err := rows.Scan(&js.Country, &js.Score, &js.UpdatedAt); err != nil {
			return nil, err
		}
		scores = append(scores, &js)
	}

	return scores, rows.Err()
}

// SaveRiskRule upserts one transaction risk rule.
func (r *SQLRepository) SaveRiskRule(ctx context.Context, rule *domain.RiskRuleConfig) error {
	if rule.ID == "" || rule.Expression == "" {
		return fmt.Errorf("%w: rule id and expression are required", ErrInvalidInput)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}
	now := time.Now().UTC()

	query := `
		INSERT INTO risk_rules (id, name, description, kind, expression, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			kind = excluded.kind,
			expression = excluded.expression,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, rule.Name, rule.Description, string(rule.Kind),
		rule.Expression, enabled, now, now,
	)
	return err
}

// ListRiskRules retrieves all enabled transaction risk rules.
func (r *SQLRepository) ListRiskRules(ctx context.Context) ([]*domain.RiskRuleConfig, error) {
	query := `
		SELECT id, name, description, kind, expression, enabled, created_at, updated_at
		FROM risk_rules
		WHERE enabled = 1
		ORDER BY name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.RiskRuleConfig
	for rows.Next() {
		var rule domain.RiskRuleConfig
		var kind string
		var enabled int
		if err := rows.Scan(&rule.ID, &rule.Name, &rule.Description, &kind,
			&rule.Expression, &enabled, &rule.CreatedAt, &rule.UpdatedAt); err != nil {
			return nil, err
		}
		rule.Kind = domain.TransactionRiskKind(kind)
		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// SaveMonitoredAddress inserts a monitored address and its create-change
// record in one transaction. The change record is written first so the row
// is never visible without its audit trail.
func (r *SQLRepository) SaveMonitoredAddress(ctx context.Context, organizationID string, addr *domain.MonitoredAddress, change *domain.MonitoredAddressChange) error {
	if organizationID == "" {
		return fmt.Errorf("%w: organizationID is required", ErrInvalidInput)
	}

	var exists int
	checkQuery := `SELECT COUNT(*) FROM monitored_addresses WHERE organization_id = ? AND address = ?`
	if err := r.db.QueryRowContext(ctx, r.rebind(checkQuery), organizationID, addr.Address).Scan(&exists); err != nil {
		return err
	}
	if exists > 0 {
		return fmt.Errorf("%w: address %s already monitored for organization", ErrDuplicate, addr.Address)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if change != nil {
		if err := r.insertAddressChange(ctx, tx, organizationID, change); err != nil {
			return err
		}
	}

	isActive := 0
	if addr.IsActive {
		isActive = 1
	}

	insertQuery := `
		INSERT INTO monitored_addresses (
			id, organization_id, address, blockchain, client_id, notes,
			is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if _, err := tx.ExecContext(ctx, r.rebind(insertQuery),
		addr.ID, organizationID, addr.Address, addr.Blockchain,
		addr.ClientID, addr.Notes, isActive, addr.CreatedAt, addr.UpdatedAt,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// GetMonitoredAddress retrieves a monitored address by ID.
func (r *SQLRepository) GetMonitoredAddress(ctx context.Context, organizationID string, id string) (*domain.MonitoredAddress, error) {
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organizationID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, organization_id, address, blockchain, client_id, notes,
			   is_active, created_at, updated_at
		FROM monitored_addresses
		WHERE organization_id = ? AND id = ?
	`

	return r.scanMonitoredAddress(r.db.QueryRowContext(ctx, r.rebind(query), organizationID, id))
}

// GetMonitoredAddressByAddress retrieves a monitored address by address string.
func (r *SQLRepository) GetMonitoredAddressByAddress(ctx context.Context, organizationID string, address string) (*domain.MonitoredAddress, error) {
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organizationID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, organization_id, address, blockchain, client_id, notes,
			   is_active, created_at, updated_at
		FROM monitored_addresses
		WHERE organization_id = ? AND address = ?
	`

	return r.scanMonitoredAddress(r.db.QueryRowContext(ctx, r.rebind(query), organizationID, address))
}

func (r *SQLRepository) scanMonitoredAddress(row *sql.Row) (*domain.MonitoredAddress, error) {
	var addr domain.MonitoredAddress
	var isActive int

	err := row.Scan(
		&addr.ID, &addr.OrganizationID, &addr.Address, &addr.Blockchain,
		&addr.ClientID, &addr.Notes, &isActive, &addr.CreatedAt, &addr.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	addr.IsActive = isActive == 1
	return &addr, nil
}

// ListMonitoredAddresses retrieves an organization's watch list.
func (r *SQLRepository) ListMonitoredAddresses(ctx context.Context, organizationID string, activeOnly bool) ([]*domain.MonitoredAddress, error) {
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organizationID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, organization_id, address, blockchain, client_id, notes,
			   is_active, created_at, updated_at
		FROM monitored_addresses
		WHERE organization_id = ?
	`
	if activeOnly {
		query += ` AND is_active = 1`
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), organizationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var addrs []*domain.MonitoredAddress
	for rows.Next() {
		var addr domain.MonitoredAddress
		var isActive int
		if err := rows.Scan(
			&addr.ID, &addr.OrganizationID, &addr.Address, &addr.Blockchain,
			&addr.ClientID, &addr.Notes, &isActive, &addr.CreatedAt, &addr.UpdatedAt,
		); err != nil {
			return nil, err
		}
		addr.IsActive = isActive == 1
		addrs = append(addrs, &addr)
	}

	return addrs, rows.Err()
}

// UpdateMonitoredAddress writes the updated row and its field-level change
// records in one transaction, change records first.
func (r *SQLRepository) UpdateMonitoredAddress(ctx context.Context, organizationID string, addr *domain.MonitoredAddress, changes []*domain.MonitoredAddressChange) error {
	if organizationID == "" {
		return fmt.Errorf("%w: organizationID is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, change := range changes {
		if err := r.insertAddressChange(ctx, tx, organizationID, change); err != nil {
			return err
		}
	}

	isActive := 0
	if addr.IsActive {
		isActive = 1
	}

	query := `
		UPDATE monitored_addresses
		SET blockchain = ?, client_id = ?, notes = ?, is_active = ?, updated_at = ?
		WHERE organization_id = ? AND id = ?
	`

	result, err := tx.ExecContext(ctx, r.rebind(query),
		addr.Blockchain, addr.ClientID, addr.Notes, isActive, time.Now().UTC(),
		organizationID, addr.ID,
	)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

func (r *SQLRepository) insertAddressChange(ctx context.Context, tx *sql.Tx, organizationID string, change *domain.MonitoredAddressChange) error {
	if change.ID == "" {
		change.ID = uuid.New().String()
	}
	if change.Timestamp.IsZero() {
		change.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO monitored_address_changes (
			id, monitored_address_id, organization_id, change_type,
			field_name, old_value, new_value, changed_by_id, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := tx.ExecContext(ctx, r.rebind(query),
		change.ID, change.MonitoredAddressID, organizationID,
		string(change.ChangeType), change.FieldName, change.OldValue,
		change.NewValue, change.ChangedByID, change.Timestamp,
	)
	return err
}

// GetAddressChanges retrieves the audit history for a monitored address,
// newest first.
func (r *SQLRepository) GetAddressChanges(ctx context.Context, organizationID string, monitoredAddressID string) ([]*domain.MonitoredAddressChange, error) {
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organizationID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, monitored_address_id, organization_id, change_type,
			   field_name, old_value, new_value, changed_by_id, timestamp
		FROM monitored_address_changes
		WHERE organization_id = ? AND monitored_address_id = ?
		ORDER BY timestamp DESC, id DESC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), organizationID, monitoredAddressID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var changes []*domain.MonitoredAddressChange
	for rows.Next() {
		var change domain.MonitoredAddressChange
		var changeType string
		if err := rows.Scan(
			&change.ID, &change.MonitoredAddressID, &change.OrganizationID,
			&changeType, &change.FieldName, &change.OldValue,
			&change.NewValue, &change.ChangedByID, &change.Timestamp,
		); err != nil {
			return nil, err
		}
		change.ChangeType = domain.ChangeType(changeType)
		changes = append(changes, &change)
	}

	return changes, rows.Err()
}

// CreateComplianceTransaction inserts a case and its initial status history
// entry in one transaction, history first.
func (r *SQLRepository) CreateComplianceTransaction(ctx context.Context, organizationID string, c *domain.ComplianceTransaction) error {
	if organizationID == "" {
		return fmt.Errorf("%w: organizationID is required", ErrInvalidInput)
	}
	if len(c.StatusHistory) == 0 {
		return fmt.Errorf("%w: case must carry its initial status history entry", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, entry := range c.StatusHistory {
		if err := r.insertStatusHistory(ctx, tx, organizationID, c.ID, &entry); err != nil {
			return err
		}
	}

	counterparties, _ := json.Marshal(c.CounterpartyEntities)
	riskScores, _ := json.Marshal(c.RiskScores)

	sarSubmitted := 0
	if c.SARSubmitted {
		sarSubmitted = 1
	}

	query := `
		INSERT INTO compliance_transactions (
			id, organization_id, tx_id, client_id, monitored_address_id,
			counterparty_entities, blockchain, amount, timestamp, risk_scores,
			notes, sar_submitted, sar_report_ref, reviewer_id, review_timestamp,
			status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if _, err := tx.ExecContext(ctx, r.rebind(query),
		c.ID, organizationID, c.TxID, c.ClientID, c.MonitoredAddressID,
		string(counterparties), c.Blockchain, c.Amount, c.Timestamp, string(riskScores),
		c.Notes, sarSubmitted, c.SARReportRef, c.ReviewerID, c.ReviewTimestamp,
		string(c.Status), c.CreatedAt, c.UpdatedAt,
	); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *SQLRepository) insertStatusHistory(ctx context.Context, tx *sql.Tx, organizationID, caseID string, entry *domain.StatusChange) error {
	query := `
		INSERT INTO case_status_history (id, case_id, organization_id, status, reviewer, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := tx.ExecContext(ctx, r.rebind(query),
		uuid.New().String(), caseID, organizationID,
		string(entry.Status), entry.Reviewer, entry.Timestamp,
	)
	return err
}

// GetComplianceTransaction retrieves a case with its full status history.
func (r *SQLRepository) GetComplianceTransaction(ctx context.Context, organizationID string, id string) (*domain.ComplianceTransaction, error) {
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organizationID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, organization_id, tx_id, client_id, monitored_address_id,
			   counterparty_entities, blockchain, amount, timestamp, risk_scores,
			   notes, sar_submitted, sar_report_ref, reviewer_id, review_timestamp,
			   status, created_at, updated_at
		FROM compliance_transactions
		WHERE organization_id = ? AND id = ?
	`

	c, err := r.scanCase(r.db.QueryRowContext(ctx, r.rebind(query), organizationID, id))
	if err != nil {
		return nil, err
	}

	history, err := r.getStatusHistory(ctx, organizationID, c.ID)
	if err != nil {
		return nil, err
	}
	c.StatusHistory = history

	return c, nil
}

// GetComplianceTransactionByTxID retrieves the case for a chain transaction
// and monitored address pair, used to deduplicate scan runs.
func (r *SQLRepository) GetComplianceTransactionByTxID(ctx context.Context, organizationID string, txID string, monitoredAddressID string) (*domain.ComplianceTransaction, error) {
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organizationID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, organization_id, tx_id, client_id, monitored_address_id,
			   counterparty_entities, blockchain, amount, timestamp, risk_scores,
			   notes, sar_submitted, sar_report_ref, reviewer_id, review_timestamp,
			   status, created_at, updated_at
		FROM compliance_transactions
		WHERE organization_id = ? AND tx_id = ? AND monitored_address_id = ?
	`

	return r.scanCase(r.db.QueryRowContext(ctx, r.rebind(query), organizationID, txID, monitoredAddressID))
}

func (r *SQLRepository) scanCase(row *sql.Row) (*domain.ComplianceTransaction, error) {
	var c domain.ComplianceTransaction
	var counterparties, riskScores, status string
	var sarSubmitted int
	var reviewTimestamp sql.NullTime

	err := row.Scan(
		&c.ID, &c.OrganizationID, &c.TxID, &c.ClientID, &c.MonitoredAddressID,
		&counterparties, &c.Blockchain, &c.Amount, &c.Timestamp, &riskScores,
		&c.Notes, &sarSubmitted, &c.SARReportRef, &c.ReviewerID, &reviewTimestamp,
		&status, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	c.Status = domain.CaseStatus(status)
	c.SARSubmitted = sarSubmitted == 1
	if reviewTimestamp.Valid {
		t := reviewTimestamp.Time
		c.ReviewTimestamp = &t
	}
	if counterparties != "" {
		json.Unmarshal([]byte(counterparties), &c.CounterpartyEntities)
	}
	if riskScores != "" {
		json.Unmarshal([]byte(riskScores), &c.RiskScores)
	}

	return &c, nil
}

func (r *SQLRepository) getStatusHistory(ctx context.Context, organizationID, caseID string) ([]domain.StatusChange, error) {
	query := `
		SELECT status, reviewer, timestamp
		FROM case_status_history
		WHERE organization_id = ? AND case_id = ?
		ORDER BY timestamp ASC, id ASC
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), organizationID, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []domain.StatusChange
	for rows.Next() {
		var entry domain.StatusChange
		var status string
		if err := rows.Scan(&status, &entry.Reviewer, &entry.Timestamp); err != nil {
			return nil, err
		}
		entry.Status = domain.CaseStatus(status)
		history = append(history, entry)
	}

	return history, rows.Err()
}

// ListComplianceTransactions retrieves an organization's cases, optionally
// filtered by status, newest first. Histories are not loaded for lists.
func (r *SQLRepository) ListComplianceTransactions(ctx context.Context, organizationID string, status domain.CaseStatus) ([]*domain.ComplianceTransaction, error) {
	if organizationID == "" {
		return nil, fmt.Errorf("%w: organizationID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, organization_id, tx_id, client_id, monitored_address_id,
			   counterparty_entities, blockchain, amount, timestamp, risk_scores,
			   notes, sar_submitted, sar_report_ref, reviewer_id, review_timestamp,
			   status, created_at, updated_at
		FROM compliance_transactions
		WHERE organization_id = ?
	`
	args := []any{organizationID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []*domain.ComplianceTransaction
	for rows.Next() {
		var c domain.ComplianceTransaction
		var counterparties, riskScores, caseStatus string
		var sarSubmitted int
		var reviewTimestamp sql.NullTime

		if err := rows.Scan(
			&c.ID, &c.OrganizationID, &c.TxID, &c.ClientID, &c.MonitoredAddressID,
			&counterparties, &c.Blockchain, &c.Amount, &c.Timestamp, &riskScores,
			&c.Notes, &sarSubmitted, &c.SARReportRef, &c.ReviewerID, &reviewTimestamp,
			&caseStatus, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, err
		}

		c.Status = domain.CaseStatus(caseStatus)
		c.SARSubmitted = sarSubmitted == 1
		if reviewTimestamp.Valid {
			t := reviewTimestamp.Time
			c.ReviewTimestamp = &t
		}
		if counterparties != "" {
			json.Unmarshal([]byte(counterparties), &c.CounterpartyEntities)
		}
		if riskScores != "" {
			json.Unmarshal([]byte(riskScores), &c.RiskScores)
		}
		cases = append(cases, &c)
	}

	return cases, rows.Err()
}

// UpdateComplianceTransaction writes the case row and, when a transition
// occurred, its status history entry in one transaction. The history entry
// is inserted before the row update so a committed transition is always
// backed by its audit record (log-then-commit).
func (r *SQLRepository) UpdateComplianceTransaction(ctx context.Context, organizationID string, c *domain.ComplianceTransaction, entry *domain.StatusChange) error {
	if organizationID == "" {
		return fmt.Errorf("%w: organizationID is required", ErrInvalidInput)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if entry != nil {
		if err := r.insertStatusHistory(ctx, tx, organizationID, c.ID, entry); err != nil {
			return err
		}
	}

	counterparties, _ := json.Marshal(c.CounterpartyEntities)
	riskScores, _ := json.Marshal(c.RiskScores)

	sarSubmitted := 0
	if c.SARSubmitted {
		sarSubmitted = 1
	}

	query := `
		UPDATE compliance_transactions
		SET counterparty_entities = ?, risk_scores = ?, notes = ?,
			sar_submitted = ?, sar_report_ref = ?, reviewer_id = ?,
			review_timestamp = ?, status = ?, updated_at = ?
		WHERE organization_id = ? AND id = ?
	`

	result, err := tx.ExecContext(ctx, r.rebind(query),
		string(counterparties), string(riskScores), c.Notes,
		sarSubmitted, c.SARReportRef, c.ReviewerID,
		c.ReviewTimestamp, string(c.Status), time.Now().UTC(),
		organizationID, c.ID,
	)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
