package repository

// Schema definitions for the Harrier database.
// Compatible with both SQLite and PostgreSQL.

const schemaAttributionRecords = `
CREATE TABLE IF NOT EXISTS attribution_records (
    id TEXT PRIMARY KEY,
    address TEXT NOT NULL,
    entity_id TEXT NOT NULL,
    entity_type TEXT NOT NULL,
    beneficial_owner TEXT,
    custodian TEXT,
    rule_type TEXT,
    rule_address TEXT,
    priority INTEGER NOT NULL DEFAULT 0,
    source TEXT NOT NULL,
    observed_date TIMESTAMP NOT NULL,
    priority_rank INTEGER NOT NULL,
    countries TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_attribution_address ON attribution_records(address);
CREATE INDEX IF NOT EXISTS idx_attribution_entity ON attribution_records(entity_id);
`

const schemaEntityTypes = `
CREATE TABLE IF NOT EXISTS entity_types (
    entity_type TEXT PRIMARY KEY,
    category TEXT NOT NULL,
    risk_score REAL NOT NULL,
    risk_flag INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaJurisdictionScores = `
CREATE TABLE IF NOT EXISTS jurisdiction_scores (
    country TEXT PRIMARY KEY,
    score REAL NOT NULL,
    updated_at TIMESTAMP NOT NULL
);
`

const schemaRiskRules = `
CREATE TABLE IF NOT EXISTS risk_rules (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    description TEXT,
    kind TEXT NOT NULL,
    expression TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_risk_rules_enabled ON risk_rules(enabled);
`

const schemaMonitoredAddresses = `
CREATE TABLE IF NOT EXISTS monitored_addresses (
    id TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL,
    address TEXT NOT NULL,
    blockchain TEXT NOT NULL,
    client_id TEXT,
    notes TEXT,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    UNIQUE (address, organization_id)
);

CREATE INDEX IF NOT EXISTS idx_monitored_org ON monitored_addresses(organization_id);
CREATE INDEX IF NOT EXISTS idx_monitored_active ON monitored_addresses(organization_id, is_active);
`

const schemaAddressChanges = `
CREATE TABLE IF NOT EXISTS monitored_address_changes (
    id TEXT PRIMARY KEY,
    monitored_address_id TEXT NOT NULL,
    organization_id TEXT NOT NULL,
    change_type TEXT NOT NULL,
    field_name TEXT,
    old_value TEXT,
    new_value TEXT,
    changed_by_id TEXT NOT NULL,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_addr_changes ON monitored_address_changes(organization_id, monitored_address_id, timestamp);
`

const schemaComplianceTransactions = `
CREATE TABLE IF NOT EXISTS compliance_transactions (
    id TEXT PRIMARY KEY,
    organization_id TEXT NOT NULL,
    tx_id TEXT NOT NULL,
    client_id TEXT,
    monitored_address_id TEXT NOT NULL,
    counterparty_entities TEXT,
    blockchain TEXT NOT NULL,
    amount REAL NOT NULL,
    timestamp TIMESTAMP NOT NULL,
    risk_scores TEXT,
    notes TEXT,
    sar_submitted INTEGER NOT NULL DEFAULT 0,
    sar_report_ref TEXT,
    reviewer_id TEXT,
    review_timestamp TIMESTAMP,
    status TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    UNIQUE (tx_id, monitored_address_id, organization_id)
);

CREATE INDEX IF NOT EXISTS idx_cases_org ON compliance_transactions(organization_id);
CREATE INDEX IF NOT EXISTS idx_cases_status ON compliance_transactions(organization_id, status);
CREATE INDEX IF NOT EXISTS idx_cases_tx ON compliance_transactions(organization_id, tx_id);
`

const schemaCaseStatusHistory = `
CREATE TABLE IF NOT EXISTS case_status_history (
    id TEXT PRIMARY KEY,
    case_id TEXT NOT NULL,
    organization_id TEXT NOT NULL,
    status TEXT NOT NULL,
    reviewer TEXT,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_case_history ON case_status_history(organization_id, case_id, timestamp);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaAttributionRecords,
		schemaEntityTypes,
		schemaJurisdictionScores,
		schemaRiskRules,
		schemaMonitoredAddresses,
		schemaAddressChanges,
		schemaComplianceTransactions,
		schemaCaseStatusHistory,
	}
}
