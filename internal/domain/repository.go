package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// Organization-scoped methods require organizationID for strict isolation;
// attribution records, the entity-type catalog, jurisdiction scores and risk
// rules are shared reference data.
type Repository interface {
	// Attribution records (reference data, append-only)
	SaveAttributionRecord(ctx context.Context, rec *AttributionRecord) error
	GetAttributionRecords(ctx context.Context, address string) ([]*AttributionRecord, error)

	// Entity-type catalog and jurisdiction table (reference data)
	SaveEntityType(ctx context.Context, info *EntityTypeInfo) error
	ListEntityTypes(ctx context.Context) ([]*EntityTypeInfo, error)
	SaveJurisdictionScore(ctx context.Context, js *JurisdictionScore) error
	ListJurisdictionScores(ctx context.Context) ([]*JurisdictionScore, error)

	// Transaction risk rules (CEL expressions)
	SaveRiskRule(ctx context.Context, rule *RiskRuleConfig) error
	ListRiskRules(ctx context.Context) ([]*RiskRuleConfig, error)

	// Monitored address registry. Save and Update commit the row and its
	// audit change records in one transaction.
	SaveMonitoredAddress(ctx context.Context, organizationID string, addr *MonitoredAddress, change *MonitoredAddressChange) error
	GetMonitoredAddress(ctx context.Context, organizationID string, id string) (*MonitoredAddress, error)
	GetMonitoredAddressByAddress(ctx context.Context, organizationID string, address string) (*MonitoredAddress, error)
	ListMonitoredAddresses(ctx context.Context, organizationID string, activeOnly bool) ([]*MonitoredAddress, error)
	UpdateMonitoredAddress(ctx context.Context, organizationID string, addr *MonitoredAddress, changes []*MonitoredAddressChange) error
	GetAddressChanges(ctx context.Context, organizationID string, monitoredAddressID string) ([]*MonitoredAddressChange, error)

	// Compliance cases. Create and Update commit the row and the status
	// history entry in one transaction (log-then-commit).
	CreateComplianceTransaction(ctx context.Context, organizationID string, c *ComplianceTransaction) error
	GetComplianceTransaction(ctx context.Context, organizationID string, id string) (*ComplianceTransaction, error)
	GetComplianceTransactionByTxID(ctx context.Context, organizationID string, txID string, monitoredAddressID string) (*ComplianceTransaction, error)
	ListComplianceTransactions(ctx context.Context, organizationID string, status CaseStatus) ([]*ComplianceTransaction, error)
	UpdateComplianceTransaction(ctx context.Context, organizationID string, c *ComplianceTransaction, entry *StatusChange) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
