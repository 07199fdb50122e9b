package domain

import "time"

// MonitoredAddress is one entry of an organization's watch list.
// (Address, OrganizationID) is unique. Addresses are soft-disabled via
// IsActive, never hard-deleted once history exists.
type MonitoredAddress struct {
	ID             string    `json:"id"`
	Address        string    `json:"address"`
	Blockchain     string    `json:"blockchain"`
	ClientID       string    `json:"clientId,omitempty"`
	OrganizationID string    `json:"organizationId"`
	Notes          string    `json:"notes,omitempty"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// ChangeType classifies a monitored-address mutation.
type ChangeType string

const (
	ChangeCreate       ChangeType = "create"
	ChangeUpdate       ChangeType = "update"
	ChangeDelete       ChangeType = "delete"
	ChangeStatusChange ChangeType = "status_change"
)

// MonitoredAddressChange is one append-only audit record. Write-once.
type MonitoredAddressChange struct {
	ID                 string     `json:"id"`
	MonitoredAddressID string     `json:"monitoredAddressId"`
	OrganizationID     string     `json:"organizationId"`
	ChangeType         ChangeType `json:"changeType"`
	FieldName          string     `json:"fieldName,omitempty"`
	OldValue           string     `json:"oldValue,omitempty"`
	NewValue           string     `json:"newValue,omitempty"`
	ChangedByID        string     `json:"changedById"`
	Timestamp          time.Time  `json:"timestamp"`
}

// AddressRowResult is the per-row outcome of a bulk upload.
type AddressRowResult struct {
	Index     int    `json:"index"`
	Address   string `json:"address"`
	Succeeded bool   `json:"succeeded"`
	ID        string `json:"id,omitempty"`
	Error     string `json:"error,omitempty"`
}
