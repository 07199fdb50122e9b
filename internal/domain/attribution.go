// Package domain defines the core interfaces and types for Harrier.
package domain

import (
	"time"
)

// AttributionRecord maps an address to an entity according to one source.
// Multiple records may exist per address; the resolver picks a single winner.
// Records are immutable once ingested.
type AttributionRecord struct {
	ID              string    `json:"id"`
	Address         string    `json:"address"`
	EntityID        string    `json:"entityId"`
	EntityType      string    `json:"entityType"`
	BeneficialOwner string    `json:"beneficialOwner,omitempty"`
	Custodian       string    `json:"custodian,omitempty"`
	RuleType        string    `json:"ruleType,omitempty"`
	RuleAddress     string    `json:"ruleAddress,omitempty"`
	Priority        int       `json:"priority"`
	Source          string    `json:"source"`
	ObservedDate    time.Time `json:"observedDate"`

	// PriorityRank is the cross-source rank; lower wins.
	PriorityRank int `json:"priorityRank"`

	// Countries associated with the attributed entity (jurisdiction signals).
	Countries []string `json:"countries,omitempty"`
}

// ResolvedAttribution is the single authoritative assignment for an address.
type ResolvedAttribution struct {
	Address         string   `json:"address"`
	Attributed      bool     `json:"attributed"`
	EntityID        string   `json:"entityId,omitempty"`
	EntityType      string   `json:"entityType,omitempty"`
	BeneficialOwner string   `json:"beneficialOwner,omitempty"`
	Custodian       string   `json:"custodian,omitempty"`
	Source          string   `json:"source,omitempty"`
	Countries       []string `json:"countries,omitempty"`
}

// Unattributed returns the resolution for an address with no records.
func Unattributed(address string) *ResolvedAttribution {
	return &ResolvedAttribution{Address: address, Attributed: false}
}
