package domain

import "time"

// EntityTypeInfo is one entry of the entity-type risk catalog.
// Read-only reference data, keyed uniquely by EntityType.
type EntityTypeInfo struct {
	EntityType string    `json:"entityType"`
	Category   string    `json:"category"`
	RiskScore  float64   `json:"riskScore"` // 0-100
	RiskFlag   bool      `json:"riskFlag"`
	UpdatedAt  time.Time `json:"updatedAt,omitempty"`
}

// JurisdictionScore is the reference risk score for one country.
type JurisdictionScore struct {
	Country   string    `json:"country"`
	Score     float64   `json:"score"` // 0-100
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}
