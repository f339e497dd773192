package models

import "time"

// Severity tiers map from tenant-configured score thresholds.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// FindingCategory classifies a scored observation.
type FindingCategory string

const (
	CategoryAnomaly            FindingCategory = "anomaly"
	CategoryExposedService     FindingCategory = "exposed_service"
	CategoryKnownVulnerability FindingCategory = "known_vulnerability"
	CategoryIdentityConflict   FindingCategory = "device_identity_conflict"
)

// Finding is a scored observation produced by the scorer and consumed by the
// alert deduplicator. Findings are ephemeral; persistence is an external
// collaborator's job.
type Finding struct {
	TenantID  string            `json:"tenant_id"`
	DeviceID  string            `json:"device_id"`
	Category  FindingCategory   `json:"category"`
	Score     float64           `json:"score"`
	Severity  Severity          `json:"severity"`
	Timestamp time.Time         `json:"timestamp"`
	Evidence  map[string]string `json:"evidence,omitempty"`
}

// Alert is a Finding that cleared the deduplication window.
type Alert struct {
	AlertID       string            `json:"alert_id"`
	TenantID      string            `json:"tenant_id"`
	DeviceID      string            `json:"device_id"`
	Category      FindingCategory   `json:"category"`
	Severity      Severity          `json:"severity"`
	Score         float64           `json:"score"`
	SuppressKey   uint64            `json:"suppress_key"`
	EvidenceCount int               `json:"evidence_count"`
	FirstSeen     time.Time         `json:"first_seen"`
	LastSeen      time.Time         `json:"last_seen"`
	DispatchedAt  time.Time         `json:"dispatched_at,omitempty"`
	Evidence      map[string]string `json:"evidence,omitempty"`
}

// ServiceFingerprint identifies a discovered service for vulnerability
// correlation.
type ServiceFingerprint struct {
	Port   int    `json:"port"`
	Banner string `json:"banner,omitempty"`
}

// VulnAdvisory is the best-effort answer from the external vulnerability
// lookup.
type VulnAdvisory struct {
	Severity    Severity `json:"severity"`
	AdvisoryIDs []string `json:"advisory_ids,omitempty"`
}

// SeverityRank orders severities for threshold comparisons.
func SeverityRank(s Severity) int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}
