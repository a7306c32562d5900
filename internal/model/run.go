package model

import "time"

// RunEnvelope identifies the run that produced a record.
type RunEnvelope struct {
	RunID           string    `json:"run_id"`
	SchemaVersion   int       `json:"schema_version"`
	Tag             string    `json:"tag,omitempty"`
	RunTimestampUTC time.Time `json:"run_timestamp_utc"`
	RulesHash       string    `json:"rules_hash,omitempty"`
}

// Redaction records which profile was applied to a record and which fields it masked.
type Redaction struct {
	Profile string   `json:"profile"`
	Fields  []string `json:"fields"`
}

// ProviderRecord is a scored, redacted provider ready to leave the engine.
type ProviderRecord struct {
	Provider
	Redaction Redaction   `json:"_redaction"`
	Run       RunEnvelope `json:"_run"`
}

// EvidenceRecord is a redacted evidence item stamped with its run.
type EvidenceRecord struct {
	EvidenceItem
	Redaction Redaction   `json:"_redaction"`
	Run       RunEnvelope `json:"_run"`
}

// RunSummary aggregates a run's outcome counts.
type RunSummary struct {
	Profile        string           `json:"profile"`
	ProviderCount  int              `json:"provider_count"`
	EvidenceCount  int              `json:"evidence_count"`
	OrphanEvidence int              `json:"orphan_evidence"`
	StatusCounts   map[Status]int   `json:"status_counts"`
	TierCounts     map[RiskTier]int `json:"tier_counts"`
}

// Run is the persisted metadata document for one engine run.
type Run struct {
	RunEnvelope
	Summary   RunSummary `json:"summary"`
	CreatedAt time.Time  `json:"created_at"`
}
