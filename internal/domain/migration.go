package domain

import "time"

// MigrationRecord is one proposed project-path correction, produced by a
// reconciler dry run. The evidence names the message the path was
// recovered from. Records are transient: consumed by apply, never stored.
type MigrationRecord struct {
	SessionID    string    `json:"session_id"`
	OldPath      string    `json:"old_path"`
	ProposedPath string    `json:"proposed_path"`
	EvidenceID   string    `json:"evidence_id"`
	EvidenceTime time.Time `json:"evidence_time"`
	Applied      bool      `json:"applied"`
}

// MigrationReport summarizes one reconciler run. Failures are collected
// per session; a single failed apply never aborts the batch.
type MigrationReport struct {
	Scanned  int               `json:"scanned"`
	Changed  int               `json:"changed"`
	Skipped  int               `json:"skipped"`
	Failed   int               `json:"failed"`
	Failures map[string]string `json:"failures,omitempty"`
}

// Ok reports whether every eligible session applied cleanly.
func (r MigrationReport) Ok() bool {
	return r.Failed == 0
}
