package database

import "time"

// ArtifactStatus is the persisted state of an artifact.
type ArtifactStatus string

const (
	StatusReady  ArtifactStatus = "ready"
	StatusFailed ArtifactStatus = "failed"
)

// ArtifactRecord is one ledger row. (Fingerprint, Kind) is unique.
type ArtifactRecord struct {
	Fingerprint string
	// Kind is the artifact key within a fingerprint, e.g. "pdf" or "thumb-3-medium".
	Kind string
	// Type groups kinds for statistics: "pdf" or "thumbnail".
	Type        string
	SourcePath  string
	PayloadPath string
	Size        int64
	Status      ArtifactStatus
	Reason      string
	CreatedAt   time.Time
	LastAccess  time.Time
}

// TypeStats aggregates ready artifacts of one type.
type TypeStats struct {
	Count int   `json:"count"`
	Bytes int64 `json:"bytes"`
}
