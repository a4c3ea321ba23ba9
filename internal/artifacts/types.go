package artifacts

import (
	"fmt"
	"time"

	"deckview/internal/fingerprint"
)

// Artifact types.
const (
	TypePDF       = "pdf"
	TypeThumbnail = "thumbnail"
)

// Kind identifies an artifact within a fingerprint.
type Kind struct {
	Type       string
	Page       int
	Resolution string
	Format     string
}

// PDF is the kind of the converted PDF rendition.
func PDF() Kind {
	return Kind{Type: TypePDF, Format: "pdf"}
}

// Thumbnail is the kind of one rendered page.
func Thumbnail(page int, resolution, format string) Kind {
	return Kind{Type: TypeThumbnail, Page: page, Resolution: resolution, Format: format}
}

// String returns the ledger name of the kind.
func (k Kind) String() string {
	if k.Type == TypeThumbnail {
		return fmt.Sprintf("thumb-%d-%s-%s", k.Page, k.Resolution, k.Format)
	}
	return k.Type
}

func (k Kind) fileName() string {
	return k.String() + "." + k.Format
}

// Key is the cache key.
type Key struct {
	Fingerprint fingerprint.Fingerprint
	Kind        Kind
}

func (k Key) String() string {
	return k.Fingerprint.Short() + "/" + k.Kind.String()
}

// Status of an entry.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Entry describes one artifact.
type Entry struct {
	Key         Key
	SourcePath  string
	PayloadPath string
	Size        int64
	Status      Status
	Reason      string
	CreatedAt   time.Time
	LastAccess  time.Time
}

// LiveSource is one (path, current fingerprint) pair of a scan.
type LiveSource struct {
	Path        string
	Fingerprint fingerprint.Fingerprint
}

// SweepResult summarizes a sweep.
type SweepResult struct {
	Removed int `json:"removed"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// EvictResult summarizes an EnforceLimit run.
type EvictResult struct {
	Evicted    int   `json:"evicted"`
	FreedBytes int64 `json:"freedBytes"`
	TotalBytes int64 `json:"totalBytes"`
}

// TypeStats aggregates ready artifacts of one type.
type TypeStats struct {
	Count int   `json:"count"`
	Bytes int64 `json:"bytes"`
}

// Stats describes the cache contents.
type Stats struct {
	Root         string               `json:"root"`
	ByType       map[string]TypeStats `json:"byType"`
	TotalCount   int                  `json:"totalCount"`
	TotalBytes   int64                `json:"totalBytes"`
	Pending      int                  `json:"pending"`
	LastSweep    time.Time            `json:"lastSweep,omitempty"`
	LastEviction time.Time            `json:"lastEviction,omitempty"`
}
