package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when no ledger row matches.
var ErrNotFound = errors.New("artifact not found")

const artifactColumns = `fingerprint, kind, type, source_path, payload_path, size, status, reason, created_at, last_access`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanArtifact(row rowScanner) (*ArtifactRecord, error) {
	var rec ArtifactRecord
	var createdAt, lastAccess int64
	err := row.Scan(&rec.Fingerprint, &rec.Kind, &rec.Type, &rec.SourcePath, &rec.PayloadPath,
		&rec.Size, &rec.Status, &rec.Reason, &createdAt, &lastAccess)
	if err != nil {
		return nil, err
	}
	rec.CreatedAt = time.Unix(0, createdAt)
	rec.LastAccess = time.Unix(0, lastAccess)
	return &rec, nil
}

// PutArtifact inserts or replaces the row for (Fingerprint, Kind).
func (d *Database) PutArtifact(ctx context.Context, rec *ArtifactRecord) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("put_artifact", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
	INSERT INTO artifacts (`+artifactColumns+`)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(fingerprint, kind) DO UPDATE SET
		type = excluded.type,
		source_path = excluded.source_path,
		payload_path = excluded.payload_path,
		size = excluded.size,
		status = excluded.status,
		reason = excluded.reason,
		created_at = excluded.created_at,
		last_access = excluded.last_access
	`,
		rec.Fingerprint, rec.Kind, rec.Type, rec.SourcePath, rec.PayloadPath,
		rec.Size, rec.Status, rec.Reason, rec.CreatedAt.UnixNano(), rec.LastAccess.UnixNano(),
	)
	return err
}

// GetArtifact returns the row for (fingerprint, kind) or ErrNotFound.
func (d *Database) GetArtifact(ctx context.Context, fingerprint, kind string) (*ArtifactRecord, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_artifact", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := d.db.QueryRowContext(ctx,
		`SELECT `+artifactColumns+` FROM artifacts WHERE fingerprint = ? AND kind = ?`,
		fingerprint, kind)

	rec, err := scanArtifact(row)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return nil, ErrNotFound
	}
	return rec, err
}

// TouchArtifact updates last_access for LRU bookkeeping.
func (d *Database) TouchArtifact(ctx context.Context, fingerprint, kind string, at time.Time) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("touch_artifact", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx,
		`UPDATE artifacts SET last_access = ? WHERE fingerprint = ? AND kind = ?`,
		at.UnixNano(), fingerprint, kind)
	return err
}

// DeleteArtifact removes one row. Deleting a missing row is not an error.
func (d *Database) DeleteArtifact(ctx context.Context, fingerprint, kind string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_artifact", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx,
		`DELETE FROM artifacts WHERE fingerprint = ? AND kind = ?`, fingerprint, kind)
	return err
}

// DeleteFingerprint removes every row for a fingerprint and returns how many
// were removed.
func (d *Database) DeleteFingerprint(ctx context.Context, fingerprint string) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("delete_fingerprint", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := d.db.ExecContext(ctx, `DELETE FROM artifacts WHERE fingerprint = ?`, fingerprint)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// ListFingerprints returns every fingerprint that has at least one row.
func (d *Database) ListFingerprints(ctx context.Context) ([]string, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_artifacts", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `SELECT DISTINCT fingerprint FROM artifacts ORDER BY fingerprint`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fingerprints []string
	for rows.Next() {
		var fp string
		if err = rows.Scan(&fp); err != nil {
			return nil, err
		}
		fingerprints = append(fingerprints, fp)
	}
	err = rows.Err()
	return fingerprints, err
}

// LRUCandidates returns up to limit ready artifacts, least recently used first.
func (d *Database) LRUCandidates(ctx context.Context, limit int) ([]ArtifactRecord, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("lru_candidates", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT `+artifactColumns+` FROM artifacts
		WHERE status = ?
		ORDER BY last_access ASC, fingerprint ASC, kind ASC
		LIMIT ?`, StatusReady, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ArtifactRecord
	for rows.Next() {
		var rec *ArtifactRecord
		rec, err = scanArtifact(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	err = rows.Err()
	return records, err
}

// ArtifactStats returns count and total bytes of ready artifacts per type.
func (d *Database) ArtifactStats(ctx context.Context) (map[string]TypeStats, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("artifact_stats", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT type, COUNT(*), COALESCE(SUM(size), 0) FROM artifacts
		WHERE status = ?
		GROUP BY type`, StatusReady)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[string]TypeStats)
	for rows.Next() {
		var typ string
		var s TypeStats
		if err = rows.Scan(&typ, &s.Count, &s.Bytes); err != nil {
			return nil, err
		}
		stats[typ] = s
	}
	err = rows.Err()
	return stats, err
}

// TotalReadySize returns the summed size of all ready artifacts.
func (d *Database) TotalReadySize(ctx context.Context) (int64, error) {
	stats, err := d.ArtifactStats(ctx)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, s := range stats {
		total += s.Bytes
	}
	return total, nil
}
