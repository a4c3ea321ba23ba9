package database

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"
)

// Metadata keys.
const (
	lastSweepKey    = "last_sweep"
	lastEvictionKey = "last_eviction"
)

// GetMetadata reads a metadata value. It returns sql.ErrNoRows for a
// missing key.
func (d *Database) GetMetadata(ctx context.Context, key string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var value string
	if err := d.db.QueryRowContext(ctx, "SELECT value FROM metadata WHERE key = ?", key).Scan(&value); err != nil {
		return "", err
	}
	return value, nil
}

// SetMetadata stores a metadata value, replacing any previous one.
func (d *Database) SetMetadata(ctx context.Context, key, value string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err := d.db.ExecContext(ctx,
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	return err
}

// getTime reads a timestamp stored as Unix nanoseconds. A missing key is
// the zero time.
func (d *Database) getTime(ctx context.Context, key string) (time.Time, error) {
	value, err := d.GetMetadata(ctx, key)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return time.Time{}, nil
	case err != nil:
		return time.Time{}, err
	}

	nanos, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, nanos), nil
}

func (d *Database) setTime(ctx context.Context, key string, t time.Time) error {
	return d.SetMetadata(ctx, key, strconv.FormatInt(t.UnixNano(), 10))
}

// GetLastSweep returns when orphaned artifacts were last removed.
func (d *Database) GetLastSweep(ctx context.Context) (time.Time, error) {
	return d.getTime(ctx, lastSweepKey)
}

// SetLastSweep records the time of the most recent sweep.
func (d *Database) SetLastSweep(ctx context.Context, t time.Time) error {
	return d.setTime(ctx, lastSweepKey, t)
}

// GetLastEviction returns when the size limit last evicted something.
func (d *Database) GetLastEviction(ctx context.Context) (time.Time, error) {
	return d.getTime(ctx, lastEvictionKey)
}

// SetLastEviction records the time of the most recent eviction.
func (d *Database) SetLastEviction(ctx context.Context, t time.Time) error {
	return d.setTime(ctx, lastEvictionKey, t)
}
