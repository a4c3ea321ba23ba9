package artifacts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"deckview/internal/database"
	"deckview/internal/filesystem"
	"deckview/internal/fingerprint"
	"deckview/internal/logging"
	"deckview/internal/metrics"
)

var (
	// ErrAlreadyInFlight is returned by Begin when a job for the key is pending.
	ErrAlreadyInFlight = errors.New("artifact already in flight")
	// ErrExists is returned by Begin when a ready entry, or a failed entry
	// still inside its grace period, already exists for the key.
	ErrExists = errors.New("artifact already resolved")
	// ErrNoEntry is returned by Await when nothing is pending or recorded.
	ErrNoEntry = errors.New("no artifact entry")
)

// DefaultFailureGrace is how long a failure is remembered.
const DefaultFailureGrace = 30 * time.Second

const stagingDirName = ".tmp"

// Options configures a Cache.
type Options struct {
	Root         string
	FailureGrace time.Duration
	// Now is the clock; time.Now when nil.
	Now func() time.Time
}

// Cache is the artifact cache.
type Cache struct {
	root    string
	staging string
	db      *database.Database
	grace   time.Duration
	now     func() time.Time
	log     logging.Logger

	// inflight maps Key to *pending.
	inflight sync.Map
}

type pending struct {
	entry  Entry
	done   chan struct{}
	result *Entry
}

// New creates the cache root and staging directory and clears temp files
// left behind by an interrupted run.
func New(db *database.Database, opts Options) (*Cache, error) {
	if opts.Root == "" {
		return nil, errors.New("artifacts: cache root is required")
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve cache root: %w", err)
	}
	if opts.FailureGrace <= 0 {
		opts.FailureGrace = DefaultFailureGrace
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	c := &Cache{
		root:    root,
		staging: filepath.Join(root, stagingDirName),
		db:      db,
		grace:   opts.FailureGrace,
		now:     opts.Now,
		log:     logging.Component("cache"),
	}

	if err := os.RemoveAll(c.staging); err != nil {
		c.log.Warn("Failed to clear staging directory %s: %v", c.staging, err)
	}
	if err := os.MkdirAll(c.staging, 0o755); err != nil {
		return nil, fmt.Errorf("create cache staging directory: %w", err)
	}

	return c, nil
}

// Root returns the absolute cache root.
func (c *Cache) Root() string {
	return c.root
}

// StagingDir returns a directory on the cache volume for job scratch space.
func (c *Cache) StagingDir() string {
	return c.staging
}

// FailureGrace returns the configured failure grace period.
func (c *Cache) FailureGrace() time.Duration {
	return c.grace
}

func (c *Cache) fingerprintDir(fp fingerprint.Fingerprint) string {
	s := string(fp)
	prefix := s
	if len(s) > 2 {
		prefix = s[:2]
	}
	return filepath.Join(c.root, prefix, s)
}

// PayloadPath returns where the payload for key is stored.
func (c *Cache) PayloadPath(key Key) string {
	return filepath.Join(c.fingerprintDir(key.Fingerprint), key.Kind.fileName())
}

// Lookup returns the current entry for key. A ready hit refreshes its
// last-access time. Ready rows whose payload vanished and failures past the
// grace period are reported as absent and dropped from the ledger.
func (c *Cache) Lookup(ctx context.Context, key Key) (*Entry, bool) {
	if v, ok := c.inflight.Load(key); ok {
		p := v.(*pending)
		e := p.entry
		metrics.CacheLookupsTotal.WithLabelValues(key.Kind.Type, "pending").Inc()
		return &e, true
	}

	entry, ok := c.lookupLedger(ctx, key)
	if !ok {
		metrics.CacheLookupsTotal.WithLabelValues(key.Kind.Type, "miss").Inc()
		return nil, false
	}

	switch entry.Status {
	case StatusReady:
		metrics.CacheLookupsTotal.WithLabelValues(key.Kind.Type, "hit").Inc()
		now := c.now()
		if err := c.db.TouchArtifact(ctx, string(key.Fingerprint), key.Kind.String(), now); err != nil {
			c.log.Debug("Failed to record access for %s: %v", key, err)
		} else {
			entry.LastAccess = now
		}
	case StatusFailed:
		metrics.CacheLookupsTotal.WithLabelValues(key.Kind.Type, "failed").Inc()
	}
	return entry, true
}

// lookupLedger reads the persisted entry, applying payload and grace checks.
func (c *Cache) lookupLedger(ctx context.Context, key Key) (*Entry, bool) {
	rec, err := c.db.GetArtifact(ctx, string(key.Fingerprint), key.Kind.String())
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			c.log.Warn("Ledger lookup failed for %s: %v", key, err)
		}
		return nil, false
	}

	entry := entryFromRecord(key, rec)

	switch entry.Status {
	case StatusReady:
		if _, err := os.Stat(entry.PayloadPath); err != nil {
			c.log.Warn("Payload missing for %s, dropping ledger row: %v", key, err)
			c.dropRow(ctx, key)
			return nil, false
		}
	case StatusFailed:
		if c.now().Sub(entry.CreatedAt) >= c.grace {
			c.dropRow(ctx, key)
			return nil, false
		}
	}
	return entry, true
}

func (c *Cache) dropRow(ctx context.Context, key Key) {
	if err := c.db.DeleteArtifact(ctx, string(key.Fingerprint), key.Kind.String()); err != nil {
		c.log.Warn("Failed to drop ledger row for %s: %v", key, err)
	}
}

func entryFromRecord(key Key, rec *database.ArtifactRecord) *Entry {
	status := StatusReady
	if rec.Status == database.StatusFailed {
		status = StatusFailed
	}
	return &Entry{
		Key:         key,
		SourcePath:  rec.SourcePath,
		PayloadPath: rec.PayloadPath,
		Size:        rec.Size,
		Status:      status,
		Reason:      rec.Reason,
		CreatedAt:   rec.CreatedAt,
		LastAccess:  rec.LastAccess,
	}
}

// Begin reserves a pending entry for key. It fails with ErrAlreadyInFlight if
// a job is pending and with ErrExists if the key is already resolved.
// The returned handle must be resolved with Commit or Fail.
func (c *Cache) Begin(ctx context.Context, key Key, sourcePath string) (*Handle, error) {
	now := c.now()
	p := &pending{
		entry: Entry{
			Key:        key,
			SourcePath: sourcePath,
			Status:     StatusPending,
			CreatedAt:  now,
			LastAccess: now,
		},
		done: make(chan struct{}),
	}

	if _, loaded := c.inflight.LoadOrStore(key, p); loaded {
		return nil, ErrAlreadyInFlight
	}

	// A job may have resolved between the caller's Lookup and the reservation.
	if existing, ok := c.lookupLedger(ctx, key); ok {
		p.result = existing
		c.inflight.Delete(key)
		close(p.done)
		return nil, ErrExists
	}

	return &Handle{cache: c, key: key, p: p}, nil
}

// Await blocks until the pending job for key resolves and returns its
// outcome. Without a pending job it returns the recorded entry, or
// ErrNoEntry. Cancelling ctx stops the wait, not the job.
func (c *Cache) Await(ctx context.Context, key Key) (*Entry, error) {
	v, ok := c.inflight.Load(key)
	if !ok {
		if entry, found := c.lookupLedger(ctx, key); found {
			return entry, nil
		}
		return nil, ErrNoEntry
	}

	p := v.(*pending)
	metrics.CacheJobsJoinedTotal.WithLabelValues(key.Kind.Type).Inc()

	select {
	case <-p.done:
		e := *p.result
		return &e, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// IsPending reports whether any job is pending for fp.
func (c *Cache) IsPending(fp fingerprint.Fingerprint) bool {
	found := false
	c.inflight.Range(func(k, _ any) bool {
		if k.(Key).Fingerprint == fp {
			found = true
			return false
		}
		return true
	})
	return found
}

// PendingCount returns the number of jobs in flight.
func (c *Cache) PendingCount() int {
	n := 0
	c.inflight.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Handle is the write side of a reservation.
type Handle struct {
	cache *Cache
	key   Key
	p     *pending
	once  sync.Once
}

// Key returns the reserved key.
func (h *Handle) Key() Key {
	return h.key
}

// Commit stores data as the payload and marks the entry ready.
func (h *Handle) Commit(ctx context.Context, data []byte) (*Entry, error) {
	c := h.cache
	dst := c.PayloadPath(h.key)
	if err := filesystem.WriteFileAtomic(c.staging, dst, data, 0o644); err != nil {
		return h.Fail(ctx, fmt.Sprintf("cache write failed: %v", err)), err
	}
	return h.commitPayload(ctx, dst, int64(len(data)))
}

// CommitFile moves a finished file into the cache and marks the entry ready.
func (h *Handle) CommitFile(ctx context.Context, path string) (*Entry, error) {
	c := h.cache
	dst := c.PayloadPath(h.key)
	info, err := os.Stat(path)
	if err != nil {
		return h.Fail(ctx, fmt.Sprintf("output missing: %v", err)), err
	}
	if err := filesystem.MoveFileAtomic(c.staging, path, dst, 0o644); err != nil {
		return h.Fail(ctx, fmt.Sprintf("cache write failed: %v", err)), err
	}
	return h.commitPayload(ctx, dst, info.Size())
}

func (h *Handle) commitPayload(ctx context.Context, dst string, size int64) (*Entry, error) {
	c := h.cache
	now := c.now()
	entry := Entry{
		Key:         h.key,
		SourcePath:  h.p.entry.SourcePath,
		PayloadPath: dst,
		Size:        size,
		Status:      StatusReady,
		CreatedAt:   now,
		LastAccess:  now,
	}

	if err := c.db.PutArtifact(ctx, recordFromEntry(&entry)); err != nil {
		c.log.Error("Failed to record %s in ledger: %v", h.key, err)
		// The payload is unreferenced; the next sweep or Begin replaces it.
		failed := entry
		failed.Status = StatusFailed
		failed.Reason = fmt.Sprintf("cache ledger write failed: %v", err)
		h.resolve(&failed)
		return &failed, err
	}

	c.log.Debug("Stored %s (%d bytes)", h.key, size)
	h.resolve(&entry)
	return &entry, nil
}

// Fail records a failure with a human-readable reason.
func (h *Handle) Fail(ctx context.Context, reason string) *Entry {
	c := h.cache
	now := c.now()
	entry := Entry{
		Key:        h.key,
		SourcePath: h.p.entry.SourcePath,
		Status:     StatusFailed,
		Reason:     reason,
		CreatedAt:  now,
		LastAccess: now,
	}

	if err := c.db.PutArtifact(ctx, recordFromEntry(&entry)); err != nil {
		c.log.Error("Failed to record failure of %s: %v", h.key, err)
	}

	c.log.Warn("Artifact %s failed: %s", h.key, reason)
	h.resolve(&entry)
	return &entry
}

// resolve publishes the outcome to waiters. The ledger is written before the
// pending entry disappears, so a concurrent Lookup never observes a gap.
func (h *Handle) resolve(entry *Entry) {
	h.once.Do(func() {
		h.p.result = entry
		h.cache.inflight.Delete(h.key)
		close(h.p.done)
	})
}

func recordFromEntry(e *Entry) *database.ArtifactRecord {
	status := database.StatusReady
	if e.Status == StatusFailed {
		status = database.StatusFailed
	}
	return &database.ArtifactRecord{
		Fingerprint: string(e.Key.Fingerprint),
		Kind:        e.Key.Kind.String(),
		Type:        e.Key.Kind.Type,
		SourcePath:  e.SourcePath,
		PayloadPath: e.PayloadPath,
		Size:        e.Size,
		Status:      status,
		Reason:      e.Reason,
		CreatedAt:   e.CreatedAt,
		LastAccess:  e.LastAccess,
	}
}
