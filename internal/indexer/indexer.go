package indexer

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/sync/singleflight"

	"deckview/internal/artifacts"
	"deckview/internal/doctypes"
	"deckview/internal/filesystem"
	"deckview/internal/fingerprint"
	"deckview/internal/logging"
	"deckview/internal/metrics"
)

// Scan triggers, used as metric labels.
const (
	TriggerStartup  = "startup"
	TriggerWatcher  = "watcher"
	TriggerPeriodic = "periodic"
	TriggerManual   = "manual"
)

// ErrRootUnavailable is returned when the library root cannot be read.
var ErrRootUnavailable = errors.New("library root unavailable")

// Config configures an Indexer.
type Config struct {
	Root string
	// Interval between safety-net rescans (0 disables them).
	Interval time.Duration
	// MaxCacheBytes is enforced on the artifact cache after each scan (0 = unlimited).
	MaxCacheBytes int64
	Walker        ParallelWalkerConfig
}

// ScanResult describes one completed scan.
type ScanResult struct {
	Tree      *TreeNode
	Files     int
	Folders   int
	Errors    int64
	Duration  time.Duration
	Signature string
	// Changed is set when the signature differs from the previous scan.
	Changed bool
	Sweep   artifacts.SweepResult
	Evict   artifacts.EvictResult
}

// Stats summarizes the current index.
type Stats struct {
	TotalFiles   int                   `json:"totalFiles"`
	TotalFolders int                   `json:"totalFolders"`
	ByKind       map[doctypes.Kind]int `json:"byKind"`
	LastScan     time.Time             `json:"lastScan,omitempty"`
}

// HealthStatus contains health check information.
type HealthStatus struct {
	Ready            bool      `json:"ready"`
	Scanning         bool      `json:"scanning"`
	StartTime        time.Time `json:"startTime"`
	Uptime           string    `json:"uptime"`
	LastScan         time.Time `json:"lastScan,omitempty"`
	LastScanDuration string    `json:"lastScanDuration,omitempty"`
	LastError        string    `json:"lastError,omitempty"`
	Files            int       `json:"files"`
	Folders          int       `json:"folders"`
}

// Indexer maintains the in-memory library index.
type Indexer struct {
	root   string
	cfg    Config
	engine *fingerprint.Engine
	cache  *artifacts.Cache

	// scanMu is held across walk, swap and sweep so scans never overlap.
	scanMu sync.Mutex
	group  singleflight.Group

	mu           sync.RWMutex
	tree         *TreeNode
	files        []SourceFile
	byID         map[fingerprint.LogicalID]*SourceFile
	folders      int
	signature    string
	lastScan     time.Time
	lastDuration time.Duration
	lastErr      error
	scanned      bool

	scanning  atomic.Bool
	startTime time.Time

	onChange func()
	stopChan chan struct{}
	stopOnce sync.Once
	log      logging.Logger
}

// New creates an Indexer. cache may be nil, in which case scans do not
// sweep artifacts.
func New(engine *fingerprint.Engine, cache *artifacts.Cache, cfg Config) (*Indexer, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve library root: %w", err)
	}
	if cfg.Walker.NumWorkers <= 0 {
		cfg.Walker = DefaultParallelWalkerConfig()
	}

	return &Indexer{
		root:      root,
		cfg:       cfg,
		engine:    engine,
		cache:     cache,
		tree:      &TreeNode{Name: filepath.Base(root), Type: NodeDir},
		byID:      make(map[fingerprint.LogicalID]*SourceFile),
		startTime: time.Now(),
		stopChan:  make(chan struct{}),
		log:       logging.Component("indexer"),
	}, nil
}

// Root returns the absolute library root.
func (idx *Indexer) Root() string {
	return idx.root
}

// SetOnChange sets a callback invoked when a periodic rescan finds the tree
// changed. Watcher-triggered rescans notify on their own.
func (idx *Indexer) SetOnChange(fn func()) {
	idx.onChange = fn
}

// Start runs the initial scan in the background and then the periodic
// safety-net rescans.
func (idx *Indexer) Start() {
	go func() {
		idx.log.Info("Starting initial scan of %s", idx.root)
		if _, err := idx.Rescan(context.Background(), TriggerStartup); err != nil {
			idx.log.Error("Initial scan error: %v", err)
		}
		idx.periodicScan()
	}()
}

// Stop ends the periodic rescans.
func (idx *Indexer) Stop() {
	idx.stopOnce.Do(func() { close(idx.stopChan) })
}

func (idx *Indexer) periodicScan() {
	if idx.cfg.Interval <= 0 {
		return
	}

	ticker := time.NewTicker(idx.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			idx.log.Debug("Periodic rescan triggered")
			res, err := idx.Rescan(context.Background(), TriggerPeriodic)
			if err != nil {
				idx.log.Error("Periodic rescan failed: %v", err)
				continue
			}
			if res.Changed && idx.onChange != nil {
				idx.onChange()
			}
		case <-idx.stopChan:
			return
		}
	}
}

// Scan rescans the library on behalf of a caller.
func (idx *Indexer) Scan(ctx context.Context) (*ScanResult, error) {
	return idx.Rescan(ctx, TriggerManual)
}

// Rescan walks the library, swaps in the new index, then sweeps the artifact
// cache against it. Scans are strictly sequential. A caller arriving while a
// scan runs queues one follow-up scan, shared with every other caller that
// arrives before it starts.
func (idx *Indexer) Rescan(ctx context.Context, trigger string) (*ScanResult, error) {
	ch := idx.group.DoChan("scan", func() (any, error) {
		idx.scanMu.Lock()
		defer idx.scanMu.Unlock()
		// Later callers must not join a scan whose walk may already have
		// passed their change.
		idx.group.Forget("scan")
		return idx.scan(trigger)
	})

	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*ScanResult), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// scan does the work of Rescan; scanMu must be held. It runs on a
// background context so an impatient caller cannot leave a half-swept cache.
func (idx *Indexer) scan(trigger string) (*ScanResult, error) {
	ctx := context.Background()

	idx.scanning.Store(true)
	defer idx.scanning.Store(false)
	metrics.IndexerIsRunning.Set(1)
	defer metrics.IndexerIsRunning.Set(0)
	metrics.IndexerRunsTotal.WithLabelValues(trigger).Inc()

	start := time.Now()

	info, err := filesystem.StatWithRetry(idx.root, filesystem.DefaultRetryConfig())
	if err == nil && !info.IsDir() {
		err = errors.New("not a directory")
	}
	if err != nil {
		err = fmt.Errorf("%w: %s: %v", ErrRootUnavailable, idx.root, err)
		idx.recordError(err)
		return nil, err
	}

	walker := NewParallelWalker(idx.root, idx.engine, idx.cfg.Walker)
	files, err := walker.Walk(ctx)
	if err != nil {
		err = fmt.Errorf("walk %s: %w", idx.root, err)
		idx.recordError(err)
		return nil, err
	}
	_, walkErrors := walker.Stats()
	failed := walker.Failed()

	sortFiles(files)
	tree, folders := buildTree(filepath.Base(idx.root), files)
	signature := signatureOf(files)

	byID := make(map[fingerprint.LogicalID]*SourceFile, len(files))
	live := make([]artifacts.LiveSource, 0, len(files))
	for i := range files {
		byID[files[i].ID] = &files[i]
		live = append(live, artifacts.LiveSource{Path: files[i].AbsPath, Fingerprint: files[i].Fingerprint})
	}

	duration := time.Since(start)

	idx.mu.Lock()
	kept := idx.unreadable(failed)
	changed := idx.scanned && signature != idx.signature
	idx.tree = tree
	idx.files = files
	idx.byID = byID
	idx.folders = folders
	idx.signature = signature
	idx.lastScan = time.Now()
	idx.lastDuration = duration
	idx.lastErr = nil
	idx.scanned = true
	idx.mu.Unlock()

	result := &ScanResult{
		Tree:      tree,
		Files:     len(files),
		Folders:   folders,
		Errors:    walkErrors,
		Duration:  duration,
		Signature: signature,
		Changed:   changed,
	}

	if idx.cache != nil {
		// Entries that could not be read keep the fingerprints they had in
		// the previous index.
		if len(kept) > 0 {
			idx.log.Warn("Keeping artifacts of %d unreadable files", len(kept))
			live = append(live, kept...)
		}
		result.Sweep = idx.cache.Sweep(ctx, live)

		evict, err := idx.cache.EnforceLimit(ctx, idx.cfg.MaxCacheBytes)
		if err != nil {
			idx.log.Warn("Cache size enforcement failed: %v", err)
		}
		result.Evict = evict
	}

	metrics.IndexerLastRunTimestamp.Set(float64(time.Now().Unix()))
	metrics.IndexerLastRunDuration.Set(duration.Seconds())

	idx.log.Info("Scan complete (%s): %d files, %d folders in %v",
		trigger, len(files), folders, duration.Round(time.Millisecond))

	return result, nil
}

// unreadable returns the previously indexed files at or below the failed
// paths. idx.mu must be held.
func (idx *Indexer) unreadable(failed []string) []artifacts.LiveSource {
	if len(failed) == 0 {
		return nil
	}
	var kept []artifacts.LiveSource
	for i := range idx.files {
		f := &idx.files[i]
		for _, p := range failed {
			if f.AbsPath == p || strings.HasPrefix(f.AbsPath, p+string(filepath.Separator)) {
				kept = append(kept, artifacts.LiveSource{Path: f.AbsPath, Fingerprint: f.Fingerprint})
				break
			}
		}
	}
	return kept
}

func (idx *Indexer) recordError(err error) {
	metrics.IndexerErrors.Inc()
	idx.mu.Lock()
	idx.lastErr = err
	idx.mu.Unlock()
}

// signatureOf hashes the (path, fingerprint) pairs of sorted files.
func signatureOf(files []SourceFile) string {
	h := xxhash.New()
	for i := range files {
		_, _ = h.WriteString(files[i].RelPath)
		_, _ = h.WriteString("\x00")
		_, _ = h.WriteString(string(files[i].Fingerprint))
		_, _ = h.WriteString("\n")
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Tree returns the current library tree.
func (idx *Indexer) Tree() *TreeNode {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.tree
}

// File returns the file with the given logical id.
func (idx *Indexer) File(id fingerprint.LogicalID) (SourceFile, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	f, ok := idx.byID[id]
	if !ok {
		return SourceFile{}, false
	}
	return *f, true
}

// Files returns a copy of all files, ordered by relative path.
func (idx *Indexer) Files() []SourceFile {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]SourceFile, len(idx.files))
	copy(out, idx.files)
	return out
}

// Signature returns the signature of the current index.
func (idx *Indexer) Signature() string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.signature
}

// Stats returns counts of the current index.
func (idx *Indexer) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	byKind := make(map[doctypes.Kind]int)
	for i := range idx.files {
		byKind[idx.files[i].Kind]++
	}
	return Stats{
		TotalFiles:   len(idx.files),
		TotalFolders: idx.folders,
		ByKind:       byKind,
		LastScan:     idx.lastScan,
	}
}

// IsReady reports whether the first scan has completed.
func (idx *Indexer) IsReady() bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.scanned
}

// IsScanning reports whether a scan is running.
func (idx *Indexer) IsScanning() bool {
	return idx.scanning.Load()
}

// HealthStatus returns detailed health information.
func (idx *Indexer) HealthStatus() HealthStatus {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	status := HealthStatus{
		Ready:     idx.scanned,
		Scanning:  idx.scanning.Load(),
		StartTime: idx.startTime,
		Uptime:    time.Since(idx.startTime).Round(time.Second).String(),
		LastScan:  idx.lastScan,
		Files:     len(idx.files),
		Folders:   idx.folders,
	}
	if idx.lastDuration > 0 {
		status.LastScanDuration = idx.lastDuration.Round(time.Millisecond).String()
	}
	if idx.lastErr != nil {
		status.LastError = idx.lastErr.Error()
	}
	return status
}
