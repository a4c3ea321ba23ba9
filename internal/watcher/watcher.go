package watcher

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"deckview/internal/doctypes"
	"deckview/internal/hub"
	"deckview/internal/indexer"
	"deckview/internal/logging"
	"deckview/internal/metrics"
)

// Defaults.
const (
	DefaultDebounce    = 500 * time.Millisecond
	DefaultMinInterval = time.Second
	DefaultQueueSize   = 256
)

// Rescanner rebuilds the library index.
type Rescanner interface {
	Rescan(ctx context.Context, trigger string) (*indexer.ScanResult, error)
}

// Publisher receives change notifications.
type Publisher interface {
	Publish(e hub.Event) int
}

// EventKind classifies a relevant filesystem change.
type EventKind int

const (
	// FileChanged is a create, write, remove or rename of an allowed document.
	FileChanged EventKind = iota
	// DirChanged is any event on a directory.
	DirChanged
)

// Event is a filtered filesystem change.
type Event struct {
	Kind EventKind
	Path string
	Op   string
}

// Config configures a Watcher.
type Config struct {
	Root        string
	Debounce    time.Duration
	MinInterval time.Duration
	QueueSize   int
}

// Watcher watches the library and triggers rescans.
type Watcher struct {
	root      string
	cfg       Config
	rescanner Rescanner
	publisher Publisher
	fsw       *fsnotify.Watcher
	events    chan Event
	limiter   *rate.Limiter
	log       logging.Logger

	dirMu sync.Mutex
	dirs  map[string]struct{}

	running atomic.Bool
	rescans atomic.Int64
}

// New creates a Watcher and registers every non-ignored directory under the
// root.
func New(cfg Config, rescanner Rescanner, publisher Publisher) (*Watcher, error) {
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, err
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		metrics.WatcherErrors.Inc()
		return nil, err
	}

	w := &Watcher{
		root:      root,
		cfg:       cfg,
		rescanner: rescanner,
		publisher: publisher,
		fsw:       fsw,
		events:    make(chan Event, cfg.QueueSize),
		limiter:   rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		log:       logging.Component("watcher"),
		dirs:      make(map[string]struct{}),
	}

	n := w.addTree(root)
	w.log.Info("Watching %d directories under %s", n, root)
	return w, nil
}

// addTree watches dir and every non-ignored directory below it.
func (w *Watcher) addTree(dir string) int {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			w.log.Warn("Error accessing %s: %v", path, err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != w.root && doctypes.SkipDir(d.Name()) {
			return filepath.SkipDir
		}
		if w.addDir(path) {
			count++
		}
		return nil
	})
	if err != nil {
		w.log.Error("Failed to walk %s for watcher: %v", dir, err)
		metrics.WatcherErrors.Inc()
	}
	return count
}

func (w *Watcher) addDir(path string) bool {
	w.dirMu.Lock()
	defer w.dirMu.Unlock()

	if _, ok := w.dirs[path]; ok {
		return false
	}
	if err := w.fsw.Add(path); err != nil {
		w.log.Warn("failed to add path to watcher %s: %v", path, err)
		metrics.WatcherErrors.Inc()
		return false
	}
	w.dirs[path] = struct{}{}
	metrics.WatchedDirectories.Set(float64(len(w.dirs)))
	return true
}

// forgetDir drops path and everything below it. fsnotify removes the
// watches itself when a directory disappears.
func (w *Watcher) forgetDir(path string) bool {
	w.dirMu.Lock()
	defer w.dirMu.Unlock()

	_, known := w.dirs[path]
	prefix := path + string(filepath.Separator)
	for d := range w.dirs {
		if d == path || strings.HasPrefix(d, prefix) {
			delete(w.dirs, d)
		}
	}
	metrics.WatchedDirectories.Set(float64(len(w.dirs)))
	return known
}

// WatchedCount returns the number of watched directories.
func (w *Watcher) WatchedCount() int {
	w.dirMu.Lock()
	defer w.dirMu.Unlock()
	return len(w.dirs)
}

// IsRunning reports whether Run is active.
func (w *Watcher) IsRunning() bool {
	return w.running.Load()
}

// Rescans returns the number of rescans triggered so far.
func (w *Watcher) Rescans() int64 {
	return w.rescans.Load()
}

// Run forwards filesystem events and dispatches rescans until ctx is done.
// It closes the underlying fsnotify watcher on return.
func (w *Watcher) Run(ctx context.Context) {
	w.running.Store(true)
	defer w.running.Store(false)
	defer func() {
		if err := w.fsw.Close(); err != nil {
			w.log.Error("failed to close file watcher: %v", err)
		}
	}()

	go w.forward(ctx)
	w.dispatch(ctx)
}

// forward filters fsnotify events into the bounded queue.
func (w *Watcher) forward(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if e, relevant := w.classify(ev); relevant {
				w.enqueue(e)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("Watcher error: %v", err)
			metrics.WatcherErrors.Inc()
		}
	}
}

// enqueue adds e to the queue. When the queue is full a rescan is already
// due, so the event is dropped.
func (w *Watcher) enqueue(e Event) {
	select {
	case w.events <- e:
	default:
		w.log.Debug("Event queue full, dropping %s %s", e.Op, e.Path)
	}
}

// classify decides whether ev concerns the library.
func (w *Watcher) classify(ev fsnotify.Event) (Event, bool) {
	if ev.Op == fsnotify.Chmod || ev.Op == 0 {
		return Event{}, false
	}
	if w.ignored(ev.Name) {
		return Event{}, false
	}

	op := opName(ev.Op)

	if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
		if w.forgetDir(ev.Name) {
			return Event{Kind: DirChanged, Path: ev.Name, Op: op}, true
		}
	} else if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
		if ev.Has(fsnotify.Create) {
			// A directory moved in or created with content needs all of
			// its subdirectories watched too.
			w.addTree(ev.Name)
		}
		return Event{Kind: DirChanged, Path: ev.Name, Op: op}, true
	}

	if !doctypes.IsAllowed(ev.Name) {
		return Event{}, false
	}
	return Event{Kind: FileChanged, Path: ev.Name, Op: op}, true
}

// ignored reports whether any component of path below the root is hidden
// or an ignored directory.
func (w *Watcher) ignored(path string) bool {
	rel, err := filepath.Rel(w.root, path)
	if err != nil || rel == "." {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if doctypes.SkipDir(part) {
			return true
		}
	}
	return false
}

func opName(op fsnotify.Op) string {
	switch {
	case op.Has(fsnotify.Create):
		return "create"
	case op.Has(fsnotify.Write):
		return "write"
	case op.Has(fsnotify.Remove):
		return "remove"
	case op.Has(fsnotify.Rename):
		return "rename"
	default:
		return "unknown"
	}
}

// dispatch is the single consumer of the queue.
func (w *Watcher) dispatch(ctx context.Context) {
	timer := time.NewTimer(w.cfg.Debounce)
	timer.Stop()
	defer timer.Stop()

	pending := false
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-w.events:
			metrics.WatcherEventsTotal.WithLabelValues(e.Op).Inc()
			w.log.Debug("Change: %s %s", e.Op, e.Path)
			timer.Reset(w.cfg.Debounce)
			pending = true
		case <-timer.C:
			if !pending {
				continue
			}
			pending = false
			w.trigger(ctx)
		}
	}
}

func (w *Watcher) trigger(ctx context.Context) {
	if err := w.limiter.Wait(ctx); err != nil {
		return
	}

	w.rescans.Add(1)
	if _, err := w.rescanner.Rescan(ctx, indexer.TriggerWatcher); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		w.log.Error("Rescan after filesystem change failed: %v", err)
		metrics.WatcherRescansTotal.WithLabelValues("error").Inc()
		return
	}

	metrics.WatcherRescansTotal.WithLabelValues("success").Inc()
	w.publisher.Publish(hub.TreeChanged())
}
