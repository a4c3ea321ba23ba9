package watcher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"

	"deckview/internal/hub"
	"deckview/internal/indexer"
)

type fakeRescanner struct {
	calls atomic.Int32
	mu    sync.Mutex
	err   error
}

func (f *fakeRescanner) Rescan(_ context.Context, trigger string) (*indexer.ScanResult, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return &indexer.ScanResult{}, nil
}

func (f *fakeRescanner) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakePublisher struct {
	events atomic.Int32
}

func (f *fakePublisher) Publish(hub.Event) int {
	f.events.Add(1)
	return 1
}

func newTestWatcher(t *testing.T, root string, debounce time.Duration) (*Watcher, *fakeRescanner, *fakePublisher) {
	t.Helper()
	rescanner := &fakeRescanner{}
	publisher := &fakePublisher{}
	w, err := New(Config{Root: root, Debounce: debounce, MinInterval: time.Millisecond}, rescanner, publisher)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return w, rescanner, publisher
}

func run(t *testing.T, w *Watcher) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDebounceCoalescesBurst(t *testing.T) {
	w, rescanner, publisher := newTestWatcher(t, t.TempDir(), 100*time.Millisecond)
	run(t, w)

	for i := 0; i < 5; i++ {
		w.enqueue(Event{Kind: FileChanged, Path: "deck.pptx", Op: "write"})
		time.Sleep(10 * time.Millisecond)
	}

	waitFor(t, "rescan", func() bool { return rescanner.calls.Load() >= 1 })
	time.Sleep(300 * time.Millisecond)

	if got := rescanner.calls.Load(); got != 1 {
		t.Errorf("Expected exactly 1 rescan for a burst, got %d", got)
	}
	if got := publisher.events.Load(); got != 1 {
		t.Errorf("Expected 1 notification, got %d", got)
	}
}

func TestSeparateBurstsRescanSeparately(t *testing.T) {
	w, rescanner, _ := newTestWatcher(t, t.TempDir(), 30*time.Millisecond)
	run(t, w)

	w.enqueue(Event{Kind: FileChanged, Path: "a.pptx", Op: "write"})
	waitFor(t, "first rescan", func() bool { return rescanner.calls.Load() == 1 })

	w.enqueue(Event{Kind: FileChanged, Path: "b.pptx", Op: "create"})
	waitFor(t, "second rescan", func() bool { return rescanner.calls.Load() == 2 })
}

func TestFailedRescanDoesNotPublish(t *testing.T) {
	w, rescanner, publisher := newTestWatcher(t, t.TempDir(), 20*time.Millisecond)
	rescanner.setErr(errors.New("library root unavailable"))
	run(t, w)

	w.enqueue(Event{Kind: DirChanged, Path: "/library", Op: "remove"})
	waitFor(t, "failed rescan", func() bool { return rescanner.calls.Load() == 1 })
	time.Sleep(50 * time.Millisecond)

	if got := publisher.events.Load(); got != 0 {
		t.Errorf("Expected no notification after failure, got %d", got)
	}
	if !w.IsRunning() {
		t.Error("Expected watcher to keep running after a failed rescan")
	}

	rescanner.setErr(nil)
	w.enqueue(Event{Kind: FileChanged, Path: "a.pptx", Op: "create"})
	waitFor(t, "notification after recovery", func() bool { return publisher.events.Load() == 1 })
}

func TestClassify(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "talks"), 0o755); err != nil {
		t.Fatal(err)
	}
	w, _, _ := newTestWatcher(t, root, time.Second)
	defer w.fsw.Close()

	newDir := filepath.Join(root, "new", "nested")
	if err := os.MkdirAll(newDir, 0o755); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		event    fsnotify.Event
		relevant bool
		kind     EventKind
	}{
		{"Deck write", fsnotify.Event{Name: filepath.Join(root, "talks", "a.pptx"), Op: fsnotify.Write}, true, FileChanged},
		{"Markdown remove", fsnotify.Event{Name: filepath.Join(root, "notes.md"), Op: fsnotify.Remove}, true, FileChanged},
		{"Uppercase extension", fsnotify.Event{Name: filepath.Join(root, "REPORT.DOCX"), Op: fsnotify.Create}, true, FileChanged},
		{"Text file", fsnotify.Event{Name: filepath.Join(root, "notes.txt"), Op: fsnotify.Write}, false, 0},
		{"Chmod only", fsnotify.Event{Name: filepath.Join(root, "a.pptx"), Op: fsnotify.Chmod}, false, 0},
		{"Hidden file", fsnotify.Event{Name: filepath.Join(root, ".~lock.a.pptx"), Op: fsnotify.Create}, false, 0},
		{"Ignored dir", fsnotify.Event{Name: filepath.Join(root, "node_modules", "x.pdf"), Op: fsnotify.Create}, false, 0},
		{"Watched dir removed", fsnotify.Event{Name: filepath.Join(root, "talks"), Op: fsnotify.Remove}, true, DirChanged},
		{"New dir", fsnotify.Event{Name: filepath.Join(root, "new"), Op: fsnotify.Create}, true, DirChanged},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, relevant := w.classify(tt.event)
			if relevant != tt.relevant {
				t.Fatalf("relevant = %v, want %v", relevant, tt.relevant)
			}
			if relevant && e.Kind != tt.kind {
				t.Errorf("kind = %v, want %v", e.Kind, tt.kind)
			}
		})
	}

	w.dirMu.Lock()
	_, nestedWatched := w.dirs[newDir]
	_, talksWatched := w.dirs[filepath.Join(root, "talks")]
	w.dirMu.Unlock()
	if !nestedWatched {
		t.Error("Expected nested directory of a new tree to be watched")
	}
	if talksWatched {
		t.Error("Expected removed directory to be forgotten")
	}
}

func TestNewWatchesTree(t *testing.T) {
	root := t.TempDir()
	for _, d := range []string{"a/b", "c", ".git/objects", "node_modules/pkg"} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}

	w, _, _ := newTestWatcher(t, root, time.Second)
	defer w.fsw.Close()

	// root, a, a/b, c
	if got := w.WatchedCount(); got != 4 {
		t.Errorf("WatchedCount() = %d, want 4", got)
	}
}

func TestFilesystemChangeTriggersRescan(t *testing.T) {
	root := t.TempDir()
	w, rescanner, publisher := newTestWatcher(t, root, 50*time.Millisecond)
	run(t, w)

	if err := os.WriteFile(filepath.Join(root, "deck.pptx"), []byte("v1"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "rescan after write", func() bool { return rescanner.calls.Load() >= 1 })
	waitFor(t, "notification", func() bool { return publisher.events.Load() >= 1 })

	before := rescanner.calls.Load()
	if err := os.WriteFile(filepath.Join(root, "ignored.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(200 * time.Millisecond)
	if got := rescanner.calls.Load(); got != before {
		t.Errorf("Expected no rescan for an unsupported file, got %d more", got-before)
	}
}
