package indexer

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"deckview/internal/doctypes"
	"deckview/internal/fingerprint"
	"deckview/internal/logging"
	"deckview/internal/workers"
)

// ParallelWalkerConfig configures the parallel directory walker
type ParallelWalkerConfig struct {
	// NumWorkers is the number of fingerprinting workers (0 = workers.ForScan)
	NumWorkers int
	// ChannelBuffer is the size of the work channel buffer
	ChannelBuffer int
}

// DefaultParallelWalkerConfig returns defaults sized for NFS-backed libraries.
// INDEX_WORKERS overrides the worker count.
func DefaultParallelWalkerConfig() ParallelWalkerConfig {
	return ParallelWalkerConfig{
		NumWorkers:    workers.ForScan(8),
		ChannelBuffer: 1000,
	}
}

// fileJob represents a file to be fingerprinted
type fileJob struct {
	path    string
	relPath string
	kind    doctypes.Kind
	info    os.FileInfo
}

// ParallelWalker walks the library and fingerprints allowed files in parallel.
type ParallelWalker struct {
	config ParallelWalkerConfig
	root   string
	engine *fingerprint.Engine

	jobs    chan fileJob
	results chan SourceFile
	wg      sync.WaitGroup

	filesProcessed atomic.Int64
	errorsCount    atomic.Int64

	failMu sync.Mutex
	failed []string
}

// NewParallelWalker creates a walker over root.
func NewParallelWalker(root string, engine *fingerprint.Engine, config ParallelWalkerConfig) *ParallelWalker {
	if config.NumWorkers <= 0 {
		config.NumWorkers = workers.ForScan(8)
	}
	if config.ChannelBuffer <= 0 {
		config.ChannelBuffer = 1000
	}
	return &ParallelWalker{
		config:  config,
		root:    root,
		engine:  engine,
		jobs:    make(chan fileJob, config.ChannelBuffer),
		results: make(chan SourceFile, config.ChannelBuffer),
	}
}

// Walk returns every allowed file under the root, in no particular order.
// Unreadable entries are logged, counted and skipped. Walk stops early when
// ctx is cancelled and returns ctx.Err().
func (pw *ParallelWalker) Walk(ctx context.Context) ([]SourceFile, error) {
	logging.Debug("Starting parallel directory walk with %d workers", pw.config.NumWorkers)
	startTime := time.Now()

	for i := 0; i < pw.config.NumWorkers; i++ {
		pw.wg.Add(1)
		go pw.worker(ctx)
	}

	var files []SourceFile
	collected := make(chan struct{})
	go func() {
		defer close(collected)
		for f := range pw.results {
			files = append(files, f)
		}
	}()

	err := pw.walkAndEnqueue(ctx)

	close(pw.jobs)
	pw.wg.Wait()
	close(pw.results)
	<-collected

	logging.Debug("Parallel walk complete: %d files in %v (errors: %d)",
		pw.filesProcessed.Load(), time.Since(startTime), pw.errorsCount.Load())

	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return files, nil
}

// walkAndEnqueue walks the directory tree and sends jobs to workers
func (pw *ParallelWalker) walkAndEnqueue(ctx context.Context) error {
	err := filepath.WalkDir(pw.root, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return fs.SkipAll
		}

		if err != nil {
			// The root itself failing is reported by the caller's stat.
			logging.Warn("Error accessing path %s: %v", path, err)
			pw.fail(path)
			return nil
		}

		if path == pw.root {
			return nil
		}

		if d.IsDir() {
			if doctypes.SkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if doctypes.IsHidden(d.Name()) {
			return nil
		}

		kind := doctypes.KindForPath(d.Name())
		if kind == doctypes.KindUnsupported {
			return nil
		}

		// Symlinks are followed only when they point at a regular file.
		info, err := os.Stat(path)
		if err != nil {
			logging.Warn("Error getting info for %s: %v", path, err)
			pw.fail(path)
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		relPath, err := filepath.Rel(pw.root, path)
		if err != nil {
			pw.fail(path)
			return nil
		}

		select {
		case pw.jobs <- fileJob{path: path, relPath: filepath.ToSlash(relPath), kind: kind, info: info}:
		case <-ctx.Done():
			return fs.SkipAll
		}
		return nil
	})
	if err == fs.SkipAll {
		return nil
	}
	return err
}

// worker fingerprints files from the jobs channel
func (pw *ParallelWalker) worker(ctx context.Context) {
	defer pw.wg.Done()

	for job := range pw.jobs {
		if ctx.Err() != nil {
			continue
		}

		fp, err := pw.engine.FingerprintInfo(job.path, job.info)
		if err != nil {
			logging.Warn("Error fingerprinting %s: %v", job.path, err)
			pw.fail(job.path)
			continue
		}

		pw.filesProcessed.Add(1)
		pw.results <- SourceFile{
			ID:          fingerprint.IDFor(job.relPath),
			Name:        job.info.Name(),
			RelPath:     job.relPath,
			AbsPath:     job.path,
			Kind:        job.kind,
			Size:        job.info.Size(),
			ModTime:     job.info.ModTime(),
			Fingerprint: fp,
		}
	}
}

// fail counts an entry that could not be read and remembers its path.
func (pw *ParallelWalker) fail(path string) {
	pw.errorsCount.Add(1)
	pw.failMu.Lock()
	pw.failed = append(pw.failed, path)
	pw.failMu.Unlock()
}

// Failed returns the files and directories that could not be read during
// the last Walk. A directory entry stands for everything below it.
func (pw *ParallelWalker) Failed() []string {
	pw.failMu.Lock()
	defer pw.failMu.Unlock()
	return append([]string(nil), pw.failed...)
}

// Stats returns processing statistics
func (pw *ParallelWalker) Stats() (files, errors int64) {
	return pw.filesProcessed.Load(), pw.errorsCount.Load()
}
