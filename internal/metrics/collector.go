package metrics

import (
	"os"
	"time"

	"deckview/internal/logging"
)

// StatsProvider supplies library and cache totals to the collector.
type StatsProvider interface {
	GetStats() Stats
}

// StatsFunc adapts a function to StatsProvider.
type StatsFunc func() Stats

// GetStats implements StatsProvider.
func (f StatsFunc) GetStats() Stats {
	return f()
}

// Stats holds the current library and cache statistics
type Stats struct {
	FilesByKind    map[string]int
	TotalFolders   int
	CacheEntries   map[string]int
	CacheSizeBytes map[string]int64
}

// Collector periodically refreshes gauges that are cheaper to sample than
// to maintain incrementally.
type Collector struct {
	statsProvider StatsProvider
	dbPath        string
	interval      time.Duration
	stopChan      chan struct{}
}

// NewCollector creates a new metrics collector. dbPath may be empty, in which
// case database file sizes are not reported.
func NewCollector(provider StatsProvider, dbPath string, interval time.Duration) *Collector {
	return &Collector{
		statsProvider: provider,
		dbPath:        dbPath,
		interval:      interval,
		stopChan:      make(chan struct{}),
	}
}

// Start begins the metrics collection loop
func (c *Collector) Start() {
	go c.collectLoop()
}

// Stop stops the metrics collection
func (c *Collector) Stop() {
	close(c.stopChan)
}

func (c *Collector) collectLoop() {
	c.collect()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.collect()
		case <-c.stopChan:
			return
		}
	}
}

func (c *Collector) collect() {
	c.collectDBSize()

	if c.statsProvider == nil {
		return
	}

	stats := c.statsProvider.GetStats()

	totalFiles := 0
	for kind, n := range stats.FilesByKind {
		LibraryFilesTotal.WithLabelValues(kind).Set(float64(n))
		totalFiles += n
	}
	LibraryFoldersTotal.Set(float64(stats.TotalFolders))

	for kind, n := range stats.CacheEntries {
		CacheEntries.WithLabelValues(kind).Set(float64(n))
	}
	var cacheBytes int64
	for kind, n := range stats.CacheSizeBytes {
		CacheSizeBytes.WithLabelValues(kind).Set(float64(n))
		cacheBytes += n
	}

	logging.Debug("Metrics collected: files=%d, folders=%d, cache=%d bytes",
		totalFiles, stats.TotalFolders, cacheBytes)
}

func (c *Collector) collectDBSize() {
	if c.dbPath == "" {
		return
	}

	files := map[string]string{
		"main": c.dbPath,
		"wal":  c.dbPath + "-wal",
		"shm":  c.dbPath + "-shm",
	}

	for label, path := range files {
		info, err := os.Stat(path)
		if err != nil {
			DBSizeBytes.WithLabelValues(label).Set(0)
			continue
		}
		DBSizeBytes.WithLabelValues(label).Set(float64(info.Size()))
	}
}
