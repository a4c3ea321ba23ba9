package memory

import (
	"context"
	"math"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"deckview/internal/metrics"
)

// Config holds memory management configuration
type Config struct {
	// LimitBytes is the soft limit; 0 uses GOMEMLIMIT, and no limit disables the monitor
	LimitBytes int64
	// HighWaterMark is the usage ratio below which a pause is lifted
	HighWaterMark float64
	// CriticalWaterMark is the usage ratio at which rendering pauses
	CriticalWaterMark float64
	CheckInterval     time.Duration
}

// DefaultConfig returns the monitor defaults.
func DefaultConfig() Config {
	return Config{
		HighWaterMark:     0.7,
		CriticalWaterMark: 0.85,
		CheckInterval:     5 * time.Second,
	}
}

// Monitor tracks heap usage and signals when rendering should wait.
type Monitor struct {
	config Config
	limit  int64
	sample func() uint64

	mu       sync.RWMutex
	current  uint64
	paused   bool
	resumeCh chan struct{}

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewMonitor creates a monitor. Without any limit it never pauses.
func NewMonitor(config Config) *Monitor {
	limit := config.LimitBytes
	if limit == 0 {
		if l := debug.SetMemoryLimit(-1); l > 0 && l < math.MaxInt64 {
			limit = l
		}
	}
	if limit == 0 {
		log.Debug("No memory limit configured, render backpressure disabled")
	} else {
		log.Info("Memory monitor limit: %s", FormatBytes(limit))
	}

	return &Monitor{
		config:   config,
		limit:    limit,
		sample:   heapAlloc,
		resumeCh: make(chan struct{}),
		stopCh:   make(chan struct{}),
	}
}

func heapAlloc() uint64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return stats.Alloc
}

// Start begins periodic sampling.
func (m *Monitor) Start() {
	if m.limit == 0 {
		return
	}
	go m.loop()
}

// Stop ends sampling and releases any waiters. Safe to call more than once.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Monitor) loop() {
	ticker := time.NewTicker(m.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.check()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Monitor) check() {
	alloc := m.sample()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.current = alloc
	if m.limit <= 0 {
		return
	}

	usage := float64(alloc) / float64(m.limit)
	metrics.MemoryUsageRatio.Set(usage)

	switch {
	case usage >= m.config.CriticalWaterMark && !m.paused:
		log.Warn("Memory critical (%.1f%% of limit), pausing thumbnail rendering", usage*100)
		m.paused = true
		metrics.MemoryPaused.Set(1)
		metrics.MemoryGCPauses.Inc()
		go runtime.GC()
	case usage < m.config.HighWaterMark && m.paused:
		log.Info("Memory recovered (%.1f%% of limit), resuming thumbnail rendering", usage*100)
		m.paused = false
		metrics.MemoryPaused.Set(0)
		close(m.resumeCh)
		m.resumeCh = make(chan struct{})
	}
}

// WaitIfPaused blocks while memory is critical. It returns early with the
// context's error, and returns nil once the monitor is stopped.
func (m *Monitor) WaitIfPaused(ctx context.Context) error {
	m.mu.RLock()
	paused, resume := m.paused, m.resumeCh
	m.mu.RUnlock()
	if !paused {
		return nil
	}

	select {
	case <-resume:
		return nil
	case <-m.stopCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsPaused reports whether rendering should wait.
func (m *Monitor) IsPaused() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paused
}

// Stats returns the last sampled allocation, the limit, and their ratio.
func (m *Monitor) Stats() (current, limit int64, usage float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	current = math.MaxInt64
	if m.current <= math.MaxInt64 {
		current = int64(m.current)
	}
	if m.limit > 0 {
		usage = float64(m.current) / float64(m.limit)
	}
	return current, m.limit, usage
}
