package memory

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestMonitor(limit int64, alloc *uint64) *Monitor {
	cfg := DefaultConfig()
	cfg.LimitBytes = limit
	m := NewMonitor(cfg)
	m.sample = func() uint64 { return *alloc }
	return m
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.HighWaterMark >= cfg.CriticalWaterMark {
		t.Errorf("high mark %.2f must be below critical %.2f", cfg.HighWaterMark, cfg.CriticalWaterMark)
	}
	if cfg.CheckInterval <= 0 {
		t.Errorf("CheckInterval = %v", cfg.CheckInterval)
	}
}

func TestMonitorPauseAndResume(t *testing.T) {
	alloc := uint64(10)
	m := newTestMonitor(100, &alloc)
	defer m.Stop()

	m.check()
	if m.IsPaused() {
		t.Fatal("10% usage must not pause")
	}

	alloc = 90
	m.check()
	if !m.IsPaused() {
		t.Fatal("90% usage should pause")
	}

	done := make(chan error, 1)
	go func() { done <- m.WaitIfPaused(context.Background()) }()

	select {
	case <-done:
		t.Fatal("WaitIfPaused returned while paused")
	case <-time.After(20 * time.Millisecond):
	}

	// Between the marks the pause holds.
	alloc = 80
	m.check()
	if !m.IsPaused() {
		t.Fatal("pause should hold above the high water mark")
	}

	alloc = 50
	m.check()
	if m.IsPaused() {
		t.Fatal("50% usage should resume")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WaitIfPaused = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("waiter was not released")
	}
}

func TestWaitIfPausedContext(t *testing.T) {
	alloc := uint64(95)
	m := newTestMonitor(100, &alloc)
	defer m.Stop()
	m.check()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := m.WaitIfPaused(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("WaitIfPaused = %v, want deadline exceeded", err)
	}
}

func TestWaitIfPausedAfterStop(t *testing.T) {
	alloc := uint64(95)
	m := newTestMonitor(100, &alloc)
	m.check()

	m.Stop()
	m.Stop()

	if err := m.WaitIfPaused(context.Background()); err != nil {
		t.Errorf("WaitIfPaused after Stop = %v", err)
	}
}

func TestMonitorStats(t *testing.T) {
	alloc := uint64(25)
	m := newTestMonitor(100, &alloc)
	defer m.Stop()
	m.check()

	current, limit, usage := m.Stats()
	if current != 25 || limit != 100 || usage != 0.25 {
		t.Errorf("Stats() = %d, %d, %v", current, limit, usage)
	}
}

func TestMonitorStartStop(t *testing.T) {
	alloc := uint64(1)
	cfg := DefaultConfig()
	cfg.LimitBytes = 1 << 30
	cfg.CheckInterval = 5 * time.Millisecond
	m := NewMonitor(cfg)
	m.sample = func() uint64 { return alloc }

	m.Start()
	time.Sleep(20 * time.Millisecond)
	m.Stop()

	if m.IsPaused() {
		t.Error("tiny allocation should not pause")
	}
}
