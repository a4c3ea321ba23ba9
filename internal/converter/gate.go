package converter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/semaphore"

	"deckview/internal/artifacts"
	"deckview/internal/doctypes"
	"deckview/internal/fingerprint"
	"deckview/internal/logging"
	"deckview/internal/metrics"
)

// DefaultTimeout bounds a single conversion.
const DefaultTimeout = 120 * time.Second

// Converter converts sourcePath to PDF inside outDir and returns the path of
// the produced file. It must honor ctx cancellation.
type Converter interface {
	Convert(ctx context.Context, sourcePath, outDir string) (string, error)
}

// Source is the file a caller wants rendered.
type Source struct {
	Path string
	Kind doctypes.Kind
}

// Result of EnsurePDF.
type Result struct {
	PDFPath     string
	Fingerprint fingerprint.Fingerprint
	// Passthrough is set when the source already is a PDF.
	Passthrough bool
}

// Config tunes a Gate.
type Config struct {
	Timeout       time.Duration
	MaxConcurrent int
	// BreakerThreshold is the number of consecutive unavailable errors that
	// open the breaker.
	BreakerThreshold uint32
	// BreakerCooldown is how long the breaker stays open.
	BreakerCooldown time.Duration
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 1
	}
	if c.BreakerThreshold == 0 {
		c.BreakerThreshold = 3
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
	return c
}

// Gate deduplicates, bounds and records conversions.
type Gate struct {
	cache   *artifacts.Cache
	engine  *fingerprint.Engine
	conv    Converter
	cfg     Config
	sem     *semaphore.Weighted
	breaker *gobreaker.CircuitBreaker[string]
	log     logging.Logger
	jobs    sync.WaitGroup

	// ctx is the parent of every job; Cleanup cancels it.
	ctx  context.Context
	stop context.CancelFunc
}

// NewGate creates a Gate.
func NewGate(cache *artifacts.Cache, engine *fingerprint.Engine, conv Converter, cfg Config) *Gate {
	cfg = cfg.withDefaults()
	g := &Gate{
		cache:  cache,
		engine: engine,
		conv:   conv,
		cfg:    cfg,
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		log:    logging.Component("converter"),
	}
	g.ctx, g.stop = context.WithCancel(context.Background())

	g.breaker = gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "converter",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrConverterUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			g.log.Warn("Circuit breaker %s: %s -> %s", name, from, to)
			metrics.ConverterBreakerState.Set(float64(to))
		},
	})

	return g
}

// Timeout returns the configured conversion timeout.
func (g *Gate) Timeout() time.Duration {
	return g.cfg.Timeout
}

// BreakerState reports the circuit breaker state ("closed", "half-open", "open").
func (g *Gate) BreakerState() string {
	return g.breaker.State().String()
}

// EnsurePDF returns a PDF for src, converting it at most once per version.
func (g *Gate) EnsurePDF(ctx context.Context, src Source) (*Result, error) {
	if !src.Kind.Renderable() {
		return nil, fmt.Errorf("%w: %s files cannot be converted to PDF", ErrUnsupportedFormat, src.Kind)
	}

	fp, err := g.engine.Fingerprint(src.Path)
	if err != nil {
		return nil, err
	}

	if src.Kind == doctypes.KindPDF {
		return &Result{PDFPath: src.Path, Fingerprint: fp, Passthrough: true}, nil
	}

	key := artifacts.Key{Fingerprint: fp, Kind: artifacts.PDF()}

	// A resolved entry can disappear between Begin and Await (eviction,
	// grace expiry), so the protocol is retried a few times.
	for attempt := 0; attempt < 3; attempt++ {
		if entry, ok := g.cache.Lookup(ctx, key); ok && entry.Status != artifacts.StatusPending {
			return g.result(fp, entry)
		}

		h, err := g.cache.Begin(ctx, key, src.Path)
		switch {
		case err == nil:
			g.start(h, src)
		case errors.Is(err, artifacts.ErrAlreadyInFlight), errors.Is(err, artifacts.ErrExists):
		default:
			return nil, err
		}

		entry, err := g.cache.Await(ctx, key)
		if errors.Is(err, artifacts.ErrNoEntry) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return g.result(fp, entry)
	}

	return nil, &FailedError{Reason: "conversion result was not retained"}
}

// Conversion states reported by Peek.
const (
	StatePending    = "pending"
	StateProcessing = "processing"
	StateCompleted  = "completed"
	StateFailed     = "failed"
)

// State describes where a source stands without starting any work.
type State struct {
	Status string
	Reason string
	// Result is set when Status is StateCompleted.
	Result *Result
}

// Peek reports the conversion state of src. It never starts a conversion.
func (g *Gate) Peek(ctx context.Context, src Source) (State, error) {
	if !src.Kind.Renderable() {
		return State{}, fmt.Errorf("%w: %s files cannot be converted to PDF", ErrUnsupportedFormat, src.Kind)
	}

	fp, err := g.engine.Fingerprint(src.Path)
	if err != nil {
		return State{}, err
	}
	if src.Kind == doctypes.KindPDF {
		return State{Status: StateCompleted, Result: &Result{PDFPath: src.Path, Fingerprint: fp, Passthrough: true}}, nil
	}

	entry, ok := g.cache.Lookup(ctx, artifacts.Key{Fingerprint: fp, Kind: artifacts.PDF()})
	switch {
	case !ok:
		return State{Status: StatePending}, nil
	case entry.Status == artifacts.StatusPending:
		return State{Status: StateProcessing}, nil
	case entry.Status == artifacts.StatusFailed:
		return State{Status: StateFailed, Reason: entry.Reason}, nil
	default:
		return State{Status: StateCompleted, Result: &Result{PDFPath: entry.PayloadPath, Fingerprint: fp}}, nil
	}
}

func (g *Gate) result(fp fingerprint.Fingerprint, entry *artifacts.Entry) (*Result, error) {
	if entry.Status == artifacts.StatusFailed {
		return nil, &FailedError{Reason: entry.Reason}
	}
	return &Result{PDFPath: entry.PayloadPath, Fingerprint: fp}, nil
}

// start runs the conversion detached from any request.
func (g *Gate) start(h *artifacts.Handle, src Source) {
	g.jobs.Add(1)
	go func() {
		defer g.jobs.Done()
		g.run(h, src)
	}()
}

func (g *Gate) run(h *artifacts.Handle, src Source) {
	bg := context.Background()

	// Waiting for a slot does not count against the conversion timeout.
	if err := g.sem.Acquire(g.ctx, 1); err != nil {
		h.Fail(bg, shutdownReason)
		return
	}
	defer g.sem.Release(1)

	// Acquire can succeed after cancellation when a slot is free.
	if g.ctx.Err() != nil {
		h.Fail(bg, shutdownReason)
		return
	}

	metrics.ConversionsInProgress.Inc()
	defer metrics.ConversionsInProgress.Dec()

	workDir, err := os.MkdirTemp(g.cache.StagingDir(), "convert-")
	if err != nil {
		h.Fail(bg, fmt.Sprintf("cannot create work directory: %v", err))
		metrics.ConversionsTotal.WithLabelValues("failed").Inc()
		return
	}
	defer os.RemoveAll(workDir)

	ctx, cancel := context.WithTimeout(g.ctx, g.cfg.Timeout)
	defer cancel()

	start := time.Now()
	g.log.Info("Converting %s (%s)", src.Path, h.Key())

	out, err := g.breaker.Execute(func() (string, error) {
		return g.conv.Convert(ctx, src.Path, workDir)
	})
	metrics.ConversionDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		reason, status := g.describe(ctx, err)
		metrics.ConversionsTotal.WithLabelValues(status).Inc()
		h.Fail(bg, reason)
		return
	}

	if _, err := h.CommitFile(bg, out); err != nil {
		metrics.ConversionsTotal.WithLabelValues("failed").Inc()
		return
	}

	metrics.ConversionsTotal.WithLabelValues("success").Inc()
	g.log.Info("Converted %s in %v", src.Path, time.Since(start).Round(time.Millisecond))
}

// describe turns a converter error into a reason and a metrics status.
func (g *Gate) describe(ctx context.Context, err error) (reason, status string) {
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return ErrConverterUnavailable.Error(), "unavailable"
	case g.ctx.Err() != nil:
		return shutdownReason, "cancelled"
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "conversion timed out after " + formatSeconds(g.cfg.Timeout), "timeout"
	case errors.Is(err, ErrConverterUnavailable):
		return err.Error(), "unavailable"
	default:
		return err.Error(), "failed"
	}
}

func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64) + "s"
}

// Wait blocks until all detached jobs have finished.
func (g *Gate) Wait() {
	g.jobs.Wait()
}

// CheckInstalled reports the converter version when the converter supports it.
func (g *Gate) CheckInstalled(ctx context.Context) (string, error) {
	if c, ok := g.conv.(interface {
		CheckInstalled(context.Context) (string, error)
	}); ok {
		return c.CheckInstalled(ctx)
	}
	return "", nil
}

// shutdownReason is recorded for jobs cut short by Cleanup.
const shutdownReason = "conversion cancelled: server shutting down"

// Cleanup cancels queued and running jobs and kills converter processes
// when the converter supports it. The gate starts no new work afterwards.
func (g *Gate) Cleanup() {
	g.stop()
	if c, ok := g.conv.(interface{ Cleanup() }); ok {
		c.Cleanup()
	}
}
