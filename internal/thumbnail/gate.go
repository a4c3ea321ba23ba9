package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"deckview/internal/artifacts"
	"deckview/internal/converter"
	"deckview/internal/fingerprint"
	"deckview/internal/logging"
	"deckview/internal/metrics"
)

// DefaultTimeout bounds a single page render.
const DefaultTimeout = 30 * time.Second

// maxPageCounts bounds the page count memo; it is reset when full.
const maxPageCounts = 1024

// Rasterizer renders one page of a PDF to an encoded image at least width
// pixels wide (larger output is scaled down).
type Rasterizer interface {
	RenderPage(ctx context.Context, pdfPath string, page, width int) ([]byte, error)
}

// PageCounter reports the number of pages of a PDF.
type PageCounter interface {
	PageCount(pdfPath string) (int, error)
}

// PDFSource yields the PDF rendition of a source file.
type PDFSource interface {
	EnsurePDF(ctx context.Context, src converter.Source) (*converter.Result, error)
}

// Backpressure holds render jobs back while memory is short.
type Backpressure interface {
	WaitIfPaused(ctx context.Context) error
}

// Result of EnsureThumbnail.
type Result struct {
	Path        string
	Fingerprint fingerprint.Fingerprint
	Page        int
	Resolution  Resolution
	ContentType string
}

// Config tunes a Gate.
type Config struct {
	Timeout       time.Duration
	Format        Format
	MaxConcurrent int
	// Backpressure is optional; a nil value never waits.
	Backpressure Backpressure
}

// Gate deduplicates and records page renders.
type Gate struct {
	pdfs       PDFSource
	cache      *artifacts.Cache
	rasterizer Rasterizer
	counter    PageCounter
	cfg        Config
	sem        *semaphore.Weighted
	log        logging.Logger
	jobs       sync.WaitGroup

	countMu sync.Mutex
	counts  map[fingerprint.Fingerprint]int

	// ctx is the parent of every job; Cleanup cancels it.
	ctx  context.Context
	stop context.CancelFunc
}

// NewGate creates a Gate.
func NewGate(pdfs PDFSource, cache *artifacts.Cache, rasterizer Rasterizer, counter PageCounter, cfg Config) *Gate {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Format == "" {
		cfg.Format = FormatPNG
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	if counter == nil {
		counter = PDFPageCounter{}
	}
	g := &Gate{
		pdfs:       pdfs,
		cache:      cache,
		rasterizer: rasterizer,
		counter:    counter,
		cfg:        cfg,
		sem:        semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		log:        logging.Component("thumbnail"),
		counts:     make(map[fingerprint.Fingerprint]int),
	}
	g.ctx, g.stop = context.WithCancel(context.Background())
	return g
}

// Format returns the configured output format.
func (g *Gate) Format() Format {
	return g.cfg.Format
}

// RendererName returns the rasterizer name, if it has one.
func (g *Gate) RendererName() string {
	if n, ok := g.rasterizer.(interface{ Name() string }); ok {
		return n.Name()
	}
	return "custom"
}

// PageCount ensures the PDF of src and returns its page count.
func (g *Gate) PageCount(ctx context.Context, src converter.Source) (int, error) {
	pdf, err := g.pdfs.EnsurePDF(ctx, src)
	if err != nil {
		return 0, err
	}
	return g.pageCount(pdf)
}

// PageCountOf returns the page count of an existing PDF rendition. Unlike
// PageCount it never converts.
func (g *Gate) PageCountOf(pdf *converter.Result) (int, error) {
	return g.pageCount(pdf)
}

func (g *Gate) pageCount(pdf *converter.Result) (int, error) {
	g.countMu.Lock()
	n, ok := g.counts[pdf.Fingerprint]
	g.countMu.Unlock()
	if ok {
		return n, nil
	}

	n, err := g.counter.PageCount(pdf.PDFPath)
	if err != nil {
		return 0, &FailedError{Reason: fmt.Sprintf("cannot read page count: %v", err)}
	}

	g.countMu.Lock()
	if len(g.counts) >= maxPageCounts {
		g.counts = make(map[fingerprint.Fingerprint]int)
	}
	g.counts[pdf.Fingerprint] = n
	g.countMu.Unlock()
	return n, nil
}

// EnsureThumbnail returns a rendered image of page (1-based) of src at
// resolution, rendering it at most once per source version.
func (g *Gate) EnsureThumbnail(ctx context.Context, src converter.Source, page int, res Resolution) (*Result, error) {
	if _, ok := widths[res]; !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidResolution, res)
	}

	pdf, err := g.pdfs.EnsurePDF(ctx, src)
	if err != nil {
		return nil, err
	}

	count, err := g.pageCount(pdf)
	if err != nil {
		return nil, err
	}
	if page < 1 || page > count {
		return nil, fmt.Errorf("%w: page %d out of range 1..%d", ErrInvalidPage, page, count)
	}

	key := artifacts.Key{
		Fingerprint: pdf.Fingerprint,
		Kind:        artifacts.Thumbnail(page, string(res), string(g.cfg.Format)),
	}

	for attempt := 0; attempt < 3; attempt++ {
		if entry, ok := g.cache.Lookup(ctx, key); ok && entry.Status != artifacts.StatusPending {
			return g.result(key, res, entry)
		}

		h, err := g.cache.Begin(ctx, key, src.Path)
		switch {
		case err == nil:
			g.start(h, pdf.PDFPath, page, res)
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
		return g.result(key, res, entry)
	}

	return nil, &FailedError{Reason: "render result was not retained"}
}

func (g *Gate) result(key artifacts.Key, res Resolution, entry *artifacts.Entry) (*Result, error) {
	if entry.Status == artifacts.StatusFailed {
		return nil, &FailedError{Reason: entry.Reason}
	}
	return &Result{
		Path:        entry.PayloadPath,
		Fingerprint: key.Fingerprint,
		Page:        key.Kind.Page,
		Resolution:  res,
		ContentType: g.cfg.Format.ContentType(),
	}, nil
}

func (g *Gate) start(h *artifacts.Handle, pdfPath string, page int, res Resolution) {
	g.jobs.Add(1)
	go func() {
		defer g.jobs.Done()
		g.render(h, pdfPath, page, res)
	}()
}

// shutdownReason is recorded for jobs cut short by Cleanup.
const shutdownReason = "render cancelled: server shutting down"

// rendered is the outcome of one rasterizer call.
type rendered struct {
	data []byte
	err  error
}

func (g *Gate) render(h *artifacts.Handle, pdfPath string, page int, res Resolution) {
	bg := context.Background()
	renderer := g.RendererName()

	if err := g.sem.Acquire(g.ctx, 1); err != nil {
		h.Fail(bg, shutdownReason)
		return
	}
	defer g.sem.Release(1)

	if g.ctx.Err() != nil {
		h.Fail(bg, shutdownReason)
		return
	}

	if g.cfg.Backpressure != nil {
		if err := g.cfg.Backpressure.WaitIfPaused(g.ctx); err != nil {
			h.Fail(bg, shutdownReason)
			return
		}
	}

	ctx, cancel := context.WithTimeout(g.ctx, g.cfg.Timeout)
	defer cancel()

	// libvips only looks at ctx between calls, so the deadline is enforced
	// here. A late render keeps its slot until it returns.
	start := time.Now()
	done := make(chan rendered, 1)
	go func() {
		data, err := g.rasterizer.RenderPage(ctx, pdfPath, page, res.Width())
		if err == nil {
			data, err = normalize(data, res.Width(), g.cfg.Format)
		}
		done <- rendered{data: data, err: err}
	}()

	var out rendered
	late := false
	select {
	case out = <-done:
	case <-ctx.Done():
		out.err = ctx.Err()
		late = true
	}
	metrics.ThumbnailRenderDuration.WithLabelValues(renderer).Observe(time.Since(start).Seconds())

	if out.err != nil {
		reason := out.err.Error()
		status := "failed"
		switch {
		case g.ctx.Err() != nil:
			reason = shutdownReason
			status = "cancelled"
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			reason = "render timed out after " + strconv.FormatFloat(g.cfg.Timeout.Seconds(), 'f', -1, 64) + "s"
			status = "timeout"
		}
		metrics.ThumbnailRendersTotal.WithLabelValues(string(res), status).Inc()
		h.Fail(bg, reason)
		if late {
			<-done
			g.log.Warn("Discarded late render of page %d of %s after %v", page, pdfPath, time.Since(start).Round(time.Millisecond))
		}
		return
	}

	if _, err := h.Commit(bg, out.data); err != nil {
		metrics.ThumbnailRendersTotal.WithLabelValues(string(res), "failed").Inc()
		return
	}
	metrics.ThumbnailRendersTotal.WithLabelValues(string(res), "success").Inc()
	g.log.Debug("Rendered page %d of %s (%s) in %v", page, pdfPath, res, time.Since(start).Round(time.Millisecond))
}

// Wait blocks until all detached jobs have finished.
func (g *Gate) Wait() {
	g.jobs.Wait()
}

// CheckInstalled reports the rasterizer version when it supports it.
func (g *Gate) CheckInstalled(ctx context.Context) (string, error) {
	if c, ok := g.rasterizer.(interface {
		CheckInstalled(context.Context) (string, error)
	}); ok {
		return c.CheckInstalled(ctx)
	}
	return g.RendererName(), nil
}

// Cleanup cancels queued and running jobs and kills render processes when
// the rasterizer supports it. The gate starts no new work afterwards.
func (g *Gate) Cleanup() {
	g.stop()
	if c, ok := g.rasterizer.(interface{ Cleanup() }); ok {
		c.Cleanup()
	}
}
