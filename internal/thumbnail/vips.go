package thumbnail

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/davidbyttow/govips/v2/vips"

	"deckview/internal/logging"
)

var (
	vipsInitialized bool
	vipsInitMutex   sync.Mutex
)

// InitVips starts libvips with its log output routed through logging.
// It is safe to call more than once.
func InitVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		return
	}

	// Configure vips logging before Startup so the level is respected from
	// the first message on.
	var vipsLogLevel vips.LogLevel
	switch logging.GetLevel() {
	case logging.LevelDebug:
		vipsLogLevel = vips.LogLevelInfo
	case logging.LevelInfo:
		vipsLogLevel = vips.LogLevelWarning
	case logging.LevelWarn:
		vipsLogLevel = vips.LogLevelError
	default:
		vipsLogLevel = vips.LogLevelCritical
	}

	vips.LoggingSettings(func(domain string, level vips.LogLevel, msg string) {
		switch level {
		case vips.LogLevelError, vips.LogLevelCritical:
			logging.Error("[%s] %s", domain, msg)
		case vips.LogLevelWarning:
			logging.Warn("[%s] %s", domain, msg)
		default:
			logging.Debug("[%s] %s", domain, msg)
		}
	}, vipsLogLevel)

	vips.Startup(&vips.Config{
		ConcurrencyLevel: 1,
		MaxCacheMem:      50 * 1024 * 1024,
		MaxCacheSize:     100,
		ReportLeaks:      false,
		CacheTrace:       false,
		CollectStats:     false,
	})

	vipsInitialized = true
	logging.Info("libvips initialized successfully (version: %s)", vips.Version)
}

// ShutdownVips releases libvips resources.
func ShutdownVips() {
	vipsInitMutex.Lock()
	defer vipsInitMutex.Unlock()

	if vipsInitialized {
		vips.Shutdown()
		vipsInitialized = false
		logging.Info("libvips shutdown complete")
	}
}

// pdfDefaultDensity is the DPI at which one PDF point maps to one pixel.
const pdfDefaultDensity = 72

// VipsRasterizer renders PDF pages with libvips (poppler loader).
type VipsRasterizer struct{}

// NewVipsRasterizer initializes libvips and returns a rasterizer.
func NewVipsRasterizer() *VipsRasterizer {
	InitVips()
	return &VipsRasterizer{}
}

// Name identifies the rasterizer in metrics and health output.
func (v *VipsRasterizer) Name() string {
	return "vips"
}

// RenderPage renders page (1-based) of pdfPath at least width pixels wide
// and returns it as PNG.
func (v *VipsRasterizer) RenderPage(ctx context.Context, pdfPath string, page, width int) ([]byte, error) {
	// The page size is only known after a first load at the default density.
	probe, err := v.load(pdfPath, page, pdfDefaultDensity)
	if err != nil {
		return nil, err
	}
	natural := probe.Width()
	probe.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if natural <= 0 {
		return nil, errors.New("vips reported an empty page")
	}

	density := int(math.Ceil(float64(pdfDefaultDensity) * float64(width) / float64(natural)))
	if density < pdfDefaultDensity {
		density = pdfDefaultDensity
	}

	ref, err := v.load(pdfPath, page, density)
	if err != nil {
		return nil, err
	}
	defer ref.Close()

	if ref.Width() > width {
		if err := ref.Resize(float64(width)/float64(ref.Width()), vips.KernelLanczos3); err != nil {
			return nil, fmt.Errorf("vips resize failed: %w", err)
		}
	}

	out, _, err := ref.ExportPng(vips.NewPngExportParams())
	if err != nil {
		return nil, fmt.Errorf("vips export failed: %w", err)
	}
	return out, nil
}

func (v *VipsRasterizer) load(pdfPath string, page, density int) (*vips.ImageRef, error) {
	params := vips.NewImportParams()
	params.Page.Set(page - 1)
	params.Density.Set(density)

	ref, err := vips.LoadImageFromFile(pdfPath, params)
	if err != nil {
		return nil, fmt.Errorf("vips failed to load page %d: %w", page, err)
	}
	return ref, nil
}
