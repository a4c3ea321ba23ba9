package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"deckview/internal/artifacts"
	"deckview/internal/converter"
	"deckview/internal/database"
	"deckview/internal/filesystem"
	"deckview/internal/fingerprint"
	"deckview/internal/handlers"
	"deckview/internal/hub"
	"deckview/internal/indexer"
	"deckview/internal/logging"
	"deckview/internal/memory"
	"deckview/internal/metrics"
	"deckview/internal/middleware"
	"deckview/internal/startup"
	"deckview/internal/thumbnail"
	"deckview/internal/watcher"
)

const (
	shutdownTimeout    = 30 * time.Second
	hubBuffer          = 16
	statsCollectPeriod = time.Minute
)

// app holds every long-lived component of a running server.
type app struct {
	cfg *startup.Config

	db         *database.Database
	cache      *artifacts.Cache
	engine     *fingerprint.Engine
	converter  *converter.Gate
	rasterizer thumbnail.Rasterizer
	thumbnails *thumbnail.Gate
	monitor    *memory.Monitor
	hub        *hub.Hub
	indexer    *indexer.Indexer
	watcher    *watcher.Watcher
	collector  *metrics.Collector

	usesVips bool
}

// openStore opens the database and artifact cache under the data directory.
func openStore(ctx context.Context, cfg *startup.Config) (*database.Database, *artifacts.Cache, error) {
	dbStart := time.Now()
	db, err := database.New(ctx, cfg.DatabasePath())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	startup.LogDatabaseInit(time.Since(dbStart))

	cache, err := artifacts.New(db, artifacts.Options{
		Root:         cfg.CacheDir(),
		FailureGrace: cfg.CacheFailureGrace,
	})
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to open artifact cache: %w", err)
	}
	return db, cache, nil
}

func newEngine(cfg *startup.Config) *fingerprint.Engine {
	return fingerprint.NewEngine(fingerprint.Options{
		ContentHash:         cfg.FingerprintContentHash,
		MaxContentHashBytes: cfg.FingerprintContentHashMax,
		Retry:               filesystem.DefaultRetryConfig(),
	})
}

func newIndexer(cfg *startup.Config, engine *fingerprint.Engine, cache *artifacts.Cache, interval time.Duration) (*indexer.Indexer, error) {
	walker := indexer.DefaultParallelWalkerConfig()
	if cfg.IndexWorkers > 0 {
		walker.NumWorkers = cfg.IndexWorkers
	}
	return indexer.New(engine, cache, indexer.Config{
		Root:          cfg.ContentDir,
		Interval:      interval,
		MaxCacheBytes: cfg.CacheMaxSize,
		Walker:        walker,
	})
}

// newApp builds the component graph. Missing external tools are logged and
// leave the server in a degraded state rather than failing startup.
func newApp(ctx context.Context, cfg *startup.Config) (*app, error) {
	a := &app{cfg: cfg}

	db, cache, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.db = db
	a.cache = cache
	a.engine = newEngine(cfg)

	soffice := converter.NewSofficeConverter(cfg.LibreOfficePath)
	a.converter = converter.NewGate(cache, a.engine, soffice, converter.Config{
		Timeout:       cfg.ConversionTimeout,
		MaxConcurrent: cfg.ConversionWorkers,
	})
	version, err := soffice.CheckInstalled(ctx)
	startup.LogConverterInit(cfg.LibreOfficePath, version, err)

	format, err := thumbnail.ParseFormat(cfg.ThumbnailFormat)
	if err != nil {
		a.db.Close()
		return nil, err
	}
	switch cfg.ThumbnailRenderer {
	case "pdftoppm":
		a.rasterizer = thumbnail.NewCommandRasterizer("")
	default:
		thumbnail.InitVips()
		a.usesVips = true
		a.rasterizer = thumbnail.NewVipsRasterizer()
	}

	a.monitor = memory.NewMonitor(memory.DefaultConfig())
	a.monitor.Start()

	a.thumbnails = thumbnail.NewGate(a.converter, cache, a.rasterizer, thumbnail.PDFPageCounter{}, thumbnail.Config{
		Timeout:       cfg.ThumbnailTimeout,
		Format:        format,
		MaxConcurrent: cfg.ThumbnailWorkers,
		Backpressure:  a.monitor,
	})
	_, err = a.thumbnails.CheckInstalled(ctx)
	startup.LogRasterizerInit(a.thumbnails.RendererName(), string(format), err)

	a.hub = hub.New(hubBuffer)

	startup.LogIndexerInit(cfg.IndexInterval)
	a.indexer, err = newIndexer(cfg, a.engine, cache, cfg.IndexInterval)
	if err != nil {
		a.close()
		return nil, err
	}
	a.indexer.SetOnChange(func() {
		a.hub.Publish(hub.TreeChanged())
	})

	if cfg.Watch {
		a.watcher, err = watcher.New(watcher.Config{
			Root:        cfg.ContentDir,
			Debounce:    cfg.WatchDebounce,
			MinInterval: cfg.WatchMinInterval,
		}, a.indexer, a.hub)
		startup.LogWatcherInit(true, err)
		if err != nil {
			a.watcher = nil
		}
	} else {
		startup.LogWatcherInit(false, nil)
	}

	if cfg.MetricsEnabled {
		a.collector = metrics.NewCollector(metrics.StatsFunc(a.stats), cfg.DatabasePath(), statsCollectPeriod)
	}

	return a, nil
}

// stats feeds the metrics collector from the index and the cache ledger.
func (a *app) stats() metrics.Stats {
	s := metrics.Stats{
		FilesByKind:    make(map[string]int),
		CacheEntries:   make(map[string]int),
		CacheSizeBytes: make(map[string]int64),
	}

	lib := a.indexer.Stats()
	for kind, n := range lib.ByKind {
		s.FilesByKind[string(kind)] = n
	}
	s.TotalFolders = lib.TotalFolders

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	cs, err := a.cache.Stats(ctx)
	if err != nil {
		logging.Warn("Cache stats for metrics failed: %v", err)
		return s
	}
	for typ, ts := range cs.ByType {
		s.CacheEntries[typ] = ts.Count
		s.CacheSizeBytes[typ] = ts.Bytes
	}
	return s
}

// router builds the HTTP handler with the middleware chain applied.
func (a *app) router() (*mux.Router, http.Handler) {
	opts := handlers.Options{
		Indexer:    a.indexer,
		Cache:      a.cache,
		Hub:        a.hub,
		PDFs:       a.converter,
		Thumbnails: a.thumbnails,
		Converter:  a.converter,
		Rasterizer: a.thumbnails,
	}
	if a.watcher != nil {
		opts.Watcher = a.watcher
	}

	r := mux.NewRouter()
	handlers.New(opts).Register(r)
	if a.cfg.MetricsEnabled {
		r.Use(middleware.Metrics(middleware.DefaultMetricsConfig()))
	}

	loggingConfig := middleware.DefaultLoggingConfig()
	loggingConfig.LogThumbnails = a.cfg.LogThumbnails
	loggingConfig.LogHealthChecks = a.cfg.LogHealthChecks
	logged := middleware.Logger(loggingConfig)(r)

	return r, middleware.Compression(middleware.DefaultCompressionConfig())(logged)
}

// maintain periodically holds the cache to its size limit between scans.
func (a *app) maintain(ctx context.Context) {
	if a.cfg.CacheSweepInterval <= 0 || a.cfg.CacheMaxSize <= 0 {
		return
	}
	ticker := time.NewTicker(a.cfg.CacheSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := a.cache.EnforceLimit(ctx, a.cfg.CacheMaxSize)
			if err != nil {
				logging.Warn("Cache size enforcement failed: %v", err)
				continue
			}
			if res.Evicted > 0 {
				logging.Info("Evicted %d artifacts (%s freed)", res.Evicted, memory.FormatBytes(res.FreedBytes))
			}
		}
	}
}

// close releases everything newApp acquired, in reverse order.
func (a *app) close() {
	if a.indexer != nil {
		a.indexer.Stop()
	}
	if a.hub != nil {
		a.hub.Close()
	}
	// Killing the child processes makes the detached jobs fail fast; they
	// must finish recording before the database closes.
	if a.thumbnails != nil {
		a.thumbnails.Cleanup()
		a.thumbnails.Wait()
	}
	if a.converter != nil {
		a.converter.Cleanup()
		a.converter.Wait()
	}
	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.usesVips {
		thumbnail.ShutdownVips()
	}
	if a.collector != nil {
		a.collector.Stop()
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			logging.Warn("Database close error: %v", err)
		}
	}
}

// serve runs the server until SIGINT or SIGTERM.
func serve(ctx context.Context, cfg *startup.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	startTime := time.Now()

	startup.LogBanner()
	startup.LogMemoryConfig(memory.ConfigureFromEnv())

	if err := cfg.PrepareDirectories(); err != nil {
		return err
	}
	startup.LogConfig(cfg)

	filesystem.SetDefaultVolumeResolver(filesystem.NewVolumeResolver(map[string]string{
		"content": cfg.ContentDir,
		"cache":   cfg.CacheDir(),
		"data":    cfg.DataDir,
	}))
	if cfg.MetricsEnabled {
		filesystem.SetObserver(metrics.NewFilesystemObserver())
		metrics.InitializeMetrics()
		metrics.SetAppInfo(startup.Version, startup.Commit, startup.GoVersion)
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	a.indexer.Start()
	startup.LogIndexerStarted()
	if a.watcher != nil {
		go a.watcher.Run(runCtx)
	}
	if a.collector != nil {
		a.collector.Start()
	}
	go a.maintain(runCtx)

	router, handler := a.router()
	startup.LogHTTPRoutes(router, cfg.LogThumbnails, cfg.LogHealthChecks)

	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	var metricsSrv *http.Server
	if cfg.MetricsEnabled {
		metricsSrv = &http.Server{
			Addr:        net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.MetricsPort)),
			Handler:     handlers.MetricsHandler(),
			ReadTimeout: 15 * time.Second,
		}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.Error("Metrics server error: %v", err)
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		handleShutdown(runCtx, stop, srv, metricsSrv, a)
	}()

	startup.LogServerStarted(startup.ServerConfig{
		Host:            cfg.Host,
		Port:            cfg.Port,
		MetricsPort:     cfg.MetricsPort,
		MetricsEnabled:  cfg.MetricsEnabled,
		StartupDuration: time.Since(startTime),
	})

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		stop()
		<-done
		return fmt.Errorf("server error: %w", err)
	}
	<-done
	return nil
}

// handleShutdown waits for a signal or cancellation of ctx and stops the
// components in dependency order.
func handleShutdown(ctx context.Context, stop context.CancelFunc, srv, metricsSrv *http.Server, a *app) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		startup.LogShutdownInitiated(sig.String())
	case <-ctx.Done():
		startup.LogShutdownInitiated("context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	startup.LogShutdownStep("Stopping watcher")
	stop()
	startup.LogShutdownStepComplete("Watcher stopped")

	// Closing the hub ends open event streams so Shutdown does not wait on them.
	startup.LogShutdownStep("Closing event streams")
	a.hub.Close()
	startup.LogShutdownStepComplete("Event streams closed")

	startup.LogShutdownStep("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Warn("Server shutdown error: %v", err)
	} else {
		startup.LogShutdownStepComplete("HTTP server stopped")
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logging.Warn("Metrics server shutdown error: %v", err)
		}
	}

	startup.LogShutdownStep("Stopping indexer and render processes")
	a.close()
	startup.LogShutdownStepComplete("Pipeline stopped")

	startup.LogShutdownComplete()
}
