package startup

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"deckview/internal/logging"
	"deckview/internal/memory"
)

const rule = "------------------------------------------------------------"

func section(title string) {
	logging.Info("")
	logging.Info(rule)
	logging.Info("%s", title)
	logging.Info(rule)
}

// RouteInfo contains information about a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// LogBanner prints the banner, build details and host information.
func LogBanner() {
	banner := `
------------------------------------------------------------
    ____            __   _    ___
   / __ \___  _____/ /__| |  / (_)__ _      __
  / / / / _ \/ ___/ //_/| | / / / _ \ | /| / /
 / /_/ /  __/ /__/ ,<   | |/ / /  __/ |/ |/ /
/_____/\___/\___/_/|_|  |___/_/\___/|__/|__/

------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))

	section("SYSTEM INFORMATION")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if logging.IsDebugEnabled() {
		if wd, err := os.Getwd(); err == nil {
			logging.Debug("  Working dir:     %s", wd)
		}
		if hostname, err := os.Hostname(); err == nil {
			logging.Debug("  Hostname:        %s", hostname)
		}
	}
}

// LogConfig prints the effective configuration.
func LogConfig(c *Config) {
	section("CONFIGURATION")
	if c.ConfigFile != "" {
		logging.Info("  Config file:         %s", c.ConfigFile)
	}
	logging.Info("  Content directory:   %s", c.ContentDir)
	logging.Info("  Data directory:      %s", c.DataDir)
	logging.Info("  Listen:              %s", c.Addr())
	logging.Info("  Metrics:             %s", enabledString(c.MetricsEnabled))
	logging.Info("  Watcher:             %s", enabledString(c.Watch))
	logging.Info("  Conversion timeout:  %v", c.ConversionTimeout)
	logging.Info("  Thumbnail timeout:   %v", c.ThumbnailTimeout)
	logging.Info("  Thumbnail renderer:  %s (%s)", c.ThumbnailRenderer, c.ThumbnailFormat)
	logging.Info("  Cache max size:      %s", memory.FormatBytes(c.CacheMaxSize))
	logging.Info("  Failure grace:       %v", c.CacheFailureGrace)
	logging.Info("  Index interval:      %v", c.IndexInterval)
	logging.Info("  Log level:           %s", logging.GetLevel())
	if c.FingerprintContentHash {
		limit := "unlimited"
		if c.FingerprintContentHashMax > 0 {
			limit = memory.FormatBytes(c.FingerprintContentHashMax)
		}
		logging.Info("  Content hashing:     ENABLED (up to %s)", limit)
	}
}

// LogMemoryConfig reports how the Go memory limit was configured.
func LogMemoryConfig(r memory.ConfigResult) {
	switch {
	case !r.Configured:
		logging.Debug("  Memory limit:        not configured")
	case r.Source == "MEMORY_LIMIT":
		logging.Info("  Memory limit:        %s of %s (ratio %.2f)",
			memory.FormatBytes(r.GoMemLimit), memory.FormatBytes(r.ContainerLimit), r.Ratio)
	default:
		logging.Info("  Memory limit:        %s (from %s)", memory.FormatBytes(r.GoMemLimit), r.Source)
	}
}

func enabledString(enabled bool) string {
	if enabled {
		return "ENABLED"
	}
	return "DISABLED"
}

// LogDatabaseInit logs database initialization
func LogDatabaseInit(duration time.Duration) {
	section("DATABASE INITIALIZATION")
	logging.Info("  [OK] Database initialized in %v", duration)
}

// LogConverterInit reports the result of probing the office converter.
// A missing converter is not fatal; conversions fail individually.
func LogConverterInit(binary, version string, err error) {
	section("CONVERTER INITIALIZATION")
	if err != nil {
		logging.Warn("  %s check failed: %v", binary, err)
		logging.Warn("  Presentations and documents will fail to convert")
		return
	}
	logging.Info("  [OK] %s", version)
}

// LogRasterizerInit reports which page rasterizer is in use.
func LogRasterizerInit(name, format string, err error) {
	section("THUMBNAIL INITIALIZATION")
	if err != nil {
		logging.Warn("  %s check failed: %v", name, err)
		logging.Warn("  Thumbnails will fail to render")
		return
	}
	logging.Info("  [OK] Rasterizer: %s, format: %s", name, format)
}

// LogIndexerInit logs indexer initialization
func LogIndexerInit(interval time.Duration) {
	section("INDEXER INITIALIZATION")
	if interval > 0 {
		logging.Info("  Index interval: %v", interval)
	} else {
		logging.Info("  Periodic indexing disabled")
	}
	logging.Info("  Starting indexer...")
}

// LogIndexerStarted logs successful indexer start
func LogIndexerStarted() {
	logging.Info("  [OK] Indexer started")
}

// LogWatcherInit reports whether filesystem watching is active.
func LogWatcherInit(enabled bool, err error) {
	switch {
	case !enabled:
		logging.Info("  Filesystem watcher disabled; change events are unavailable")
	case err != nil:
		logging.Warn("  Filesystem watcher failed to start: %v", err)
		logging.Warn("  Changes will be picked up by periodic indexing only")
	default:
		logging.Info("  [OK] Filesystem watcher started")
	}
}

// GetRoutes extracts all registered routes from a mux.Router
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		pathTemplate, err := route.GetPathTemplate()
		if err != nil {
			return err
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}

		for _, method := range methods {
			routes = append(routes, RouteInfo{
				Method: method,
				Path:   pathTemplate,
				Name:   route.GetName(),
			})
		}
		return nil
	})

	return routes, err
}

// LogHTTPRoutes logs all registered HTTP routes at debug level.
func LogHTTPRoutes(router *mux.Router, logThumbnails, logHealthChecks bool) {
	section("HTTP SERVER SETUP")

	if logging.IsDebugEnabled() {
		routes, err := GetRoutes(router)
		if err != nil {
			logging.Warn("error walking routes: %v", err)
		}

		logging.Debug("  Registered routes (%d total):", len(routes))

		groups := make(map[string][]RouteInfo)
		for _, route := range routes {
			prefix := getRouteGroup(route.Path)
			groups[prefix] = append(groups[prefix], route)
		}

		groupKeys := make([]string, 0, len(groups))
		for k := range groups {
			groupKeys = append(groupKeys, k)
		}
		sort.Strings(groupKeys)

		for _, group := range groupKeys {
			if group != "" {
				logging.Debug("  [%s]", group)
			} else {
				logging.Debug("  [root]")
			}
			for _, route := range groups[group] {
				logging.Debug("    %-6s %s", route.Method, route.Path)
			}
		}
	}

	if logThumbnails {
		logging.Info("    Thumbnail request logging: ON")
	} else {
		logging.Info("    Thumbnail request logging: OFF (set LOG_THUMBNAILS=true to enable)")
	}
	if logHealthChecks {
		logging.Info("    Health check logging: ON")
	} else {
		logging.Info("    Health check logging: OFF (set LOG_HEALTH_CHECKS=true to enable)")
	}
}

// getRouteGroup extracts a group name from a route path
func getRouteGroup(path string) string {
	path = strings.TrimPrefix(path, "/")

	parts := strings.SplitN(path, "/", 2)
	first := parts[0]

	if first == "api" && len(parts) > 1 {
		subParts := strings.SplitN(parts[1], "/", 2)
		return "api/" + subParts[0]
	}

	return first
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Host            string
	Port            int
	MetricsPort     int
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs successful server start with all endpoint information
func LogServerStarted(config ServerConfig) {
	section("SERVER STARTED")
	logging.Info("  Startup time:    %v", config.StartupDuration)
	logging.Info("")
	logging.Info("  Endpoints:")
	logging.Info("    Application:   http://%s:%d", config.Host, config.Port)
	if config.MetricsEnabled {
		logging.Info("    Metrics:       http://%s:%d/metrics", config.Host, config.MetricsPort)
	} else {
		logging.Info("    Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info(rule)
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	section(fmt.Sprintf("SHUTDOWN INITIATED (received %s)", signal))
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}
