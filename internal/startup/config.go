package startup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"deckview/internal/logging"
)

// Config holds all application configuration
type Config struct {
	ContentDir  string
	DataDir     string
	Host        string
	Port        int
	MetricsPort int

	MetricsEnabled  bool
	Watch           bool
	LogLevel        string
	LogThumbnails   bool
	LogHealthChecks bool

	LibreOfficePath   string
	ConversionTimeout time.Duration
	ConversionWorkers int

	ThumbnailTimeout  time.Duration
	ThumbnailRenderer string
	ThumbnailFormat   string
	ThumbnailWorkers  int

	CacheFailureGrace  time.Duration
	CacheMaxSize       int64
	CacheSweepInterval time.Duration

	IndexInterval time.Duration
	IndexWorkers  int

	WatchDebounce    time.Duration
	WatchMinInterval time.Duration

	FingerprintContentHash    bool
	FingerprintContentHashMax int64

	// ConfigFile is the TOML file the values were read from, if any.
	ConfigFile string
}

// Derived paths
func (c *Config) DatabasePath() string { return filepath.Join(c.DataDir, "deckview.db") }
func (c *Config) CacheDir() string     { return filepath.Join(c.DataDir, "cache") }

// Addr is the listen address of the application server.
func (c *Config) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// FileConfig is the on-disk TOML form. Empty values leave the default alone.
// Durations and sizes are strings such as "90s" and "2GiB".
type FileConfig struct {
	ContentDir  string `toml:"content_dir"`
	DataDir     string `toml:"data_dir"`
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	MetricsPort int    `toml:"metrics_port"`

	MetricsEnabled  *bool  `toml:"metrics_enabled"`
	Watch           *bool  `toml:"watch"`
	LogLevel        string `toml:"log_level"`
	LogThumbnails   *bool  `toml:"log_thumbnails"`
	LogHealthChecks *bool  `toml:"log_health_checks"`

	Conversion struct {
		LibreOfficePath string `toml:"libreoffice_path"`
		Timeout         string `toml:"timeout"`
		Workers         int    `toml:"workers"`
	} `toml:"conversion"`

	Thumbnail struct {
		Timeout  string `toml:"timeout"`
		Renderer string `toml:"renderer"`
		Format   string `toml:"format"`
		Workers  int    `toml:"workers"`
	} `toml:"thumbnail"`

	Cache struct {
		FailureGrace  string `toml:"failure_grace"`
		MaxSize       string `toml:"max_size"`
		SweepInterval string `toml:"sweep_interval"`
	} `toml:"cache"`

	Index struct {
		Interval string `toml:"interval"`
		Workers  int    `toml:"workers"`
	} `toml:"index"`

	Watcher struct {
		Debounce    string `toml:"debounce"`
		MinInterval string `toml:"min_interval"`
	} `toml:"watcher"`

	Fingerprint struct {
		ContentHash    *bool  `toml:"content_hash"`
		ContentHashMax string `toml:"content_hash_max"`
	} `toml:"fingerprint"`
}

// Overrides carries command-line values. Nil fields were not given.
type Overrides struct {
	ContentDir *string
	DataDir    *string
	Host       *string
	Port       *int
	Watch      *bool
	LogLevel   *string
}

// LoadOptions controls LoadConfig.
type LoadOptions struct {
	// ConfigFile is read when set; otherwise DECKVIEW_CONFIG is consulted.
	ConfigFile string
	Overrides  Overrides
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		ContentDir:         ".",
		DataDir:            defaultDataDir(),
		Host:               "127.0.0.1",
		Port:               8000,
		MetricsPort:        9090,
		MetricsEnabled:     true,
		Watch:              true,
		LogLevel:           "info",
		LogHealthChecks:    true,
		LibreOfficePath:    "soffice",
		ConversionTimeout:  120 * time.Second,
		ConversionWorkers:  1,
		ThumbnailTimeout:   30 * time.Second,
		ThumbnailRenderer:  "vips",
		ThumbnailFormat:    "png",
		ThumbnailWorkers:   2,
		CacheFailureGrace:  30 * time.Second,
		CacheMaxSize:       2 << 30,
		CacheSweepInterval: time.Hour,
		IndexInterval:      30 * time.Minute,
		WatchDebounce:      500 * time.Millisecond,
		WatchMinInterval:   time.Second,
	}
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".deckview")
	}
	return ".deckview"
}

// LoadConfig layers defaults, the TOML file, environment variables and
// command-line overrides, in that order, then validates the result.
func LoadConfig(opts LoadOptions) (*Config, error) {
	getenv := opts.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	cfg := DefaultConfig()

	path := opts.ConfigFile
	if path == "" {
		path = getenv("DECKVIEW_CONFIG")
	}
	if path != "" {
		fc, err := ReadConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := cfg.applyFile(fc); err != nil {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
		cfg.ConfigFile = path
	}

	if err := cfg.applyEnv(getenv); err != nil {
		return nil, err
	}
	cfg.applyOverrides(opts.Overrides)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadConfigFile decodes a TOML config file.
func ReadConfigFile(path string) (*FileConfig, error) {
	var fc FileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		logging.Warn("Ignoring unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return &fc, nil
}

func (c *Config) applyFile(fc *FileConfig) error {
	setString(&c.ContentDir, fc.ContentDir)
	setString(&c.DataDir, fc.DataDir)
	setString(&c.Host, fc.Host)
	setInt(&c.Port, fc.Port)
	setInt(&c.MetricsPort, fc.MetricsPort)
	setBool(&c.MetricsEnabled, fc.MetricsEnabled)
	setBool(&c.Watch, fc.Watch)
	setString(&c.LogLevel, fc.LogLevel)
	setBool(&c.LogThumbnails, fc.LogThumbnails)
	setBool(&c.LogHealthChecks, fc.LogHealthChecks)

	setString(&c.LibreOfficePath, fc.Conversion.LibreOfficePath)
	setInt(&c.ConversionWorkers, fc.Conversion.Workers)
	setString(&c.ThumbnailRenderer, fc.Thumbnail.Renderer)
	setString(&c.ThumbnailFormat, fc.Thumbnail.Format)
	setInt(&c.ThumbnailWorkers, fc.Thumbnail.Workers)
	setInt(&c.IndexWorkers, fc.Index.Workers)
	setBool(&c.FingerprintContentHash, fc.Fingerprint.ContentHash)

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"conversion.timeout", fc.Conversion.Timeout, &c.ConversionTimeout},
		{"thumbnail.timeout", fc.Thumbnail.Timeout, &c.ThumbnailTimeout},
		{"cache.failure_grace", fc.Cache.FailureGrace, &c.CacheFailureGrace},
		{"cache.sweep_interval", fc.Cache.SweepInterval, &c.CacheSweepInterval},
		{"index.interval", fc.Index.Interval, &c.IndexInterval},
		{"watcher.debounce", fc.Watcher.Debounce, &c.WatchDebounce},
		{"watcher.min_interval", fc.Watcher.MinInterval, &c.WatchMinInterval},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
		*d.dst = v
	}

	sizes := []struct {
		key string
		raw string
		dst *int64
	}{
		{"cache.max_size", fc.Cache.MaxSize, &c.CacheMaxSize},
		{"fingerprint.content_hash_max", fc.Fingerprint.ContentHashMax, &c.FingerprintContentHashMax},
	}
	for _, s := range sizes {
		if s.raw == "" {
			continue
		}
		v, err := ParseBytes(s.raw)
		if err != nil {
			return fmt.Errorf("%s: %w", s.key, err)
		}
		*s.dst = v
	}
	return nil
}

// applyEnv reads every DECKVIEW setting from the environment. Malformed
// numbers and durations are configuration errors, not silent defaults.
func (c *Config) applyEnv(getenv func(string) string) error {
	var errs []error
	env := envReader{getenv: getenv, errs: &errs}

	env.str("DECKVIEW_CONTENT_DIR", &c.ContentDir)
	env.str("DECKVIEW_DATA_DIR", &c.DataDir)
	env.str("DECKVIEW_HOST", &c.Host)
	env.int("DECKVIEW_PORT", &c.Port)
	env.int("METRICS_PORT", &c.MetricsPort)
	env.bool("METRICS_ENABLED", &c.MetricsEnabled)
	env.bool("DECKVIEW_WATCH", &c.Watch)
	env.str("LOG_LEVEL", &c.LogLevel)
	env.bool("LOG_THUMBNAILS", &c.LogThumbnails)
	env.bool("LOG_HEALTH_CHECKS", &c.LogHealthChecks)

	env.str("LIBREOFFICE_PATH", &c.LibreOfficePath)
	env.duration("CONVERSION_TIMEOUT", &c.ConversionTimeout)
	env.int("CONVERSION_WORKERS", &c.ConversionWorkers)

	env.duration("THUMBNAIL_TIMEOUT", &c.ThumbnailTimeout)
	env.str("THUMBNAIL_RENDERER", &c.ThumbnailRenderer)
	env.str("THUMBNAIL_FORMAT", &c.ThumbnailFormat)
	env.int("THUMBNAIL_WORKERS", &c.ThumbnailWorkers)

	env.duration("CACHE_FAILURE_GRACE", &c.CacheFailureGrace)
	env.bytes("CACHE_MAX_SIZE", &c.CacheMaxSize)
	env.duration("CACHE_SWEEP_INTERVAL", &c.CacheSweepInterval)

	env.duration("INDEX_INTERVAL", &c.IndexInterval)
	env.int("INDEX_WORKERS", &c.IndexWorkers)

	env.duration("WATCH_DEBOUNCE", &c.WatchDebounce)
	env.duration("WATCH_MIN_INTERVAL", &c.WatchMinInterval)

	env.bool("FINGERPRINT_CONTENT_HASH", &c.FingerprintContentHash)
	env.bytes("FINGERPRINT_CONTENT_HASH_MAX", &c.FingerprintContentHashMax)

	return errors.Join(errs...)
}

func (c *Config) applyOverrides(o Overrides) {
	if o.ContentDir != nil {
		c.ContentDir = *o.ContentDir
	}
	if o.DataDir != nil {
		c.DataDir = *o.DataDir
	}
	if o.Host != nil {
		c.Host = *o.Host
	}
	if o.Port != nil {
		c.Port = *o.Port
	}
	if o.Watch != nil {
		c.Watch = *o.Watch
	}
	if o.LogLevel != nil {
		c.LogLevel = *o.LogLevel
	}
}

// Validate checks value ranges and resolves directories to absolute paths.
func (c *Config) Validate() error {
	var errs []error

	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.MetricsEnabled && (c.MetricsPort < 1 || c.MetricsPort > 65535) {
		errs = append(errs, fmt.Errorf("metrics port %d out of range", c.MetricsPort))
	}
	if c.MetricsEnabled && c.MetricsPort == c.Port {
		errs = append(errs, fmt.Errorf("metrics port must differ from application port %d", c.Port))
	}
	if _, ok := logging.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("unknown log level %q", c.LogLevel))
	}

	c.ThumbnailRenderer = strings.ToLower(c.ThumbnailRenderer)
	if c.ThumbnailRenderer != "vips" && c.ThumbnailRenderer != "pdftoppm" {
		errs = append(errs, fmt.Errorf("unknown thumbnail renderer %q (want vips or pdftoppm)", c.ThumbnailRenderer))
	}
	c.ThumbnailFormat = strings.ToLower(c.ThumbnailFormat)
	if c.ThumbnailFormat == "jpg" {
		c.ThumbnailFormat = "jpeg"
	}
	if c.ThumbnailFormat != "png" && c.ThumbnailFormat != "jpeg" {
		errs = append(errs, fmt.Errorf("unknown thumbnail format %q (want png or jpeg)", c.ThumbnailFormat))
	}

	positive := []struct {
		name string
		v    time.Duration
	}{
		{"conversion timeout", c.ConversionTimeout},
		{"thumbnail timeout", c.ThumbnailTimeout},
		{"watch debounce", c.WatchDebounce},
	}
	for _, p := range positive {
		if p.v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %v", p.name, p.v))
		}
	}
	if c.CacheMaxSize < 0 {
		errs = append(errs, fmt.Errorf("cache max size must not be negative"))
	}

	var err error
	if c.ContentDir, err = filepath.Abs(c.ContentDir); err != nil {
		errs = append(errs, fmt.Errorf("failed to resolve content directory path: %w", err))
	}
	if c.DataDir, err = filepath.Abs(c.DataDir); err != nil {
		errs = append(errs, fmt.Errorf("failed to resolve data directory path: %w", err))
	}

	return errors.Join(errs...)
}

// PrepareDirectories checks the content directory and creates the data
// directories. The content directory must exist; the data directory must
// be writable.
func (c *Config) PrepareDirectories() error {
	info, err := os.Stat(c.ContentDir)
	if err != nil {
		return fmt.Errorf("content directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("content directory %s is not a directory", c.ContentDir)
	}

	for _, dir := range []string{c.DataDir, c.CacheDir()} {
		if err := ensureDirectory(dir); err != nil {
			return err
		}
	}
	if err := testWriteAccess(c.DataDir); err != nil {
		return fmt.Errorf("data directory is not writable: %w", err)
	}
	return nil
}

func ensureDirectory(path string) error {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		logging.Debug("  Creating directory: %s", path)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", path, err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to stat directory %s: %w", path, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s exists but is not a directory", path)
	}
	return nil
}

func testWriteAccess(dir string) error {
	testFile := filepath.Join(dir, ".write-test")
	if err := os.WriteFile(testFile, []byte("test"), 0o644); err != nil {
		return err
	}
	if err := os.Remove(testFile); err != nil {
		logging.Warn("failed to remove write test file %s: %v", testFile, err)
	}
	return nil
}

// ParseBytes parses sizes like "512", "64KB", "1.5GiB". Binary suffixes
// (KiB, MiB, GiB, TiB, or bare K, M, G, T) are powers of 1024; KB, MB, GB, TB
// are powers of 1000.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	i := len(s)
	for i > 0 && (s[i-1] < '0' || s[i-1] > '9') {
		i--
	}
	num, unit := strings.TrimSpace(s[:i]), strings.ToUpper(strings.TrimSpace(s[i:]))

	multipliers := map[string]float64{
		"": 1, "B": 1,
		"K": 1 << 10, "KIB": 1 << 10, "KB": 1e3,
		"M": 1 << 20, "MIB": 1 << 20, "MB": 1e6,
		"G": 1 << 30, "GIB": 1 << 30, "GB": 1e9,
		"T": 1 << 40, "TIB": 1 << 40, "TB": 1e12,
	}
	mult, ok := multipliers[unit]
	if !ok {
		return 0, fmt.Errorf("unknown size unit %q in %q", unit, s)
	}

	v, err := strconv.ParseFloat(num, 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid size %q", s)
	}
	return int64(v * mult), nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

type envReader struct {
	getenv func(string) string
	errs   *[]error
}

func (e envReader) str(key string, dst *string) {
	if v := e.getenv(key); v != "" {
		*dst = v
	}
}

func (e envReader) int(key string, dst *int) {
	v := e.getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*e.errs = append(*e.errs, fmt.Errorf("invalid %s %q: not an integer", key, v))
		return
	}
	*dst = n
}

func (e envReader) bool(key string, dst *bool) {
	v := e.getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		logging.Warn("Invalid boolean value for %s: %q, using default: %v", key, v, *dst)
		return
	}
	*dst = b
}

func (e envReader) duration(key string, dst *time.Duration) {
	v := e.getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*e.errs = append(*e.errs, fmt.Errorf("invalid %s %q: %w", key, v, err))
		return
	}
	*dst = d
}

func (e envReader) bytes(key string, dst *int64) {
	v := e.getenv(key)
	if v == "" {
		return
	}
	n, err := ParseBytes(v)
	if err != nil {
		*e.errs = append(*e.errs, fmt.Errorf("invalid %s: %w", key, err))
		return
	}
	*dst = n
}
