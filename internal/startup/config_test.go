package startup

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig(LoadOptions{
		Getenv: envMap(map[string]string{"DECKVIEW_CONTENT_DIR": dir, "DECKVIEW_DATA_DIR": filepath.Join(dir, "data")}),
	})
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Host != "127.0.0.1" || cfg.Port != 8000 {
		t.Errorf("listen = %s, want 127.0.0.1:8000", cfg.Addr())
	}
	if cfg.ConversionTimeout != 120*time.Second {
		t.Errorf("ConversionTimeout = %v", cfg.ConversionTimeout)
	}
	if cfg.ThumbnailTimeout != 30*time.Second {
		t.Errorf("ThumbnailTimeout = %v", cfg.ThumbnailTimeout)
	}
	if cfg.CacheMaxSize != 2<<30 {
		t.Errorf("CacheMaxSize = %d", cfg.CacheMaxSize)
	}
	if cfg.WatchDebounce != 500*time.Millisecond {
		t.Errorf("WatchDebounce = %v", cfg.WatchDebounce)
	}
	if got, want := cfg.DatabasePath(), filepath.Join(dir, "data", "deckview.db"); got != want {
		t.Errorf("DatabasePath = %q, want %q", got, want)
	}
	if got, want := cfg.CacheDir(), filepath.Join(dir, "data", "cache"); got != want {
		t.Errorf("CacheDir = %q, want %q", got, want)
	}
}

func TestLoadConfigEnv(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadConfig(LoadOptions{Getenv: envMap(map[string]string{
		"DECKVIEW_CONTENT_DIR":     dir,
		"DECKVIEW_DATA_DIR":        dir,
		"DECKVIEW_PORT":            "9000",
		"CONVERSION_TIMEOUT":       "5m",
		"CACHE_MAX_SIZE":           "512MiB",
		"THUMBNAIL_RENDERER":       "PDFTOPPM",
		"THUMBNAIL_FORMAT":         "jpg",
		"DECKVIEW_WATCH":           "false",
		"LOG_HEALTH_CHECKS":        "not-a-bool",
		"FINGERPRINT_CONTENT_HASH": "true",
	})})
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.Port != 9000 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.ConversionTimeout != 5*time.Minute {
		t.Errorf("ConversionTimeout = %v", cfg.ConversionTimeout)
	}
	if cfg.CacheMaxSize != 512<<20 {
		t.Errorf("CacheMaxSize = %d", cfg.CacheMaxSize)
	}
	if cfg.ThumbnailRenderer != "pdftoppm" {
		t.Errorf("ThumbnailRenderer = %q", cfg.ThumbnailRenderer)
	}
	if cfg.ThumbnailFormat != "jpeg" {
		t.Errorf("ThumbnailFormat = %q", cfg.ThumbnailFormat)
	}
	if cfg.Watch {
		t.Error("Watch should be disabled")
	}
	if !cfg.LogHealthChecks {
		t.Error("invalid boolean should keep the default")
	}
	if !cfg.FingerprintContentHash {
		t.Error("FingerprintContentHash should be enabled")
	}
}

func TestLoadConfigInvalidEnv(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad port", map[string]string{"DECKVIEW_PORT": "http"}, "DECKVIEW_PORT"},
		{"port out of range", map[string]string{"DECKVIEW_PORT": "70000"}, "out of range"},
		{"bad duration", map[string]string{"CONVERSION_TIMEOUT": "soon"}, "CONVERSION_TIMEOUT"},
		{"zero timeout", map[string]string{"THUMBNAIL_TIMEOUT": "0s"}, "thumbnail timeout"},
		{"bad size", map[string]string{"CACHE_MAX_SIZE": "lots"}, "CACHE_MAX_SIZE"},
		{"bad renderer", map[string]string{"THUMBNAIL_RENDERER": "ghostscript"}, "renderer"},
		{"bad format", map[string]string{"THUMBNAIL_FORMAT": "gif"}, "format"},
		{"bad level", map[string]string{"LOG_LEVEL": "loud"}, "log level"},
		{"metrics port clash", map[string]string{"DECKVIEW_PORT": "9090"}, "metrics port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(LoadOptions{Getenv: envMap(tt.env)})
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadConfigFileAndPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deckview.toml")
	content := `
host = "0.0.0.0"
port = 8100
watch = false

[conversion]
timeout = "45s"

[cache]
max_size = "1GB"
failure_grace = "1m"

[watcher]
debounce = "250ms"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	port := 8200
	watch := true
	cfg, err := LoadConfig(LoadOptions{
		Getenv: envMap(map[string]string{
			"DECKVIEW_CONFIG":    path,
			"DECKVIEW_DATA_DIR":  dir,
			"CONVERSION_TIMEOUT": "60s",
		}),
		Overrides: Overrides{ContentDir: &dir, Port: &port, Watch: &watch},
	})
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.ConfigFile != path {
		t.Errorf("ConfigFile = %q", cfg.ConfigFile)
	}
	if cfg.Host != "0.0.0.0" {
		t.Errorf("Host from file = %q", cfg.Host)
	}
	if cfg.CacheMaxSize != 1_000_000_000 {
		t.Errorf("CacheMaxSize from file = %d", cfg.CacheMaxSize)
	}
	if cfg.CacheFailureGrace != time.Minute {
		t.Errorf("CacheFailureGrace from file = %v", cfg.CacheFailureGrace)
	}
	if cfg.WatchDebounce != 250*time.Millisecond {
		t.Errorf("WatchDebounce from file = %v", cfg.WatchDebounce)
	}
	if cfg.ConversionTimeout != 60*time.Second {
		t.Errorf("env should beat file: ConversionTimeout = %v", cfg.ConversionTimeout)
	}
	if cfg.Port != 8200 {
		t.Errorf("flag should beat file: Port = %d", cfg.Port)
	}
	if !cfg.Watch {
		t.Error("flag should beat file: Watch")
	}
}

func TestLoadConfigFileErrors(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"malformed toml", "port = ["},
		{"bad duration", "[thumbnail]\ntimeout = \"forever\""},
		{"bad size", "[cache]\nmax_size = \"12 parsecs\""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, strings.ReplaceAll(tt.name, " ", "_")+".toml")
			if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
				t.Fatal(err)
			}
			if _, err := LoadConfig(LoadOptions{ConfigFile: path, Getenv: envMap(nil)}); err == nil {
				t.Error("expected an error")
			}
		})
	}

	if _, err := LoadConfig(LoadOptions{ConfigFile: filepath.Join(dir, "missing.toml"), Getenv: envMap(nil)}); err == nil {
		t.Error("expected an error for a missing config file")
	}
}

func TestParseBytes(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"0", 0, false},
		{"512", 512, false},
		{"512B", 512, false},
		{"64K", 64 << 10, false},
		{"64KiB", 64 << 10, false},
		{"64KB", 64_000, false},
		{"2GiB", 2 << 30, false},
		{"2gb", 2_000_000_000, false},
		{"1.5MiB", 3 << 19, false},
		{" 10 MB ", 10_000_000, false},
		{"1T", 1 << 40, false},
		{"", 0, true},
		{"MB", 0, true},
		{"-1", 0, true},
		{"10XB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBytes(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseBytes(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseBytes(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestPrepareDirectories(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.ContentDir = dir
	cfg.DataDir = filepath.Join(dir, "nested", "data")

	if err := cfg.PrepareDirectories(); err != nil {
		t.Fatalf("PrepareDirectories failed: %v", err)
	}
	if info, err := os.Stat(cfg.CacheDir()); err != nil || !info.IsDir() {
		t.Errorf("cache directory not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.DataDir, ".write-test")); !os.IsNotExist(err) {
		t.Error("write test file was left behind")
	}
}

func TestPrepareDirectoriesContentErrors(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "deck.pptx")
	if err := os.WriteFile(file, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		content string
	}{
		{"missing", filepath.Join(dir, "nope")},
		{"not a directory", file},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.ContentDir = tt.content
			cfg.DataDir = filepath.Join(dir, "data")
			if err := cfg.PrepareDirectories(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestEnsureDirectoryRejectsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "data")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := ensureDirectory(file); err == nil {
		t.Error("expected an error for a regular file")
	}
}
