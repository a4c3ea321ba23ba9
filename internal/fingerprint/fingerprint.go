package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"deckview/internal/filesystem"
)

// ErrSourceUnavailable is returned when a source file cannot be stat'd or is
// not a regular file, for example because it was deleted mid-request.
var ErrSourceUnavailable = errors.New("source unavailable")

// Fingerprint identifies one version of a source file.
type Fingerprint string

// Short returns an abbreviated form for log lines.
func (f Fingerprint) Short() string {
	if len(f) > 12 {
		return string(f[:12])
	}
	return string(f)
}

// LogicalID is the stable identifier of a library file, derived from its
// root-relative path only.
type LogicalID string

// Options configures an Engine.
type Options struct {
	// ContentHash mixes an xxhash64 of the file content into the fingerprint.
	ContentHash bool
	// MaxContentHashBytes skips content hashing for larger files (0 = no limit).
	MaxContentHashBytes int64
	Retry               filesystem.RetryConfig
}

// Engine computes fingerprints.
type Engine struct {
	opts Options
}

// NewEngine creates an Engine.
func NewEngine(opts Options) *Engine {
	if opts.Retry.MaxRetries == 0 && opts.Retry.InitialBackoff == 0 {
		opts.Retry = filesystem.DefaultRetryConfig()
	}
	return &Engine{opts: opts}
}

// Fingerprint stats path and derives its fingerprint.
func (e *Engine) Fingerprint(path string) (Fingerprint, error) {
	info, err := filesystem.StatWithRetry(path, e.opts.Retry)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
	}
	return e.FingerprintInfo(path, info)
}

// FingerprintInfo derives the fingerprint from an existing stat result.
func (e *Engine) FingerprintInfo(path string, info os.FileInfo) (Fingerprint, error) {
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s is a directory", ErrSourceUnavailable, path)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	var contentHash string
	if e.opts.ContentHash && (e.opts.MaxContentHashBytes <= 0 || info.Size() <= e.opts.MaxContentHashBytes) {
		contentHash, err = e.hashContent(path)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrSourceUnavailable, path, err)
		}
	}

	return Derive(absPath, info.Size(), info.ModTime(), contentHash), nil
}

func (e *Engine) hashContent(path string) (string, error) {
	f, err := filesystem.OpenWithRetry(path, e.opts.Retry)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return strconv.FormatUint(h.Sum64(), 16), nil
}

// Derive is the pure fingerprint function. contentHash may be empty.
func Derive(path string, size int64, modTime time.Time, contentHash string) Fingerprint {
	h := sha256.New()
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(size, 10)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(modTime.UnixNano(), 10)))
	if contentHash != "" {
		h.Write([]byte{0})
		h.Write([]byte(contentHash))
	}
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}

// IDFor returns the logical id for a root-relative path: the first 16 hex
// characters of the SHA-256 of the cleaned, slash-separated path.
func IDFor(relPath string) LogicalID {
	normalized := filepath.ToSlash(filepath.Clean(relPath))
	sum := sha256.Sum256([]byte(normalized))
	return LogicalID(hex.EncodeToString(sum[:])[:16])
}
