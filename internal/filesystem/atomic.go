package filesystem

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrOutsideRoot is returned by RemoveWithin for paths that do not resolve
// strictly inside the root.
var ErrOutsideRoot = errors.New("path outside root")

// WriteFileAtomic writes data to dst via a temporary file in stagingDir.
// stagingDir must be on the same filesystem as dst.
func WriteFileAtomic(stagingDir, dst string, data []byte, perm os.FileMode) error {
	return writeAtomic(stagingDir, dst, perm, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// MoveFileAtomic copies src into dst through stagingDir and removes src.
// A plain rename is attempted first; copying covers sources on another volume.
func MoveFileAtomic(stagingDir, src, dst string, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create destination directory: %w", err)
	}
	if err := syncFile(src); err == nil {
		if err := os.Rename(src, dst); err == nil {
			return nil
		}
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	if err := writeAtomic(stagingDir, dst, perm, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	}); err != nil {
		return err
	}
	_ = os.Remove(src)
	return nil
}

func writeAtomic(stagingDir, dst string, perm os.FileMode, fill func(io.Writer) error) error {
	start := time.Now()
	volume := defaultResolver.Resolve(dst)

	err := func() error {
		if err := os.MkdirAll(stagingDir, 0o755); err != nil {
			return fmt.Errorf("create staging directory: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("create destination directory: %w", err)
		}

		tmp, err := os.CreateTemp(stagingDir, filepath.Base(dst)+".*.tmp")
		if err != nil {
			return fmt.Errorf("create temp file: %w", err)
		}
		tmpPath := tmp.Name()
		committed := false
		defer func() {
			if !committed {
				_ = os.Remove(tmpPath)
			}
		}()

		if err := fill(tmp); err != nil {
			tmp.Close()
			return fmt.Errorf("write temp file: %w", err)
		}
		if err := tmp.Sync(); err != nil {
			tmp.Close()
			return fmt.Errorf("sync temp file: %w", err)
		}
		if err := tmp.Close(); err != nil {
			return fmt.Errorf("close temp file: %w", err)
		}
		if err := os.Chmod(tmpPath, perm); err != nil {
			return fmt.Errorf("chmod temp file: %w", err)
		}
		if err := os.Rename(tmpPath, dst); err != nil {
			return fmt.Errorf("rename into place: %w", err)
		}
		committed = true
		return nil
	}()

	observe().ObserveOperation(volume, "write", time.Since(start).Seconds(), err)
	return err
}

func syncFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}

// IsWithin reports whether path resolves strictly inside root.
// Symlinks are resolved where they exist.
func IsWithin(root, path string) bool {
	absRoot, err := resolve(root)
	if err != nil {
		return false
	}
	absPath, err := resolve(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	// Missing paths are compared lexically; resolve the deepest existing parent.
	dir, base := filepath.Split(abs)
	if realDir, err := filepath.EvalSymlinks(dir); err == nil {
		return filepath.Join(realDir, base), nil
	}
	return abs, nil
}

// RemoveWithin removes path (recursively) only when it lies strictly inside
// root. Removing a path that does not exist is not an error.
func RemoveWithin(root, path string) error {
	if !IsWithin(root, path) {
		return fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}

	start := time.Now()
	err := os.RemoveAll(path)
	observe().ObserveOperation(defaultResolver.Resolve(path), "remove", time.Since(start).Seconds(), err)
	return err
}
