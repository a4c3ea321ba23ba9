package converter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"deckview/internal/logging"
	"deckview/internal/subprocess"
)

// DefaultSofficeBinary is looked up on PATH when no binary is configured.
const DefaultSofficeBinary = "soffice"

// maxReasonLen caps the converter output kept in a failure reason.
const maxReasonLen = 512

// SofficeConverter converts documents with a headless LibreOffice.
//
// Every conversion gets its own user profile inside the job's work
// directory; LibreOffice instances sharing a profile block each other.
type SofficeConverter struct {
	binary string

	processes map[string]*exec.Cmd
	processMu sync.Mutex
}

// NewSofficeConverter creates a converter using binary, or soffice on PATH.
func NewSofficeConverter(binary string) *SofficeConverter {
	if binary == "" {
		binary = DefaultSofficeBinary
	}
	return &SofficeConverter{
		binary:    binary,
		processes: make(map[string]*exec.Cmd),
	}
}

// Convert runs LibreOffice on sourcePath and returns the produced PDF path.
func (s *SofficeConverter) Convert(ctx context.Context, sourcePath, outDir string) (string, error) {
	profile, err := filepath.Abs(filepath.Join(outDir, "profile"))
	if err != nil {
		return "", fmt.Errorf("resolve profile dir: %w", err)
	}

	args := []string{
		"--headless",
		"--invisible",
		"--nologo",
		"--nodefault",
		"--nolockcheck",
		"--norestore",
		"-env:UserInstallation=file://" + filepath.ToSlash(profile),
		"--convert-to", "pdf",
		"--outdir", outDir,
		sourcePath,
	}

	// soffice forks soffice.bin; a timeout must take down both.
	cmd := exec.CommandContext(ctx, s.binary, args...)
	subprocess.Configure(cmd)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("%w: failed to start %s: %v", ErrConverterUnavailable, s.binary, err)
	}

	s.processMu.Lock()
	s.processes[sourcePath] = cmd
	s.processMu.Unlock()

	defer func() {
		s.processMu.Lock()
		delete(s.processes, sourcePath)
		s.processMu.Unlock()
	}()

	err = cmd.Wait()
	// Reap anything the launcher left behind.
	_ = subprocess.Kill(cmd)
	if errors.Is(err, exec.ErrWaitDelay) {
		logging.Debug("soffice for %s left its output open after exiting", sourcePath)
		err = nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logging.Debug("soffice output for %s: %s", sourcePath, output.String())
		return "", fmt.Errorf("converter exited: %s", summarize(output.String(), err))
	}

	stem := strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath))
	pdfPath := filepath.Join(outDir, stem+".pdf")
	info, err := os.Stat(pdfPath)
	if err != nil || info.Size() == 0 {
		return "", fmt.Errorf("converter exited: no output produced: %s", summarize(output.String(), errors.New("empty output")))
	}

	return pdfPath, nil
}

// summarize returns the trimmed tool output, or err when there was none.
func summarize(out string, err error) string {
	out = strings.TrimSpace(out)
	if out == "" {
		return err.Error()
	}
	if len(out) > maxReasonLen {
		out = out[len(out)-maxReasonLen:]
	}
	return out
}

// CheckInstalled runs "soffice --version" and returns its first line.
func (s *SofficeConverter) CheckInstalled(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	out, err := exec.CommandContext(ctx, s.binary, "--version").Output()
	if err != nil {
		return "", fmt.Errorf("%w: %s --version: %v", ErrConverterUnavailable, s.binary, err)
	}
	version, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return version, nil
}

// Cleanup kills the process groups of all active conversions.
func (s *SofficeConverter) Cleanup() {
	s.processMu.Lock()
	defer s.processMu.Unlock()

	for path, cmd := range s.processes {
		if cmd.Process != nil {
			logging.Info("Killing conversion process for: %s", path)
			if err := subprocess.Kill(cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
				logging.Warn("failed to kill conversion process for %s: %v", path, err)
			}
		}
	}
}
