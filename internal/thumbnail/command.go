package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"deckview/internal/logging"
	"deckview/internal/subprocess"
)

// DefaultPdftoppmBinary is looked up on PATH when no binary is configured.
const DefaultPdftoppmBinary = "pdftoppm"

// CommandRasterizer renders PDF pages with poppler's pdftoppm.
type CommandRasterizer struct {
	binary string

	processes map[string]*exec.Cmd
	processMu sync.Mutex
}

// NewCommandRasterizer creates a rasterizer using binary, or pdftoppm on PATH.
func NewCommandRasterizer(binary string) *CommandRasterizer {
	if binary == "" {
		binary = DefaultPdftoppmBinary
	}
	return &CommandRasterizer{
		binary:    binary,
		processes: make(map[string]*exec.Cmd),
	}
}

// Name identifies the rasterizer in metrics and health output.
func (c *CommandRasterizer) Name() string {
	return "pdftoppm"
}

// RenderPage renders page (1-based) of pdfPath scaled to width and returns
// it as PNG.
func (c *CommandRasterizer) RenderPage(ctx context.Context, pdfPath string, page, width int) ([]byte, error) {
	p := strconv.Itoa(page)
	args := []string{
		"-f", p, "-l", p,
		"-singlefile",
		"-png",
		"-scale-to-x", strconv.Itoa(width),
		"-scale-to-y", "-1",
		pdfPath,
	}

	cmd := exec.CommandContext(ctx, c.binary, args...)
	subprocess.Configure(cmd)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", c.binary, err)
	}

	id := pdfPath + "#" + p
	c.processMu.Lock()
	c.processes[id] = cmd
	c.processMu.Unlock()

	defer func() {
		c.processMu.Lock()
		delete(c.processes, id)
		c.processMu.Unlock()
	}()

	if err := cmd.Wait(); err != nil && !errors.Is(err, exec.ErrWaitDelay) {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("pdftoppm exited: %s", msg)
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("pdftoppm produced no output for page %d", page)
	}
	return stdout.Bytes(), nil
}

// CheckInstalled runs "pdftoppm -v" and returns the version line.
func (c *CommandRasterizer) CheckInstalled(ctx context.Context) (string, error) {
	// pdftoppm prints its version on stderr.
	out, err := exec.CommandContext(ctx, c.binary, "-v").CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s -v: %w", c.binary, err)
	}
	version, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return version, nil
}

// Cleanup stops all active render processes.
func (c *CommandRasterizer) Cleanup() {
	c.processMu.Lock()
	defer c.processMu.Unlock()

	for id, cmd := range c.processes {
		if cmd.Process != nil {
			logging.Info("Killing render process for: %s", id)
			if err := subprocess.Kill(cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
				logging.Warn("failed to kill render process for %s: %v", id, err)
			}
		}
	}
}
