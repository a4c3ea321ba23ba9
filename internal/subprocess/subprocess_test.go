//go:build unix

package subprocess

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"testing"
	"time"
)

func TestConfigureKillsBackgroundChildren(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// The background sleep inherits stdout; without a group kill Wait blocks
	// on the pipe until DefaultWaitDelay.
	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", "sleep 8 & sleep 8")
	var out writerFunc = func(p []byte) (int, error) { return len(p), nil }
	cmd.Stdout = out
	cmd.Stderr = out
	Configure(cmd)

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected the command to be killed")
	}
	if elapsed >= DefaultWaitDelay {
		t.Errorf("Run returned after %v, want well under %v", elapsed, DefaultWaitDelay)
	}
}

func TestKill(t *testing.T) {
	cmd := exec.Command("/bin/sh", "-c", "sleep 8 & sleep 8")
	if err := Kill(cmd); err != nil {
		t.Errorf("Kill before Start = %v, want nil", err)
	}

	Configure(cmd)
	if err := cmd.Start(); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	if err := Kill(cmd); err != nil {
		t.Fatalf("Kill() error = %v", err)
	}
	select {
	case <-done:
	case <-time.After(DefaultWaitDelay):
		t.Fatal("process group survived Kill")
	}

	if err := Kill(cmd); err != nil && !errors.Is(err, os.ErrProcessDone) {
		t.Errorf("second Kill() = %v", err)
	}
}

type writerFunc func([]byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }
