package subprocess

import (
	"os/exec"
	"time"
)

// DefaultWaitDelay is how long Wait keeps reading output after the process
// was killed or exited before closing the pipes itself.
const DefaultWaitDelay = 2 * time.Second

// Configure puts cmd in a new process group and makes context cancellation
// kill the whole group. cmd must not have been started.
func Configure(cmd *exec.Cmd) {
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return Kill(cmd) }
	cmd.WaitDelay = DefaultWaitDelay
}

// Kill sends SIGKILL to the process group of a started cmd. It is a no-op
// for commands that never started or whose group is already gone.
func Kill(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	return killProcessGroup(cmd)
}
