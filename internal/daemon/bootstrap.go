package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// StartDaemon spawns binaryPath with args as a detached process.
// The daemon runs in its own session and outlives the caller.
func StartDaemon(binaryPath string, args ...string) (int, error) {
	if binaryPath == "" {
		executable, err := os.Executable()
		if err != nil {
			return 0, fmt.Errorf("resolve executable: %w", err)
		}
		binaryPath = executable
	}

	cmd := exec.Command(binaryPath, args...)

	// Detach from parent process
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // Create new session (detach from terminal)
	}

	// No stdin/stdout/stderr - fully detached
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start daemon %s: %w", binaryPath, err)
	}
	pid := cmd.Process.Pid

	// The child is reparented; nothing waits on it here.
	if err := cmd.Process.Release(); err != nil {
		return pid, fmt.Errorf("release daemon process: %w", err)
	}
	return pid, nil
}
