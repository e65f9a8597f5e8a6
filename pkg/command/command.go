// pkg/command/command.go - helpers for invoking external platform tools.
//
// Every substantive image operation (servicing, registry edits, ISO
// authoring) is delegated to an external tool. These helpers run those tools
// with captured output, hidden console windows, and a per-invocation timeout.

package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"syscall"
	"time"
)

// ErrTimedOut reports that the external tool was killed after exceeding its
// allotted run time.
var ErrTimedOut = errors.New("external tool timed out")

// Run executes a command and its arguments, returning combined stdout.
func Run(command string, arguments ...string) (string, error) {
	return RunContext(context.Background(), command, arguments...)
}

// RunContext executes a command under the given context.
func RunContext(ctx context.Context, command string, arguments ...string) (string, error) {
	cmd := exec.CommandContext(ctx, command, arguments...)

	// Hide window on Windows
	if runtime.GOOS == "windows" {
		cmd.SysProcAttr = &syscall.SysProcAttr{
			HideWindow: true,
		}
	}

	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return out.String(), fmt.Errorf("%w: %s", ErrTimedOut, command)
		}
		// Capture BOTH error (which has exit status) and stderr
		combinedErr := fmt.Errorf("command execution failed: %w | stderr: %s", err, stderr.String())
		return out.String(), combinedErr
	}
	return out.String(), nil
}

// RunTimeout executes a command with an upper bound on its run time.
// A timeout of zero means no limit.
func RunTimeout(timeout time.Duration, command string, arguments ...string) (string, error) {
	if timeout <= 0 {
		return Run(command, arguments...)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return RunContext(ctx, command, arguments...)
}

// ExitCode extracts the process exit code from a Run error, or -1 when the
// process never ran.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
