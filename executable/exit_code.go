package executable

import (
	"errors"
	"os/exec"
	"syscall"
)

// exitCodeFromWait turns the result of cmd.Wait into an exit code. A process
// killed by a signal reports 128 + the signal number, as shells do. Only
// failures of Wait itself are returned as errors.
func exitCodeFromWait(cmd *exec.Cmd, err error) (int, error) {
	if cmd.ProcessState == nil {
		return -1, err
	}

	exitCode := cmd.ProcessState.ExitCode()

	if exitCode == -1 {
		if status, ok := cmd.ProcessState.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			exitCode = 128 + int(status.Signal())
		}
	}

	var exitError *exec.ExitError
	if err != nil && !errors.As(err, &exitError) {
		return exitCode, err
	}

	return exitCode, nil
}
