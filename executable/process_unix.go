//go:build !windows

package executable

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/codecrafters-io/procstream/executable/arg_quoter"
)

// configureCommand puts the child in its own process group so that the whole
// group can be signalled on teardown. argv is passed to the kernel as is, the
// quoter is a no-op here.
func configureCommand(cmd *exec.Cmd, _ arg_quoter.Quoter, _ []string) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func isExecutableFile(fileInfo os.FileInfo) bool {
	return !fileInfo.IsDir() && fileInfo.Mode().Perm()&0111 != 0
}

func terminateProcess(process *os.Process) {
	syscall.Kill(process.Pid, syscall.SIGTERM)
	syscall.Kill(-process.Pid, syscall.SIGTERM) // Kill the whole process group
}

func killProcess(process *os.Process) {
	syscall.Kill(process.Pid, syscall.SIGKILL)
	syscall.Kill(-process.Pid, syscall.SIGKILL) // Kill the whole process group
}
