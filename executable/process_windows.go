package executable

import (
	"os"
	"os/exec"
	"syscall"

	"github.com/codecrafters-io/procstream/executable/arg_quoter"
)

// configureCommand hands the child a command line built by the quoter. With
// CmdLine set, exec does no quoting of its own.
func configureCommand(cmd *exec.Cmd, quoter arg_quoter.Quoter, args []string) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CmdLine: quoter.CommandLine(args)}
}

func isExecutableFile(fileInfo os.FileInfo) bool {
	return !fileInfo.IsDir()
}

// Windows has no SIGTERM to offer, both paths end in TerminateProcess.
func terminateProcess(process *os.Process) {
	process.Kill()
}

func killProcess(process *os.Process) {
	process.Kill()
}
