package stdio_handler

import (
	"io"
	"os/exec"
)

// StdioHandler creates the three stream pairs for a child process and hands
// the parent's ends to whoever will own them.
//
// Ownership: after a successful start the parent ends belong to the stream
// workers, which close them. CloseParentStreams releases whatever is left: all
// of it when start fails, and the PTY stdin master, which outlives its
// worker, once the process is gone.
type StdioHandler interface {
	// Stdin returns stdin on the parent's end
	Stdin() io.WriteCloser

	// Stdout returns stdout on the parent's end
	Stdout() io.ReadCloser

	// Stderr returns stderr on the parent's end
	Stderr() io.ReadCloser

	// SetupStreams sets up child process' stdio streams
	SetupStreams(cmd *exec.Cmd) error

	// CloseChildStreams closes the FDs duplicated for child (called after cmd.Start())
	CloseChildStreams() error

	// CloseParentStreams closes the FDs on the parent's end
	CloseParentStreams() error
}

// New returns a pipe based handler, or a PTY based one if usePTY is set.
func New(usePTY bool) StdioHandler {
	if usePTY {
		return &PtyTrioStdioHandler{}
	}

	return &PipeTrioStdioHandler{}
}
