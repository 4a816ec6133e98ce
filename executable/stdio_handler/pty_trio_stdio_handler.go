//go:build !windows

package stdio_handler

import (
	"io"
	"os"
	"os/exec"
	"sync"

	"github.com/creack/pty"
)

// PtyTrioStdioHandler deals with PTY based i/o
//
// Three separate PTY pairs are used so that stdout and stderr stay
// distinguishable and input written to stdin is not reflected on stdout.
type PtyTrioStdioHandler struct {
	stdoutMaster, stdoutSlave *os.File
	stderrMaster, stderrSlave *os.File
	stdinMaster, stdinSlave   *os.File

	stdin *ptyStdin
}

// Stdin returns the stdin master. Closing it only ends the child's input, the
// master fd itself is released by CloseParentStreams.
func (h *PtyTrioStdioHandler) Stdin() io.WriteCloser {
	return h.stdin
}

func (h *PtyTrioStdioHandler) Stdout() io.ReadCloser {
	return h.stdoutMaster
}

func (h *PtyTrioStdioHandler) Stderr() io.ReadCloser {
	return h.stderrMaster
}

func (h *PtyTrioStdioHandler) SetupStreams(cmd *exec.Cmd) error {
	if err := h.openAll(); err != nil {
		return err
	}

	// Assign slave end of PTYs to the child process
	cmd.Stdin = h.stdinSlave
	cmd.Stdout = h.stdoutSlave
	cmd.Stderr = h.stderrSlave

	return nil
}

func (h *PtyTrioStdioHandler) CloseChildStreams() error {
	// Close slave ends - child process now owns them
	return h.closeSlaves()
}

func (h *PtyTrioStdioHandler) CloseParentStreams() error {
	return h.closeMasters()
}

// openAll attempts to open all three PTY pairs.
// Returns an error if any PTY fails to open, and automatically cleans up any successfully opened PTYs.
func (h *PtyTrioStdioHandler) openAll() error {
	var err error

	h.stdinMaster, h.stdinSlave, err = pty.Open()
	if err != nil {
		return err
	}

	h.stdoutMaster, h.stdoutSlave, err = pty.Open()
	if err != nil {
		h.closeAll()
		return err
	}

	h.stderrMaster, h.stderrSlave, err = pty.Open()
	if err != nil {
		h.closeAll()
		return err
	}

	h.stdin = &ptyStdin{master: h.stdinMaster}

	return nil
}

// closeAll closes all PTY file descriptors.
func (h *PtyTrioStdioHandler) closeAll() error {
	var firstError error

	// best effort
	if closeMasterError := h.closeMasters(); closeMasterError != nil {
		firstError = closeMasterError
	}

	if closeSlaveError := h.closeSlaves(); closeSlaveError != nil && firstError == nil {
		firstError = closeSlaveError
	}

	return firstError
}

func (h *PtyTrioStdioHandler) closeSlaves() error {
	return closeEach(h.stdinSlave, h.stdoutSlave, h.stderrSlave)
}

func (h *PtyTrioStdioHandler) closeMasters() error {
	return closeEach(h.stdinMaster, h.stdoutMaster, h.stderrMaster)
}

// ptyStdin turns Close into end-of-input for a child reading a terminal.
//
// The master must stay open after that: closing it hangs up the terminal and
// discards whatever the child has not read yet, including the line the first
// ^D flushes.
type ptyStdin struct {
	master *os.File

	mu     sync.Mutex
	closed bool
}

func (p *ptyStdin) Write(data []byte) (int, error) {
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()

	if closed {
		return 0, os.ErrClosed
	}

	return p.master.Write(data)
}

func (p *ptyStdin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	// The first ^D flushes a pending partial line, the second one is read as EOF
	_, err := p.master.Write([]byte{4, 4})
	return err
}
