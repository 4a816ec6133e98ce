package stdio_handler

import (
	"errors"
	"io"
	"os/exec"
)

var errPtyUnsupported = errors.New("pty stdio is not supported on windows")

// PtyTrioStdioHandler is unavailable on Windows; SetupStreams always fails.
type PtyTrioStdioHandler struct{}

func (h *PtyTrioStdioHandler) Stdin() io.WriteCloser { return nil }

func (h *PtyTrioStdioHandler) Stdout() io.ReadCloser { return nil }

func (h *PtyTrioStdioHandler) Stderr() io.ReadCloser { return nil }

func (h *PtyTrioStdioHandler) SetupStreams(cmd *exec.Cmd) error {
	return errPtyUnsupported
}

func (h *PtyTrioStdioHandler) CloseChildStreams() error { return nil }

func (h *PtyTrioStdioHandler) CloseParentStreams() error { return nil }
