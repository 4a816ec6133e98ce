package stdio_handler

import (
	"io"
	"os"
	"os/exec"
)

// PipeTrioStdioHandler deals with pipe based i/o
//
// The pipes are created with os.Pipe rather than cmd.StdoutPipe() and friends:
// exec.Cmd closes pipes it created itself as soon as Wait returns, and here the
// parent ends must stay with the stream workers until they close them.
type PipeTrioStdioHandler struct {
	stdinReader, stdinWriter   *os.File
	stdoutReader, stdoutWriter *os.File
	stderrReader, stderrWriter *os.File
}

func (h *PipeTrioStdioHandler) Stdin() io.WriteCloser {
	return h.stdinWriter
}

func (h *PipeTrioStdioHandler) Stdout() io.ReadCloser {
	return h.stdoutReader
}

func (h *PipeTrioStdioHandler) Stderr() io.ReadCloser {
	return h.stderrReader
}

func (h *PipeTrioStdioHandler) SetupStreams(cmd *exec.Cmd) error {
	var err error

	if h.stdinReader, h.stdinWriter, err = os.Pipe(); err != nil {
		return err
	}

	if h.stdoutReader, h.stdoutWriter, err = os.Pipe(); err != nil {
		h.closeAll()
		return err
	}

	if h.stderrReader, h.stderrWriter, err = os.Pipe(); err != nil {
		h.closeAll()
		return err
	}

	// *os.File values are handed to the child directly, no copying goroutines
	cmd.Stdin = h.stdinReader
	cmd.Stdout = h.stdoutWriter
	cmd.Stderr = h.stderrWriter

	return nil
}

func (h *PipeTrioStdioHandler) CloseChildStreams() error {
	return closeEach(h.stdinReader, h.stdoutWriter, h.stderrWriter)
}

func (h *PipeTrioStdioHandler) CloseParentStreams() error {
	return closeEach(h.stdinWriter, h.stdoutReader, h.stderrReader)
}

func (h *PipeTrioStdioHandler) closeAll() error {
	var firstError error

	if err := h.CloseParentStreams(); err != nil {
		firstError = err
	}

	if err := h.CloseChildStreams(); err != nil && firstError == nil {
		firstError = err
	}

	return firstError
}
