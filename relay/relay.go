// Package relay connects a supervised process to ordinary readers and
// writers: it feeds stdin through the Sink one acknowledged chunk at a time,
// copies every output chunk to a writer before acknowledging it and reports
// the exit code.
package relay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/codecrafters-io/procstream/executable"
	"github.com/codecrafters-io/procstream/logger"
)

type Result struct {
	ExitCode int

	// Detached is set when the process was started detached. ExitCode is
	// meaningless then, and Process must be waited on by the caller.
	Detached bool

	Pid     int
	Process *os.Process
}

// Run spawns the process described by opts and relays its streams until it
// exits (or, if detached, until both its output streams end). opts.Consumer is
// replaced. A nil stdin closes the child's stdin straight away.
//
// When ctx is done first the process is destroyed and ctx.Err() is returned.
func Run(ctx context.Context, opts executable.Options, stdin io.Reader, stdout, stderr io.Writer) (Result, error) {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
		opts.Logger = log
	}

	consumer := make(chan executable.Message, 16)
	opts.Consumer = consumer

	supervisor, err := executable.Spawn(opts)
	if err != nil {
		return Result{}, err
	}
	defer supervisor.Stop()

	result := Result{
		Detached: supervisor.Detached(),
		Pid:      supervisor.Pid(),
		Process:  supervisor.Process(),
	}

	var started executable.Started
	select {
	case msg := <-consumer:
		var ok bool
		if started, ok = msg.(executable.Started); !ok {
			panic(fmt.Sprintf("procstream internal error - expected Started, got %T", msg))
		}
	case <-ctx.Done():
		return result, ctx.Err()
	}

	bufferSize := opts.BufferSize
	if bufferSize <= 0 {
		bufferSize = executable.DefaultBufferSize
	}

	go pumpStdin(ctx, started.Stdin, stdin, bufferSize, log)

	outputs := map[executable.StreamType]io.Writer{
		executable.Stdout: stdout,
		executable.Stderr: stderr,
	}
	sources := map[executable.StreamType]*executable.Source{
		executable.Stdout: started.Stdout,
		executable.Stderr: started.Stderr,
	}

	openStreamCount := 2

	for {
		select {
		case <-ctx.Done():
			log.Debugf("giving up on pid %d: %s", result.Pid, ctx.Err())
			return result, ctx.Err()

		case msg := <-consumer:
			switch msg := msg.(type) {
			case executable.Chunk:
				if err := write(outputs[msg.Stream], msg.Data); err != nil {
					return result, fmt.Errorf("writing %s: %w", msg.Stream, err)
				}
				sources[msg.Stream].Ack()

			case executable.Done:
				if msg.Err != nil {
					log.Warnf("%s ended with an error: %s", msg.Stream, msg.Err)
				}

				openStreamCount--
				if openStreamCount == 0 && result.Detached {
					return result, nil
				}

			case executable.ExitCode:
				result.ExitCode = msg.Code
				return result, nil

			case executable.Ack:
				// stdin acks go to the pump
			}
		}
	}
}

func write(w io.Writer, data []byte) error {
	if w == nil {
		return nil
	}

	_, err := w.Write(data)
	return err
}

// pumpStdin copies stdin into the Sink, waiting for each chunk's Ack before
// reading the next. It closes the Sink once stdin is exhausted. A read that
// never returns keeps this goroutine around, not the process.
func pumpStdin(ctx context.Context, sink *executable.Sink, stdin io.Reader, bufferSize int, log *logger.Logger) {
	if stdin == nil {
		sink.Close()
		return
	}

	replies := make(chan executable.Message, 1)
	buffer := make([]byte, bufferSize)

	for {
		n, err := stdin.Read(buffer)

		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buffer[:n])

			if !sink.Write(chunk, replies) {
				return
			}

			select {
			case msg := <-replies:
				if done, ok := msg.(executable.Done); ok {
					log.Debugf("child stopped accepting stdin: %s", done.Err)
					return
				}
			case <-sink.Terminated():
				return
			case <-ctx.Done():
				return
			}
		}

		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Warnf("reading stdin: %s", err)
			}

			sink.Close()
			return
		}
	}
}
