package executable

import (
	"errors"
	"io"
	"syscall"

	"github.com/codecrafters-io/procstream/executable/blocking_pool"
	"github.com/codecrafters-io/procstream/logger"
)

// DefaultBufferSize is the read buffer capacity of a Source.
const DefaultBufferSize = 1024

// Source reads one of the child's output streams and forwards what it reads
// to the consumer, one Chunk per Ack.
//
// A Source reads once as soon as it starts. After that it reads exactly once
// per Ack, so at most one Chunk is ever waiting on the consumer. When the
// stream ends it sends Done and terminates.
type Source struct {
	worker

	reader io.Reader
	buffer []byte
}

type readResult struct {
	n   int
	err error
}

func newSource(stream StreamType, reader io.ReadCloser, bufferSize int, consumer chan<- Message, pool *blocking_pool.Pool, log *logger.Logger) *Source {
	if bufferSize <= 0 {
		panic("procstream internal error - source buffer size must be positive")
	}

	s := &Source{
		reader: reader,
		buffer: make([]byte, bufferSize),
	}
	s.worker.init(stream, reader, consumer, pool, log)

	return s
}

// Ack asks the Source for its next chunk.
func (s *Source) Ack() bool {
	return s.Send(Ack{Stream: s.stream})
}

func (s *Source) start() {
	s.worker.start(s.loop)
}

func (s *Source) loop() {
	defer close(s.terminated)
	defer s.closeStream()

	results := make(chan readResult, 1)

	// an error returned alongside data is reported on the Ack after that data
	var pendingErr error

	reading := true
	s.read(results)

	for {
		// Acks wait in the mailbox while a read is in flight
		var mailbox <-chan Message
		if !reading {
			mailbox = s.mailbox
		}

		select {
		case <-s.quit:
			return

		case result := <-results:
			reading = false

			if result.n > 0 {
				chunk := make([]byte, result.n)
				copy(chunk, s.buffer[:result.n])

				if !s.emit(s.consumer, Chunk{Stream: s.stream, Data: chunk}) {
					return
				}

				pendingErr = result.err
				continue
			}

			if result.err != nil {
				s.finish(result.err)
				return
			}

			// empty read, nothing to forward
			reading = true
			s.read(results)

		case msg := <-mailbox:
			if _, ok := msg.(Ack); !ok {
				s.logger.Debugf("ignoring unexpected %T", msg)
				continue
			}

			if pendingErr != nil {
				s.finish(pendingErr)
				return
			}

			reading = true
			s.read(results)
		}
	}
}

func (s *Source) read(results chan<- readResult) {
	s.pool.Submit(func() {
		n, err := s.reader.Read(s.buffer)
		results <- readResult{n: n, err: err}
	})
}

func (s *Source) finish(err error) {
	err = s.streamEndError(err)

	if err != nil {
		s.logger.Debugf("stream ended with error: %s", err)
	} else {
		s.logger.Debugf("stream ended")
	}

	s.emit(s.consumer, Done{Stream: s.stream, Err: err})
}

// streamEndError returns nil for errors that only mean "no more data".
func (s *Source) streamEndError(err error) error {
	if errors.Is(err, io.EOF) {
		return nil
	}

	// In linux, if the source is a terminal device, read(2) results in EIO when the child process has exited and closed its slave end
	// (Source: The Linux Programming Interface Appendix F - 64.1)
	if isTTY(s.reader) && errors.Is(err, syscall.EIO) {
		return nil
	}

	return err
}
