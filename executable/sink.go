package executable

import (
	"io"

	"github.com/codecrafters-io/procstream/executable/blocking_pool"
	"github.com/codecrafters-io/procstream/logger"
)

// Sink writes chunks to the child's stdin, acknowledging each one once it has
// been written in full. Callers must wait for the Ack before sending the next
// chunk. Sending Done closes stdin.
type Sink struct {
	worker

	writer io.Writer
}

func newSink(writer io.WriteCloser, consumer chan<- Message, pool *blocking_pool.Pool, log *logger.Logger) *Sink {
	s := &Sink{writer: writer}
	s.worker.init(Stdin, writer, consumer, pool, log)
	return s
}

// Write queues data for the child's stdin. The Ack goes to replyTo, or to the
// consumer when replyTo is nil.
func (s *Sink) Write(data []byte, replyTo chan<- Message) bool {
	return s.Send(Chunk{Stream: Stdin, Data: data, ReplyTo: replyTo})
}

// Close asks the Sink to close stdin.
func (s *Sink) Close() bool {
	return s.Send(Done{Stream: Stdin})
}

func (s *Sink) start() {
	s.worker.start(s.loop)
}

func (s *Sink) loop() {
	defer close(s.terminated)
	defer s.closeStream()

	results := make(chan error, 1)

	var replyTo chan<- Message
	writing := false

	for {
		var mailbox <-chan Message
		if !writing {
			mailbox = s.mailbox
		}

		select {
		case <-s.quit:
			return

		case err := <-results:
			writing = false

			if err != nil {
				s.logger.Debugf("write failed: %s", err)
				s.emit(replyTo, Done{Stream: Stdin, Err: err})
				return
			}

			if !s.emit(replyTo, Ack{Stream: Stdin}) {
				return
			}

		case msg := <-mailbox:
			switch msg := msg.(type) {
			case Chunk:
				replyTo = msg.ReplyTo
				if replyTo == nil {
					replyTo = s.consumer
				}

				writing = true
				s.write(msg.Data, results)

			case Done:
				s.logger.Debugf("closing stdin")
				return

			default:
				s.logger.Debugf("ignoring unexpected %T", msg)
			}
		}
	}
}

func (s *Sink) write(data []byte, results chan<- error) {
	s.pool.Submit(func() {
		// os.File writes everything or fails
		_, err := s.writer.Write(data)
		results <- err
	})
}
