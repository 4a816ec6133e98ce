package executable

import (
	"io"
	"sync"

	"github.com/codecrafters-io/procstream/executable/blocking_pool"
	"github.com/codecrafters-io/procstream/logger"
)

// mailboxSize bounds how many messages may queue for a worker while it is
// blocked in I/O. Senders wait once it is full.
const mailboxSize = 16

// worker holds what Source and Sink have in common: a mailbox, a stop signal,
// a termination signal and the one stream the worker owns.
type worker struct {
	stream   StreamType
	consumer chan<- Message
	pool     *blocking_pool.Pool
	logger   *logger.Logger

	mailbox    chan Message
	quit       chan struct{}
	terminated chan struct{}

	closer    io.Closer
	closeOnce sync.Once
	startOnce sync.Once
	stopOnce  sync.Once
}

func (w *worker) init(stream StreamType, closer io.Closer, consumer chan<- Message, pool *blocking_pool.Pool, log *logger.Logger) {
	w.stream = stream
	w.consumer = consumer
	w.pool = pool
	w.logger = log.Named(string(stream))
	w.mailbox = make(chan Message, mailboxSize)
	w.quit = make(chan struct{})
	w.terminated = make(chan struct{})
	w.closer = closer
}

// Stream returns the stream this worker is bound to.
func (w *worker) Stream() StreamType {
	return w.stream
}

// Terminated is closed once the worker has stopped and closed its stream.
func (w *worker) Terminated() <-chan struct{} {
	return w.terminated
}

// Send delivers msg to the worker's mailbox. It reports false, dropping the
// message, if the worker has already terminated.
func (w *worker) Send(msg Message) bool {
	select {
	case <-w.terminated:
		w.logger.Debugf("dropping %T, worker has terminated", msg)
		return false
	default:
	}

	select {
	case w.mailbox <- msg:
		return true
	case <-w.terminated:
		w.logger.Debugf("dropping %T, worker has terminated", msg)
		return false
	}
}

func (w *worker) start(loop func()) {
	w.startOnce.Do(func() {
		go loop()
	})
}

// stop tells the worker to stop without waiting for it. From then on it sends
// nothing more.
func (w *worker) stop() {
	w.stopOnce.Do(func() {
		close(w.quit)
	})
}

// shutdown stops the worker and waits for it. A worker that was never started
// just closes its stream.
func (w *worker) shutdown() {
	w.stop()

	w.startOnce.Do(func() {
		w.closeStream()
		close(w.terminated)
	})

	<-w.terminated
}

func (w *worker) closeStream() {
	w.closeOnce.Do(func() {
		if err := w.closer.Close(); err != nil {
			w.logger.Debugf("closing %s: %s", w.stream, err)
		}
	})
}

// emit sends msg to target, giving up if the worker is told to stop.
func (w *worker) emit(target chan<- Message, msg Message) bool {
	// a ready target must not win against an earlier stop
	select {
	case <-w.quit:
		return false
	default:
	}

	select {
	case target <- msg:
		return true
	case <-w.quit:
		return false
	}
}
