package executable

// StreamType names one of the child's standard streams.
type StreamType string

const (
	Stdin  StreamType = "stdin"
	Stdout StreamType = "stdout"
	Stderr StreamType = "stderr"
)

// Message is the vocabulary exchanged between a Supervisor, its stream
// workers and the consumer. The set is closed: Started, Chunk, Ack, Done and
// ExitCode.
type Message interface {
	isMessage()
}

// Started is sent to the consumer once, before any other message.
type Started struct {
	Stdin  *Sink
	Stdout *Source
	Stderr *Source
}

// Chunk carries bytes read from Stdout/Stderr, or bytes to be written to
// Stdin. Chunks produced by a Source are never reused by it.
type Chunk struct {
	Stream StreamType
	Data   []byte

	// ReplyTo receives the Sink's Ack for this chunk. Nil means the
	// supervisor's consumer.
	ReplyTo chan<- Message
}

// Ack asks a Source for its next chunk, or reports that the Sink has
// finished writing a chunk.
type Ack struct {
	Stream StreamType
}

// Done reports the end of a stream to the consumer, or asks the Sink to close
// stdin. Err is nil when a stream ended with a clean EOF.
type Done struct {
	Stream StreamType
	Err    error
}

// ExitCode is the last message a non-detached Supervisor sends.
type ExitCode struct {
	Code int
}

func (Started) isMessage()  {}
func (Chunk) isMessage()    {}
func (Ack) isMessage()      {}
func (Done) isMessage()     {}
func (ExitCode) isMessage() {}
