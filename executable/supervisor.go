package executable

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"time"

	"github.com/codecrafters-io/procstream/executable/arg_quoter"
	"github.com/codecrafters-io/procstream/executable/blocking_pool"
	"github.com/codecrafters-io/procstream/executable/stdio_handler"
	"github.com/codecrafters-io/procstream/logger"
	"github.com/google/uuid"
)

// DefaultKillGracePeriod is how long a process gets to exit after SIGTERM
// before it is sent SIGKILL.
const DefaultKillGracePeriod = 2 * time.Second

var (
	ErrNoArgs     = errors.New("no command given")
	ErrNoConsumer = errors.New("no consumer given")
)

// Options configure a Supervisor.
type Options struct {
	// Args is the command and its arguments.
	Args []string

	// Env is merged into (not substituted for) the inherited environment.
	Env map[string]string

	// Consumer receives Started, Chunk, Ack, Done and ExitCode messages.
	Consumer chan<- Message

	// Detached processes are never waited for and never destroyed. No
	// ExitCode is sent for them.
	Detached bool

	// Dispatcher names the blocking pool used for reads, writes and waits.
	// Empty selects blocking_pool.DefaultPoolName. A supervisor holds up to
	// three slots at once (two reads and a write or wait). Supervisors sharing
	// a bounded pool can fill it with reads that only finish once another
	// supervisor makes progress, so size bounded pools at three slots per
	// concurrent supervisor.
	Dispatcher string

	// Pools is where Dispatcher is looked up. Nil means blocking_pool.Default().
	Pools *blocking_pool.Registry

	// BufferSize is the read buffer capacity of each Source. Zero means
	// DefaultBufferSize.
	BufferSize int

	// UsePTY connects the child's streams to pseudo-terminals instead of pipes.
	UsePTY bool

	// WorkingDir is the child's working directory. Empty means ours. A
	// relative command path such as "./run.sh" is looked up in it; bare names
	// are still searched for on PATH.
	WorkingDir string

	// KillGracePeriod is the SIGTERM to SIGKILL delay on teardown. Zero means
	// DefaultKillGracePeriod, negative means SIGKILL straight away.
	KillGracePeriod time.Duration

	Logger *logger.Logger
}

// Supervisor owns a child process and the three workers bound to its
// standard streams.
//
// Once both Sources have terminated, a non-detached Supervisor waits for the
// process to exit, sends ExitCode to the consumer and stops. Stopping (for
// any reason) destroys the process unless it is detached, then stops the
// workers, which close their streams.
type Supervisor struct {
	id              string
	cmd             *exec.Cmd
	detached        bool
	consumer        chan<- Message
	pool            *blocking_pool.Pool
	logger          *logger.Logger
	killGracePeriod time.Duration

	streams stdio_handler.StdioHandler
	stdin   *Sink
	stdout  *Source
	stderr  *Source

	quit       chan struct{}
	stopOnce   sync.Once
	terminated chan struct{}

	waitOnce sync.Once
	exited   chan struct{}
	exitCode int
	waitErr  error
}

// Spawn starts the process described by opts and its supervisor. Either
// everything is running when Spawn returns, or nothing is and an error is
// returned.
func Spawn(opts Options) (*Supervisor, error) {
	if len(opts.Args) == 0 {
		return nil, ErrNoArgs
	}

	if opts.Consumer == nil {
		return nil, ErrNoConsumer
	}

	bufferSize := opts.BufferSize
	if bufferSize == 0 {
		bufferSize = DefaultBufferSize
	}
	if bufferSize < 0 {
		return nil, fmt.Errorf("buffer size must be positive, got %d", bufferSize)
	}

	killGracePeriod := opts.KillGracePeriod
	if killGracePeriod == 0 {
		killGracePeriod = DefaultKillGracePeriod
	}

	pools := opts.Pools
	if pools == nil {
		pools = blocking_pool.Default()
	}

	pool, err := pools.Lookup(opts.Dispatcher)
	if err != nil {
		return nil, err
	}

	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	id := uuid.NewString()[:8]
	log = log.Named("procstream-" + id)

	absolutePath, err := resolveExecutable(opts.Args[0], opts.WorkingDir)
	if err != nil {
		return nil, err
	}

	quoter := arg_quoter.ForCurrentPlatform()

	cmd := exec.Command(absolutePath, opts.Args[1:]...)
	cmd.Dir = opts.WorkingDir
	cmd.Env = mergeEnv(os.Environ(), opts.Env)
	configureCommand(cmd, quoter, opts.Args)

	stdioHandler := stdio_handler.New(opts.UsePTY)
	if err := stdioHandler.SetupStreams(cmd); err != nil {
		return nil, fmt.Errorf("setting up standard streams: %w", err)
	}

	err = cmd.Start()

	// The child holds its own copies now (or never will)
	stdioHandler.CloseChildStreams()

	if err != nil {
		stdioHandler.CloseParentStreams()
		return nil, fmt.Errorf("starting %s: %w", opts.Args[0], err)
	}

	log.Debugf("spawned pid %d: %s", cmd.Process.Pid, quoter.CommandLine(opts.Args))

	s := &Supervisor{
		id:              id,
		cmd:             cmd,
		detached:        opts.Detached,
		consumer:        opts.Consumer,
		pool:            pool,
		logger:          log,
		killGracePeriod: killGracePeriod,
		streams:         stdioHandler,
		quit:            make(chan struct{}),
		terminated:      make(chan struct{}),
		exited:          make(chan struct{}),
	}

	s.stdin = newSink(stdioHandler.Stdin(), opts.Consumer, pool, log)
	s.stdout = newSource(Stdout, stdioHandler.Stdout(), bufferSize, opts.Consumer, pool, log)
	s.stderr = newSource(Stderr, stdioHandler.Stderr(), bufferSize, opts.Consumer, pool, log)

	go s.run()

	return s, nil
}

// ID identifies the supervisor in logs.
func (s *Supervisor) ID() string {
	return s.id
}

func (s *Supervisor) Pid() int {
	return s.cmd.Process.Pid
}

// Process returns the child process. For detached processes the caller is
// responsible for waiting on (and, if needed, killing) it.
func (s *Supervisor) Process() *os.Process {
	return s.cmd.Process
}

func (s *Supervisor) Detached() bool {
	return s.detached
}

// Terminated is closed once the supervisor and all its workers have stopped.
func (s *Supervisor) Terminated() <-chan struct{} {
	return s.terminated
}

// Stop stops the supervisor and waits until teardown is complete. It is safe
// to call more than once and after the supervisor has stopped on its own.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
	})

	<-s.terminated
}

func (s *Supervisor) run() {
	defer close(s.terminated)
	defer s.teardown()

	started := Started{Stdin: s.stdin, Stdout: s.stdout, Stderr: s.stderr}
	if !s.emit(started) {
		return
	}

	s.stdin.start()
	s.stdout.start()
	s.stderr.start()

	openStreamCount := 2
	stdoutTerminated := s.stdout.Terminated()
	stderrTerminated := s.stderr.Terminated()

	for openStreamCount > 0 {
		select {
		case <-s.quit:
			return
		case <-stdoutTerminated:
			stdoutTerminated = nil
			openStreamCount--
		case <-stderrTerminated:
			stderrTerminated = nil
			openStreamCount--
		}
	}

	if s.detached {
		s.logger.Debugf("output exhausted, process is detached")
		<-s.quit
		return
	}

	select {
	case <-s.quit:
		return
	case <-s.awaitExit():
	}

	if s.waitErr != nil {
		s.logger.Errorf("waiting for pid %d: %s", s.Pid(), s.waitErr)
	}

	s.logger.Debugf("exited with code %d", s.exitCode)
	s.emit(ExitCode{Code: s.exitCode})
}

func (s *Supervisor) emit(msg Message) bool {
	select {
	case <-s.quit:
		return false
	default:
	}

	select {
	case s.consumer <- msg:
		return true
	case <-s.quit:
		return false
	}
}

// awaitExit waits for the process on the blocking pool, at most once. The
// returned channel is closed when exitCode and waitErr are set.
func (s *Supervisor) awaitExit() <-chan struct{} {
	s.waitOnce.Do(func() {
		s.pool.Submit(func() {
			err := s.cmd.Wait()
			s.exitCode, s.waitErr = exitCodeFromWait(s.cmd, err)
			close(s.exited)
		})
	})

	return s.exited
}

func (s *Supervisor) teardown() {
	// Workers go quiet first, so that EOF caused by destroying the process is
	// not reported as the end of a stream.
	s.stdin.stop()
	s.stdout.stop()
	s.stderr.stop()

	if !s.detached {
		s.destroyProcess()
	}

	s.stdin.shutdown()
	s.stdout.shutdown()
	s.stderr.shutdown()

	if err := s.streams.CloseParentStreams(); err != nil {
		s.logger.Debugf("closing streams: %s", err)
	}

	s.logger.Debugf("stopped")
}

// destroyProcess terminates the process group, escalating to SIGKILL if the
// process outlives the grace period, and reaps it.
func (s *Supervisor) destroyProcess() {
	exited := s.awaitExit()

	select {
	case <-exited:
		return
	default:
	}

	if s.killGracePeriod > 0 {
		s.logger.Debugf("terminating pid %d", s.Pid())
		terminateProcess(s.cmd.Process)

		select {
		case <-exited:
			return
		case <-time.After(s.killGracePeriod):
			s.logger.Warnf("pid %d failed to exit in %s after receiving sigterm, killing it", s.Pid(), s.killGracePeriod)
		}
	}

	killProcess(s.cmd.Process)
	<-exited
}
