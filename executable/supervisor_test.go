//go:build !windows

package executable

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/codecrafters-io/procstream/executable/blocking_pool"
	"github.com/codecrafters-io/procstream/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spawn starts a supervisor and returns it along with its Started message.
func spawn(t *testing.T, opts Options) (*Supervisor, chan Message, Started) {
	t.Helper()

	consumer := make(chan Message, 16)
	opts.Consumer = consumer
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}

	s, err := Spawn(opts)
	require.NoError(t, err)
	t.Cleanup(s.Stop)

	started, ok := receive(t, consumer).(Started)
	require.True(t, ok, "first message must be Started")

	return s, consumer, started
}

type transcript struct {
	stdout     bytes.Buffer
	stderr     bytes.Buffer
	chunkSizes map[StreamType][]int
	dones      []Done
	exitCodes  []int

	// position of each Done and ExitCode in the message sequence
	events []Message
}

// drain acknowledges every chunk until ExitCode arrives, then checks that
// nothing else follows.
func drain(t *testing.T, s *Supervisor, consumer <-chan Message, started Started) *transcript {
	t.Helper()

	result := &transcript{chunkSizes: make(map[StreamType][]int)}

	for len(result.exitCodes) == 0 {
		switch msg := receive(t, consumer).(type) {
		case Chunk:
			result.chunkSizes[msg.Stream] = append(result.chunkSizes[msg.Stream], len(msg.Data))

			switch msg.Stream {
			case Stdout:
				result.stdout.Write(msg.Data)
				started.Stdout.Ack()
			case Stderr:
				result.stderr.Write(msg.Data)
				started.Stderr.Ack()
			default:
				t.Fatalf("chunk on %s", msg.Stream)
			}
		case Done:
			result.dones = append(result.dones, msg)
			result.events = append(result.events, msg)
		case ExitCode:
			result.exitCodes = append(result.exitCodes, msg.Code)
			result.events = append(result.events, msg)
		case Ack:
			assert.Equal(t, Stdin, msg.Stream)
		default:
			t.Fatalf("unexpected message %#v", msg)
		}
	}

	assertClosed(t, s.Terminated())
	assertSilent(t, consumer, 50*time.Millisecond)

	return result
}

func TestSpawnValidatesOptions(t *testing.T) {
	consumer := make(chan Message, 1)

	_, err := Spawn(Options{Consumer: consumer})
	assert.ErrorIs(t, err, ErrNoArgs)

	_, err = Spawn(Options{Args: []string{"./test_helpers/stdout_echo.sh"}})
	assert.ErrorIs(t, err, ErrNoConsumer)

	_, err = Spawn(Options{Args: []string{"./test_helpers/stdout_echo.sh"}, Consumer: consumer, BufferSize: -1})
	assertErrorContains(t, err, "buffer size")

	_, err = Spawn(Options{Args: []string{"./test_helpers/stdout_echo.sh"}, Consumer: consumer, Dispatcher: "missing"})
	assert.ErrorIs(t, err, blocking_pool.ErrUnknownPool)

	_, err = Spawn(Options{Args: []string{"/blah"}, Consumer: consumer})
	assertErrorContains(t, err, "not found")
	assertErrorContains(t, err, "blah")

	_, err = Spawn(Options{Args: []string{"./test_helpers/not_executable.sh"}, Consumer: consumer})
	assertErrorContains(t, err, "not an executable file")
	assertErrorContains(t, err, "not_executable.sh")

	assertSilent(t, consumer, 20*time.Millisecond)
}

func TestEchoThroughCat(t *testing.T) {
	s, consumer, started := spawn(t, Options{Args: []string{"cat"}})

	assert.Equal(t, Stdin, started.Stdin.Stream())
	assert.Equal(t, Stdout, started.Stdout.Stream())
	assert.Equal(t, Stderr, started.Stderr.Stream())

	require.True(t, started.Stdin.Write([]byte("abc"), nil))

	// the Ack for the write and the echoed chunk race each other
	var sawAck bool
	var echoed []byte
	for !sawAck || len(echoed) < 3 {
		switch msg := receive(t, consumer).(type) {
		case Ack:
			assert.Equal(t, Stdin, msg.Stream)
			sawAck = true
		case Chunk:
			assert.Equal(t, Stdout, msg.Stream)
			echoed = append(echoed, msg.Data...)
			started.Stdout.Ack()
		default:
			t.Fatalf("unexpected message %#v", msg)
		}
	}
	assert.Equal(t, "abc", string(echoed))

	require.True(t, started.Stdin.Close())

	result := drain(t, s, consumer, started)
	assert.Equal(t, []int{0}, result.exitCodes)
	assert.Empty(t, result.stdout.String())
	assert.Empty(t, result.stderr.String())
}

func TestExitCodeIsDeliveredOnceAfterBothDones(t *testing.T) {
	s, consumer, started := spawn(t, Options{Args: []string{"./test_helpers/exit_with.sh", "7"}})

	result := drain(t, s, consumer, started)

	assert.Equal(t, []int{7}, result.exitCodes)
	assert.Empty(t, result.chunkSizes)

	require.Len(t, result.events, 3)
	assert.ElementsMatch(t, []Message{Done{Stream: Stdout}, Done{Stream: Stderr}}, result.events[:2])
	assert.Equal(t, ExitCode{Code: 7}, result.events[2])
}

func TestOutputOnBothStreams(t *testing.T) {
	s, consumer, started := spawn(t, Options{Args: []string{"sh", "-c", "echo out; echo err >&2; exit 3"}})

	result := drain(t, s, consumer, started)

	assert.Equal(t, "out\n", result.stdout.String())
	assert.Equal(t, "err\n", result.stderr.String())
	assert.Equal(t, []int{3}, result.exitCodes)
	assert.Len(t, result.dones, 2)
	for _, done := range result.dones {
		assert.NoError(t, done.Err)
	}
}

func TestSignalledProcessReportsShellStyleExitCode(t *testing.T) {
	s, consumer, started := spawn(t, Options{Args: []string{"sh", "-c", "kill -9 $$"}})

	result := drain(t, s, consumer, started)
	assert.Equal(t, []int{128 + int(syscall.SIGKILL)}, result.exitCodes)
}

func TestOneChunkInFlightPerStream(t *testing.T) {
	s, consumer, started := spawn(t, Options{
		Args:       []string{"./test_helpers/large_echo.sh", "10000"},
		BufferSize: 100,
	})

	first := receive(t, consumer)
	for {
		if chunk, ok := first.(Chunk); ok && chunk.Stream == Stdout {
			break
		}
		// stderr traffic can come first, keep it moving
		if chunk, ok := first.(Chunk); ok && chunk.Stream == Stderr {
			started.Stderr.Ack()
		}
		first = receive(t, consumer)
	}
	firstChunk := first.(Chunk)
	assert.LessOrEqual(t, len(firstChunk.Data), 100)

	// without an Ack, stdout stays quiet
	deadline := time.After(200 * time.Millisecond)
	for waiting := true; waiting; {
		select {
		case msg := <-consumer:
			if chunk, ok := msg.(Chunk); ok {
				require.NotEqual(t, Stdout, chunk.Stream, "second stdout chunk before Ack")
				started.Stderr.Ack()
			}
		case <-deadline:
			waiting = false
		}
	}

	started.Stdout.Ack()
	result := drain(t, s, consumer, started)

	assert.Equal(t, 10000, len(firstChunk.Data)+result.stdout.Len())
	assert.Equal(t, strings.Repeat("x", result.stdout.Len()), result.stdout.String())
	for _, size := range result.chunkSizes[Stdout] {
		assert.LessOrEqual(t, size, 100)
	}
	assert.Equal(t, []int{0}, result.exitCodes)
}

func TestEnvIsMergedIntoInheritedEnvironment(t *testing.T) {
	t.Setenv("PROCSTREAM_INHERITED", "from-parent")

	s, consumer, started := spawn(t, Options{
		Args: []string{"sh", "-c", `echo "$PROCSTREAM_INHERITED $PROCSTREAM_ADDED"`},
		Env:  map[string]string{"PROCSTREAM_ADDED": "from-options"},
	})

	result := drain(t, s, consumer, started)
	assert.Equal(t, "from-parent from-options\n", result.stdout.String())
}

func TestEnvOverridesInheritedValues(t *testing.T) {
	t.Setenv("PROCSTREAM_OVERRIDDEN", "old")

	s, consumer, started := spawn(t, Options{
		Args: []string{"sh", "-c", `echo "$PROCSTREAM_OVERRIDDEN"`},
		Env:  map[string]string{"PROCSTREAM_OVERRIDDEN": "new"},
	})

	result := drain(t, s, consumer, started)
	assert.Equal(t, "new\n", result.stdout.String())
}

func TestWorkingDir(t *testing.T) {
	dir := t.TempDir()

	s, consumer, started := spawn(t, Options{Args: []string{"sh", "-c", "pwd -P"}, WorkingDir: dir})
	result := drain(t, s, consumer, started)

	expected, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	assert.Equal(t, expected+"\n", result.stdout.String())
}

func TestBoundedDispatcher(t *testing.T) {
	pools, err := blocking_pool.NewRegistry(map[string]int{"small": blocking_pool.MinBoundedWorkers})
	require.NoError(t, err)

	s, consumer, started := spawn(t, Options{
		Args:       []string{"cat"},
		Pools:      pools,
		Dispatcher: "small",
	})

	require.True(t, started.Stdin.Write([]byte("hello"), nil))
	require.True(t, started.Stdin.Close())

	result := drain(t, s, consumer, started)
	assert.Equal(t, "hello", result.stdout.String())
	assert.Equal(t, []int{0}, result.exitCodes)
}

func TestStopDestroysRunningProcess(t *testing.T) {
	s, consumer, _ := spawn(t, Options{Args: []string{"./test_helpers/sleep_for.sh", "60"}})

	start := time.Now()
	s.Stop()
	assert.Less(t, time.Since(start), DefaultKillGracePeriod)

	assertClosed(t, s.Terminated())
	assert.ErrorIs(t, s.Process().Signal(syscall.Signal(0)), os.ErrProcessDone)

	// stopping early is not an exit, no ExitCode and no Done
	assertSilent(t, consumer, 50*time.Millisecond)

	s.Stop()
}

func TestStopNeverReportsEndOfStream(t *testing.T) {
	// killing the child closes its output, which must not surface as Done
	for i := 0; i < 25; i++ {
		s, consumer, _ := spawn(t, Options{Args: []string{"./test_helpers/sleep_for.sh", "60"}})

		s.Stop()

		select {
		case msg := <-consumer:
			t.Fatalf("iteration %d: unexpected %#v after Stop", i, msg)
		default:
		}
	}
}

func TestWorkingDirAppliesToRelativeExecutable(t *testing.T) {
	helpers, err := filepath.Abs("test_helpers")
	require.NoError(t, err)

	s, consumer, started := spawn(t, Options{
		Args:       []string{"./stdout_echo.sh", "found"},
		WorkingDir: helpers,
	})

	result := drain(t, s, consumer, started)
	assert.Equal(t, "found\n", result.stdout.String())
}

func TestStopEscalatesToSigkill(t *testing.T) {
	s, consumer, started := spawn(t, Options{
		Args:            []string{"./test_helpers/ignore_sigterm.sh"},
		KillGracePeriod: 200 * time.Millisecond,
	})

	chunk, ok := receive(t, consumer).(Chunk)
	require.True(t, ok)
	assert.Equal(t, "ready\n", string(chunk.Data))
	started.Stdout.Ack()

	start := time.Now()
	s.Stop()
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	assert.Less(t, elapsed, 5*time.Second)
	assert.ErrorIs(t, s.Process().Signal(syscall.Signal(0)), os.ErrProcessDone)
}

func TestImmediateKill(t *testing.T) {
	s, _, _ := spawn(t, Options{
		Args:            []string{"./test_helpers/ignore_sigterm.sh"},
		KillGracePeriod: -1,
	})

	start := time.Now()
	s.Stop()
	assert.Less(t, time.Since(start), time.Second)
}

func TestStopBeforeStartedIsConsumed(t *testing.T) {
	consumer := make(chan Message) // never read

	s, err := Spawn(Options{
		Args:     []string{"./test_helpers/sleep_for.sh", "60"},
		Consumer: consumer,
		Logger:   logger.Discard(),
	})
	require.NoError(t, err)

	s.Stop()
	assertClosed(t, s.Terminated())
	assert.ErrorIs(t, s.Process().Signal(syscall.Signal(0)), os.ErrProcessDone)
}

func TestDetachedProcessOutlivesSupervisor(t *testing.T) {
	s, consumer, started := spawn(t, Options{
		Args:     []string{"sh", "-c", "echo hi; exec sleep 60"},
		Detached: true,
	})
	assert.True(t, s.Detached())

	process := s.Process()
	t.Cleanup(func() {
		process.Kill()
		process.Wait()
	})

	chunk, ok := receive(t, consumer).(Chunk)
	require.True(t, ok)
	assert.Equal(t, "hi\n", string(chunk.Data))
	started.Stdout.Ack()

	s.Stop()
	assertClosed(t, s.Terminated())

	assert.NoError(t, syscall.Kill(s.Pid(), 0), "detached process should still be running")
	assertSilent(t, consumer, 50*time.Millisecond)
}

func TestDetachedProcessSendsNoExitCode(t *testing.T) {
	s, consumer, started := spawn(t, Options{
		Args:     []string{"./test_helpers/stdout_echo.sh", "bye"},
		Detached: true,
	})

	process := s.Process()
	t.Cleanup(func() { process.Wait() })

	var dones int
	for dones < 2 {
		switch msg := receive(t, consumer).(type) {
		case Chunk:
			assert.Equal(t, "bye\n", string(msg.Data))
			started.Stdout.Ack()
		case Done:
			dones++
		default:
			t.Fatalf("unexpected message %#v", msg)
		}
	}

	// the supervisor stays up until told to stop
	assertSilent(t, consumer, 100*time.Millisecond)
	select {
	case <-s.Terminated():
		t.Fatal("detached supervisor stopped on its own")
	default:
	}

	s.Stop()
	assertSilent(t, consumer, 20*time.Millisecond)
}

func TestPTYStreams(t *testing.T) {
	s, consumer, started := spawn(t, Options{
		Args:   []string{"sh", "-c", "echo out; echo err >&2"},
		UsePTY: true,
	})

	result := drain(t, s, consumer, started)
	assert.Equal(t, "out\r\n", result.stdout.String())
	assert.Equal(t, "err\r\n", result.stderr.String())
	assert.Equal(t, []int{0}, result.exitCodes)
}

func TestPTYStdinReachesChildBeforeEOF(t *testing.T) {
	s, consumer, started := spawn(t, Options{Args: []string{"cat"}, UsePTY: true})

	input := strings.Repeat("abcdefghij\n", 2000) + "tail"
	replies := make(chan Message, 1)

	var stdout bytes.Buffer
	collect := func(msg Message) {
		switch msg := msg.(type) {
		case Chunk:
			stdout.Write(msg.Data)
			started.Stdout.Ack()
		case Done:
			t.Fatalf("%s ended before stdin was written", msg.Stream)
		}
	}

	for offset := 0; offset < len(input); offset += 1000 {
		end := min(offset+1000, len(input))
		require.True(t, started.Stdin.Write([]byte(input[offset:end]), replies))

		// cat echoes while we write, keep its output moving until the Ack
		for acked := false; !acked; {
			select {
			case msg := <-replies:
				require.Equal(t, Ack{Stream: Stdin}, msg)
				acked = true
			case msg := <-consumer:
				collect(msg)
			case <-time.After(5 * time.Second):
				t.Fatal("timed out waiting for stdin Ack")
			}
		}
	}
	require.True(t, started.Stdin.Close())

	result := drain(t, s, consumer, started)
	stdout.Write(result.stdout.Bytes())

	// the terminal turns each \n into \r\n on the way out
	assert.Equal(t, strings.ReplaceAll(input, "\n", "\r\n"), stdout.String())
	assert.Equal(t, []int{0}, result.exitCodes)
}

func TestSendsAfterTerminationAreDropped(t *testing.T) {
	s, consumer, started := spawn(t, Options{Args: []string{"./test_helpers/exit_with.sh", "0"}})
	drain(t, s, consumer, started)

	assert.False(t, started.Stdout.Ack())
	assert.False(t, started.Stderr.Ack())
	assert.False(t, started.Stdin.Write([]byte("late"), nil))
	assertSilent(t, consumer, 20*time.Millisecond)
}
