package relay

import (
	"bytes"
	"context"
	"strings"
	"time"

	"github.com/codecrafters-io/procstream/executable"
	testing "github.com/mitchellh/go-testing-interface"
)

// Captured is the outcome of RunT.
type Captured struct {
	Result
	Stdout string
	Stderr string
}

// RunT runs args to completion with stdin as input and captures its output.
// Any failure to run (including a timeout) fails t.
func RunT(t testing.T, args []string, stdin string, timeout time.Duration) Captured {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer

	result, err := Run(ctx, executable.Options{Args: args}, strings.NewReader(stdin), &stdout, &stderr)
	if err != nil {
		t.Fatalf("running %s: %s", strings.Join(args, " "), err)
	}

	return Captured{
		Result: result,
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
}
