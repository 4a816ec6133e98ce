// Package arg_quoter prepares argument lists for platforms whose command-line
// parser re-tokenizes a single command-line string instead of receiving an
// argv array. On Windows the child sees one string and splits it back into
// arguments with the MSVCRT rules; quoting each argument here means callers
// can pass the same argument list regardless of target platform.
package arg_quoter

import (
	"runtime"
	"strings"
)

// Quoter quotes arguments when, and only when, the target platform needs it.
// The decision is made once, at construction.
type Quoter struct {
	enabled bool
}

// New returns a Quoter for the given GOOS value.
func New(goos string) Quoter {
	return Quoter{enabled: goos == "windows"}
}

// ForCurrentPlatform returns a Quoter for the platform this binary runs on.
func ForCurrentPlatform() Quoter {
	return New(runtime.GOOS)
}

// Enabled reports whether Quote transforms its input.
func (q Quoter) Enabled() bool {
	return q.enabled
}

// Quote returns arg prepared for the platform's command-line tokenizer.
func (q Quoter) Quote(arg string) string {
	if !q.enabled {
		return arg
	}

	return QuoteWindowsArg(arg)
}

// QuoteAll quotes every argument, preserving order.
func (q Quoter) QuoteAll(args []string) []string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		quoted[i] = q.Quote(arg)
	}
	return quoted
}

// CommandLine joins the quoted arguments into a single command line.
func (q Quoter) CommandLine(args []string) string {
	return strings.Join(q.QuoteAll(args), " ")
}

func needsQuoting(arg string) bool {
	return arg == "" || strings.ContainsAny(arg, " \t\\\"")
}

// QuoteWindowsArg quotes arg unconditionally of platform.
//
// Backslashes are only special in front of a double quote (or the closing
// quote we add), so only those runs get doubled. Everything else is copied.
func QuoteWindowsArg(arg string) string {
	if !needsQuoting(arg) {
		return arg
	}

	var b strings.Builder
	b.Grow(len(arg) + 2)
	b.WriteByte('"')

	backslashes := 0
	for i := 0; i < len(arg); i++ {
		c := arg[i]
		switch c {
		case '\\':
			backslashes++
			continue
		case '"':
			b.WriteString(strings.Repeat(`\`, 2*backslashes))
			b.WriteString(`\"`)
		default:
			b.WriteString(strings.Repeat(`\`, backslashes))
			b.WriteByte(c)
		}
		backslashes = 0
	}

	// trailing run sits in front of our closing quote
	b.WriteString(strings.Repeat(`\`, 2*backslashes))
	b.WriteByte('"')

	return b.String()
}
