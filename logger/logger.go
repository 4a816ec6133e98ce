package logger

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/fatih/color"
)

func colorize(colorToUse color.Attribute, fstring string, args ...any) []string {
	var msg string

	if len(args) == 0 {
		msg = fstring // Treat as plain string if no args
	} else {
		msg = fmt.Sprintf(fstring, args...)
	}

	lines := strings.Split(msg, "\n")
	colorizedLines := make([]string, len(lines))

	for i, line := range lines {
		colorizedLines[i] = color.New(colorToUse).SprintFunc()(line)
	}

	return colorizedLines
}

func debugColorize(fstring string, args ...any) []string {
	return colorize(color.FgCyan, fstring, args...)
}

func infoColorize(fstring string, args ...any) []string {
	return colorize(color.FgHiBlue, fstring, args...)
}

func successColorize(fstring string, args ...any) []string {
	return colorize(color.FgHiGreen, fstring, args...)
}

func warnColorize(fstring string, args ...any) []string {
	return colorize(color.FgHiMagenta, fstring, args...)
}

func errorColorize(fstring string, args ...any) []string {
	return colorize(color.FgHiRed, fstring, args...)
}

func yellowColorize(fstring string, args ...any) []string {
	return colorize(color.FgYellow, fstring, args...)
}

// Serializes output across a logger and all of its clones. Stream workers log
// from their own goroutines, so every clone must share one of these.
type syncWriter struct {
	mu     sync.Mutex
	writer io.Writer
}

func (s *syncWriter) Write(p []byte) (n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writer.Write(p)
}

// Logger is a wrapper around log.Logger with the following features:
//   - Supports a prefix, plus a stack of secondary prefixes
//   - Adds colors to the output
//   - Debug mode (all logs, debug and above)
//   - Quiet mode (no logs at all)
//
// A Logger is not safe for concurrent prefix mutation. Goroutines that need
// their own prefix should work on a Clone (see Named).
type Logger struct {
	// IsDebug is used to determine whether to emit debug logs.
	IsDebug bool

	// IsQuiet suppresses all logs.
	IsQuiet bool

	// prefix is the prefix to be used for all logs.
	prefix string

	// secondaryPrefixes is a slice of prefixes that are printed after Logger.prefix
	secondaryPrefixes []string

	logger log.Logger

	outputWriter *syncWriter
}

// New returns a logger writing to w.
func New(w io.Writer, isDebug bool, prefix string) *Logger {
	sharedWriter := &syncWriter{writer: w}
	l := &Logger{
		IsDebug:      isDebug,
		prefix:       prefix,
		outputWriter: sharedWriter,
	}
	l.logger = *log.New(sharedWriter, "", 0)
	l.updateLoggerPrefix()
	return l
}

// Discard returns a quiet logger that writes nowhere. Used when callers do not
// supply one.
func Discard() *Logger {
	l := New(io.Discard, false, "")
	l.IsQuiet = true
	return l
}

// Clone clones a given logger
// Uses the same outputwriter to ensure logs are serialized
// when a clone and an original is running concurrently
func (l *Logger) Clone() *Logger {
	secondaryPrefixesCopy := make([]string, len(l.secondaryPrefixes))
	copy(secondaryPrefixesCopy, l.secondaryPrefixes)

	cloned := &Logger{
		IsDebug:           l.IsDebug,
		IsQuiet:           l.IsQuiet,
		prefix:            l.prefix,
		secondaryPrefixes: secondaryPrefixesCopy,
		outputWriter:      l.outputWriter,
	}

	cloned.logger = *log.New(cloned.outputWriter, "", 0)
	cloned.updateLoggerPrefix()

	return cloned
}

// Named returns a clone with one more secondary prefix.
func (l *Logger) Named(prefix string) *Logger {
	cloned := l.Clone()
	cloned.pushSecondaryPrefix(prefix)
	return cloned
}

func (l *Logger) updateLoggerPrefix() {
	fullPrefix := l.prefix
	for _, secondaryPrefix := range l.secondaryPrefixes {
		fullPrefix += fmt.Sprintf("[%s] ", secondaryPrefix)
	}

	if fullPrefix == "" {
		l.logger.SetPrefix("")
		return
	}

	l.logger.SetPrefix(yellowColorize("%s", fullPrefix)[0])
}

// pushSecondaryPrefix appends a secondary prefix
func (l *Logger) pushSecondaryPrefix(prefix string) {
	l.secondaryPrefixes = append(l.secondaryPrefixes, prefix)
	l.updateLoggerPrefix()
}

func (l *Logger) printLines(lines []string) {
	for _, line := range lines {
		l.logger.Println(line)
	}
}

func (l *Logger) Successf(fstring string, args ...any) {
	if l.IsQuiet {
		return
	}

	l.printLines(successColorize(fstring, args...))
}

func (l *Logger) Infof(fstring string, args ...any) {
	if l.IsQuiet {
		return
	}

	l.printLines(infoColorize(fstring, args...))
}

func (l *Logger) Warnf(fstring string, args ...any) {
	if l.IsQuiet {
		return
	}

	l.printLines(warnColorize(fstring, args...))
}

func (l *Logger) Errorf(fstring string, args ...any) {
	if l.IsQuiet {
		return
	}

	l.printLines(errorColorize(fstring, args...))
}

func (l *Logger) Debugf(fstring string, args ...any) {
	if !l.IsDebug || l.IsQuiet {
		return
	}

	l.printLines(debugColorize(fstring, args...))
}
