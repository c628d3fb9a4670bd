// Package logging provides the CLI logger and secret redaction helpers.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Logger writes human-oriented status lines to stderr, keeping stdout free
// for command output.
type Logger struct {
	out     io.Writer
	debug   bool
	noColor bool
}

// New creates a logger. Debug messages are dropped unless debug is true.
func New(debug, noColor bool) *Logger {
	return &Logger{out: os.Stderr, debug: debug, noColor: noColor}
}

// NewWithWriter creates a logger writing to w, used by tests.
func NewWithWriter(w io.Writer, debug, noColor bool) *Logger {
	return &Logger{out: w, debug: debug, noColor: noColor}
}

func (l *Logger) emit(color, glyph, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if l.noColor {
		fmt.Fprintf(l.out, "%s %s\n", glyph, msg)
		return
	}
	fmt.Fprintf(l.out, "%s%s\033[0m %s\n", color, glyph, msg)
}

// Info logs an informational message.
func (l *Logger) Info(format string, args ...interface{}) {
	l.emit("\033[32m", "✓", format, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(format string, args ...interface{}) {
	l.emit("\033[33m", "⚠", format, args...)
}

// Error logs an error message.
func (l *Logger) Error(format string, args ...interface{}) {
	l.emit("\033[31m", "✗", format, args...)
}

// Debug logs a debug message when debug mode is enabled.
func (l *Logger) Debug(format string, args ...interface{}) {
	if !l.debug {
		return
	}
	l.emit("\033[36m", "[DEBUG]", format, args...)
}

// Secret is a string whose formatted representation is always redacted.
// Wrap credential values in Secret before passing them to the logger.
type Secret string

// String implements fmt.Stringer, always returning the redacted marker.
func (s Secret) String() string {
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer for %#v formatting.
func (s Secret) GoString() string {
	return "[REDACTED]"
}

// Redact replaces each known secret value occurring in s. Values of three
// characters or fewer are left alone to avoid mangling unrelated text.
func Redact(s string, secrets []string) string {
	result := s
	for _, secret := range secrets {
		if len(secret) > 3 {
			result = strings.ReplaceAll(result, secret, "[REDACTED]")
		}
	}
	return result
}
