// Package logging provides the process-wide logging facility used by every
// subsystem in the reactor core. It is intentionally small: a level enum and
// a sink interface with a single write operation, backed by zerolog.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

// Level mirrors the four levels the core's subsystems are allowed to log at.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) zerolog() zerolog.Level {
	switch l {
	case Debug:
		return zerolog.DebugLevel
	case Info:
		return zerolog.InfoLevel
	case Warn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// Sink is the contract every log destination satisfies: one unexported
// operation, writer, returning the io.Writer each formatted line is
// written to.
type Sink interface {
	writer() io.Writer
}

// ConsoleSink writes human-readable, colorized lines to stderr. It is the
// default sink for interactive use.
type ConsoleSink struct {
	w io.Writer
}

// NewConsoleSink builds a ConsoleSink over os.Stderr.
func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{w: zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}}
}

func (s *ConsoleSink) writer() io.Writer { return s.w }

// FileSink writes newline-delimited JSON records to a file, suitable for
// long-running daemons where a console is not attached.
type FileSink struct {
	f *os.File
}

// NewFileSink opens (creating/appending) the file at path for JSON logging.
func NewFileSink(path string) (*FileSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &FileSink{f: f}, nil
}

func (s *FileSink) writer() io.Writer { return s.f }

// Close releases the underlying file. No-op for sinks that do not own one.
func (s *FileSink) Close() error { return s.f.Close() }
