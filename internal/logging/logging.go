// Package logging is the build engine's leveled log stream: a thin wrapper
// over the standard library log package with quiet/verbose filtering, so
// phase progress lines can be emitted unconditionally in code and filtered
// by the level the CLI selected.
package logging

import (
	"io"
	"log"
)

// Level filters what reaches the output stream.
type Level int

const (
	// Quiet suppresses everything below warnings.
	Quiet Level = iota
	// Normal emits info and above.
	Normal
	// Verbose additionally emits debug lines (per-phase progress).
	Verbose
)

// Logger is a leveled logger. The zero value is unusable; construct with New.
type Logger struct {
	level Level
	l     *log.Logger
}

// New creates a Logger writing to out at the given level.
func New(out io.Writer, level Level) *Logger {
	return &Logger{level: level, l: log.New(out, "", log.LstdFlags)}
}

// LevelFor maps the CLI's verbose/quiet flags onto a Level.
func LevelFor(verbose, quiet bool) Level {
	switch {
	case quiet:
		return Quiet
	case verbose:
		return Verbose
	default:
		return Normal
	}
}

// Debugf logs per-phase progress detail; emitted only at Verbose.
func (lg *Logger) Debugf(format string, args ...any) {
	if lg.level >= Verbose {
		lg.l.Printf("DEBUG "+format, args...)
	}
}

// Infof logs normal progress; suppressed at Quiet.
func (lg *Logger) Infof(format string, args ...any) {
	if lg.level >= Normal {
		lg.l.Printf(format, args...)
	}
}

// Warnf logs warnings at every level.
func (lg *Logger) Warnf(format string, args ...any) {
	lg.l.Printf("WARN "+format, args...)
}

// Errorf logs errors at every level.
func (lg *Logger) Errorf(format string, args ...any) {
	lg.l.Printf("ERROR "+format, args...)
}
