// Package logging provides the structured logging sink the engine emits to
// (spec.md §6 "Logging"): levels {trace, fine, info, warn, error}, fields
// {machine_label, phase, key, target_key?, error?}. The sink is injected.
//
// Grounded in the teacher's extensibility.LoggingActionRunner
// (github.com/comalice/statechartx/internal/extensibility/actionrunner.go),
// which wraps action execution with log.Printf timing; this package
// promotes that ad-hoc pattern into the small structured interface the
// engine needs everywhere, not just around one pluggable component.
package logging

import (
	"fmt"
	"log"
	"strings"
)

// Level is a log severity, ordered least to most severe.
type Level int

const (
	Trace Level = iota
	Fine
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Trace:
		return "trace"
	case Fine:
		return "fine"
	case Info:
		return "info"
	case Warn:
		return "warn"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Fields is one structured log record's payload.
type Fields struct {
	MachineLabel string
	Phase        string
	Key          string
	TargetKey    string
	Err          error
}

// Logger is the sink interface the engine logs to.
type Logger interface {
	Log(level Level, msg string, f Fields)
}

// StdLogger is the default Logger, backed by the standard log package.
// Records below Minimum are dropped.
type StdLogger struct {
	Minimum Level
	out     *log.Logger
}

// NewStdLogger creates a StdLogger writing through l (or log.Default() if
// l is nil).
func NewStdLogger(l *log.Logger, minimum Level) *StdLogger {
	if l == nil {
		l = log.Default()
	}
	return &StdLogger{Minimum: minimum, out: l}
}

// Log implements Logger.
func (s *StdLogger) Log(level Level, msg string, f Fields) {
	if level < s.Minimum {
		return
	}
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", level, msg)
	if f.MachineLabel != "" {
		fmt.Fprintf(&b, " machine=%s", f.MachineLabel)
	}
	if f.Phase != "" {
		fmt.Fprintf(&b, " phase=%s", f.Phase)
	}
	if f.Key != "" {
		fmt.Fprintf(&b, " key=%s", f.Key)
	}
	if f.TargetKey != "" {
		fmt.Fprintf(&b, " target=%s", f.TargetKey)
	}
	if f.Err != nil {
		fmt.Fprintf(&b, " error=%q", f.Err.Error())
	}
	s.out.Print(b.String())
}

// Nop is a Logger that discards everything.
type Nop struct{}

// Log implements Logger by doing nothing.
func (Nop) Log(Level, string, Fields) {}
