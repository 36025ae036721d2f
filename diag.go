package projectm

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// logger is the package logger. Silent by default so embedding hosts see no
// output unless they opt in via SetLogger or SetLogLevel.
var logger = func() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.WarnLevel)
	return l
}()

// logFields aliases logrus.Fields for call sites.
type logFields = logrus.Fields

// SetLogger replaces the package logger. Pass a configured *logrus.Logger to
// receive structured load/switch/fault events.
func SetLogger(l *logrus.Logger) {
	if l != nil {
		logger = l
	}
}

// SetLogLevel adjusts the package logger's level without replacing it.
func SetLogLevel(level logrus.Level) {
	logger.SetLevel(level)
}

// FaultKind classifies a recovered failure recorded in the diagnostic log.
type FaultKind uint8

const (
	// FaultRuntime is a non-finite or otherwise invalid numeric result
	// during evaluation, recovered per-frame by substitution.
	FaultRuntime FaultKind = iota
	// FaultResource is a GPU object creation failure, e.g. a shader source
	// rejected by the compiler. The preset falls back to a default pass.
	FaultResource
	// FaultTransition is an incoming preset failing after activation; the
	// transition is aborted and the prior active preset retained.
	FaultTransition
)

func (k FaultKind) String() string {
	switch k {
	case FaultRuntime:
		return "runtime"
	case FaultResource:
		return "resource"
	case FaultTransition:
		return "transition"
	}
	return "unknown"
}

// Diagnostic is one recovered fault. Faults during rendering never propagate
// to the caller; they are recorded here and a frame is always produced, even
// if degraded.
type Diagnostic struct {
	Time    time.Time
	Frame   int
	Kind    FaultKind
	Preset  string
	Message string
}

// diagnosticLog is a fixed-capacity ring of the most recent diagnostics.
type diagnosticLog struct {
	entries []Diagnostic
	next    int
	wrapped bool
}

const diagnosticCapacity = 128

func newDiagnosticLog() *diagnosticLog {
	return &diagnosticLog{entries: make([]Diagnostic, diagnosticCapacity)}
}

func (d *diagnosticLog) add(frame int, kind FaultKind, preset, message string) {
	d.entries[d.next] = Diagnostic{
		Time:    time.Now(),
		Frame:   frame,
		Kind:    kind,
		Preset:  preset,
		Message: message,
	}
	d.next++
	if d.next == len(d.entries) {
		d.next = 0
		d.wrapped = true
	}
	logger.WithFields(logFields{
		"frame":  frame,
		"kind":   kind.String(),
		"preset": preset,
	}).Warn(message)
}

// snapshot returns the recorded diagnostics oldest-first.
func (d *diagnosticLog) snapshot() []Diagnostic {
	if !d.wrapped {
		out := make([]Diagnostic, d.next)
		copy(out, d.entries[:d.next])
		return out
	}
	out := make([]Diagnostic, 0, len(d.entries))
	out = append(out, d.entries[d.next:]...)
	out = append(out, d.entries[:d.next]...)
	return out
}
