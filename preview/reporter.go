package preview

import (
	"log/slog"
	"time"

	"github.jpl.nasa.gov/bdube/ccdpreview/camera"
)

// EventKind identifies what an Event describes
type EventKind int

const (
	// EventCommit carries the outcome of parameter configuration
	EventCommit EventKind = iota

	// EventFrame is sent for each iteration that reached the display
	EventFrame

	// EventPartial is sent when an acquisition completed too few readouts
	EventPartial

	// EventUnavailable is sent when an acquisition produced no data
	EventUnavailable

	// EventMalformed is sent when a frame's geometry was wrong
	EventMalformed

	// EventFailed is sent for any other pipeline error
	EventFailed

	// EventStopped is sent once, when the loop stops
	EventStopped
)

var eventNames = map[EventKind]string{
	EventCommit:      "commit",
	EventFrame:       "frame",
	EventPartial:     "partial",
	EventUnavailable: "unavailable",
	EventMalformed:   "malformed",
	EventFailed:      "failed",
	EventStopped:     "stopped",
}

// String satisfies fmt.Stringer
func (k EventKind) String() string {
	if s, ok := eventNames[k]; ok {
		return s
	}
	return "unknown"
}

// Event is a diagnostic from a Session or Loop
type Event struct {
	Kind EventKind

	// Iteration is the loop iteration the event belongs to, 1-based.  Zero
	// for events sent before the loop starts.
	Iteration int

	// Outcome is set for EventCommit
	Outcome camera.CommitOutcome

	// Err is set for the skip events
	Err error

	// Elapsed is the time from the start of acquisition to the end of display,
	// set for EventFrame
	Elapsed time.Duration

	// Stats is set for EventStopped
	Stats Stats
}

// Reporter receives events.  Report must not block for long.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to the Reporter interface
type ReporterFunc func(Event)

// Report calls f
func (f ReporterFunc) Report(e Event) {
	f(e)
}

// Reporters sends each event to every reporter in order
type Reporters []Reporter

// Report sends e to each reporter
func (rs Reporters) Report(e Event) {
	for _, r := range rs {
		r.Report(e)
	}
}

// SlogReporter logs events with a structured logger.  Per-frame events are
// only logged when Verbose is set.
type SlogReporter struct {
	Logger  *slog.Logger
	Verbose bool
}

// NewSlogReporter returns a reporter that logs to l, or slog.Default if l is nil
func NewSlogReporter(l *slog.Logger, verbose bool) *SlogReporter {
	if l == nil {
		l = slog.Default()
	}
	return &SlogReporter{Logger: l, Verbose: verbose}
}

// Report logs e
func (r *SlogReporter) Report(e Event) {
	l := r.Logger
	if l == nil {
		l = slog.Default()
	}
	switch e.Kind {
	case EventCommit:
		for _, p := range e.Outcome.Other {
			l.Warn("unrequested parameter rejected", "parameter", string(p))
		}
		if len(e.Outcome.Rejected) == 0 {
			l.Info("parameters committed")
			return
		}
		for _, p := range e.Outcome.Rejected {
			l.Warn("parameter rejected", "parameter", string(p))
		}
		l.Warn("parameters committed with rejections", "rejected", len(e.Outcome.Rejected))
	case EventFrame:
		if r.Verbose {
			l.Info("frame displayed", "iteration", e.Iteration, "elapsed", e.Elapsed)
		}
	case EventPartial:
		l.Warn("partial acquisition, frame skipped", "iteration", e.Iteration, "err", e.Err)
	case EventUnavailable:
		l.Error("acquisition unavailable, frame skipped", "iteration", e.Iteration, "err", e.Err)
	case EventMalformed, EventFailed:
		l.Error("frame skipped", "iteration", e.Iteration, "kind", e.Kind.String(), "err", e.Err)
	case EventStopped:
		s := e.Stats
		l.Info("preview stopped",
			"iterations", s.Iterations,
			"displayed", s.Displayed,
			"partial", s.Partial,
			"unavailable", s.Unavailable,
			"malformed", s.Malformed,
			"failed", s.Failed)
	}
}
