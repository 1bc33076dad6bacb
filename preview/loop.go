/*Package preview drives a camera in a live acquire, transform, display loop.

A Loop is single threaded.  Each iteration acquires one frame, turns it into a
spectral image, hands both to a Display, then polls a Canceller.  Acquisition
and geometry errors skip the iteration and are reported; the loop only ends
when the Canceller says so.

A Session configures the camera once before the loop starts.
*/
package preview

import (
	"errors"
	"time"

	"github.jpl.nasa.gov/bdube/ccdpreview/camera"
	"github.jpl.nasa.gov/bdube/ccdpreview/spectral"
)

// State is the state of a Loop
type State int

const (
	// Running is the initial state
	Running State = iota

	// Stopped is terminal
	Stopped
)

// String satisfies fmt.Stringer
func (s State) String() string {
	switch s {
	case Running:
		return "RUNNING"
	case Stopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// Pipeline converts a raw frame to a spectral image
type Pipeline interface {
	Process(camera.RawFrame) (spectral.Image, error)
}

// PipelineFunc adapts a function to the Pipeline interface
type PipelineFunc func(camera.RawFrame) (spectral.Image, error)

// Process calls f
func (f PipelineFunc) Process(frame camera.RawFrame) (spectral.Image, error) {
	return f(frame)
}

// Display renders the raw and spectral image of one iteration
type Display interface {
	Show(raw camera.RawFrame, spec spectral.Image)
}

// Canceller is polled once per iteration.  Cancelled may block briefly, for
// example to pump a GUI event queue, but must return promptly.
type Canceller interface {
	Cancelled() bool
}

// Stats counts what the loop has done
type Stats struct {
	// Iterations is the number of times the loop body ran
	Iterations int `json:"iterations"`

	// Acquisitions is the number of acquisitions started
	Acquisitions int `json:"acquisitions"`

	// PipelineRuns is the number of frames given to the pipeline
	PipelineRuns int `json:"pipelineRuns"`

	// Displayed is the number of image pairs given to the display
	Displayed int `json:"displayed"`

	// Partial is the number of acquisitions that completed too few readouts
	Partial int `json:"partial"`

	// Unavailable is the number of acquisitions that produced no data
	Unavailable int `json:"unavailable"`

	// Malformed is the number of frames skipped for bad geometry
	Malformed int `json:"malformed"`

	// Failed is the number of frames skipped for any other pipeline error
	Failed int `json:"failed"`
}

// Skipped is the number of iterations which did not reach the display
func (s Stats) Skipped() int {
	return s.Partial + s.Unavailable + s.Malformed + s.Failed
}

// Loop is the preview state machine.  Configure the exported fields, then call
// Run or Step.  A Loop must not be copied after first use.
type Loop struct {
	// Device is the camera to read from
	Device camera.Acquirer

	// Shape is the sensor geometry every frame must have
	Shape camera.Shape

	// Timeout bounds each acquisition.  camera.NoTimeout blocks indefinitely.
	Timeout time.Duration

	// Pipeline defaults to a spectral.Processor for Shape
	Pipeline Pipeline

	// Display may be nil
	Display Display

	// Cancel may be nil, in which case the loop never stops
	Cancel Canceller

	// Reporter may be nil
	Reporter Reporter

	state State
	stats Stats
}

// State returns the current state
func (l *Loop) State() State {
	return l.state
}

// Stats returns the counters so far
func (l *Loop) Stats() Stats {
	return l.stats
}

// Run steps the loop until it is stopped and returns the final counters
func (l *Loop) Run() Stats {
	for l.Step() == Running {
	}
	return l.stats
}

// Step performs one iteration and returns the resulting state.  A stopped
// loop does nothing.
func (l *Loop) Step() State {
	if l.state == Stopped {
		return Stopped
	}
	l.stats.Iterations++
	l.iterate()
	if l.Cancel != nil && l.Cancel.Cancelled() {
		l.state = Stopped
		l.report(Event{Kind: EventStopped, Iteration: l.stats.Iterations, Stats: l.stats})
	}
	return l.state
}

func (l *Loop) iterate() {
	start := time.Now()
	l.stats.Acquisitions++
	frame, err := camera.AcquireOneFrame(l.Device, l.Shape, l.Timeout)
	if err != nil {
		l.skip(err)
		return
	}

	l.stats.PipelineRuns++
	img, err := l.pipeline().Process(frame)
	if err != nil {
		l.skip(err)
		return
	}

	if l.Display != nil {
		l.Display.Show(frame, img)
	}
	l.stats.Displayed++
	l.report(Event{Kind: EventFrame, Iteration: l.stats.Iterations, Elapsed: time.Since(start)})
}

func (l *Loop) skip(err error) {
	var (
		partial *camera.PartialAcquisition
		unavail *camera.AcquisitionUnavailable
		mal     *camera.MalformedFrameGeometry
		kind    EventKind
	)
	switch {
	case errors.As(err, &partial):
		l.stats.Partial++
		kind = EventPartial
	case errors.As(err, &unavail):
		l.stats.Unavailable++
		kind = EventUnavailable
	case errors.As(err, &mal):
		l.stats.Malformed++
		kind = EventMalformed
	default:
		l.stats.Failed++
		kind = EventFailed
	}
	l.report(Event{Kind: kind, Iteration: l.stats.Iterations, Err: err})
}

func (l *Loop) pipeline() Pipeline {
	if l.Pipeline == nil {
		p, err := spectral.NewProcessor(l.Shape)
		if err != nil {
			l.Pipeline = PipelineFunc(spectral.ToSpectralImage)
		} else {
			l.Pipeline = p
		}
	}
	return l.Pipeline
}

func (l *Loop) report(e Event) {
	if l.Reporter != nil {
		l.Reporter.Report(e)
	}
}
