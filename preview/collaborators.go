package preview

import (
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.jpl.nasa.gov/bdube/ccdpreview/camera"
	"github.jpl.nasa.gov/bdube/ccdpreview/spectral"
)

// DisplayFunc adapts a function to the Display interface
type DisplayFunc func(camera.RawFrame, spectral.Image)

// Show calls f
func (f DisplayFunc) Show(raw camera.RawFrame, spec spectral.Image) {
	f(raw, spec)
}

// Displays shows each pair on every display in order
type Displays []Display

// Show satisfies Display
func (ds Displays) Show(raw camera.RawFrame, spec spectral.Image) {
	for _, d := range ds {
		d.Show(raw, spec)
	}
}

// AnyCanceller is cancelled when any of its members is.  Every member is
// polled on each call, so a GUI canceller keeps servicing its event queue.
type AnyCanceller []Canceller

// Cancelled satisfies Canceller
func (cs AnyCanceller) Cancelled() bool {
	stop := false
	for _, c := range cs {
		if c.Cancelled() {
			stop = true
		}
	}
	return stop
}

// Flag is a Canceller that is tripped by calling Stop.  It is safe to Stop
// from another goroutine.  The zero value is ready to use.
type Flag struct {
	v atomic.Bool
}

// Stop requests cancellation
func (f *Flag) Stop() {
	f.v.Store(true)
}

// Cancelled satisfies Canceller
func (f *Flag) Cancelled() bool {
	return f.v.Load()
}

// SignalCanceller is tripped when the process receives a signal
type SignalCanceller struct {
	ch      chan os.Signal
	tripped bool
}

// NewSignalCanceller listens for sigs, or os.Interrupt and SIGTERM if none
// are given.  Call Close to stop listening.
func NewSignalCanceller(sigs ...os.Signal) *SignalCanceller {
	if len(sigs) == 0 {
		sigs = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}
	s := &SignalCanceller{ch: make(chan os.Signal, 1)}
	signal.Notify(s.ch, sigs...)
	return s
}

// Cancelled does not block
func (s *SignalCanceller) Cancelled() bool {
	if !s.tripped {
		select {
		case <-s.ch:
			s.tripped = true
		default:
		}
	}
	return s.tripped
}

// Close stops signal delivery.  The default signal behavior is restored.
func (s *SignalCanceller) Close() {
	signal.Stop(s.ch)
}
