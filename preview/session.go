package preview

import (
	"fmt"

	"github.jpl.nasa.gov/bdube/ccdpreview/camera"
)

// Session configures a camera and then runs a Loop on it
type Session struct {
	// Device is an open camera.  The session never closes it.
	Device camera.Device

	// Requests are committed once before the loop starts
	Requests []camera.Request

	// Loop is run after configuration.  Its Device is set to the session's
	// Device and a zero Shape is filled from the device.
	Loop *Loop
}

// Configure commits the requests and reports the outcome.  A rejection is not
// an error; a failed commit call is.
func (s *Session) Configure() (camera.CommitOutcome, error) {
	out, err := camera.Configure(s.Device, s.Requests)
	if err != nil {
		return out, err
	}
	if s.Loop != nil {
		s.Loop.report(Event{Kind: EventCommit, Outcome: out})
	}
	return out, nil
}

// Run configures the camera then runs the loop until it is cancelled
func (s *Session) Run() (camera.CommitOutcome, Stats, error) {
	if s.Loop == nil {
		s.Loop = &Loop{}
	}
	s.Loop.Device = s.Device
	if s.Loop.Shape == (camera.Shape{}) {
		shape, err := s.Device.GetShape()
		if err != nil {
			return camera.CommitOutcome{}, Stats{}, fmt.Errorf("get sensor shape: %w", err)
		}
		s.Loop.Shape = shape
	}
	out, err := s.Configure()
	if err != nil {
		return out, Stats{}, err
	}
	return out, s.Loop.Run(), nil
}
