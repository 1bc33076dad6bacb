/*Package simcam provides a simulated spectroscopy camera that satisfies
camera.Device without any hardware or vendor SDK.

The simulation stages parameters and validates them against per-parameter
domains only at commit, the same as the PICam SDK.  Frames are synthetic
spectra written into a single device-owned buffer that is overwritten on every
acquisition.  Faults may be queued to exercise partial and failed readouts.
*/
package simcam

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.jpl.nasa.gov/bdube/ccdpreview/camera"
)

// Error is an error generated by the simulated camera
type Error struct {
	// Msg describes the error
	Msg string

	incomplete bool
}

// Error satisfies the error interface
func (e *Error) Error() string {
	return "simcam: " + e.Msg
}

// IncompleteReadout is true if the acquisition ran but delivered fewer
// readouts than requested
func (e *Error) IncompleteReadout() bool {
	return e.incomplete
}

var (
	// ErrTimeOut is generated when an acquisition exceeds its timeout
	ErrTimeOut = &Error{Msg: "time out occurred", incomplete: true}

	// ErrDataLost is generated when a readout is dropped in transfer
	ErrDataLost = &Error{Msg: "data lost", incomplete: true}

	// ErrConnectionLost is generated when the camera stops responding
	ErrConnectionLost = &Error{Msg: "connection lost"}

	// ErrClosed is generated by any call made after Close
	ErrClosed = &Error{Msg: "invalid handle, camera closed"}
)

// Fault is a failure injected into the next acquisition
type Fault int

const (
	// FaultNone performs a normal acquisition
	FaultNone Fault = iota

	// FaultTimeOut completes zero readouts and reports ErrTimeOut
	FaultTimeOut

	// FaultNoReadout completes zero readouts without reporting an error
	FaultNoReadout

	// FaultConnectionLost reports ErrConnectionLost
	FaultConnectionLost

	// FaultShortBuffer completes one readout that is missing its last row
	FaultShortBuffer
)

// Domain is the set of values a parameter accepts
type Domain struct {
	// Kind is camera.KindFloat or camera.KindInt
	Kind string

	// Min and Max bound the value, inclusive.  Ignored if Values is not empty.
	Min, Max float64

	// Values is a discrete set of accepted values
	Values []float64
}

// Contains returns true if v is in the domain
func (d Domain) Contains(v float64) bool {
	if len(d.Values) > 0 {
		for _, x := range d.Values {
			if x == v {
				return true
			}
		}
		return false
	}
	return v >= d.Min && v <= d.Max
}

// DefaultDomains models a PIXIS 400 class spectroscopy CCD
func DefaultDomains() map[camera.Parameter]Domain {
	return map[camera.Parameter]Domain{
		"AdcSpeed":                  {Kind: camera.KindFloat, Values: []float64{0.1, 2, 4}},
		"ExposureTime":              {Kind: camera.KindFloat, Min: 0, Max: 1e7},
		"SensorTemperatureSetPoint": {Kind: camera.KindFloat, Min: -75, Max: 25},
		"ShutterClosingDelay":       {Kind: camera.KindFloat, Min: 0, Max: 1000},
		"ShutterOpeningDelay":       {Kind: camera.KindFloat, Min: 0, Max: 1000},
		"AdcAnalogGain":             {Kind: camera.KindInt, Values: []float64{1, 2, 3}},
		"AdcQuality":                {Kind: camera.KindInt, Values: []float64{1, 2}},
		"CleanCycleCount":           {Kind: camera.KindInt, Min: 0, Max: 1000},
		"CleanCycleHeight":          {Kind: camera.KindInt, Min: 1, Max: 400},
		"ShutterTimingMode":         {Kind: camera.KindInt, Values: []float64{1, 2, 3}},
		"TriggerDetermination":      {Kind: camera.KindInt, Values: []float64{1, 2, 3, 4}},
		"TriggerResponse":           {Kind: camera.KindInt, Values: []float64{1, 2, 3, 4, 5}},
	}
}

// DefaultShape is the full frame of a PIXIS 400
var DefaultShape = camera.Shape{Rows: 400, Cols: 1340}

type staged struct {
	param camera.Parameter
	kind  string
	value float64
}

// Camera is a simulated camera.  It is safe for concurrent use.
type Camera struct {
	sync.Mutex

	shape     camera.Shape
	domains   map[camera.Parameter]Domain
	pending   []staged
	committed map[camera.Parameter]float64
	faults    []Fault
	buf       []uint16
	rng       *rand.Rand
	closed    bool

	// Latency is how long each readout takes.  An acquisition whose timeout
	// is shorter than Latency times out.
	Latency time.Duration

	acquisitions int
	commits      int
}

// New returns a simulated camera with the given sensor shape and the
// default parameter domains.  The seed makes the frame noise reproducible.
func New(shape camera.Shape, seed int64) *Camera {
	c := &Camera{
		shape:     shape,
		domains:   DefaultDomains(),
		committed: map[camera.Parameter]float64{"AdcSpeed": 2, "ExposureTime": 50, "TriggerDetermination": 1, "TriggerResponse": 1},
		buf:       make([]uint16, shape.Pixels()),
		rng:       rand.New(rand.NewSource(seed)),
	}
	return c
}

// SetDomain replaces the accepted domain of a parameter.  Use it to add
// parameters or narrow the defaults.
func (c *Camera) SetDomain(p camera.Parameter, d Domain) {
	c.Lock()
	defer c.Unlock()
	c.domains[p] = d
}

// Close invalidates the camera.  Every later call returns ErrClosed.
func (c *Camera) Close() error {
	c.Lock()
	defer c.Unlock()
	c.closed = true
	return nil
}

// GetShape returns the sensor shape
func (c *Camera) GetShape() (camera.Shape, error) {
	c.Lock()
	defer c.Unlock()
	if c.closed {
		return camera.Shape{}, ErrClosed
	}
	return c.shape, nil
}

// SetParameterFloat stages a floating point value.  Validation is deferred to
// CommitParameters.
func (c *Camera) SetParameterFloat(p camera.Parameter, v float64) error {
	return c.stage(p, camera.KindFloat, v)
}

// SetParameterInt stages an integer value.  Validation is deferred to
// CommitParameters.
func (c *Camera) SetParameterInt(p camera.Parameter, v int) error {
	return c.stage(p, camera.KindInt, float64(v))
}

func (c *Camera) stage(p camera.Parameter, kind string, v float64) error {
	c.Lock()
	defer c.Unlock()
	if c.closed {
		return ErrClosed
	}
	for i := range c.pending {
		if c.pending[i].param == p {
			c.pending[i] = staged{param: p, kind: kind, value: v}
			return nil
		}
	}
	c.pending = append(c.pending, staged{param: p, kind: kind, value: v})
	return nil
}

// AreParametersCommitted is true when nothing is staged
func (c *Camera) AreParametersCommitted() bool {
	c.Lock()
	defer c.Unlock()
	return len(c.pending) == 0
}

// CommitParameters applies every staged value that is inside its domain and
// returns the ones that are not, in staging order
func (c *Camera) CommitParameters() ([]camera.Parameter, error) {
	c.Lock()
	defer c.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	c.commits++
	var failed []camera.Parameter
	for _, s := range c.pending {
		d, ok := c.domains[s.param]
		if !ok || d.Kind != s.kind || !d.Contains(s.value) {
			failed = append(failed, s.param)
			continue
		}
		c.committed[s.param] = s.value
	}
	c.pending = c.pending[:0]
	return failed, nil
}

// Committed returns the committed value of a parameter
func (c *Camera) Committed(p camera.Parameter) (float64, bool) {
	c.Lock()
	defer c.Unlock()
	v, ok := c.committed[p]
	return v, ok
}

// Commits returns the number of times CommitParameters has been called
func (c *Camera) Commits() int {
	c.Lock()
	defer c.Unlock()
	return c.commits
}

// Acquisitions returns the number of times Acquire has been called
func (c *Camera) Acquisitions() int {
	c.Lock()
	defer c.Unlock()
	return c.acquisitions
}

// Inject queues faults to be applied to the following acquisitions, one each
func (c *Camera) Inject(f ...Fault) {
	c.Lock()
	defer c.Unlock()
	c.faults = append(c.faults, f...)
}

// Acquire simulates a blocking acquisition.  Only the first readout is kept.
// The returned slice is the camera's own buffer and is overwritten by the
// next call.
func (c *Camera) Acquire(readouts int, timeout time.Duration) (camera.AvailableData, error) {
	c.Lock()
	defer c.Unlock()
	if c.closed {
		return camera.AvailableData{}, ErrClosed
	}
	c.acquisitions++

	fault := FaultNone
	if len(c.faults) > 0 {
		fault = c.faults[0]
		c.faults = c.faults[1:]
	}
	if timeout >= 0 && c.Latency > timeout {
		fault = FaultTimeOut
	}
	if readouts < 1 {
		return camera.AvailableData{}, nil
	}

	switch fault {
	case FaultTimeOut:
		return camera.AvailableData{}, ErrTimeOut
	case FaultNoReadout:
		return camera.AvailableData{}, nil
	case FaultConnectionLost:
		return camera.AvailableData{}, ErrConnectionLost
	}

	time.Sleep(c.Latency)
	c.render()
	data := camera.AvailableData{InitialReadout: c.buf, ReadoutCount: readouts}
	if fault == FaultShortBuffer {
		data.InitialReadout = c.buf[:len(c.buf)-c.shape.Cols]
	}
	return data, nil
}

// render writes a synthetic spectrum into the device buffer.  Each row holds
// a few emission lines along the dispersion axis whose strength scales with
// exposure time and falls off toward the top and bottom of the slit.
func (c *Camera) render() {
	rows, cols := c.shape.Rows, c.shape.Cols
	texp := c.committed["ExposureTime"] // ms
	gain := c.committed["AdcAnalogGain"]
	if gain == 0 {
		gain = 1
	}
	signal := texp * gain
	lines := [...]struct{ center, width, amp float64 }{
		{0.21, 3, 40},
		{0.48, 2, 90},
		{0.52, 2, 60},
		{0.77, 5, 25},
	}
	const bias = 600.
	for r := 0; r < rows; r++ {
		y := (float64(r) - float64(rows)/2) / (float64(rows) / 4)
		slit := math.Exp(-y * y)
		for col := 0; col < cols; col++ {
			v := bias
			x := float64(col)
			for _, l := range lines {
				d := (x - l.center*float64(cols)) / l.width
				v += signal * l.amp / 100 * slit * math.Exp(-d*d/2)
			}
			v += c.rng.NormFloat64() * 4 // read noise, DN
			if v < 0 {
				v = 0
			}
			if v > math.MaxUint16 {
				v = math.MaxUint16
			}
			c.buf[r*cols+col] = uint16(v)
		}
	}
}
