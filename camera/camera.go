/*Package camera describes the interfaces a scientific camera must satisfy to be
configured and read out by the preview loop, along with the parameter commit
workflow and the single frame acquisition engine built on them.

The package never opens or closes a camera.  A Device is borrowed from whatever
owns its lifecycle (see picam and simcam) for the duration of each call.

A session looks like:

 outcome, err := camera.Configure(dev, []camera.Request{
	camera.FloatRequest("AdcSpeed", 4),
	camera.IntRequest("TriggerDetermination", 3),
 })
 frame, err := camera.AcquireOneFrame(dev, shape, camera.NoTimeout)

*/
package camera

import (
	"image"
	"math"
	"time"
)

// NoTimeout may be passed as an acquisition timeout to block indefinitely
const NoTimeout time.Duration = -1

// TimeoutMillis converts an acquisition timeout to the whole milliseconds a
// 32-bit driver argument can hold.  Negative timeouts give -1 and timeouts too
// long to represent are clamped to math.MaxInt32.
func TimeoutMillis(timeout time.Duration) int32 {
	if timeout < 0 {
		return -1
	}
	ms := timeout.Milliseconds()
	if ms > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(ms)
}

// Parameter is the name of a hardware parameter, e.g. "AdcSpeed"
type Parameter string

const (
	// KindFloat is a floating point parameter
	KindFloat = "float"

	// KindInt is an integer (or enumerated) parameter
	KindInt = "int"
)

var (
	// Parameters maps the parameters known to this package to their value kind.
	// Drivers may support a subset; unsupported ones are rejected at commit.
	Parameters = map[Parameter]string{
		// floats
		"AdcSpeed":                  KindFloat,
		"ExposureTime":              KindFloat,
		"SensorTemperatureSetPoint": KindFloat,
		"ShutterClosingDelay":       KindFloat,
		"ShutterOpeningDelay":       KindFloat,
		"VerticalShiftRate":         KindFloat,

		// ints
		"AdcAnalogGain":        KindInt,
		"AdcQuality":           KindInt,
		"CleanCycleCount":      KindInt,
		"CleanCycleHeight":     KindInt,
		"ReadoutControlMode":   KindInt,
		"ShutterTimingMode":    KindInt,
		"TriggerDetermination": KindInt,
		"TriggerResponse":      KindInt,
	}
)

// Configurable describes a camera which stages parameter changes and applies
// them to hardware in a single commit
type Configurable interface {
	// SetParameterFloat stages a floating point parameter.  It does not touch
	// the hardware until CommitParameters is called
	SetParameterFloat(Parameter, float64) error

	// SetParameterInt stages an integer parameter
	SetParameterInt(Parameter, int) error

	// CommitParameters validates and applies every staged value, returning the
	// parameters which failed validation.  Those keep their prior value.
	CommitParameters() ([]Parameter, error)
}

// Acquirer describes a camera which can perform a blocking acquisition
type Acquirer interface {
	// Acquire collects readouts frames, waiting at most timeout.  NoTimeout
	// blocks indefinitely.  The returned data is owned by the device and may be
	// overwritten by the next call.
	Acquire(readouts int, timeout time.Duration) (AvailableData, error)
}

// Sensor describes a camera which knows its full frame readout geometry
type Sensor interface {
	// GetShape returns the rows and columns of a full frame readout
	GetShape() (Shape, error)
}

// Device is everything the preview needs from a camera
type Device interface {
	Configurable
	Acquirer
	Sensor
}

// Shape is the geometry of a frame
type Shape struct {
	// Rows is the number of rows (height) in pixels
	Rows int `json:"rows" yaml:"Rows"`

	// Cols is the number of columns (width) in pixels
	Cols int `json:"cols" yaml:"Cols"`
}

// Pixels is Rows*Cols
func (s Shape) Pixels() int {
	return s.Rows * s.Cols
}

// AvailableData is the result of an acquisition as reported by a driver.
// InitialReadout aliases device memory.
type AvailableData struct {
	// InitialReadout is the first readout, row major
	InitialReadout []uint16

	// ReadoutCount is the number of readouts completed
	ReadoutCount int
}

// RawFrame is one readout copied out of device memory
type RawFrame struct {
	// Rows is the height of the frame
	Rows int

	// Cols is the width of the frame
	Cols int

	// Pix holds the intensities, row major
	Pix []uint16

	// ReadoutCount is the number of readouts the device reported completing
	ReadoutCount int
}

// Shape returns the geometry of the frame
func (f RawFrame) Shape() Shape {
	return Shape{Rows: f.Rows, Cols: f.Cols}
}

// Image converts the frame to a 16-bit grayscale image.  The pixel data is
// copied, the frame is not modified.
func (f RawFrame) Image() *image.Gray16 {
	im := image.NewGray16(image.Rect(0, 0, f.Cols, f.Rows))
	for idx, v := range f.Pix {
		// big endian, per image.Gray16
		im.Pix[2*idx] = byte(v >> 8)
		im.Pix[2*idx+1] = byte(v)
	}
	return im
}
