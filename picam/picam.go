/*Package picam exposes control of Princeton Instruments cameras in Go via the
PICam SDK.

The library must be initialized before a camera is opened and uninitialized
after the last one is closed.  A Camera satisfies camera.Device.

 if err := picam.InitializeLibrary(); err != nil { ... }
 defer picam.UninitializeLibrary()
 cam, err := picam.OpenFirstCamera()
 if err != nil { ... }
 defer cam.Close()

*/
package picam

/*
#cgo CFLAGS: -I/opt/PrincetonInstruments/picam/includes
#cgo LDFLAGS: -L/opt/PrincetonInstruments/picam/runtime -lpicam
#include <stdlib.h>
#include <picam.h>
*/
import "C"
import (
	"fmt"
	"log"
	"time"
	"unsafe"

	"github.jpl.nasa.gov/bdube/ccdpreview/camera"
)

var (
	// Parameters maps parameter names to SDK identifiers.  Only these may be
	// staged.
	Parameters = map[camera.Parameter]C.PicamParameter{
		// floats
		"AdcSpeed":                  C.PicamParameter_AdcSpeed,
		"ExposureTime":              C.PicamParameter_ExposureTime,
		"SensorTemperatureSetPoint": C.PicamParameter_SensorTemperatureSetPoint,
		"ShutterClosingDelay":       C.PicamParameter_ShutterClosingDelay,
		"ShutterOpeningDelay":       C.PicamParameter_ShutterOpeningDelay,
		"VerticalShiftRate":         C.PicamParameter_VerticalShiftRate,

		// ints
		"AdcAnalogGain":        C.PicamParameter_AdcAnalogGain,
		"AdcQuality":           C.PicamParameter_AdcQuality,
		"CleanCycleCount":      C.PicamParameter_CleanCycleCount,
		"CleanCycleHeight":     C.PicamParameter_CleanCycleHeight,
		"ReadoutControlMode":   C.PicamParameter_ReadoutControlMode,
		"ShutterTimingMode":    C.PicamParameter_ShutterTimingMode,
		"TriggerDetermination": C.PicamParameter_TriggerDetermination,
		"TriggerResponse":      C.PicamParameter_TriggerResponse,
	}
)

func parameterName(p C.PicamParameter) camera.Parameter {
	for k, v := range Parameters {
		if v == p {
			return k
		}
	}
	return camera.Parameter(enumString(C.PicamEnumeratedType_Parameter, C.piint(p)))
}

// ID identifies a camera
type ID struct {
	// Model is the SDK's name for the camera model
	Model string `json:"model"`

	// SerialNumber is the camera's serial number
	SerialNumber string `json:"serialNumber"`

	// SensorName is the name of the sensor
	SensorName string `json:"sensorName"`
}

// String formats the ID as "model (SN:serial) [sensor]"
func (id ID) String() string {
	return fmt.Sprintf("%s (SN:%s) [%s]", id.Model, id.SerialNumber, id.SensorName)
}

// Camera is an open PICam camera
type Camera struct {
	handle C.PicamHandle
	cid    C.PicamCameraID
	demo   bool

	// id is cached at open
	id ID

	// shape is cached at open
	shape camera.Shape

	// readoutPixels is the number of uint16 pixels in one readout.  It is
	// refreshed after every commit, which may change the ROI.
	readoutPixels int
}

// OpenFirstCamera opens the first camera the SDK finds
func OpenFirstCamera() (*Camera, error) {
	var h C.PicamHandle
	if err := enrich(C.Picam_OpenFirstCamera(&h), "Picam_OpenFirstCamera"); err != nil {
		return nil, err
	}
	return newCamera(h, false)
}

// OpenDemoCamera connects a simulated PIXIS 400B with the given serial
// number and opens it
func OpenDemoCamera(serial string) (*Camera, error) {
	cs := C.CString(serial)
	defer C.free(unsafe.Pointer(cs))
	var id C.PicamCameraID
	err := enrich(C.Picam_ConnectDemoCamera(C.PicamModel_Pixis400B, (*C.pichar)(unsafe.Pointer(cs)), &id), "Picam_ConnectDemoCamera")
	if err != nil {
		return nil, err
	}
	var h C.PicamHandle
	if err := enrich(C.Picam_OpenCamera(&id, &h), "Picam_OpenCamera"); err != nil {
		C.Picam_DisconnectDemoCamera(&id)
		return nil, err
	}
	return newCamera(h, true)
}

func newCamera(h C.PicamHandle, demo bool) (*Camera, error) {
	c := &Camera{handle: h, demo: demo}
	if err := enrich(C.Picam_GetCameraID(h, &c.cid), "Picam_GetCameraID"); err != nil {
		c.Close()
		return nil, err
	}
	c.id = ID{
		Model:        enumString(C.PicamEnumeratedType_Model, C.piint(c.cid.model)),
		SerialNumber: goString(&c.cid.serial_number[0]),
		SensorName:   goString(&c.cid.sensor_name[0]),
	}
	rows, err := c.getInt(C.PicamParameter_SensorActiveHeight, "SensorActiveHeight")
	if err != nil {
		c.Close()
		return nil, err
	}
	cols, err := c.getInt(C.PicamParameter_SensorActiveWidth, "SensorActiveWidth")
	if err != nil {
		c.Close()
		return nil, err
	}
	c.shape = camera.Shape{Rows: rows, Cols: cols}
	if err := c.refreshReadout(); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the camera, and disconnects it if it is a demo
func (c *Camera) Close() error {
	err := enrich(C.Picam_CloseCamera(c.handle), "Picam_CloseCamera")
	if c.demo {
		C.Picam_DisconnectDemoCamera(&c.cid)
	}
	return err
}

// ID returns the camera's identity
func (c *Camera) ID() ID {
	return c.id
}

// GetShape returns the active area of the sensor
func (c *Camera) GetShape() (camera.Shape, error) {
	return c.shape, nil
}

func (c *Camera) getInt(p C.PicamParameter, name string) (int, error) {
	var v C.piint
	err := enrich(C.Picam_GetParameterIntegerValue(c.handle, p, &v), "Picam_GetParameterIntegerValue("+name+")")
	return int(v), err
}

func (c *Camera) refreshReadout() error {
	stride, err := c.getInt(C.PicamParameter_ReadoutStride, "ReadoutStride")
	if err != nil {
		return err
	}
	c.readoutPixels = stride / 2
	return nil
}

// SetParameterFloat stages a floating point parameter
func (c *Camera) SetParameterFloat(p camera.Parameter, v float64) error {
	id, ok := Parameters[p]
	if !ok {
		return camera.ErrParameterNotFound
	}
	if camera.Parameters[p] != camera.KindFloat {
		return camera.ErrWrongKind
	}
	return enrich(C.Picam_SetParameterFloatingPointValue(c.handle, id, C.piflt(v)), "Picam_SetParameterFloatingPointValue("+string(p)+")")
}

// SetParameterInt stages an integer parameter
func (c *Camera) SetParameterInt(p camera.Parameter, v int) error {
	id, ok := Parameters[p]
	if !ok {
		return camera.ErrParameterNotFound
	}
	if camera.Parameters[p] != camera.KindInt {
		return camera.ErrWrongKind
	}
	return enrich(C.Picam_SetParameterIntegerValue(c.handle, id, C.piint(v)), "Picam_SetParameterIntegerValue("+string(p)+")")
}

// AreParametersCommitted is true if nothing is staged
func (c *Camera) AreParametersCommitted() (bool, error) {
	var b C.pibln
	err := enrich(C.Picam_AreParametersCommitted(c.handle, &b), "Picam_AreParametersCommitted")
	return b != 0, err
}

// CommitParameters validates and applies the staged values and returns the
// ones the camera refused
func (c *Camera) CommitParameters() ([]camera.Parameter, error) {
	var (
		failed *C.PicamParameter
		n      C.piint
	)
	code := C.Picam_CommitParameters(c.handle, &failed, &n)
	var out []camera.Parameter
	if failed != nil {
		for _, p := range unsafe.Slice(failed, int(n)) {
			out = append(out, parameterName(p))
		}
		C.Picam_DestroyParameters(failed)
	}
	// the SDK reports a refused commit with a non-None code and the failures
	if err := enrich(code, "Picam_CommitParameters"); err != nil {
		if len(out) == 0 {
			return nil, err
		}
		log.Printf("commit rejected %d parameter(s): %v", len(out), err)
	}
	if err := c.refreshReadout(); err != nil {
		log.Printf("error refreshing readout stride after commit: %v", err)
	}
	return out, nil
}

// Acquire collects readouts frames and waits up to timeout, or forever if
// timeout is negative.  InitialReadout points into SDK memory and is valid
// until the next call.
func (c *Camera) Acquire(readouts int, timeout time.Duration) (camera.AvailableData, error) {
	tout := C.piint(NoTimeout)
	if timeout >= 0 {
		tout = C.piint(camera.TimeoutMillis(timeout))
	}
	var (
		data C.PicamAvailableData
		mask C.PicamAcquisitionErrorsMask
	)
	code := C.Picam_Acquire(c.handle, C.pi64s(readouts), tout, &data, &mask)
	out := camera.AvailableData{ReadoutCount: int(data.readout_count)}
	if data.initial_readout != nil && data.readout_count > 0 {
		out.InitialReadout = unsafe.Slice((*uint16)(data.initial_readout), c.readoutPixels)
	}
	if err := enrich(code, "Picam_Acquire"); err != nil {
		return out, err
	}
	if mask != C.PicamAcquisitionErrorsMask_None {
		return out, AcquisitionErrors(mask)
	}
	return out, nil
}
