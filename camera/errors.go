package camera

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrParameterNotFound is generated when a parameter is not in the
	// Parameters map or is not supported by a driver
	ErrParameterNotFound = errors.New("parameter not found")

	// ErrWrongKind is generated when a float is staged on an int parameter or
	// vice versa
	ErrWrongKind = errors.New("value kind does not match parameter")
)

// ConfigurationRejected is generated when one or more staged parameters fail
// validation at commit.  It is not fatal, the other parameters were applied.
type ConfigurationRejected struct {
	// Rejected are the parameters which kept their prior value
	Rejected []Parameter
}

// Error satisfies the error interface
func (e *ConfigurationRejected) Error() string {
	strs := make([]string, len(e.Rejected))
	for i, p := range e.Rejected {
		strs[i] = string(p)
	}
	return fmt.Sprintf("%d parameter(s) rejected at commit: %s", len(strs), strings.Join(strs, ", "))
}

// PartialAcquisition is generated when fewer readouts completed than requested
type PartialAcquisition struct {
	// Requested is the number of readouts asked for
	Requested int

	// Completed is the number of readouts the device delivered
	Completed int

	// Err is the device error, if there was one
	Err error
}

// Error satisfies the error interface
func (e *PartialAcquisition) Error() string {
	s := fmt.Sprintf("camera only collected %d of %d frames", e.Completed, e.Requested)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the device error
func (e *PartialAcquisition) Unwrap() error {
	return e.Err
}

// AcquisitionUnavailable is generated when the device could not produce any
// data for reasons other than an incomplete readout
type AcquisitionUnavailable struct {
	Err error
}

// Error satisfies the error interface
func (e *AcquisitionUnavailable) Error() string {
	s := "acquisition unavailable"
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap returns the device error
func (e *AcquisitionUnavailable) Unwrap() error {
	return e.Err
}

// MalformedFrameGeometry is generated when a frame's buffer does not agree
// with its shape or with the sensor's shape
type MalformedFrameGeometry struct {
	// Expected is the shape the frame should have had
	Expected Shape

	// Rows and Cols are the shape the frame claimed
	Rows, Cols int

	// Len is the length of the pixel buffer
	Len int
}

// Error satisfies the error interface
func (e *MalformedFrameGeometry) Error() string {
	return fmt.Sprintf("malformed frame geometry: expected %dx%d, got %dx%d with %d pixels",
		e.Expected.Rows, e.Expected.Cols, e.Rows, e.Cols, e.Len)
}

// incompleteReadout is implemented by driver errors that describe an
// acquisition which ran but delivered fewer readouts than requested, such as a
// timeout or lost data
type incompleteReadout interface {
	IncompleteReadout() bool
}

// IsIncompleteReadout returns true if err (or anything it wraps) reports
// itself as an incomplete readout
func IsIncompleteReadout(err error) bool {
	var ir incompleteReadout
	if errors.As(err, &ir) {
		return ir.IncompleteReadout()
	}
	return false
}
