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
	"unsafe"
)

// NoTimeout is the SDK's sentinel for an acquisition that blocks forever
const NoTimeout = -1

// PicamError is an error code returned by the SDK
type PicamError int

// Error satisfies the error interface.  The SDK supplies the string.
func (e PicamError) Error() string {
	return fmt.Sprintf("%d - %s", int(e), enumString(C.PicamEnumeratedType_Error, C.piint(e)))
}

// IncompleteReadout is true for a time out, which leaves the acquisition
// with fewer readouts than asked for
func (e PicamError) IncompleteReadout() bool {
	return e == PicamError(C.PicamError_TimeOutOccurred)
}

// AcquisitionErrors is the mask of problems Picam_Acquire can report besides
// its return code
type AcquisitionErrors int

const (
	// DataLost means one or more readouts were dropped
	DataLost = AcquisitionErrors(C.PicamAcquisitionErrorsMask_DataLost)

	// ConnectionLost means the camera went away during acquisition
	ConnectionLost = AcquisitionErrors(C.PicamAcquisitionErrorsMask_ConnectionLost)
)

// Error satisfies the error interface
func (m AcquisitionErrors) Error() string {
	switch {
	case m&ConnectionLost != 0 && m&DataLost != 0:
		return "acquisition errors: data lost, connection lost"
	case m&ConnectionLost != 0:
		return "acquisition errors: connection lost"
	case m&DataLost != 0:
		return "acquisition errors: data lost"
	default:
		return fmt.Sprintf("acquisition errors: mask %#x", int(m))
	}
}

// IncompleteReadout is true when data was lost but the camera is still there
func (m AcquisitionErrors) IncompleteReadout() bool {
	return m&ConnectionLost == 0
}

// enrich returns nil for PicamError_None, otherwise a PicamError decorated
// with the procedure called
func enrich(code C.PicamError, procedure string) error {
	if code == C.PicamError_None {
		return nil
	}
	return fmt.Errorf("%w encountered at call to %s", PicamError(code), procedure)
}

// enumString asks the SDK for the name of an enumerated value
func enumString(typ C.PicamEnumeratedType, value C.piint) string {
	var s *C.pichar
	if C.Picam_GetEnumerationString(typ, value, &s) != C.PicamError_None || s == nil {
		return "UNKNOWN"
	}
	defer C.Picam_DestroyString(s)
	return C.GoString((*C.char)(unsafe.Pointer(s)))
}

func goString(s *C.pichar) string {
	return C.GoString((*C.char)(unsafe.Pointer(s)))
}

// InitializeLibrary calls the function of the same name in the SDK.  It must
// be called before any camera is opened.
func InitializeLibrary() error {
	return enrich(C.Picam_InitializeLibrary(), "Picam_InitializeLibrary")
}

// UninitializeLibrary releases the SDK.  Every camera must be closed first.
func UninitializeLibrary() error {
	return enrich(C.Picam_UninitializeLibrary(), "Picam_UninitializeLibrary")
}

// Version returns the SDK version as major.minor.distribution
func Version() (string, error) {
	var major, minor, dist, released C.piint
	err := enrich(C.Picam_GetVersion(&major, &minor, &dist, &released), "Picam_GetVersion")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d.%d.%d", int(major), int(minor), int(dist)), nil
}
