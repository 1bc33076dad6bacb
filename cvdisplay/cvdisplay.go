/*Package cvdisplay shows the preview in a pair of OpenCV windows and stops it
on a key press.

Windows must be created, shown and polled from the same OS thread, normally
the main one.
*/
package cvdisplay

import (
	"unsafe"

	"github.jpl.nasa.gov/bdube/ccdpreview/camera"
	"github.jpl.nasa.gov/bdube/ccdpreview/spectral"
	"gocv.io/x/gocv"
)

const (
	// RawTitle is the title of the raw frame window
	RawTitle = "Raw Image"

	// SpectrumTitle is the title of the spectrum window
	SpectrumTitle = "Spectrum"

	// DefaultDelay is how long Cancelled waits for a key, in milliseconds
	DefaultDelay = 20
)

// Windows is a raw and spectrum window pair.  It satisfies preview.Display
// and preview.Canceller.
type Windows struct {
	raw, spec *gocv.Window

	// Delay is the key wait in Cancelled, in milliseconds
	Delay int
}

// Open creates both windows resizable at width x height
func Open(width, height int) *Windows {
	w := &Windows{
		spec:  gocv.NewWindow(SpectrumTitle),
		raw:   gocv.NewWindow(RawTitle),
		Delay: DefaultDelay,
	}
	w.spec.ResizeWindow(width, height)
	w.raw.ResizeWindow(width, height)
	return w
}

// Show draws the raw frame and the spectrum.  Frames that cannot be converted
// are not drawn and the previous image stays up.
func (w *Windows) Show(raw camera.RawFrame, spec spectral.Image) {
	if m, err := RawMat(raw); err == nil {
		w.raw.IMShow(m)
		m.Close()
	}
	if m, err := SpectrumMat(spec); err == nil {
		w.spec.IMShow(m)
		m.Close()
	}
}

// Cancelled waits up to Delay ms for a key press in either window.  It also
// services the window event queue, so it must be called regularly.
func (w *Windows) Cancelled() bool {
	return w.raw.WaitKey(w.Delay) >= 0
}

// Close destroys both windows
func (w *Windows) Close() error {
	err := w.raw.Close()
	if err2 := w.spec.Close(); err == nil {
		err = err2
	}
	return err
}

// RawMat wraps a frame as a single channel 16-bit Mat.  The caller must Close
// it.
func RawMat(f camera.RawFrame) (gocv.Mat, error) {
	return gocv.NewMatFromBytes(f.Rows, f.Cols, gocv.MatTypeCV16U, u16Bytes(f.Pix))
}

// SpectrumMat wraps a spectral image as a single channel 32-bit float Mat.
// The caller must Close it.
func SpectrumMat(im spectral.Image) (gocv.Mat, error) {
	r, c := im.Dims()
	return gocv.NewMatFromBytes(r, c, gocv.MatTypeCV32F, f32Bytes(im.Float32()))
}

// u16Bytes reinterprets s in native byte order, as OpenCV expects
func u16Bytes(s []uint16) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), 2*len(s))
}

func f32Bytes(s []float32) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), 4*len(s))
}
