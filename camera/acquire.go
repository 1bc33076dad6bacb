package camera

import "time"

// AcquireOneFrame performs exactly one blocking single-readout acquisition and
// copies the result out of device memory.
//
// A device error that is not an incomplete readout yields an
// *AcquisitionUnavailable and no frame.  Fewer than one completed readout
// yields a *PartialAcquisition along with whatever the device delivered.  A
// buffer that does not hold shape.Pixels() values yields a
// *MalformedFrameGeometry.  Only a nil error means the frame may be processed.
func AcquireOneFrame(dev Acquirer, shape Shape, timeout time.Duration) (RawFrame, error) {
	const requested = 1
	frame := RawFrame{Rows: shape.Rows, Cols: shape.Cols}
	data, err := dev.Acquire(requested, timeout)
	if err != nil && !IsIncompleteReadout(err) {
		return frame, &AcquisitionUnavailable{Err: err}
	}
	frame.ReadoutCount = data.ReadoutCount

	complete := len(data.InitialReadout) == shape.Pixels()
	if complete {
		frame.Pix = copyReadout(data.InitialReadout)
	}
	if data.ReadoutCount < requested || err != nil {
		return frame, &PartialAcquisition{Requested: requested, Completed: data.ReadoutCount, Err: err}
	}
	if !complete {
		return frame, &MalformedFrameGeometry{
			Expected: shape,
			Rows:     shape.Rows,
			Cols:     shape.Cols,
			Len:      len(data.InitialReadout)}
	}
	return frame, nil
}

func copyReadout(src []uint16) []uint16 {
	out := make([]uint16, len(src))
	copy(out, src)
	return out
}
