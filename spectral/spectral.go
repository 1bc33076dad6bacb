/*Package spectral turns raw sensor frames into a normalized log-magnitude
spectral image.

The transform runs along each row independently, so the slit axis of a
spectrograph is preserved while the dispersion axis is taken to frequency
space.  The steps are, in order:

 1. pad to DFT-friendly sizes (zeros bottom/right)
 2. embed as complex with zero imaginary part
 3. per-row DFT
 4. magnitude
 5. crop to even dimensions
 6. natural log, floored at Epsilon
 7. min-max normalize to [0,1]

ToSpectralImage performs each step with its own exported helper and allocates
freely.  A Processor does the same work for a fixed frame shape with
preallocated transform plans and workspaces, for use in a live loop.
*/
package spectral

import (
	"math"
	"math/cmplx"

	"github.jpl.nasa.gov/bdube/ccdpreview/camera"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Epsilon is the floor applied to magnitudes before taking their log
const Epsilon = 1e-6

// OptimalDFTSize returns the smallest n' >= n whose only prime factors are 2, 3
// and 5.  Sizes <= 1 return 1.
func OptimalDFTSize(n int) int {
	if n <= 1 {
		return 1
	}
	for m := n; ; m++ {
		if smooth(m) {
			return m
		}
	}
}

func smooth(n int) bool {
	for _, p := range [...]int{2, 3, 5} {
		for n%p == 0 {
			n /= p
		}
	}
	return n == 1
}

func checkFrame(frame camera.RawFrame) error {
	if frame.Rows < 2 || frame.Cols < 2 || len(frame.Pix) != frame.Rows*frame.Cols {
		return &camera.MalformedFrameGeometry{
			Expected: frame.Shape(),
			Rows:     frame.Rows,
			Cols:     frame.Cols,
			Len:      len(frame.Pix)}
	}
	return nil
}

// FrameMatrix converts a frame to a float64 matrix.  Frames smaller than 2x2
// or whose buffer does not match their shape return a
// *camera.MalformedFrameGeometry.
func FrameMatrix(frame camera.RawFrame) (*mat.Dense, error) {
	if err := checkFrame(frame); err != nil {
		return nil, err
	}
	data := make([]float64, len(frame.Pix))
	for i, v := range frame.Pix {
		data[i] = float64(v)
	}
	return mat.NewDense(frame.Rows, frame.Cols, data), nil
}

// Pad returns a copy of m extended to OptimalDFTSize in each dimension.  The
// new rows and columns are zero and m occupies the top left corner.
func Pad(m mat.Matrix) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(OptimalDFTSize(r), OptimalDFTSize(c), nil)
	out.Copy(m)
	return out
}

// Embed returns a complex matrix with the real part m and zero imaginary part
func Embed(m mat.Matrix) *mat.CDense {
	r, c := m.Dims()
	out := mat.NewCDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, complex(m.At(i, j), 0))
		}
	}
	return out
}

// RowDFT returns the unnormalized forward DFT of each row of m.  Columns are
// not mixed.
func RowDFT(m *mat.CDense) *mat.CDense {
	r, c := m.Dims()
	out := mat.NewCDense(r, c, nil)
	fft := fourier.NewCmplxFFT(c)
	row := make([]complex128, c)
	coef := make([]complex128, c)
	for i := 0; i < r; i++ {
		for j := range row {
			row[j] = m.At(i, j)
		}
		fft.Coefficients(coef, row)
		for j, v := range coef {
			out.Set(i, j, v)
		}
	}
	return out
}

// Magnitude returns the pointwise hypot of the real and imaginary parts of m
func Magnitude(m *mat.CDense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			out.Set(i, j, cmplx.Abs(m.At(i, j)))
		}
	}
	return out
}

// CropEven returns a copy of m with its last row and column dropped if there
// are an odd number of them
func CropEven(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	return mat.DenseCopyOf(m.Slice(0, r&^1, 0, c&^1))
}

// LogCompress returns the natural log of each element of m, with elements
// below Epsilon taken as Epsilon
func LogCompress(m *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 {
		return logFloor(v)
	}, m)
	return &out
}

func logFloor(v float64) float64 {
	if v < Epsilon || math.IsNaN(v) {
		v = Epsilon
	}
	return math.Log(v)
}

// Normalize linearly rescales m so its minimum is 0 and its maximum is 1.
// A constant matrix becomes all zeros.
func Normalize(m *mat.Dense) *mat.Dense {
	r, c := m.Dims()
	out := mat.NewDense(r, c, nil)
	lo, hi := mat.Min(m), mat.Max(m)
	span := hi - lo
	if span <= 0 || math.IsInf(span, 0) || math.IsNaN(span) {
		return out
	}
	out.Apply(func(_, _ int, v float64) float64 {
		return (v - lo) / span
	}, m)
	return out
}

// ToSpectralImage runs the full pipeline on a frame.  The frame is not
// modified.
func ToSpectralImage(frame camera.RawFrame) (Image, error) {
	m, err := FrameMatrix(frame)
	if err != nil {
		return Image{}, err
	}
	mag := Magnitude(RowDFT(Embed(Pad(m))))
	return Image{M: Normalize(LogCompress(CropEven(mag)))}, nil
}

// Processor runs the pipeline on frames of one shape
type Processor struct {
	shape      camera.Shape
	outR, outC int

	fft  *fourier.CmplxFFT
	row  []complex128
	coef []complex128
	mag  []float64 // outR*outC, log magnitude
}

// NewProcessor returns a Processor for frames of the given shape.  Shapes
// smaller than 2x2 return a *camera.MalformedFrameGeometry.
func NewProcessor(shape camera.Shape) (*Processor, error) {
	if shape.Rows < 2 || shape.Cols < 2 {
		return nil, &camera.MalformedFrameGeometry{Expected: shape, Rows: shape.Rows, Cols: shape.Cols}
	}
	padR, padC := OptimalDFTSize(shape.Rows), OptimalDFTSize(shape.Cols)
	outR, outC := padR&^1, padC&^1
	return &Processor{
		shape: shape,
		outR:  outR,
		outC:  outC,
		fft:   fourier.NewCmplxFFT(padC),
		row:   make([]complex128, padC),
		coef:  make([]complex128, padC),
		mag:   make([]float64, outR*outC),
	}, nil
}

// Shape returns the frame shape the processor accepts
func (p *Processor) Shape() camera.Shape {
	return p.shape
}

// OutputShape returns the shape of the images Process produces
func (p *Processor) OutputShape() camera.Shape {
	return camera.Shape{Rows: p.outR, Cols: p.outC}
}

// Process runs the pipeline on frame, which must have the processor's shape.
// The returned image is newly allocated and does not share memory with the
// processor or the frame.
func (p *Processor) Process(frame camera.RawFrame) (Image, error) {
	if err := checkFrame(frame); err != nil {
		return Image{}, err
	}
	if frame.Rows != p.shape.Rows || frame.Cols != p.shape.Cols {
		return Image{}, &camera.MalformedFrameGeometry{
			Expected: p.shape,
			Rows:     frame.Rows,
			Cols:     frame.Cols,
			Len:      len(frame.Pix)}
	}

	// padding rows are zero, their transform is zero
	zero := logFloor(0)
	for i := 0; i < p.outR; i++ {
		dst := p.mag[i*p.outC : (i+1)*p.outC]
		if i >= frame.Rows {
			for j := range dst {
				dst[j] = zero
			}
			continue
		}
		src := frame.Pix[i*frame.Cols : (i+1)*frame.Cols]
		for j := range p.row {
			if j < len(src) {
				p.row[j] = complex(float64(src[j]), 0)
			} else {
				p.row[j] = 0
			}
		}
		p.fft.Coefficients(p.coef, p.row)
		for j := range dst {
			dst[j] = logFloor(cmplx.Abs(p.coef[j]))
		}
	}

	lo, hi := floats.Min(p.mag), floats.Max(p.mag)
	out := make([]float64, len(p.mag))
	if span := hi - lo; span > 0 && !math.IsInf(span, 0) {
		floats.AddConstTo(out, -lo, p.mag)
		for i := range out {
			out[i] /= span
		}
	}
	return Image{M: mat.NewDense(p.outR, p.outC, out)}, nil
}
