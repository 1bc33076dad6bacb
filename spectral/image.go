package spectral

import (
	"image"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Image is a spectral image with values in [0,1]
type Image struct {
	M *mat.Dense
}

// Dims returns the rows and columns of the image.  The zero Image is 0x0.
func (i Image) Dims() (rows, cols int) {
	if i.M == nil {
		return 0, 0
	}
	return i.M.Dims()
}

// Empty is true for the zero Image
func (i Image) Empty() bool {
	return i.M == nil
}

// Clone returns a deep copy of the image
func (i Image) Clone() Image {
	if i.M == nil {
		return Image{}
	}
	return Image{M: mat.DenseCopyOf(i.M)}
}

// Float32 returns the values row major as float32
func (i Image) Float32() []float32 {
	r, c := i.Dims()
	out := make([]float32, 0, r*c)
	for y := 0; y < r; y++ {
		for x := 0; x < c; x++ {
			out = append(out, float32(i.M.At(y, x)))
		}
	}
	return out
}

// Gray renders the image with 0 black and 1 white
func (i Image) Gray() *image.Gray {
	r, c := i.Dims()
	im := image.NewGray(image.Rect(0, 0, c, r))
	for y := 0; y < r; y++ {
		for x := 0; x < c; x++ {
			im.Pix[y*im.Stride+x] = uint8(quantize(i.M.At(y, x), math.MaxUint8))
		}
	}
	return im
}

// Gray16 renders the image with 0 black and 1 white at 16 bits
func (i Image) Gray16() *image.Gray16 {
	r, c := i.Dims()
	im := image.NewGray16(image.Rect(0, 0, c, r))
	for y := 0; y < r; y++ {
		for x := 0; x < c; x++ {
			v := uint16(quantize(i.M.At(y, x), math.MaxUint16))
			off := y*im.Stride + 2*x
			im.Pix[off] = byte(v >> 8)
			im.Pix[off+1] = byte(v)
		}
	}
	return im
}

func quantize(v, max float64) float64 {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	if v >= 1 {
		return max
	}
	return math.Round(v * max)
}
