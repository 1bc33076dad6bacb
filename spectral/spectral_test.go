package spectral

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"math/rand"
	"testing"

	"github.jpl.nasa.gov/bdube/ccdpreview/camera"
	"gonum.org/v1/gonum/mat"
)

func frameOf(rows, cols int, f func(r, c int) uint16) camera.RawFrame {
	pix := make([]uint16, rows*cols)
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			pix[r*cols+c] = f(r, c)
		}
	}
	return camera.RawFrame{Rows: rows, Cols: cols, Pix: pix, ReadoutCount: 1}
}

func noiseFrame(rows, cols int, seed int64) camera.RawFrame {
	rng := rand.New(rand.NewSource(seed))
	return frameOf(rows, cols, func(_, _ int) uint16 { return uint16(rng.Intn(4096)) })
}

func checkUnitRange(t *testing.T, im Image) {
	t.Helper()
	r, c := im.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			v := im.M.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 || v > 1 {
				t.Fatalf("value at (%d,%d) = %v is not finite in [0,1]", i, j, v)
			}
		}
	}
}

func ExampleOptimalDFTSize() {
	for _, n := range []int{400, 1340, 7, 11, 13} {
		fmt.Print(OptimalDFTSize(n), " ")
	}
	// Output: 400 1350 8 12 15
}

func TestOptimalDFTSizeIsSmallestSmoothAtLeastN(t *testing.T) {
	for n := 1; n < 2000; n++ {
		m := OptimalDFTSize(n)
		if m < n || !smooth(m) {
			t.Fatalf("OptimalDFTSize(%d) = %d is not a 5-smooth number >= n", n, m)
		}
		for k := n; k < m; k++ {
			if smooth(k) {
				t.Fatalf("OptimalDFTSize(%d) = %d, but %d is smaller and smooth", n, m, k)
			}
		}
	}
}

func TestOutputDimsEvenAndWithinBounds(t *testing.T) {
	shapes := []camera.Shape{{Rows: 2, Cols: 2}, {Rows: 3, Cols: 5}, {Rows: 7, Cols: 11}, {Rows: 13, Cols: 17}, {Rows: 40, Cols: 134}}
	for _, s := range shapes {
		im, err := ToSpectralImage(noiseFrame(s.Rows, s.Cols, 1))
		if err != nil {
			t.Fatal(err)
		}
		r, c := im.Dims()
		if r%2 != 0 || c%2 != 0 {
			t.Errorf("%v: output %dx%d is not even", s, r, c)
		}
		if r > OptimalDFTSize(s.Rows) || c > OptimalDFTSize(s.Cols) {
			t.Errorf("%v: output %dx%d larger than padded size", s, r, c)
		}
		if r < s.Rows-1 || c < s.Cols-1 {
			t.Errorf("%v: output %dx%d smaller than input minus one", s, r, c)
		}
	}
}

func TestPadThenCropIsIdentityOnOptimalEvenSize(t *testing.T) {
	m, err := FrameMatrix(noiseFrame(8, 12, 2))
	if err != nil {
		t.Fatal(err)
	}
	padded := Pad(m)
	if r, c := padded.Dims(); r != 8 || c != 12 {
		t.Fatalf("padding an optimal size added rows or columns, got %dx%d", r, c)
	}
	cropped := CropEven(padded)
	if !mat.Equal(cropped, m) {
		t.Error("pad then crop changed an optimally sized even matrix")
	}
}

func TestPadKeepsTopLeftAndZeroFills(t *testing.T) {
	m, err := FrameMatrix(noiseFrame(7, 11, 3))
	if err != nil {
		t.Fatal(err)
	}
	padded := Pad(m)
	r, c := padded.Dims()
	if r != 8 || c != 12 {
		t.Fatalf("expected 8x12 got %dx%d", r, c)
	}
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			got := padded.At(i, j)
			if i < 7 && j < 11 {
				if got != m.At(i, j) {
					t.Fatalf("top left changed at (%d,%d)", i, j)
				}
			} else if got != 0 {
				t.Fatalf("padding at (%d,%d) is %v, not zero", i, j, got)
			}
		}
	}
}

func TestRowDFTMatchesDirectSum(t *testing.T) {
	m, err := FrameMatrix(noiseFrame(3, 10, 4))
	if err != nil {
		t.Fatal(err)
	}
	got := RowDFT(Embed(m))
	r, c := m.Dims()
	for i := 0; i < r; i++ {
		for k := 0; k < c; k++ {
			var want complex128
			for n := 0; n < c; n++ {
				phase := -2 * math.Pi * float64(k*n) / float64(c)
				want += complex(m.At(i, n), 0) * cmplx.Exp(complex(0, phase))
			}
			if d := cmplx.Abs(got.At(i, k) - want); d > 1e-6 {
				t.Fatalf("row %d bin %d: got %v want %v", i, k, got.At(i, k), want)
			}
		}
	}
}

func TestRowDFTDoesNotMixRows(t *testing.T) {
	// only the middle row carries signal
	frame := frameOf(5, 16, func(r, c int) uint16 {
		if r == 2 {
			return uint16(1000 + 500*math.Cos(2*math.Pi*3*float64(c)/16))
		}
		return 0
	})
	m, _ := FrameMatrix(frame)
	mag := Magnitude(RowDFT(Embed(m)))
	for _, r := range []int{0, 1, 3, 4} {
		for c := 0; c < 16; c++ {
			if mag.At(r, c) != 0 {
				t.Fatalf("row %d picked up energy at bin %d", r, c)
			}
		}
	}
	if mag.At(2, 3) < 100*mag.At(2, 5)+1 {
		t.Errorf("expected a peak at bin 3, got %v vs %v at bin 5", mag.At(2, 3), mag.At(2, 5))
	}
}

func TestNormalizeHitsZeroAndOneExactly(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	data := make([]float64, 6*9)
	for i := range data {
		data[i] = rng.NormFloat64()*37 - 11
	}
	out := Normalize(mat.NewDense(6, 9, data))
	if lo := mat.Min(out); lo != 0 {
		t.Errorf("expected minimum exactly 0, got %v", lo)
	}
	if hi := mat.Max(out); hi != 1 {
		t.Errorf("expected maximum exactly 1, got %v", hi)
	}
}

func TestNormalizeConstantIsZeros(t *testing.T) {
	in := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			in.Set(i, j, math.Log(Epsilon))
		}
	}
	out := Normalize(in)
	if mat.Max(out) != 0 || mat.Min(out) != 0 {
		t.Error("expected a constant matrix to normalize to all zeros")
	}
}

func TestLogCompressFloorsZero(t *testing.T) {
	out := LogCompress(mat.NewDense(1, 3, []float64{0, Epsilon / 10, math.E}))
	want := []float64{math.Log(Epsilon), math.Log(Epsilon), 1}
	for j, w := range want {
		if got := out.At(0, j); math.Abs(got-w) > 1e-12 {
			t.Errorf("element %d: got %v want %v", j, got, w)
		}
	}
}

func TestAllZeroFrameIsWellFormed(t *testing.T) {
	im, err := ToSpectralImage(frameOf(10, 14, func(_, _ int) uint16 { return 0 }))
	if err != nil {
		t.Fatal(err)
	}
	checkUnitRange(t, im)
	if mat.Max(im.M) != 0 {
		t.Error("expected an all-zero frame to produce an all-zero image")
	}
}

func TestConstantFrameIsWellFormed(t *testing.T) {
	im, err := ToSpectralImage(frameOf(9, 9, func(_, _ int) uint16 { return 1234 }))
	if err != nil {
		t.Fatal(err)
	}
	checkUnitRange(t, im)
}

func TestNonConstantFrameSpansUnitInterval(t *testing.T) {
	im, err := ToSpectralImage(noiseFrame(16, 30, 6))
	if err != nil {
		t.Fatal(err)
	}
	if mat.Min(im.M) != 0 || mat.Max(im.M) != 1 {
		t.Errorf("expected range [0,1], got [%v,%v]", mat.Min(im.M), mat.Max(im.M))
	}
}

func TestInputFrameIsNotMutated(t *testing.T) {
	frame := noiseFrame(7, 9, 7)
	before := append([]uint16(nil), frame.Pix...)
	if _, err := ToSpectralImage(frame); err != nil {
		t.Fatal(err)
	}
	p, _ := NewProcessor(frame.Shape())
	if _, err := p.Process(frame); err != nil {
		t.Fatal(err)
	}
	for i := range before {
		if frame.Pix[i] != before[i] {
			t.Fatalf("pixel %d was modified", i)
		}
	}
}

func TestMalformedFramesAreRejected(t *testing.T) {
	frames := []camera.RawFrame{
		{Rows: 4, Cols: 4, Pix: make([]uint16, 15)},
		{Rows: 1, Cols: 8, Pix: make([]uint16, 8)},
		{Rows: 8, Cols: 1, Pix: make([]uint16, 8)},
		{},
	}
	for _, f := range frames {
		_, err := ToSpectralImage(f)
		var mal *camera.MalformedFrameGeometry
		if !errors.As(err, &mal) {
			t.Errorf("%dx%d len %d: expected MalformedFrameGeometry, got %v", f.Rows, f.Cols, len(f.Pix), err)
		}
	}
}

func TestProcessorAgreesWithToSpectralImage(t *testing.T) {
	for _, s := range []camera.Shape{{Rows: 13, Cols: 17}, {Rows: 8, Cols: 12}, {Rows: 21, Cols: 40}} {
		frame := noiseFrame(s.Rows, s.Cols, 8)
		want, err := ToSpectralImage(frame)
		if err != nil {
			t.Fatal(err)
		}
		p, err := NewProcessor(s)
		if err != nil {
			t.Fatal(err)
		}
		got, err := p.Process(frame)
		if err != nil {
			t.Fatal(err)
		}
		if !mat.EqualApprox(got.M, want.M, 1e-9) {
			t.Errorf("%v: processor output differs from the reference pipeline", s)
		}
		if r, c := got.Dims(); (camera.Shape{Rows: r, Cols: c}) != p.OutputShape() {
			t.Errorf("%v: OutputShape %v does not match output %dx%d", s, p.OutputShape(), r, c)
		}
	}
}

func TestProcessorOutputIsNotReused(t *testing.T) {
	p, _ := NewProcessor(camera.Shape{Rows: 6, Cols: 10})
	a, _ := p.Process(noiseFrame(6, 10, 9))
	keep := a.Clone()
	if _, err := p.Process(noiseFrame(6, 10, 10)); err != nil {
		t.Fatal(err)
	}
	if !mat.Equal(a.M, keep.M) {
		t.Error("a later Process call modified an earlier image")
	}
}

func TestProcessorRejectsOtherShapes(t *testing.T) {
	p, err := NewProcessor(camera.Shape{Rows: 6, Cols: 10})
	if err != nil {
		t.Fatal(err)
	}
	_, err = p.Process(noiseFrame(10, 6, 1))
	var mal *camera.MalformedFrameGeometry
	if !errors.As(err, &mal) {
		t.Fatalf("expected MalformedFrameGeometry, got %v", err)
	}
	if mal.Expected != p.Shape() {
		t.Errorf("expected the error to name the processor shape, got %v", mal.Expected)
	}
	if _, err := NewProcessor(camera.Shape{Rows: 1, Cols: 10}); err == nil {
		t.Error("expected a 1 row processor to be refused")
	}
}

func TestImageRendering(t *testing.T) {
	im := Image{M: mat.NewDense(1, 3, []float64{0, 0.5, 1})}
	g := im.Gray()
	if g.Pix[0] != 0 || g.Pix[1] != 128 || g.Pix[2] != 255 {
		t.Errorf("unexpected 8 bit rendering %v", g.Pix)
	}
	g16 := im.Gray16()
	if v := g16.Gray16At(2, 0).Y; v != math.MaxUint16 {
		t.Errorf("expected white to be 0xffff, got %#x", v)
	}
	if f := im.Float32(); len(f) != 3 || f[1] != 0.5 {
		t.Errorf("unexpected float32 rendering %v", f)
	}
	var empty Image
	if r, c := empty.Dims(); r != 0 || c != 0 || !empty.Empty() {
		t.Error("zero Image should be empty")
	}
}

func BenchmarkProcessFullFrame(b *testing.B) {
	shape := camera.Shape{Rows: 400, Cols: 1340}
	frame := noiseFrame(shape.Rows, shape.Cols, 1)
	p, err := NewProcessor(shape)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := p.Process(frame); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkToSpectralImageFullFrame(b *testing.B) {
	frame := noiseFrame(400, 1340, 1)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ToSpectralImage(frame); err != nil {
			b.Fatal(err)
		}
	}
}
