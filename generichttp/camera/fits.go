package camera

import (
	"fmt"
	"io"
	"time"

	"github.com/astrogo/fitsio"
	ccd "github.jpl.nasa.gov/bdube/ccdpreview/camera"
	"github.jpl.nasa.gov/bdube/ccdpreview/spectral"
)

// HDRVER is the version of the FITS header layout written by this package
const HDRVER = "CCDPREVIEW-1"

// Metadata describes the iteration an image pair came from
type Metadata struct {
	// Iteration is the loop iteration, 1-based.  Zero if unknown
	Iteration int

	// Time is when the pair was shown
	Time time.Time

	// Rejected are the parameters refused at commit
	Rejected []ccd.Parameter

	// RunID identifies the process run, may be empty
	RunID string
}

// Cards converts the metadata to FITS header cards
func (m Metadata) Cards() []fitsio.Card {
	ts := fmt.Sprintf("%d-%02d-%02dT%02d:%02d:%02d",
		m.Time.Year(),
		m.Time.Month(),
		m.Time.Day(),
		m.Time.Hour(),
		m.Time.Minute(),
		m.Time.Second())
	rej := ""
	for i, p := range m.Rejected {
		if i > 0 {
			rej += ","
		}
		rej += string(p)
	}
	cards := []fitsio.Card{
		{Name: "HDRVER", Value: HDRVER, Comment: "header version"},
		{Name: "DATE", Value: ts},
	}
	if m.RunID != "" {
		cards = append(cards, fitsio.Card{Name: "RUNID", Value: m.RunID, Comment: "preview run identifier"})
	}
	if m.Iteration > 0 {
		cards = append(cards, fitsio.Card{Name: "ITER", Value: m.Iteration, Comment: "preview loop iteration"})
	}
	return append(cards, fitsio.Card{Name: "REJECTED", Value: rej, Comment: "parameters rejected at commit"})
}

// WriteRawFits streams a raw frame to w as a 16-bit FITS image
func WriteRawFits(w io.Writer, metadata []fitsio.Card, f ccd.RawFrame) error {
	metadata = append(metadata,
		fitsio.Card{Name: "BZERO", Value: 32768},
		fitsio.Card{Name: "BSCALE", Value: 1.0})
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	im := fitsio.NewImage(16, []int{f.Cols, f.Rows})
	defer im.Close()
	err = im.Header().Append(metadata...)
	if err != nil {
		return err
	}

	// FITS has no unsigned 16-bit type, shift by BZERO
	bufOut := make([]int16, len(f.Pix))
	for idx, v := range f.Pix {
		bufOut[idx] = int16(v - 32768)
	}
	err = im.Write(bufOut)
	if err != nil {
		return err
	}
	return fits.Write(im)
}

// WriteSpectrumFits streams a spectral image to w as a 32-bit float FITS image
func WriteSpectrumFits(w io.Writer, metadata []fitsio.Card, s spectral.Image) error {
	rows, cols := s.Dims()
	fits, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer fits.Close()
	im := fitsio.NewImage(-32, []int{cols, rows})
	defer im.Close()
	err = im.Header().Append(metadata...)
	if err != nil {
		return err
	}
	err = im.Write(s.Float32())
	if err != nil {
		return err
	}
	return fits.Write(im)
}
