// Package camera provides an HTTP interface to a running preview
package camera

import (
	"errors"
	"image/jpeg"
	"image/png"
	"net/http"
	"sync"
	"time"

	ccd "github.jpl.nasa.gov/bdube/ccdpreview/camera"
	"github.jpl.nasa.gov/bdube/ccdpreview/generichttp"
	"github.jpl.nasa.gov/bdube/ccdpreview/preview"
	"github.jpl.nasa.gov/bdube/ccdpreview/server"
	"github.jpl.nasa.gov/bdube/ccdpreview/spectral"
)

// ErrNoFrame is returned when nothing has been displayed yet
var ErrNoFrame = errors.New("no frame has been displayed yet")

// Status is the JSON view of the preview
type Status struct {
	// RunID identifies the process run
	RunID string `json:"runID,omitempty"`

	// State is RUNNING or STOPPED
	State string `json:"state"`

	// Stats are the loop counters.  PipelineRuns is only filled once the loop
	// has stopped.
	Stats preview.Stats `json:"stats"`

	// LastError is the error of the most recent skipped iteration
	LastError string `json:"lastError,omitempty"`

	// StopRequested is true once POST /stop has been called
	StopRequested bool `json:"stopRequested"`
}

// Commit is the JSON view of the commit outcome
type Commit struct {
	Reported  bool            `json:"reported"`
	Committed bool            `json:"committed"`
	Rejected  []ccd.Parameter `json:"rejected"`
	Other     []ccd.Parameter `json:"other,omitempty"`
}

// Latest keeps copies of the most recent image pair and the preview's status
// and serves them over HTTP.  It satisfies preview.Display, preview.Reporter
// and preview.Canceller, the latter through POST /stop.
type Latest struct {
	preview.Flag

	// Stream is optional.  When set every spectrum shown is offered to it.
	Stream *Stream

	// RunID is stamped on downloads and the status
	RunID string

	mu       sync.Mutex
	raw      ccd.RawFrame
	spec     spectral.Image
	meta     Metadata
	shown    bool
	outcome  ccd.CommitOutcome
	reported bool
	stats    preview.Stats
	state    preview.State
	lastErr  error
}

// NewLatest returns an empty store.  stream may be nil.
func NewLatest(stream *Stream) *Latest {
	return &Latest{Stream: stream}
}

// Show satisfies preview.Display.  The pair is copied.
func (l *Latest) Show(raw ccd.RawFrame, spec spectral.Image) {
	pix := make([]uint16, len(raw.Pix))
	copy(pix, raw.Pix)
	raw.Pix = pix
	spec = spec.Clone()

	l.mu.Lock()
	l.raw = raw
	l.spec = spec
	l.shown = true
	l.meta.Time = time.Now()
	l.meta.Iteration = l.stats.Iterations + 1
	l.mu.Unlock()

	if l.Stream != nil {
		l.Stream.Publish(spec)
	}
}

// Report satisfies preview.Reporter
func (l *Latest) Report(e preview.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e.Iteration > l.stats.Iterations {
		l.stats.Iterations = e.Iteration
		l.stats.Acquisitions = e.Iteration
	}
	switch e.Kind {
	case preview.EventCommit:
		l.outcome = e.Outcome
		l.reported = true
		l.meta.Rejected = e.Outcome.Rejected
	case preview.EventFrame:
		l.stats.Displayed++
		l.meta.Iteration = e.Iteration
	case preview.EventPartial:
		l.stats.Partial++
	case preview.EventUnavailable:
		l.stats.Unavailable++
	case preview.EventMalformed:
		l.stats.Malformed++
	case preview.EventFailed:
		l.stats.Failed++
	case preview.EventStopped:
		l.stats = e.Stats
		l.state = preview.Stopped
	}
	if e.Err != nil {
		l.lastErr = e.Err
	}
}

// Raw returns the last raw frame shown and its metadata
func (l *Latest) Raw() (ccd.RawFrame, Metadata, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.shown {
		return ccd.RawFrame{}, Metadata{}, ErrNoFrame
	}
	return l.raw, l.metadata(), nil
}

// Spectrum returns the last spectral image shown and its metadata
func (l *Latest) Spectrum() (spectral.Image, Metadata, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.shown {
		return spectral.Image{}, Metadata{}, ErrNoFrame
	}
	return l.spec, l.metadata(), nil
}

func (l *Latest) metadata() Metadata {
	m := l.meta
	m.RunID = l.RunID
	return m
}

// Status returns a snapshot of the preview's status
func (l *Latest) Status() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := Status{
		RunID:         l.RunID,
		State:         l.state.String(),
		Stats:         l.stats,
		StopRequested: l.Cancelled(),
	}
	if l.lastErr != nil {
		s.LastError = l.lastErr.Error()
	}
	return s
}

// Commit returns the commit outcome, if one has been reported
func (l *Latest) Commit() Commit {
	l.mu.Lock()
	defer l.mu.Unlock()
	c := Commit{Reported: l.reported, Committed: l.outcome.Committed, Rejected: l.outcome.Rejected, Other: l.outcome.Other}
	if c.Rejected == nil {
		c.Rejected = []ccd.Parameter{}
	}
	return c
}

// RT returns the route table for the preview
func (l *Latest) RT() server.RouteTable {
	rt := server.RouteTable{
		{Method: http.MethodGet, Path: "/raw"}:      l.getRaw,
		{Method: http.MethodGet, Path: "/spectrum"}: l.getSpectrum,
		{Method: http.MethodGet, Path: "/stats"}:    l.getStats,
		{Method: http.MethodGet, Path: "/commit"}:   l.getCommit,
		{Method: http.MethodPost, Path: "/stop"}:    l.postStop,

		{Method: http.MethodGet, Path: "/state"}: generichttp.GetString(func() (string, error) {
			return l.Status().State, nil
		}),
		{Method: http.MethodGet, Path: "/displayed"}: generichttp.GetInt(func() (int, error) {
			return l.Status().Stats.Displayed, nil
		}),
		{Method: http.MethodGet, Path: "/stop"}: generichttp.GetBool(func() (bool, error) {
			return l.Cancelled(), nil
		}),
	}
	if l.Stream != nil {
		rt[server.MethodPath{Method: http.MethodGet, Path: "/ws"}] = l.Stream.ServeHTTP
	}
	return rt
}

func format(r *http.Request) string {
	f := r.URL.Query().Get("fmt")
	if f == "" {
		f = "jpg"
	}
	return f
}

func (l *Latest) getRaw(w http.ResponseWriter, r *http.Request) {
	f, meta, err := l.Raw()
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	switch ft := format(r); ft {
	case "jpg":
		w.Header().Set("Content-Type", "image/jpeg")
		w.WriteHeader(http.StatusOK)
		jpeg.Encode(w, f.Image(), nil)
	case "png":
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		png.Encode(w, f.Image())
	case "fits":
		hdr := w.Header()
		hdr.Set("Content-Type", "image/fits")
		hdr.Set("Content-Disposition", "attachment; filename=raw.fits")
		err = WriteRawFits(w, meta.Cards(), f)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	default:
		http.Error(w, "fmt must be one of jpg, png, fits; got "+ft, http.StatusBadRequest)
	}
}

func (l *Latest) getSpectrum(w http.ResponseWriter, r *http.Request) {
	s, meta, err := l.Spectrum()
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	switch ft := format(r); ft {
	case "jpg":
		w.Header().Set("Content-Type", "image/jpeg")
		w.WriteHeader(http.StatusOK)
		jpeg.Encode(w, s.Gray(), nil)
	case "png":
		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		png.Encode(w, s.Gray16())
	case "fits":
		hdr := w.Header()
		hdr.Set("Content-Type", "image/fits")
		hdr.Set("Content-Disposition", "attachment; filename=spectrum.fits")
		err = WriteSpectrumFits(w, meta.Cards(), s)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	default:
		http.Error(w, "fmt must be one of jpg, png, fits; got "+ft, http.StatusBadRequest)
	}
}

func (l *Latest) getStats(w http.ResponseWriter, r *http.Request) {
	server.EncodeAndRespond(w, l.Status())
}

func (l *Latest) getCommit(w http.ResponseWriter, r *http.Request) {
	server.EncodeAndRespond(w, l.Commit())
}

func (l *Latest) postStop(w http.ResponseWriter, r *http.Request) {
	l.Stop()
	w.WriteHeader(http.StatusOK)
}
