package camera_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.jpl.nasa.gov/bdube/ccdpreview/camera"
	"github.jpl.nasa.gov/bdube/ccdpreview/simcam"
)

var testShape = camera.Shape{Rows: 8, Cols: 12}

// stageFailer refuses to stage one parameter and forwards everything else
type stageFailer struct {
	*simcam.Camera
	refuse camera.Parameter
}

func (s stageFailer) SetParameterInt(p camera.Parameter, v int) error {
	if p == s.refuse {
		return camera.ErrParameterNotFound
	}
	return s.Camera.SetParameterInt(p, v)
}

// dependentRejecter also reports an unrequested dependent parameter as
// rejected at commit
type dependentRejecter struct {
	*simcam.Camera
	dependent camera.Parameter
}

func (d dependentRejecter) CommitParameters() ([]camera.Parameter, error) {
	failed, err := d.Camera.CommitParameters()
	if err != nil {
		return failed, err
	}
	return append(failed, d.dependent, d.dependent), nil
}

func TestConfigureReportsOnlyTheInvalidRequest(t *testing.T) {
	cam := simcam.New(testShape, 1)
	reqs := []camera.Request{
		camera.FloatRequest("AdcSpeed", 4),
		camera.IntRequest("TriggerDetermination", 99),
	}
	out, err := camera.Configure(cam, reqs)
	if err != nil {
		t.Fatal(err)
	}
	if !out.Committed {
		t.Error("expected outcome to be committed")
	}
	if len(out.Rejected) != 1 || out.Rejected[0] != "TriggerDetermination" {
		t.Fatalf("expected exactly TriggerDetermination to be rejected, got %v", out.Rejected)
	}
	if v, _ := cam.Committed("AdcSpeed"); v != 4 {
		t.Errorf("expected accepted AdcSpeed to be applied, got %v", v)
	}
	if v, _ := cam.Committed("TriggerDetermination"); v != 1 {
		t.Errorf("expected rejected TriggerDetermination to keep its prior value 1, got %v", v)
	}
	var rej *camera.ConfigurationRejected
	if !errors.As(out.Err(), &rej) {
		t.Errorf("expected Err() to be a ConfigurationRejected, got %v", out.Err())
	}
	if out.OK() {
		t.Error("outcome with a rejection must not be OK")
	}
}

func TestConfigureCommitsWithNothingPending(t *testing.T) {
	cam := simcam.New(testShape, 1)
	out, err := camera.Configure(cam, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !out.OK() {
		t.Errorf("expected empty commit to be OK, got %+v", out)
	}
	if cam.Commits() != 1 {
		t.Errorf("expected commit to be issued once with nothing pending, got %d", cam.Commits())
	}
}

func TestConfigureDefersStagingErrors(t *testing.T) {
	cam := simcam.New(testShape, 1)
	dev := stageFailer{Camera: cam, refuse: "AdcQuality"}
	reqs := []camera.Request{
		camera.IntRequest("AdcQuality", 1),
		camera.FloatRequest("ExposureTime", 10),
		camera.FloatRequest("NotAParameter", 1),
	}
	out, err := camera.Configure(dev, reqs)
	if err != nil {
		t.Fatal(err)
	}
	want := []camera.Parameter{"AdcQuality", "NotAParameter"}
	if len(out.Rejected) != len(want) {
		t.Fatalf("expected %v rejected, got %v", want, out.Rejected)
	}
	for i := range want {
		if out.Rejected[i] != want[i] {
			t.Errorf("rejected[%d]: expected %s got %s", i, want[i], out.Rejected[i])
		}
	}
	if v, _ := cam.Committed("ExposureTime"); v != 10 {
		t.Errorf("expected ExposureTime applied despite other rejections, got %v", v)
	}
}

func TestConfigureRejectedNeverExceedsRequests(t *testing.T) {
	cam := simcam.New(testShape, 1)
	// the same bad parameter staged twice and a wrong kind
	reqs := []camera.Request{
		camera.FloatRequest("Bogus", 1),
		camera.FloatRequest("Bogus", 2),
		camera.FloatRequest("TriggerDetermination", 1),
		{Parameter: "AdcSpeed", Kind: "complex"},
	}
	out, err := camera.Configure(cam, reqs)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Rejected) > len(reqs) {
		t.Fatalf("rejected count %d exceeds requests %d", len(out.Rejected), len(reqs))
	}
	if len(out.Rejected) != 3 {
		t.Errorf("expected Bogus, TriggerDetermination, AdcSpeed rejected once each, got %v", out.Rejected)
	}
}

func TestConfigureCommitFailure(t *testing.T) {
	cam := simcam.New(testShape, 1)
	cam.Close()
	_, err := camera.Configure(cam, []camera.Request{camera.FloatRequest("AdcSpeed", 4)})
	if !errors.Is(err, simcam.ErrClosed) {
		t.Errorf("expected commit error to wrap ErrClosed, got %v", err)
	}
}

func TestConfigureSeparatesUnrequestedRejections(t *testing.T) {
	cam := simcam.New(testShape, 1)
	dev := dependentRejecter{Camera: cam, dependent: "ShutterTimingMode"}
	reqs := []camera.Request{
		camera.FloatRequest("AdcSpeed", 4),
		camera.IntRequest("TriggerDetermination", 99),
	}
	out, err := camera.Configure(dev, reqs)
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Rejected) > len(reqs) {
		t.Fatalf("rejected count %d exceeds requests %d", len(out.Rejected), len(reqs))
	}
	if len(out.Rejected) != 1 || out.Rejected[0] != "TriggerDetermination" {
		t.Errorf("expected only TriggerDetermination in Rejected, got %v", out.Rejected)
	}
	if len(out.Other) != 1 || out.Other[0] != "ShutterTimingMode" {
		t.Errorf("expected ShutterTimingMode once in Other, got %v", out.Other)
	}
	if v, _ := cam.Committed("AdcSpeed"); v != 4 {
		t.Errorf("expected AdcSpeed applied, got %v", v)
	}
}

func TestNewRequestRefusesNonIntegerForIntParameter(t *testing.T) {
	for _, v := range []float64{2.7, math.NaN(), math.Inf(1), math.Inf(-1), 1e30, -1e30} {
		r, err := camera.NewRequest("TriggerDetermination", v)
		if err == nil {
			t.Errorf("%v: expected an error, got %v", v, r)
		}
	}
	r, err := camera.NewRequest("TriggerDetermination", 2.0)
	if err != nil {
		t.Fatal(err)
	}
	if r.Int != 2 {
		t.Errorf("expected 2 got %d", r.Int)
	}
	// float parameters keep the fraction
	r, err = camera.NewRequest("AdcSpeed", 2.7)
	if err != nil || r.Float != 2.7 {
		t.Errorf("expected AdcSpeed=2.7, got %v, %v", r, err)
	}
}

func TestTimeoutMillis(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want int32
	}{
		{camera.NoTimeout, -1},
		{0, 0},
		{1500 * time.Millisecond, 1500},
		{time.Duration(math.MaxInt32) * time.Millisecond, math.MaxInt32},
		{time.Duration(math.MaxInt32+1) * time.Millisecond, math.MaxInt32},
		{time.Duration(math.MaxInt64), math.MaxInt32},
	}
	for _, tt := range tests {
		if got := camera.TimeoutMillis(tt.in); got != tt.want {
			t.Errorf("TimeoutMillis(%v): expected %d got %d", tt.in, tt.want, got)
		}
	}
}

func TestErrorsWithoutCause(t *testing.T) {
	errs := []error{
		&camera.AcquisitionUnavailable{},
		&camera.PartialAcquisition{Requested: 1},
	}
	for _, err := range errs {
		if err.Error() == "" {
			t.Errorf("%T: empty message", err)
		}
	}
	if got := (&camera.AcquisitionUnavailable{}).Error(); got != "acquisition unavailable" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestNewRequestUsesKnownKind(t *testing.T) {
	tests := []struct {
		p    camera.Parameter
		v    interface{}
		kind string
	}{
		{"TriggerDetermination", 3., camera.KindInt},
		{"AdcSpeed", 4, camera.KindFloat},
		{"Unknown", 2, camera.KindInt},
		{"Unknown", 2.5, camera.KindFloat},
	}
	for _, tt := range tests {
		r, err := camera.NewRequest(tt.p, tt.v)
		if err != nil {
			t.Fatal(err)
		}
		if r.Kind != tt.kind {
			t.Errorf("%s=%v: expected kind %s got %s", tt.p, tt.v, tt.kind, r.Kind)
		}
	}
	if _, err := camera.NewRequest("AdcSpeed", "fast"); err == nil {
		t.Error("expected string value to be refused")
	}
}

func TestAcquireOneFrameCopiesOutOfDeviceMemory(t *testing.T) {
	cam := simcam.New(testShape, 1)
	f1, err := camera.AcquireOneFrame(cam, testShape, camera.NoTimeout)
	if err != nil {
		t.Fatal(err)
	}
	if f1.ReadoutCount != 1 || f1.Rows != testShape.Rows || f1.Cols != testShape.Cols {
		t.Fatalf("unexpected frame header %+v", f1)
	}
	snapshot := append([]uint16(nil), f1.Pix...)
	if _, err := camera.AcquireOneFrame(cam, testShape, camera.NoTimeout); err != nil {
		t.Fatal(err)
	}
	for i := range snapshot {
		if f1.Pix[i] != snapshot[i] {
			t.Fatalf("frame pixel %d changed after the next acquisition", i)
		}
	}
}

func TestAcquireOneFrameZeroOfOneIsPartial(t *testing.T) {
	for _, fault := range []simcam.Fault{simcam.FaultNoReadout, simcam.FaultTimeOut} {
		cam := simcam.New(testShape, 1)
		cam.Inject(fault)
		f, err := camera.AcquireOneFrame(cam, testShape, time.Second)
		var partial *camera.PartialAcquisition
		if !errors.As(err, &partial) {
			t.Fatalf("fault %d: expected PartialAcquisition, got %v", fault, err)
		}
		if partial.Completed != 0 || partial.Requested != 1 || f.ReadoutCount != 0 {
			t.Errorf("fault %d: expected 0 of 1, got %d of %d", fault, partial.Completed, partial.Requested)
		}
		if f.Pix != nil {
			t.Errorf("fault %d: expected no pixel data", fault)
		}
	}
}

func TestAcquireOneFrameTimeoutIsHonored(t *testing.T) {
	cam := simcam.New(testShape, 1)
	cam.Latency = 50 * time.Millisecond
	_, err := camera.AcquireOneFrame(cam, testShape, time.Millisecond)
	var partial *camera.PartialAcquisition
	if !errors.As(err, &partial) {
		t.Fatalf("expected a timeout to be partial, got %v", err)
	}
	if !errors.Is(err, simcam.ErrTimeOut) {
		t.Errorf("expected partial to wrap ErrTimeOut, got %v", err)
	}
}

func TestAcquireOneFrameUnavailable(t *testing.T) {
	cam := simcam.New(testShape, 1)
	cam.Inject(simcam.FaultConnectionLost)
	_, err := camera.AcquireOneFrame(cam, testShape, camera.NoTimeout)
	var unavail *camera.AcquisitionUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("expected AcquisitionUnavailable, got %v", err)
	}
	if !errors.Is(err, simcam.ErrConnectionLost) {
		t.Errorf("expected cause to be ErrConnectionLost, got %v", unavail.Err)
	}
}

func TestAcquireOneFrameMalformed(t *testing.T) {
	cam := simcam.New(testShape, 1)
	cam.Inject(simcam.FaultShortBuffer)
	_, err := camera.AcquireOneFrame(cam, testShape, camera.NoTimeout)
	var mal *camera.MalformedFrameGeometry
	if !errors.As(err, &mal) {
		t.Fatalf("expected MalformedFrameGeometry, got %v", err)
	}
	if mal.Len != testShape.Pixels()-testShape.Cols {
		t.Errorf("expected reported length %d, got %d", testShape.Pixels()-testShape.Cols, mal.Len)
	}

	// the sensor is fine, the caller asked for the wrong geometry
	cam2 := simcam.New(testShape, 1)
	_, err = camera.AcquireOneFrame(cam2, camera.Shape{Rows: 4, Cols: 4}, camera.NoTimeout)
	if !errors.As(err, &mal) {
		t.Fatalf("expected MalformedFrameGeometry for mismatched shape, got %v", err)
	}
}

func TestRawFrameImage(t *testing.T) {
	f := camera.RawFrame{Rows: 1, Cols: 2, Pix: []uint16{0x0102, 0xffff}}
	im := f.Image()
	if b := im.Bounds(); b.Dx() != 2 || b.Dy() != 1 {
		t.Fatalf("unexpected bounds %v", b)
	}
	if v := im.Gray16At(0, 0).Y; v != 0x0102 {
		t.Errorf("expected 0x0102 got %#x", v)
	}
	if v := im.Gray16At(1, 0).Y; v != 0xffff {
		t.Errorf("expected 0xffff got %#x", v)
	}
}
