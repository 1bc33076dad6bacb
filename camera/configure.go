package camera

import (
	"fmt"
	"math"
)

// Request is a parameter value to be staged and committed
type Request struct {
	// Parameter is the parameter to change
	Parameter Parameter `json:"name" yaml:"Name"`

	// Kind is KindFloat or KindInt
	Kind string `json:"kind" yaml:"Kind"`

	// Float holds the value if Kind == KindFloat
	Float float64 `json:"f64,omitempty" yaml:"Float,omitempty"`

	// Int holds the value if Kind == KindInt
	Int int `json:"int,omitempty" yaml:"Int,omitempty"`
}

// FloatRequest returns a request to set p to v
func FloatRequest(p Parameter, v float64) Request {
	return Request{Parameter: p, Kind: KindFloat, Float: v}
}

// IntRequest returns a request to set p to v
func IntRequest(p Parameter, v int) Request {
	return Request{Parameter: p, Kind: KindInt, Int: v}
}

// NewRequest builds a request from a loosely typed value such as one decoded
// from a config file.  The kind is taken from the Parameters map when the
// parameter is known, otherwise from the type of v.
func NewRequest(p Parameter, v interface{}) (Request, error) {
	kind, known := Parameters[p]
	switch x := v.(type) {
	case float64:
		if known && kind == KindInt {
			if math.IsNaN(x) || x != math.Trunc(x) || x < math.MinInt32 || x > math.MaxInt32 {
				return Request{}, fmt.Errorf("value %v for parameter %s is not an integer", x, p)
			}
			return IntRequest(p, int(x)), nil
		}
		return FloatRequest(p, x), nil
	case float32:
		return NewRequest(p, float64(x))
	case int:
		if known && kind == KindFloat {
			return FloatRequest(p, float64(x)), nil
		}
		return IntRequest(p, x), nil
	case int64:
		return NewRequest(p, int(x))
	default:
		return Request{}, fmt.Errorf("value %v for parameter %s is not of type int or float64", v, p)
	}
}

// String formats the request as name=value
func (r Request) String() string {
	if r.Kind == KindInt {
		return fmt.Sprintf("%s=%d", r.Parameter, r.Int)
	}
	return fmt.Sprintf("%s=%g", r.Parameter, r.Float)
}

// CommitOutcome is the result of one commit
type CommitOutcome struct {
	// Committed is true if the commit call reached the device.  Every staged
	// parameter not in Rejected was applied.
	Committed bool

	// Rejected holds the parameters which failed validation, in request order
	Rejected []Parameter

	// Other holds parameters the device refused at commit that were not
	// requested, such as dependents of a requested parameter.  They are in the
	// order the device reported them.
	Other []Parameter
}

// OK is true when the commit succeeded and no request was rejected.  Other is
// not considered.
func (o CommitOutcome) OK() bool {
	return o.Committed && len(o.Rejected) == 0
}

// Err returns a *ConfigurationRejected if any parameter was rejected, else nil
func (o CommitOutcome) Err() error {
	if len(o.Rejected) == 0 {
		return nil
	}
	return &ConfigurationRejected{Rejected: o.Rejected}
}

// Configure stages each request on the device and commits them all at once.
//
// Staging errors are deferred: a request the device refuses to stage is
// reported as rejected alongside those the commit itself rejects.  The commit
// is always issued, even when there is nothing pending, so the outcome is
// definitive.  Parameters the commit refuses that were never requested are
// reported in Other.  The returned error is non-nil only when the commit call
// failed.
// There is no retry.
func Configure(dev Configurable, reqs []Request) (CommitOutcome, error) {
	stageRejected := make(map[Parameter]bool)
	for _, r := range reqs {
		var err error
		switch r.Kind {
		case KindFloat:
			err = dev.SetParameterFloat(r.Parameter, r.Float)
		case KindInt:
			err = dev.SetParameterInt(r.Parameter, r.Int)
		default:
			err = ErrWrongKind
		}
		if err != nil {
			stageRejected[r.Parameter] = true
		}
	}

	failed, err := dev.CommitParameters()
	if err != nil {
		return CommitOutcome{}, fmt.Errorf("commit parameters: %w", err)
	}
	commitRejected := make(map[Parameter]bool, len(failed))
	for _, p := range failed {
		commitRejected[p] = true
	}

	out := CommitOutcome{Committed: true}
	seen := make(map[Parameter]bool, len(reqs))
	requested := make(map[Parameter]bool, len(reqs))
	for _, r := range reqs {
		p := r.Parameter
		requested[p] = true
		if seen[p] {
			continue
		}
		if stageRejected[p] || commitRejected[p] {
			out.Rejected = append(out.Rejected, p)
			seen[p] = true
		}
	}
	for _, p := range failed {
		if requested[p] || seen[p] {
			continue
		}
		out.Other = append(out.Other, p)
		seen[p] = true
	}
	return out, nil
}
