package frame

import "time"

// Result reports what a dispatch cycle produced.
type Result int

const (
	// ResultPresentPending means a frame was submitted and presentation
	// feedback will arrive later.
	ResultPresentPending Result = iota

	// ResultIdle means the cycle produced nothing to present.
	ResultIdle

	// ResultFailed means the presentation backend rejected the frame.
	ResultFailed
)

// String returns the result name for logs.
func (r Result) String() string {
	switch r {
	case ResultPresentPending:
		return "present-pending"
	case ResultIdle:
		return "idle"
	case ResultFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Frame describes one dispatch cycle. It is handed to the dispatch
// callback, which paints and submits the frame.
type Frame struct {
	// Count is the clock's dispatch counter, starting at 1.
	Count int64

	// DispatchTime is when the dispatch began.
	DispatchTime time.Time

	// TargetPresentation is the instant the frame aims to become visible.
	TargetPresentation time.Time
}

// DispatchFunc produces a frame: it paints, aggregates the display update,
// and submits it, reporting how the cycle ended.
type DispatchFunc func(*Frame) Result

// Driver is the presentation backend's view of a clock's dispatch cycle.
// One implementation exists per backend (native KMS, nested) and is
// selected when the clock is constructed.
type Driver interface {
	// PreDispatch runs as a dispatch begins. target is the presentation
	// instant the clock planned; the driver returns an adjusted target,
	// or the zero time to keep the plan.
	PreDispatch(now, target time.Time) time.Time

	// PostDispatch runs after the dispatch callback with its result.
	PostDispatch(result Result)
}
