package frame

import "time"

const (
	// estimateQueueLength is how many recent frame timings inform the
	// dispatch deadline estimate.
	estimateQueueLength = 16

	// SyncDelayFallbackFraction is the share of a refresh interval
	// reserved for rendering while no timing samples exist yet.
	SyncDelayFallbackFraction = 0.875
)

type timingSample struct {
	// lateness is how far past its deadline the dispatch started.
	lateness time.Duration

	// render is dispatch start to presentation.
	render time.Duration
}

// Estimator predicts how long a frame needs between dispatch and
// presentation, from a sliding window of observed frame timings.
type Estimator struct {
	samples [estimateQueueLength]timingSample
	count   int
	index   int
}

// NewEstimator returns an estimator with no samples.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// AddSample records the timing of a presented frame. Only the most
// recent estimateQueueLength samples are retained.
func (e *Estimator) AddSample(lateness, render time.Duration) {
	if lateness < 0 {
		lateness = 0
	}
	if render < 0 {
		render = 0
	}
	e.samples[e.index] = timingSample{lateness: lateness, render: render}
	e.index = (e.index + 1) % estimateQueueLength
	if e.count < estimateQueueLength {
		e.count++
	}
}

// SampleCount reports how many samples the window currently holds.
func (e *Estimator) SampleCount() int {
	return e.count
}

// Reset discards all samples, for example after a mode set changes the
// timing characteristics of the output.
func (e *Estimator) Reset() {
	e.count = 0
	e.index = 0
}

// MaxRenderTime returns how long before the target presentation a
// dispatch must start. With no samples it falls back to a fixed
// fraction of the refresh interval; otherwise it is the worst observed
// dispatch-to-presentation time padded by the worst observed dispatch
// lateness, clamped to one interval.
func (e *Estimator) MaxRenderTime(interval time.Duration) time.Duration {
	if e.count == 0 {
		return time.Duration(float64(interval) * SyncDelayFallbackFraction)
	}

	var maxRender, maxLateness time.Duration
	for i := 0; i < e.count; i++ {
		s := e.samples[i]
		if s.render > maxRender {
			maxRender = s.render
		}
		if s.lateness > maxLateness {
			maxLateness = s.lateness
		}
	}

	estimate := maxRender + maxLateness
	if estimate > interval {
		estimate = interval
	}
	return estimate
}
