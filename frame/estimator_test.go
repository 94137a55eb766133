package frame

import (
	"testing"
	"time"
)

func TestMaxRenderTimeFallback(t *testing.T) {
	e := NewEstimator()

	// Without samples the estimate is a fixed fraction of the
	// interval, leaving a small slice for compositing.
	got := e.MaxRenderTime(16 * time.Millisecond)
	want := 14 * time.Millisecond
	if got != want {
		t.Fatalf("MaxRenderTime = %v, want fallback %v", got, want)
	}
}

func TestMaxRenderTimeTracksWorstObserved(t *testing.T) {
	e := NewEstimator()
	e.AddSample(1*time.Millisecond, 5*time.Millisecond)
	e.AddSample(0, 9*time.Millisecond)
	e.AddSample(2*time.Millisecond, 3*time.Millisecond)

	// Worst render plus worst lateness, even from different frames.
	got := e.MaxRenderTime(16 * time.Millisecond)
	if want := 11 * time.Millisecond; got != want {
		t.Fatalf("MaxRenderTime = %v, want %v", got, want)
	}
}

func TestMaxRenderTimeClampedToInterval(t *testing.T) {
	e := NewEstimator()
	e.AddSample(10*time.Millisecond, 20*time.Millisecond)

	got := e.MaxRenderTime(16 * time.Millisecond)
	if want := 16 * time.Millisecond; got != want {
		t.Fatalf("MaxRenderTime = %v, want clamp to %v", got, want)
	}
}

func TestWindowEvictsOldSamples(t *testing.T) {
	e := NewEstimator()
	e.AddSample(0, 15*time.Millisecond)
	for i := 0; i < estimateQueueLength; i++ {
		e.AddSample(0, 2*time.Millisecond)
	}

	if got := e.SampleCount(); got != estimateQueueLength {
		t.Fatalf("SampleCount = %d, want %d", got, estimateQueueLength)
	}
	got := e.MaxRenderTime(16 * time.Millisecond)
	if want := 2 * time.Millisecond; got != want {
		t.Fatalf("MaxRenderTime = %v, want %v after slow sample aged out", got, want)
	}
}

func TestNegativeSamplesClamped(t *testing.T) {
	e := NewEstimator()
	e.AddSample(-5*time.Millisecond, -3*time.Millisecond)

	if got := e.MaxRenderTime(16 * time.Millisecond); got != 0 {
		t.Fatalf("MaxRenderTime = %v, want 0 for clamped sample", got)
	}
}

func TestEstimatorReset(t *testing.T) {
	e := NewEstimator()
	e.AddSample(time.Millisecond, 8*time.Millisecond)
	e.Reset()

	if got := e.SampleCount(); got != 0 {
		t.Fatalf("SampleCount = %d after Reset, want 0", got)
	}
	got := e.MaxRenderTime(16 * time.Millisecond)
	if want := 14 * time.Millisecond; got != want {
		t.Fatalf("MaxRenderTime = %v, want fallback %v after Reset", got, want)
	}
}
