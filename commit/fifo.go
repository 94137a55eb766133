package commit

import (
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"
)

// FallbackPeriod is how long a FIFO barrier may stall content when its
// surface has no output to pace against, approximating one frame at
// 30 Hz.
const FallbackPeriod = 33 * time.Millisecond

// FIFOManager owns the FIFO barriers of all surfaces. A barrier holds
// a surface's next committed state until the surface's output
// completes a presentation. While any fenced surface lacks an output,
// a fallback timer resolves all outstanding barriers once per period
// so content is never stalled indefinitely.
type FIFOManager struct {
	clk clock.Clock
	log *slog.Logger

	fences   map[*Fence]*Surface
	fallback *clock.Timer
}

// NewFIFOManager creates a barrier manager. A nil clock means the wall
// clock; a nil logger is silenced.
func NewFIFOManager(clk clock.Clock, log *slog.Logger) *FIFOManager {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &FIFOManager{
		clk:    clk,
		log:    log,
		fences: make(map[*Fence]*Surface),
	}
}

// Barrier fences s's committed state on the next completed
// presentation of its output.
func (m *FIFOManager) Barrier(s *Surface) (*Fence, error) {
	f, err := s.AddStateFence(TierFIFOBarrier, nil)
	if err != nil {
		return nil, err
	}
	m.fences[f] = s
	m.updateFallback()
	return f, nil
}

// Release detaches a barrier without resolving it, for a client
// destroying its pacing object. State the barrier held settles on the
// surface's next commit.
func (m *FIFOManager) Release(f *Fence) {
	delete(m.fences, f)
	f.Remove()
	m.updateFallback()
}

// NotifyFrameCompleted resolves the barriers of surfaces mapped to
// output. Frame clocks call this when presentation feedback arrives.
func (m *FIFOManager) NotifyFrameCompleted(output OutputHandle) {
	if output == nil {
		return
	}
	n := 0
	for f, s := range m.fences {
		if f.satisfied || f.detached {
			delete(m.fences, f)
			continue
		}
		if s.output == output {
			delete(m.fences, f)
			f.Resolve()
			n++
		}
	}
	if n > 0 {
		m.log.Debug("fifo barriers resolved by presentation",
			"output", output.Name(), "count", n)
	}
	m.updateFallback()
}

// Recheck re-evaluates the fallback timer. Call it after surfaces are
// mapped to or unmapped from outputs.
func (m *FIFOManager) Recheck() {
	m.updateFallback()
}

// NotifyTopologyChanged force-resolves every outstanding barrier.
// After a hot-plug or reconfiguration the output a barrier was pacing
// against may no longer be the same display, so waiting on it would be
// meaningless.
func (m *FIFOManager) NotifyTopologyChanged() {
	n := 0
	for f := range m.fences {
		delete(m.fences, f)
		if f.satisfied || f.detached {
			continue
		}
		f.Resolve()
		n++
	}
	if n > 0 {
		m.log.Debug("fifo barriers force-resolved by topology change", "count", n)
	}
	m.updateFallback()
}

// Outstanding returns the number of unresolved barriers.
func (m *FIFOManager) Outstanding() int {
	n := 0
	for f := range m.fences {
		if !f.satisfied && !f.detached {
			n++
		}
	}
	return n
}

// updateFallback arms the fallback timer while at least one fenced
// surface has no output, and disarms it otherwise.
func (m *FIFOManager) updateFallback() {
	need := false
	for f, s := range m.fences {
		if f.satisfied || f.detached {
			delete(m.fences, f)
			continue
		}
		if s.output == nil {
			need = true
		}
	}
	switch {
	case need && m.fallback == nil:
		m.fallback = m.clk.AfterFunc(FallbackPeriod, m.fireFallback)
		m.log.Debug("fifo fallback timer armed", "period", FallbackPeriod)
	case !need && m.fallback != nil:
		m.fallback.Stop()
		m.fallback = nil
		m.log.Debug("fifo fallback timer disarmed")
	}
}

// fireFallback resolves every outstanding barrier, not only those of
// output-less surfaces, matching the behavior of a missed pacing
// deadline.
func (m *FIFOManager) fireFallback() {
	m.fallback = nil
	n := 0
	for f := range m.fences {
		delete(m.fences, f)
		if f.satisfied || f.detached {
			continue
		}
		f.Resolve()
		n++
	}
	m.log.Debug("fifo fallback fired", "resolved", n)
	m.updateFallback()
}
