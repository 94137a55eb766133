// Package eventloop provides the single-goroutine cooperative loop that
// drives the compositor core.
//
// All core state (frame clocks, fences, damage histories, update
// aggregators) is owned by the loop goroutine. Deadline timers, backend
// completion callbacks, and protocol requests enter the core as callbacks
// posted onto the loop, so the core data structures need no locking.
// Suspension is modeled as callback registration, never blocking: a
// component arms a timer or registers for a completion and returns.
package eventloop

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Loop is a single-goroutine event loop.
//
// Post is safe to call from any goroutine; everything else, including every
// callback the loop invokes, runs on the goroutine that called Run.
type Loop struct {
	clk clock.Clock
	log *slog.Logger

	mu    sync.Mutex
	queue []func()

	// wake is buffered so Post never blocks. A single pending signal is
	// enough: the loop drains the whole queue per wakeup.
	wake chan struct{}
}

// New creates a loop driven by the given clock.
//
// A nil clk selects the wall clock. A nil log disables logging.
func New(clk clock.Clock, log *slog.Logger) *Loop {
	if clk == nil {
		clk = clock.New()
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Loop{
		clk:  clk,
		log:  log,
		wake: make(chan struct{}, 1),
	}
}

// Post queues fn to run on the loop goroutine in FIFO order.
// It is safe to call from any goroutine, including from within a callback
// already running on the loop.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Now returns the current time of the loop's clock.
func (l *Loop) Now() time.Time {
	return l.clk.Now()
}

// Clock returns a clock whose timer callbacks are delivered on the loop
// goroutine. Components that arm deadline timers (frame clocks, the FIFO
// fallback) use this clock so their callbacks observe core state safely.
//
// Methods other than AfterFunc delegate to the underlying clock unchanged.
func (l *Loop) Clock() clock.Clock {
	return loopClock{Clock: l.clk, loop: l}
}

// Run services the queue until ctx is canceled. It drains callbacks posted
// before cancellation, then returns ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	l.log.Debug("event loop running")
	for {
		l.runPending()
		select {
		case <-ctx.Done():
			l.runPending()
			l.log.Debug("event loop stopped")
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// runPending drains the queue, including callbacks queued by callbacks.
func (l *Loop) runPending() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
	}
}

// pendingLen reports the queue length. Test helper.
func (l *Loop) pendingLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// loopClock wraps a clock so timer callbacks marshal onto the loop.
type loopClock struct {
	clock.Clock
	loop *Loop
}

// AfterFunc arms a timer whose callback is posted to the loop instead of
// running on the timer goroutine.
func (c loopClock) AfterFunc(d time.Duration, f func()) *clock.Timer {
	return c.Clock.AfterFunc(d, func() {
		c.loop.Post(f)
	})
}
