// Package frame paces rendering against display refresh.
//
// A Clock owns the dispatch cycle of one output: it decides when the
// next frame must start rendering so it can reach the upcoming vblank,
// fires the dispatch through a timer, and tracks the frame through
// presentation feedback. Timing estimates adapt to observed render
// times, so a consistently slow client pushes dispatches earlier while
// a fast one lets them start late and reduce latency.
package frame

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
)

// State is the clock's position in the dispatch cycle.
type State int

const (
	// StateIdle means no update is scheduled.
	StateIdle State = iota

	// StateScheduled means a dispatch timer is armed.
	StateScheduled

	// StateDispatching means the dispatch callback is running.
	StateDispatching

	// StateAwaitingPresentation means a frame was submitted and the
	// clock is waiting for presentation feedback.
	StateAwaitingPresentation
)

// String returns the state name for logs.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScheduled:
		return "scheduled"
	case StateDispatching:
		return "dispatching"
	case StateAwaitingPresentation:
		return "awaiting-presentation"
	default:
		return "unknown"
	}
}

// Mode selects how the clock picks dispatch deadlines.
type Mode int

const (
	// ModeFixed aligns dispatches to the output's refresh cycle.
	ModeFixed Mode = iota

	// ModeVariable paces dispatches by content updates, for variable
	// refresh rate outputs.
	ModeVariable
)

// String returns the mode name for logs.
func (m Mode) String() string {
	switch m {
	case ModeFixed:
		return "fixed"
	case ModeVariable:
		return "variable"
	default:
		return "unknown"
	}
}

// ErrTooManyFailures signals that consecutive presentation failures
// crossed the clock's threshold and it stopped retrying.
var ErrTooManyFailures = errors.New("frame: too many presentation failures")

// DefaultFailureThreshold is how many consecutive failed presentations
// a clock tolerates before entering degraded mode.
const DefaultFailureThreshold = 5

// PresentationInfo carries presentation feedback for a submitted frame.
type PresentationInfo struct {
	// Timestamp is when the frame became visible. Zero means the
	// backend could not report it.
	Timestamp time.Time

	// RefreshInterval is the output's measured refresh interval, or
	// zero when unknown.
	RefreshInterval time.Duration
}

// Config configures a Clock. Driver, Dispatch and RefreshInterval are
// required.
type Config struct {
	// Name identifies the clock in logs, usually the output connector.
	Name string

	// RefreshInterval is the output's nominal refresh interval.
	RefreshInterval time.Duration

	// Driver hooks the presentation backend into the dispatch cycle.
	Driver Driver

	// Dispatch produces each frame.
	Dispatch DispatchFunc

	// Clock supplies time and timers. Nil means the wall clock.
	Clock clock.Clock

	// Logger receives clock events. Nil silences them.
	Logger *slog.Logger

	// FailureThreshold overrides DefaultFailureThreshold when positive.
	FailureThreshold int

	// OnDegraded, if set, is invoked once when the clock gives up
	// retrying after repeated presentation failures.
	OnDegraded func(error)
}

// Clock paces frame dispatches for one output.
//
// A Clock is confined to the compositor's event loop goroutine: all
// methods, the dispatch callback, and timer callbacks must run there.
type Clock struct {
	name     string
	clk      clock.Clock
	log      *slog.Logger
	driver   Driver
	dispatch DispatchFunc

	state           State
	mode            Mode
	refreshInterval time.Duration

	inhibitCount         int
	pendingReschedule    bool
	pendingRescheduleNow bool

	timer        *clock.Timer
	timerGen     uint64
	scheduledNow bool

	nextDeadline     time.Time
	nextPresentation time.Time

	lastDispatch     time.Time
	lastLateness     time.Duration
	lastPresentation time.Time
	lastFlip         time.Time
	measuredRefresh  time.Duration

	frameCount int64
	estimator  *Estimator

	failures         int
	failureThreshold int
	retryBackoff     *backoff.ExponentialBackOff
	degraded         bool
	onDegraded       func(error)
}

// NewClock creates a frame clock for one output.
func NewClock(cfg *Config) (*Clock, error) {
	if cfg == nil {
		return nil, errors.New("frame: config is nil")
	}
	if cfg.Driver == nil {
		return nil, errors.New("frame: config has no driver")
	}
	if cfg.Dispatch == nil {
		return nil, errors.New("frame: config has no dispatch callback")
	}
	if cfg.RefreshInterval <= 0 {
		return nil, fmt.Errorf("frame: invalid refresh interval %v", cfg.RefreshInterval)
	}

	clk := cfg.Clock
	if clk == nil {
		clk = clock.New()
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.RefreshInterval
	bo.MaxInterval = 4 * cfg.RefreshInterval
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	return &Clock{
		name:             cfg.Name,
		clk:              clk,
		log:              log,
		driver:           cfg.Driver,
		dispatch:         cfg.Dispatch,
		refreshInterval:  cfg.RefreshInterval,
		estimator:        NewEstimator(),
		failureThreshold: threshold,
		retryBackoff:     bo,
		onDegraded:       cfg.OnDegraded,
	}, nil
}

// Name returns the clock's identifier.
func (c *Clock) Name() string { return c.name }

// State returns the clock's current state.
func (c *Clock) State() State { return c.state }

// Mode returns the active scheduling mode.
func (c *Clock) Mode() Mode { return c.mode }

// FrameCount returns how many dispatches have run.
func (c *Clock) FrameCount() int64 { return c.frameCount }

// Inhibited reports whether dispatching is currently suppressed.
func (c *Clock) Inhibited() bool { return c.inhibitCount > 0 }

// Degraded reports whether the clock stopped retrying after repeated
// presentation failures. The next schedule request clears it.
func (c *Clock) Degraded() bool { return c.degraded }

// RefreshInterval returns the best known refresh interval: the measured
// flip interval when available, the nominal one otherwise.
func (c *Clock) RefreshInterval() time.Duration {
	if c.measuredRefresh > 0 {
		return c.measuredRefresh
	}
	return c.refreshInterval
}

// Priority derives an event source priority from the refresh rate, so
// that faster outputs win when several clocks contend for the loop.
func (c *Clock) Priority() int {
	hz := float64(time.Second) / float64(c.refreshInterval)
	return int(math.Round(hz * 1000))
}

// SetMode switches the scheduling mode. An already armed deadline is
// kept; the mode applies from the next scheduling decision.
func (c *Clock) SetMode(m Mode) {
	if c.mode == m {
		return
	}
	c.mode = m
	c.log.Debug("frame clock mode changed", "clock", c.name, "mode", m.String())
}

// ScheduleUpdate requests a dispatch aligned to the next presentation
// the output can reach. It is a no-op while an update is already
// scheduled or dispatching, and is deferred while inhibited or while a
// frame awaits presentation feedback.
func (c *Clock) ScheduleUpdate() {
	c.clearDegraded()
	if c.inhibitCount > 0 {
		c.pendingReschedule = true
		return
	}
	switch c.state {
	case StateIdle:
		c.scheduleAt(c.calculateNextDeadline(), false)
	case StateScheduled, StateDispatching:
		// Already covered by the pending dispatch.
	case StateAwaitingPresentation:
		c.pendingReschedule = true
	}
}

// ScheduleUpdateNow requests a dispatch as soon as possible, bypassing
// refresh alignment. It upgrades an armed aligned deadline, and is
// deferred while inhibited or while a frame awaits presentation.
func (c *Clock) ScheduleUpdateNow() {
	c.clearDegraded()
	if c.inhibitCount > 0 {
		c.pendingRescheduleNow = true
		return
	}
	switch c.state {
	case StateIdle:
		c.scheduleAt(c.clk.Now(), true)
	case StateScheduled:
		if !c.scheduledNow {
			c.scheduleAt(c.clk.Now(), true)
		}
	case StateDispatching:
		// Already dispatching; the frame being produced is as soon
		// as it gets.
	case StateAwaitingPresentation:
		c.pendingRescheduleNow = true
	}
}

// Inhibit suppresses dispatching until a matching Uninhibit. An armed
// deadline is remembered and unscheduled; nested calls stack.
func (c *Clock) Inhibit() {
	c.inhibitCount++
	if c.inhibitCount > 1 {
		return
	}
	if c.state == StateScheduled {
		if c.scheduledNow {
			c.pendingRescheduleNow = true
		} else {
			c.pendingReschedule = true
		}
		c.stopTimer()
		c.state = StateIdle
		c.log.Debug("frame clock inhibited, update unscheduled", "clock", c.name)
	}
}

// Uninhibit releases one Inhibit. When the count reaches zero, any
// deadline missed while inhibited fires immediately. Calling without a
// matching Inhibit is a bug and panics.
func (c *Clock) Uninhibit() {
	if c.inhibitCount == 0 {
		panic("frame: uninhibit without matching inhibit")
	}
	c.inhibitCount--
	if c.inhibitCount == 0 {
		c.firePending()
	}
}

// NotifyPresented delivers presentation feedback for the in-flight
// frame, feeding the timing estimator and releasing any deferred
// schedule request.
func (c *Clock) NotifyPresented(info PresentationInfo) {
	if c.state != StateAwaitingPresentation {
		c.log.Warn("unexpected presentation feedback",
			"clock", c.name, "state", c.state.String())
		return
	}

	ts := info.Timestamp
	if ts.IsZero() {
		ts = c.clk.Now()
	}
	c.lastPresentation = ts
	if info.RefreshInterval > 0 {
		c.measuredRefresh = info.RefreshInterval
	}
	if !c.lastDispatch.IsZero() && ts.After(c.lastDispatch) {
		c.estimator.AddSample(c.lastLateness, ts.Sub(c.lastDispatch))
	}

	c.failures = 0
	c.retryBackoff.Reset()
	c.state = StateIdle
	c.log.Debug("frame presented",
		"clock", c.name, "count", c.frameCount, "timestamp", ts)
	c.firePending()
}

// NotifyReady reports that the in-flight frame was discarded without
// reaching the display, for example because a newer frame replaced it.
// No timing sample is recorded.
func (c *Clock) NotifyReady() {
	if c.state != StateAwaitingPresentation {
		c.log.Warn("unexpected ready notification",
			"clock", c.name, "state", c.state.String())
		return
	}
	c.state = StateIdle
	c.log.Debug("frame discarded before presentation", "clock", c.name, "count", c.frameCount)
	c.firePending()
}

// NotifyFailed reports that the in-flight frame failed after
// submission, for example an atomic commit the display rejected. The
// clock retries under the same bounded policy as a dispatch that
// failed synchronously.
func (c *Clock) NotifyFailed() {
	if c.state != StateAwaitingPresentation {
		c.log.Warn("unexpected failure notification",
			"clock", c.name, "state", c.state.String())
		return
	}
	c.handleFailure(c.clk.Now())
}

// SetFailureThreshold updates how many consecutive presentation
// failures the clock tolerates. Non-positive values select the
// default. The new threshold applies from the next failure.
func (c *Clock) SetFailureThreshold(n int) {
	if n <= 0 {
		n = DefaultFailureThreshold
	}
	c.failureThreshold = n
}

// RecordFlipTime feeds a hardware flip timestamp into the refresh
// interval measurement. Deltas far from the nominal interval, such as
// across a suspend, are ignored.
func (c *Clock) RecordFlipTime(t time.Time) {
	if !c.lastFlip.IsZero() && t.After(c.lastFlip) {
		delta := t.Sub(c.lastFlip)
		if delta > c.refreshInterval/2 && delta < 2*c.refreshInterval {
			c.measuredRefresh = delta
		}
	}
	c.lastFlip = t
}

// Stop cancels any armed dispatch and returns the clock to idle. It is
// called when the output backing the clock goes away.
func (c *Clock) Stop() {
	c.stopTimer()
	c.state = StateIdle
	c.pendingReschedule = false
	c.pendingRescheduleNow = false
	c.log.Debug("frame clock stopped", "clock", c.name)
}

func (c *Clock) clearDegraded() {
	if !c.degraded {
		return
	}
	c.degraded = false
	c.failures = 0
	c.retryBackoff.Reset()
	c.log.Info("frame clock resuming after degraded mode", "clock", c.name)
}

func (c *Clock) firePending() {
	switch {
	case c.pendingRescheduleNow:
		c.pendingRescheduleNow = false
		c.pendingReschedule = false
		c.ScheduleUpdateNow()
	case c.pendingReschedule:
		c.pendingReschedule = false
		c.ScheduleUpdate()
	}
}

func (c *Clock) scheduleAt(deadline time.Time, now bool) {
	c.nextDeadline = deadline
	c.scheduledNow = now
	c.state = StateScheduled
	c.armTimer(deadline)
	c.log.Debug("update scheduled",
		"clock", c.name, "deadline", deadline, "immediate", now)
}

func (c *Clock) armTimer(deadline time.Time) {
	c.stopTimer()
	c.timerGen++
	gen := c.timerGen
	d := deadline.Sub(c.clk.Now())
	if d < 0 {
		d = 0
	}
	c.timer = c.clk.AfterFunc(d, func() {
		c.onDeadline(gen)
	})
}

func (c *Clock) stopTimer() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerGen++
}

func (c *Clock) onDeadline(gen uint64) {
	if gen != c.timerGen {
		// A stale timer that lost a Stop/rearm race. Drop it.
		return
	}
	c.timer = nil
	c.dispatchFrame()
}

func (c *Clock) dispatchFrame() {
	if c.state != StateScheduled {
		panic(fmt.Sprintf("frame: dispatch in state %s", c.state))
	}
	if c.inhibitCount > 0 {
		panic("frame: dispatch while inhibited")
	}

	now := c.clk.Now()
	c.lastLateness = 0
	if !c.nextDeadline.IsZero() && now.After(c.nextDeadline) {
		c.lastLateness = now.Sub(c.nextDeadline)
	}

	c.state = StateDispatching
	c.lastDispatch = now
	c.frameCount++

	target := c.nextPresentation
	if target.IsZero() || target.Before(now) {
		target = now
	}
	if adjusted := c.driver.PreDispatch(now, target); !adjusted.IsZero() {
		target = adjusted
	}

	frame := &Frame{
		Count:              c.frameCount,
		DispatchTime:       now,
		TargetPresentation: target,
	}
	result := c.dispatch(frame)
	c.driver.PostDispatch(result)

	switch result {
	case ResultPresentPending:
		c.state = StateAwaitingPresentation
	case ResultIdle:
		c.state = StateIdle
		c.failures = 0
		c.retryBackoff.Reset()
		c.firePending()
	case ResultFailed:
		c.handleFailure(now)
	default:
		panic(fmt.Sprintf("frame: dispatch returned unknown result %d", result))
	}
}

func (c *Clock) handleFailure(now time.Time) {
	c.failures++
	c.state = StateIdle

	if c.failures >= c.failureThreshold {
		if !c.degraded {
			c.degraded = true
			err := fmt.Errorf("%w: %d consecutive failures on %s",
				ErrTooManyFailures, c.failures, c.name)
			c.log.Error("frame clock entering degraded mode",
				"clock", c.name, "failures", c.failures)
			if c.onDegraded != nil {
				c.onDegraded(err)
			}
		}
		return
	}

	// Retry with the usual missed-frame deadline, but never sooner
	// than the backoff allows so a wedged backend is not hammered.
	delay := c.retryBackoff.NextBackOff()
	deadline := c.calculateNextDeadline()
	if earliest := now.Add(delay); deadline.Before(earliest) {
		deadline = earliest
	}
	c.log.Warn("presentation failed, retrying",
		"clock", c.name, "failures", c.failures, "deadline", deadline)
	c.scheduleAt(deadline, false)
}

// calculateNextDeadline picks when the next dispatch must start.
//
// Fixed mode aims at the next presentation the output can reach and
// subtracts the estimated render time, catching up over any missed
// refresh cycles. Variable mode paces one interval from the previous
// dispatch so content drives the rate.
func (c *Clock) calculateNextDeadline() time.Time {
	now := c.clk.Now()
	interval := c.RefreshInterval()

	if c.mode == ModeVariable {
		c.nextPresentation = time.Time{}
		if c.lastDispatch.IsZero() {
			return now
		}
		next := c.lastDispatch.Add(interval)
		if next.Before(now) {
			next = now
		}
		return next
	}

	if c.lastPresentation.IsZero() {
		// Nothing presented yet: dispatch right away and aim one
		// interval out.
		c.nextPresentation = now.Add(interval)
		return now
	}

	next := c.lastPresentation.Add(interval)
	if behind := now.Sub(next); behind >= 0 {
		steps := int64(behind/interval) + 1
		next = next.Add(time.Duration(steps) * interval)
	}
	c.nextPresentation = next

	deadline := next.Add(-c.estimator.MaxRenderTime(interval))
	if deadline.Before(now) {
		deadline = now
	}
	return deadline
}
