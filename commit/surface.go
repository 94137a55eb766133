// Package commit tracks surface content from client submission to
// visibility.
//
// Clients accumulate changes on a surface's pending state, then
// commit. Fences attached by protocol objects hold committed state in
// per-tier caches: transaction content resolves first and cascades
// into the FIFO tier rather than directly to the screen, so it still
// passes any pacing barrier. Only when no unsatisfied fence remains
// does state become current and eligible for the next painted frame.
package commit

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gogpu/compositor/damage"
)

// OutputHandle identifies the output a surface is presented on.
// Comparing handles for equality identifies the output; the commit
// package never looks inside.
type OutputHandle interface {
	Name() string
}

// Surface is one client surface: a current state visible to the
// renderer, a pending state accumulating the next commit, and fenced
// caches in between.
//
// Surfaces are confined to the compositor's event loop goroutine.
type Surface struct {
	id   uuid.UUID
	name string
	log  *slog.Logger

	current State
	pending State

	cached [numBlockingTiers]*State
	fences [numBlockingTiers][]*Fence

	openTx  *Transaction
	output  OutputHandle
	tearing bool

	applyObservers []func(*Surface)
	destroyed      bool
}

// NewSurface creates a surface. An empty name derives one from the
// surface's id; a nil logger silences it.
func NewSurface(name string, log *slog.Logger) *Surface {
	id := uuid.New()
	if name == "" {
		name = "surface-" + id.String()[:8]
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Surface{id: id, name: name, log: log}
}

// ID returns the surface's unique identifier.
func (s *Surface) ID() uuid.UUID { return s.id }

// Name returns the surface's log name.
func (s *Surface) Name() string { return s.name }

// SetOutput records the output the surface is currently mapped to,
// or nil when unmapped. FIFO barriers resolve against this output.
func (s *Surface) SetOutput(o OutputHandle) { s.output = o }

// Output returns the surface's current output, or nil.
func (s *Surface) Output() OutputHandle { return s.output }

// SetTearingAllowed flags whether this surface's content may be
// presented without waiting for a vertical sync boundary. The flag
// does not gate commits; the display aggregator reads it when picking
// the presentation mode.
func (s *Surface) SetTearingAllowed(allowed bool) { s.tearing = allowed }

// TearingAllowed reports the surface's tearing preference.
func (s *Surface) TearingAllowed() bool { return s.tearing }

// Attach sets the pending buffer. A nil buffer detaches content.
func (s *Surface) Attach(buf *Buffer) {
	s.pending.Buffer = buf
	s.pending.BufferSet = true
}

// AddDamage accumulates damage onto the pending state.
func (s *Surface) AddDamage(r damage.Region) {
	s.pending.Damage = s.pending.Damage.Union(r)
}

// SetScale sets the pending buffer scale.
func (s *Surface) SetScale(scale int) {
	s.pending.Scale = scale
}

// Frame registers a callback fired when the pending state is
// presented.
func (s *Surface) Frame(cb FrameCallback) {
	s.pending.Callbacks = append(s.pending.Callbacks, cb)
}

// AddStateFence attaches a fence at the given tier to the surface's
// committed-but-not-current state. The optional predicate is consulted
// by Check; resolution is otherwise signaled via Resolve.
func (s *Surface) AddStateFence(tier Tier, predicate func() bool) (*Fence, error) {
	if s.destroyed {
		panic("commit: fence added to destroyed surface " + s.name)
	}
	if !tier.blocking() {
		return nil, fmt.Errorf("commit: tier %s carries no blocking fences", tier)
	}
	f := &Fence{surface: s, tier: tier, predicate: predicate}
	s.fences[tier] = append(s.fences[tier], f)
	return f, nil
}

// FenceCount returns the number of unsatisfied fences attached to the
// surface across all tiers.
func (s *Surface) FenceCount() int {
	n := 0
	for t := range s.fences {
		n += len(s.fences[t])
	}
	return n
}

// Mergeable reports whether committed state can reach the current
// state without waiting on any fence.
func (s *Surface) Mergeable() bool {
	return s.FenceCount() == 0
}

// Commit snapshots the pending state and routes it toward the current
// state. With no fences attached the state applies immediately; with
// fences it parks in the highest-precedence fenced tier and cascades
// as fences resolve. Commit also settles state left parked by removed
// fences.
func (s *Surface) Commit() {
	if s.destroyed {
		panic("commit: commit on destroyed surface " + s.name)
	}
	snap := s.pending
	s.pending = State{}
	s.settleCached()
	s.routeFrom(0, &snap)
}

// OnApply registers fn to run synchronously whenever committed state
// becomes current, for repaint scheduling.
func (s *Surface) OnApply(fn func(*Surface)) {
	s.applyObservers = append(s.applyObservers, fn)
}

// CurrentBuffer returns the buffer currently attached, or nil.
func (s *Surface) CurrentBuffer() *Buffer { return s.current.Buffer }

// Scale returns the current buffer scale, defaulting to 1.
func (s *Surface) Scale() int {
	if s.current.Scale == 0 {
		return 1
	}
	return s.current.Scale
}

// TakeDamage returns the damage accumulated on the current state since
// the last call and clears it.
func (s *Surface) TakeDamage() damage.Region {
	d := s.current.Damage
	s.current.Damage = damage.Region{}
	return d
}

// NotifyPresented fires and clears the frame callbacks of the
// presented state.
func (s *Surface) NotifyPresented(t time.Time) {
	cbs := s.current.Callbacks
	s.current.Callbacks = nil
	for _, cb := range cbs {
		cb(t)
	}
}

// Destroy clears the surface's fences and cached state. A destroyed
// surface leaves its transaction without affecting other members; no
// fence outlives the surface.
func (s *Surface) Destroy() {
	if s.destroyed {
		return
	}
	if s.openTx != nil {
		s.openTx.removeSurface(s)
	}
	for t := range s.fences {
		for _, f := range s.fences[t] {
			f.detached = true
		}
		s.fences[t] = nil
		s.cached[t] = nil
	}
	s.destroyed = true
	s.log.Debug("surface destroyed", "surface", s.name)
}

// Destroyed reports whether Destroy has run.
func (s *Surface) Destroyed() bool { return s.destroyed }

func (s *Surface) fenceResolved(f *Fence) {
	s.detachFence(f)
	if len(s.fences[f.tier]) > 0 {
		return
	}
	st := s.cached[f.tier]
	if st == nil {
		return
	}
	s.cached[f.tier] = nil
	s.routeFrom(int(f.tier)+1, st)
}

func (s *Surface) fenceRemoved(f *Fence) {
	s.detachFence(f)
}

func (s *Surface) detachFence(f *Fence) {
	tier := s.fences[f.tier]
	for i, g := range tier {
		if g == f {
			s.fences[f.tier] = append(tier[:i], tier[i+1:]...)
			return
		}
	}
}

// routeFrom merges st into the first fenced or occupied tier at or
// above tier, flushing through tiers whose fences have all cleared,
// and applies it to the current state when nothing holds it back.
func (s *Surface) routeFrom(tier int, st *State) {
	for t := tier; t < numBlockingTiers; t++ {
		if len(s.fences[t]) == 0 && s.cached[t] == nil {
			continue
		}
		if s.cached[t] == nil {
			s.cached[t] = &State{}
		}
		merge(s.cached[t], st)
		if len(s.fences[t]) > 0 {
			s.log.Debug("state parked behind fence",
				"surface", s.name, "tier", Tier(t).String())
			return
		}
		st = s.cached[t]
		s.cached[t] = nil
	}
	s.applyState(st)
}

// settleCached flushes tiers whose fences were removed rather than
// resolved, so orphaned state advances on the next commit.
func (s *Surface) settleCached() {
	for t := 0; t < numBlockingTiers; t++ {
		if s.cached[t] == nil || len(s.fences[t]) > 0 {
			continue
		}
		st := s.cached[t]
		s.cached[t] = nil
		s.routeFrom(t+1, st)
	}
}

func (s *Surface) applyState(st *State) {
	merge(&s.current, st)
	s.log.Debug("state applied",
		"surface", s.name, "damage", s.current.Damage.NumRects())
	for _, fn := range s.applyObservers {
		fn(s)
	}
}
