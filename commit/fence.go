package commit

import "fmt"

// Tier orders fences by merge precedence. A lower number resolves
// earlier: state held by a lower tier cascades into the next fenced
// tier's cached state rather than directly into the current state, so
// transaction content still passes through any pacing barrier.
type Tier int

const (
	// TierTransaction fences state on an explicit multi-surface
	// transaction committing.
	TierTransaction Tier = iota

	// TierFIFOBarrier fences state on the surface's output completing
	// its next presentation.
	TierFIFOBarrier

	// TierTearingHint orders the tearing flag behind the blocking
	// tiers. It never carries a blocking fence.
	TierTearingHint

	numBlockingTiers = int(TierTearingHint)
)

// String returns the tier name for logs.
func (t Tier) String() string {
	switch t {
	case TierTransaction:
		return "transaction"
	case TierFIFOBarrier:
		return "fifo-barrier"
	case TierTearingHint:
		return "tearing-hint"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// blocking reports whether fences of this tier gate merging.
func (t Tier) blocking() bool {
	return t >= 0 && int(t) < numBlockingTiers
}

// Fence gates a surface's pending state from becoming current. It is
// attached by a protocol object (transaction, FIFO queue) and resolves
// when that producer's condition is met, or is removed when the
// producer or surface goes away.
type Fence struct {
	surface   *Surface
	tier      Tier
	predicate func() bool
	satisfied bool
	detached  bool
}

// Tier returns the fence's merge precedence tier.
func (f *Fence) Tier() Tier { return f.tier }

// Satisfied reports whether the fence has resolved.
func (f *Fence) Satisfied() bool { return f.satisfied }

// Resolve marks the fence satisfied and lets any state it was holding
// cascade toward the current state. Resolving twice is a no-op.
func (f *Fence) Resolve() {
	if f.satisfied || f.detached {
		return
	}
	f.satisfied = true
	f.surface.fenceResolved(f)
}

// Check evaluates the fence's predicate, resolving it when satisfied.
// It reports whether the fence has resolved. Fences without a
// predicate resolve only through Resolve.
func (f *Fence) Check() bool {
	if f.satisfied {
		return true
	}
	if f.predicate != nil && f.predicate() {
		f.Resolve()
	}
	return f.satisfied
}

// Remove detaches the fence without resolving it. State the fence was
// holding stays cached and settles on the surface's next commit; no
// merge is forced immediately.
func (f *Fence) Remove() {
	if f.satisfied || f.detached {
		return
	}
	f.detached = true
	f.surface.fenceRemoved(f)
}
