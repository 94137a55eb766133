package protocol

import (
	"errors"

	"github.com/google/uuid"

	"github.com/gogpu/compositor/commit"
)

// Transaction is a client's handle on one atomic-commit transaction.
// Committing or destroying it spends the handle.
type Transaction struct {
	client    *Client
	tx        *commit.Transaction
	destroyed bool
}

// ID returns the transaction's identity.
func (t *Transaction) ID() uuid.UUID { return t.tx.ID() }

// Len returns the number of member surfaces.
func (t *Transaction) Len() int { return t.tx.Len() }

// Add fences the surface's next committed state on the transaction. A
// surface already belonging to another live transaction is a
// violation.
func (t *Transaction) Add(s *commit.Surface) error {
	if t.client.dead {
		return ErrClientDead
	}
	if t.destroyed || t.tx.Committed() {
		return &Error{Code: CodeTargetDestroyed,
			Message: "add to spent transaction"}
	}
	if s == nil || s.Destroyed() {
		return &Error{Code: CodeTargetDestroyed,
			Message: "destroyed surface added to transaction"}
	}
	err := t.tx.Add(s)
	switch {
	case errors.Is(err, commit.ErrSurfaceInTransaction):
		return t.client.fatal(&Error{Code: CodeAlreadyExists,
			Message: "surface already belongs to a transaction"})
	case errors.Is(err, commit.ErrTransactionClosed):
		return &Error{Code: CodeTargetDestroyed,
			Message: "add to spent transaction"}
	}
	return err
}

// Commit atomically resolves every member's transaction fence and
// spends the handle.
func (t *Transaction) Commit() error {
	if t.client.dead {
		return ErrClientDead
	}
	if t.destroyed || t.tx.Committed() {
		return &Error{Code: CodeTargetDestroyed,
			Message: "commit of spent transaction"}
	}
	t.tx.Commit()
	t.destroyed = true
	delete(t.client.transactions, t)
	return nil
}

// Destroy discards an uncommitted transaction along with the state its
// fences were holding. Idempotent.
func (t *Transaction) Destroy() {
	if t.destroyed {
		return
	}
	t.destroyed = true
	t.tx.Destroy()
	delete(t.client.transactions, t)
}

// FIFOBarrier is a client's handle on one surface pacing barrier.
type FIFOBarrier struct {
	client    *Client
	surface   *commit.Surface
	fence     *commit.Fence
	destroyed bool
}

// Surface returns the surface the barrier paces.
func (b *FIFOBarrier) Surface() *commit.Surface { return b.surface }

// Satisfied reports whether the barrier already resolved.
func (b *FIFOBarrier) Satisfied() bool { return b.fence.Satisfied() }

// Destroy releases an unsatisfied barrier without resolving it; the
// state it held settles on the surface's next commit. Idempotent.
func (b *FIFOBarrier) Destroy() {
	if b.destroyed {
		return
	}
	b.destroyed = true
	if !b.fence.Satisfied() {
		b.client.fifo.Release(b.fence)
	}
	if b.client.barriers[b.surface] == b {
		delete(b.client.barriers, b.surface)
	}
}

// TearingControl is a client's handle on one surface's presentation
// preference.
type TearingControl struct {
	client    *Client
	surface   *commit.Surface
	ctl       *commit.TearingControl
	destroyed bool
}

// Surface returns the surface the control steers.
func (tc *TearingControl) Surface() *commit.Surface { return tc.surface }

// SetHint updates the surface's presentation preference. A hint value
// outside the protocol's domain is a violation.
func (tc *TearingControl) SetHint(h commit.TearingHint) error {
	if tc.client.dead {
		return ErrClientDead
	}
	if tc.destroyed {
		return &Error{Code: CodeTargetDestroyed,
			Message: "hint on destroyed tearing control"}
	}
	err := tc.ctl.SetHint(h)
	switch {
	case errors.Is(err, commit.ErrInvalidTearingHint):
		return tc.client.fatal(&Error{Code: CodeInvalidArgument,
			Message: "unknown tearing hint"})
	case errors.Is(err, commit.ErrSurfaceDestroyed):
		return &Error{Code: CodeTargetDestroyed,
			Message: "hint on destroyed surface"}
	}
	return err
}

// Destroy releases the control and restores the vsync default.
// Idempotent.
func (tc *TearingControl) Destroy() {
	if tc.destroyed {
		return
	}
	tc.destroyed = true
	tc.ctl.Destroy()
	if tc.client.controls[tc.surface] == tc {
		delete(tc.client.controls, tc.surface)
	}
}
