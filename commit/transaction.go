package commit

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

// Transaction errors. ErrSurfaceInTransaction is a protocol violation
// and fatal to the offending client's connection at the protocol
// layer.
var (
	ErrSurfaceInTransaction = errors.New("commit: surface already belongs to an open transaction")
	ErrTransactionClosed    = errors.New("commit: transaction already committed or destroyed")
)

// Transaction groups commits across surfaces so they become visible
// atomically. Each member carries a transaction-tier fence that
// resolves for all members at once when the transaction commits.
type Transaction struct {
	id      uuid.UUID
	log     *slog.Logger
	members map[*Surface]*Fence
	order   []*Surface

	committed bool
	destroyed bool
}

// NewTransaction opens an empty transaction.
func NewTransaction(log *slog.Logger) *Transaction {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Transaction{
		id:      uuid.New(),
		log:     log,
		members: make(map[*Surface]*Fence),
	}
}

// ID returns the transaction's unique identifier.
func (tx *Transaction) ID() uuid.UUID { return tx.id }

// Committed reports whether Commit has run.
func (tx *Transaction) Committed() bool { return tx.committed }

// Len returns the number of member surfaces.
func (tx *Transaction) Len() int { return len(tx.members) }

// Add makes s a member of the transaction and fences its committed
// state on the transaction committing. Adding a surface that already
// belongs to a different open transaction fails with
// ErrSurfaceInTransaction and leaves that transaction untouched;
// re-adding a member is a no-op.
func (tx *Transaction) Add(s *Surface) error {
	if tx.committed || tx.destroyed {
		return ErrTransactionClosed
	}
	if s.openTx == tx {
		return nil
	}
	if s.openTx != nil {
		return ErrSurfaceInTransaction
	}

	f, err := s.AddStateFence(TierTransaction, func() bool { return tx.committed })
	if err != nil {
		return err
	}
	s.openTx = tx
	tx.members[s] = f
	tx.order = append(tx.order, s)
	tx.log.Debug("surface joined transaction",
		"transaction", tx.id, "surface", s.name, "members", len(tx.members))
	return nil
}

// Commit resolves every member's fence at once and dissolves the
// transaction. Members advance as far as their remaining fences allow;
// a member still holding a FIFO barrier keeps its state parked there.
// Committing an already closed transaction is a no-op.
func (tx *Transaction) Commit() {
	if tx.committed || tx.destroyed {
		tx.log.Warn("commit on closed transaction", "transaction", tx.id)
		return
	}
	tx.committed = true

	members := tx.order
	fences := tx.members
	tx.members = nil
	tx.order = nil

	for _, s := range members {
		s.openTx = nil
	}
	for _, s := range members {
		fences[s].Resolve()
	}
	tx.log.Debug("transaction committed",
		"transaction", tx.id, "members", len(members))
}

// Destroy dissolves an uncommitted transaction. Member fences are
// removed and the state collected under the transaction is discarded;
// nothing merges.
func (tx *Transaction) Destroy() {
	if tx.committed || tx.destroyed {
		tx.destroyed = true
		return
	}
	tx.destroyed = true

	for _, s := range tx.order {
		f := tx.members[s]
		s.openTx = nil
		f.Remove()
		s.cached[TierTransaction] = nil
	}
	tx.log.Debug("transaction destroyed",
		"transaction", tx.id, "members", len(tx.members))
	tx.members = nil
	tx.order = nil
}

// removeSurface drops a destroyed member, leaving the other members'
// fences untouched.
func (tx *Transaction) removeSurface(s *Surface) {
	f, ok := tx.members[s]
	if !ok {
		return
	}
	delete(tx.members, s)
	for i, m := range tx.order {
		if m == s {
			tx.order = append(tx.order[:i], tx.order[i+1:]...)
			break
		}
	}
	s.openTx = nil
	f.Remove()
	s.cached[TierTransaction] = nil
}
