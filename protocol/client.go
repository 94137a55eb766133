package protocol

import (
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/gogpu/compositor/commit"
)

// ClientConfig wires a client to the compositor's pacing managers.
type ClientConfig struct {
	// FIFO resolves pacing barriers. Required.
	FIFO *commit.FIFOManager

	// Tearing hands out per-surface tearing controls. Required.
	Tearing *commit.TearingManager

	// Logger receives protocol events. A nil logger is silenced.
	Logger *slog.Logger

	// OnFatal is called once when a violation kills the client, before
	// the offending request returns. The embedder uses it to send the
	// wire error and tear down the connection.
	OnFatal func(*Error)
}

// Client is one protocol connection. Requests on a dead client fail
// with ErrClientDead; Close releases every protocol object the client
// still owns. Clients are not safe for concurrent use, matching the
// single event loop all requests arrive on.
type Client struct {
	id      uuid.UUID
	log     *slog.Logger
	fifo    *commit.FIFOManager
	tearing *commit.TearingManager
	onFatal func(*Error)

	dead bool

	transactions map[*Transaction]struct{}
	barriers     map[*commit.Surface]*FIFOBarrier
	controls     map[*commit.Surface]*TearingControl
}

// NewClient creates a client bound to the given managers.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.FIFO == nil {
		return nil, errors.New("protocol: FIFO manager is nil")
	}
	if cfg.Tearing == nil {
		return nil, errors.New("protocol: tearing manager is nil")
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	c := &Client{
		id:           uuid.New(),
		fifo:         cfg.FIFO,
		tearing:      cfg.Tearing,
		onFatal:      cfg.OnFatal,
		transactions: make(map[*Transaction]struct{}),
		barriers:     make(map[*commit.Surface]*FIFOBarrier),
		controls:     make(map[*commit.Surface]*TearingControl),
	}
	c.log = log.With("client", c.id)
	return c, nil
}

// ID returns the connection's identity.
func (c *Client) ID() uuid.UUID { return c.id }

// Dead reports whether the connection was killed or closed.
func (c *Client) Dead() bool { return c.dead }

// fatal marks the client dead and returns e for the failing request.
// Owned objects stay alive until the embedder acknowledges the death
// by calling Close.
func (c *Client) fatal(e *Error) *Error {
	if !c.dead {
		c.dead = true
		c.log.Warn("protocol violation, client killed",
			"code", e.Code, "message", e.Message)
		if c.onFatal != nil {
			c.onFatal(e)
		}
	}
	return e
}

// CreateTransaction opens an atomic-commit transaction owned by this
// client.
func (c *Client) CreateTransaction() (*Transaction, error) {
	if c.dead {
		return nil, ErrClientDead
	}
	t := &Transaction{client: c, tx: commit.NewTransaction(c.log)}
	c.transactions[t] = struct{}{}
	return t, nil
}

// RequestFIFOBarrier fences the surface's next committed state behind
// the next completed presentation of its output. A surface carries at
// most one outstanding barrier; requesting a second is a violation.
func (c *Client) RequestFIFOBarrier(s *commit.Surface) (*FIFOBarrier, error) {
	if c.dead {
		return nil, ErrClientDead
	}
	if s == nil || s.Destroyed() {
		return nil, &Error{Code: CodeTargetDestroyed,
			Message: "fifo barrier requested on destroyed surface"}
	}
	if prev, ok := c.barriers[s]; ok {
		if !prev.destroyed && !prev.fence.Satisfied() {
			return nil, c.fatal(&Error{Code: CodeAlreadyExists,
				Message: "surface already carries a fifo barrier"})
		}
		delete(c.barriers, s)
	}
	f, err := c.fifo.Barrier(s)
	if err != nil {
		return nil, err
	}
	b := &FIFOBarrier{client: c, surface: s, fence: f}
	c.barriers[s] = b
	c.log.Debug("fifo barrier created", "surface", s.Name())
	return b, nil
}

// CreateTearingControl acquires the surface's exclusive tearing
// control. A second control for the same surface is a violation.
func (c *Client) CreateTearingControl(s *commit.Surface) (*TearingControl, error) {
	if c.dead {
		return nil, ErrClientDead
	}
	if s == nil || s.Destroyed() {
		return nil, &Error{Code: CodeTargetDestroyed,
			Message: "tearing control requested on destroyed surface"}
	}
	ctl, err := c.tearing.Acquire(s)
	switch {
	case errors.Is(err, commit.ErrTearingControlExists):
		return nil, c.fatal(&Error{Code: CodeAlreadyExists,
			Message: "surface already has a tearing control"})
	case errors.Is(err, commit.ErrSurfaceDestroyed):
		return nil, &Error{Code: CodeTargetDestroyed,
			Message: "tearing control requested on destroyed surface"}
	case err != nil:
		return nil, err
	}
	tc := &TearingControl{client: c, surface: s, ctl: ctl}
	c.controls[s] = tc
	c.log.Debug("tearing control created", "surface", s.Name())
	return tc, nil
}

// Close kills the connection and destroys every protocol object the
// client still owns: open transactions discard their collected state,
// barriers release their fences, tearing controls restore the vsync
// default. Close is idempotent and is also how the embedder finishes
// off a client killed by a violation.
func (c *Client) Close() {
	c.dead = true
	for t := range c.transactions {
		t.Destroy()
	}
	for _, b := range c.barriers {
		b.Destroy()
	}
	for _, tc := range c.controls {
		tc.Destroy()
	}
	c.log.Debug("client closed")
}
