package backend

import (
	"errors"
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/gogpu/compositor/frame"
	"github.com/gogpu/compositor/kms"
	"github.com/gogpu/compositor/output"
)

// NestedBackend presents into a window of a host compositor. The host
// paces presentation on its own; submitted updates complete
// immediately and the frame clock's own deadline computation provides
// the pacing. It is always available, which makes it the fallback
// backend and the one used in tests.
type NestedBackend struct {
	clk    clock.Clock
	log    *slog.Logger
	device *kms.Device
	closed bool
}

var _ Backend = (*NestedBackend)(nil)

// init registers the nested backend on package import.
func init() {
	Register(BackendNested, 50, func(opts Options) (Backend, error) {
		return NewNestedBackend(opts), nil
	}, nil)
}

// NewNestedBackend creates a nested display backend.
func NewNestedBackend(opts Options) *NestedBackend {
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &NestedBackend{
		clk:    clk,
		log:    log,
		device: kms.NewDevice("nested", "nested", false),
	}
}

// Name returns the backend identifier.
func (b *NestedBackend) Name() string {
	return BackendNested
}

// Device returns the virtual device updates are created for.
func (b *NestedBackend) Device() *kms.Device {
	return b.device
}

// Presenter creates the presentation driver for an output.
func (b *NestedBackend) Presenter(o *output.Output) (Presenter, error) {
	if o == nil {
		return nil, errors.New("backend: output is nil")
	}
	return &nestedPresenter{
		clk:       b.clk,
		log:       b.log,
		device:    b.device,
		connector: o.Name(),
	}, nil
}

// Close releases the host connection.
func (b *NestedBackend) Close() error {
	b.closed = true
	return nil
}

// nestedPresenter completes every submission immediately: the host
// compositor owns the real display timing and absorbs our frames
// whenever they arrive.
type nestedPresenter struct {
	clk       clock.Clock
	log       *slog.Logger
	device    *kms.Device
	connector string
	pending   *clock.Timer
}

var _ Presenter = (*nestedPresenter)(nil)

func (p *nestedPresenter) PreDispatch(now, target time.Time) time.Time {
	// The host's pacing is opaque; keep the clock's plan.
	return time.Time{}
}

func (p *nestedPresenter) PostDispatch(result frame.Result) {
}

func (p *nestedPresenter) Submit(u *kms.Update, listener kms.FeedbackListener) error {
	if u == nil {
		return ErrNilUpdate
	}
	if listener == nil {
		return ErrNilListener
	}
	if p.pending != nil {
		return ErrFlipPending
	}
	if u.Device() != p.device {
		panic("backend: update submitted to a different device than it was created for")
	}

	p.pending = p.clk.AfterFunc(0, func() {
		p.pending = nil
		listener.OnPresented(p.clk.Now(), 0)
	})
	return nil
}

func (p *nestedPresenter) Stop() {
	if p.pending != nil {
		p.pending.Stop()
		p.pending = nil
	}
}
