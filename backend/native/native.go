// Package native implements the display backend driving hardware
// directly. Presentation completes on the device's vertical sync
// boundary, or immediately for tearing flips.
//
// The backend registers itself under the name "native". Import it for
// side effects:
//
//	import _ "github.com/gogpu/compositor/backend/native"
package native

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/gogpu/compositor/backend"
	"github.com/gogpu/compositor/frame"
	"github.com/gogpu/compositor/kms"
	"github.com/gogpu/compositor/output"
)

// DefaultDevicePath is the device node opened when Options.DevicePath
// is empty.
const DefaultDevicePath = "/dev/dri/card0"

// ErrNoFramebuffer is reported through the feedback listener when an
// update reaches the display without any framebuffer to present.
var ErrNoFramebuffer = errors.New("native: update presents no framebuffer")

func init() {
	backend.Register(backend.BackendNative, 100, func(opts backend.Options) (backend.Backend, error) {
		return NewBackend(opts)
	}, Available)
}

// Available reports whether display hardware is accessible.
func Available() bool {
	_, err := os.Stat("/dev/dri")
	return err == nil
}

// Backend is a connection to a display device node.
type Backend struct {
	clk    clock.Clock
	log    *slog.Logger
	device *kms.Device
}

var _ backend.Backend = (*Backend)(nil)

// NewBackend opens the native display backend.
func NewBackend(opts backend.Options) (*Backend, error) {
	path := opts.DevicePath
	if path == "" {
		path = DefaultDevicePath
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.New()
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	b := &Backend{
		clk:    clk,
		log:    log,
		device: kms.NewDevice(path, backend.BackendNative, opts.AsyncFlip),
	}
	b.log.Info("display device opened",
		"device", path,
		"async_flip", opts.AsyncFlip)
	return b, nil
}

// Name returns the backend identifier.
func (b *Backend) Name() string {
	return backend.BackendNative
}

// Device returns the display device updates must be created for.
func (b *Backend) Device() *kms.Device {
	return b.device
}

// Presenter creates the presentation driver for an output. The output
// must be driven by this backend's device.
func (b *Backend) Presenter(o *output.Output) (backend.Presenter, error) {
	if o == nil {
		return nil, errors.New("native: output is nil")
	}
	if o.Device() != b.device {
		return nil, fmt.Errorf("native: output %s is driven by %s, not %s",
			o.Name(), o.Device().Path(), b.device.Path())
	}
	interval := o.Mode().RefreshInterval()
	return &presenter{
		clk:        b.clk,
		log:        b.log,
		device:     b.device,
		connector:  o.Name(),
		interval:   interval,
		nextVblank: b.clk.Now().Add(interval),
	}, nil
}

// Close releases the display device.
func (b *Backend) Close() error {
	b.log.Info("display device closed", "device", b.device.Path())
	return nil
}

// presenter drives one output's page flips. Completions land on the
// vertical sync grid: flips submitted between two vblanks take effect
// on the later one.
type presenter struct {
	clk       clock.Clock
	log       *slog.Logger
	device    *kms.Device
	connector string
	interval  time.Duration

	// nextVblank is the earliest sync boundary a flip can land on.
	nextVblank time.Time
	pending    *clock.Timer
}

var _ backend.Presenter = (*presenter)(nil)

// PreDispatch rounds the planned presentation time up to the sync
// grid. Returns the zero time when the plan is already aligned.
func (p *presenter) PreDispatch(now, target time.Time) time.Time {
	p.syncGrid(now)
	aligned := p.nextVblank
	if d := target.Sub(aligned); d > 0 {
		steps := (d + p.interval - 1) / p.interval
		aligned = aligned.Add(steps * p.interval)
	}
	if aligned.Equal(target) {
		return time.Time{}
	}
	return aligned
}

func (p *presenter) PostDispatch(result frame.Result) {
	if result == frame.ResultFailed {
		p.log.Debug("dispatch produced no update", "connector", p.connector)
	}
}

// Submit schedules a page flip for the update. Vsync flips complete on
// the next sync boundary; tearing flips complete immediately and leave
// the sync grid untouched.
func (p *presenter) Submit(u *kms.Update, listener kms.FeedbackListener) error {
	if u == nil {
		return backend.ErrNilUpdate
	}
	if listener == nil {
		return backend.ErrNilListener
	}
	if p.pending != nil {
		return backend.ErrFlipPending
	}
	if u.Device() != p.device {
		panic("native: update submitted to a different device than it was created for")
	}

	if u.Presents() == nil {
		p.pending = p.clk.AfterFunc(0, func() {
			p.pending = nil
			listener.OnFailed(ErrNoFramebuffer)
		})
		return nil
	}

	if u.Mode() == kms.PresentAsync {
		p.pending = p.clk.AfterFunc(0, func() {
			p.pending = nil
			listener.OnPresented(p.clk.Now(), p.interval)
		})
		return nil
	}

	now := p.clk.Now()
	p.syncGrid(now)
	flipAt := p.nextVblank
	p.nextVblank = flipAt.Add(p.interval)
	p.pending = p.clk.AfterFunc(flipAt.Sub(now), func() {
		p.pending = nil
		listener.OnPresented(flipAt, p.interval)
	})
	return nil
}

// Stop cancels a pending flip completion.
func (p *presenter) Stop() {
	if p.pending != nil {
		p.pending.Stop()
		p.pending = nil
	}
}

// syncGrid advances nextVblank past now, preserving grid alignment.
func (p *presenter) syncGrid(now time.Time) {
	if p.nextVblank.After(now) {
		return
	}
	behind := now.Sub(p.nextVblank)
	steps := behind/p.interval + 1
	p.nextVblank = p.nextVblank.Add(steps * p.interval)
}
