package compositor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gogpu/gputypes"

	"github.com/gogpu/compositor/backend"
	"github.com/gogpu/compositor/commit"
	"github.com/gogpu/compositor/compose"
	"github.com/gogpu/compositor/config"
	"github.com/gogpu/compositor/damage"
	"github.com/gogpu/compositor/frame"
	"github.com/gogpu/compositor/internal/eventloop"
	"github.com/gogpu/compositor/kms"
	"github.com/gogpu/compositor/output"
	"github.com/gogpu/compositor/protocol"
)

// ErrClosed is returned for requests on a compositor that was shut
// down.
var ErrClosed = errors.New("compositor: compositor is closed")

// scanoutFormat is the pixel format of compositor-owned framebuffers.
const scanoutFormat = gputypes.TextureFormatRGBA8Unorm

// Compositor is the presentation core: it owns the event loop, the
// output topology, the fence managers and one frame pipeline per
// output, and glues them into the dispatch cycle.
//
// Apart from Post, Run and Shutdown, all methods are confined to the
// event loop goroutine; callers elsewhere marshal through Post.
type Compositor struct {
	cfg   config.Config
	log   *slog.Logger
	level *slog.LevelVar

	loop *eventloop.Loop
	clk  clock.Clock

	backend     backend.Backend
	ownsBackend bool

	topology *output.Topology
	fifo     *commit.FIFOManager
	tearing  *commit.TearingManager
	renderer compose.Renderer

	outputs  map[string]*outputState
	surfaces map[*commit.Surface]*outputState

	watcher *config.Watcher
	fbSeq   uint64

	stop     chan struct{}
	stopOnce sync.Once
	closed   bool
}

// New creates a compositor. Without options it runs the default
// configuration on the best available backend.
func New(opts ...Option) (*Compositor, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	cfg := config.Default()
	if o.cfg != nil {
		cfg = *o.cfg
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base := o.logger
	if base == nil {
		base = Logger()
	}
	level := new(slog.LevelVar)
	lvl, err := cfg.Level()
	if err != nil {
		return nil, err
	}
	level.Set(lvl)
	log := slog.New(levelGate{h: base.Handler(), level: level})

	loop := eventloop.New(o.clk, log)
	clk := loop.Clock()

	c := &Compositor{
		cfg:      cfg,
		log:      log,
		level:    level,
		loop:     loop,
		clk:      clk,
		renderer: o.renderer,
		topology: output.NewTopology(log),
		fifo:     commit.NewFIFOManager(clk, log),
		tearing:  commit.NewTearingManager(log),
		outputs:  make(map[string]*outputState),
		surfaces: make(map[*commit.Surface]*outputState),
		stop:     make(chan struct{}),
	}
	c.topology.Observe(c.onTopologyChange)

	b := o.backend
	if b == nil {
		bopts := backend.Options{Clock: clk, Logger: log}
		if o.backendName != "" {
			b, err = backend.NewByName(o.backendName, bopts)
		} else {
			b, err = backend.New(bopts)
		}
		if err != nil {
			return nil, err
		}
		c.ownsBackend = true
	}
	c.backend = b

	log.Info("compositor created",
		"backend", b.Name(), "device", b.Device().Path())
	return c, nil
}

// Post queues fn to run on the compositor's event loop. It is the one
// entry point safe to call from any goroutine.
func (c *Compositor) Post(fn func()) { c.loop.Post(fn) }

// Clock returns the loop-confined clock. Timer callbacks armed through
// it are delivered on the event loop goroutine.
func (c *Compositor) Clock() clock.Clock { return c.clk }

// Config returns the active configuration.
func (c *Compositor) Config() config.Config { return c.cfg }

// Topology returns the output topology, for registering observers and
// inspecting connected outputs.
func (c *Compositor) Topology() *output.Topology { return c.topology }

// Run services the event loop until ctx is canceled or Shutdown is
// called, then drains remaining callbacks and returns.
func (c *Compositor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-c.stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	return c.loop.Run(ctx)
}

// Shutdown stops the compositor: frame clocks and presenters are
// stopped, the config watcher is closed, and an owned backend is
// closed. Run returns once the loop drains. Shutdown is idempotent and
// safe from any goroutine.
func (c *Compositor) Shutdown() {
	c.loop.Post(c.teardown)
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Compositor) teardown() {
	if c.closed {
		return
	}
	c.closed = true
	if c.watcher != nil {
		c.watcher.Close()
		c.watcher = nil
	}
	for _, st := range c.outputs {
		st.clk.Stop()
		st.pres.Stop()
	}
	if c.ownsBackend {
		if err := c.backend.Close(); err != nil {
			c.log.Warn("backend close failed", "error", err)
		}
	}
	c.log.Info("compositor stopped")
}

// ApplyConfig validates and applies a new configuration. Dynamic fields
// (log level, failure threshold, direct scanout) take effect
// immediately; structural fields apply to outputs added afterwards.
func (c *Compositor) ApplyConfig(cfg config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	lvl, err := cfg.Level()
	if err != nil {
		return err
	}
	c.level.Set(lvl)

	scanoutChanged := c.cfg.DirectScanout != cfg.DirectScanout
	c.cfg = cfg
	for _, st := range c.outputs {
		st.clk.SetFailureThreshold(cfg.PresentationFailureThreshold)
		if scanoutChanged {
			st.requestRepaint()
		}
	}
	c.log.Info("configuration applied",
		"log_level", cfg.LogLevel, "direct_scanout", cfg.DirectScanout)
	return nil
}

// WatchConfig reloads the configuration from path whenever the file
// changes, applying each valid rewrite via ApplyConfig.
func (c *Compositor) WatchConfig(path string) error {
	if c.closed {
		return ErrClosed
	}
	if c.watcher != nil {
		return errors.New("compositor: config watch already active")
	}
	w, err := config.Watch(path, c.loop, func(cfg config.Config) {
		if err := c.ApplyConfig(cfg); err != nil {
			c.log.Warn("config reload not applied", "error", err)
		}
	}, c.log)
	if err != nil {
		return err
	}
	c.watcher = w
	return nil
}

// AddOutput connects an output on the backend's device and starts its
// frame pipeline: a presenter, an update aggregator, a damage history
// and a frame clock.
func (c *Compositor) AddOutput(connector string, mode output.Mode, directScanout bool) error {
	if c.closed {
		return ErrClosed
	}
	if _, ok := c.outputs[connector]; ok {
		return fmt.Errorf("compositor: output %q already present", connector)
	}
	out, err := output.New(&output.Config{
		Connector:     connector,
		Mode:          mode,
		Device:        c.backend.Device(),
		DirectScanout: directScanout,
		Logger:        c.log,
	})
	if err != nil {
		return err
	}
	pres, err := c.backend.Presenter(out)
	if err != nil {
		return err
	}

	st := &outputState{
		comp:     c,
		out:      out,
		pres:     pres,
		agg:      kms.NewAggregator(connector, c.log),
		hist:     damage.NewHistory(),
		imports:  kms.NewFramebufferCache(0, c.log),
		surfaces: make(map[*commit.Surface]struct{}),
	}
	fclk, err := st.newClock(pres)
	if err != nil {
		pres.Stop()
		return err
	}
	st.clk = fclk

	if err := c.topology.Add(out); err != nil {
		pres.Stop()
		return err
	}
	c.outputs[connector] = st
	st.requestRepaint()
	return nil
}

// RemoveOutput disconnects an output, stopping its frame pipeline and
// unmapping its surfaces. Barriers paced against it force-resolve
// through the topology change.
func (c *Compositor) RemoveOutput(connector string) error {
	st, ok := c.outputs[connector]
	if !ok {
		return fmt.Errorf("compositor: output %q not present", connector)
	}
	delete(c.outputs, connector)
	st.clk.Stop()
	st.pres.Stop()
	st.imports.Clear()
	for s := range st.surfaces {
		s.SetOutput(nil)
		c.surfaces[s] = nil
	}
	c.topology.Remove(connector)
	return nil
}

// SetOutputMode switches a connected output's display mode. The mode
// change invalidates the output's swapchain, forcing a full repaint.
func (c *Compositor) SetOutputMode(connector string, mode output.Mode) error {
	return c.topology.SetMode(connector, mode)
}

// CreateSurface creates a surface whose applied commits schedule
// repaints on the output it is mapped to.
func (c *Compositor) CreateSurface(name string) (*commit.Surface, error) {
	if c.closed {
		return nil, ErrClosed
	}
	s := commit.NewSurface(name, c.log)
	c.surfaces[s] = nil
	s.OnApply(func(s *commit.Surface) {
		if st := c.surfaces[s]; st != nil {
			st.requestRepaint()
		}
	})
	return s, nil
}

// MapSurface presents a surface on the given output. FIFO barriers
// resolve against that output's completed frames from now on.
func (c *Compositor) MapSurface(s *commit.Surface, connector string) error {
	st, ok := c.outputs[connector]
	if !ok {
		return fmt.Errorf("compositor: output %q not present", connector)
	}
	prev := c.surfaces[s]
	if prev == st {
		return nil
	}
	if prev != nil {
		delete(prev.surfaces, s)
	}
	st.surfaces[s] = struct{}{}
	c.surfaces[s] = st
	s.SetOutput(st.out)
	c.fifo.Recheck()
	st.requestRepaint()
	return nil
}

// UnmapSurface takes a surface off its output. Its barriers fall back
// to the fallback timer until it is mapped again.
func (c *Compositor) UnmapSurface(s *commit.Surface) {
	st := c.surfaces[s]
	if st == nil {
		return
	}
	delete(st.surfaces, s)
	c.surfaces[s] = nil
	s.SetOutput(nil)
	c.fifo.Recheck()
	st.requestRepaint()
}

// DestroySurface unmaps and destroys a surface. Fences attached to it
// detach rather than resolve.
func (c *Compositor) DestroySurface(s *commit.Surface) {
	st, ok := c.surfaces[s]
	if !ok {
		return
	}
	if st != nil {
		if buf := s.CurrentBuffer(); buf != nil {
			st.imports.Invalidate(buf.ID)
		}
	}
	c.UnmapSurface(s)
	delete(c.surfaces, s)
	s.Destroy()
	c.fifo.Recheck()
}

// SetScanoutCandidate offers the topmost content of an output for
// direct scanout. The candidate is evaluated each frame; nil withdraws
// it.
func (c *Compositor) SetScanoutCandidate(connector string, cand *kms.ScanoutCandidate) error {
	st, ok := c.outputs[connector]
	if !ok {
		return fmt.Errorf("compositor: output %q not present", connector)
	}
	st.scanout = cand
	st.requestRepaint()
	return nil
}

// CreateClient opens a protocol connection bound to the compositor's
// fence managers. onFatal, if set, is invoked when a protocol violation
// kills the client.
func (c *Compositor) CreateClient(onFatal func(*protocol.Error)) (*protocol.Client, error) {
	if c.closed {
		return nil, ErrClosed
	}
	return protocol.NewClient(protocol.ClientConfig{
		FIFO:    c.fifo,
		Tearing: c.tearing,
		Logger:  c.log,
		OnFatal: onFatal,
	})
}

// onTopologyChange reacts to output hot-plug and reconfiguration.
// Outstanding pacing barriers force-resolve because the output they
// were pacing against may no longer be the same display.
func (c *Compositor) onTopologyChange(ch output.Change) {
	switch ch.Event {
	case output.Added, output.Removed, output.ModeChanged:
		c.fifo.NotifyTopologyChanged()
	case output.Degraded:
		// Already logged by the topology; pacing continues on the
		// remaining flips.
	}
	if ch.Event == output.ModeChanged {
		if st := c.outputs[ch.Output.Name()]; st != nil {
			st.invalidateSwapchain()
			if err := st.retime(); err != nil {
				c.log.Error("output pipeline rebuild failed",
					"connector", ch.Output.Name(), "error", err)
			}
			st.requestRepaint()
		}
	}
}

// outputState is one output's frame pipeline: presenter, update
// aggregator, damage history, swapchain bookkeeping and the surfaces
// mapped to the output.
type outputState struct {
	comp    *Compositor
	out     *output.Output
	clk     *frame.Clock
	pres    backend.Presenter
	agg     *kms.Aggregator
	hist    *damage.History
	imports *kms.FramebufferCache

	surfaces map[*commit.Surface]struct{}

	repaintNeeded bool
	framesPainted int64
	fbs           [2]*kms.Framebuffer
	fbIndex       int

	scanout       *kms.ScanoutCandidate
	scanoutActive bool
}

var _ kms.FeedbackListener = (*outputState)(nil)

func (st *outputState) requestRepaint() {
	st.repaintNeeded = true
	st.clk.ScheduleUpdate()
}

// newClock builds a frame clock paced by the output's current mode and
// driven by pres.
func (st *outputState) newClock(pres backend.Presenter) (*frame.Clock, error) {
	c := st.comp
	connector := st.out.Name()
	return frame.NewClock(&frame.Config{
		Name:             connector,
		RefreshInterval:  st.out.Mode().RefreshInterval(),
		Driver:           pres,
		Dispatch:         st.dispatch,
		Clock:            c.clk,
		Logger:           c.log,
		FailureThreshold: c.cfg.PresentationFailureThreshold,
		OnDegraded: func(err error) {
			c.topology.NotifyDegraded(connector, err)
		},
	})
}

// retime rebuilds the presenter and frame clock after a mode change so
// pacing adopts the new refresh interval. An in-flight frame's
// completion is dropped with the old presenter. On error the old,
// stopped pipeline stays in place and remains usable.
func (st *outputState) retime() error {
	st.clk.Stop()
	st.pres.Stop()
	pres, err := st.comp.backend.Presenter(st.out)
	if err != nil {
		return err
	}
	fclk, err := st.newClock(pres)
	if err != nil {
		pres.Stop()
		return err
	}
	st.pres = pres
	st.clk = fclk
	return nil
}

// dispatch produces one frame: collect surface damage, qualify direct
// scanout or paint through the renderer, aggregate the atomic update,
// and hand it to the presenter.
func (st *outputState) dispatch(f *frame.Frame) frame.Result {
	if !st.repaintNeeded {
		return frame.ResultIdle
	}
	st.repaintNeeded = false
	c := st.comp

	frameDamage := damage.NewRegion()
	tearing := false
	for s := range st.surfaces {
		frameDamage = frameDamage.Union(s.TakeDamage())
		if s.TearingAllowed() {
			tearing = true
		}
	}

	dev := st.out.Device()
	mode := st.out.Mode()
	bounds := image.Rect(0, 0, mode.Width, mode.Height)
	u := st.agg.EnsureUpdate(dev)

	wasScanout := st.scanoutActive
	st.scanoutActive = false
	if c.cfg.DirectScanout && st.scanout != nil {
		if buf := kms.QualifyScanout(c.log, st.out.ScanoutTarget(false), *st.scanout); buf != nil {
			u.SetScanout(st.imports.For(buf))
			st.scanoutActive = true
			// Composition buffers miss every directly scanned-out
			// frame; their ages restart when composition resumes.
			st.framesPainted = 0
		}
	}

	if !st.scanoutActive {
		fb := st.nextFramebuffer()
		paint := frameDamage.Union(compose.RepaintRegion(st.hist, st.bufferAge(), bounds))
		if c.renderer != nil {
			if err := c.renderer.PaintFrame(fb, paint); err != nil {
				c.log.Warn("paint failed",
					"connector", st.out.Name(), "error", err)
				st.discardUpdate()
				st.repaintNeeded = true
				return frame.ResultFailed
			}
		}
		u.SetBuffer(fb)
		st.framesPainted++
	}

	st.hist.Record(frameDamage)
	st.hist.Step()

	outDamage := frameDamage
	if st.scanoutActive != wasScanout {
		// Switching between composited and client buffers replaces
		// the whole plane, whatever the surfaces reported.
		outDamage = damage.NewRegion(bounds)
	}
	u.SetDamage(kms.RectsFromRegion(outDamage))
	u.SetPresentationMode(kms.PresentationModeFor(dev, tearing))

	upd := st.agg.StealUpdate()
	st.agg.Release()
	if err := st.pres.Submit(upd, st); err != nil {
		c.log.Warn("submit failed",
			"connector", st.out.Name(), "error", err)
		st.repaintNeeded = true
		return frame.ResultFailed
	}
	return frame.ResultPresentPending
}

// discardUpdate drops a half-built update after a failed paint so the
// aggregator is clean for the retry.
func (st *outputState) discardUpdate() {
	st.agg.StealUpdate()
	st.agg.Release()
}

// OnPresented is the backend's presentation feedback: it closes the
// frame clock's cycle, resolves pacing barriers against this output,
// and fires the presented surfaces' frame callbacks.
func (st *outputState) OnPresented(t time.Time, refresh time.Duration) {
	c := st.comp
	st.clk.RecordFlipTime(t)
	st.clk.NotifyPresented(frame.PresentationInfo{
		Timestamp:       t,
		RefreshInterval: refresh,
	})
	c.fifo.NotifyFrameCompleted(st.out)
	for s := range st.surfaces {
		s.NotifyPresented(t)
	}
}

// OnFailed is the backend's rejection of a submitted update. The frame
// clock retries under its bounded policy.
func (st *outputState) OnFailed(err error) {
	st.comp.log.Warn("presentation failed",
		"connector", st.out.Name(), "error", err)
	st.repaintNeeded = true
	st.clk.NotifyFailed()
}

// nextFramebuffer rotates the output's double-buffered swapchain,
// allocating slots on first use.
func (st *outputState) nextFramebuffer() *kms.Framebuffer {
	st.fbIndex = (st.fbIndex + 1) % len(st.fbs)
	if st.fbs[st.fbIndex] == nil {
		mode := st.out.Mode()
		st.comp.fbSeq++
		st.fbs[st.fbIndex] = &kms.Framebuffer{
			ID:     st.comp.fbSeq,
			Width:  mode.Width,
			Height: mode.Height,
			Format: scanoutFormat,
		}
	}
	return st.fbs[st.fbIndex]
}

// bufferAge reports how many frames old the next framebuffer's content
// is: unknown until every swapchain slot has been painted, the swap
// depth afterwards.
func (st *outputState) bufferAge() int {
	if st.framesPainted < int64(len(st.fbs)) {
		return 0
	}
	return len(st.fbs)
}

// invalidateSwapchain drops the output's framebuffers after a mode
// change; ages restart as unknown, forcing a full repaint.
func (st *outputState) invalidateSwapchain() {
	st.fbs = [2]*kms.Framebuffer{}
	st.fbIndex = 0
	st.framesPainted = 0
}
