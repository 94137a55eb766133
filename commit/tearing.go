package commit

import (
	"errors"
	"log/slog"
)

// TearingHint is a surface's requested presentation mode. Values match
// the wire enum.
type TearingHint uint32

const (
	// TearingHintVSync requests presentation on the vertical sync
	// boundary.
	TearingHintVSync TearingHint = iota

	// TearingHintAsync allows presentation outside the vertical sync
	// boundary when the display supports it.
	TearingHintAsync
)

func (h TearingHint) valid() bool {
	return h == TearingHintVSync || h == TearingHintAsync
}

// Tearing control errors.
var (
	// ErrTearingControlExists is returned when a surface already has a
	// tearing control object.
	ErrTearingControlExists = errors.New("commit: surface already has a tearing control")

	// ErrInvalidTearingHint is returned for hint values outside the
	// wire enum.
	ErrInvalidTearingHint = errors.New("commit: unknown tearing hint")

	// ErrSurfaceDestroyed is returned when operating on a control
	// whose surface is gone.
	ErrSurfaceDestroyed = errors.New("commit: surface destroyed")
)

// TearingManager hands out at most one tearing control per surface.
// The control carries no blocking predicate: the hint never gates
// state merging, it only steers the presentation mode chosen for the
// surface's content.
type TearingManager struct {
	log      *slog.Logger
	controls map[*Surface]*TearingControl
}

// NewTearingManager creates an empty tearing hint registry.
func NewTearingManager(log *slog.Logger) *TearingManager {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &TearingManager{
		log:      log,
		controls: make(map[*Surface]*TearingControl),
	}
}

// Acquire creates the tearing control for a surface. A surface can
// hold at most one control at a time.
func (m *TearingManager) Acquire(s *Surface) (*TearingControl, error) {
	if s == nil || s.Destroyed() {
		return nil, ErrSurfaceDestroyed
	}
	if _, ok := m.controls[s]; ok {
		return nil, ErrTearingControlExists
	}
	c := &TearingControl{mgr: m, surface: s}
	m.controls[s] = c
	return c, nil
}

// Len returns the number of live tearing controls.
func (m *TearingManager) Len() int {
	return len(m.controls)
}

// TearingControl is a client's handle on one surface's tearing hint.
// Destroying it restores the vsync default.
type TearingControl struct {
	mgr       *TearingManager
	surface   *Surface
	destroyed bool
}

// Surface returns the surface the control steers.
func (c *TearingControl) Surface() *Surface { return c.surface }

// SetHint updates the surface's presentation preference.
func (c *TearingControl) SetHint(h TearingHint) error {
	if c.destroyed {
		return ErrSurfaceDestroyed
	}
	if !h.valid() {
		return ErrInvalidTearingHint
	}
	if c.surface.Destroyed() {
		return ErrSurfaceDestroyed
	}
	c.surface.SetTearingAllowed(h == TearingHintAsync)
	c.mgr.log.Debug("tearing hint set",
		"surface", c.surface.Name(), "async", h == TearingHintAsync)
	return nil
}

// Destroy releases the control and restores the vsync default.
// Idempotent.
func (c *TearingControl) Destroy() {
	if c.destroyed {
		return
	}
	c.destroyed = true
	delete(c.mgr.controls, c.surface)
	if !c.surface.Destroyed() {
		c.surface.SetTearingAllowed(false)
	}
}
