package kms

import (
	"image"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/compositor/damage"
)

// Rect is one damage rectangle in device pixels, stored flat the way
// the kernel expects them.
type Rect struct {
	X, Y          int32
	Width, Height int32
}

// RectsFromRegion flattens a damage region into device rectangles.
func RectsFromRegion(r damage.Region) []Rect {
	rects := r.Rects()
	if len(rects) == 0 {
		return nil
	}
	out := make([]Rect, len(rects))
	for i, rc := range rects {
		out[i] = Rect{
			X:      int32(rc.Min.X),
			Y:      int32(rc.Min.Y),
			Width:  int32(rc.Dx()),
			Height: int32(rc.Dy()),
		}
	}
	return out
}

// Bounds returns the rectangle as an image.Rectangle.
func (r Rect) Bounds() image.Rectangle {
	return image.Rect(int(r.X), int(r.Y), int(r.X+r.Width), int(r.Y+r.Height))
}

// Framebuffer is a buffer the display hardware can present.
type Framebuffer struct {
	// ID is the device framebuffer handle.
	ID uint64

	// Width and Height are the buffer dimensions in pixels.
	Width  int
	Height int

	// Format is the buffer pixel format.
	Format gputypes.TextureFormat

	// Modifier is the device-specific tiling layout.
	Modifier uint64
}

// PresentationMode selects how an update reaches the screen.
type PresentationMode int

const (
	// PresentVSync waits for the vertical sync boundary.
	PresentVSync PresentationMode = iota

	// PresentAsync flips as soon as possible, tearing if mid-scanout.
	PresentAsync
)

// String returns the mode name for logs.
func (m PresentationMode) String() string {
	switch m {
	case PresentVSync:
		return "vsync"
	case PresentAsync:
		return "async"
	default:
		return "unknown"
	}
}

// PresentationModeFor picks the presentation mode for a frame: async
// only when the topmost content allows tearing and the device can
// flip outside vblank.
func PresentationModeFor(dev *Device, tearingAllowed bool) PresentationMode {
	if tearingAllowed && dev != nil && dev.AsyncFlipSupported() {
		return PresentAsync
	}
	return PresentVSync
}

// Update aggregates one output's display changes for a single frame:
// the buffer to present, the damage it carries, and device property
// changes, applied by the backend as one atomic commit.
//
// An Update is built up by the compositor side, then ownership
// transfers to the presentation backend. After the transfer the
// compositor half must not touch it again; mutators panic once sealed
// because use after transfer is a core bug.
type Update struct {
	device    *Device
	connector string

	buffer  *Framebuffer
	scanout *Framebuffer
	damage  []Rect
	props   map[string]uint64
	mode    PresentationMode

	sealed bool
}

func newUpdate(dev *Device, connector string) *Update {
	return &Update{device: dev, connector: connector}
}

// Device returns the device the update is destined for.
func (u *Update) Device() *Device { return u.device }

// Connector returns the output connector the update targets.
func (u *Update) Connector() string { return u.connector }

// SetBuffer assigns the composited framebuffer, replacing any previous
// assignment for this frame.
func (u *Update) SetBuffer(fb *Framebuffer) {
	u.mutable()
	u.buffer = fb
}

// Buffer returns the composited framebuffer assignment, or nil.
func (u *Update) Buffer() *Framebuffer { return u.buffer }

// SetScanout assigns a client buffer for direct scanout, replacing any
// previous assignment. A scanout assignment takes precedence over the
// composited buffer.
func (u *Update) SetScanout(fb *Framebuffer) {
	u.mutable()
	u.scanout = fb
}

// Scanout returns the direct scanout assignment, or nil.
func (u *Update) Scanout() *Framebuffer { return u.scanout }

// Presents returns the framebuffer that will reach the display: the
// scanout buffer when assigned, the composited buffer otherwise.
func (u *Update) Presents() *Framebuffer {
	if u.scanout != nil {
		return u.scanout
	}
	return u.buffer
}

// SetDamage replaces the update's damage list with the complete
// current-frame region. The rectangles are copied.
func (u *Update) SetDamage(rects []Rect) {
	u.mutable()
	if len(rects) == 0 {
		u.damage = nil
		return
	}
	u.damage = make([]Rect, len(rects))
	copy(u.damage, rects)
}

// Damage returns the update's damage rectangles.
func (u *Update) Damage() []Rect { return u.damage }

// SetProperty records a device-specific property change to apply with
// the flip.
func (u *Update) SetProperty(name string, value uint64) {
	u.mutable()
	if u.props == nil {
		u.props = make(map[string]uint64)
	}
	u.props[name] = value
}

// Property returns a recorded property change.
func (u *Update) Property(name string) (uint64, bool) {
	v, ok := u.props[name]
	return v, ok
}

// SetPresentationMode selects vsync or async presentation.
func (u *Update) SetPresentationMode(m PresentationMode) {
	u.mutable()
	u.mode = m
}

// Mode returns the selected presentation mode.
func (u *Update) Mode() PresentationMode { return u.mode }

func (u *Update) mutable() {
	if u.sealed {
		panic("kms: update mutated after ownership transfer")
	}
}
