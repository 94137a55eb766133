package commit

import (
	"time"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/compositor/damage"
)

// Buffer describes client content attached to a surface.
type Buffer struct {
	// ID identifies the buffer within its client.
	ID uint64

	// Width and Height are the buffer dimensions in pixels.
	Width  int
	Height int

	// Format is the pixel format of the buffer contents.
	Format gputypes.TextureFormat
}

// FrameCallback is notified with the presentation time once the state
// that carried it has been shown.
type FrameCallback func(presented time.Time)

// State is a set of surface changes accumulated between commits.
//
// A zero State changes nothing: fields are sticky and only take effect
// when explicitly set, so later states layer over earlier ones.
type State struct {
	// Buffer is the attached content. BufferSet distinguishes "leave
	// the previous buffer in place" from an explicit detach.
	Buffer    *Buffer
	BufferSet bool

	// Damage accumulates the regions changed since the previous state.
	Damage damage.Region

	// Scale is the buffer scale factor, or 0 to keep the previous one.
	Scale int

	// Callbacks fire when this state is presented.
	Callbacks []FrameCallback
}

// merge layers src, the newer state, over dst.
//
// Buffer and scale follow last-writer-wins; damage and callbacks
// accumulate. src must not be used afterwards.
func merge(dst, src *State) {
	if src.BufferSet {
		dst.Buffer = src.Buffer
		dst.BufferSet = true
	}
	if !src.Damage.Empty() {
		dst.Damage = dst.Damage.Union(src.Damage)
	}
	if src.Scale != 0 {
		dst.Scale = src.Scale
	}
	dst.Callbacks = append(dst.Callbacks, src.Callbacks...)
}
