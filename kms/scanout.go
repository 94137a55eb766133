package kms

import (
	"log/slog"

	"github.com/gogpu/compositor/commit"
)

// ScanoutTarget is the output side of a direct scanout decision.
type ScanoutTarget struct {
	// Width and Height are the output's visible area in pixels.
	Width  int
	Height int

	// DirectCapable reports whether the output's framebuffer
	// configuration can present client buffers directly.
	DirectCapable bool

	// ShadowActive reports an active shadow copy of the framebuffer.
	ShadowActive bool
}

// ScanoutCandidate is the content side: the topmost surface visible on
// the output when the frame was aggregated.
type ScanoutCandidate struct {
	// Surface is held weakly; a surface destroyed between commit and
	// aggregation disqualifies itself.
	Surface *commit.WeakSurface

	// SurfaceCount is how many surfaces are visible on the output.
	SurfaceCount int

	// Opaque reports that the content carries no alpha.
	Opaque bool

	// Transformed reports a rotation, scale or projective transform.
	Transformed bool

	// Animating reports a running animation changing the geometry.
	Animating bool
}

// QualifyScanout decides whether the candidate's buffer may bypass
// composition and go to the display hardware directly. It returns the
// buffer to scan out, or nil when any condition disqualifies the
// frame; disqualification falls back to composition and is never an
// error.
func QualifyScanout(log *slog.Logger, target ScanoutTarget, cand ScanoutCandidate) *commit.Buffer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	reject := func(reason string) *commit.Buffer {
		log.Debug("direct scanout rejected", "reason", reason)
		return nil
	}

	if !target.DirectCapable {
		return reject("output framebuffer does not support direct scanout")
	}
	if target.ShadowActive {
		return reject("shadow framebuffer active")
	}
	if cand.SurfaceCount != 1 {
		return reject("not exactly one surface visible")
	}
	s := cand.Surface.Get()
	if s == nil {
		return reject("candidate surface destroyed")
	}
	buf := s.CurrentBuffer()
	if buf == nil {
		return reject("candidate surface has no buffer")
	}
	if !cand.Opaque {
		return reject("candidate surface not opaque")
	}
	if cand.Transformed {
		return reject("candidate surface transformed")
	}
	if cand.Animating {
		return reject("candidate surface animating")
	}
	if buf.Width != target.Width || buf.Height != target.Height {
		return reject("candidate buffer does not cover the output")
	}

	log.Debug("direct scanout qualified", "surface", s.Name(), "buffer", buf.ID)
	return buf
}

// FramebufferFor wraps a client buffer for direct presentation.
func FramebufferFor(buf *commit.Buffer) *Framebuffer {
	return &Framebuffer{
		ID:     buf.ID,
		Width:  buf.Width,
		Height: buf.Height,
		Format: buf.Format,
	}
}
