// Package compose decides what a frame must redraw and supplies the
// GPU composition pipelines the redraw is performed with.
//
// The repaint computation combines the presentation backend's buffer
// age with the per-output damage history: a buffer that is N frames
// old must repaint the union of the damage from the N-1 frames it
// missed, or everything when the history does not reach back that far.
// Pipeline variants are assembled from embedded WGSL building blocks
// per source/target color-state pair and memoized in a pipeline.Cache.
package compose

import (
	"image"

	"github.com/gogpu/compositor/damage"
	"github.com/gogpu/compositor/kms"
)

// Renderer paints frame content. Implemented by the embedder's scene
// layer; the core only decides what region must be painted and with
// which pipelines.
type Renderer interface {
	// PaintFrame redraws region of the target framebuffer.
	PaintFrame(target *kms.Framebuffer, region damage.Region) error
}

// RepaintRegion returns the region that must be redrawn into a buffer
// whose contents are bufferAge frames old, before the current frame's
// own damage is applied on top.
//
// Age 1 means the buffer shows the previous frame and nothing beyond
// the current damage is needed. An unknown age (0 or negative), an age
// the history cannot reach, or a gap in the recorded frames all force
// a full repaint of bounds.
func RepaintRegion(h *damage.History, bufferAge int, bounds image.Rectangle) damage.Region {
	if h == nil || bufferAge <= 0 || bufferAge >= damage.HistoryDepth {
		return damage.NewRegion(bounds)
	}
	var region damage.Region
	for age := 1; age < bufferAge; age++ {
		r, ok := h.Lookup(age)
		if !ok {
			return damage.NewRegion(bounds)
		}
		region = region.Union(r)
	}
	return region
}
