package kms

import (
	"log/slog"

	"github.com/gogpu/compositor/commit"
	"github.com/gogpu/compositor/internal/cache"
)

// DefaultImportCapacity bounds the framebuffer imports kept per output.
// Clients cycling through many buffers fall back to re-importing.
const DefaultImportCapacity = 64

// FramebufferCache memoizes framebuffer imports of client buffers for
// direct scanout. Importing a buffer into the display device is
// expensive; a surface flipping between a small set of buffers hits the
// cache every frame.
type FramebufferCache struct {
	log *slog.Logger
	lru *cache.Cache[uint64, *Framebuffer]
}

// NewFramebufferCache creates a cache holding at most capacity imports.
// If capacity <= 0, DefaultImportCapacity is used. A nil log disables
// logging.
func NewFramebufferCache(capacity int, log *slog.Logger) *FramebufferCache {
	if capacity <= 0 {
		capacity = DefaultImportCapacity
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	fc := &FramebufferCache{log: log}
	fc.lru = cache.New[uint64, *Framebuffer](capacity, func(id uint64, fb *Framebuffer) {
		fc.log.Debug("framebuffer import released", "buffer", id)
	})
	return fc
}

// For returns the framebuffer presenting buf, importing it on first
// use. The returned framebuffer stays valid for the current frame;
// callers must not hold it across Invalidate.
func (fc *FramebufferCache) For(buf *commit.Buffer) *Framebuffer {
	return fc.lru.GetOrCreate(buf.ID, func() *Framebuffer {
		fc.log.Debug("framebuffer imported",
			"buffer", buf.ID, "width", buf.Width, "height", buf.Height)
		return FramebufferFor(buf)
	})
}

// Invalidate drops the import for a destroyed buffer. Dropping an
// absent buffer is a no-op.
func (fc *FramebufferCache) Invalidate(id uint64) {
	fc.lru.Delete(id)
}

// Clear drops every import, for an output losing its device.
func (fc *FramebufferCache) Clear() {
	fc.lru.Clear()
}

// Len returns the number of live imports.
func (fc *FramebufferCache) Len() int {
	return fc.lru.Len()
}
