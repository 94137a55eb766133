package pipeline

import (
	"sync/atomic"
)

// Handle is a shared-ownership reference to a built GPU pipeline.
//
// Renderers and the cache share pipelines through handles: each holder owns
// one reference and releases it with Unref. The underlying GPU objects are
// destroyed when the last reference drops, so replacing a cache entry never
// pulls a pipeline out from under a renderer still using it.
type Handle struct {
	label   string
	refs    atomic.Int64
	destroy func()
}

// NewHandle creates a handle with one reference owned by the caller.
// destroy runs exactly once, when the reference count reaches zero; it may
// be nil for pipelines without GPU resources (tests, software fallbacks).
func NewHandle(label string, destroy func()) *Handle {
	h := &Handle{label: label, destroy: destroy}
	h.refs.Store(1)
	return h
}

// Label returns the handle's debug label.
func (h *Handle) Label() string {
	return h.label
}

// Ref acquires an additional reference and returns h.
// Acquiring a reference on a dead handle is a core bug and panics.
func (h *Handle) Ref() *Handle {
	for {
		n := h.refs.Load()
		if n <= 0 {
			panic("pipeline: ref of released handle " + h.label)
		}
		if h.refs.CompareAndSwap(n, n+1) {
			return h
		}
	}
}

// Unref releases one reference. The destroy hook runs when the count
// reaches zero. Unbalanced releases panic.
func (h *Handle) Unref() {
	n := h.refs.Add(-1)
	switch {
	case n == 0:
		if h.destroy != nil {
			h.destroy()
		}
	case n < 0:
		panic("pipeline: unref of released handle " + h.label)
	}
}

// refCount reports the current reference count. Test helper.
func (h *Handle) refCount() int64 {
	return h.refs.Load()
}

// Weak observes a handle without owning a reference.
//
// A weak reference is for back-links whose target has a separate true
// owner: it never keeps the pipeline alive and reports the target as gone
// once the last strong reference drops.
type Weak struct {
	target *Handle
}

// Downgrade returns a weak reference to h.
func (h *Handle) Downgrade() *Weak {
	return &Weak{target: h}
}

// Get upgrades the weak reference, returning the handle with a new strong
// reference, or nil if the target has been released.
func (w *Weak) Get() *Handle {
	if w == nil || w.target == nil {
		return nil
	}
	for {
		n := w.target.refs.Load()
		if n <= 0 {
			return nil
		}
		if w.target.refs.CompareAndSwap(n, n+1) {
			return w.target
		}
	}
}

// Alive reports whether the target still holds at least one strong
// reference.
func (w *Weak) Alive() bool {
	return w != nil && w.target != nil && w.target.refs.Load() > 0
}
