package commit

// WeakSurface observes a surface without owning it. It yields nil once
// the surface is destroyed, so holders never act on a dead surface.
// Ownership stays with the surface's true owner; a weak handle is
// observation only.
type WeakSurface struct {
	target *Surface
}

// Weak returns a weak handle to the surface.
func (s *Surface) Weak() *WeakSurface {
	return &WeakSurface{target: s}
}

// Get returns the surface, or nil if it was destroyed or the handle is
// nil.
func (w *WeakSurface) Get() *Surface {
	if w == nil || w.target == nil || w.target.destroyed {
		return nil
	}
	return w.target
}
