package damage

import "image"

// Region is a set of damaged rectangles in output coordinates.
//
// Rectangles are kept as supplied and may overlap; consumers that need a
// single rectangle use Bounds. The zero value is the empty region.
type Region struct {
	rects []image.Rectangle
}

// NewRegion creates a region from the given rectangles.
// Empty rectangles are dropped.
func NewRegion(rects ...image.Rectangle) Region {
	r := Region{}
	for _, rect := range rects {
		if rect.Empty() {
			continue
		}
		r.rects = append(r.rects, rect)
	}
	return r
}

// Empty reports whether the region contains no area.
func (r Region) Empty() bool {
	return len(r.rects) == 0
}

// NumRects returns the number of rectangles in the region.
func (r Region) NumRects() int {
	return len(r.rects)
}

// Rects returns a copy of the region's rectangles.
func (r Region) Rects() []image.Rectangle {
	if len(r.rects) == 0 {
		return nil
	}
	out := make([]image.Rectangle, len(r.rects))
	copy(out, r.rects)
	return out
}

// Bounds returns the smallest rectangle covering the whole region.
func (r Region) Bounds() image.Rectangle {
	var b image.Rectangle
	for _, rect := range r.rects {
		b = b.Union(rect)
	}
	return b
}

// Union returns a region covering both r and other.
func (r Region) Union(other Region) Region {
	if other.Empty() {
		return r.Clone()
	}
	if r.Empty() {
		return other.Clone()
	}
	out := Region{rects: make([]image.Rectangle, 0, len(r.rects)+len(other.rects))}
	out.rects = append(out.rects, r.rects...)
	out.rects = append(out.rects, other.rects...)
	return out
}

// Clone returns a copy that shares no storage with r.
func (r Region) Clone() Region {
	if len(r.rects) == 0 {
		return Region{}
	}
	out := Region{rects: make([]image.Rectangle, len(r.rects))}
	copy(out.rects, r.rects)
	return out
}

// Covers reports whether the region's bounds contain the given rectangle.
func (r Region) Covers(rect image.Rectangle) bool {
	return rect.In(r.Bounds())
}
