// Package damage tracks the damaged regions of recent frames so partial
// repaints can reuse buffer contents that are several frames old.
//
// A History answers "what must be redrawn given the buffer I am about to
// paint into shows the image from N frames ago": the union of the damage
// recorded for each of the last N-1 frames, provided the history reaches
// back that far. When it does not, the caller falls back to a full repaint.
package damage

// HistoryDepth is the number of frames of damage a History retains.
//
// It is a power of two so slot indices reduce to a bitmask, and it is not
// configurable: presentation backends do not report buffer ages anywhere
// near this bound, and a fixed depth keeps the memory footprint static.
const HistoryDepth = 16

// maxAge is the oldest usable age. The slot HistoryDepth steps back is the
// current write slot, so it is never a valid lookup target.
const maxAge = HistoryDepth - 1

// indexMask reduces a slot index modulo HistoryDepth.
const indexMask = HistoryDepth - 1

// History is a fixed-depth ring of per-frame damage regions.
//
// One History exists per presentation surface or output. It is mutated only
// by the render loop: Record once per painted frame, then Step exactly once
// when the frame completes. It is not safe for concurrent use.
type History struct {
	damages [HistoryDepth]Region
	written [HistoryDepth]bool
	index   int
}

// NewHistory creates an empty damage history.
func NewHistory() *History {
	return &History{}
}

// Record stores region in the current slot, replacing whatever the slot
// held. It does not advance the cursor; calling Record twice without an
// intervening Step overwrites the first record.
func (h *History) Record(region Region) {
	h.damages[h.index] = region.Clone()
	h.written[h.index] = true
}

// Step advances the cursor by one slot. It must be called exactly once per
// completed frame, strictly after Record.
func (h *History) Step() {
	h.index = (h.index + 1) & indexMask
}

// Lookup returns the region damaged age frames ago.
//
// The second result is false if age lies outside [1, HistoryDepth-1] or if
// fewer than age frames have been recorded since the history was created.
func (h *History) Lookup(age int) (Region, bool) {
	if age < 1 || age > maxAge {
		return Region{}, false
	}
	i := (h.index + HistoryDepth - age) & indexMask
	if !h.written[i] {
		return Region{}, false
	}
	return h.damages[i], true
}

// IsAgeValid reports whether Lookup(age) would succeed. Renderers use this
// to decide between buffer-age partial repaint and full invalidation.
func (h *History) IsAgeValid(age int) bool {
	_, ok := h.Lookup(age)
	return ok
}
