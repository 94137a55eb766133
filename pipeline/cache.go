// Package pipeline caches reference-counted GPU composition pipelines.
//
// Building a composition pipeline is expensive: shader specialization,
// SPIR-V translation, and driver validation. The cache memoizes built
// pipelines per (group, slot, color transform) so a steady scene rebuilds
// nothing frame to frame. Entries are shared-ownership Handles; replacing
// or evicting an entry releases the cache's reference and the pipeline is
// destroyed only once no renderer holds it either.
package pipeline

import (
	"errors"
	"log/slog"
)

// Cache errors.
var (
	// ErrNilPipeline is returned by Set when the handle is nil.
	ErrNilPipeline = errors.New("pipeline: nil pipeline handle")

	// ErrInvalidSlot is returned when a slot index is negative.
	ErrInvalidSlot = errors.New("pipeline: negative slot index")

	// ErrCacheDestroyed is returned by Set after Destroy.
	ErrCacheDestroyed = errors.New("pipeline: cache destroyed")
)

// Group names an independent pipeline namespace within a cache. Entries
// set under one group are never visible to lookups under another, so
// unrelated owners (output composition, screencasting, effects) can share
// one cache without key coordination.
type Group string

// Cache stores pipelines by (group, slot, transform key).
//
// Slots subdivide a group by structural pipeline variant (for example
// opaque vs. blended composition); the transform key encodes the
// source/target color state pair. Population happens on the render thread
// only; Cache is not safe for concurrent use.
type Cache struct {
	log       *slog.Logger
	groups    map[Group][]map[uint64]*Handle
	destroyed bool
}

// NewCache creates an empty cache. A nil log disables logging.
func NewCache(log *slog.Logger) *Cache {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Cache{
		log:    log,
		groups: make(map[Group][]map[uint64]*Handle),
	}
}

// Get returns the pipeline cached for the given group, slot, and color
// transform, or nil on miss. A hit returns a new reference: the caller
// owns it and must Unref when done.
func (c *Cache) Get(group Group, slot int, source, target ColorState) *Handle {
	slots, ok := c.groups[group]
	if !ok || slot < 0 || slot >= len(slots) {
		return nil
	}
	table := slots[slot]
	if table == nil {
		return nil
	}
	h, ok := table[TransformKey(source, target)]
	if !ok {
		return nil
	}
	return h.Ref()
}

// Set stores a pipeline for the given group, slot, and color transform.
//
// The slot array grows on demand (intermediate slots stay absent) and the
// per-slot key table is created lazily. The cache takes its own reference
// on h; an existing entry for the key is replaced and its reference
// released. On error the prior entry is left untouched.
func (c *Cache) Set(group Group, slot int, source, target ColorState, h *Handle) error {
	if c.destroyed {
		return ErrCacheDestroyed
	}
	if h == nil {
		return ErrNilPipeline
	}
	if slot < 0 {
		return ErrInvalidSlot
	}

	slots := c.groups[group]
	for len(slots) <= slot {
		slots = append(slots, nil)
	}
	c.groups[group] = slots

	if slots[slot] == nil {
		slots[slot] = make(map[uint64]*Handle)
	}

	key := TransformKey(source, target)
	old := slots[slot][key]
	slots[slot][key] = h.Ref()
	if old != nil {
		old.Unref()
		c.log.Debug("pipeline replaced",
			"group", string(group), "slot", slot,
			"source", source.String(), "target", target.String())
	}
	return nil
}

// Unset evicts the entry for the given key, releasing the cache's
// reference. Evicting an absent entry is a no-op.
func (c *Cache) Unset(group Group, slot int, source, target ColorState) {
	slots, ok := c.groups[group]
	if !ok || slot < 0 || slot >= len(slots) || slots[slot] == nil {
		return
	}
	key := TransformKey(source, target)
	if h, ok := slots[slot][key]; ok {
		delete(slots[slot], key)
		h.Unref()
	}
}

// UnsetAll evicts every entry under the group. Used when upstream color
// management invalidates previously built pipelines.
func (c *Cache) UnsetAll(group Group) {
	slots, ok := c.groups[group]
	if !ok {
		return
	}
	n := 0
	for _, table := range slots {
		for _, h := range table {
			h.Unref()
			n++
		}
	}
	delete(c.groups, group)
	if n > 0 {
		c.log.Debug("pipeline group evicted", "group", string(group), "entries", n)
	}
}

// Size returns the number of live entries across all groups.
func (c *Cache) Size() int {
	n := 0
	for _, slots := range c.groups {
		for _, table := range slots {
			n += len(table)
		}
	}
	return n
}

// Destroy releases every entry and marks the cache unusable for Set.
// Destroy is idempotent.
func (c *Cache) Destroy() {
	if c.destroyed {
		return
	}
	for group := range c.groups {
		c.UnsetAll(group)
	}
	c.groups = make(map[Group][]map[uint64]*Handle)
	c.destroyed = true
}
