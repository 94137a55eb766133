// Package cache provides a generic bounded LRU cache.
//
// The compositor uses it to reuse expensive display resources across
// frames, primarily framebuffer imports of client buffers. Capacity is
// strict: inserting into a full cache evicts the least recently used
// entry, and an eviction callback lets the owner release the evicted
// resource.
//
//	c := cache.New[uint64, *Import](64, func(id uint64, imp *Import) {
//	    imp.Release()
//	})
//	imp := c.GetOrCreate(id, importBuffer)
//
// # Thread Safety
//
// Cache is safe for concurrent use. It must not be copied after
// creation (it contains a mutex).
package cache
