package cache

import (
	"strconv"
	"sync"
	"testing"
)

func TestNew(t *testing.T) {
	c := New[string, int](100, nil)
	if c == nil {
		t.Fatal("New returned nil")
	}
	if c.Capacity() != 100 {
		t.Errorf("expected capacity 100, got %d", c.Capacity())
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache, got %d entries", c.Len())
	}
}

func TestNewDefaultCapacity(t *testing.T) {
	c := New[string, int](0, nil)
	if c.Capacity() != DefaultCapacity {
		t.Errorf("expected capacity %d, got %d", DefaultCapacity, c.Capacity())
	}
}

func TestCacheGetSet(t *testing.T) {
	c := New[string, int](10, nil)

	// Set a value
	c.Set("key1", 42)

	// Get existing key
	val, ok := c.Get("key1")
	if !ok {
		t.Error("expected key1 to exist")
	}
	if val != 42 {
		t.Errorf("expected 42, got %d", val)
	}

	// Get non-existing key
	_, ok = c.Get("nonexistent")
	if ok {
		t.Error("expected nonexistent key to not exist")
	}
}

func TestCacheGetOrCreate(t *testing.T) {
	c := New[string, int](10, nil)
	createCalled := 0

	// First call should create
	val := c.GetOrCreate("key1", func() int {
		createCalled++
		return 100
	})
	if val != 100 {
		t.Errorf("expected 100, got %d", val)
	}
	if createCalled != 1 {
		t.Errorf("expected create called once, got %d", createCalled)
	}

	// Second call should return cached
	val = c.GetOrCreate("key1", func() int {
		createCalled++
		return 200
	})
	if val != 100 {
		t.Errorf("expected 100 (cached), got %d", val)
	}
	if createCalled != 1 {
		t.Errorf("expected create still called once, got %d", createCalled)
	}
}

func TestCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[int, int](3, nil)

	c.Set(1, 1)
	c.Set(2, 2)
	c.Set(3, 3)

	// Touch 1 so 2 becomes the oldest.
	if _, ok := c.Get(1); !ok {
		t.Fatal("expected key 1 to exist")
	}

	c.Set(4, 4)

	if _, ok := c.Get(2); ok {
		t.Error("expected key 2 to be evicted")
	}
	for _, k := range []int{1, 3, 4} {
		if _, ok := c.Get(k); !ok {
			t.Errorf("expected key %d to survive eviction", k)
		}
	}
	if c.Len() != 3 {
		t.Errorf("expected 3 entries, got %d", c.Len())
	}
}

func TestCacheOnEvict(t *testing.T) {
	var evicted []int
	c := New[int, string](2, func(k int, v string) {
		evicted = append(evicted, k)
	})

	c.Set(1, "a")
	c.Set(2, "b")
	c.Set(3, "c") // evicts 1

	if len(evicted) != 1 || evicted[0] != 1 {
		t.Fatalf("expected eviction of key 1, got %v", evicted)
	}

	// Replacement hands the old value to onEvict too.
	c.Set(2, "b2")
	if len(evicted) != 2 || evicted[1] != 2 {
		t.Fatalf("expected replace callback for key 2, got %v", evicted)
	}
	if v, _ := c.Get(2); v != "b2" {
		t.Errorf("expected replaced value b2, got %q", v)
	}

	// Delete and Clear fire it as well.
	c.Delete(3)
	c.Clear()
	if len(evicted) != 4 {
		t.Errorf("expected 4 callbacks total, got %v", evicted)
	}
}

func TestCacheDelete(t *testing.T) {
	c := New[string, int](10, nil)

	c.Set("key1", 42)

	// Delete existing
	if !c.Delete("key1") {
		t.Error("expected Delete to return true for existing key")
	}

	// Verify deleted
	_, ok := c.Get("key1")
	if ok {
		t.Error("expected key1 to be deleted")
	}

	// Delete non-existing
	if c.Delete("nonexistent") {
		t.Error("expected Delete to return false for non-existing key")
	}
}

func TestCacheClear(t *testing.T) {
	c := New[string, int](10, nil)

	c.Set("key1", 1)
	c.Set("key2", 2)
	c.Set("key3", 3)

	c.Clear()

	if c.Len() != 0 {
		t.Errorf("expected empty cache after Clear, got %d entries", c.Len())
	}
	if _, ok := c.Get("key1"); ok {
		t.Error("expected key1 gone after Clear")
	}

	// Cache remains usable.
	c.Set("key4", 4)
	if v, _ := c.Get("key4"); v != 4 {
		t.Error("cache unusable after Clear")
	}
}

func TestCacheStats(t *testing.T) {
	c := New[int, int](2, nil)

	c.Set(1, 1)
	c.Get(1)  // hit
	c.Get(99) // miss
	c.Set(2, 2)
	c.Set(3, 3) // evicts 1

	s := c.Stats()
	if s.Len != 2 {
		t.Errorf("Stats.Len = %d, want 2", s.Len)
	}
	if s.Capacity != 2 {
		t.Errorf("Stats.Capacity = %d, want 2", s.Capacity)
	}
	if s.Hits != 1 {
		t.Errorf("Stats.Hits = %d, want 1", s.Hits)
	}
	if s.Misses != 1 {
		t.Errorf("Stats.Misses = %d, want 1", s.Misses)
	}
	if s.HitRate != 0.5 {
		t.Errorf("Stats.HitRate = %v, want 0.5", s.HitRate)
	}
	if s.Evictions != 1 {
		t.Errorf("Stats.Evictions = %d, want 1", s.Evictions)
	}
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := New[string, int](100, nil)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				key := strconv.Itoa(i % 50)
				c.Set(key, i)
				c.Get(key)
				c.GetOrCreate(key, func() int { return i })
			}
		}(g)
	}
	wg.Wait()

	if c.Len() > 100 {
		t.Errorf("cache exceeded capacity: %d", c.Len())
	}
}
