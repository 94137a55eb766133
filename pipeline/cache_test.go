package pipeline

import "testing"

var (
	srgb   = ColorState{Colorspace: ColorspaceSRGB, Transfer: TransferSRGB}
	pq     = ColorState{Colorspace: ColorspaceBT2020, Transfer: TransferPQ}
	linear = ColorState{Colorspace: ColorspaceSRGB, Transfer: TransferLinear}
)

func TestCacheGetMiss(t *testing.T) {
	c := NewCache(nil)
	if h := c.Get("view", 0, srgb, srgb); h != nil {
		t.Fatal("Get on empty cache returned a pipeline")
	}
}

func TestCacheSetGet(t *testing.T) {
	c := NewCache(nil)
	h := NewHandle("p0", nil)
	defer h.Unref()

	if err := c.Set("view", 0, srgb, pq, h); err != nil {
		t.Fatal(err)
	}

	got := c.Get("view", 0, srgb, pq)
	if got == nil {
		t.Fatal("Get missed after Set")
	}
	if got != h {
		t.Error("Get returned a different handle")
	}
	// A hit hands out a fresh reference.
	if n := h.refCount(); n != 3 { // caller + cache + Get
		t.Errorf("refcount = %d, want 3", n)
	}
	got.Unref()
}

func TestCacheGroupIsolation(t *testing.T) {
	c := NewCache(nil)
	h := NewHandle("p0", nil)
	defer h.Unref()

	if err := c.Set("view-a", 0, srgb, pq, h); err != nil {
		t.Fatal(err)
	}
	if got := c.Get("view-b", 0, srgb, pq); got != nil {
		got.Unref()
		t.Error("entry set under one group visible to another")
	}
}

func TestCacheSlotIndependence(t *testing.T) {
	c := NewCache(nil)
	h0 := NewHandle("slot0", nil)
	h1 := NewHandle("slot1", nil)
	defer h0.Unref()
	defer h1.Unref()

	if err := c.Set("view", 0, srgb, pq, h0); err != nil {
		t.Fatal(err)
	}
	if err := c.Set("view", 1, srgb, pq, h1); err != nil {
		t.Fatal(err)
	}

	got0 := c.Get("view", 0, srgb, pq)
	got1 := c.Get("view", 1, srgb, pq)
	if got0 != h0 || got1 != h1 {
		t.Error("slots overwrote each other for the same color pair")
	}
	got0.Unref()
	got1.Unref()
}

func TestCacheSparseSlots(t *testing.T) {
	c := NewCache(nil)
	h := NewHandle("p", nil)
	defer h.Unref()

	if err := c.Set("view", 7, srgb, srgb, h); err != nil {
		t.Fatal(err)
	}
	// Intermediate slots exist but stay absent.
	for slot := 0; slot < 7; slot++ {
		if got := c.Get("view", slot, srgb, srgb); got != nil {
			got.Unref()
			t.Errorf("slot %d unexpectedly populated", slot)
		}
	}
	got := c.Get("view", 7, srgb, srgb)
	if got == nil {
		t.Fatal("sparse slot lost its entry")
	}
	got.Unref()
}

func TestCacheReplaceReleasesOld(t *testing.T) {
	c := NewCache(nil)

	old := NewHandle("old", nil)
	weak := old.Downgrade()
	if err := c.Set("view", 0, srgb, pq, old); err != nil {
		t.Fatal(err)
	}

	// Replacing must drop the cache's reference to the old pipeline.
	repl := NewHandle("new", nil)
	defer repl.Unref()
	if err := c.Set("view", 0, srgb, pq, repl); err != nil {
		t.Fatal(err)
	}
	if !weak.Alive() {
		t.Fatal("old pipeline died while the caller still held a reference")
	}

	// Once the caller's own reference drops too, the old pipeline is gone.
	old.Unref()
	if weak.Alive() {
		t.Error("old pipeline alive after replacement and caller release")
	}

	got := c.Get("view", 0, srgb, pq)
	if got != repl {
		t.Error("replacement not retrievable")
	}
	got.Unref()
}

func TestCacheDistinctTransformKeys(t *testing.T) {
	c := NewCache(nil)
	a := NewHandle("a", nil)
	b := NewHandle("b", nil)
	defer a.Unref()
	defer b.Unref()

	if err := c.Set("view", 0, srgb, pq, a); err != nil {
		t.Fatal(err)
	}
	// Swapped source/target is a different key.
	if err := c.Set("view", 0, pq, srgb, b); err != nil {
		t.Fatal(err)
	}

	gotA := c.Get("view", 0, srgb, pq)
	gotB := c.Get("view", 0, pq, srgb)
	if gotA != a || gotB != b {
		t.Error("source/target pair not direction sensitive")
	}
	gotA.Unref()
	gotB.Unref()
}

func TestCacheUnset(t *testing.T) {
	c := NewCache(nil)
	h := NewHandle("p", nil)
	weak := h.Downgrade()

	if err := c.Set("view", 0, srgb, linear, h); err != nil {
		t.Fatal(err)
	}
	h.Unref() // cache now holds the only reference

	c.Unset("view", 0, srgb, linear)
	if weak.Alive() {
		t.Error("Unset did not release the entry")
	}
	if got := c.Get("view", 0, srgb, linear); got != nil {
		got.Unref()
		t.Error("entry retrievable after Unset")
	}

	// Unsetting an absent entry is a no-op.
	c.Unset("view", 3, srgb, linear)
	c.Unset("other", 0, srgb, linear)
}

func TestCacheUnsetAll(t *testing.T) {
	c := NewCache(nil)

	var weaks []*Weak
	for slot := 0; slot < 3; slot++ {
		h := NewHandle("p", nil)
		weaks = append(weaks, h.Downgrade())
		if err := c.Set("view", slot, srgb, pq, h); err != nil {
			t.Fatal(err)
		}
		h.Unref()
	}
	keep := NewHandle("keep", nil)
	defer keep.Unref()
	if err := c.Set("other", 0, srgb, pq, keep); err != nil {
		t.Fatal(err)
	}

	c.UnsetAll("view")
	for i, w := range weaks {
		if w.Alive() {
			t.Errorf("entry %d alive after UnsetAll", i)
		}
	}
	if got := c.Get("other", 0, srgb, pq); got == nil {
		t.Error("UnsetAll leaked into another group")
	} else {
		got.Unref()
	}
}

func TestCacheSetErrors(t *testing.T) {
	c := NewCache(nil)

	if err := c.Set("view", 0, srgb, pq, nil); err != ErrNilPipeline {
		t.Errorf("nil handle: got %v, want ErrNilPipeline", err)
	}

	h := NewHandle("p", nil)
	defer h.Unref()
	if err := c.Set("view", -1, srgb, pq, h); err != ErrInvalidSlot {
		t.Errorf("negative slot: got %v, want ErrInvalidSlot", err)
	}

	// A failed Set leaves the prior entry untouched.
	if err := c.Set("view", 0, srgb, pq, h); err != nil {
		t.Fatal(err)
	}
	if err := c.Set("view", 0, srgb, pq, nil); err == nil {
		t.Fatal("nil handle accepted")
	}
	got := c.Get("view", 0, srgb, pq)
	if got != h {
		t.Error("failed Set disturbed the prior entry")
	}
	got.Unref()
}

func TestCacheDestroy(t *testing.T) {
	c := NewCache(nil)
	h := NewHandle("p", nil)
	weak := h.Downgrade()
	if err := c.Set("view", 0, srgb, pq, h); err != nil {
		t.Fatal(err)
	}
	h.Unref()

	c.Destroy()
	if weak.Alive() {
		t.Error("Destroy leaked an entry")
	}
	if c.Size() != 0 {
		t.Errorf("Size = %d after Destroy", c.Size())
	}

	other := NewHandle("q", nil)
	defer other.Unref()
	if err := c.Set("view", 0, srgb, pq, other); err != ErrCacheDestroyed {
		t.Errorf("Set after Destroy: got %v, want ErrCacheDestroyed", err)
	}
	c.Destroy() // idempotent
}

func TestTransformKeyPacking(t *testing.T) {
	src := ColorState{Colorspace: ColorspaceBT2020, Transfer: TransferPQ}
	dst := ColorState{Colorspace: ColorspaceSRGB, Transfer: TransferSRGB}

	key := TransformKey(src, dst)
	wantLow := uint32(ColorspaceBT2020) | uint32(TransferPQ)<<8
	wantHigh := uint32(ColorspaceSRGB) | uint32(TransferSRGB)<<8
	if uint32(key) != wantLow {
		t.Errorf("low word = %#x, want %#x", uint32(key), wantLow)
	}
	if uint32(key>>32) != wantHigh {
		t.Errorf("high word = %#x, want %#x", uint32(key>>32), wantHigh)
	}

	if TransformKey(src, dst) == TransformKey(dst, src) {
		t.Error("key is direction insensitive")
	}
}

func BenchmarkCacheGet(b *testing.B) {
	c := NewCache(nil)
	h := NewHandle("p", nil)
	defer h.Unref()
	if err := c.Set("view", 0, srgb, pq, h); err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		got := c.Get("view", 0, srgb, pq)
		got.Unref()
	}
}
