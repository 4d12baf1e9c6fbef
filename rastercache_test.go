package glyphatlas

import (
	"errors"
	"testing"
)

// countingRasterizer records how many times each key is rasterized.
type countingRasterizer struct {
	calls map[CacheKey]int
	fail  map[CacheKey]error
	empty map[CacheKey]bool
}

func newCountingRasterizer() *countingRasterizer {
	return &countingRasterizer{
		calls: make(map[CacheKey]int),
		fail:  make(map[CacheKey]error),
		empty: make(map[CacheKey]bool),
	}
}

func (c *countingRasterizer) Rasterize(key CacheKey) (*Bitmap, error) {
	c.calls[key]++
	if err := c.fail[key]; err != nil {
		return nil, err
	}
	if c.empty[key] {
		return &Bitmap{Content: ContentTypeMask}, nil
	}
	return maskBitmap(4, 4), nil
}

func TestRasterCacheSingleInvocation(t *testing.T) {
	r := newCountingRasterizer()
	rc := NewRasterCache(r, 0)

	for i := 0; i < 5; i++ {
		bmp, err := rc.Get(testKey(1))
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if bmp == nil || bmp.Width != 4 {
			t.Fatalf("Get returned %+v", bmp)
		}
	}
	if r.calls[testKey(1)] != 1 {
		t.Errorf("rasterizer invoked %d times, want 1", r.calls[testKey(1)])
	}

	hits, misses := rc.Stats()
	if hits != 4 || misses != 1 {
		t.Errorf("stats = %d hits / %d misses, want 4/1", hits, misses)
	}
}

func TestRasterCacheEmptyBitmapBecomesNil(t *testing.T) {
	r := newCountingRasterizer()
	r.empty[testKey(2)] = true
	rc := NewRasterCache(r, 0)

	bmp, err := rc.Get(testKey(2))
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if bmp != nil {
		t.Errorf("empty bitmap = %+v, want nil", bmp)
	}
	// Cached as nil, not re-rasterized.
	if _, err := rc.Get(testKey(2)); err != nil {
		t.Fatalf("second Get failed: %v", err)
	}
	if r.calls[testKey(2)] != 1 {
		t.Errorf("rasterizer invoked %d times, want 1", r.calls[testKey(2)])
	}
}

func TestRasterCacheFailureNotRetried(t *testing.T) {
	r := newCountingRasterizer()
	r.fail[testKey(3)] = errors.New("broken outline")
	rc := NewRasterCache(r, 0)

	if _, err := rc.Get(testKey(3)); err == nil {
		t.Fatal("expected error from first Get")
	}
	// The failure is cached as a nil bitmap; later frames skip the
	// glyph instead of re-invoking the rasterizer.
	bmp, err := rc.Get(testKey(3))
	if err != nil || bmp != nil {
		t.Errorf("cached failure Get = %+v, %v, want nil, nil", bmp, err)
	}
	if r.calls[testKey(3)] != 1 {
		t.Errorf("rasterizer invoked %d times, want 1", r.calls[testKey(3)])
	}
}

func TestRasterCacheSoftLimit(t *testing.T) {
	r := newCountingRasterizer()
	rc := NewRasterCache(r, 8)

	for i := uint32(0); i < 32; i++ {
		if _, err := rc.Get(testKey(i)); err != nil {
			t.Fatalf("Get %d failed: %v", i, err)
		}
	}
	if rc.Len() > 8 {
		t.Errorf("cache holds %d bitmaps, soft limit 8", rc.Len())
	}
}
