package glyphatlas

import (
	"github.com/gogpu/glyphatlas/internal/cache"
)

// RasterCache memoizes rasterized glyph bitmaps by cache key so a
// glyph evicted from the atlas can be re-inserted without invoking the
// rasterizer again. Failed rasterizations are cached as nil bitmaps,
// keeping a broken glyph from being retried every frame.
type RasterCache struct {
	rasterizer Rasterizer
	bitmaps    *cache.Cache[CacheKey, *Bitmap]
}

// NewRasterCache wraps a rasterizer with a soft-limited bitmap cache.
// A softLimit of 0 keeps every bitmap.
func NewRasterCache(r Rasterizer, softLimit int) *RasterCache {
	return &RasterCache{
		rasterizer: r,
		bitmaps:    cache.New[CacheKey, *Bitmap](softLimit),
	}
}

// Get returns the bitmap for key, rasterizing on the first request.
// A nil bitmap with a nil error means the glyph has no visible
// coverage (e.g. a space) or previously failed to rasterize.
func (rc *RasterCache) Get(key CacheKey) (*Bitmap, error) {
	if bmp, ok := rc.bitmaps.Get(key); ok {
		return bmp, nil
	}

	bmp, err := rc.rasterizer.Rasterize(key)
	if err != nil {
		Logger().Warn("glyph rasterization failed",
			"font", key.Font, "glyph", key.Glyph, "size", key.Size(), "err", err)
		rc.bitmaps.Set(key, nil)
		return nil, err
	}
	if bmp != nil && bmp.Empty() {
		bmp = nil
	}
	rc.bitmaps.Set(key, bmp)
	return bmp, nil
}

// Stats reports cache hits and misses since creation.
func (rc *RasterCache) Stats() (hits, misses uint64) {
	return rc.bitmaps.Stats()
}

// Len returns the number of cached bitmaps.
func (rc *RasterCache) Len() int { return rc.bitmaps.Len() }

// Clear drops every cached bitmap.
func (rc *RasterCache) Clear() { rc.bitmaps.Clear() }
