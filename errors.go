package glyphatlas

import "errors"

// Errors returned by the atlas allocator and renderer. Per-glyph
// failures (rasterization, oversized bitmaps, atlas exhaustion)
// degrade to dropped glyphs retried next frame; only device resource
// failures and prepare/render contract violations reach the caller.
var (
	// ErrAtlasFull is returned by Prepare when the placement pass
	// cannot converge on stable atlas contents. It indicates a bug or
	// a pathological workload, not a normal full atlas.
	ErrAtlasFull = errors.New("glyphatlas: texture atlas is full")

	// ErrAtlasExhausted is returned by the allocator when an atlas is
	// already at the size limit and eviction freed nothing usable. The
	// renderer drops the glyph for the current frame and retries it on
	// the next one.
	ErrAtlasExhausted = errors.New("glyphatlas: texture atlas is at the device size limit")

	// ErrRemovedFromAtlas is returned by Render when a glyph prepared
	// this frame no longer resides in the atlas.
	ErrRemovedFromAtlas = errors.New("glyphatlas: glyph no longer exists within the texture atlas")

	// ErrScreenResolutionChanged is returned by Render when the target
	// resolution differs from the one passed to the preceding Prepare.
	ErrScreenResolutionChanged = errors.New("glyphatlas: screen resolution changed since Prepare")

	// ErrNilDevice is returned when constructing with a nil device.
	ErrNilDevice = errors.New("glyphatlas: device is nil")

	// ErrNilRasterizer is returned when constructing a renderer without
	// a rasterizer.
	ErrNilRasterizer = errors.New("glyphatlas: rasterizer is nil")

	// ErrGlyphTooLarge is returned when a bitmap exceeds the maximum
	// atlas dimension and can never be packed.
	ErrGlyphTooLarge = errors.New("glyphatlas: glyph bitmap exceeds maximum atlas size")

	// ErrBitmapSizeMismatch is returned when a bitmap's pixel length
	// does not match its declared dimensions.
	ErrBitmapSizeMismatch = errors.New("glyphatlas: bitmap pixel data does not match dimensions")
)
