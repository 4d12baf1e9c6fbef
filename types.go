package glyphatlas

import (
	"fmt"
	"math"
)

// ContentType classifies atlas pixel content. Color and Mask glyphs are
// stored in distinct atlases and never share a packer.
type ContentType uint8

const (
	// ContentTypeColor is full RGBA content (emoji, bitmap glyphs).
	ContentTypeColor ContentType = iota

	// ContentTypeMask is single-channel coverage multiplied by the
	// instance color at shading time.
	ContentTypeMask
)

// String returns a human-readable name for the content type.
func (c ContentType) String() string {
	switch c {
	case ContentTypeColor:
		return "Color"
	case ContentTypeMask:
		return "Mask"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(c))
	}
}

// channels returns the number of bytes per pixel for the content type.
func (c ContentType) channels() int {
	if c == ContentTypeColor {
		return 4
	}
	return 1
}

// FontID identifies a font to the external rasterizer and shaper.
// The package never interprets it beyond equality.
type FontID uint64

// GlyphID is a glyph index within a font.
type GlyphID uint32

// SubpixelBin is a quantized fractional x-position. Glyphs rasterized
// at different subpixel offsets produce different bitmaps, so the bin
// participates in cache identity.
type SubpixelBin uint8

// SubpixelBinOf quantizes a fractional pixel offset in [0, 1) into one
// of four bins.
func SubpixelBinOf(frac float64) SubpixelBin {
	frac -= math.Floor(frac)
	return SubpixelBin(frac * 4)
}

// Offset returns the bin's fractional x-offset in pixels.
func (b SubpixelBin) Offset() float64 {
	return float64(b) * 0.25
}

// RenderFlags carries rasterization options that affect bitmap output
// (hinting mode, embolden, ...). Two keys with different flags are
// distinct cache entries.
type RenderFlags uint8

const (
	// RenderFlagHinted requests grid-fitted outlines.
	RenderFlagHinted RenderFlags = 1 << iota
)

// CacheKey uniquely identifies a rasterized glyph bitmap. Equality of
// two keys guarantees byte-identical rasterizer output: every input
// that influences rasterization is part of the key, including the font
// size as exact float bits.
type CacheKey struct {
	Font     FontID
	Glyph    GlyphID
	SizeBits uint32
	Bin      SubpixelBin
	Flags    RenderFlags
}

// NewCacheKey builds a key from a fractional pixel size.
func NewCacheKey(font FontID, glyph GlyphID, size float32, bin SubpixelBin, flags RenderFlags) CacheKey {
	return CacheKey{
		Font:     font,
		Glyph:    glyph,
		SizeBits: math.Float32bits(size),
		Bin:      bin,
		Flags:    flags,
	}
}

// Size returns the pixel size encoded in the key.
func (k CacheKey) Size() float32 {
	return math.Float32frombits(k.SizeBits)
}

// Bitmap is the output of a Rasterizer: tightly packed pixels plus the
// placement offsets of the bitmap relative to the glyph origin.
type Bitmap struct {
	// Content selects the atlas the bitmap is stored in. Mask bitmaps
	// hold one byte per pixel, Color bitmaps four (RGBA).
	Content ContentType

	// Width and Height are the bitmap dimensions in pixels.
	Width  int
	Height int

	// Left and Top position the bitmap relative to the glyph origin on
	// the baseline: Left is added to the pen x, Top is subtracted from
	// the pen y.
	Left int
	Top  int

	// Pixels holds Width*Height*channels bytes in row-major order.
	Pixels []byte
}

// Empty reports whether the bitmap covers no pixels. Empty bitmaps
// (whitespace glyphs, failed rasterizations) are never allocated atlas
// space.
func (b *Bitmap) Empty() bool {
	return b == nil || b.Width <= 0 || b.Height <= 0
}

// Rasterizer produces bitmaps from glyph identities. Implementations
// live outside the core; the raster subpackage provides adapters over
// golang.org/x/image and github.com/golang/freetype.
//
// A nil bitmap with a nil error is a valid "nothing to draw" result.
type Rasterizer interface {
	Rasterize(key CacheKey) (*Bitmap, error)
}

// Color is a straight-alpha RGBA color applied to Mask glyph instances
// and available to the shader for Color instances.
type Color struct {
	R, G, B, A uint8
}

// ColorWhite is the neutral instance color.
var ColorWhite = Color{255, 255, 255, 255}

// Placement positions one glyph for the current frame. Placements are
// produced by a shaping stage (see the shape subpackage) and consumed
// by [Renderer.Prepare] in draw order.
type Placement struct {
	// Key identifies the glyph bitmap.
	Key CacheKey

	// X, Y is the glyph origin on the baseline, in pixels from the
	// top-left corner of the target.
	X int
	Y int

	// Color tints Mask glyphs and is ignored by the shader for Color
	// glyphs.
	Color Color

	// Depth is the z value written for the glyph's quad. With a depth
	// test attached to the pass it orders overlapping quads; without
	// one it is ignored.
	Depth float32
}

// Rect is an integer rectangle inside an atlas.
type Rect struct {
	X, Y, W, H int
}

// Area returns the rectangle's area in pixels.
func (r Rect) Area() int { return r.W * r.H }

// Empty reports whether the rectangle covers no pixels.
func (r Rect) Empty() bool { return r.W <= 0 || r.H <= 0 }

// Intersects reports whether r and o share any pixel.
func (r Rect) Intersects(o Rect) bool {
	return r.X < o.X+o.W && o.X < r.X+r.W && r.Y < o.Y+o.H && o.Y < r.Y+r.H
}

// String returns a string representation of the rectangle.
func (r Rect) String() string {
	return fmt.Sprintf("Rect(%d,%d %dx%d)", r.X, r.Y, r.W, r.H)
}

// AtlasID identifies one atlas owned by an [AtlasAllocator]. The id is
// stable across growth; only the generation changes.
type AtlasID uint32

// Location is a non-owning reference to a glyph's atlas region. It is
// only valid while Generation matches the atlas's current generation;
// stale locations are re-resolved transparently on lookup.
type Location struct {
	Atlas      AtlasID
	Rect       Rect
	Generation uint64
}

// Resolution is the render target size in pixels, consumed by the
// vertex stage to project pixel coordinates into clip space.
type Resolution struct {
	Width  uint32
	Height uint32
}
