// Package raster provides glyph rasterizers for the glyphatlas
// renderer, backed by real font parsing libraries. Two
// implementations are available: OpenType on golang.org/x/image
// (sfnt outlines drawn with the vector rasterizer) and FreeType on
// github.com/golang/freetype (TrueType outlines with hinting).
package raster

import "errors"

// Rasterization errors.
var (
	// ErrUnknownFont is returned when a cache key names a font id
	// that was never registered with AddFont.
	ErrUnknownFont = errors.New("raster: unknown font id")

	// ErrMissingGlyph is returned when the font has no outline for
	// the requested glyph id.
	ErrMissingGlyph = errors.New("raster: missing glyph")
)
