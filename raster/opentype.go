package raster

import (
	"fmt"
	"image"
	"image/draw"
	"sync"

	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
	"golang.org/x/image/vector"

	"github.com/gogpu/glyphatlas"
)

// OpenType rasterizes glyph outlines with golang.org/x/image: sfnt
// loads the outline by glyph index and the vector rasterizer renders
// it to an alpha mask. Subpixel bins shift the outline horizontally
// by quarter pixels before rasterization.
//
// OpenType is not safe for concurrent use; the renderer invokes it
// from its single prepare goroutine.
type OpenType struct {
	mu    sync.RWMutex
	fonts map[glyphatlas.FontID]*sfnt.Font

	buf sfnt.Buffer
	ras vector.Rasterizer
}

// NewOpenType returns a rasterizer with no fonts registered.
func NewOpenType() *OpenType {
	return &OpenType{fonts: make(map[glyphatlas.FontID]*sfnt.Font)}
}

// AddFont parses TTF/OTF data and registers it under the given id.
func (r *OpenType) AddFont(id glyphatlas.FontID, data []byte) error {
	f, err := sfnt.Parse(data)
	if err != nil {
		return fmt.Errorf("raster: parse font %d: %w", id, err)
	}
	r.mu.Lock()
	r.fonts[id] = f
	r.mu.Unlock()
	return nil
}

// font returns the registered font for an id.
func (r *OpenType) font(id glyphatlas.FontID) (*sfnt.Font, bool) {
	r.mu.RLock()
	f, ok := r.fonts[id]
	r.mu.RUnlock()
	return f, ok
}

// Rasterize implements glyphatlas.Rasterizer. Outlines are rendered
// as coverage masks; the hinted render flag is ignored because sfnt
// does not interpret hinting programs.
func (r *OpenType) Rasterize(key glyphatlas.CacheKey) (*glyphatlas.Bitmap, error) {
	f, ok := r.font(key.Font)
	if !ok {
		return nil, ErrUnknownFont
	}

	ppem := fixed.Int26_6(key.Size() * 64)
	segments, err := f.LoadGlyph(&r.buf, sfnt.GlyphIndex(key.Glyph), ppem, nil)
	if err != nil {
		if err == sfnt.ErrNotFound {
			return nil, ErrMissingGlyph
		}
		return nil, fmt.Errorf("raster: load glyph %d: %w", key.Glyph, err)
	}
	if len(segments) == 0 {
		return &glyphatlas.Bitmap{Content: glyphatlas.ContentTypeMask}, nil
	}

	// The subpixel bin shifts the outline within the pixel grid so
	// fractional pen positions keep their phase.
	dx := fixed.Int26_6(key.Bin.Offset() * 64)

	bounds := segments.Bounds()
	minX := (bounds.Min.X + dx).Floor()
	minY := bounds.Min.Y.Floor()
	maxX := (bounds.Max.X + dx).Ceil()
	maxY := bounds.Max.Y.Ceil()
	width, height := maxX-minX, maxY-minY
	if width <= 0 || height <= 0 {
		return &glyphatlas.Bitmap{Content: glyphatlas.ContentTypeMask}, nil
	}

	// The vector rasterizer wants coordinates in the positive
	// quadrant, so every point is translated by the rounded minimum.
	offX := dx - fixed.I(minX)
	offY := -fixed.I(minY)

	r.ras.Reset(width, height)
	r.ras.DrawOp = draw.Src
	for _, seg := range segments {
		p := translateArgs(seg.Args, offX, offY)
		switch seg.Op {
		case sfnt.SegmentOpMoveTo:
			r.ras.MoveTo(p[0], p[1])
		case sfnt.SegmentOpLineTo:
			r.ras.LineTo(p[0], p[1])
		case sfnt.SegmentOpQuadTo:
			r.ras.QuadTo(p[0], p[1], p[2], p[3])
		case sfnt.SegmentOpCubeTo:
			r.ras.CubeTo(p[0], p[1], p[2], p[3], p[4], p[5])
		}
	}
	r.ras.ClosePath()

	mask := image.NewAlpha(image.Rect(0, 0, width, height))
	r.ras.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})

	return &glyphatlas.Bitmap{
		Content: glyphatlas.ContentTypeMask,
		Width:   width,
		Height:  height,
		Left:    minX,
		Top:     -minY,
		Pixels:  mask.Pix,
	}, nil
}

// translateArgs converts up to three fixed-point segment points to
// float32, applying the positive-quadrant translation.
func translateArgs(args [3]fixed.Point26_6, offX, offY fixed.Int26_6) [6]float32 {
	var out [6]float32
	for i, pt := range args {
		out[i*2] = float32(pt.X+offX) / 64
		out[i*2+1] = float32(pt.Y+offY) / 64
	}
	return out
}
