package raster

import (
	"fmt"
	"image"
	"sync"

	"github.com/golang/freetype/raster"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	"github.com/gogpu/glyphatlas"
)

// FreeType rasterizes TrueType glyphs with github.com/golang/freetype.
// Unlike OpenType it interprets hinting programs, so the hinted render
// flag selects full hinting.
//
// FreeType is not safe for concurrent use.
type FreeType struct {
	mu    sync.RWMutex
	fonts map[glyphatlas.FontID]*truetype.Font

	glyphBuf truetype.GlyphBuf
}

// NewFreeType returns a rasterizer with no fonts registered.
func NewFreeType() *FreeType {
	return &FreeType{fonts: make(map[glyphatlas.FontID]*truetype.Font)}
}

// AddFont parses TTF data and registers it under the given id.
func (r *FreeType) AddFont(id glyphatlas.FontID, data []byte) error {
	f, err := truetype.Parse(data)
	if err != nil {
		return fmt.Errorf("raster: parse font %d: %w", id, err)
	}
	r.mu.Lock()
	r.fonts[id] = f
	r.mu.Unlock()
	return nil
}

func (r *FreeType) font(id glyphatlas.FontID) (*truetype.Font, bool) {
	r.mu.RLock()
	f, ok := r.fonts[id]
	r.mu.RUnlock()
	return f, ok
}

// Rasterize implements glyphatlas.Rasterizer.
func (r *FreeType) Rasterize(key glyphatlas.CacheKey) (*glyphatlas.Bitmap, error) {
	f, ok := r.font(key.Font)
	if !ok {
		return nil, ErrUnknownFont
	}

	hinting := font.HintingNone
	if key.Flags&glyphatlas.RenderFlagHinted != 0 {
		hinting = font.HintingFull
	}

	scale := fixed.Int26_6(key.Size() * 64)
	if err := r.glyphBuf.Load(f, scale, truetype.Index(key.Glyph), hinting); err != nil {
		return nil, fmt.Errorf("raster: load glyph %d: %w", key.Glyph, err)
	}
	if len(r.glyphBuf.Points) == 0 {
		return &glyphatlas.Bitmap{Content: glyphatlas.ContentTypeMask}, nil
	}

	dx := fixed.Int26_6(key.Bin.Offset() * 64)

	// TrueType outlines are y-up around the baseline.
	b := r.glyphBuf.Bounds
	minX := (b.Min.X + dx).Floor()
	maxX := (b.Max.X + dx).Ceil()
	minY := b.Min.Y.Floor()
	maxY := b.Max.Y.Ceil()
	width, height := maxX-minX, maxY-minY
	if width <= 0 || height <= 0 {
		return &glyphatlas.Bitmap{Content: glyphatlas.ContentTypeMask}, nil
	}

	// Translate into the positive quadrant and flip to y-down.
	offX := dx - fixed.I(minX)
	topY := fixed.I(maxY)
	trans := func(x, y fixed.Int26_6) fixed.Point26_6 {
		return fixed.Point26_6{X: x + offX, Y: topY - y}
	}

	ras := raster.NewRasterizer(width, height)
	ras.UseNonZeroWinding = true
	start := 0
	for _, end := range r.glyphBuf.Ends {
		drawContour(ras, r.glyphBuf.Points[start:end], trans)
		start = end
	}

	mask := image.NewAlpha(image.Rect(0, 0, width, height))
	ras.Rasterize(raster.NewAlphaSrcPainter(mask))

	return &glyphatlas.Bitmap{
		Content: glyphatlas.ContentTypeMask,
		Width:   width,
		Height:  height,
		Left:    minX,
		Top:     maxY,
		Pixels:  mask.Pix,
	}, nil
}

// drawContour walks one TrueType contour, emitting lines for on-curve
// runs and quadratic curves around off-curve control points. Implied
// on-curve points sit at the midpoint of consecutive off-curve points.
func drawContour(ras *raster.Rasterizer, ps []truetype.Point, trans func(x, y fixed.Int26_6) fixed.Point26_6) {
	if len(ps) == 0 {
		return
	}

	onCurve := func(p truetype.Point) bool { return p.Flags&0x01 != 0 }
	midpoint := func(a, b truetype.Point) truetype.Point {
		return truetype.Point{X: (a.X + b.X) / 2, Y: (a.Y + b.Y) / 2}
	}

	start := ps[0]
	others := ps[1:]
	if !onCurve(start) {
		last := ps[len(ps)-1]
		if onCurve(last) {
			start = last
			others = ps[:len(ps)-1]
		} else {
			start = midpoint(ps[0], last)
			others = ps
		}
	}

	ras.Start(trans(start.X, start.Y))
	prev, prevOn := start, true
	for _, p := range others {
		if onCurve(p) {
			if prevOn {
				ras.Add1(trans(p.X, p.Y))
			} else {
				ras.Add2(trans(prev.X, prev.Y), trans(p.X, p.Y))
			}
		} else if !prevOn {
			mid := midpoint(prev, p)
			ras.Add2(trans(prev.X, prev.Y), trans(mid.X, mid.Y))
		}
		prev, prevOn = p, onCurve(p)
	}
	if prevOn {
		ras.Add1(trans(start.X, start.Y))
	} else {
		ras.Add2(trans(prev.X, prev.Y), trans(start.X, start.Y))
	}
}
