// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package shape turns strings into positioned glyph placements for
// the glyphatlas renderer. Shaping runs through go-text/typesetting's
// HarfBuzz implementation, so kerning, ligatures, and complex scripts
// come out right; mixed-direction text is split into visual-order runs
// with the Unicode bidi algorithm.
package shape

import (
	"bytes"
	"fmt"
	"math"
	"sync"

	"github.com/go-text/typesetting/di"
	"github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"golang.org/x/image/math/fixed"
	"golang.org/x/text/unicode/bidi"

	"github.com/gogpu/glyphatlas"
)

// Options control one shaping call.
type Options struct {
	// Size is the font size in pixels per em.
	Size float32

	// Color is applied to every produced placement.
	Color glyphatlas.Color

	// Depth is the z value of every produced placement.
	Depth float32

	// Hinted requests hinted rasterization via the cache key.
	Hinted bool

	// RTL sets the base paragraph direction to right-to-left.
	RTL bool
}

// Shaper shapes text against fonts registered by id. The same ids
// must be registered with the rasterizer feeding the renderer, from
// the same font data.
//
// Shaper is safe for concurrent use. Parsed font.Font objects are
// cached (they are read-only); font.Face and HarfbuzzShaper instances
// are not concurrent-safe, so faces are created per call and shapers
// are pooled.
type Shaper struct {
	mu    sync.RWMutex
	fonts map[glyphatlas.FontID]*font.Font

	pool sync.Pool
}

// NewShaper returns a shaper with no fonts registered.
func NewShaper() *Shaper {
	return &Shaper{
		fonts: make(map[glyphatlas.FontID]*font.Font),
		pool: sync.Pool{
			New: func() any { return &shaping.HarfbuzzShaper{} },
		},
	}
}

// AddFont parses TTF/OTF data and registers it under the given id.
func (s *Shaper) AddFont(id glyphatlas.FontID, data []byte) error {
	face, err := font.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("shape: parse font %d: %w", id, err)
	}
	s.mu.Lock()
	s.fonts[id] = face.Font
	s.mu.Unlock()
	return nil
}

// ShapeLine shapes a single line of text and returns placements with
// the pen starting at (x, y) on the baseline, along with the total
// advance in pixels. Newlines are not interpreted; split lines before
// calling.
func (s *Shaper) ShapeLine(text string, fontID glyphatlas.FontID, x, y int, opts Options) ([]glyphatlas.Placement, float64, error) {
	if text == "" {
		return nil, 0, nil
	}
	s.mu.RLock()
	f, ok := s.fonts[fontID]
	s.mu.RUnlock()
	if !ok {
		return nil, 0, fmt.Errorf("shape: unknown font id %d", fontID)
	}

	var flags glyphatlas.RenderFlags
	if opts.Hinted {
		flags |= glyphatlas.RenderFlagHinted
	}

	// font.Face is not concurrent-safe; each call gets its own cheap
	// wrapper around the shared read-only Font.
	face := font.NewFace(f)

	hb := s.pool.Get().(*shaping.HarfbuzzShaper)
	defer s.pool.Put(hb)

	var placements []glyphatlas.Placement
	penX := float64(x)

	for _, run := range visualRuns(text, opts.RTL) {
		runes := []rune(run.text)
		output := hb.Shape(shaping.Input{
			Text:      runes,
			RunStart:  0,
			RunEnd:    len(runes),
			Direction: run.dir,
			Face:      face,
			Size:      fixed.Int26_6(opts.Size * 64),
			Script:    detectScript(runes),
			Language:  language.NewLanguage("en"),
		})

		for _, g := range output.Glyphs {
			gx := penX + fixedToFloat(g.XOffset)
			gy := float64(y) - fixedToFloat(g.YOffset)

			floorX := math.Floor(gx)
			placements = append(placements, glyphatlas.Placement{
				Key: glyphatlas.NewCacheKey(
					fontID,
					glyphatlas.GlyphID(g.GlyphID),
					opts.Size,
					glyphatlas.SubpixelBinOf(gx),
					flags,
				),
				X:     int(floorX),
				Y:     int(math.Round(gy)),
				Color: opts.Color,
				Depth: opts.Depth,
			})
			penX += fixedToFloat(g.Advance)
		}
	}
	return placements, penX - float64(x), nil
}

// visualRun is a maximal same-direction substring in visual order.
type visualRun struct {
	text string
	dir  di.Direction
}

// visualRuns applies the bidi algorithm and returns the line's runs
// in visual order, each tagged with its shaping direction.
func visualRuns(text string, rtl bool) []visualRun {
	base := bidi.Neutral
	if rtl {
		base = bidi.RightToLeft
	}
	var p bidi.Paragraph
	if _, err := p.SetString(text, bidi.DefaultDirection(base)); err != nil {
		return []visualRun{{text: text, dir: di.DirectionLTR}}
	}
	ordering, err := p.Order()
	if err != nil || ordering.NumRuns() == 0 {
		return []visualRun{{text: text, dir: di.DirectionLTR}}
	}

	runs := make([]visualRun, 0, ordering.NumRuns())
	for i := 0; i < ordering.NumRuns(); i++ {
		run := ordering.Run(i)
		dir := di.DirectionLTR
		if run.Direction() == bidi.RightToLeft {
			dir = di.DirectionRTL
		}
		runs = append(runs, visualRun{text: run.String(), dir: dir})
	}
	return runs
}

// detectScript returns the script of the first non-space rune. Mixed
// scripts within one direction run shape with the first script seen;
// split runs by script for stricter correctness.
func detectScript(runes []rune) language.Script {
	for _, r := range runes {
		if r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			continue
		}
		return language.LookupScript(r)
	}
	return language.Latin
}

// fixedToFloat converts a fixed.Int26_6 value to float64.
func fixedToFloat(v fixed.Int26_6) float64 {
	return float64(v) / 64.0
}
