// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package glyphatlas

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"
)

// quarantinedRect is packer space freed by eviction that may still be
// read by an in-flight draw. It returns to the packer once the margin
// of frames has passed.
type quarantinedRect struct {
	atlas AtlasID
	rect  Rect
	frame uint64
}

// retiredTexture is an atlas texture replaced by growth, destroyed
// after the in-flight margin.
type retiredTexture struct {
	texture hal.Texture
	view    hal.TextureView
	frame   uint64
}

// AtlasAllocator owns one atlas per content type and mediates all
// packer mutation: allocation, LRU eviction, growth with repack, and
// the deferred reclamation that keeps freed regions untouched while
// previously submitted draws may still sample them.
//
// All methods must be called from the prepare phase of a single
// renderer; the allocator performs no locking of its own.
type AtlasAllocator struct {
	device hal.Device
	queue  hal.Queue

	initialSize int
	maxSize     int
	inFlight    int

	atlases []*Atlas // AtlasID indexes this slice

	quarantine []quarantinedRect
	graveyard  []retiredTexture

	// genEpoch increments on every grow or repack. The renderer
	// snapshots it to detect that previously batched rects went stale
	// mid-prepare.
	genEpoch uint64
}

// NewAtlasAllocator creates an allocator with one atlas per content
// type at the initial size. Texture creation failure is fatal.
func NewAtlasAllocator(device hal.Device, queue hal.Queue, initialSize, maxSize, inFlight int) (*AtlasAllocator, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	al := &AtlasAllocator{
		device:      device,
		queue:       queue,
		initialSize: initialSize,
		maxSize:     maxSize,
		inFlight:    inFlight,
	}
	for _, content := range []ContentType{ContentTypeColor, ContentTypeMask} {
		a, err := newAtlas(device, AtlasID(len(al.atlases)), content, initialSize, initialSize)
		if err != nil {
			al.Destroy()
			return nil, err
		}
		al.atlases = append(al.atlases, a)
	}
	return al, nil
}

// atlasFor returns the atlas holding the given content type.
func (al *AtlasAllocator) atlasFor(content ContentType) *Atlas {
	for _, a := range al.atlases {
		if a.content == content {
			return a
		}
	}
	return nil
}

// atlas returns the atlas with the given id, or nil.
func (al *AtlasAllocator) atlas(id AtlasID) *Atlas {
	if int(id) >= len(al.atlases) {
		return nil
	}
	return al.atlases[id]
}

// generationOf returns the current generation of an atlas.
func (al *AtlasAllocator) generationOf(id AtlasID) uint64 {
	a := al.atlas(id)
	if a == nil {
		return 0
	}
	return a.generation
}

// BeginFrame releases quarantined packer space and retired textures
// whose in-flight margin has elapsed. Called once per frame before any
// allocation.
func (al *AtlasAllocator) BeginFrame(frame uint64) {
	kept := al.quarantine[:0]
	for _, q := range al.quarantine {
		if q.frame+uint64(al.inFlight) <= frame {
			if a := al.atlas(q.atlas); a != nil {
				a.packer.Free(q.rect)
			}
			continue
		}
		kept = append(kept, q)
	}
	al.quarantine = kept

	keptTex := al.graveyard[:0]
	for _, r := range al.graveyard {
		if r.frame+uint64(al.inFlight) <= frame {
			al.device.DestroyTextureView(r.view)
			al.device.DestroyTexture(r.texture)
			continue
		}
		keptTex = append(keptTex, r)
	}
	al.graveyard = keptTex
}

// Allocate finds atlas space for a width x height bitmap of the given
// content type. On packer failure it evicts least-recently-used entries
// not used this frame, then grows the atlas (doubling, capped at the
// device limit) with a full repack that bumps the generation. Returns
// ErrAtlasExhausted when the atlas is at the cap and nothing more can
// be evicted, and ErrGlyphTooLarge when the bitmap can never fit.
func (al *AtlasAllocator) Allocate(content ContentType, width, height int, frame uint64, index *GlyphIndex) (Location, error) {
	if width > al.maxSize || height > al.maxSize {
		return Location{}, ErrGlyphTooLarge
	}
	a := al.atlasFor(content)

	for {
		if r, ok := a.packer.Allocate(width, height); ok {
			return Location{Atlas: a.id, Rect: r, Generation: a.generation}, nil
		}

		if loc, ok := al.evictUntilFits(a, width, height, frame, index); ok {
			return loc, nil
		}

		grown, err := al.grow(a, index)
		if err != nil {
			return Location{}, err
		}
		if !grown {
			return Location{}, ErrAtlasExhausted
		}
	}
}

// evictUntilFits removes evictable entries one at a time, oldest
// first, retrying the allocation after every immediate free. Entries
// inside the in-flight margin are quarantined instead of freed, so
// they cannot satisfy the current request.
func (al *AtlasAllocator) evictUntilFits(a *Atlas, width, height int, frame uint64, index *GlyphIndex) (Location, bool) {
	for {
		e, ok := index.evictCandidate(a.id, frame)
		if !ok {
			return Location{}, false
		}
		index.Remove(e.Key)

		if e.lastUsed+uint64(al.inFlight) < frame {
			a.packer.Free(e.Loc.Rect)
			Logger().Debug("atlas evict", "atlas", a.id, "rect", e.Loc.Rect.String())
			if r, ok := a.packer.Allocate(width, height); ok {
				return Location{Atlas: a.id, Rect: r, Generation: a.generation}, true
			}
		} else {
			al.quarantine = append(al.quarantine, quarantinedRect{atlas: a.id, rect: e.Loc.Rect, frame: frame})
			Logger().Debug("atlas evict (quarantined)", "atlas", a.id, "rect", e.Loc.Rect.String())
		}
	}
}

// grow doubles the smaller atlas dimension, capped at the device
// limit, and repacks every surviving entry. Returns false when both
// dimensions are already at the cap.
func (al *AtlasAllocator) grow(a *Atlas, index *GlyphIndex) (bool, error) {
	newW, newH := a.width, a.height
	switch {
	case newW <= newH && newW < al.maxSize:
		newW = min(newW*2, al.maxSize)
	case newH < al.maxSize:
		newH = min(newH*2, al.maxSize)
	case newW < al.maxSize:
		newW = min(newW*2, al.maxSize)
	default:
		return false, nil
	}

	if err := al.repack(a, newW, newH, index); err != nil {
		return false, err
	}
	Logger().Info("atlas grown",
		"atlas", a.id, "content", a.content.String(),
		"width", newW, "height", newH, "generation", a.generation)
	return true, nil
}

// repack rebuilds the atlas at the given size, reallocating every
// surviving entry in insertion order and bumping the generation. All
// previously issued rects of the atlas become stale: the next Lookup
// of any entry not moved here re-resolves it from scratch.
func (al *AtlasAllocator) repack(a *Atlas, newW, newH int, index *GlyphIndex) error {
	entries := index.entriesFor(a.id)

	oldPending, oldW, oldH := a.pending, a.width, a.height
	oldPacker := a.packer
	oldTexture, oldView := a.texture, a.view

	a.width, a.height = newW, newH
	a.packer = NewShelfPacker(newW, newH)
	a.pending = make([]byte, newW*newH*a.content.channels())
	a.generation++
	al.genEpoch++

	if err := a.createTexture(al.device); err != nil {
		// The old texture is still intact; restore and propagate.
		a.width, a.height = oldW, oldH
		a.packer = oldPacker
		a.pending = oldPending
		a.texture, a.view = oldTexture, oldView
		return fmt.Errorf("grow atlas %d: %w", a.id, err)
	}

	// The old texture may still be sampled by in-flight draws.
	al.graveyard = append(al.graveyard, retiredTexture{texture: oldTexture, view: oldView, frame: al.lastFrame(entries)})

	// Quarantined space refers to the old packer layout; the retired
	// texture keeps it readable, and the new packer starts empty.
	al.dropQuarantined(a.id)

	for _, e := range entries {
		r, ok := a.packer.Allocate(e.Width, e.Height)
		if !ok {
			// Cannot happen when growing; guards Trim against a target
			// that turned out too tight.
			index.Remove(e.Key)
			Logger().Warn("entry dropped during repack", "atlas", a.id, "rect", e.Loc.Rect.String())
			continue
		}
		a.copyRegion(oldPending, oldW, e.Loc.Rect, r)
		e.Loc = Location{Atlas: a.id, Rect: r, Generation: a.generation}
	}

	a.hasDirty = false
	if len(entries) > 0 {
		a.markDirty(Rect{X: 0, Y: 0, W: newW, H: newH})
	}
	return nil
}

// lastFrame returns the most recent lastUsed among entries, pinning
// the retired texture until every draw that might read it has retired.
func (al *AtlasAllocator) lastFrame(entries []*IndexEntry) uint64 {
	var f uint64
	for _, e := range entries {
		if e.lastUsed > f {
			f = e.lastUsed
		}
	}
	return f
}

// dropQuarantined discards quarantine records for one atlas.
func (al *AtlasAllocator) dropQuarantined(id AtlasID) {
	kept := al.quarantine[:0]
	for _, q := range al.quarantine {
		if q.atlas != id {
			kept = append(kept, q)
		}
	}
	al.quarantine = kept
}

// Trim repacks each atlas into the smallest size (never below the
// initial size) that holds its live entries, bumping generations. Use
// it after a content change that released most of the cache, e.g. a
// font size switch.
func (al *AtlasAllocator) Trim(index *GlyphIndex) error {
	for _, a := range al.atlases {
		entries := index.entriesFor(a.id)
		w, h := al.trimTarget(entries)
		if w == a.width && h == a.height {
			continue
		}
		if err := al.repack(a, w, h, index); err != nil {
			return err
		}
		Logger().Info("atlas trimmed",
			"atlas", a.id, "content", a.content.String(),
			"width", w, "height", h, "generation", a.generation)
	}
	index.dropEmpty()
	return nil
}

// trimTarget finds the smallest doubling of the initial size whose
// shelf packing fits all entries in insertion order.
func (al *AtlasAllocator) trimTarget(entries []*IndexEntry) (int, int) {
	w, h := al.initialSize, al.initialSize
	for {
		if al.fits(entries, w, h) {
			return w, h
		}
		if w <= h && w < al.maxSize {
			w = min(w*2, al.maxSize)
		} else if h < al.maxSize {
			h = min(h*2, al.maxSize)
		} else {
			return w, h
		}
	}
}

// fits simulates packing entries into a w x h area.
func (al *AtlasAllocator) fits(entries []*IndexEntry, w, h int) bool {
	p := NewShelfPacker(w, h)
	for _, e := range entries {
		if _, ok := p.Allocate(e.Width, e.Height); !ok {
			return false
		}
	}
	return true
}

// Flush uploads all dirty atlas sub-regions.
func (al *AtlasAllocator) Flush() {
	for _, a := range al.atlases {
		a.flush(al.queue)
	}
}

// Destroy releases every atlas texture, including retired ones.
func (al *AtlasAllocator) Destroy() {
	for _, r := range al.graveyard {
		al.device.DestroyTextureView(r.view)
		al.device.DestroyTexture(r.texture)
	}
	al.graveyard = nil
	for _, a := range al.atlases {
		a.destroy(al.device)
	}
	al.atlases = nil
}
