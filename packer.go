package glyphatlas

import "sort"

// shelfBucket quantizes shelf heights so freed slots are reusable by
// glyphs of similar height instead of only exact matches.
const shelfBucket = 8

// span is a free horizontal run inside one shelf.
type span struct {
	x, w int
}

// shelf is a horizontal band of the atlas. Every rect allocated on a
// shelf is top-aligned at y, so a rect's Y uniquely identifies its
// shelf.
type shelf struct {
	y    int
	h    int
	free []span // sorted by x, non-adjacent
}

// ShelfPacker is a shelf packer with support for freeing individual
// rectangles. New rectangles open a shelf whose height is the request
// rounded up to a bucket multiple; freed space within a shelf is
// coalesced and reused by later requests of compatible height.
//
// ShelfPacker is not safe for concurrent use; the allocator serializes
// all packer access on the prepare path.
type ShelfPacker struct {
	width  int
	height int

	shelves []*shelf
	nextY   int // top of the unshelved region

	used int // sum of live rect areas
}

// NewShelfPacker creates a packer for a width x height pixel area.
func NewShelfPacker(width, height int) *ShelfPacker {
	return &ShelfPacker{
		width:  width,
		height: height,
	}
}

// Width returns the packed area width in pixels.
func (p *ShelfPacker) Width() int { return p.width }

// Height returns the packed area height in pixels.
func (p *ShelfPacker) Height() int { return p.height }

// UsedArea returns the total area of live rectangles.
func (p *ShelfPacker) UsedArea() int { return p.used }

// FreeArea returns the area not covered by live rectangles. The packer
// maintains FreeArea() + UsedArea() == Width()*Height() at all times.
func (p *ShelfPacker) FreeArea() int { return p.width*p.height - p.used }

// Allocate finds space for a w x h rectangle. The boolean result is
// false when no free region fits.
func (p *ShelfPacker) Allocate(w, h int) (Rect, bool) {
	if w <= 0 || h <= 0 || w > p.width || h > p.height {
		return Rect{}, false
	}

	// First pass: shelves tall enough but without gross vertical waste.
	if r, ok := p.allocateOnShelf(w, h, bucketUp(h)+shelfBucket); ok {
		return r, ok
	}

	// New shelf in the unshelved region.
	if r, ok := p.allocateNewShelf(w, h); ok {
		return r, ok
	}

	// Last resort: any shelf tall enough, waste included.
	return p.allocateOnShelf(w, h, p.height)
}

// allocateOnShelf tries existing shelves whose height is in [h, maxH].
func (p *ShelfPacker) allocateOnShelf(w, h, maxH int) (Rect, bool) {
	for _, s := range p.shelves {
		if s.h < h || s.h > maxH {
			continue
		}
		for i := range s.free {
			if s.free[i].w < w {
				continue
			}
			r := Rect{X: s.free[i].x, Y: s.y, W: w, H: h}
			s.free[i].x += w
			s.free[i].w -= w
			if s.free[i].w == 0 {
				s.free = append(s.free[:i], s.free[i+1:]...)
			}
			p.used += w * h
			return r, true
		}
	}
	return Rect{}, false
}

// allocateNewShelf opens a shelf at nextY with a bucket-rounded height.
func (p *ShelfPacker) allocateNewShelf(w, h int) (Rect, bool) {
	shelfH := bucketUp(h)
	if p.nextY+shelfH > p.height {
		// A tight shelf may still fit where the rounded one does not.
		shelfH = h
		if p.nextY+shelfH > p.height {
			return Rect{}, false
		}
	}

	s := &shelf{y: p.nextY, h: shelfH}
	if w < p.width {
		s.free = []span{{x: w, w: p.width - w}}
	}
	p.shelves = append(p.shelves, s)
	p.nextY += shelfH

	p.used += w * h
	return Rect{X: 0, Y: s.y, W: w, H: h}, true
}

// Free returns a previously allocated rectangle to the packer. The
// rect must be exactly the value returned by Allocate.
func (p *ShelfPacker) Free(r Rect) {
	if r.Empty() {
		return
	}
	s := p.shelfAt(r.Y)
	if s == nil {
		return
	}

	// Insert the span keeping the list sorted by x, then coalesce with
	// both neighbors.
	i := sort.Search(len(s.free), func(i int) bool { return s.free[i].x >= r.X })
	s.free = append(s.free, span{})
	copy(s.free[i+1:], s.free[i:])
	s.free[i] = span{x: r.X, w: r.W}

	if i+1 < len(s.free) && s.free[i].x+s.free[i].w == s.free[i+1].x {
		s.free[i].w += s.free[i+1].w
		s.free = append(s.free[:i+1], s.free[i+2:]...)
	}
	if i > 0 && s.free[i-1].x+s.free[i-1].w == s.free[i].x {
		s.free[i-1].w += s.free[i].w
		s.free = append(s.free[:i], s.free[i+1:]...)
	}

	p.used -= r.Area()
	p.reclaimTrailingShelves()
}

// shelfAt finds the shelf whose top edge is y.
func (p *ShelfPacker) shelfAt(y int) *shelf {
	for _, s := range p.shelves {
		if s.y == y {
			return s
		}
	}
	return nil
}

// reclaimTrailingShelves pops fully free shelves off the end so their
// vertical space returns to the unshelved region.
func (p *ShelfPacker) reclaimTrailingShelves() {
	for len(p.shelves) > 0 {
		s := p.shelves[len(p.shelves)-1]
		if len(s.free) != 1 || s.free[0].x != 0 || s.free[0].w != p.width {
			return
		}
		p.shelves = p.shelves[:len(p.shelves)-1]
		p.nextY = s.y
	}
}

// Reset clears all allocations, making the entire area available again.
func (p *ShelfPacker) Reset() {
	p.shelves = p.shelves[:0]
	p.nextY = 0
	p.used = 0
}

// bucketUp rounds h up to the next shelf bucket multiple.
func bucketUp(h int) int {
	return (h + shelfBucket - 1) / shelfBucket * shelfBucket
}
