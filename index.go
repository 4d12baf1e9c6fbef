package glyphatlas

import "sort"

// IndexEntry records where a glyph currently lives. Entries hold a
// non-owning Location; the atlas owns the packer state and pixels.
type IndexEntry struct {
	Key     CacheKey
	Content ContentType

	// Loc is valid only while Loc.Generation matches the atlas's
	// current generation. Empty entries have a zero Loc.
	Loc Location

	// Empty marks glyphs with no pixels (whitespace, failed
	// rasterization). They occupy no atlas space and produce no
	// instances, but stay indexed so the rasterizer is not re-invoked.
	Empty bool

	// Bearing and dimensions of the bitmap, applied at placement time.
	Left, Top     int
	Width, Height int

	lastUsed uint64 // frame of the most recent lookup hit
	seq      uint64 // insertion sequence, tie-break for eviction
}

// GlyphIndex maps cache keys to atlas locations and drives LRU
// recency. Lookup transparently discards entries whose generation is
// stale, so callers always observe either a current location or a miss.
type GlyphIndex struct {
	entries map[CacheKey]*IndexEntry
	seq     uint64
}

// NewGlyphIndex creates an empty index.
func NewGlyphIndex() *GlyphIndex {
	return &GlyphIndex{entries: make(map[CacheKey]*IndexEntry)}
}

// Len returns the number of indexed glyphs, empty entries included.
func (x *GlyphIndex) Len() int { return len(x.entries) }

// Lookup returns the entry for key if it is still current, stamping
// its recency with the given frame. An entry whose atlas generation
// advanced since insertion is removed and reported as a miss; the
// caller re-resolves it like any other miss.
func (x *GlyphIndex) Lookup(key CacheKey, frame uint64, alloc *AtlasAllocator) (*IndexEntry, bool) {
	e, ok := x.entries[key]
	if !ok {
		return nil, false
	}
	if !e.Empty && alloc.generationOf(e.Loc.Atlas) != e.Loc.Generation {
		delete(x.entries, key)
		return nil, false
	}
	e.lastUsed = frame
	return e, true
}

// Contains reports whether key is indexed with a current generation.
// Unlike Lookup it does not stamp recency or drop stale entries; the
// renderer uses it to validate prepared glyphs at draw time.
func (x *GlyphIndex) Contains(key CacheKey, alloc *AtlasAllocator) bool {
	e, ok := x.entries[key]
	if !ok {
		return false
	}
	return e.Empty || alloc.generationOf(e.Loc.Atlas) == e.Loc.Generation
}

// Insert records a freshly allocated glyph.
func (x *GlyphIndex) Insert(key CacheKey, content ContentType, loc Location, bmp *Bitmap, frame uint64) *IndexEntry {
	x.seq++
	e := &IndexEntry{
		Key:      key,
		Content:  content,
		Loc:      loc,
		Left:     bmp.Left,
		Top:      bmp.Top,
		Width:    bmp.Width,
		Height:   bmp.Height,
		lastUsed: frame,
		seq:      x.seq,
	}
	x.entries[key] = e
	return e
}

// InsertEmpty records a glyph with no pixels so later frames skip the
// rasterizer without consulting the atlas.
func (x *GlyphIndex) InsertEmpty(key CacheKey, content ContentType, frame uint64) *IndexEntry {
	x.seq++
	e := &IndexEntry{
		Key:      key,
		Content:  content,
		Empty:    true,
		lastUsed: frame,
		seq:      x.seq,
	}
	x.entries[key] = e
	return e
}

// Remove deletes an entry. The caller is responsible for returning its
// packer space.
func (x *GlyphIndex) Remove(key CacheKey) {
	delete(x.entries, key)
}

// evictCandidate selects the next entry to evict from the given atlas:
// the least recently used entry not touched this frame, ties broken by
// oldest insertion first. Entries with lastUsed == frame are pinned.
func (x *GlyphIndex) evictCandidate(atlas AtlasID, frame uint64) (*IndexEntry, bool) {
	var best *IndexEntry
	for _, e := range x.entries {
		if e.Empty || e.Loc.Atlas != atlas || e.lastUsed >= frame {
			continue
		}
		if best == nil ||
			e.lastUsed < best.lastUsed ||
			(e.lastUsed == best.lastUsed && e.seq < best.seq) {
			best = e
		}
	}
	return best, best != nil
}

// entriesFor returns all live entries of an atlas in insertion order.
// Repack iterates this to move every surviving region deterministically.
func (x *GlyphIndex) entriesFor(atlas AtlasID) []*IndexEntry {
	var out []*IndexEntry
	for _, e := range x.entries {
		if !e.Empty && e.Loc.Atlas == atlas {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// dropEmpty removes all empty entries. Called by Trim so transient
// whitespace-only keys do not pin map memory forever.
func (x *GlyphIndex) dropEmpty() {
	for k, e := range x.entries {
		if e.Empty {
			delete(x.entries, k)
		}
	}
}
