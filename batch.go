package glyphatlas

import (
	"encoding/binary"
	"math"
	"sort"
)

// instanceStride is the byte size of one encoded glyph instance.
//
// Layout, little-endian:
//
//	offset 0  int32   x
//	offset 4  int32   y
//	offset 8  uint32  width | height<<16
//	offset 12 uint32  u | v<<16
//	offset 16 uint32  color R | G<<8 | B<<16 | A<<24
//	offset 20 uint32  content type | srgb flag<<16
//	offset 24 float32 depth
const instanceStride = 28

// Instance is one positioned glyph quad before encoding.
type Instance struct {
	X, Y    int32
	Width   uint16
	Height  uint16
	U, V    uint16
	Color   Color
	Content ContentType
	SRGB    bool
	Depth   float32
}

// packDim packs a width and height into one word, width in the low
// half.
func packDim(w, h uint16) uint32 {
	return uint32(w) | uint32(h)<<16
}

// unpackDim is the inverse of packDim.
func unpackDim(d uint32) (w, h uint16) {
	return uint16(d), uint16(d >> 16)
}

// packUV packs atlas texel coordinates into one word, u in the low
// half.
func packUV(u, v uint16) uint32 {
	return uint32(u) | uint32(v)<<16
}

// packColor packs an RGBA color with R in the low byte.
func packColor(c Color) uint32 {
	return uint32(c.R) | uint32(c.G)<<8 | uint32(c.B)<<16 | uint32(c.A)<<24
}

// encode appends the instance's wire form to dst.
func (in *Instance) encode(dst []byte) []byte {
	var buf [instanceStride]byte
	binary.LittleEndian.PutUint32(buf[0:], uint32(in.X))
	binary.LittleEndian.PutUint32(buf[4:], uint32(in.Y))
	binary.LittleEndian.PutUint32(buf[8:], packDim(in.Width, in.Height))
	binary.LittleEndian.PutUint32(buf[12:], packUV(in.U, in.V))
	binary.LittleEndian.PutUint32(buf[16:], packColor(in.Color))
	flags := uint32(in.Content)
	if in.SRGB {
		flags |= 1 << 16
	}
	binary.LittleEndian.PutUint32(buf[20:], flags)
	binary.LittleEndian.PutUint32(buf[24:], math.Float32bits(in.Depth))
	return append(dst, buf[:]...)
}

// DrawGroup is a contiguous run of encoded instances sampling one
// atlas, drawn with a single instanced call.
type DrawGroup struct {
	Atlas   AtlasID
	Content ContentType
	First   int
	Count   int
}

// Batcher accumulates glyph instances during prepare and encodes them
// into a vertex buffer image, grouped by atlas in a stable order so
// identical inputs yield byte-identical buffers.
type Batcher struct {
	perAtlas map[AtlasID][]Instance
	encoded  []byte
	groups   []DrawGroup
}

// NewBatcher returns an empty batcher.
func NewBatcher() *Batcher {
	return &Batcher{perAtlas: make(map[AtlasID][]Instance)}
}

// Reset clears accumulated instances, retaining allocations.
func (b *Batcher) Reset() {
	for id := range b.perAtlas {
		b.perAtlas[id] = b.perAtlas[id][:0]
	}
	b.encoded = b.encoded[:0]
	b.groups = b.groups[:0]
}

// Add records one instance.
func (b *Batcher) Add(atlas AtlasID, in Instance) {
	b.perAtlas[atlas] = append(b.perAtlas[atlas], in)
}

// Len returns the total number of accumulated instances.
func (b *Batcher) Len() int {
	n := 0
	for _, list := range b.perAtlas {
		n += len(list)
	}
	return n
}

// Finish encodes all instances into a single buffer image in
// ascending atlas id order and returns it alongside the draw groups.
// The returned slices are valid until the next Reset.
func (b *Batcher) Finish(contentOf func(AtlasID) ContentType) ([]byte, []DrawGroup) {
	ids := make([]AtlasID, 0, len(b.perAtlas))
	for id, list := range b.perAtlas {
		if len(list) > 0 {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		list := b.perAtlas[id]
		first := len(b.encoded) / instanceStride
		for i := range list {
			b.encoded = list[i].encode(b.encoded)
		}
		b.groups = append(b.groups, DrawGroup{
			Atlas:   id,
			Content: contentOf(id),
			First:   first,
			Count:   len(list),
		})
	}
	return b.encoded, b.groups
}
