package glyphatlas

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestPackDimRoundTrip(t *testing.T) {
	tests := []struct {
		w, h uint16
	}{
		{0, 0},
		{1, 1},
		{37, 52},
		{255, 16},
		{65535, 65535},
	}
	for _, tt := range tests {
		w, h := unpackDim(packDim(tt.w, tt.h))
		if w != tt.w || h != tt.h {
			t.Errorf("packDim(%d,%d) round trip = (%d,%d)", tt.w, tt.h, w, h)
		}
	}
}

func TestPackColorByteOrder(t *testing.T) {
	c := packColor(Color{R: 0x11, G: 0x22, B: 0x33, A: 0x44})
	if c != 0x44332211 {
		t.Errorf("packColor = %#x, want 0x44332211 (R in low byte)", c)
	}
}

func TestInstanceEncodeLayout(t *testing.T) {
	in := Instance{
		X: -3, Y: 17,
		Width: 37, Height: 52,
		U: 128, V: 64,
		Color:   Color{R: 255, G: 0, B: 0, A: 255},
		Content: ContentTypeMask,
		SRGB:    true,
		Depth:   0.5,
	}
	data := in.encode(nil)
	if len(data) != instanceStride {
		t.Fatalf("encoded length = %d, want %d", len(data), instanceStride)
	}

	if got := int32(binary.LittleEndian.Uint32(data[0:])); got != -3 {
		t.Errorf("x = %d, want -3", got)
	}
	if got := int32(binary.LittleEndian.Uint32(data[4:])); got != 17 {
		t.Errorf("y = %d, want 17", got)
	}
	if got := binary.LittleEndian.Uint32(data[8:]); got != uint32(37)|uint32(52)<<16 {
		t.Errorf("dim = %#x", got)
	}
	if got := binary.LittleEndian.Uint32(data[12:]); got != uint32(128)|uint32(64)<<16 {
		t.Errorf("uv = %#x", got)
	}
	if got := binary.LittleEndian.Uint32(data[16:]); got != 0xff0000ff {
		t.Errorf("color = %#x, want 0xff0000ff", got)
	}
	// Mask content in the low half, srgb flag in the high half.
	if got := binary.LittleEndian.Uint32(data[20:]); got != 0x10001 {
		t.Errorf("content word = %#x, want 0x10001", got)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(data[24:])); got != 0.5 {
		t.Errorf("depth = %v, want 0.5", got)
	}
}

func TestBatcherGroupsByAtlasInOrder(t *testing.T) {
	b := NewBatcher()
	b.Add(1, Instance{X: 1})
	b.Add(0, Instance{X: 2})
	b.Add(1, Instance{X: 3})

	contentOf := func(id AtlasID) ContentType {
		if id == 0 {
			return ContentTypeColor
		}
		return ContentTypeMask
	}
	data, groups := b.Finish(contentOf)

	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	if groups[0].Atlas != 0 || groups[1].Atlas != 1 {
		t.Errorf("group order = [%d %d], want ascending atlas ids", groups[0].Atlas, groups[1].Atlas)
	}
	if groups[0].Count != 1 || groups[1].Count != 2 {
		t.Errorf("counts = [%d %d], want [1 2]", groups[0].Count, groups[1].Count)
	}
	if groups[0].First != 0 || groups[1].First != 1 {
		t.Errorf("firsts = [%d %d], want [0 1]", groups[0].First, groups[1].First)
	}
	if groups[0].Content != ContentTypeColor || groups[1].Content != ContentTypeMask {
		t.Error("group content types do not match atlas content")
	}
	if len(data) != 3*instanceStride {
		t.Errorf("data length = %d, want %d", len(data), 3*instanceStride)
	}

	// Instances inside a group preserve submission order.
	x0 := int32(binary.LittleEndian.Uint32(data[0:]))
	x1 := int32(binary.LittleEndian.Uint32(data[instanceStride:]))
	x2 := int32(binary.LittleEndian.Uint32(data[2*instanceStride:]))
	if x0 != 2 || x1 != 1 || x2 != 3 {
		t.Errorf("encoded x order = [%d %d %d], want [2 1 3]", x0, x1, x2)
	}
}

func TestBatcherDeterministicAcrossRuns(t *testing.T) {
	contentOf := func(AtlasID) ContentType { return ContentTypeMask }
	build := func() []byte {
		b := NewBatcher()
		for i := 0; i < 50; i++ {
			b.Add(AtlasID(i%3), Instance{X: int32(i), Y: int32(-i), Width: uint16(i + 1), Height: 7})
		}
		data, _ := b.Finish(contentOf)
		out := make([]byte, len(data))
		copy(out, data)
		return out
	}

	first := build()
	for run := 0; run < 5; run++ {
		if got := build(); string(got) != string(first) {
			t.Fatalf("run %d produced different bytes", run)
		}
	}
}

func TestBatcherReset(t *testing.T) {
	b := NewBatcher()
	b.Add(0, Instance{})
	b.Add(1, Instance{})
	if b.Len() != 2 {
		t.Fatalf("Len = %d, want 2", b.Len())
	}
	b.Finish(func(AtlasID) ContentType { return ContentTypeMask })

	b.Reset()
	if b.Len() != 0 {
		t.Errorf("Len after reset = %d, want 0", b.Len())
	}
	data, groups := b.Finish(func(AtlasID) ContentType { return ContentTypeMask })
	if len(data) != 0 || len(groups) != 0 {
		t.Errorf("Finish after reset = %d bytes, %d groups", len(data), len(groups))
	}
}
