package glyphatlas

import "testing"

func newTestAtlas(t *testing.T, content ContentType, size int) (*Atlas, func()) {
	t.Helper()
	device, _, cleanup := createNoopDevice(t)
	a, err := newAtlas(device, 0, content, size, size)
	if err != nil {
		cleanup()
		t.Fatalf("newAtlas failed: %v", err)
	}
	return a, func() {
		a.destroy(device)
		cleanup()
	}
}

func TestAtlasWriteBitmap(t *testing.T) {
	a, cleanup := newTestAtlas(t, ContentTypeMask, 16)
	defer cleanup()

	bmp := maskBitmap(3, 2)
	for i := range bmp.Pixels {
		bmp.Pixels[i] = byte(i + 1)
	}
	rect := Rect{X: 4, Y: 5, W: 3, H: 2}
	if err := a.writeBitmap(rect, bmp); err != nil {
		t.Fatalf("writeBitmap failed: %v", err)
	}

	// Rows land at the rect offset in the pending buffer.
	for row := 0; row < 2; row++ {
		for col := 0; col < 3; col++ {
			got := a.pending[(5+row)*16+4+col]
			want := byte(row*3 + col + 1)
			if got != want {
				t.Errorf("pending[%d,%d] = %d, want %d", 4+col, 5+row, got, want)
			}
		}
	}
	if !a.hasDirty || a.dirty != rect {
		t.Errorf("dirty = %v (%v), want %v", a.dirty, a.hasDirty, rect)
	}
}

func TestAtlasWriteBitmapSizeMismatch(t *testing.T) {
	a, cleanup := newTestAtlas(t, ContentTypeMask, 16)
	defer cleanup()

	bmp := &Bitmap{Content: ContentTypeMask, Width: 4, Height: 4, Pixels: make([]byte, 3)}
	if err := a.writeBitmap(Rect{W: 4, H: 4}, bmp); err != ErrBitmapSizeMismatch {
		t.Errorf("err = %v, want ErrBitmapSizeMismatch", err)
	}
}

func TestAtlasDirtyRegionUnion(t *testing.T) {
	a, cleanup := newTestAtlas(t, ContentTypeMask, 32)
	defer cleanup()

	a.markDirty(Rect{X: 2, Y: 3, W: 4, H: 4})
	a.markDirty(Rect{X: 10, Y: 1, W: 2, H: 2})

	want := Rect{X: 2, Y: 1, W: 10, H: 6}
	if a.dirty != want {
		t.Errorf("dirty = %v, want %v", a.dirty, want)
	}
}

func TestAtlasFlushClearsDirty(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()
	a, err := newAtlas(device, 0, ContentTypeColor, 16, 16)
	if err != nil {
		t.Fatalf("newAtlas failed: %v", err)
	}
	defer a.destroy(device)

	bmp := &Bitmap{
		Content: ContentTypeColor,
		Width:   2, Height: 2,
		Pixels: make([]byte, 2*2*4),
	}
	if err := a.writeBitmap(Rect{X: 0, Y: 0, W: 2, H: 2}, bmp); err != nil {
		t.Fatalf("writeBitmap failed: %v", err)
	}

	a.flush(queue)
	if a.hasDirty {
		t.Error("dirty flag survives flush")
	}
	// A second flush with nothing dirty must be a no-op.
	a.flush(queue)
}

func TestAtlasCopyRegion(t *testing.T) {
	a, cleanup := newTestAtlas(t, ContentTypeMask, 8)
	defer cleanup()

	// A source buffer 4 wide with a marked 2x2 block at (1,1).
	src := make([]byte, 4*4)
	src[1*4+1] = 0xA1
	src[1*4+2] = 0xA2
	src[2*4+1] = 0xB1
	src[2*4+2] = 0xB2

	a.copyRegion(src, 4, Rect{X: 1, Y: 1, W: 2, H: 2}, Rect{X: 5, Y: 3, W: 2, H: 2})

	if a.pending[3*8+5] != 0xA1 || a.pending[3*8+6] != 0xA2 {
		t.Error("first row not copied to destination")
	}
	if a.pending[4*8+5] != 0xB1 || a.pending[4*8+6] != 0xB2 {
		t.Error("second row not copied to destination")
	}
}
