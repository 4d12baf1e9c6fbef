package glyphatlas

import (
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// createNoopDevice creates a noop device and queue for testing.
// Returns the device, queue, and a cleanup function.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

// maskBitmap builds a mask bitmap of the given size for tests.
func maskBitmap(w, h int) *Bitmap {
	return &Bitmap{
		Content: ContentTypeMask,
		Width:   w,
		Height:  h,
		Pixels:  make([]byte, w*h),
	}
}

// testKey builds a cache key for glyph n.
func testKey(n uint32) CacheKey {
	return NewCacheKey(FontID(1), GlyphID(n), 16, 0, 0)
}
