package glyphatlas

import (
	"errors"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// sizedRasterizer returns fixed-size masks and counts invocations.
type sizedRasterizer struct {
	size  int
	calls int
}

func (s *sizedRasterizer) Rasterize(key CacheKey) (*Bitmap, error) {
	s.calls++
	bmp := maskBitmap(s.size, s.size)
	bmp.Top = s.size
	return bmp, nil
}

func newTestRenderer(t *testing.T, cfg Config) (*Renderer, *sizedRasterizer, hal.Device, func()) {
	t.Helper()
	device, queue, cleanup := createNoopDevice(t)
	ras := &sizedRasterizer{size: 8}
	r, err := NewRenderer(device, queue, ras, cfg)
	if err != nil {
		cleanup()
		t.Fatalf("NewRenderer failed: %v", err)
	}
	return r, ras, device, func() {
		r.Destroy()
		cleanup()
	}
}

// beginTestPass opens a render pass on a throwaway target texture.
func beginTestPass(t *testing.T, device hal.Device) (hal.RenderPassEncoder, func()) {
	t.Helper()
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         "test_target",
		Size:          hal.Extent3D{Width: 64, Height: 64, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatBGRA8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		t.Fatalf("CreateTexture failed: %v", err)
	}
	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         "test_target_view",
		Format:        gputypes.TextureFormatBGRA8Unorm,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		device.DestroyTexture(tex)
		t.Fatalf("CreateTextureView failed: %v", err)
	}
	encoder, err := device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "test_encoder"})
	if err != nil {
		t.Fatalf("CreateCommandEncoder failed: %v", err)
	}
	if err := encoder.BeginEncoding("test_frame"); err != nil {
		t.Fatalf("BeginEncoding failed: %v", err)
	}
	rp := encoder.BeginRenderPass(&hal.RenderPassDescriptor{
		Label: "test_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       view,
			LoadOp:     gputypes.LoadOpClear,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: gputypes.Color{R: 0, G: 0, B: 0, A: 0},
		}},
	})
	return rp, func() {
		rp.End()
		device.DestroyTextureView(view)
		device.DestroyTexture(tex)
	}
}

func testPlacements(n int) []Placement {
	ps := make([]Placement, n)
	for i := range ps {
		ps[i] = Placement{
			Key:   testKey(uint32(i)),
			X:     i * 10,
			Y:     20,
			Color: ColorWhite,
		}
	}
	return ps
}

func TestRendererPrepareAndRender(t *testing.T) {
	r, ras, device, cleanup := newTestRenderer(t, DefaultConfig())
	defer cleanup()

	res := Resolution{Width: 640, Height: 480}
	if err := r.Prepare(res, testPlacements(3)); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if ras.calls != 3 {
		t.Errorf("rasterizer invoked %d times, want 3", ras.calls)
	}
	if len(r.groups) != 1 {
		t.Fatalf("got %d draw groups, want 1", len(r.groups))
	}
	if r.groups[0].Count != 3 {
		t.Errorf("group count = %d, want 3", r.groups[0].Count)
	}

	rp, endPass := beginTestPass(t, device)
	defer endPass()
	if err := r.Render(rp); err != nil {
		t.Fatalf("Render failed: %v", err)
	}
}

func TestRendererRenderWithoutPrepareIsNoop(t *testing.T) {
	r, _, device, cleanup := newTestRenderer(t, DefaultConfig())
	defer cleanup()

	rp, endPass := beginTestPass(t, device)
	defer endPass()
	if err := r.Render(rp); err != nil {
		t.Fatalf("Render before Prepare = %v, want nil", err)
	}
}

func TestRendererCachesAcrossFrames(t *testing.T) {
	r, ras, _, cleanup := newTestRenderer(t, DefaultConfig())
	defer cleanup()

	res := Resolution{Width: 640, Height: 480}
	ps := testPlacements(4)
	for frame := 0; frame < 3; frame++ {
		if err := r.Prepare(res, ps); err != nil {
			t.Fatalf("Prepare frame %d failed: %v", frame, err)
		}
	}
	if ras.calls != 4 {
		t.Errorf("rasterizer invoked %d times across frames, want 4", ras.calls)
	}
	hits, misses := r.RasterStats()
	if misses != 4 || hits != 0 {
		// Index hits short-circuit before the raster cache; only the
		// first frame misses into the rasterizer.
		t.Errorf("raster stats = %d hits / %d misses, want 0/4", hits, misses)
	}
}

func TestRendererResolutionChangeDetected(t *testing.T) {
	r, _, device, cleanup := newTestRenderer(t, DefaultConfig())
	defer cleanup()

	if err := r.Prepare(Resolution{Width: 640, Height: 480}, testPlacements(1)); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	r.Viewport().Update(Resolution{Width: 800, Height: 600})

	rp, endPass := beginTestPass(t, device)
	defer endPass()
	if err := r.Render(rp); !errors.Is(err, ErrScreenResolutionChanged) {
		t.Errorf("Render = %v, want ErrScreenResolutionChanged", err)
	}
}

func TestRendererRemovedGlyphDetected(t *testing.T) {
	r, _, device, cleanup := newTestRenderer(t, DefaultConfig())
	defer cleanup()

	if err := r.Prepare(Resolution{Width: 640, Height: 480}, testPlacements(1)); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	r.index.Remove(testKey(0))

	rp, endPass := beginTestPass(t, device)
	defer endPass()
	if err := r.Render(rp); !errors.Is(err, ErrRemovedFromAtlas) {
		t.Errorf("Render = %v, want ErrRemovedFromAtlas", err)
	}
}

func TestRendererGrowsUnderPressure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialAtlasSize = 16
	cfg.MaxTextureSize = 256
	r, _, device, cleanup := newTestRenderer(t, cfg)
	defer cleanup()

	// 8x8 glyphs; 40 distinct glyphs exceed 16x16 several times over,
	// forcing repeated growth mid-prepare.
	if err := r.Prepare(Resolution{Width: 640, Height: 480}, testPlacements(40)); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	a := r.alloc.atlasFor(ContentTypeMask)
	if w, h := a.Size(); w*h < 40*64 {
		t.Errorf("atlas %dx%d too small for 40 glyphs", w, h)
	}
	if len(r.groups) != 1 || r.groups[0].Count != 40 {
		t.Fatalf("groups = %+v, want one group of 40", r.groups)
	}

	rp, endPass := beginTestPass(t, device)
	defer endPass()
	if err := r.Render(rp); err != nil {
		t.Fatalf("Render after growth failed: %v", err)
	}
}

func TestRendererExhaustedAtlasDropsGlyphs(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialAtlasSize = 16
	cfg.MaxTextureSize = 16
	r, _, _, cleanup := newTestRenderer(t, cfg)
	defer cleanup()

	// Four 8x8 glyphs fill the capped atlas; the fifth cannot fit,
	// nothing is evictable within the frame, and it is dropped rather
	// than failing the prepare.
	if err := r.Prepare(Resolution{Width: 640, Height: 480}, testPlacements(5)); err != nil {
		t.Fatalf("Prepare = %v, want nil with dropped glyphs", err)
	}
	if len(r.groups) != 1 || r.groups[0].Count != 4 {
		t.Fatalf("groups = %+v, want one group of 4", r.groups)
	}

	// The dropped glyph is retried next frame; with the earlier glyphs
	// absent it now gets the freed space.
	one := []Placement{{Key: testKey(4), X: 0, Y: 20, Color: ColorWhite}}
	var prepared bool
	for frame := 0; frame < 3; frame++ {
		if err := r.Prepare(Resolution{Width: 640, Height: 480}, one); err != nil {
			t.Fatalf("retry Prepare failed: %v", err)
		}
		if len(r.groups) == 1 && r.groups[0].Count == 1 {
			prepared = true
			break
		}
	}
	if !prepared {
		t.Error("dropped glyph never placed on later frames")
	}
}

func TestRendererTrimAtlas(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialAtlasSize = 16
	cfg.MaxTextureSize = 256
	r, _, device, cleanup := newTestRenderer(t, cfg)
	defer cleanup()

	res := Resolution{Width: 640, Height: 480}
	if err := r.Prepare(res, testPlacements(40)); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}

	// Next frame draws nothing; after the in-flight margin passes,
	// everything is evictable and trim shrinks back to the initial
	// size.
	for i := 0; i < 3; i++ {
		if err := r.Prepare(res, nil); err != nil {
			t.Fatalf("empty Prepare failed: %v", err)
		}
	}
	for i := 0; i < 40; i++ {
		r.index.Remove(testKey(uint32(i)))
	}
	if err := r.TrimAtlas(); err != nil {
		t.Fatalf("TrimAtlas failed: %v", err)
	}
	a := r.alloc.atlasFor(ContentTypeMask)
	if w, h := a.Size(); w != 16 || h != 16 {
		t.Errorf("atlas after trim = %dx%d, want 16x16", w, h)
	}

	// Trim invalidates the prepared frame; Render is a no-op until
	// the next Prepare.
	rp, endPass := beginTestPass(t, device)
	defer endPass()
	if err := r.Render(rp); err != nil {
		t.Fatalf("Render after trim = %v, want nil", err)
	}
}

func TestRendererEmptyGlyphsProduceNoInstances(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	empty := newCountingRasterizer()
	empty.empty[testKey(0)] = true
	r, err := NewRenderer(device, queue, empty, DefaultConfig())
	if err != nil {
		t.Fatalf("NewRenderer failed: %v", err)
	}
	defer r.Destroy()

	if err := r.Prepare(Resolution{Width: 640, Height: 480}, testPlacements(1)); err != nil {
		t.Fatalf("Prepare failed: %v", err)
	}
	if len(r.groups) != 0 {
		t.Errorf("empty glyph produced %d draw groups", len(r.groups))
	}

	// The empty record survives frames without atlas space.
	if err := r.Prepare(Resolution{Width: 640, Height: 480}, testPlacements(1)); err != nil {
		t.Fatalf("second Prepare failed: %v", err)
	}
	if empty.calls[testKey(0)] != 1 {
		t.Errorf("empty glyph rasterized %d times, want 1", empty.calls[testKey(0)])
	}
}
