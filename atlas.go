package glyphatlas

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Atlas is one GPU texture subdivided into packed glyph regions. It
// exclusively owns its packer state and pixel storage; the GlyphIndex
// refers to regions only through non-owning (id, rect, generation)
// locations.
type Atlas struct {
	id      AtlasID
	content ContentType

	width  int
	height int

	packer     *ShelfPacker
	generation uint64

	texture hal.Texture
	view    hal.TextureView

	// pending mirrors the texture contents on the CPU so sub-region
	// uploads and repacks never read back from the GPU.
	pending []byte

	// dirty is the union of regions written since the last flush.
	dirty    Rect
	hasDirty bool
}

// newAtlas creates an atlas texture of the given size and content type.
// Texture or view creation failure is fatal and propagated.
func newAtlas(device hal.Device, id AtlasID, content ContentType, width, height int) (*Atlas, error) {
	a := &Atlas{
		id:      id,
		content: content,
		width:   width,
		height:  height,
		packer:  NewShelfPacker(width, height),
		pending: make([]byte, width*height*content.channels()),
	}
	if err := a.createTexture(device); err != nil {
		return nil, err
	}
	return a, nil
}

// ID returns the atlas identifier.
func (a *Atlas) ID() AtlasID { return a.id }

// ContentType returns the pixel content classification.
func (a *Atlas) ContentType() ContentType { return a.content }

// Size returns the atlas dimensions in pixels.
func (a *Atlas) Size() (width, height int) { return a.width, a.height }

// Generation returns the current generation counter. It increases on
// every grow or repack, invalidating all previously issued rects.
func (a *Atlas) Generation() uint64 { return a.generation }

// View returns the texture view bound by the atlas bind group.
func (a *Atlas) View() hal.TextureView { return a.view }

// format maps the content type onto a texture format.
func (a *Atlas) format() gputypes.TextureFormat {
	if a.content == ContentTypeColor {
		return gputypes.TextureFormatRGBA8Unorm
	}
	return gputypes.TextureFormatR8Unorm
}

// createTexture allocates the GPU texture and view for the current
// dimensions.
func (a *Atlas) createTexture(device hal.Device) error {
	label := fmt.Sprintf("glyphatlas_%s_%d", a.content, a.id)

	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label: label,
		Size: hal.Extent3D{
			Width:              uint32(a.width),
			Height:             uint32(a.height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        a.format(),
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create %s atlas texture: %w", a.content, err)
	}

	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         label + "_view",
		Format:        a.format(),
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		device.DestroyTexture(tex)
		return fmt.Errorf("create %s atlas texture view: %w", a.content, err)
	}

	a.texture = tex
	a.view = view
	return nil
}

// writeBitmap copies bitmap rows into the pending pixel buffer at rect
// and extends the dirty region. The rect must come from this atlas's
// packer and match the bitmap dimensions.
func (a *Atlas) writeBitmap(rect Rect, bmp *Bitmap) error {
	ch := a.content.channels()
	if len(bmp.Pixels) < bmp.Width*bmp.Height*ch {
		return ErrBitmapSizeMismatch
	}

	rowLen := bmp.Width * ch
	for row := 0; row < bmp.Height; row++ {
		dst := ((rect.Y+row)*a.width + rect.X) * ch
		src := row * rowLen
		copy(a.pending[dst:dst+rowLen], bmp.Pixels[src:src+rowLen])
	}

	a.markDirty(rect)
	return nil
}

// markDirty unions rect into the pending upload region.
func (a *Atlas) markDirty(rect Rect) {
	if !a.hasDirty {
		a.dirty = rect
		a.hasDirty = true
		return
	}
	x0 := min(a.dirty.X, rect.X)
	y0 := min(a.dirty.Y, rect.Y)
	x1 := max(a.dirty.X+a.dirty.W, rect.X+rect.W)
	y1 := max(a.dirty.Y+a.dirty.H, rect.Y+rect.H)
	a.dirty = Rect{X: x0, Y: y0, W: x1 - x0, H: y1 - y0}
}

// flush uploads the dirty sub-region, if any, to the GPU texture.
func (a *Atlas) flush(queue hal.Queue) {
	if !a.hasDirty {
		return
	}
	ch := a.content.channels()
	d := a.dirty

	// Pack the dirty rows into a contiguous buffer for the copy.
	data := make([]byte, d.W*d.H*ch)
	rowLen := d.W * ch
	for row := 0; row < d.H; row++ {
		src := ((d.Y+row)*a.width + d.X) * ch
		copy(data[row*rowLen:(row+1)*rowLen], a.pending[src:src+rowLen])
	}

	queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  a.texture,
			MipLevel: 0,
			Origin:   hal.Origin3D{X: uint32(d.X), Y: uint32(d.Y), Z: 0},
			Aspect:   gputypes.TextureAspectAll,
		},
		data,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  uint32(rowLen),
			RowsPerImage: uint32(d.H),
		},
		&hal.Extent3D{Width: uint32(d.W), Height: uint32(d.H), DepthOrArrayLayers: 1},
	)

	Logger().Debug("atlas flush",
		"atlas", a.id, "content", a.content.String(), "region", d.String())

	a.hasDirty = false
}

// copyRegion copies a rect of pixels from another pending buffer laid
// out at srcWidth into this atlas at dst. Used during repack.
func (a *Atlas) copyRegion(src []byte, srcWidth int, from, to Rect) {
	ch := a.content.channels()
	rowLen := from.W * ch
	for row := 0; row < from.H; row++ {
		s := ((from.Y+row)*srcWidth + from.X) * ch
		d := ((to.Y+row)*a.width + to.X) * ch
		copy(a.pending[d:d+rowLen], src[s:s+rowLen])
	}
}

// destroy releases the GPU texture and view.
func (a *Atlas) destroy(device hal.Device) {
	if a.view != nil {
		device.DestroyTextureView(a.view)
		a.view = nil
	}
	if a.texture != nil {
		device.DestroyTexture(a.texture)
		a.texture = nil
	}
}
