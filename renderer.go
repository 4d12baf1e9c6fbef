// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package glyphatlas

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Config holds renderer configuration.
type Config struct {
	// InitialAtlasSize is the starting edge length of each atlas
	// texture. Atlases grow by doubling on demand.
	// Default: 256
	InitialAtlasSize int

	// MaxTextureSize caps atlas growth, matching the device's 2D
	// texture limit.
	// Default: 8192
	MaxTextureSize int

	// InFlightFrames is how many submitted frames may still be
	// executing. Freed atlas space and replaced textures are held
	// back this many frames before reuse or destruction.
	// Default: 1
	InFlightFrames int

	// RasterCacheSize is the soft limit on memoized glyph bitmaps.
	// 0 keeps every bitmap.
	// Default: 512
	RasterCacheSize int

	// TargetFormat is the color format of the render target glyphs
	// are drawn into.
	// Default: BGRA8Unorm
	TargetFormat gputypes.TextureFormat

	// SampleCount is the multisample count of the render target.
	// Default: 1
	SampleCount uint32

	// DepthStencil, when set, is applied to the render pipeline so
	// glyphs can participate in a pass with a depth/stencil
	// attachment.
	DepthStencil *hal.DepthStencilState

	// GammaCorrect converts instance colors from sRGB to linear in
	// the shader, for linear-format render targets.
	GammaCorrect bool

	// PrecompileSPIRV compiles the glyph shader to SPIR-V on the CPU
	// instead of handing WGSL source to the backend.
	PrecompileSPIRV bool
}

// DefaultConfig returns the default renderer configuration.
func DefaultConfig() Config {
	return Config{
		InitialAtlasSize: 256,
		MaxTextureSize:   8192,
		InFlightFrames:   1,
		RasterCacheSize:  512,
		TargetFormat:     gputypes.TextureFormatBGRA8Unorm,
		SampleCount:      1,
	}
}

// maxPrepareAttempts bounds re-batching after mid-prepare atlas
// growth. Growth doubles a dimension each time, so the true bound is
// log2(MaxTextureSize/InitialAtlasSize) per axis.
const maxPrepareAttempts = 16

// retiredBuffer is a GPU buffer replaced mid-stream, destroyed once
// the in-flight margin has passed.
type retiredBuffer struct {
	buf   hal.Buffer
	frame uint64
}

type retiredBindGroup struct {
	bg    hal.BindGroup
	frame uint64
}

// Renderer draws positioned glyph runs into a caller-owned render
// pass. Prepare rasterizes, caches, and batches the glyphs for a
// frame; Render records the draw commands. The renderer owns no
// render target and issues no submits of its own.
//
// All methods must be called from a single goroutine.
type Renderer struct {
	device hal.Device
	queue  hal.Queue
	cfg    Config

	alloc     *AtlasAllocator
	index     *GlyphIndex
	raster    *RasterCache
	batcher   *Batcher
	pipelines *PipelineCache
	viewport  *Viewport

	frame uint64

	vertexBuf hal.Buffer
	vertexCap int

	bindGroup hal.BindGroup
	bindEpoch uint64
	boundOnce bool

	pipeline hal.RenderPipeline
	groups   []DrawGroup

	prepared    bool
	preparedRes Resolution
	inUse       map[CacheKey]struct{}

	retiredBufs []retiredBuffer
	retiredBGs  []retiredBindGroup
}

// NewRenderer creates a glyph renderer. The rasterizer supplies
// bitmaps for cache keys; see the shape and raster packages for
// implementations backed by real font files.
func NewRenderer(device hal.Device, queue hal.Queue, rasterizer Rasterizer, cfg Config) (*Renderer, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	if rasterizer == nil {
		return nil, ErrNilRasterizer
	}
	def := DefaultConfig()
	if cfg.InitialAtlasSize <= 0 {
		cfg.InitialAtlasSize = def.InitialAtlasSize
	}
	if cfg.MaxTextureSize <= 0 {
		cfg.MaxTextureSize = def.MaxTextureSize
	}
	if cfg.InFlightFrames <= 0 {
		cfg.InFlightFrames = def.InFlightFrames
	}
	if cfg.RasterCacheSize < 0 {
		cfg.RasterCacheSize = def.RasterCacheSize
	}
	if cfg.TargetFormat == 0 {
		cfg.TargetFormat = def.TargetFormat
	}
	if cfg.SampleCount == 0 {
		cfg.SampleCount = def.SampleCount
	}

	alloc, err := NewAtlasAllocator(device, queue, cfg.InitialAtlasSize, cfg.MaxTextureSize, cfg.InFlightFrames)
	if err != nil {
		return nil, err
	}
	pipelines, err := NewPipelineCache(device, cfg.DepthStencil, cfg.PrecompileSPIRV)
	if err != nil {
		alloc.Destroy()
		return nil, err
	}
	viewport, err := NewViewport(device, queue)
	if err != nil {
		pipelines.Destroy()
		alloc.Destroy()
		return nil, err
	}

	return &Renderer{
		device:    device,
		queue:     queue,
		cfg:       cfg,
		alloc:     alloc,
		index:     NewGlyphIndex(),
		raster:    NewRasterCache(rasterizer, cfg.RasterCacheSize),
		batcher:   NewBatcher(),
		pipelines: pipelines,
		viewport:  viewport,
		inUse:     make(map[CacheKey]struct{}),
	}, nil
}

// Prepare rasterizes, caches, and batches the given placements for
// the frame, uploading dirty atlas regions and the instance buffer.
// Glyphs that cannot be placed this frame (rasterization failure,
// oversized bitmap, exhausted atlas) are dropped and retried on the
// next frame; only device resource failures are returned.
func (r *Renderer) Prepare(res Resolution, placements []Placement) error {
	r.frame++
	r.prepared = false
	r.alloc.BeginFrame(r.frame)
	r.reclaimRetired()
	r.viewport.Update(res)

	// Atlas growth mid-batch invalidates already encoded texel rects,
	// so the whole placement pass restarts when a generation moved.
	// Reruns are cheap: the raster cache and index absorb the rework.
	for attempt := 0; ; attempt++ {
		if attempt == maxPrepareAttempts {
			return ErrAtlasFull
		}
		epoch := r.alloc.genEpoch
		if err := r.placeAll(placements); err != nil {
			return err
		}
		if r.alloc.genEpoch == epoch {
			break
		}
		Logger().Debug("atlas changed during prepare, rebatching", "attempt", attempt)
	}

	r.alloc.Flush()

	data, groups := r.batcher.Finish(func(id AtlasID) ContentType {
		return r.alloc.atlas(id).content
	})
	r.groups = groups
	if len(data) > 0 {
		if err := r.uploadInstances(data); err != nil {
			return err
		}
	}
	if err := r.ensureBindGroup(); err != nil {
		return err
	}

	pipeline, err := r.pipelines.Get(r.cfg.TargetFormat, r.cfg.SampleCount, r.cfg.DepthStencil != nil)
	if err != nil {
		return err
	}
	r.pipeline = pipeline

	r.preparedRes = res
	r.prepared = true
	return nil
}

// placeAll runs one batching pass over the placements. Glyphs that
// cannot be drawn this frame (rasterization failure, larger than the
// maximum atlas, exhausted atlas) are skipped.
func (r *Renderer) placeAll(placements []Placement) error {
	r.batcher.Reset()
	clear(r.inUse)

	for _, p := range placements {
		e, ok := r.index.Lookup(p.Key, r.frame, r.alloc)
		if !ok {
			bmp, err := r.raster.Get(p.Key)
			if err != nil {
				continue
			}
			if bmp == nil {
				e = r.index.InsertEmpty(p.Key, ContentTypeMask, r.frame)
				r.inUse[p.Key] = struct{}{}
				continue
			}

			loc, err := r.alloc.Allocate(bmp.Content, bmp.Width, bmp.Height, r.frame, r.index)
			if err != nil {
				if errors.Is(err, ErrGlyphTooLarge) {
					Logger().Warn("glyph exceeds maximum atlas size",
						"font", p.Key.Font, "glyph", p.Key.Glyph,
						"width", bmp.Width, "height", bmp.Height)
					continue
				}
				if errors.Is(err, ErrAtlasExhausted) {
					// Atlas at the size cap with everything pinned by
					// this frame. Drop the glyph; next frame's eviction
					// pass frees space and retries it.
					Logger().Warn("atlas exhausted, dropping glyph for this frame",
						"font", p.Key.Font, "glyph", p.Key.Glyph)
					continue
				}
				return err
			}
			a := r.alloc.atlas(loc.Atlas)
			if err := a.writeBitmap(loc.Rect, bmp); err != nil {
				return err
			}
			e = r.index.Insert(p.Key, bmp.Content, loc, bmp, r.frame)
		}

		r.inUse[p.Key] = struct{}{}
		if e.Empty {
			continue
		}

		r.batcher.Add(e.Loc.Atlas, Instance{
			X:       int32(p.X + e.Left),
			Y:       int32(p.Y - e.Top),
			Width:   uint16(e.Width),
			Height:  uint16(e.Height),
			U:       uint16(e.Loc.Rect.X),
			V:       uint16(e.Loc.Rect.Y),
			Color:   p.Color,
			Content: e.Content,
			SRGB:    r.cfg.GammaCorrect,
			Depth:   p.Depth,
		})
	}
	return nil
}

// uploadInstances writes the encoded instance data, growing the
// vertex buffer by doubling. A replaced buffer may back in-flight
// draws and is destroyed after the margin.
func (r *Renderer) uploadInstances(data []byte) error {
	if r.vertexBuf == nil || r.vertexCap < len(data) {
		if r.vertexBuf != nil {
			r.retiredBufs = append(r.retiredBufs, retiredBuffer{buf: r.vertexBuf, frame: r.frame})
			r.vertexBuf = nil
		}
		capBytes := max(r.vertexCap, 64*instanceStride)
		for capBytes < len(data) {
			capBytes *= 2
		}
		buf, err := r.device.CreateBuffer(&hal.BufferDescriptor{
			Label: "glyphatlas_instances",
			Size:  uint64(capBytes),
			Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return fmt.Errorf("create instance buffer: %w", err)
		}
		r.vertexBuf = buf
		r.vertexCap = capBytes
	}
	r.queue.WriteBuffer(r.vertexBuf, 0, data)
	return nil
}

// ensureBindGroup recreates the atlas bind group when an atlas
// texture was replaced since the last one was built.
func (r *Renderer) ensureBindGroup() error {
	if r.boundOnce && r.bindEpoch == r.alloc.genEpoch {
		return nil
	}
	if r.bindGroup != nil {
		r.retiredBGs = append(r.retiredBGs, retiredBindGroup{bg: r.bindGroup, frame: r.frame})
		r.bindGroup = nil
	}
	bg, err := r.pipelines.CreateBindGroup(
		r.viewport.Buffer(),
		r.alloc.atlasFor(ContentTypeColor).View(),
		r.alloc.atlasFor(ContentTypeMask).View(),
	)
	if err != nil {
		return err
	}
	r.bindGroup = bg
	r.bindEpoch = r.alloc.genEpoch
	r.boundOnce = true
	return nil
}

// reclaimRetired destroys buffers and bind groups whose in-flight
// margin has elapsed.
func (r *Renderer) reclaimRetired() {
	margin := uint64(r.cfg.InFlightFrames)
	keptBufs := r.retiredBufs[:0]
	for _, rb := range r.retiredBufs {
		if rb.frame+margin <= r.frame {
			r.device.DestroyBuffer(rb.buf)
			continue
		}
		keptBufs = append(keptBufs, rb)
	}
	r.retiredBufs = keptBufs

	keptBGs := r.retiredBGs[:0]
	for _, rg := range r.retiredBGs {
		if rg.frame+margin <= r.frame {
			r.device.DestroyBindGroup(rg.bg)
			continue
		}
		keptBGs = append(keptBGs, rg)
	}
	r.retiredBGs = keptBGs
}

// Render records draw commands for the last prepared frame into a
// caller-owned render pass. It validates that every prepared glyph is
// still resident (ErrRemovedFromAtlas) and that the viewport still
// matches (ErrScreenResolutionChanged); both indicate a missing
// Prepare call between frames.
func (r *Renderer) Render(rp hal.RenderPassEncoder) error {
	if !r.prepared || len(r.groups) == 0 {
		return nil
	}
	if r.viewport.Resolution() != r.preparedRes {
		return ErrScreenResolutionChanged
	}
	for key := range r.inUse {
		if !r.index.Contains(key, r.alloc) {
			return ErrRemovedFromAtlas
		}
	}

	rp.SetPipeline(r.pipeline)
	rp.SetBindGroup(0, r.bindGroup, nil)
	rp.SetVertexBuffer(0, r.vertexBuf, 0)
	for _, g := range r.groups {
		rp.Draw(4, uint32(g.Count), 0, uint32(g.First))
	}
	return nil
}

// TrimAtlas repacks the atlases down to the smallest size holding
// their live entries and drops empty-glyph records. Call it after a
// large content change, then Prepare before the next Render.
func (r *Renderer) TrimAtlas() error {
	r.prepared = false
	return r.alloc.Trim(r.index)
}

// Viewport returns the renderer's viewport. Callers sharing the
// params buffer across renderers may update it directly; Prepare
// updates it as well, and Render rejects a mismatch with
// ErrScreenResolutionChanged.
func (r *Renderer) Viewport() *Viewport { return r.viewport }

// RasterStats reports raster cache hits and misses.
func (r *Renderer) RasterStats() (hits, misses uint64) {
	return r.raster.Stats()
}

// Destroy releases every GPU resource owned by the renderer.
func (r *Renderer) Destroy() {
	for _, rb := range r.retiredBufs {
		r.device.DestroyBuffer(rb.buf)
	}
	r.retiredBufs = nil
	for _, rg := range r.retiredBGs {
		r.device.DestroyBindGroup(rg.bg)
	}
	r.retiredBGs = nil
	if r.bindGroup != nil {
		r.device.DestroyBindGroup(r.bindGroup)
		r.bindGroup = nil
	}
	if r.vertexBuf != nil {
		r.device.DestroyBuffer(r.vertexBuf)
		r.vertexBuf = nil
	}
	r.viewport.Destroy()
	r.pipelines.Destroy()
	r.alloc.Destroy()
}
