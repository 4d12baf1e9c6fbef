// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package glyphatlas

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"
)

// paramsUniformSize is the byte size of the Params uniform:
// screen_resolution (vec2<u32>) = 8 bytes + padding = 16 bytes.
const paramsUniformSize = 16

// pipelineKey identifies one render pipeline variant.
type pipelineKey struct {
	format       gputypes.TextureFormat
	depthStencil bool
	sampleCount  uint32
}

// PipelineCache owns the shader module, bind group layout, sampler,
// and the render pipeline variants for glyph drawing. A variant is
// created lazily per target format, multisample count, and
// depth/stencil participation, then reused across frames.
type PipelineCache struct {
	device hal.Device

	shader      hal.ShaderModule
	atlasLayout hal.BindGroupLayout
	pipeLayout  hal.PipelineLayout
	sampler     hal.Sampler

	depthStencil *hal.DepthStencilState

	pipelines map[pipelineKey]hal.RenderPipeline
}

// NewPipelineCache compiles the glyph shader and creates the shared
// bind group layout and sampler. When precompile is set the WGSL is
// compiled to SPIR-V up front instead of being handed to the backend
// as source. The depthStencil state, when non-nil, is applied to
// variants requested with depth/stencil enabled.
func NewPipelineCache(device hal.Device, depthStencil *hal.DepthStencilState, precompile bool) (*PipelineCache, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	pc := &PipelineCache{
		device:       device,
		depthStencil: depthStencil,
		pipelines:    make(map[pipelineKey]hal.RenderPipeline),
	}

	shader, err := pc.createShader(precompile)
	if err != nil {
		return nil, err
	}
	pc.shader = shader

	// Bind group layout:
	//   Binding 0: Params (uniform buffer, vertex)
	//   Binding 1: color atlas texture (fragment reads, vertex for dimensions)
	//   Binding 2: mask atlas texture (fragment reads, vertex for dimensions)
	//   Binding 3: sampler (fragment)
	atlasLayout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "glyphatlas_bind_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageVertex,
				Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			{
				Binding:    2,
				Visibility: gputypes.ShaderStageVertex | gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2D,
				},
			},
			{
				Binding:    3,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		pc.Destroy()
		return nil, fmt.Errorf("create glyph bind layout: %w", err)
	}
	pc.atlasLayout = atlasLayout

	pipeLayout, err := device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "glyphatlas_pipe_layout",
		BindGroupLayouts: []hal.BindGroupLayout{pc.atlasLayout},
	})
	if err != nil {
		pc.Destroy()
		return nil, fmt.Errorf("create glyph pipeline layout: %w", err)
	}
	pc.pipeLayout = pipeLayout

	// Nearest filtering keeps glyph edges exact at integer placement.
	sampler, err := device.CreateSampler(&hal.SamplerDescriptor{
		Label:        "glyphatlas_sampler",
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    gputypes.FilterModeNearest,
		MinFilter:    gputypes.FilterModeNearest,
		MipmapFilter: gputypes.FilterModeNearest,
	})
	if err != nil {
		pc.Destroy()
		return nil, fmt.Errorf("create glyph sampler: %w", err)
	}
	pc.sampler = sampler

	return pc, nil
}

// createShader builds the shader module, optionally precompiling the
// WGSL to SPIR-V for backends without a WGSL front end.
func (pc *PipelineCache) createShader(precompile bool) (hal.ShaderModule, error) {
	if glyphShaderSource == "" {
		return nil, fmt.Errorf("glyphatlas: glyph shader source is empty")
	}
	if !precompile {
		shader, err := pc.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
			Label:  "glyphatlas_shader",
			Source: hal.ShaderSource{WGSL: glyphShaderSource},
		})
		if err != nil {
			return nil, fmt.Errorf("compile glyph shader: %w", err)
		}
		return shader, nil
	}

	spirvBytes, err := naga.Compile(glyphShaderSource)
	if err != nil {
		return nil, fmt.Errorf("compile glyph shader to SPIR-V: %w", err)
	}
	// SPIR-V is little-endian 32-bit words.
	spirvCode := make([]uint32, len(spirvBytes)/4)
	for i := range spirvCode {
		spirvCode[i] = uint32(spirvBytes[i*4]) |
			uint32(spirvBytes[i*4+1])<<8 |
			uint32(spirvBytes[i*4+2])<<16 |
			uint32(spirvBytes[i*4+3])<<24
	}
	shader, err := pc.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "glyphatlas_shader",
		Source: hal.ShaderSource{SPIRV: spirvCode},
	})
	if err != nil {
		return nil, fmt.Errorf("create glyph shader module: %w", err)
	}
	return shader, nil
}

// Get returns the pipeline variant for the given color target format,
// sample count, and depth/stencil participation, creating it on first
// use.
func (pc *PipelineCache) Get(format gputypes.TextureFormat, sampleCount uint32, withDepthStencil bool) (hal.RenderPipeline, error) {
	if sampleCount == 0 {
		sampleCount = 1
	}
	key := pipelineKey{format: format, depthStencil: withDepthStencil, sampleCount: sampleCount}
	if p, ok := pc.pipelines[key]; ok {
		return p, nil
	}

	var ds *hal.DepthStencilState
	if withDepthStencil {
		ds = pc.depthStencil
	}

	premulBlend := gputypes.BlendStatePremultiplied()
	pipeline, err := pc.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  fmt.Sprintf("glyphatlas_pipeline_%d", format),
		Layout: pc.pipeLayout,
		Vertex: hal.VertexState{
			Module:     pc.shader,
			EntryPoint: "vs_main",
			Buffers:    glyphVertexLayout(),
		},
		Fragment: &hal.FragmentState{
			Module:     pc.shader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{
				{
					Format:    format,
					Blend:     &premulBlend,
					WriteMask: gputypes.ColorWriteMaskAll,
				},
			},
		},
		DepthStencil: ds,
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleStrip,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: sampleCount,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create glyph pipeline: %w", err)
	}
	pc.pipelines[key] = pipeline
	return pipeline, nil
}

// CreateBindGroup builds the bind group tying the params buffer and
// the two atlas views to the shared layout. The caller owns the
// result and must recreate it whenever an atlas texture is replaced.
func (pc *PipelineCache) CreateBindGroup(params hal.Buffer, colorView, maskView hal.TextureView) (hal.BindGroup, error) {
	bg, err := pc.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:  "glyphatlas_bind",
		Layout: pc.atlasLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.BufferBinding{
				Buffer: params.NativeHandle(), Offset: 0, Size: paramsUniformSize,
			}},
			{Binding: 1, Resource: gputypes.TextureViewBinding{
				TextureView: colorView.NativeHandle(),
			}},
			{Binding: 2, Resource: gputypes.TextureViewBinding{
				TextureView: maskView.NativeHandle(),
			}},
			{Binding: 3, Resource: gputypes.SamplerBinding{
				Sampler: pc.sampler.NativeHandle(),
			}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create glyph bind group: %w", err)
	}
	return bg, nil
}

// Destroy releases all pipeline resources in reverse creation order.
// Safe to call multiple times.
func (pc *PipelineCache) Destroy() {
	if pc.device == nil {
		return
	}
	for key, p := range pc.pipelines {
		pc.device.DestroyRenderPipeline(p)
		delete(pc.pipelines, key)
	}
	if pc.sampler != nil {
		pc.device.DestroySampler(pc.sampler)
		pc.sampler = nil
	}
	if pc.pipeLayout != nil {
		pc.device.DestroyPipelineLayout(pc.pipeLayout)
		pc.pipeLayout = nil
	}
	if pc.atlasLayout != nil {
		pc.device.DestroyBindGroupLayout(pc.atlasLayout)
		pc.atlasLayout = nil
	}
	if pc.shader != nil {
		pc.device.DestroyShaderModule(pc.shader)
		pc.shader = nil
	}
}

// glyphVertexLayout returns the per-instance vertex layout matching
// VertexInput in glyph.wgsl. The quad corners come from vertex_index,
// so the single buffer advances per instance.
func glyphVertexLayout() []gputypes.VertexBufferLayout {
	return []gputypes.VertexBufferLayout{
		{
			ArrayStride: instanceStride,
			StepMode:    gputypes.VertexStepModeInstance,
			Attributes: []gputypes.VertexAttribute{
				{Format: gputypes.VertexFormatSint32x2, Offset: 0, ShaderLocation: 0}, // pos
				{Format: gputypes.VertexFormatUint32, Offset: 8, ShaderLocation: 1},   // dim
				{Format: gputypes.VertexFormatUint32, Offset: 12, ShaderLocation: 2},  // uv origin
				{Format: gputypes.VertexFormatUint32, Offset: 16, ShaderLocation: 3},  // color
				{Format: gputypes.VertexFormatUint32, Offset: 20, ShaderLocation: 4},  // content type + srgb
				{Format: gputypes.VertexFormatFloat32, Offset: 24, ShaderLocation: 5}, // depth
			},
		},
	}
}
