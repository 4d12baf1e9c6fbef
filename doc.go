// Package glyphatlas renders pre-shaped glyph runs on the GPU by caching
// rasterized glyph bitmaps in shared texture atlases and batching them
// into instanced draws recorded into a caller-owned render pass.
//
// The package is middleware: it owns no render target, window, or swap
// chain. The caller supplies a hal.Device and hal.Queue at construction
// time and a hal.RenderPassEncoder at draw time. Text shaping and glyph
// rasterization are external collaborators as well: shaping output
// enters as a sequence of [Placement] values (the shape subpackage
// produces them from go-text/typesetting), and bitmaps are produced by
// any [Rasterizer] implementation (the raster subpackage provides two).
//
// Typical frame loop:
//
//	renderer, _ := glyphatlas.NewRenderer(device, queue, rasterizer, glyphatlas.DefaultConfig())
//	...
//	err := renderer.Prepare(glyphatlas.Resolution{Width: w, Height: h}, placements)
//	...
//	// inside the application's render pass:
//	err = renderer.Render(pass)
//
// Prepare mutates all atlas and cache state; Render only reads buffers
// built by the preceding Prepare, so submission of frame N may overlap
// preparation of frame N+1 as long as each phase stays on one goroutine.
package glyphatlas
