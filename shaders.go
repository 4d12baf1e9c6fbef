package glyphatlas

import _ "embed"

// Embedded glyph quad shader source.
//
//go:embed shaders/glyph.wgsl
var glyphShaderSource string
