// Command glyphdemo shapes and rasterizes a line of text on the CPU
// and writes the composited result as a PNG. It exercises the shaping
// and rasterization stages without requiring a GPU device.
package main

import (
	"flag"
	"image"
	"image/color"
	"image/png"
	"log"
	"os"

	"golang.org/x/image/font/gofont/goregular"

	"github.com/gogpu/glyphatlas"
	"github.com/gogpu/glyphatlas/raster"
	"github.com/gogpu/glyphatlas/shape"
)

const demoFont = glyphatlas.FontID(1)

func main() {
	var (
		text   = flag.String("text", "Hello, glyph atlas!", "text to render")
		size   = flag.Float64("size", 48, "font size in pixels")
		output = flag.String("output", "demo.png", "output file")
		hinted = flag.Bool("hinted", false, "grid-fit outlines")
	)
	flag.Parse()

	shaper := shape.NewShaper()
	if err := shaper.AddFont(demoFont, goregular.TTF); err != nil {
		log.Fatalf("Failed to load font: %v", err)
	}

	rast := raster.NewOpenType()
	if err := rast.AddFont(demoFont, goregular.TTF); err != nil {
		log.Fatalf("Failed to load font: %v", err)
	}

	opts := shape.Options{
		Size:  float32(*size),
		Color: glyphatlas.Color{R: 20, G: 20, B: 20, A: 255},
	}
	if *hinted {
		opts.Hinted = true
	}

	margin := int(*size / 2)
	baseline := margin + int(*size)
	placements, advance, err := shaper.ShapeLine(*text, demoFont, margin, baseline, opts)
	if err != nil {
		log.Fatalf("Failed to shape text: %v", err)
	}

	width := margin*2 + int(advance) + 1
	height := baseline + margin
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	fill(img, color.RGBA{255, 255, 255, 255})

	drawn := 0
	for _, p := range placements {
		bm, err := rast.Rasterize(p.Key)
		if err != nil {
			log.Fatalf("Failed to rasterize glyph %d: %v", p.Key.Glyph, err)
		}
		if bm.Empty() {
			continue
		}
		blitMask(img, bm, p)
		drawn++
	}

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("Failed to create output: %v", err)
	}
	if err := png.Encode(f, img); err != nil {
		log.Fatalf("Failed to encode PNG: %v", err)
	}
	if err := f.Close(); err != nil {
		log.Fatalf("Failed to close output: %v", err)
	}

	log.Printf("Rendered %d glyphs (%d placed) to %s (%dx%d)\n",
		len(placements), drawn, *output, width, height)
}

func fill(img *image.RGBA, c color.RGBA) {
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

// blitMask alpha-blends a coverage bitmap tinted with the placement
// color onto img at the glyph's position.
func blitMask(img *image.RGBA, bm *glyphatlas.Bitmap, p glyphatlas.Placement) {
	origin := image.Pt(p.X+bm.Left, p.Y-bm.Top)
	for row := 0; row < bm.Height; row++ {
		for col := 0; col < bm.Width; col++ {
			cov := bm.Pixels[row*bm.Width+col]
			if cov == 0 {
				continue
			}
			x, y := origin.X+col, origin.Y+row
			if !image.Pt(x, y).In(img.Bounds()) {
				continue
			}
			dst := img.RGBAAt(x, y)
			a := uint32(cov) * uint32(p.Color.A) / 255
			img.SetRGBA(x, y, color.RGBA{
				R: blend(dst.R, p.Color.R, a),
				G: blend(dst.G, p.Color.G, a),
				B: blend(dst.B, p.Color.B, a),
				A: 255,
			})
		}
	}
}

func blend(dst, src uint8, alpha uint32) uint8 {
	return uint8((uint32(src)*alpha + uint32(dst)*(255-alpha)) / 255)
}
