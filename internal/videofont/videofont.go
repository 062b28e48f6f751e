// Package videofont builds packed 1-bit-per-pixel BIOS font bitmaps
// (8 pixels wide, 8/14/16 pixels tall) for the GPU's character
// rasterizer.
//
// Grounded on tools/font2rgba.go's approach to turning a rendered
// glyph image into raw addressable pixel data, adapted from that
// tool's one-off PNG-to-RGBA extraction (which read a font image from
// a hardcoded path on the original author's machine) into a
// self-contained build that rasterizes golang.org/x/image/font's
// basicfont face and rescales it with golang.org/x/image/draw instead
// of depending on any external asset file.
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later
package videofont

import (
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Build returns a packed font table for height glyphs (8, 14, or 16
// pixels tall, 8 pixels wide) covering count code points starting at 0,
// one row per scanline, one byte per row (bit 7 = leftmost pixel),
// matching the row-major layout video_vga.go-style BIOS font blobs use.
func Build(height, count int) []byte {
	out := make([]byte, count*height)
	for ch := 0; ch < count; ch++ {
		glyph := rasterize(byte(ch), height)
		copy(out[ch*height:(ch+1)*height], glyph)
	}
	return out
}

// rasterize draws one code point through basicfont.Face7x13 into a
// small canvas, then rescales it to 8xheight with x/image/draw and
// thresholds the result back to a packed 1bpp row set. Control
// characters and glyphs the basic face doesn't cover render as blank.
func rasterize(ch byte, height int) []byte {
	rowBytes := 1
	out := make([]byte, height*rowBytes)
	if ch < 0x20 || ch > 0x7E {
		return out
	}

	face := basicfont.Face7x13
	srcW, srcH := 7, 13
	src := image.NewGray(image.Rect(0, 0, srcW, srcH))
	d := &font.Drawer{
		Dst:  src,
		Src:  image.NewUniform(color.White),
		Face: face,
		Dot:  fixed.P(0, 11),
	}
	d.DrawString(string(rune(ch)))

	dst := image.NewGray(image.Rect(0, 0, 8, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Over, nil)

	for y := 0; y < height; y++ {
		var row byte
		for x := 0; x < 8; x++ {
			if dst.GrayAt(x, y).Y > 96 {
				row |= 0x80 >> uint(x)
			}
		}
		out[y] = row
	}
	return out
}
