package render

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

// PixelBuffer is the renderer's output: a grayscale image (0 = black, 255 = white)
// plus an optional mask of pixels that should be printed in red.
type PixelBuffer struct {
	Gray *image.Gray
	// Red is nil when the content has no red parts. Non-zero alpha marks red ink.
	Red *image.Alpha
}

// NewPixelBuffer returns a white buffer of the given size.
func NewPixelBuffer(w, h int) *PixelBuffer {
	g := image.NewGray(image.Rect(0, 0, w, h))
	for i := range g.Pix {
		g.Pix[i] = 0xff
	}
	return &PixelBuffer{Gray: g}
}

func (b *PixelBuffer) Width() int  { return b.Gray.Rect.Dx() }
func (b *PixelBuffer) Height() int { return b.Gray.Rect.Dy() }

// IsRed reports whether (x, y) is marked for red ink.
func (b *PixelBuffer) IsRed(x, y int) bool {
	if b.Red == nil {
		return false
	}
	return b.Red.AlphaAt(x, y).A != 0
}

func (b *PixelBuffer) redMask() *image.Alpha {
	if b.Red == nil {
		b.Red = image.NewAlpha(b.Gray.Rect)
	}
	return b.Red
}

// Paste copies src into b with its top-left corner at (x, y), clipping to b.
func (b *PixelBuffer) Paste(src *PixelBuffer, x, y int) {
	r := image.Rect(x, y, x+src.Width(), y+src.Height())
	draw.Draw(b.Gray, r, src.Gray, src.Gray.Rect.Min, draw.Src)
	if src.Red != nil {
		draw.Draw(b.redMask(), r, src.Red, src.Red.Rect.Min, draw.Src)
	}
}

// rotateBuffer rotates clockwise by deg (0, 90, 180 or 270).
func rotateBuffer(b *PixelBuffer, deg int) *PixelBuffer {
	if deg%360 == 0 {
		return b
	}
	out := &PixelBuffer{Gray: toGray(rotateImage(b.Gray, deg))}
	if b.Red != nil {
		out.Red = toAlpha(rotateImage(b.Red, deg))
	}
	return out
}

// rotateImage rotates clockwise; imaging rotates counter-clockwise.
func rotateImage(img image.Image, deg int) image.Image {
	switch deg % 360 {
	case 90:
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	default:
		return img
	}
}

func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	g := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(g, g.Rect, img, b.Min, draw.Src)
	return g
}

func toAlpha(img image.Image) *image.Alpha {
	b := img.Bounds()
	a := image.NewAlpha(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(a, a.Rect, img, b.Min, draw.Src)
	return a
}

// flattenOnWhite composites img over an opaque white background.
func flattenOnWhite(img image.Image) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Rect, image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(out, out.Rect, img, b.Min, draw.Over)
	return out
}
