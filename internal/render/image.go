package render

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"
	"github.com/makeworld-the-better-one/dither/v2"
	"github.com/nantokaworks/ql-label-printer/internal/labels"
)

// renderImage rotates img, scales it to the printable area and binarises it per mode.
func renderImage(im Image, p labels.LabelProfile, rotate int) *PixelBuffer {
	src := rotateImage(im.Img, rotate)
	b := src.Bounds()
	w, h := p.Width, 0
	if !p.Endless() {
		// 縦横比を保ったまま印字範囲に収める
		scale := min(float64(p.Width)/float64(b.Dx()), float64(p.Height)/float64(b.Dy()))
		w = max(1, int(float64(b.Dx())*scale))
		h = max(1, int(float64(b.Dy())*scale))
	}
	scaled := flattenOnWhite(imaging.Resize(src, w, h, imaging.Lanczos))

	switch im.Mode {
	case ImageModeThreshold:
		return &PixelBuffer{Gray: thresholdGray(toGray(scaled), DefaultThreshold)}
	case ImageModeDither:
		d := dither.NewDitherer([]color.Color{color.Black, color.White})
		d.Matrix = dither.FloydSteinberg
		return &PixelBuffer{Gray: toGray(d.DitherPaletted(scaled))}
	default:
		return separateRed(scaled)
	}
}

// thresholdGray maps every pixel to pure black or white.
func thresholdGray(g *image.Gray, threshold float64) *image.Gray {
	for i, v := range g.Pix {
		if float64(v)*100/255 <= threshold {
			g.Pix[i] = 0
		} else {
			g.Pix[i] = 0xff
		}
	}
	return g
}

// isRedPixel picks saturated reds the way two-colour drivers do: red clearly
// dominating green and blue.
func isRedPixel(r, g, b uint8) bool {
	return r >= 128 && int(r)-int(g) >= 64 && int(r)-int(b) >= 64
}

// separateRed converts to gray and marks red pixels in the red mask. Red
// pixels are forced to full ink so the raster keeps them.
func separateRed(img *image.NRGBA) *PixelBuffer {
	buf := &PixelBuffer{Gray: toGray(img)}
	bounds := img.Rect
	for y := 0; y < bounds.Dy(); y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < bounds.Dx(); x++ {
			px := row[x*4 : x*4+4]
			if !isRedPixel(px[0], px[1], px[2]) {
				continue
			}
			buf.redMask().SetAlpha(x, y, color.Alpha{A: 0xff})
			buf.Gray.SetGray(x, y, color.Gray{Y: 0})
		}
	}
	return buf
}
