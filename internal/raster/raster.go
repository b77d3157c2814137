// Package raster converts rendered pixel buffers into the 1-bit planes a label printer consumes.
package raster

import (
	"image"
	"image/color"

	"github.com/nantokaworks/ql-label-printer/internal/apperr"
	"github.com/nantokaworks/ql-label-printer/internal/labels"
	"github.com/nantokaworks/ql-label-printer/internal/render"
	"github.com/nantokaworks/ql-label-printer/internal/shared/logger"
	"go.uber.org/zap"
)

// Policy is the binarisation part of the print settings.
type Policy struct {
	// Threshold is a luminance percentage; pixels at or below it print black.
	Threshold float64
	// Dither uses Floyd–Steinberg error diffusion instead of the threshold.
	Dither bool
	// Red asks for a separate red plane on two-colour media.
	Red bool
}

// Job is a label as packed bit planes, MSB first, 1 = ink.
type Job struct {
	Width  int
	Height int
	Stride int
	Black  []byte
	// Red is nil unless the job prints in two colours.
	Red []byte
}

// Row returns the packed black plane of row y.
func (j *Job) Row(y int) []byte {
	return j.Black[y*j.Stride : (y+1)*j.Stride]
}

// RedRow returns the packed red plane of row y, or nil for single-colour jobs.
func (j *Job) RedRow(y int) []byte {
	if j.Red == nil {
		return nil
	}
	return j.Red[y*j.Stride : (y+1)*j.Stride]
}

// TwoColor reports whether the job carries a red plane.
func (j *Job) TwoColor() bool {
	return j.Red != nil
}

func bit(plane []byte, stride, x, y int) bool {
	return plane[y*stride+x/8]&(0x80>>(x%8)) != 0
}

// BlackAt reports whether (x, y) prints black.
func (j *Job) BlackAt(x, y int) bool {
	return bit(j.Black, j.Stride, x, y)
}

// RedAt reports whether (x, y) prints red.
func (j *Job) RedAt(x, y int) bool {
	return j.Red != nil && bit(j.Red, j.Stride, x, y)
}

var previewPalette = color.Palette{color.White, color.Black, color.RGBA{R: 0xe0, A: 0xff}}

// Image returns the job as it will look on the label.
func (j *Job) Image() *image.Paletted {
	img := image.NewPaletted(image.Rect(0, 0, j.Width, j.Height), previewPalette)
	for y := 0; y < j.Height; y++ {
		for x := 0; x < j.Width; x++ {
			switch {
			case j.RedAt(x, y):
				img.SetColorIndex(x, y, 2)
			case j.BlackAt(x, y):
				img.SetColorIndex(x, y, 1)
			}
		}
	}
	return img
}

// Rasterize binarises buf for label p on model m. The result is always p.Width
// dots wide. Die-cut labels are exactly p.Height tall; endless labels are rounded
// up to the model's feed quantum and minimum length.
func Rasterize(buf *render.PixelBuffer, pol Policy, p labels.LabelProfile, m labels.Model) (*Job, error) {
	if buf == nil {
		return nil, apperr.Validation("nothing to rasterize")
	}
	if pol.Threshold < 0 || pol.Threshold > 100 {
		return nil, apperr.Validation("threshold must be between 0 and 100, got %v", pol.Threshold)
	}
	if buf.Width() != p.Width {
		return nil, apperr.Validation("buffer is %d dots wide, label %s needs %d", buf.Width(), p.ID, p.Width)
	}

	h, err := targetHeight(buf.Height(), p, m)
	if err != nil {
		return nil, err
	}
	w := p.Width
	offY := (h - buf.Height()) / 2
	useRed := pol.Red && p.SupportsRed

	// 画面外は白、赤ピクセルは黒プレーン上では白として扱う
	lum := make([]float32, w*h)
	redMask := make([]bool, w*h)
	for y := 0; y < h; y++ {
		sy := y - offY
		for x := 0; x < w; x++ {
			i := y*w + x
			if sy < 0 || sy >= buf.Height() {
				lum[i] = 255
				continue
			}
			// 赤の縁 (アンチエイリアス) も黒プレーンからは外す
			if a := redAlpha(buf, useRed, x, sy); a > 0 {
				redMask[i] = a >= 0x80
				lum[i] = 255
				continue
			}
			lum[i] = float32(buf.Gray.GrayAt(x, sy).Y)
		}
	}

	var ink []bool
	if pol.Dither {
		ink = floydSteinberg(lum, w, h)
	} else {
		ink = threshold(lum, pol.Threshold)
	}

	job := &Job{Width: w, Height: h, Stride: (w + 7) / 8}
	job.Black = pack(ink, w, h, job.Stride)
	if useRed {
		job.Red = pack(redMask, w, h, job.Stride)
	} else if pol.Red {
		logger.Debug("Red requested on single-colour media, dropping red plane",
			zap.String("label", p.ID), zap.String("model", m.Name))
	}
	return job, nil
}

func redAlpha(buf *render.PixelBuffer, useRed bool, x, y int) uint8 {
	if !useRed || buf.Red == nil {
		return 0
	}
	return buf.Red.AlphaAt(x, y).A
}

func targetHeight(contentH int, p labels.LabelProfile, m labels.Model) (int, error) {
	if !p.Endless() && p.Height > 0 {
		return p.Height, nil
	}
	h := max(contentH, m.MinLengthDots)
	if q := m.FeedQuantum; q > 1 {
		h = (h + q - 1) / q * q
	}
	if m.MaxLengthDots > 0 && h > m.MaxLengthDots {
		return 0, apperr.Render("label length %d dots exceeds %s maximum of %d", h, m.Name, m.MaxLengthDots)
	}
	return h, nil
}

func threshold(lum []float32, t float64) []bool {
	ink := make([]bool, len(lum))
	for i, v := range lum {
		ink[i] = float64(v)*100/255 <= t
	}
	return ink
}

// floydSteinberg diffuses quantisation error with the 7/16, 3/16, 5/16, 1/16
// kernel. Error that would fall outside the image is dropped.
func floydSteinberg(lum []float32, w, h int) []bool {
	ink := make([]bool, len(lum))
	cur := make([]float32, w+2)
	next := make([]float32, w+2)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			// cur/next はインデックス +1 でずらして端の判定を省く
			v := lum[y*w+x] + cur[x+1]
			var out float32 = 255
			if v < 128 {
				out = 0
				ink[y*w+x] = true
			}
			e := v - out
			cur[x+2] += e * 7 / 16
			next[x] += e * 3 / 16
			next[x+1] += e * 5 / 16
			next[x+2] += e * 1 / 16
		}
		cur, next = next, cur
		clear(next)
	}
	return ink
}

func pack(bits []bool, w, h, stride int) []byte {
	out := make([]byte, stride*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if bits[y*w+x] {
				out[y*stride+x/8] |= 0x80 >> (x % 8)
			}
		}
	}
	return out
}
