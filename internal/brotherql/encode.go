package brotherql

import (
	"bytes"

	"github.com/nantokaworks/ql-label-printer/internal/apperr"
	"github.com/nantokaworks/ql-label-printer/internal/labels"
	"github.com/nantokaworks/ql-label-printer/internal/raster"
)

// Options are the job-level switches of the command stream.
type Options struct {
	Compress bool
	Cut      bool
	// HighResolution prints at 600 dpi in the feed direction; every raster line is sent twice.
	HighResolution bool
}

// Encode builds the full command stream for one label.
func Encode(job *raster.Job, p labels.LabelProfile, m labels.Model, o Options) ([]byte, error) {
	if job == nil || job.Height == 0 {
		return nil, apperr.Validation("empty raster job")
	}
	if job.Width+p.RightMarginDots > m.DevicePixelWidth() {
		return nil, apperr.Validation("raster of %d dots plus margin %d exceeds %s head width %d",
			job.Width, p.RightMarginDots, m.Name, m.DevicePixelWidth())
	}
	twoColor := job.TwoColor()
	if twoColor && !m.TwoColor {
		return nil, apperr.Validation("%s cannot print two colours", m.Name)
	}
	compress := o.Compress && m.Compression

	lines := job.Height
	if o.HighResolution {
		lines *= 2
	}

	var b bytes.Buffer
	b.Write(invalidate(m.InvalidateBytes))
	b.Write(initialize())
	if m.ModeSetting {
		b.Write(switchToRaster())
	}
	b.Write(printInformation(p, lines))
	if m.Cutting && o.Cut {
		b.Write(autoCut(true))
		b.Write(cutEvery(1))
	}
	if m.ExpandedMode {
		var flags byte
		if o.Cut {
			flags |= expCutAtEnd
		}
		if twoColor {
			flags |= expTwoColor
		}
		if o.HighResolution {
			flags |= expHighRes
		}
		b.Write(expandedMode(flags))
	}
	b.Write(margins(p.FeedMargin))
	if m.Compression {
		b.Write(compression(compress))
	}

	row := func(src []byte) []byte {
		out := deviceRow(src, job.Width, p.RightMarginDots, m.BytesPerRow)
		if compress {
			out = PackBits(out)
		}
		return out
	}
	for y := 0; y < job.Height; y++ {
		var line []byte
		if twoColor {
			line = append(colorRasterLine(0x01, row(job.Row(y))), colorRasterLine(0x02, row(job.RedRow(y)))...)
		} else {
			line = rasterLine(row(job.Row(y)))
		}
		b.Write(line)
		if o.HighResolution {
			b.Write(line)
		}
	}
	b.WriteByte(PrintFeed)
	return b.Bytes(), nil
}

// deviceRow places a packed row of width dots onto the print head, offset by
// the right margin and mirrored as the head expects.
func deviceRow(src []byte, width, rightMargin, bytesPerRow int) []byte {
	out := make([]byte, bytesPerRow)
	for x := 0; x < width; x++ {
		if src[x/8]&(0x80>>(x%8)) == 0 {
			continue
		}
		pos := rightMargin + width - 1 - x
		out[pos/8] |= 0x80 >> (pos % 8)
	}
	return out
}

// StatusRequest asks the printer for a status reply without feeding or cutting.
func StatusRequest(m labels.Model) []byte {
	n := m.InvalidateBytes
	if n == 0 {
		n = 200
	}
	var b bytes.Buffer
	b.Write(invalidate(n))
	b.Write(initialize())
	b.Write(statusRequest())
	return b.Bytes()
}
