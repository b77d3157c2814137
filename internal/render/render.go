package render

import (
	"github.com/nantokaworks/ql-label-printer/internal/apperr"
	"github.com/nantokaworks/ql-label-printer/internal/labels"
	"github.com/nantokaworks/ql-label-printer/internal/shared/logger"
	"go.uber.org/zap"
)

// Options control how content is placed on the label.
type Options struct {
	// Rotate is a clockwise rotation in degrees: 0, 90, 180 or 270.
	Rotate int
}

// Render draws c for label profile p. The result is always p.Width pixels wide;
// die-cut labels are exactly p.Height tall with the content centred.
func Render(c Content, p labels.LabelProfile, opts Options) (*PixelBuffer, error) {
	if p.Width <= 0 {
		return nil, apperr.Validation("label profile %q has no printable width", p.ID)
	}
	switch opts.Rotate {
	case 0, 90, 180, 270:
	default:
		return nil, apperr.Validation("rotation must be 0, 90, 180 or 270, got %d", opts.Rotate)
	}

	// 90/270 度は縦横を入れ替えたバッファに描いてから回転する
	boxW, boxH := p.Width, p.Height
	if opts.Rotate == 90 || opts.Rotate == 270 {
		boxW, boxH = p.Height, p.Width
	}

	var (
		buf     *PixelBuffer
		err     error
		rotated bool
	)
	switch v := c.(type) {
	case Text:
		if err = v.validate(); err == nil {
			buf, err = renderText(v, boxW)
		}
	case Image:
		if err = v.validate(); err == nil {
			buf, rotated = renderImage(v, p, opts.Rotate), true
		}
	case QRCode:
		if err = v.validate(); err == nil {
			buf, err = renderQR(v, boxW, boxH)
		}
	case Combined:
		if err = v.validate(); err == nil {
			buf, err = renderCombined(v, boxW, boxH)
		}
	case nil:
		err = apperr.Validation("no content to render")
	default:
		err = apperr.Validation("unsupported content type %T", c)
	}
	if err != nil {
		return nil, err
	}

	if !rotated {
		buf = rotateBuffer(buf, opts.Rotate)
	}
	if buf.Width() > p.Width {
		return nil, apperr.Render("%s content is %d dots wide, label %s allows %d", c.kind(), buf.Width(), p.ID, p.Width)
	}
	out := place(buf, p)
	logger.Debug("Rendered label content",
		zap.String("kind", c.kind()),
		zap.String("label", p.ID),
		zap.Int("rotate", opts.Rotate),
		zap.Int("width", out.Width()),
		zap.Int("height", out.Height()),
		zap.Bool("red", out.Red != nil))
	return out, nil
}

// place centres buf on a canvas of the label's printable size. Die-cut
// content taller than the label is clipped evenly top and bottom.
func place(buf *PixelBuffer, p labels.LabelProfile) *PixelBuffer {
	h := p.Height
	if p.Endless() || h == 0 {
		h = buf.Height()
	}
	if buf.Width() == p.Width && buf.Height() == h {
		return buf
	}
	if buf.Height() > h {
		logger.Warn("Content taller than die-cut label, clipping",
			zap.String("label", p.ID), zap.Int("content_height", buf.Height()), zap.Int("label_height", h))
	}
	out := NewPixelBuffer(p.Width, h)
	out.Paste(buf, (p.Width-buf.Width())/2, (h-buf.Height())/2)
	return out
}
