package render

import (
	"image"

	"github.com/nantokaworks/ql-label-printer/internal/apperr"
)

// combinedGap separates the QR block from the text block.
const combinedGap = 20

// renderCombined places the QR block beside the text, on the left unless
// QRRight is given. The text keeps its natural width; only the QR modules
// shrink when space runs out.
func renderCombined(c Combined, maxW, maxH int) (*PixelBuffer, error) {
	fs := newFaceSet(c.Text.FontSize, c.Text.Markup)
	defer fs.close()
	tb, err := layoutText(c.Text, 0, fs)
	if err != nil {
		return nil, err
	}
	qb, err := newQRBlock(c.QR)
	if err != nil {
		return nil, err
	}

	for module := c.QR.ModuleSize; module >= 1; module-- {
		if maxW > 0 && tb.natural+combinedGap+qb.side(module) > maxW {
			continue
		}
		qr, err := qb.render(module)
		if err != nil {
			return nil, err
		}
		h := max(qr.Height(), tb.height)
		if maxH > 0 && h > maxH {
			continue
		}
		w := maxW
		if w == 0 {
			w = tb.natural + combinedGap + qr.Width()
		}
		textW := w - combinedGap - qr.Width()

		out := NewPixelBuffer(w, h)
		if c.QRPosition != QRRight {
			out.Paste(qr, 0, (h-qr.Height())/2)
			tb.draw(out, image.Pt(qr.Width()+combinedGap, (h-tb.height)/2), textW)
		} else {
			tb.draw(out, image.Pt(0, (h-tb.height)/2), textW)
			out.Paste(qr, textW+combinedGap, (h-qr.Height())/2)
		}
		return out, nil
	}
	return nil, apperr.Render("text (%d dots) and QR code do not fit in %d dots even with 1-dot modules", tb.natural, maxW)
}
