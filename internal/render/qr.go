package render

import (
	"github.com/nantokaworks/ql-label-printer/internal/apperr"
	qrcode "github.com/skip2/go-qrcode"
)

// captionGap separates a QR matrix from its caption.
const captionGap = 10

func (l ECLevel) level() (qrcode.RecoveryLevel, error) {
	switch l {
	case ECLow:
		return qrcode.Low, nil
	case "", ECMedium:
		return qrcode.Medium, nil
	case ECQuartile:
		return qrcode.High, nil
	case ECHigh:
		return qrcode.Highest, nil
	}
	return 0, apperr.Validation("unknown error correction level %q", l)
}

// qrMatrix returns the module matrix (true = dark) without quiet zone.
func qrMatrix(q QRCode) ([][]bool, error) {
	lvl, err := q.ECLevel.level()
	if err != nil {
		return nil, err
	}
	var code *qrcode.QRCode
	if q.Version == 0 {
		code, err = qrcode.New(q.Payload, lvl)
	} else {
		code, err = qrcode.NewWithForcedVersion(q.Payload, q.Version, lvl)
	}
	if err != nil {
		return nil, apperr.Validation("QR payload does not fit: %v", err)
	}
	code.DisableBorder = true
	return code.Bitmap(), nil
}

// drawMatrix paints the matrix with the given module size and quiet zone (in modules).
func drawMatrix(bm [][]bool, module, border int) *PixelBuffer {
	side := (len(bm) + 2*border) * module
	buf := NewPixelBuffer(side, side)
	off := border * module
	for y, row := range bm {
		for x, dark := range row {
			if !dark {
				continue
			}
			x0, y0 := off+x*module, off+y*module
			for dy := 0; dy < module; dy++ {
				px := buf.Gray.Pix[(y0+dy)*buf.Gray.Stride+x0:]
				for dx := 0; dx < module; dx++ {
					px[dx] = 0
				}
			}
		}
	}
	return buf
}

// qrBlock is a QR matrix together with its caption, ready to be drawn at any module size.
type qrBlock struct {
	q       QRCode
	matrix  [][]bool
	caption *Text
}

func newQRBlock(q QRCode) (*qrBlock, error) {
	bm, err := qrMatrix(q)
	if err != nil {
		return nil, err
	}
	b := &qrBlock{q: q, matrix: bm}
	if c := q.Caption; c != nil && c.Text != "" {
		align := c.Align
		if align == "" {
			align = AlignCenter
		}
		b.caption = &Text{Markup: c.Text, FontSize: c.FontSize, Align: align}
	}
	return b, nil
}

// side is the matrix width in pixels at the given module size.
func (b *qrBlock) side(module int) int {
	return (len(b.matrix) + 2*b.q.Border) * module
}

// render draws the block at the given module size.
func (b *qrBlock) render(module int) (*PixelBuffer, error) {
	qr := drawMatrix(b.matrix, module, b.q.Border)
	if b.caption == nil {
		return qr, nil
	}
	text, err := renderText(*b.caption, qr.Width())
	if err != nil {
		return nil, err
	}
	out := NewPixelBuffer(qr.Width(), qr.Height()+captionGap+text.Height())
	if b.q.Caption.Position == CaptionTop {
		out.Paste(text, 0, 0)
		out.Paste(qr, 0, text.Height()+captionGap)
	} else {
		out.Paste(qr, 0, 0)
		out.Paste(text, 0, qr.Height()+captionGap)
	}
	return out, nil
}

// fit renders the block at the requested module size, shrinking the modules
// until the block fits maxW x maxH (0 = unbounded).
func (b *qrBlock) fit(maxW, maxH int) (*PixelBuffer, error) {
	module := b.q.ModuleSize
	if maxW > 0 {
		module = min(module, maxW/(len(b.matrix)+2*b.q.Border))
	}
	for ; module >= 1; module-- {
		buf, err := b.render(module)
		if err != nil {
			return nil, err
		}
		if maxH == 0 || buf.Height() <= maxH {
			return buf, nil
		}
	}
	return nil, apperr.Render("QR code with %d modules does not fit %dx%d", len(b.matrix)+2*b.q.Border, maxW, maxH)
}

func renderQR(q QRCode, maxW, maxH int) (*PixelBuffer, error) {
	b, err := newQRBlock(q)
	if err != nil {
		return nil, err
	}
	return b.fit(maxW, maxH)
}

// matrixSize is the module count of q without quiet zone.
func matrixSize(q QRCode) (int, error) {
	bm, err := qrMatrix(q)
	if err != nil {
		return 0, err
	}
	return len(bm), nil
}
