// Package render turns label content into a grayscale pixel buffer sized for a label profile.
package render

import (
	"image"
	"strings"

	"github.com/nantokaworks/ql-label-printer/internal/apperr"
)

// Content is one of Text, Image, QRCode or Combined.
type Content interface {
	kind() string
}

// Align is the horizontal alignment of a block of text.
type Align string

const (
	AlignLeft   Align = "left"
	AlignCenter Align = "center"
	AlignRight  Align = "right"
)

// ImageMode selects how an image is binarised before printing.
type ImageMode string

const (
	// ImageModeColor leaves binarisation to the raster threshold and separates red for two-colour media.
	ImageModeColor     ImageMode = "color"
	ImageModeThreshold ImageMode = "bw-threshold"
	ImageModeDither    ImageMode = "bw-dither"
)

// ECLevel is the QR error correction level.
type ECLevel string

const (
	ECLow      ECLevel = "L"
	ECMedium   ECLevel = "M"
	ECQuartile ECLevel = "Q"
	ECHigh     ECLevel = "H"
)

// CaptionPosition places a QR caption relative to the matrix.
type CaptionPosition string

const (
	CaptionTop    CaptionPosition = "top"
	CaptionBottom CaptionPosition = "bottom"
)

// QRPosition places the QR block relative to the text in a Combined layout.
// The zero value means QRLeft.
type QRPosition string

const (
	QRLeft  QRPosition = "left"
	QRRight QRPosition = "right"
)

// DefaultThreshold is the luminance threshold (0-100) used when an image is binarised at render time.
const DefaultThreshold = 70.0

// Text is a block of styled text. Markup understands <b>, <strong>, <i>, <em>, <br>,
// <red>, <font color="red"> and <span style="color:red">; any other tag is printed literally.
type Text struct {
	Markup   string
	FontSize int
	Align    Align
}

// Image is an already decoded bitmap.
type Image struct {
	Img  image.Image
	Mode ImageMode
}

// Caption is the optional text printed above or below a QR code.
type Caption struct {
	Text     string
	Position CaptionPosition
	// Align overrides the default centred caption.
	Align    Align
	FontSize int
}

// QRCode is a QR matrix with an optional caption.
type QRCode struct {
	Payload    string
	ModuleSize int
	// Border is the quiet zone in modules.
	Border  int
	ECLevel ECLevel
	// Version 0 picks the smallest version that holds the payload.
	Version int
	Caption *Caption
}

// Combined lays a QR code and a text block side by side.
type Combined struct {
	Text       Text
	QR         QRCode
	QRPosition QRPosition
}

func (Text) kind() string     { return "text" }
func (Image) kind() string    { return "image" }
func (QRCode) kind() string   { return "qrcode" }
func (Combined) kind() string { return "combined" }

// Kind returns the variant name of c.
func Kind(c Content) string {
	if c == nil {
		return ""
	}
	return c.kind()
}

func (t Text) validate() error {
	if strings.TrimSpace(t.Markup) == "" {
		return apperr.Validation("text content is empty")
	}
	if t.FontSize <= 0 {
		return apperr.Validation("font size must be positive, got %d", t.FontSize)
	}
	switch t.Align {
	case "", AlignLeft, AlignCenter, AlignRight:
	default:
		return apperr.Validation("unknown alignment %q", t.Align)
	}
	return nil
}

func (i Image) validate() error {
	if i.Img == nil || i.Img.Bounds().Empty() {
		return apperr.Validation("image is empty")
	}
	switch i.Mode {
	case "", ImageModeColor, ImageModeThreshold, ImageModeDither:
	default:
		return apperr.Validation("unknown image mode %q", i.Mode)
	}
	return nil
}

func (q QRCode) validate() error {
	if q.Payload == "" {
		return apperr.Validation("QR payload is empty")
	}
	if q.ModuleSize < 1 {
		return apperr.Validation("QR module size must be at least 1, got %d", q.ModuleSize)
	}
	if q.Border < 0 {
		return apperr.Validation("QR border must not be negative, got %d", q.Border)
	}
	if q.Version < 0 || q.Version > 40 {
		return apperr.Validation("QR version must be 0-40, got %d", q.Version)
	}
	if _, err := q.ECLevel.level(); err != nil {
		return err
	}
	if c := q.Caption; c != nil && c.Text != "" {
		switch c.Position {
		case "", CaptionTop, CaptionBottom:
		default:
			return apperr.Validation("unknown caption position %q", c.Position)
		}
		if c.FontSize <= 0 {
			return apperr.Validation("caption font size must be positive, got %d", c.FontSize)
		}
		switch c.Align {
		case "", AlignLeft, AlignCenter, AlignRight:
		default:
			return apperr.Validation("unknown caption alignment %q", c.Align)
		}
	}
	return nil
}

func (c Combined) validate() error {
	if err := c.Text.validate(); err != nil {
		return err
	}
	if err := c.QR.validate(); err != nil {
		return err
	}
	switch c.QRPosition {
	case "", QRLeft, QRRight:
	default:
		return apperr.Validation("unknown QR position %q", c.QRPosition)
	}
	return nil
}
