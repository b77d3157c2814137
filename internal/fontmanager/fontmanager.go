// Package fontmanager owns the fonts used to rasterize label text.
package fontmanager

import (
	"fmt"
	"os"
	"sync"
	"unicode"

	"github.com/abadojack/whatlanggo"
	"github.com/nantokaworks/ql-label-printer/internal/shared/logger"
	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// Style selects the weight/slant variant of a face.
type Style int

const (
	Regular Style = iota
	Bold
	Italic
	BoldItalic
)

// StyleOf combines markup flags into a Style.
func StyleOf(bold, italic bool) Style {
	switch {
	case bold && italic:
		return BoldItalic
	case bold:
		return Bold
	case italic:
		return Italic
	default:
		return Regular
	}
}

var (
	mu       sync.RWMutex
	builtin  map[Style]*opentype.Font
	custom   *opentype.Font // FONT_PATH で指定されたフォント（全スタイル共通）
	cjk      *opentype.Font // FONT_PATH_CJK で指定されたフォント
	initOnce sync.Once
	initErr  error
)

func loadBuiltin() {
	sources := map[Style][]byte{
		Regular:    goregular.TTF,
		Bold:       gobold.TTF,
		Italic:     goitalic.TTF,
		BoldItalic: gobolditalic.TTF,
	}
	fonts := make(map[Style]*opentype.Font, len(sources))
	for style, data := range sources {
		f, err := opentype.Parse(data)
		if err != nil {
			initErr = fmt.Errorf("failed to parse builtin font: %w", err)
			return
		}
		fonts[style] = f
	}
	mu.Lock()
	builtin = fonts
	mu.Unlock()
}

// Initialize loads the builtin Go fonts. It is safe to call more than once.
func Initialize() error {
	initOnce.Do(loadBuiltin)
	return initErr
}

// Configure sets optional user font files. Empty paths clear the override.
func Configure(fontPath, cjkPath string) error {
	if err := Initialize(); err != nil {
		return err
	}

	customFont, err := loadFile(fontPath)
	if err != nil {
		return err
	}
	cjkFont, err := loadFile(cjkPath)
	if err != nil {
		return err
	}

	mu.Lock()
	custom = customFont
	cjk = cjkFont
	mu.Unlock()

	logger.Info("Fonts configured",
		zap.String("font_path", fontPath),
		zap.String("cjk_font_path", cjkPath))
	return nil
}

func loadFile(path string) (*opentype.Font, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file %s: %w", path, err)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse font file %s: %w", path, err)
	}
	return f, nil
}

// NeedsCJK reports whether the sample text is written in a script the Go fonts do not cover.
func NeedsCJK(sample string) bool {
	switch whatlanggo.DetectScript(sample) {
	case unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul:
		return true
	}
	return false
}

// NewFace returns a new face of the given pixel size. Faces are not safe for
// concurrent use, so callers create one per render.
func NewFace(size float64, style Style, sample string) (font.Face, error) {
	if size <= 0 {
		return nil, fmt.Errorf("font size must be positive, got %v", size)
	}
	if err := Initialize(); err != nil {
		return nil, err
	}

	mu.RLock()
	f := builtin[style]
	if custom != nil {
		f = custom
	}
	if cjk != nil && NeedsCJK(sample) {
		f = cjk
	}
	mu.RUnlock()

	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
}
