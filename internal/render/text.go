package render

import (
	"image"
	"math"
	"strings"
	"unicode"

	"github.com/nantokaworks/ql-label-printer/internal/apperr"
	"github.com/nantokaworks/ql-label-printer/internal/fontmanager"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

const (
	textMargin  = 10
	textPadding = 10
	lineSpacing = 5
)

// faceSet caches one face per style for a single render call.
type faceSet struct {
	size   float64
	sample string
	faces  map[fontmanager.Style]font.Face
}

func newFaceSet(size int, sample string) *faceSet {
	return &faceSet{size: float64(size), sample: sample, faces: map[fontmanager.Style]font.Face{}}
}

func (fs *faceSet) get(st fontmanager.Style) (font.Face, error) {
	if f, ok := fs.faces[st]; ok {
		return f, nil
	}
	f, err := fontmanager.NewFace(fs.size, st, fs.sample)
	if err != nil {
		return nil, apperr.Render("font: %v", err)
	}
	fs.faces[st] = f
	return f, nil
}

func (fs *faceSet) close() {
	for _, f := range fs.faces {
		f.Close()
	}
}

type token struct {
	text  string
	sp    span
	face  font.Face
	width int
	space bool
}

type textLine struct {
	items           []token
	width           int
	ascent, descent int
}

func (l *textLine) add(tk token) {
	l.items = append(l.items, tk)
	l.width += tk.width
}

func measure(f font.Face, s string) int {
	return font.MeasureString(f, s).Ceil()
}

// splitWords splits s into alternating runs of spaces and non-spaces.
func splitWords(s string) []string {
	var out []string
	start := 0
	prev := -1
	for i, r := range s {
		sp := 0
		if unicode.IsSpace(r) {
			sp = 1
		}
		if prev != -1 && sp != prev {
			out = append(out, s[start:i])
			start = i
		}
		prev = sp
	}
	if start < len(s) {
		out = append(out, s[start:])
	}
	return out
}

// tokenize measures every word and space run of one hard line.
func tokenize(line markupLine, fs *faceSet) ([]token, error) {
	var out []token
	for _, sp := range line {
		f, err := fs.get(fontmanager.StyleOf(sp.bold, sp.italic))
		if err != nil {
			return nil, err
		}
		for _, w := range splitWords(sp.text) {
			out = append(out, token{
				text:  w,
				sp:    sp,
				face:  f,
				width: measure(f, w),
				space: strings.TrimSpace(w) == "",
			})
		}
	}
	return out, nil
}

// breakWord splits a word wider than avail into pieces that fit.
func breakWord(tk token, avail int) []token {
	rs := []rune(tk.text)
	var out []token
	start := 0
	piece := func(end int) token {
		s := string(rs[start:end])
		return token{text: s, sp: tk.sp, face: tk.face, width: measure(tk.face, s)}
	}
	for i := start + 1; i <= len(rs); i++ {
		if measure(tk.face, string(rs[start:i])) > avail && i-1 > start {
			out = append(out, piece(i-1))
			start = i - 1
		}
	}
	return append(out, piece(len(rs)))
}

// wrap greedily fills lines no wider than avail.
func wrap(tokens []token, avail int) []textLine {
	var out []textLine
	var cur textLine
	var pending []token
	wrapped := false
	for _, tk := range tokens {
		if tk.space {
			if len(cur.items) == 0 && !wrapped {
				cur.add(tk)
			} else if len(cur.items) > 0 {
				pending = append(pending, tk)
			}
			continue
		}
		pw := 0
		for _, p := range pending {
			pw += p.width
		}
		if len(cur.items) > 0 && cur.width+pw+tk.width > avail {
			out = append(out, cur)
			cur, pending, wrapped = textLine{}, nil, true
		}
		if len(cur.items) == 0 && tk.width > avail {
			for i, pc := range breakWord(tk, avail) {
				if i > 0 {
					out = append(out, cur)
					cur = textLine{}
				}
				cur.add(pc)
			}
			continue
		}
		for _, p := range pending {
			cur.add(p)
		}
		pending = nil
		cur.add(tk)
	}
	return append(out, cur)
}

type textBlock struct {
	lines []textLine
	align Align
	// natural is the widest line plus side margins.
	natural int
	height  int
}

// layoutText wraps t to width (0 = no wrapping) and measures the result.
func layoutText(t Text, width int, fs *faceSet) (*textBlock, error) {
	md := parseMarkup(t.Markup)
	if strings.TrimSpace(plainText(md)) == "" {
		return nil, apperr.Validation("text content is empty")
	}
	avail := math.MaxInt
	if width > 0 {
		avail = width - 2*textMargin
		if avail <= 0 {
			return nil, apperr.Render("layout width %d leaves no room for text", width)
		}
	}
	regular, err := fs.get(fontmanager.Regular)
	if err != nil {
		return nil, err
	}
	tb := &textBlock{align: t.Align}
	for _, ml := range md {
		tokens, err := tokenize(ml, fs)
		if err != nil {
			return nil, err
		}
		tb.lines = append(tb.lines, wrap(tokens, avail)...)
	}
	tb.height = 2 * textPadding
	for i := range tb.lines {
		l := &tb.lines[i]
		faces := []font.Face{regular}
		if len(l.items) > 0 {
			faces = faces[:0]
			for _, it := range l.items {
				faces = append(faces, it.face)
			}
		}
		for _, f := range faces {
			m := f.Metrics()
			l.ascent = max(l.ascent, m.Ascent.Ceil())
			l.descent = max(l.descent, m.Descent.Ceil())
		}
		tb.natural = max(tb.natural, l.width+2*textMargin)
		tb.height += l.ascent + l.descent
		if i > 0 {
			tb.height += lineSpacing
		}
	}
	return tb, nil
}

// draw paints the block into dst inside a box of width w starting at origin.
func (tb *textBlock) draw(dst *PixelBuffer, origin image.Point, w int) {
	y := origin.Y + textPadding
	for _, l := range tb.lines {
		var x int
		switch tb.align {
		case AlignCenter:
			x = (w - l.width) / 2
		case AlignRight:
			x = w - textMargin - l.width
		default:
			x = textMargin
		}
		x += origin.X
		baseline := y + l.ascent
		for _, it := range l.items {
			if !it.space {
				d := font.Drawer{Dst: dst.Gray, Src: image.Black, Face: it.face, Dot: fixed.P(x, baseline)}
				d.DrawString(it.text)
				if it.sp.red {
					d.Dst, d.Src, d.Dot = dst.redMask(), image.Opaque, fixed.P(x, baseline)
					d.DrawString(it.text)
				}
			}
			x += it.width
		}
		y += l.ascent + l.descent + lineSpacing
	}
}

// renderText renders t into a buffer width pixels wide, or as wide as its
// longest line when width is 0.
func renderText(t Text, width int) (*PixelBuffer, error) {
	fs := newFaceSet(t.FontSize, t.Markup)
	defer fs.close()
	tb, err := layoutText(t, width, fs)
	if err != nil {
		return nil, err
	}
	if width == 0 {
		width = tb.natural
	}
	buf := NewPixelBuffer(width, tb.height)
	tb.draw(buf, image.Point{}, width)
	return buf, nil
}
