package render

import (
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// span is a run of text sharing one style.
type span struct {
	text   string
	bold   bool
	italic bool
	red    bool
}

// markupLine is one hard line of markup, split on <br> or newline.
type markupLine []span

type markupState struct {
	bold, italic, red int
	colors            []bool
	lines             []markupLine
}

func (s *markupState) add(text string) {
	parts := strings.Split(text, "\n")
	for i, p := range parts {
		if i > 0 {
			s.newline()
		}
		if p == "" {
			continue
		}
		red := s.red > 0
		for _, c := range s.colors {
			red = red || c
		}
		cur := &s.lines[len(s.lines)-1]
		*cur = append(*cur, span{text: p, bold: s.bold > 0, italic: s.italic > 0, red: red})
	}
}

func (s *markupState) newline() {
	s.lines = append(s.lines, markupLine{})
}

// parseMarkup splits markup into styled lines. Tags outside the supported
// subset are kept verbatim as text.
func parseMarkup(markup string) []markupLine {
	markup = strings.ReplaceAll(markup, "\r\n", "\n")
	st := &markupState{lines: []markupLine{{}}}
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// 閉じられていないタグは文字として残す
			if raw := z.Raw(); len(raw) > 0 || !errors.Is(z.Err(), io.EOF) {
				st.add(string(raw))
			}
			break
		}
		raw := string(z.Raw())
		switch tt {
		case html.TextToken:
			st.add(string(z.Text()))
		case html.StartTagToken, html.SelfClosingTagToken:
			if !st.open(z, tt == html.SelfClosingTagToken) {
				st.add(raw)
			}
		case html.EndTagToken:
			if !st.close(z) {
				st.add(raw)
			}
		default:
			st.add(raw)
		}
	}
	return st.lines
}

func (s *markupState) open(z *html.Tokenizer, selfClosing bool) bool {
	name, hasAttr := z.TagName()
	switch string(name) {
	case "br":
		s.newline()
	case "b", "strong":
		if !selfClosing {
			s.bold++
		}
	case "i", "em":
		if !selfClosing {
			s.italic++
		}
	case "red":
		if !selfClosing {
			s.red++
		}
	case "font", "span":
		red := false
		for hasAttr {
			var key, val []byte
			key, val, hasAttr = z.TagAttr()
			v := strings.ToLower(strings.ReplaceAll(string(val), " ", ""))
			switch string(key) {
			case "color":
				red = red || isRedColor(v)
			case "style":
				for _, decl := range strings.Split(v, ";") {
					if c, ok := strings.CutPrefix(decl, "color:"); ok {
						red = red || isRedColor(c)
					}
				}
			}
		}
		if !selfClosing {
			s.colors = append(s.colors, red)
		}
	default:
		return false
	}
	return true
}

func (s *markupState) close(z *html.Tokenizer) bool {
	name, _ := z.TagName()
	switch string(name) {
	case "br":
		s.newline()
	case "b", "strong":
		s.bold = max(s.bold-1, 0)
	case "i", "em":
		s.italic = max(s.italic-1, 0)
	case "red":
		s.red = max(s.red-1, 0)
	case "font", "span":
		if n := len(s.colors); n > 0 {
			s.colors = s.colors[:n-1]
		}
	default:
		return false
	}
	return true
}

func isRedColor(v string) bool {
	switch v {
	case "red", "#f00", "#ff0000", "rgb(255,0,0)":
		return true
	}
	return false
}

// plainText returns the visible text of the parsed lines.
func plainText(lines []markupLine) string {
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		for _, sp := range l {
			b.WriteString(sp.text)
		}
	}
	return b.String()
}
