// Package labels is the static media catalogue: printer models and the label stock each can print on.
package labels

import (
	"sort"
	"strings"

	"github.com/nantokaworks/ql-label-printer/internal/apperr"
	"github.com/samber/lo"
)

// LabelProfile is one physical media type as seen by one printer model.
type LabelProfile struct {
	ID    string     `json:"id"`
	Model string     `json:"model"`
	Form  FormFactor `json:"form_factor"`

	TapeWidthMM  int `json:"tape_width_mm"`
	TapeLengthMM int `json:"tape_length_mm"`

	// Width is the printable width in dots. Every raster produced for this profile is exactly this wide.
	Width int `json:"width"`
	// Height is the printable height in dots; 0 for endless media.
	Height int `json:"height"`

	DotsTotalWidth  int `json:"dots_total_width"`
	RightMarginDots int `json:"right_margin_dots"`
	FeedMargin      int `json:"feed_margin"`

	SupportsRed bool `json:"supports_red"`
}

// Endless reports whether the label length is derived from the content.
func (p LabelProfile) Endless() bool {
	return p.Form == Endless
}

// LookupModel returns the capabilities of a printer model.
func LookupModel(name string) (Model, error) {
	m, ok := models[normalizeModel(name)]
	if !ok {
		return Model{}, apperr.Validation("unknown printer model %q", name)
	}
	return m, nil
}

// Lookup resolves the label profile for a (model, label id) combination.
func Lookup(model, labelID string) (LabelProfile, error) {
	m, err := LookupModel(model)
	if err != nil {
		return LabelProfile{}, err
	}
	for _, md := range mediaTable {
		if md.id != labelID {
			continue
		}
		if !md.allows(m.Name) {
			return LabelProfile{}, apperr.Validation("label %q is not supported by %s", labelID, m.Name)
		}
		return md.profile(m), nil
	}
	return LabelProfile{}, apperr.Validation("unknown label size %q", labelID)
}

// Models returns the names of every known printer model, sorted.
func Models() []string {
	names := lo.Keys(models)
	sort.Strings(names)
	return names
}

// ForModel lists every label profile the given model can print on, in catalogue order.
func ForModel(model string) ([]LabelProfile, error) {
	m, err := LookupModel(model)
	if err != nil {
		return nil, err
	}
	usable := lo.Filter(mediaTable, func(md media, _ int) bool { return md.allows(m.Name) })
	return lo.Map(usable, func(md media, _ int) LabelProfile { return md.profile(m) }), nil
}

func (md media) allows(model string) bool {
	return len(md.restrictTo) == 0 || lo.Contains(md.restrictTo, model)
}

func (md media) profile(m Model) LabelProfile {
	p := LabelProfile{
		ID:              md.id,
		Model:           m.Name,
		Form:            md.formFactor,
		TapeWidthMM:     md.tapeWidthMM,
		TapeLengthMM:    md.tapeLengthMM,
		Width:           md.dotsPrintable[0],
		Height:          md.dotsPrintable[1],
		DotsTotalWidth:  md.dotsTotal[0],
		RightMarginDots: md.rightMarginDots + m.AdditionalOffsetRight,
		FeedMargin:      md.feedMargin,
		SupportsRed:     md.color == BlackRedWhite && m.TwoColor,
	}
	if p.Form == Endless {
		p.Height = 0
	}
	return p
}

func normalizeModel(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}
