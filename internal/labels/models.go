package labels

// Model describes the raster capabilities of one Brother QL printer model.
type Model struct {
	Name string

	// BytesPerRow is the width of one raster line sent to the head (90 → 720 dots, 162 → 1296 dots).
	BytesPerRow int

	// MinLengthDots / MaxLengthDots bound the feed length of a single label.
	MinLengthDots int
	MaxLengthDots int

	// AdditionalOffsetRight is added to a label's right margin on wide-head models.
	AdditionalOffsetRight int

	// InvalidateBytes is the number of 0x00 bytes that clear the command buffer.
	InvalidateBytes int

	TwoColor     bool
	Compression  bool
	Cutting      bool
	ModeSetting  bool
	ExpandedMode bool

	// FeedQuantum is the granularity, in raster lines, to which endless labels are rounded up.
	FeedQuantum int
}

// DevicePixelWidth returns the number of dots in one raster line.
func (m Model) DevicePixelWidth() int {
	return m.BytesPerRow * 8
}

const defaultFeedQuantum = 8

func standardModel(name string, minLen int) Model {
	return Model{
		Name:            name,
		BytesPerRow:     90,
		MinLengthDots:   minLen,
		MaxLengthDots:   11811,
		InvalidateBytes: 200,
		Compression:     true,
		Cutting:         true,
		ModeSetting:     true,
		ExpandedMode:    true,
		FeedQuantum:     defaultFeedQuantum,
	}
}

func wideModel(name string, minLen, maxLen int) Model {
	m := standardModel(name, minLen)
	m.BytesPerRow = 162
	m.MaxLengthDots = maxLen
	m.AdditionalOffsetRight = 44
	return m
}

var models = func() map[string]Model {
	list := []Model{}

	// QL-500 系はモード設定・圧縮なし
	for _, name := range []string{"QL-500", "QL-550", "QL-560", "QL-650TD"} {
		m := standardModel(name, 295)
		m.Compression = false
		m.ModeSetting = false
		m.Cutting = name != "QL-500"
		list = append(list, m)
	}

	for _, name := range []string{"QL-570", "QL-580N", "QL-700"} {
		m := standardModel(name, 150)
		if name == "QL-700" {
			m.Compression = false
			m.ModeSetting = false
		}
		list = append(list, m)
	}

	for _, name := range []string{"QL-710W", "QL-720NW"} {
		list = append(list, standardModel(name, 150))
	}

	// 2色印刷対応モデル
	for _, name := range []string{"QL-800", "QL-810W", "QL-820NWB"} {
		m := standardModel(name, 150)
		m.TwoColor = true
		m.InvalidateBytes = 400
		if name == "QL-800" {
			m.Compression = false
		}
		list = append(list, m)
	}

	for _, name := range []string{"QL-1050", "QL-1060N"} {
		list = append(list, wideModel(name, 295, 35433))
	}
	for _, name := range []string{"QL-1100", "QL-1110NWB", "QL-1115NWB"} {
		m := wideModel(name, 301, 35434)
		m.InvalidateBytes = 400
		list = append(list, m)
	}

	out := make(map[string]Model, len(list))
	for _, m := range list {
		out[m.Name] = m
	}
	return out
}()
