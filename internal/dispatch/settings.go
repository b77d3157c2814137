package dispatch

import (
	"github.com/nantokaworks/ql-label-printer/internal/apperr"
	"github.com/nantokaworks/ql-label-printer/internal/brotherql"
	"github.com/nantokaworks/ql-label-printer/internal/labels"
	"github.com/nantokaworks/ql-label-printer/internal/output"
	"github.com/nantokaworks/ql-label-printer/internal/raster"
	"github.com/nantokaworks/ql-label-printer/internal/render"
)

// PrintSettings selects the printer, media and image processing of one job.
type PrintSettings struct {
	PrinterURI     string  `json:"printer_uri"`
	PrinterModel   string  `json:"printer_model"`
	LabelSize      string  `json:"label_size"`
	Rotate         int     `json:"rotate"`
	Threshold      float64 `json:"threshold"`
	Dither         bool    `json:"dither"`
	Red            bool    `json:"red"`
	Compress       bool    `json:"compress"`
	Cut            bool    `json:"cut"`
	HighResolution bool    `json:"high_resolution"`
}

// DefaultPrintSettings returns the settings of a fresh installation.
func DefaultPrintSettings() PrintSettings {
	return PrintSettings{
		PrinterURI:   "tcp://192.168.1.100",
		PrinterModel: "QL-800",
		LabelSize:    "62",
		Threshold:    render.DefaultThreshold,
		Cut:          true,
	}
}

// Validate checks ranges and resolves the model and label.
func (s PrintSettings) Validate() error {
	_, _, err := s.resolve()
	return err
}

func (s PrintSettings) resolve() (labels.LabelProfile, labels.Model, error) {
	if s.PrinterURI == "" {
		return labels.LabelProfile{}, labels.Model{}, apperr.Validation("printer URI is required")
	}
	if _, err := output.TypeOf(s.PrinterURI); err != nil {
		return labels.LabelProfile{}, labels.Model{}, err
	}
	switch s.Rotate {
	case 0, 90, 180, 270:
	default:
		return labels.LabelProfile{}, labels.Model{}, apperr.Validation("rotation must be 0, 90, 180 or 270, got %d", s.Rotate)
	}
	if s.Threshold < 0 || s.Threshold > 100 {
		return labels.LabelProfile{}, labels.Model{}, apperr.Validation("threshold must be between 0 and 100, got %v", s.Threshold)
	}
	m, err := labels.LookupModel(s.PrinterModel)
	if err != nil {
		return labels.LabelProfile{}, labels.Model{}, err
	}
	p, err := labels.Lookup(m.Name, s.LabelSize)
	if err != nil {
		return labels.LabelProfile{}, labels.Model{}, err
	}
	return p, m, nil
}

func (s PrintSettings) policy() raster.Policy {
	return raster.Policy{Threshold: s.Threshold, Dither: s.Dither, Red: s.Red}
}

func (s PrintSettings) encodeOptions() brotherql.Options {
	return brotherql.Options{Compress: s.Compress, Cut: s.Cut, HighResolution: s.HighResolution}
}
