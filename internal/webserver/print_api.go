package webserver

import (
	"encoding/json"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strconv"

	"github.com/nantokaworks/ql-label-printer/internal/apperr"
	"github.com/nantokaworks/ql-label-printer/internal/dispatch"
	"github.com/nantokaworks/ql-label-printer/internal/env"
	"github.com/nantokaworks/ql-label-printer/internal/render"
	"github.com/nantokaworks/ql-label-printer/internal/shared/logger"
	"go.uber.org/zap"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

const maxUploadSize = 32 << 20

// settingsOverride lets one request print on a different printer or media than configured.
type settingsOverride struct {
	PrinterURI     *string  `json:"printer_uri"`
	PrinterModel   *string  `json:"printer_model"`
	LabelSize      *string  `json:"label_size"`
	Rotate         *int     `json:"rotate"`
	Threshold      *float64 `json:"threshold"`
	Dither         *bool    `json:"dither"`
	Red            *bool    `json:"red"`
	Compress       *bool    `json:"compress"`
	Cut            *bool    `json:"cut"`
	HighResolution *bool    `json:"high_resolution"`
}

func (o settingsOverride) apply(s dispatch.PrintSettings) dispatch.PrintSettings {
	if o.PrinterURI != nil {
		s.PrinterURI = *o.PrinterURI
	}
	if o.PrinterModel != nil {
		s.PrinterModel = *o.PrinterModel
	}
	if o.LabelSize != nil {
		s.LabelSize = *o.LabelSize
	}
	if o.Rotate != nil {
		s.Rotate = *o.Rotate
	}
	if o.Threshold != nil {
		s.Threshold = *o.Threshold
	}
	if o.Dither != nil {
		s.Dither = *o.Dither
	}
	if o.Red != nil {
		s.Red = *o.Red
	}
	if o.Compress != nil {
		s.Compress = *o.Compress
	}
	if o.Cut != nil {
		s.Cut = *o.Cut
	}
	if o.HighResolution != nil {
		s.HighResolution = *o.HighResolution
	}
	return s
}

type textRequest struct {
	Text      string `json:"text"`
	FontSize  int    `json:"font_size"`
	Alignment string `json:"alignment"`
	settingsOverride
}

func (t textRequest) content(cfg env.EnvValue) render.Text {
	out := render.Text{Markup: t.Text, FontSize: t.FontSize, Align: render.Align(t.Alignment)}
	if out.FontSize == 0 {
		out.FontSize = cfg.FontSize
	}
	if out.Align == "" {
		out.Align = cfg.Alignment
	}
	return out
}

type captionRequest struct {
	Text      string `json:"text"`
	Position  string `json:"position"`
	Alignment string `json:"alignment"`
	FontSize  int    `json:"font_size"`
}

type qrRequest struct {
	Data            string          `json:"data"`
	ModuleSize      int             `json:"module_size"`
	Border          *int            `json:"border"`
	ErrorCorrection string          `json:"error_correction"`
	Version         int             `json:"version"`
	Caption         *captionRequest `json:"caption"`
	settingsOverride
}

// QRコードの既定値（モジュール10px、余白4モジュール）
const (
	defaultModuleSize = 10
	defaultBorder     = 4
)

func (q qrRequest) content(cfg env.EnvValue) render.QRCode {
	out := render.QRCode{
		Payload:    q.Data,
		ModuleSize: q.ModuleSize,
		Border:     defaultBorder,
		ECLevel:    render.ECLevel(q.ErrorCorrection),
		Version:    q.Version,
	}
	if out.ModuleSize == 0 {
		out.ModuleSize = defaultModuleSize
	}
	if q.Border != nil {
		out.Border = *q.Border
	}
	if q.Caption != nil && q.Caption.Text != "" {
		c := &render.Caption{
			Text:     q.Caption.Text,
			Position: render.CaptionPosition(q.Caption.Position),
			Align:    render.Align(q.Caption.Alignment),
			FontSize: q.Caption.FontSize,
		}
		if c.Position == "" {
			c.Position = render.CaptionBottom
		}
		if c.FontSize == 0 {
			c.FontSize = cfg.FontSize
		}
		out.Caption = c
	}
	return out
}

type labelRequest struct {
	Text       string    `json:"text"`
	FontSize   int       `json:"font_size"`
	Alignment  string    `json:"alignment"`
	QR         qrRequest `json:"qr"`
	QRPosition string    `json:"qr_position"`
	settingsOverride
}

type printResponse struct {
	dispatch.DispatchResult
	Error    string `json:"error,omitempty"`
	Category string `json:"category,omitempty"`
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("invalid JSON: %v", err)
	}
	return nil
}

// dispatchAndRespond runs the job and writes the result with a status matching its failure category.
func dispatchAndRespond(w http.ResponseWriter, r *http.Request, content render.Content, s dispatch.PrintSettings) {
	if app.Dispatcher == nil {
		http.Error(w, "Dispatcher not configured", http.StatusServiceUnavailable)
		return
	}
	res := app.Dispatcher.Dispatch(r.Context(), content, s)
	resp := printResponse{DispatchResult: res}
	k := dispatch.Classify(res.Error)
	if res.Error != nil {
		resp.Error = res.Error.Error()
		resp.Category = string(k)
	}

	BroadcastWSMessage("label_printed", map[string]any{
		"job_id":  res.JobID,
		"ok":      res.OK,
		"kind":    render.Kind(content),
		"printer": s.PrinterURI,
		"dry_run": res.DryRun,
		"error":   resp.Error,
	})
	writeJSON(w, statusFor(k), resp)
}

func handlePrintText(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req textRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	cfg := env.Current()
	dispatchAndRespond(w, r, req.content(cfg), req.apply(cfg.PrintSettings()))
}

func handlePrintQRCode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req qrRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	cfg := env.Current()
	dispatchAndRespond(w, r, req.content(cfg), req.apply(cfg.PrintSettings()))
}

func handlePrintLabel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req labelRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	cfg := env.Current()
	text := textRequest{Text: req.Text, FontSize: req.FontSize, Alignment: req.Alignment}
	content := render.Combined{
		Text:       text.content(cfg),
		QR:         req.QR.content(cfg),
		QRPosition: render.QRPosition(req.QRPosition),
	}
	if content.QRPosition == "" {
		content.QRPosition = render.QRLeft
	}
	dispatchAndRespond(w, r, content, req.apply(cfg.PrintSettings()))
}

// handlePrintImage accepts a multipart upload in field "image". Settings
// overrides and "mode" are ordinary form fields.
func handlePrintImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, apperr.Validation("invalid multipart form: %v", err))
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, apperr.Validation("image file is required"))
		return
	}
	defer file.Close()

	img, format, err := image.Decode(file)
	if err != nil {
		writeError(w, apperr.Validation("unsupported image %q: %v", header.Filename, err))
		return
	}
	logger.Debug("Image uploaded",
		zap.String("filename", header.Filename),
		zap.String("format", format),
		zap.Int("width", img.Bounds().Dx()),
		zap.Int("height", img.Bounds().Dy()))

	o, err := formOverride(r)
	if err != nil {
		writeError(w, err)
		return
	}
	mode := render.ImageMode(r.FormValue("mode"))
	if mode == "" {
		mode = render.ImageModeColor
	}
	cfg := env.Current()
	dispatchAndRespond(w, r, render.Image{Img: img, Mode: mode}, o.apply(cfg.PrintSettings()))
}

func formOverride(r *http.Request) (settingsOverride, error) {
	var o settingsOverride
	str := func(key string) *string {
		if v := r.FormValue(key); v != "" {
			return &v
		}
		return nil
	}
	o.PrinterURI = str("printer_uri")
	o.PrinterModel = str("printer_model")
	o.LabelSize = str("label_size")

	if v := r.FormValue("rotate"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return o, apperr.Validation("rotate must be an integer")
		}
		o.Rotate = &n
	}
	if v := r.FormValue("threshold"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return o, apperr.Validation("threshold must be a number")
		}
		o.Threshold = &f
	}
	for key, dst := range map[string]**bool{
		"dither":          &o.Dither,
		"red":             &o.Red,
		"compress":        &o.Compress,
		"cut":             &o.Cut,
		"high_resolution": &o.HighResolution,
	} {
		v := r.FormValue(key)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return o, apperr.Validation("%s must be true or false", key)
		}
		*dst = &b
	}
	return o, nil
}
