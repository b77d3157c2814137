package webserver

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nantokaworks/ql-label-printer/internal/apperr"
	"github.com/nantokaworks/ql-label-printer/internal/env"
	"github.com/nantokaworks/ql-label-printer/internal/keepalive"
	"github.com/nantokaworks/ql-label-printer/internal/labels"
	"github.com/nantokaworks/ql-label-printer/internal/shared/logger"
	"github.com/nantokaworks/ql-label-printer/internal/status"
	"go.uber.org/zap"
)

type statusRequest struct {
	PrinterURI   string `json:"printer_uri"`
	PrinterModel string `json:"printer_model"`
}

// handlePrinterStatus 指定プリンターにステータスを問い合わせる
func handlePrinterStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if app.Dispatcher == nil {
		http.Error(w, "Dispatcher not configured", http.StatusServiceUnavailable)
		return
	}
	var req statusRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
	}
	cfg := env.Current()
	if req.PrinterURI == "" {
		req.PrinterURI = cfg.PrinterURI
	}
	if req.PrinterModel == "" {
		req.PrinterModel = cfg.PrinterModel
	}

	res := app.Dispatcher.StatusProbe(r.Context(), req.PrinterURI, req.PrinterModel)
	writeJSON(w, http.StatusOK, res)
}

type keepAliveRequest struct {
	PrinterURI string `json:"printer_uri"`
	Enabled    bool   `json:"enabled"`
	// Interval is in seconds. 0 keeps the configured interval.
	Interval int `json:"interval"`
}

type keepAliveResponse struct {
	Printers []keepalive.Status `json:"printers"`
}

// handleKeepAlive GET で状態一覧、POST で有効化/無効化
func handleKeepAlive(w http.ResponseWriter, r *http.Request) {
	if app.KeepAlive == nil {
		http.Error(w, "Keep-alive not configured", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, keepAliveResponse{Printers: app.KeepAlive.StatusAll()})
	case http.MethodPost:
		var req keepAliveRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		cfg := env.Current()
		if req.PrinterURI == "" {
			req.PrinterURI = cfg.PrinterURI
		}
		interval := time.Duration(req.Interval) * time.Second
		if req.Interval == 0 {
			interval = cfg.KeepAliveInterval
		}

		if req.Enabled {
			if err := app.KeepAlive.Enable(req.PrinterURI, interval); err != nil {
				writeError(w, err)
				return
			}
		} else {
			app.KeepAlive.Disable(req.PrinterURI)
		}
		if req.PrinterURI == cfg.PrinterURI {
			persistKeepAlive(req.Enabled, interval)
		}
		writeJSON(w, http.StatusOK, app.KeepAlive.Status(req.PrinterURI))
	default:
		methodNotAllowed(w)
	}
}

// persistKeepAlive 設定プリンターのキープアライブ状態を次回起動時にも使う
func persistKeepAlive(enabled bool, interval time.Duration) {
	if app.Settings == nil {
		return
	}
	values := map[string]string{"KEEP_ALIVE_ENABLED": strconv.FormatBool(enabled)}
	if enabled {
		values["KEEP_ALIVE_INTERVAL"] = strconv.Itoa(int(interval / time.Second))
	}
	if err := app.Settings.UpdateSettings(values); err != nil {
		logger.Warn("Failed to persist keep-alive setting", zap.Error(err))
	}
}

// handlePrinters returns the last known reachability of every printer.
func handlePrinters(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	states := status.AllPrinterStates()
	out := make([]printerInfo, 0, len(states))
	for _, st := range states {
		info := printerInfo{PrinterState: st}
		if app.Dispatcher != nil {
			if conn, ok := app.Dispatcher.Registry().Lookup(st.URI); ok {
				info.Busy = conn.Busy()
				info.Queued = conn.Waiting()
			}
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"printers": out})
}

// printerInfo is a printer state plus its current queue.
type printerInfo struct {
	status.PrinterState
	Busy   bool `json:"busy"`
	Queued int  `json:"queued"`
}

type modelInfo struct {
	Name   string   `json:"name"`
	Labels []string `json:"labels"`
}

// handleModels lists supported models, or the labels of ?model=.
func handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if name := r.URL.Query().Get("model"); name != "" {
		profiles, err := labels.ForModel(name)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"model": name, "labels": profiles})
		return
	}

	models := labels.Models()
	out := make([]modelInfo, 0, len(models))
	for _, m := range models {
		profiles, err := labels.ForModel(m)
		if err != nil {
			writeError(w, apperr.Validation("%v", err))
			return
		}
		info := modelInfo{Name: m, Labels: make([]string, 0, len(profiles))}
		for _, p := range profiles {
			info.Labels = append(info.Labels, p.ID)
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, map[string]any{"models": out})
}
