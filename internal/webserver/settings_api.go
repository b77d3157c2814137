package webserver

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/nantokaworks/ql-label-printer/internal/labelhistory"
	"github.com/nantokaworks/ql-label-printer/internal/localdb"
	"github.com/nantokaworks/ql-label-printer/internal/settings"
	"github.com/nantokaworks/ql-label-printer/internal/shared/logger"
	"go.uber.org/zap"
)

type settingsResponse struct {
	Settings map[string]settings.Setting `json:"settings"`
	Status   *settings.FeatureStatus     `json:"status"`
}

// handleSettings GET で全設定、PUT で部分更新（全件検証してから保存）
func handleSettings(w http.ResponseWriter, r *http.Request) {
	if app.Settings == nil {
		http.Error(w, "Settings database not available", http.StatusServiceUnavailable)
		return
	}
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut:
		var values map[string]string
		if err := decodeJSON(r, &values); err != nil {
			writeError(w, err)
			return
		}
		if err := app.Settings.UpdateSettings(values); err != nil {
			writeError(w, err)
			return
		}
		if app.Reload != nil {
			app.Reload()
		}
		BroadcastWSMessage("settings_updated", values)
	default:
		methodNotAllowed(w)
		return
	}

	all, err := app.Settings.GetAllSettings()
	if err != nil {
		logger.Error("Failed to read settings", zap.Error(err))
		writeError(w, err)
		return
	}
	st, err := app.Settings.CheckFeatureStatus()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{Settings: all, Status: st})
}

func limitParam(r *http.Request, def int) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// handleLabels returns recently dispatched labels that still have a preview.
func handleLabels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"labels": labelhistory.Recent(limitParam(r, 20))})
}

// handleJobs returns the persisted job log.
func handleJobs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	db := localdb.GetDB()
	if db == nil {
		http.Error(w, "Database not available", http.StatusServiceUnavailable)
		return
	}
	jobs, err := localdb.ListLabelJobs(db, limitParam(r, 100))
	if err != nil {
		logger.Error("Failed to list label jobs", zap.Error(err))
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs})
}

// handleJobPreview serves /api/jobs/{id}/preview
func handleJobPreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, "/api/jobs/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "preview" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}
	path, err := labelhistory.PreviewPath(parts[0])
	if err != nil {
		http.Error(w, "Preview not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, path)
}
