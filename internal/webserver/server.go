package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nantokaworks/ql-label-printer/internal/dispatch"
	"github.com/nantokaworks/ql-label-printer/internal/keepalive"
	"github.com/nantokaworks/ql-label-printer/internal/settings"
	"github.com/nantokaworks/ql-label-printer/internal/shared/logger"
	"go.uber.org/zap"
)

// Deps are the services the HTTP handlers call into.
type Deps struct {
	Dispatcher *dispatch.Dispatcher
	KeepAlive  *keepalive.Scheduler
	// Settings may be nil when no database is available; /api/settings then answers 503.
	Settings *settings.SettingsManager
	// Reload is called after settings change so the new values take effect.
	Reload func()
}

var (
	httpServer *http.Server
	app        Deps
)

// Configure sets the services used by the handlers.
func Configure(d Deps) {
	app = d
}

// corsMiddleware adds CORS headers to HTTP handlers
func corsMiddleware(handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		handler(w, r)
	}
}

// NewMux registers every route.
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()

	// 印刷
	mux.HandleFunc("/api/print/text", corsMiddleware(handlePrintText))
	mux.HandleFunc("/api/print/image", corsMiddleware(handlePrintImage))
	mux.HandleFunc("/api/print/qrcode", corsMiddleware(handlePrintQRCode))
	mux.HandleFunc("/api/print/label", corsMiddleware(handlePrintLabel))

	// プリンター
	mux.HandleFunc("/api/printer/status", corsMiddleware(handlePrinterStatus))
	mux.HandleFunc("/api/printer/keepalive", corsMiddleware(handleKeepAlive))
	mux.HandleFunc("/api/printers", corsMiddleware(handlePrinters))
	mux.HandleFunc("/api/models", corsMiddleware(handleModels))

	// 設定と履歴
	mux.HandleFunc("/api/settings", corsMiddleware(handleSettings))
	mux.HandleFunc("/api/labels", corsMiddleware(handleLabels))
	mux.HandleFunc("/api/jobs", corsMiddleware(handleJobs))
	mux.HandleFunc("/api/jobs/", corsMiddleware(handleJobPreview))

	mux.HandleFunc("/api/health", corsMiddleware(handleHealth))

	RegisterWebSocketRoute(mux)
	return mux
}

// StartWebServer starts listening on port in the background.
func StartWebServer(port int) error {
	mux := NewMux()
	addr := fmt.Sprintf(":%d", port)

	logger.Info("Starting web server", zap.String("address", addr))

	httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
		// 印刷はプリンター待ちがあるので長め
		WriteTimeout: 60 * time.Second,
		ReadTimeout:  30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine and wait briefly to check for immediate errors
	errChan := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		if err != nil {
			logger.Error("Failed to start web server", zap.Error(err))
			return fmt.Errorf("failed to start web server on port %d: %w", port, err)
		}
	case <-time.After(100 * time.Millisecond):
	}

	return nil
}

// Shutdown gracefully shuts down the web server
func Shutdown() {
	StopWSHub()
	if httpServer == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown web server gracefully", zap.Error(err))
	} else {
		logger.Info("Web server shutdown complete")
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode response", zap.Error(err))
	}
}

type errorResponse struct {
	Error    string `json:"error"`
	Category string `json:"category"`
}

// statusFor maps a failure category to an HTTP status.
func statusFor(k dispatch.Kind) int {
	switch k {
	case dispatch.KindNone:
		return http.StatusOK
	case dispatch.KindValidation:
		return http.StatusBadRequest
	case dispatch.KindRender:
		return http.StatusUnprocessableEntity
	case dispatch.KindTransport:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	k := dispatch.Classify(err)
	writeJSON(w, statusFor(k), errorResponse{Error: err.Error(), Category: string(k)})
}

func methodNotAllowed(w http.ResponseWriter) {
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "time": time.Now()})
}
