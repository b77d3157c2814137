package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/nantokaworks/ql-label-printer/internal/dispatch"
	"github.com/nantokaworks/ql-label-printer/internal/env"
	"github.com/nantokaworks/ql-label-printer/internal/keepalive"
	"github.com/nantokaworks/ql-label-printer/internal/labelhistory"
	"github.com/nantokaworks/ql-label-printer/internal/localdb"
	"github.com/nantokaworks/ql-label-printer/internal/settings"
	"github.com/nantokaworks/ql-label-printer/internal/shared/logger"
	"github.com/nantokaworks/ql-label-printer/internal/shared/paths"
	"github.com/nantokaworks/ql-label-printer/internal/status"
	"github.com/nantokaworks/ql-label-printer/internal/version"
	"github.com/nantokaworks/ql-label-printer/internal/webserver"
	"go.uber.org/zap"
)

func main() {
	logger.Init(false)
	defer logger.Sync()

	logger.Info("Starting ql-label-printer", zap.String("version", version.String()))

	if err := paths.EnsureDataDirs(); err != nil {
		logger.Fatal("Failed to ensure data directories", zap.Error(err))
	}

	db, err := localdb.SetupDB(paths.GetDBPath())
	if err != nil {
		logger.Fatal("Failed to setup database", zap.Error(err))
	}

	// env.LoadEnv must run after DB initialization.
	env.LoadEnv()
	if env.Value.DebugMode {
		logger.Init(true)
		logger.Info("Debug mode enabled")
	}
	cfg := env.Current()

	labelhistory.InitializeDataDir()
	configureFonts(cfg)

	registry := dispatch.NewRegistry(nil, cfg.TransportConfig())
	dispatcher := dispatch.New(registry, dispatchOptions(cfg))
	scheduler := keepalive.NewScheduler(registry, cfg.PrinterModel)
	applyKeepAlive(scheduler, cfg)

	status.RegisterPrinterStatusChangeCallback(func(state status.PrinterState) {
		logger.Info("Printer status changed",
			zap.String("uri", state.URI),
			zap.Bool("online", state.Online),
			zap.String("detail", state.Detail))
	})

	webserver.Configure(webserver.Deps{
		Dispatcher: dispatcher,
		KeepAlive:  scheduler,
		Settings:   settings.NewSettingsManager(db),
		Reload: func() {
			reload(dispatcher, scheduler)
		},
	})

	port := 8080
	if cfg.ServerPort != 0 {
		port = cfg.ServerPort
	}
	if err := webserver.StartWebServer(port); err != nil {
		logger.Fatal("Failed to start web server", zap.Error(err))
	}

	go checkInitialPrinterStatus(dispatcher, cfg)

	logger.Info("Server started",
		zap.Int("port", port),
		zap.String("webui", fmt.Sprintf("http://localhost:%d/", port)),
		zap.String("printer", cfg.PrinterURI),
		zap.Bool("dry_run", cfg.DryRunMode))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")

	scheduler.Stop()
	webserver.Shutdown()
	registry.Close()
	if err := localdb.Close(); err != nil {
		logger.Warn("Failed to close database", zap.Error(err))
	}

	logger.Info("Shutdown complete")
}
