package main

import (
	"context"
	"time"

	"github.com/nantokaworks/ql-label-printer/internal/dispatch"
	"github.com/nantokaworks/ql-label-printer/internal/env"
	"github.com/nantokaworks/ql-label-printer/internal/fontmanager"
	"github.com/nantokaworks/ql-label-printer/internal/keepalive"
	"github.com/nantokaworks/ql-label-printer/internal/shared/logger"
	"go.uber.org/zap"
)

func dispatchOptions(cfg env.EnvValue) dispatch.Options {
	return dispatch.Options{
		DryRun:        cfg.DryRunMode,
		RecordHistory: true,
		DebugOutput:   cfg.DebugOutput,
	}
}

func configureFonts(cfg env.EnvValue) {
	if err := fontmanager.Configure(cfg.FontPath, cfg.FontPathCJK); err != nil {
		// 指定フォントが読めなくても内蔵フォントで続行
		logger.Error("Failed to configure fonts, using builtin fonts", zap.Error(err))
		if err := fontmanager.Configure("", ""); err != nil {
			logger.Error("Failed to initialize font manager", zap.Error(err))
		}
	}
}

// applyKeepAlive starts or stops the keep-alive of the configured printer to match cfg.
func applyKeepAlive(s *keepalive.Scheduler, cfg env.EnvValue) {
	current := s.Status(cfg.PrinterURI)
	if !cfg.KeepAliveEnabled {
		if current.Running {
			s.Disable(cfg.PrinterURI)
		}
		return
	}
	if current.Running && current.Interval == cfg.KeepAliveInterval {
		return
	}
	if err := s.Enable(cfg.PrinterURI, cfg.KeepAliveInterval); err != nil {
		logger.Error("Failed to enable keep-alive", zap.String("uri", cfg.PrinterURI), zap.Error(err))
	}
}

// stopKeepAlive stops the loop of a printer that is no longer configured.
func stopKeepAlive(s *keepalive.Scheduler, uri string) {
	if s.Status(uri).Running {
		logger.Info("Printer changed, stopping keep-alive of previous printer", zap.String("uri", uri))
		s.Disable(uri)
	}
}

// reload applies changed settings without a restart. Transport timeouts and
// the server port still need one.
func reload(d *dispatch.Dispatcher, s *keepalive.Scheduler) {
	before := env.Current()
	env.LoadEnv()
	cfg := env.Current()

	d.SetOptions(dispatchOptions(cfg))
	s.SetModel(cfg.PrinterModel)
	if cfg.FontPath != before.FontPath || cfg.FontPathCJK != before.FontPathCJK {
		configureFonts(cfg)
	}
	if before.PrinterURI != cfg.PrinterURI {
		stopKeepAlive(s, before.PrinterURI)
	}
	applyKeepAlive(s, cfg)

	if cfg.TransportTimeout != before.TransportTimeout || cfg.ServerPort != before.ServerPort {
		logger.Warn("TRANSPORT_TIMEOUT and SERVER_PORT take effect after restart")
	}
	logger.Info("Settings reloaded")
}

// checkInitialPrinterStatus probes the configured printer once so the UI has a state to show.
func checkInitialPrinterStatus(d *dispatch.Dispatcher, cfg env.EnvValue) {
	if cfg.DryRunMode {
		logger.Info("Dry-run mode, skipping initial printer probe")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	res := d.StatusProbe(ctx, cfg.PrinterURI, cfg.PrinterModel)
	if res.Available {
		logger.Info("Printer ready", zap.String("uri", cfg.PrinterURI), zap.String("detail", res.Detail))
	} else {
		logger.Warn("Printer not available", zap.String("uri", cfg.PrinterURI), zap.String("detail", res.Detail))
	}
}
