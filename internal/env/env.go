// Package env holds the effective configuration: .env, environment and the settings table.
package env

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/nantokaworks/ql-label-printer/internal/dispatch"
	"github.com/nantokaworks/ql-label-printer/internal/localdb"
	"github.com/nantokaworks/ql-label-printer/internal/output"
	"github.com/nantokaworks/ql-label-printer/internal/render"
	"github.com/nantokaworks/ql-label-printer/internal/settings"
	"github.com/nantokaworks/ql-label-printer/internal/shared/logger"
	"go.uber.org/zap"
)

type EnvValue struct {
	ServerPort int

	PrinterURI       string
	PrinterModel     string
	LabelSize        string
	TransportTimeout time.Duration

	FontSize       int
	Alignment      render.Align
	Rotate         int
	Threshold      float64
	Dither         bool
	Compress       bool
	Red            bool
	Cut            bool
	HighResolution bool
	FontPath       string
	FontPathCJK    string

	KeepAliveEnabled  bool
	KeepAliveInterval time.Duration

	DryRunMode  bool
	DebugMode   bool
	DebugOutput bool
}

var (
	Value EnvValue
	mu    sync.RWMutex
)

// LoadEnv reads .env (if present) and then the settings table. It must run
// after localdb.SetupDB; without a database the process environment is used.
func LoadEnv() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("Failed to load .env", zap.Error(err))
	}

	get := os.Getenv
	if db := localdb.GetDB(); db != nil {
		sm := settings.NewSettingsManager(db)
		if err := sm.MigrateFromEnv(); err != nil {
			logger.Warn("Failed to migrate settings from environment", zap.Error(err))
		}
		// 環境変数にない項目はデフォルト値で埋める
		if err := sm.InitializeDefaultSettings(); err != nil {
			logger.Warn("Failed to initialize default settings", zap.Error(err))
		}
		get = func(key string) string {
			v, err := sm.GetSetting(key)
			if err != nil {
				logger.Warn("Failed to read setting", zap.String("key", key), zap.Error(err))
				return ""
			}
			return v
		}
	}

	v := load(get)
	mu.Lock()
	Value = v
	mu.Unlock()

	logger.Debug("Configuration loaded",
		zap.String("printer_uri", v.PrinterURI),
		zap.String("printer_model", v.PrinterModel),
		zap.String("label_size", v.LabelSize),
		zap.Bool("dry_run", v.DryRunMode),
		zap.Bool("keep_alive", v.KeepAliveEnabled))
}

// Current returns a copy of the configuration, safe to call while settings are being reloaded.
func Current() EnvValue {
	mu.RLock()
	defer mu.RUnlock()
	return Value
}

func load(get func(string) string) EnvValue {
	r := reader{get: get}
	return EnvValue{
		ServerPort:        r.int("SERVER_PORT"),
		PrinterURI:        r.str("PRINTER_URI"),
		PrinterModel:      r.str("PRINTER_MODEL"),
		LabelSize:         r.str("LABEL_SIZE"),
		TransportTimeout:  time.Duration(r.int("TRANSPORT_TIMEOUT")) * time.Second,
		FontSize:          r.int("FONT_SIZE"),
		Alignment:         render.Align(r.str("ALIGNMENT")),
		Rotate:            r.int("ROTATE"),
		Threshold:         r.float("THRESHOLD"),
		Dither:            r.bool("DITHER"),
		Compress:          r.bool("COMPRESS"),
		Red:               r.bool("RED"),
		Cut:               r.bool("CUT"),
		HighResolution:    r.bool("HIGH_RESOLUTION"),
		FontPath:          r.str("FONT_PATH"),
		FontPathCJK:       r.str("FONT_PATH_CJK"),
		KeepAliveEnabled:  r.bool("KEEP_ALIVE_ENABLED"),
		KeepAliveInterval: time.Duration(r.int("KEEP_ALIVE_INTERVAL")) * time.Second,
		DryRunMode:        r.bool("DRY_RUN_MODE"),
		DebugOutput:       r.bool("DEBUG_OUTPUT"),
		// DEBUG_MODE はDBに保存しない
		DebugMode: os.Getenv("DEBUG_MODE") == "true",
	}
}

// reader falls back to the built-in default when a value is empty or invalid.
type reader struct {
	get func(string) string
}

func (r reader) str(key string) string {
	v := r.get(key)
	if v == "" {
		return settings.DefaultSettings[key].Value
	}
	if err := settings.ValidateSetting(key, v); err != nil {
		logger.Warn("Invalid setting, using default", zap.String("key", key), zap.String("value", v), zap.Error(err))
		return settings.DefaultSettings[key].Value
	}
	return v
}

func (r reader) int(key string) int {
	n, _ := strconv.Atoi(r.str(key))
	return n
}

func (r reader) float(key string) float64 {
	f, _ := strconv.ParseFloat(r.str(key), 64)
	return f
}

func (r reader) bool(key string) bool {
	return r.str(key) == "true"
}

// PrintSettings returns the job settings for the configured printer.
func (v EnvValue) PrintSettings() dispatch.PrintSettings {
	return dispatch.PrintSettings{
		PrinterURI:     v.PrinterURI,
		PrinterModel:   v.PrinterModel,
		LabelSize:      v.LabelSize,
		Rotate:         v.Rotate,
		Threshold:      v.Threshold,
		Dither:         v.Dither,
		Red:            v.Red,
		Compress:       v.Compress,
		Cut:            v.Cut,
		HighResolution: v.HighResolution,
	}
}

// TransportConfig returns the backend timeouts.
func (v EnvValue) TransportConfig() output.Config {
	cfg := output.DefaultConfig()
	if v.TransportTimeout > 0 {
		cfg.IOTimeout = v.TransportTimeout
	}
	return cfg
}
