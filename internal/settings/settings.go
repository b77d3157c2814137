package settings

import (
	"database/sql"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/nantokaworks/ql-label-printer/internal/apperr"
	"github.com/nantokaworks/ql-label-printer/internal/labels"
	"github.com/nantokaworks/ql-label-printer/internal/output"
	"github.com/nantokaworks/ql-label-printer/internal/shared/logger"
	"go.uber.org/zap"
)

type SettingType string

const (
	SettingTypeNormal  SettingType = "normal"
	SettingTypePrinter SettingType = "printer"
	SettingTypeServer  SettingType = "server"
)

type Setting struct {
	Key         string      `json:"key"`
	Value       string      `json:"value"`
	Type        SettingType `json:"type"`
	Required    bool        `json:"required"`
	Description string      `json:"description"`
	UpdatedAt   time.Time   `json:"updated_at"`
	HasValue    bool        `json:"has_value"`
}

type SettingsManager struct {
	db *sql.DB
}

func NewSettingsManager(db *sql.DB) *SettingsManager {
	return &SettingsManager{db: db}
}

// 設定の定義
var DefaultSettings = map[string]Setting{
	// プリンター設定
	"PRINTER_URI": {
		Key: "PRINTER_URI", Value: "tcp://192.168.1.100", Type: SettingTypePrinter, Required: true,
		Description: "Printer address (tcp://host[:port], file:///dev/usb/lp0 or usb://0x04f9:0x209b)",
	},
	"PRINTER_MODEL": {
		Key: "PRINTER_MODEL", Value: "QL-800", Type: SettingTypePrinter, Required: true,
		Description: "Brother QL printer model",
	},
	"LABEL_SIZE": {
		Key: "LABEL_SIZE", Value: "62", Type: SettingTypePrinter, Required: true,
		Description: "Label identifier (e.g. 62, 29x90, 62red)",
	},
	"TRANSPORT_TIMEOUT": {
		Key: "TRANSPORT_TIMEOUT", Value: "10", Type: SettingTypePrinter, Required: false,
		Description: "Printer I/O timeout in seconds",
	},

	// 印刷設定
	"FONT_SIZE": {
		Key: "FONT_SIZE", Value: "48", Type: SettingTypeNormal, Required: false,
		Description: "Default text size in pixels",
	},
	"ALIGNMENT": {
		Key: "ALIGNMENT", Value: "left", Type: SettingTypeNormal, Required: false,
		Description: "Default text alignment (left, center or right)",
	},
	"ROTATE": {
		Key: "ROTATE", Value: "0", Type: SettingTypeNormal, Required: false,
		Description: "Rotation in degrees (0, 90, 180 or 270)",
	},
	"THRESHOLD": {
		Key: "THRESHOLD", Value: "70", Type: SettingTypeNormal, Required: false,
		Description: "Black threshold in percent (0-100)",
	},
	"DITHER": {
		Key: "DITHER", Value: "false", Type: SettingTypeNormal, Required: false,
		Description: "Enable Floyd-Steinberg dithering",
	},
	"COMPRESS": {
		Key: "COMPRESS", Value: "false", Type: SettingTypeNormal, Required: false,
		Description: "Compress raster lines with PackBits",
	},
	"RED": {
		Key: "RED", Value: "false", Type: SettingTypeNormal, Required: false,
		Description: "Print red on two-colour media",
	},
	"CUT": {
		Key: "CUT", Value: "true", Type: SettingTypeNormal, Required: false,
		Description: "Cut after each label",
	},
	"HIGH_RESOLUTION": {
		Key: "HIGH_RESOLUTION", Value: "false", Type: SettingTypeNormal, Required: false,
		Description: "Print at 300x600 dpi",
	},
	"FONT_PATH": {
		Key: "FONT_PATH", Value: "", Type: SettingTypeNormal, Required: false,
		Description: "TrueType/OpenType font for latin text",
	},
	"FONT_PATH_CJK": {
		Key: "FONT_PATH_CJK", Value: "", Type: SettingTypeNormal, Required: false,
		Description: "TrueType/OpenType font for Japanese, Chinese and Korean text",
	},

	// 動作設定
	"KEEP_ALIVE_INTERVAL": {
		Key: "KEEP_ALIVE_INTERVAL", Value: "60", Type: SettingTypeNormal, Required: false,
		Description: "Keep alive interval in seconds",
	},
	"KEEP_ALIVE_ENABLED": {
		Key: "KEEP_ALIVE_ENABLED", Value: "false", Type: SettingTypeNormal, Required: false,
		Description: "Enable keep alive functionality",
	},
	"DRY_RUN_MODE": {
		Key: "DRY_RUN_MODE", Value: "false", Type: SettingTypeNormal, Required: false,
		Description: "Enable dry run mode (no actual printing)",
	},
	"DEBUG_OUTPUT": {
		Key: "DEBUG_OUTPUT", Value: "false", Type: SettingTypeNormal, Required: false,
		Description: "Write encoded command streams to the output directory",
	},

	// サーバー設定
	"SERVER_PORT": {
		Key: "SERVER_PORT", Value: "8080", Type: SettingTypeServer, Required: false,
		Description: "Web server port",
	},
}

// 機能の有効性チェック
type FeatureStatus struct {
	PrinterConfigured bool     `json:"printer_configured"`
	MissingSettings   []string `json:"missing_settings"`
	Warnings          []string `json:"warnings"`
	ServiceMode       bool     `json:"service_mode"` // systemdサービスとして実行されているか
}

func (sm *SettingsManager) CheckFeatureStatus() (*FeatureStatus, error) {
	status := &FeatureStatus{
		MissingSettings: []string{},
		Warnings:        []string{},
		ServiceMode:     os.Getenv("RUNNING_AS_SERVICE") == "true",
	}

	status.PrinterConfigured = true
	for _, key := range []string{"PRINTER_URI", "PRINTER_MODEL", "LABEL_SIZE"} {
		if val, err := sm.GetSetting(key); err != nil || val == "" {
			status.MissingSettings = append(status.MissingSettings, key)
			status.PrinterConfigured = false
		}
	}

	// 機種とラベルの組み合わせチェック
	model, _ := sm.GetSetting("PRINTER_MODEL")
	label, _ := sm.GetSetting("LABEL_SIZE")
	if model != "" && label != "" {
		if _, err := labels.Lookup(model, label); err != nil {
			status.Warnings = append(status.Warnings, err.Error())
		}
	}

	if dryRun, _ := sm.GetSetting("DRY_RUN_MODE"); dryRun == "true" {
		status.Warnings = append(status.Warnings, "DRY_RUN_MODE is enabled - no actual printing will occur")
	}

	return status, nil
}

// CRUD操作
func (sm *SettingsManager) GetSetting(key string) (string, error) {
	var value string
	err := sm.db.QueryRow("SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		// デフォルト値を返す
		if defaultSetting, exists := DefaultSettings[key]; exists {
			return defaultSetting.Value, nil
		}
		return "", fmt.Errorf("setting not found: %s", key)
	}
	return value, err
}

func (sm *SettingsManager) SetSetting(key, value string) error {
	defaultSetting, exists := DefaultSettings[key]
	if !exists {
		return apperr.Validation("unknown setting key: %s", key)
	}

	_, err := sm.db.Exec(`
		INSERT INTO settings (key, value, setting_type, is_required, description)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			updated_at = CURRENT_TIMESTAMP`,
		key, value,
		string(defaultSetting.Type),
		defaultSetting.Required,
		defaultSetting.Description,
	)
	return err
}

// UpdateSettings validates every entry before writing any of them.
func (sm *SettingsManager) UpdateSettings(values map[string]string) error {
	keys := make([]string, 0, len(values))
	for key, value := range values {
		if _, exists := DefaultSettings[key]; !exists {
			return apperr.Validation("unknown setting key: %s", key)
		}
		if err := ValidateSetting(key, value); err != nil {
			return apperr.Validation("%s: %v", key, err)
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if err := sm.SetSetting(key, values[key]); err != nil {
			return fmt.Errorf("failed to save %s: %w", key, err)
		}
		logger.Info("Setting updated", zap.String("key", key))
	}
	return nil
}

func (sm *SettingsManager) GetAllSettings() (map[string]Setting, error) {
	rows, err := sm.db.Query(`
		SELECT key, value, setting_type, is_required, description, updated_at
		FROM settings ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make(map[string]Setting)
	for rows.Next() {
		var s Setting
		var settingType string
		var description sql.NullString
		err := rows.Scan(&s.Key, &s.Value, &settingType, &s.Required, &description, &s.UpdatedAt)
		if err != nil {
			return nil, err
		}
		s.Type = SettingType(settingType)
		s.Description = description.String
		s.HasValue = s.Value != ""
		settings[s.Key] = s
	}

	// DBにない設定はデフォルト値で補完
	for key, defaultSetting := range DefaultSettings {
		if _, exists := settings[key]; !exists {
			defaultSetting.HasValue = defaultSetting.Value != ""
			settings[key] = defaultSetting
		}
	}

	return settings, nil
}

// 環境変数からの移行
func (sm *SettingsManager) MigrateFromEnv() error {
	logger.Info("Starting migration from environment variables")
	migrated := 0

	for key := range DefaultSettings {
		// 既にDB設定が存在する場合はスキップ
		var existingKey string
		if err := sm.db.QueryRow("SELECT key FROM settings WHERE key = ?", key).Scan(&existingKey); err == nil {
			continue
		}

		envValue := os.Getenv(key)
		if envValue == "" {
			continue
		}
		if err := ValidateSetting(key, envValue); err != nil {
			logger.Warn("Ignoring invalid environment setting", zap.String("key", key), zap.Error(err))
			continue
		}
		if err := sm.SetSetting(key, envValue); err != nil {
			logger.Error("Failed to migrate setting", zap.String("key", key), zap.Error(err))
			return fmt.Errorf("failed to migrate %s: %w", key, err)
		}
		logger.Info("Migrated setting from environment", zap.String("key", key))
		migrated++
	}

	if migrated > 0 {
		logger.Info("Migration completed", zap.Int("migrated_count", migrated))
	}
	return nil
}

// バリデーション
func ValidateSetting(key, value string) error {
	switch key {
	case "PRINTER_URI":
		if value == "" {
			return fmt.Errorf("printer URI is required")
		}
		if _, err := output.TypeOf(value); err != nil {
			return err
		}
	case "PRINTER_MODEL":
		if _, err := labels.LookupModel(value); err != nil {
			return err
		}
	case "LABEL_SIZE":
		if !knownLabel(value) {
			return fmt.Errorf("unknown label %q", value)
		}
	case "ALIGNMENT":
		if value != "left" && value != "center" && value != "right" {
			return fmt.Errorf("must be 'left', 'center' or 'right'")
		}
	case "ROTATE":
		switch value {
		case "0", "90", "180", "270":
		default:
			return fmt.Errorf("must be 0, 90, 180 or 270")
		}
	case "THRESHOLD":
		if val, err := strconv.ParseFloat(value, 64); err != nil || val < 0 || val > 100 {
			return fmt.Errorf("must be a number between 0 and 100")
		}
	case "FONT_SIZE":
		if val, err := strconv.Atoi(value); err != nil || val < 4 || val > 400 {
			return fmt.Errorf("must be integer between 4 and 400")
		}
	case "KEEP_ALIVE_INTERVAL":
		if val, err := strconv.Atoi(value); err != nil || val < 10 || val > 3600 {
			return fmt.Errorf("must be integer between 10 and 3600 seconds")
		}
	case "TRANSPORT_TIMEOUT":
		if val, err := strconv.Atoi(value); err != nil || val < 1 || val > 300 {
			return fmt.Errorf("must be integer between 1 and 300 seconds")
		}
	case "SERVER_PORT":
		if val, err := strconv.Atoi(value); err != nil || val < 1 || val > 65535 {
			return fmt.Errorf("must be integer between 1 and 65535")
		}
	case "FONT_PATH", "FONT_PATH_CJK":
		if value != "" {
			if _, err := os.Stat(value); err != nil {
				return fmt.Errorf("font file not found: %s", value)
			}
		}
	case "DITHER", "COMPRESS", "RED", "CUT", "HIGH_RESOLUTION", "KEEP_ALIVE_ENABLED", "DRY_RUN_MODE", "DEBUG_OUTPUT":
		if value != "true" && value != "false" {
			return fmt.Errorf("must be 'true' or 'false'")
		}
	}
	return nil
}

func knownLabel(id string) bool {
	for _, model := range labels.Models() {
		if _, err := labels.Lookup(model, id); err == nil {
			return true
		}
	}
	return false
}

// 初期設定のセットアップ
func (sm *SettingsManager) InitializeDefaultSettings() error {
	for key, setting := range DefaultSettings {
		// 既に設定が存在する場合はスキップ
		var existingKey string
		if err := sm.db.QueryRow("SELECT key FROM settings WHERE key = ?", key).Scan(&existingKey); err == nil {
			continue
		}

		if err := sm.SetSetting(key, setting.Value); err != nil {
			return fmt.Errorf("failed to initialize setting %s: %w", key, err)
		}
	}
	return nil
}
