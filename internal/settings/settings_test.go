package settings

import (
	"path/filepath"
	"testing"

	"github.com/nantokaworks/ql-label-printer/internal/apperr"
	"github.com/nantokaworks/ql-label-printer/internal/localdb"
)

func newManager(t *testing.T) *SettingsManager {
	t.Helper()
	db, err := localdb.OpenDB(filepath.Join(t.TempDir(), "settings.db"))
	if err != nil {
		t.Fatalf("OpenDB() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewSettingsManager(db)
}

func TestGetSettingDefaults(t *testing.T) {
	sm := newManager(t)
	got, err := sm.GetSetting("LABEL_SIZE")
	if err != nil || got != "62" {
		t.Fatalf("GetSetting(LABEL_SIZE) = %q, %v; want 62", got, err)
	}
	if _, err := sm.GetSetting("NOPE"); err == nil {
		t.Fatal("GetSetting(NOPE) error = nil, want error")
	}
}

func TestSetAndGetAll(t *testing.T) {
	sm := newManager(t)
	if err := sm.SetSetting("PRINTER_URI", "tcp://10.0.0.7:9100"); err != nil {
		t.Fatalf("SetSetting() error = %v", err)
	}
	got, _ := sm.GetSetting("PRINTER_URI")
	if got != "tcp://10.0.0.7:9100" {
		t.Fatalf("GetSetting(PRINTER_URI) = %q", got)
	}

	all, err := sm.GetAllSettings()
	if err != nil {
		t.Fatalf("GetAllSettings() error = %v", err)
	}
	if len(all) != len(DefaultSettings) {
		t.Fatalf("GetAllSettings() returned %d settings, want %d", len(all), len(DefaultSettings))
	}
	if all["PRINTER_URI"].Value != "tcp://10.0.0.7:9100" || all["THRESHOLD"].Value != "70" {
		t.Fatalf("GetAllSettings() = %+v", all)
	}
	if err := sm.SetSetting("CLIENT_SECRET", "x"); !apperr.IsValidation(err) {
		t.Fatalf("SetSetting(unknown) error = %v, want validation error", err)
	}
}

func TestUpdateSettingsIsAllOrNothing(t *testing.T) {
	sm := newManager(t)
	err := sm.UpdateSettings(map[string]string{
		"LABEL_SIZE": "29x90",
		"ROTATE":     "45",
	})
	if !apperr.IsValidation(err) {
		t.Fatalf("UpdateSettings() error = %v, want validation error", err)
	}
	if got, _ := sm.GetSetting("LABEL_SIZE"); got != "62" {
		t.Fatalf("LABEL_SIZE = %q after rejected update, want 62", got)
	}

	if err := sm.UpdateSettings(map[string]string{"LABEL_SIZE": "29x90", "ROTATE": "90"}); err != nil {
		t.Fatalf("UpdateSettings() error = %v", err)
	}
	if got, _ := sm.GetSetting("ROTATE"); got != "90" {
		t.Fatalf("ROTATE = %q, want 90", got)
	}
}

func TestValidateSetting(t *testing.T) {
	tests := []struct {
		key, value string
		wantErr    bool
	}{
		{"PRINTER_URI", "tcp://192.168.1.20", false},
		{"PRINTER_URI", "file:///dev/usb/lp0", false},
		{"PRINTER_URI", "bluetooth://aa", true},
		{"PRINTER_URI", "", true},
		{"PRINTER_MODEL", "QL-820NWB", false},
		{"PRINTER_MODEL", "QL-9999", true},
		{"LABEL_SIZE", "62red", false},
		{"LABEL_SIZE", "7x7", true},
		{"ALIGNMENT", "center", false},
		{"ALIGNMENT", "justify", true},
		{"ROTATE", "270", false},
		{"ROTATE", "45", true},
		{"THRESHOLD", "55.5", false},
		{"THRESHOLD", "101", true},
		{"KEEP_ALIVE_INTERVAL", "10", false},
		{"KEEP_ALIVE_INTERVAL", "5", true},
		{"SERVER_PORT", "70000", true},
		{"DITHER", "yes", true},
		{"RED", "true", false},
		{"FONT_PATH", "", false},
		{"FONT_PATH", "/no/such/font.ttf", true},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			err := ValidateSetting(tt.key, tt.value)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateSetting(%q, %q) error = %v, wantErr %v", tt.key, tt.value, err, tt.wantErr)
			}
		})
	}
}

func TestMigrateFromEnv(t *testing.T) {
	sm := newManager(t)
	t.Setenv("PRINTER_MODEL", "QL-700")
	t.Setenv("ROTATE", "33")
	if err := sm.SetSetting("LABEL_SIZE", "29"); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LABEL_SIZE", "62")

	if err := sm.MigrateFromEnv(); err != nil {
		t.Fatalf("MigrateFromEnv() error = %v", err)
	}
	if got, _ := sm.GetSetting("PRINTER_MODEL"); got != "QL-700" {
		t.Errorf("PRINTER_MODEL = %q, want QL-700", got)
	}
	if got, _ := sm.GetSetting("ROTATE"); got != "0" {
		t.Errorf("ROTATE = %q, invalid env value should be ignored", got)
	}
	if got, _ := sm.GetSetting("LABEL_SIZE"); got != "29" {
		t.Errorf("LABEL_SIZE = %q, stored value should win", got)
	}
}

func TestCheckFeatureStatus(t *testing.T) {
	sm := newManager(t)
	if err := sm.UpdateSettings(map[string]string{"PRINTER_MODEL": "QL-500", "LABEL_SIZE": "62red", "DRY_RUN_MODE": "true"}); err != nil {
		t.Fatal(err)
	}
	st, err := sm.CheckFeatureStatus()
	if err != nil {
		t.Fatalf("CheckFeatureStatus() error = %v", err)
	}
	if !st.PrinterConfigured {
		t.Errorf("PrinterConfigured = false, missing %v", st.MissingSettings)
	}
	if len(st.Warnings) != 2 {
		t.Errorf("Warnings = %v, want label mismatch and dry-run", st.Warnings)
	}
}

func TestInitializeDefaultSettingsKeepsStoredValues(t *testing.T) {
	sm := newManager(t)
	if err := sm.SetSetting("FONT_SIZE", "32"); err != nil {
		t.Fatal(err)
	}
	if err := sm.InitializeDefaultSettings(); err != nil {
		t.Fatalf("InitializeDefaultSettings() error = %v", err)
	}
	all, err := sm.GetAllSettings()
	if err != nil {
		t.Fatalf("GetAllSettings() error = %v", err)
	}
	if len(all) != len(DefaultSettings) {
		t.Fatalf("GetAllSettings() has %d keys, want %d", len(all), len(DefaultSettings))
	}
	if got := all["FONT_SIZE"].Value; got != "32" {
		t.Errorf("FONT_SIZE = %q, stored value should win", got)
	}
	if got := all["CUT"].Value; got != "true" {
		t.Errorf("CUT = %q, want default true", got)
	}
}
