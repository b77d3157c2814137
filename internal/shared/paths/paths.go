package paths

import (
	"os"
	"path/filepath"
)

const appDirName = "ql-label-printer"

// GetDataDir はデータディレクトリを返す。QL_DATA_DIR が設定されていればそれを優先する
func GetDataDir() string {
	if dir := os.Getenv("QL_DATA_DIR"); dir != "" {
		return dir
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, "."+appDirName)
	}
	return filepath.Join(os.TempDir(), appDirName)
}

// GetDBPath returns the SQLite database path.
func GetDBPath() string {
	return filepath.Join(GetDataDir(), "settings.db")
}

// GetOutputDir returns the directory used for label previews and debug output.
func GetOutputDir() string {
	return filepath.Join(GetDataDir(), "output")
}

// GetFontDir returns the directory scanned for user supplied font files.
func GetFontDir() string {
	return filepath.Join(GetDataDir(), "fonts")
}

// EnsureDataDirs creates every directory the server writes to.
func EnsureDataDirs() error {
	for _, dir := range []string{GetDataDir(), GetOutputDir(), GetFontDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
