package localdb

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/nantokaworks/ql-label-printer/internal/shared/logger"
	"go.uber.org/zap"
)

var (
	DBClient *sql.DB
	dbMu     sync.Mutex
)

// SetupDB opens the process wide database at dbPath. Later calls return the same handle.
func SetupDB(dbPath string) (*sql.DB, error) {
	dbMu.Lock()
	defer dbMu.Unlock()
	if DBClient != nil {
		return DBClient, nil
	}

	db, err := OpenDB(dbPath)
	if err != nil {
		return nil, err
	}
	DBClient = db
	logger.Info("Database ready", zap.String("path", dbPath))
	return db, nil
}

// OpenDB opens a database and creates the schema without touching DBClient.
func OpenDB(dbPath string) (*sql.DB, error) {
	// WALモードとBusy Timeoutを設定（Race Condition対策）
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	// SQLiteは単一ライターなので接続プールを1に制限
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		setting_type TEXT NOT NULL DEFAULT 'normal',
		is_required BOOLEAN NOT NULL DEFAULT false,
		description TEXT,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		logger.Error("Failed to create settings table", zap.Error(err))
		return fmt.Errorf("failed to create settings table: %w", err)
	}

	// label_jobsテーブル（印刷ジョブの記録）
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS label_jobs (
		id TEXT PRIMARY KEY,
		printer_uri TEXT NOT NULL,
		model TEXT NOT NULL,
		label_size TEXT NOT NULL,
		kind TEXT NOT NULL,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		bytes_sent INTEGER NOT NULL DEFAULT 0,
		dry_run BOOLEAN NOT NULL DEFAULT false,
		error TEXT,
		created_at TIMESTAMP NOT NULL
	)`)
	if err != nil {
		logger.Error("Failed to create label_jobs table", zap.Error(err))
		return fmt.Errorf("failed to create label_jobs table: %w", err)
	}

	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_label_jobs_created_at ON label_jobs(created_at)`)
	if err != nil {
		return fmt.Errorf("failed to create label_jobs index: %w", err)
	}
	return nil
}

// GetDB は現在のデータベース接続を返します
func GetDB() *sql.DB {
	dbMu.Lock()
	defer dbMu.Unlock()
	return DBClient
}

// Close closes the process wide database.
func Close() error {
	dbMu.Lock()
	defer dbMu.Unlock()
	if DBClient == nil {
		return nil
	}
	err := DBClient.Close()
	DBClient = nil
	return err
}
