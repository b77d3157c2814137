package localdb

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/nantokaworks/ql-label-printer/internal/shared/logger"
	"go.uber.org/zap"
)

// LabelJob is the persisted record of one dispatch.
type LabelJob struct {
	ID         string    `json:"id"`
	PrinterURI string    `json:"printer_uri"`
	Model      string    `json:"model"`
	LabelSize  string    `json:"label_size"`
	Kind       string    `json:"kind"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	BytesSent  int       `json:"bytes_sent"`
	DryRun     bool      `json:"dry_run"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// InsertLabelJob stores j in db.
func InsertLabelJob(db *sql.DB, j LabelJob) error {
	if db == nil {
		return fmt.Errorf("database not initialized")
	}
	if j.CreatedAt.IsZero() {
		j.CreatedAt = time.Now()
	}
	var errText sql.NullString
	if j.Error != "" {
		errText = sql.NullString{String: j.Error, Valid: true}
	}
	_, err := db.Exec(`INSERT OR REPLACE INTO label_jobs
		(id, printer_uri, model, label_size, kind, width, height, bytes_sent, dry_run, error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.PrinterURI, j.Model, j.LabelSize, j.Kind, j.Width, j.Height, j.BytesSent, j.DryRun, errText, j.CreatedAt.UTC())
	if err != nil {
		logger.Error("Failed to insert label job", zap.String("id", j.ID), zap.Error(err))
		return fmt.Errorf("failed to insert label job: %w", err)
	}
	return nil
}

// ListLabelJobs returns the newest jobs first. limit <= 0 returns all of them.
func ListLabelJobs(db *sql.DB, limit int) ([]LabelJob, error) {
	if db == nil {
		return []LabelJob{}, fmt.Errorf("database not initialized")
	}
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`SELECT id, printer_uri, model, label_size, kind, width, height, bytes_sent, dry_run, error, created_at
		FROM label_jobs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return []LabelJob{}, fmt.Errorf("failed to list label jobs: %w", err)
	}
	defer rows.Close()

	jobs := []LabelJob{}
	for rows.Next() {
		var j LabelJob
		var errText sql.NullString
		if err := rows.Scan(&j.ID, &j.PrinterURI, &j.Model, &j.LabelSize, &j.Kind,
			&j.Width, &j.Height, &j.BytesSent, &j.DryRun, &errText, &j.CreatedAt); err != nil {
			logger.Error("Failed to scan label job", zap.Error(err))
			continue
		}
		j.Error = errText.String
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// PurgeLabelJobs deletes jobs older than cutoff and returns how many were removed.
func PurgeLabelJobs(db *sql.DB, cutoff time.Time) (int64, error) {
	if db == nil {
		return 0, fmt.Errorf("database not initialized")
	}
	res, err := db.Exec(`DELETE FROM label_jobs WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge label jobs: %w", err)
	}
	return res.RowsAffected()
}
