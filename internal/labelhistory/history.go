// Package labelhistory keeps recently printed labels and their previews for a short time.
package labelhistory

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/nantokaworks/ql-label-printer/internal/localdb"
	"github.com/nantokaworks/ql-label-printer/internal/shared/logger"
	"github.com/nantokaworks/ql-label-printer/internal/shared/paths"
	"go.uber.org/zap"
)

// Retention is how long a label stays in the history.
var Retention = 10 * time.Minute

// Label is one dispatched job.
type Label struct {
	ID          string    `json:"id"`
	PrinterURI  string    `json:"printer_uri"`
	Model       string    `json:"model"`
	LabelSize   string    `json:"label_size"`
	Kind        string    `json:"kind"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	BytesSent   int       `json:"bytes_sent"`
	DryRun      bool      `json:"dry_run"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	PreviewPath string    `json:"-"`
}

var (
	labels = make(map[string]*Label)
	mu     sync.RWMutex
)

// InitializeDataDir creates the preview directory.
func InitializeDataDir() {
	if err := os.MkdirAll(paths.GetOutputDir(), 0755); err != nil {
		logger.Error("Failed to create output directory", zap.Error(err))
	}
}

// GenerateID creates a new nanoid
func GenerateID() (string, error) {
	return gonanoid.New()
}

// Save stores l and, if given, its preview image. l.ID is generated when empty.
func Save(l Label, preview image.Image) (*Label, error) {
	if l.ID == "" {
		id, err := GenerateID()
		if err != nil {
			return nil, fmt.Errorf("failed to generate ID: %w", err)
		}
		l.ID = id
	}
	if l.Timestamp.IsZero() {
		l.Timestamp = time.Now()
	}

	if preview != nil {
		outputDir := paths.GetOutputDir()
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output directory: %w", err)
		}
		l.PreviewPath = filepath.Join(outputDir, fmt.Sprintf("%s_preview.png", l.ID))
		if err := writePNG(l.PreviewPath, preview); err != nil {
			return nil, err
		}
	}

	saved := &l
	mu.Lock()
	labels[l.ID] = saved
	mu.Unlock()

	scheduleDeletion(l.ID)
	persist(saved)

	logger.Debug("Label saved to history",
		zap.String("id", l.ID),
		zap.String("printer", l.PrinterURI),
		zap.String("preview", l.PreviewPath))
	return saved, nil
}

// persist appends the job to the SQLite job log when the database is open.
// プレビューは一時的だがジョブ記録は残す
func persist(l *Label) {
	db := localdb.GetDB()
	if db == nil {
		return
	}
	err := localdb.InsertLabelJob(db, localdb.LabelJob{
		ID:         l.ID,
		PrinterURI: l.PrinterURI,
		Model:      l.Model,
		LabelSize:  l.LabelSize,
		Kind:       l.Kind,
		Width:      l.Width,
		Height:     l.Height,
		BytesSent:  l.BytesSent,
		DryRun:     l.DryRun,
		Error:      l.Error,
		CreatedAt:  l.Timestamp,
	})
	if err != nil {
		logger.Warn("Failed to persist label job", zap.String("id", l.ID), zap.Error(err))
	}
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create preview: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode preview: %w", err)
	}
	return f.Close()
}

// Get retrieves a label by ID
func Get(id string) (*Label, bool) {
	mu.RLock()
	defer mu.RUnlock()
	l, ok := labels[id]
	return l, ok
}

// Recent returns the newest labels first.
func Recent(limit int) []*Label {
	mu.RLock()
	out := make([]*Label, 0, len(labels))
	for _, l := range labels {
		out = append(out, l)
	}
	mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// PreviewPath returns the preview file of a label.
func PreviewPath(id string) (string, error) {
	l, ok := Get(id)
	if !ok {
		return "", fmt.Errorf("label not found")
	}
	if l.PreviewPath == "" {
		return "", fmt.Errorf("label %s has no preview", id)
	}
	return l.PreviewPath, nil
}

func scheduleDeletion(id string) {
	time.AfterFunc(Retention, func() {
		Delete(id)
	})
}

// Delete removes a label and its preview file.
func Delete(id string) {
	mu.Lock()
	l, exists := labels[id]
	if exists {
		delete(labels, id)
	}
	mu.Unlock()

	if !exists {
		return
	}
	if l.PreviewPath != "" {
		if err := os.Remove(l.PreviewPath); err != nil && !os.IsNotExist(err) {
			logger.Error("Failed to delete preview", zap.Error(err))
		}
	}
	logger.Debug("Label removed from history", zap.String("id", id))
}
