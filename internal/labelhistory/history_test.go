package labelhistory

import (
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nantokaworks/ql-label-printer/internal/localdb"
)

func TestSaveAndExpire(t *testing.T) {
	t.Setenv("QL_DATA_DIR", t.TempDir())
	old := Retention
	Retention = 50 * time.Millisecond
	t.Cleanup(func() { Retention = old })

	l, err := Save(Label{PrinterURI: "tcp://printer", Kind: "text"}, image.NewGray(image.Rect(0, 0, 4, 4)))
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if l.ID == "" {
		t.Fatal("Save() did not assign an ID")
	}
	path, err := PreviewPath(l.ID)
	if err != nil {
		t.Fatalf("PreviewPath() error = %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("preview not written: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := Get(l.ID); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("label not expired")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("preview still exists after expiry: %v", err)
	}
}

func TestRecentOrder(t *testing.T) {
	t.Setenv("QL_DATA_DIR", t.TempDir())
	base := time.Now()
	for i, id := range []string{"old", "mid", "new"} {
		if _, err := Save(Label{ID: id, Timestamp: base.Add(time.Duration(i) * time.Second)}, nil); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		t.Cleanup(func() { Delete(id) })
	}
	got := Recent(2)
	if len(got) != 2 || got[0].ID != "new" || got[1].ID != "mid" {
		t.Errorf("Recent(2) = %v, want [new mid]", got)
	}
	if _, err := PreviewPath("old"); err == nil {
		t.Error("PreviewPath() for label without preview should fail")
	}
}

func TestSavePersistsJob(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("QL_DATA_DIR", dir)
	db, err := localdb.SetupDB(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("SetupDB() error = %v", err)
	}
	t.Cleanup(func() { localdb.Close() })

	l, err := Save(Label{PrinterURI: "tcp://printer", Model: "QL-800", LabelSize: "62", Kind: "qrcode", Error: "timeout"}, nil)
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	t.Cleanup(func() { Delete(l.ID) })

	jobs, err := localdb.ListLabelJobs(db, 0)
	if err != nil {
		t.Fatalf("ListLabelJobs() error = %v", err)
	}
	if len(jobs) != 1 || jobs[0].ID != l.ID || jobs[0].Kind != "qrcode" || jobs[0].Error != "timeout" {
		t.Fatalf("ListLabelJobs() = %+v", jobs)
	}
}
