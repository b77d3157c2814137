package webserver

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nantokaworks/ql-label-printer/internal/brotherql"
	"github.com/nantokaworks/ql-label-printer/internal/dispatch"
	"github.com/nantokaworks/ql-label-printer/internal/env"
	"github.com/nantokaworks/ql-label-printer/internal/keepalive"
	"github.com/nantokaworks/ql-label-printer/internal/localdb"
	"github.com/nantokaworks/ql-label-printer/internal/output"
	"github.com/nantokaworks/ql-label-printer/internal/settings"
	"github.com/nantokaworks/ql-label-printer/internal/status"
)

type stubBackend struct {
	sendErr error

	mu   sync.Mutex
	sent int
}

func (s *stubBackend) Connect(ctx context.Context) error { return nil }

func (s *stubBackend) Send(ctx context.Context, data []byte) (brotherql.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return brotherql.Status{}, s.sendErr
	}
	s.sent++
	return brotherql.Status{Type: brotherql.StatusCompleted}, nil
}

func (s *stubBackend) Probe(ctx context.Context, request []byte) (brotherql.Status, error) {
	return brotherql.Status{Type: brotherql.StatusReply}, nil
}

func (s *stubBackend) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

func (s *stubBackend) Close() error              { return nil }
func (s *stubBackend) Type() output.PrinterType { return output.PrinterTypeNetwork }
func (s *stubBackend) URI() string              { return "stub" }

type testEnv struct {
	server  *httptest.Server
	backend *stubBackend
	reloads int
}

func setup(t *testing.T, opts dispatch.Options) *testEnv {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("QL_DATA_DIR", dir)
	t.Setenv("PRINTER_URI", "tcp://127.0.0.1:9100")
	t.Setenv("PRINTER_MODEL", "QL-800")
	t.Setenv("LABEL_SIZE", "62")
	env.LoadEnv()

	db, err := localdb.OpenDB(filepath.Join(dir, "settings.db"))
	if err != nil {
		t.Fatalf("OpenDB() error = %v", err)
	}

	te := &testEnv{backend: &stubBackend{}}
	reg := dispatch.NewRegistry(func(uri string) (output.Backend, error) { return te.backend, nil }, output.Config{})
	ka := keepalive.NewScheduler(reg, "QL-800")
	Configure(Deps{
		Dispatcher: dispatch.New(reg, opts),
		KeepAlive:  ka,
		Settings:   settings.NewSettingsManager(db),
		Reload:     func() { te.reloads++ },
	})
	te.server = httptest.NewServer(NewMux())
	t.Cleanup(func() {
		te.server.Close()
		ka.Stop()
		db.Close()
		Configure(Deps{})
	})
	return te
}

func (te *testEnv) do(t *testing.T, method, path, contentType string, body []byte) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, te.server.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer resp.Body.Close()
	var out map[string]any
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp, out
}

func TestPrintStatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		body     string
		sendErr  error
		wantCode int
		wantCat  string
	}{
		{name: "text ok", path: "/api/print/text", body: `{"text":"Hello <b>World</b>"}`, wantCode: http.StatusOK},
		{name: "qr ok", path: "/api/print/qrcode", body: `{"data":"https://example.com","caption":{"text":"example"}}`, wantCode: http.StatusOK},
		{name: "combined ok", path: "/api/print/label", body: `{"text":"Asset 42","qr":{"data":"asset-42"},"qr_position":"right"}`, wantCode: http.StatusOK},
		{name: "bad json", path: "/api/print/text", body: `{"text":`, wantCode: http.StatusBadRequest, wantCat: "validation"},
		{name: "bad module size", path: "/api/print/qrcode", body: `{"data":"x","module_size":-1}`, wantCode: http.StatusBadRequest, wantCat: "validation"},
		{name: "unknown label", path: "/api/print/text", body: `{"text":"x","label_size":"7x7"}`, wantCode: http.StatusBadRequest, wantCat: "validation"},
		{name: "qr does not fit", path: "/api/print/qrcode", body: `{"data":"x","border":400}`, wantCode: http.StatusUnprocessableEntity, wantCat: "render"},
		{
			name: "printer refused", path: "/api/print/text", body: `{"text":"x"}`,
			sendErr:  &output.TransportError{Kind: output.ConnectionRefused, URI: "tcp://127.0.0.1:9100", Op: "send", Err: errors.New("refused")},
			wantCode: http.StatusBadGateway, wantCat: "transport",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			te := setup(t, dispatch.Options{})
			te.backend.sendErr = tt.sendErr

			resp, out := te.do(t, http.MethodPost, tt.path, "application/json", []byte(tt.body))
			if resp.StatusCode != tt.wantCode {
				t.Fatalf("status = %d, want %d (body %v)", resp.StatusCode, tt.wantCode, out)
			}
			if cat, _ := out["category"].(string); cat != tt.wantCat {
				t.Fatalf("category = %q, want %q", cat, tt.wantCat)
			}
			if tt.wantCode == http.StatusOK {
				if out["ok"] != true || out["label_width"] != float64(696) {
					t.Fatalf("response = %v", out)
				}
				if te.backend.sentCount() != 1 {
					t.Fatalf("backend received %d jobs, want 1", te.backend.sentCount())
				}
			}
		})
	}
}

func TestPrintMethodNotAllowed(t *testing.T) {
	te := setup(t, dispatch.Options{})
	resp, _ := te.do(t, http.MethodGet, "/api/print/text", "", nil)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

func pngUpload(t *testing.T, fields map[string]string) ([]byte, string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			if x < 100 {
				img.Set(x, y, color.Black)
			} else {
				img.Set(x, y, color.White)
			}
		}
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", "test.png")
	if err != nil {
		t.Fatal(err)
	}
	if err := png.Encode(fw, img); err != nil {
		t.Fatal(err)
	}
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	mw.Close()
	return body.Bytes(), mw.FormDataContentType()
}

func TestPrintImageDryRunWithPreview(t *testing.T) {
	te := setup(t, dispatch.Options{DryRun: true, RecordHistory: true})

	body, ct := pngUpload(t, map[string]string{"mode": "bw-threshold", "rotate": "90"})
	resp, out := te.do(t, http.MethodPost, "/api/print/image", ct, body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body %v", resp.StatusCode, out)
	}
	if out["dry_run"] != true || te.backend.sentCount() != 0 {
		t.Fatalf("dry run sent %d jobs, response %v", te.backend.sentCount(), out)
	}

	id, _ := out["job_id"].(string)
	preview, err := http.Get(te.server.URL + "/api/jobs/" + id + "/preview")
	if err != nil {
		t.Fatal(err)
	}
	preview.Body.Close()
	if preview.StatusCode != http.StatusOK || preview.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("preview status = %d, content type %q", preview.StatusCode, preview.Header.Get("Content-Type"))
	}

	missing, err := http.Get(te.server.URL + "/api/jobs/nope/preview")
	if err != nil {
		t.Fatal(err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("missing preview status = %d, want 404", missing.StatusCode)
	}
}

func TestPrintImageRejectsBadInput(t *testing.T) {
	te := setup(t, dispatch.Options{DryRun: true})

	body, ct := pngUpload(t, map[string]string{"threshold": "abc"})
	if resp, _ := te.do(t, http.MethodPost, "/api/print/image", ct, body); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad threshold status = %d, want 400", resp.StatusCode)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, _ := mw.CreateFormFile("image", "notes.txt")
	fw.Write([]byte("not an image"))
	mw.Close()
	if resp, _ := te.do(t, http.MethodPost, "/api/print/image", mw.FormDataContentType(), buf.Bytes()); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("undecodable image status = %d, want 400", resp.StatusCode)
	}
}

func TestKeepAliveAPI(t *testing.T) {
	te := setup(t, dispatch.Options{})

	resp, out := te.do(t, http.MethodPost, "/api/printer/keepalive", "application/json", []byte(`{"enabled":true,"interval":5}`))
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("interval 5 status = %d, want 400 (%v)", resp.StatusCode, out)
	}

	resp, out = te.do(t, http.MethodPost, "/api/printer/keepalive", "application/json", []byte(`{"enabled":true,"interval":10}`))
	if resp.StatusCode != http.StatusOK || out["running"] != true || out["interval"] != float64(10) {
		t.Fatalf("enable status = %d, body %v", resp.StatusCode, out)
	}
	if v, _ := app.Settings.GetSetting("KEEP_ALIVE_ENABLED"); v != "true" {
		t.Fatalf("KEEP_ALIVE_ENABLED = %q, want persisted true", v)
	}

	resp, out = te.do(t, http.MethodGet, "/api/printer/keepalive", "", nil)
	printers, _ := out["printers"].([]any)
	if resp.StatusCode != http.StatusOK || len(printers) != 1 {
		t.Fatalf("list status = %d, body %v", resp.StatusCode, out)
	}

	resp, out = te.do(t, http.MethodPost, "/api/printer/keepalive", "application/json", []byte(`{"enabled":false}`))
	if resp.StatusCode != http.StatusOK || out["running"] != false {
		t.Fatalf("disable status = %d, body %v", resp.StatusCode, out)
	}
}

func TestPrinterStatusAPI(t *testing.T) {
	te := setup(t, dispatch.Options{})
	status.Reset()

	resp, out := te.do(t, http.MethodPost, "/api/printer/status", "application/json", nil)
	if resp.StatusCode != http.StatusOK || out["available"] != true {
		t.Fatalf("status = %d, body %v", resp.StatusCode, out)
	}
	if !status.IsPrinterOnline("tcp://127.0.0.1:9100") {
		t.Fatal("printer not marked online after probe")
	}
}

func TestPrintersAPIShowsQueue(t *testing.T) {
	te := setup(t, dispatch.Options{})
	status.Reset()
	const uri = "tcp://127.0.0.1:9100"
	status.SetPrinterState(uri, true, "ready")

	conn, err := app.Dispatcher.Registry().Get(uri)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	release := make(chan struct{})
	started := make(chan struct{})
	go conn.Run(context.Background(), func(ctx context.Context, b output.Backend) error {
		close(started)
		<-release
		return nil
	})
	<-started
	defer close(release)

	resp, out := te.do(t, http.MethodGet, "/api/printers", "", nil)
	printers, _ := out["printers"].([]any)
	if resp.StatusCode != http.StatusOK || len(printers) != 1 {
		t.Fatalf("status = %d, body %v", resp.StatusCode, out)
	}
	p, _ := printers[0].(map[string]any)
	if p["uri"] != uri || p["online"] != true || p["busy"] != true || p["queued"] != float64(0) {
		t.Fatalf("printer = %v, want online and busy", p)
	}
}

func TestSettingsAPI(t *testing.T) {
	te := setup(t, dispatch.Options{})

	resp, out := te.do(t, http.MethodPut, "/api/settings", "application/json", []byte(`{"ROTATE":"45"}`))
	if resp.StatusCode != http.StatusBadRequest || te.reloads != 0 {
		t.Fatalf("invalid update status = %d, reloads %d, body %v", resp.StatusCode, te.reloads, out)
	}

	resp, out = te.do(t, http.MethodPut, "/api/settings", "application/json", []byte(`{"ROTATE":"90","DITHER":"true"}`))
	if resp.StatusCode != http.StatusOK || te.reloads != 1 {
		t.Fatalf("update status = %d, reloads %d, body %v", resp.StatusCode, te.reloads, out)
	}
	all, _ := out["settings"].(map[string]any)
	rotate, _ := all["ROTATE"].(map[string]any)
	if rotate["value"] != "90" {
		t.Fatalf("ROTATE = %v, want 90", rotate)
	}
}

func TestModelsAPI(t *testing.T) {
	te := setup(t, dispatch.Options{})
	resp, out := te.do(t, http.MethodGet, "/api/models", "", nil)
	models, _ := out["models"].([]any)
	if resp.StatusCode != http.StatusOK || len(models) == 0 {
		t.Fatalf("status = %d, body %v", resp.StatusCode, out)
	}
	resp, _ = te.do(t, http.MethodGet, "/api/models?model=QL-9999", "", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown model status = %d, want 400", resp.StatusCode)
	}
}

func TestWebSocketReceivesPrinterEvents(t *testing.T) {
	te := setup(t, dispatch.Options{})
	status.Reset()

	url := "ws" + strings.TrimPrefix(te.server.URL, "http") + "/ws?clientId=test"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil || msg.Type != "connected" {
		t.Fatalf("first message = %+v, %v; want connected", msg, err)
	}

	status.SetPrinterState("tcp://10.9.9.9", true, "ready")
	for {
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("ReadJSON() error = %v", err)
		}
		if msg.Type == "printer_connected" {
			break
		}
	}
	var state status.PrinterState
	if err := json.Unmarshal(msg.Data, &state); err != nil || state.URI != "tcp://10.9.9.9" {
		t.Fatalf("printer_connected data = %s, %v", msg.Data, err)
	}
}
