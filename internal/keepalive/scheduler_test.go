package keepalive

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nantokaworks/ql-label-printer/internal/apperr"
	"github.com/nantokaworks/ql-label-printer/internal/brotherql"
	"github.com/nantokaworks/ql-label-printer/internal/dispatch"
	"github.com/nantokaworks/ql-label-printer/internal/output"
	"github.com/nantokaworks/ql-label-printer/internal/status"
)

type fakeBackend struct {
	typ      output.PrinterType
	probeErr error

	mu       sync.Mutex
	probes   int
	requests [][]byte
}

func (f *fakeBackend) Connect(ctx context.Context) error { return nil }

func (f *fakeBackend) Send(ctx context.Context, data []byte) (brotherql.Status, error) {
	return brotherql.Status{Type: brotherql.StatusCompleted}, nil
}

func (f *fakeBackend) Probe(ctx context.Context, request []byte) (brotherql.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	f.requests = append(f.requests, request)
	return brotherql.Status{Type: brotherql.StatusReply}, f.probeErr
}

func (f *fakeBackend) Close() error              { return nil }
func (f *fakeBackend) Type() output.PrinterType { return f.typ }
func (f *fakeBackend) URI() string              { return "fake" }

func (f *fakeBackend) probeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probes
}

func newScheduler(t *testing.T, b *fakeBackend) *Scheduler {
	t.Helper()
	status.Reset()
	reg := dispatch.NewRegistry(func(uri string) (output.Backend, error) { return b, nil }, output.Config{})
	s := NewScheduler(reg, "QL-800")
	t.Cleanup(s.Stop)
	return s
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestEnableRejectsShortInterval(t *testing.T) {
	s := newScheduler(t, &fakeBackend{typ: output.PrinterTypeNetwork})

	err := s.Enable("tcp://10.0.0.5", 5*time.Second)
	if !apperr.IsValidation(err) {
		t.Fatalf("Enable(5s) error = %v, want validation error", err)
	}
	if st := s.Status("tcp://10.0.0.5"); st.Running {
		t.Fatalf("Status().Running = true after rejected Enable")
	}

	if err := s.Enable("tcp://10.0.0.5", 10*time.Second); err != nil {
		t.Fatalf("Enable(10s) error = %v", err)
	}
	st := s.Status("tcp://10.0.0.5")
	if !st.Running || st.IntervalSeconds != 10 {
		t.Fatalf("Status() = %+v, want running with 10s interval", st)
	}
}

func TestEnableRejectsUnknownScheme(t *testing.T) {
	s := newScheduler(t, &fakeBackend{typ: output.PrinterTypeNetwork})
	if err := s.Enable("bluetooth://aa:bb", time.Minute); err == nil {
		t.Fatal("Enable(bluetooth://) error = nil, want error")
	}
}

func TestUSBTicksAreNoop(t *testing.T) {
	b := &fakeBackend{typ: output.PrinterTypeUSB}
	s := newScheduler(t, b)

	if err := s.start("file:///dev/usb/lp0", 10*time.Millisecond); err != nil {
		t.Fatalf("start() error = %v", err)
	}
	time.Sleep(80 * time.Millisecond)

	st := s.Status("file:///dev/usb/lp0")
	if !st.Running {
		t.Fatal("Status().Running = false, want true")
	}
	if st.LastPing != nil {
		t.Fatalf("Status().LastPing = %v, want nil", st.LastPing)
	}
	if n := b.probeCount(); n != 0 {
		t.Fatalf("probes = %d, want 0", n)
	}
}

func TestTickPingsIdlePrinter(t *testing.T) {
	b := &fakeBackend{typ: output.PrinterTypeNetwork}
	s := newScheduler(t, b)

	if err := s.start("tcp://10.0.0.5", 10*time.Millisecond); err != nil {
		t.Fatalf("start() error = %v", err)
	}
	waitFor(t, func() bool { return s.Status("tcp://10.0.0.5").Pings >= 2 })

	st := s.Status("tcp://10.0.0.5")
	if st.LastPing == nil || st.LastOutcome != OutcomeOK || st.LastError != "" {
		t.Fatalf("Status() = %+v, want ok with last ping", st)
	}
	if !status.IsPrinterOnline("tcp://10.0.0.5") {
		t.Fatal("printer not reported online after successful ping")
	}

	b.mu.Lock()
	req := b.requests[0]
	b.mu.Unlock()
	if len(req) < 3 || req[len(req)-3] != 0x1b || req[len(req)-2] != 0x69 || req[len(req)-1] != 0x53 {
		t.Fatalf("probe request does not end with ESC i S: % x", req[len(req)-3:])
	}
}

func TestTickSkippedWhilePrinterBusy(t *testing.T) {
	b := &fakeBackend{typ: output.PrinterTypeNetwork}
	s := newScheduler(t, b)
	if err := s.Enable("tcp://10.0.0.5", time.Hour); err != nil {
		t.Fatalf("Enable() error = %v", err)
	}
	conn, _ := s.registry.Lookup("tcp://10.0.0.5")

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = conn.Run(context.Background(), func(ctx context.Context, _ output.Backend) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	s.mu.Lock()
	e := s.entries["tcp://10.0.0.5"]
	s.mu.Unlock()
	s.tick(e, time.Second)

	close(release)
	<-done

	st := s.Status("tcp://10.0.0.5")
	if st.Skipped != 1 || st.LastOutcome != OutcomeSkipped {
		t.Fatalf("Status() = %+v, want one skipped tick", st)
	}
	if st.LastPing != nil {
		t.Fatalf("Status().LastPing = %v, want nil", st.LastPing)
	}
	if n := b.probeCount(); n != 0 {
		t.Fatalf("probes = %d, want 0", n)
	}
}

func TestProbeFailureKeepsRunning(t *testing.T) {
	b := &fakeBackend{typ: output.PrinterTypeNetwork, probeErr: errors.New("connection refused")}
	s := newScheduler(t, b)

	if err := s.start("tcp://10.0.0.5", 10*time.Millisecond); err != nil {
		t.Fatalf("start() error = %v", err)
	}
	waitFor(t, func() bool { return s.Status("tcp://10.0.0.5").Failures >= 3 })

	st := s.Status("tcp://10.0.0.5")
	if !st.Running {
		t.Fatal("Status().Running = false after failures, want true")
	}
	if st.LastOutcome != OutcomeFailed || st.LastError != "connection refused" {
		t.Fatalf("Status() = %+v, want failed outcome", st)
	}
	if status.IsPrinterOnline("tcp://10.0.0.5") {
		t.Fatal("printer reported online after failed ping")
	}
}

func TestDisableStopsTicks(t *testing.T) {
	b := &fakeBackend{typ: output.PrinterTypeNetwork}
	s := newScheduler(t, b)

	if err := s.start("tcp://10.0.0.5", 10*time.Millisecond); err != nil {
		t.Fatalf("start() error = %v", err)
	}
	waitFor(t, func() bool { return b.probeCount() >= 1 })

	s.Disable("tcp://10.0.0.5")
	time.Sleep(30 * time.Millisecond)
	before := b.probeCount()
	time.Sleep(50 * time.Millisecond)
	if after := b.probeCount(); after != before {
		t.Fatalf("probes went from %d to %d after Disable", before, after)
	}

	st := s.Status("tcp://10.0.0.5")
	if st.Running || st.LastPing == nil {
		t.Fatalf("Status() = %+v, want stopped with previous ping kept", st)
	}
}

func TestStatusAllSorted(t *testing.T) {
	s := newScheduler(t, &fakeBackend{typ: output.PrinterTypeNetwork})
	for _, uri := range []string{"tcp://10.0.0.9", "tcp://10.0.0.1"} {
		if err := s.Enable(uri, time.Minute); err != nil {
			t.Fatalf("Enable(%q) error = %v", uri, err)
		}
	}
	all := s.StatusAll()
	if len(all) != 2 || all[0].URI != "tcp://10.0.0.1" || all[1].URI != "tcp://10.0.0.9" {
		t.Fatalf("StatusAll() = %+v", all)
	}
	if st := s.Status("tcp://unknown"); st.Running || st.URI != "tcp://unknown" {
		t.Fatalf("Status(unknown) = %+v", st)
	}
}
