// Package keepalive periodically pings network printers so they stay awake,
// without ever competing with real print jobs.
package keepalive

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/nantokaworks/ql-label-printer/internal/apperr"
	"github.com/nantokaworks/ql-label-printer/internal/brotherql"
	"github.com/nantokaworks/ql-label-printer/internal/dispatch"
	"github.com/nantokaworks/ql-label-printer/internal/labels"
	"github.com/nantokaworks/ql-label-printer/internal/output"
	"github.com/nantokaworks/ql-label-printer/internal/shared/logger"
	"github.com/nantokaworks/ql-label-printer/internal/status"
	"go.uber.org/zap"
)

// MinInterval is the shortest allowed ping interval.
const MinInterval = 10 * time.Second

// Outcome is the result of the most recent tick.
type Outcome string

const (
	OutcomeOK      Outcome = "ok"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// Status describes the keep-alive state of one printer.
type Status struct {
	URI             string        `json:"uri"`
	Running         bool          `json:"running"`
	Interval        time.Duration `json:"-"`
	IntervalSeconds int           `json:"interval"`
	// LastPing is nil until a probe has actually been sent.
	LastPing    *time.Time `json:"last_ping"`
	LastOutcome Outcome    `json:"last_outcome,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	Pings       int        `json:"pings"`
	Skipped     int        `json:"skipped"`
	Failures    int        `json:"failures"`
}

type entry struct {
	conn   *dispatch.Connection
	stop   chan struct{}
	status Status
}

// Scheduler runs one keep-alive loop per enabled printer.
type Scheduler struct {
	registry *dispatch.Registry

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	request []byte
	entries map[string]*entry
	wg      sync.WaitGroup
}

// NewScheduler creates a scheduler that probes printers through registry,
// sending the status request of the given model.
func NewScheduler(registry *dispatch.Registry, model string) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		registry: registry,
		request:  statusRequest(model),
		ctx:      ctx,
		cancel:   cancel,
		entries:  make(map[string]*entry),
	}
}

func statusRequest(model string) []byte {
	m, err := labels.LookupModel(model)
	if err != nil {
		// 不明な機種でも長めの無効化コマンドなら通る
		m = labels.Model{InvalidateBytes: 400}
	}
	return brotherql.StatusRequest(m)
}

// SetModel changes the status request sent from the next tick on.
func (s *Scheduler) SetModel(model string) {
	req := statusRequest(model)
	s.mu.Lock()
	s.request = req
	s.mu.Unlock()
}

// Enable starts pinging uri every interval, replacing any previous schedule.
func (s *Scheduler) Enable(uri string, interval time.Duration) error {
	if interval < MinInterval {
		return apperr.Validation("keep-alive interval must be at least %s, got %s", MinInterval, interval)
	}
	return s.start(uri, interval)
}

func (s *Scheduler) start(uri string, interval time.Duration) error {
	if _, err := output.TypeOf(uri); err != nil {
		return err
	}
	conn, err := s.registry.Get(uri)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return apperr.Validation("keep-alive scheduler is stopped")
	}
	if old, ok := s.entries[uri]; ok && old.status.Running {
		close(old.stop)
	}
	e := &entry{
		conn: conn,
		stop: make(chan struct{}),
		status: Status{
			URI:             uri,
			Running:         true,
			Interval:        interval,
			IntervalSeconds: int(interval / time.Second),
		},
	}
	s.entries[uri] = e

	s.wg.Add(1)
	go s.loop(e, interval)

	logger.Info("Keep-alive enabled",
		zap.String("uri", uri),
		zap.Duration("interval", interval),
		zap.Bool("usb", conn.Type().IsUSB()))
	return nil
}

// Disable stops pinging uri. The last recorded state stays visible.
func (s *Scheduler) Disable(uri string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[uri]
	if !ok || !e.status.Running {
		return
	}
	close(e.stop)
	e.status.Running = false
	logger.Info("Keep-alive disabled", zap.String("uri", uri))
}

// Status returns the keep-alive state of uri.
func (s *Scheduler) Status(uri string) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[uri]
	if !ok {
		return Status{URI: uri}
	}
	return copyStatus(e.status)
}

// StatusAll returns every printer that has been enabled, sorted by URI.
func (s *Scheduler) StatusAll() []Status {
	s.mu.Lock()
	out := make([]Status, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, copyStatus(e.status))
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}

func copyStatus(st Status) Status {
	if st.LastPing != nil {
		t := *st.LastPing
		st.LastPing = &t
	}
	return st
}

// Stop ends every loop and waits for in-flight probes to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for _, e := range s.entries {
		if e.status.Running {
			close(e.stop)
			e.status.Running = false
		}
	}
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
	logger.Info("Keep-alive scheduler stopped")
}

func (s *Scheduler) loop(e *entry, interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.tick(e, interval)
		}
	}
}

// tick sends one probe if the printer is idle. USB printers cannot answer a
// status request, so their ticks do nothing.
func (s *Scheduler) tick(e *entry, timeout time.Duration) {
	uri := e.conn.URI()
	if e.conn.Type().IsUSB() {
		logger.Debug("Keep-alive tick skipped for USB printer", zap.String("uri", uri))
		return
	}

	s.mu.Lock()
	request := s.request
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(s.ctx, timeout)
	defer cancel()
	ran, err := e.conn.TryRun(ctx, func(ctx context.Context, b output.Backend) error {
		st, err := b.Probe(ctx, request)
		if err != nil {
			return err
		}
		return st.Err()
	})

	s.mu.Lock()
	st := &e.status
	if !ran {
		st.Skipped++
		st.LastOutcome = OutcomeSkipped
		s.mu.Unlock()
		logger.Debug("Keep-alive tick skipped, printer busy", zap.String("uri", uri))
		return
	}
	now := time.Now()
	st.LastPing = &now
	st.Pings++
	if err != nil {
		st.Failures++
		st.LastOutcome = OutcomeFailed
		st.LastError = err.Error()
	} else {
		st.LastOutcome = OutcomeOK
		st.LastError = ""
	}
	s.mu.Unlock()

	if err != nil {
		logger.Warn("Keep-alive probe failed", zap.String("uri", uri), zap.Error(err))
		status.SetPrinterState(uri, false, err.Error())
		return
	}
	logger.Debug("Keep-alive probe ok", zap.String("uri", uri))
	status.SetPrinterState(uri, true, "ready")
}
