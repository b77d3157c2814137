// Package dispatch renders, encodes and sends label jobs, serialising access to each printer.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nantokaworks/ql-label-printer/internal/brotherql"
	"github.com/nantokaworks/ql-label-printer/internal/labelhistory"
	"github.com/nantokaworks/ql-label-printer/internal/labels"
	"github.com/nantokaworks/ql-label-printer/internal/output"
	"github.com/nantokaworks/ql-label-printer/internal/raster"
	"github.com/nantokaworks/ql-label-printer/internal/render"
	"github.com/nantokaworks/ql-label-printer/internal/shared/logger"
	"github.com/nantokaworks/ql-label-printer/internal/shared/paths"
	"github.com/nantokaworks/ql-label-printer/internal/status"
	"go.uber.org/zap"
)

// Options configure a Dispatcher.
type Options struct {
	// DryRun does everything except talk to the printer.
	DryRun bool
	// RecordHistory keeps every job and its preview in labelhistory.
	RecordHistory bool
	// DebugOutput writes each encoded command stream to the output directory.
	DebugOutput bool
}

// Dispatcher turns content into printed labels.
type Dispatcher struct {
	registry *Registry

	mu   sync.RWMutex
	opts Options
}

// New creates a dispatcher that reaches printers through registry.
func New(registry *Registry, opts Options) *Dispatcher {
	return &Dispatcher{registry: registry, opts: opts}
}

// SetOptions replaces the options for jobs dispatched from now on.
func (d *Dispatcher) SetOptions(o Options) {
	d.mu.Lock()
	d.opts = o
	d.mu.Unlock()
}

// Options returns the current options.
func (d *Dispatcher) Options() Options {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.opts
}

// Registry returns the connection registry shared with the keep-alive scheduler.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// DispatchResult is the outcome of one job.
type DispatchResult struct {
	OK          bool   `json:"ok"`
	JobID       string `json:"job_id"`
	LabelWidth  int    `json:"label_width"`
	LabelHeight int    `json:"label_height"`
	BytesSent   int    `json:"bytes_sent"`
	DryRun      bool   `json:"dry_run"`
	Error       error  `json:"-"`
}

// prepared is a job ready to be sent.
type prepared struct {
	profile labels.LabelProfile
	model   labels.Model
	job     *raster.Job
	data    []byte
}

// prepare does the CPU work outside the printer lock.
func prepare(content render.Content, s PrintSettings) (*prepared, error) {
	p, m, err := s.resolve()
	if err != nil {
		return nil, err
	}
	buf, err := render.Render(content, p, render.Options{Rotate: s.Rotate})
	if err != nil {
		return nil, err
	}
	job, err := raster.Rasterize(buf, s.policy(), p, m)
	if err != nil {
		return nil, err
	}
	data, err := brotherql.Encode(job, p, m, s.encodeOptions())
	if err != nil {
		return nil, err
	}
	return &prepared{profile: p, model: m, job: job, data: data}, nil
}

// Dispatch prints content with settings s. Rendering failures return before
// the printer is touched; jobs for the same printer are sent one at a time in
// arrival order. Nothing is retried.
func (d *Dispatcher) Dispatch(ctx context.Context, content render.Content, s PrintSettings) DispatchResult {
	start := time.Now()
	opts := d.Options()
	res := DispatchResult{DryRun: opts.DryRun}
	id, err := labelhistory.GenerateID()
	if err != nil {
		id = fmt.Sprintf("job-%d", start.UnixNano())
	}
	res.JobID = id

	log := logger.With(zap.String("job_id", id), zap.String("printer", s.PrinterURI), zap.String("kind", render.Kind(content)))

	pj, err := prepare(content, s)
	if err != nil {
		log.Warn("Label preparation failed", zap.Error(err), zap.String("category", string(Classify(err))))
		res.Error = err
		d.record(res, s, content, nil)
		return res
	}
	res.LabelWidth, res.LabelHeight = pj.job.Width, pj.job.Height

	if opts.DebugOutput {
		d.writeDebug(id, pj.data)
	}

	if opts.DryRun {
		log.Info("DRY-RUN: label prepared, not sent",
			zap.Int("width", pj.job.Width),
			zap.Int("height", pj.job.Height),
			zap.Int("bytes", len(pj.data)))
		res.OK = true
		d.record(res, s, content, pj.job.Image())
		return res
	}

	conn, err := d.registry.Get(s.PrinterURI)
	if err != nil {
		res.Error = err
		d.record(res, s, content, pj.job.Image())
		return res
	}

	waitStart := time.Now()
	err = conn.Run(ctx, func(ctx context.Context, b output.Backend) error {
		log.Debug("Printer lock acquired", zap.Duration("waited", time.Since(waitStart)))
		st, err := b.Send(ctx, pj.data)
		if err != nil {
			return err
		}
		res.BytesSent = len(pj.data)
		log.Debug("Printer accepted job", zap.String("status", st.Type.String()))
		return nil
	})
	reportPrinter(s.PrinterURI, err)
	if err != nil {
		log.Error("Print failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		res.Error = err
	} else {
		res.OK = true
		log.Info("Label printed",
			zap.String("label", pj.profile.ID),
			zap.Int("width", pj.job.Width),
			zap.Int("height", pj.job.Height),
			zap.Int("bytes", res.BytesSent),
			zap.Duration("elapsed", time.Since(start)))
	}
	d.record(res, s, content, pj.job.Image())
	return res
}

// reportPrinter updates the online state after talking to a printer. A fault
// reported by the printer itself still means it is reachable; errors that never
// reached the transport leave the state alone.
func reportPrinter(uri string, err error) {
	var te *output.TransportError
	switch {
	case err == nil:
		status.SetPrinterState(uri, true, "ready")
	case errors.As(err, &te):
		status.SetPrinterState(uri, te.Kind == output.PrinterFault, err.Error())
	}
}

func (d *Dispatcher) record(res DispatchResult, s PrintSettings, content render.Content, preview image.Image) {
	if !d.Options().RecordHistory {
		return
	}
	l := labelhistory.Label{
		ID:         res.JobID,
		PrinterURI: s.PrinterURI,
		Model:      s.PrinterModel,
		LabelSize:  s.LabelSize,
		Kind:       render.Kind(content),
		Width:      res.LabelWidth,
		Height:     res.LabelHeight,
		BytesSent:  res.BytesSent,
		DryRun:     res.DryRun,
	}
	if res.Error != nil {
		l.Error = res.Error.Error()
	}
	if _, err := labelhistory.Save(l, preview); err != nil {
		logger.Warn("Failed to record label history", zap.String("job_id", res.JobID), zap.Error(err))
	}
}

func (d *Dispatcher) writeDebug(id string, data []byte) {
	dir := paths.GetOutputDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Warn("Failed to create debug output dir", zap.Error(err))
		return
	}
	path := filepath.Join(dir, id+".bin")
	if err := os.WriteFile(path, data, 0644); err != nil {
		logger.Warn("Failed to write debug output", zap.Error(err))
		return
	}
	logger.Debug("Command stream written", zap.String("path", path), zap.Int("bytes", len(data)))
}

// ProbeResult is the answer to a status probe.
type ProbeResult struct {
	Available bool              `json:"available"`
	Detail    string            `json:"detail"`
	Status    *brotherql.Status `json:"status,omitempty"`
}

// StatusProbe asks the printer at uri whether it is ready. It waits for any
// job in progress. USB printers cannot report status, so only their presence
// is checked.
func (d *Dispatcher) StatusProbe(ctx context.Context, uri, model string) ProbeResult {
	m, err := labels.LookupModel(model)
	if err != nil {
		return ProbeResult{Detail: err.Error()}
	}
	if _, err := output.TypeOf(uri); err != nil {
		return ProbeResult{Detail: err.Error()}
	}
	conn, err := d.registry.Get(uri)
	if err != nil {
		return ProbeResult{Detail: err.Error()}
	}

	var st brotherql.Status
	err = conn.Run(ctx, func(ctx context.Context, b output.Backend) error {
		var err error
		st, err = b.Probe(ctx, brotherql.StatusRequest(m))
		return err
	})
	res := probeResult(st, err)
	status.SetPrinterState(uri, res.Available, res.Detail)
	logger.Debug("Status probe", zap.String("uri", uri), zap.Bool("available", res.Available), zap.String("detail", res.Detail))
	return res
}

func probeResult(st brotherql.Status, err error) ProbeResult {
	switch {
	case errors.Is(err, output.ErrProbeNotApplicable):
		return ProbeResult{Available: true, Detail: "device present; USB printers do not report status"}
	case err != nil:
		return ProbeResult{Detail: err.Error()}
	}
	if perr := st.Err(); perr != nil {
		return ProbeResult{Detail: perr.Error(), Status: &st}
	}
	return ProbeResult{Available: true, Detail: "ready", Status: &st}
}
