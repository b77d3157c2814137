package output

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/gousb"
	"github.com/nantokaworks/ql-label-printer/internal/brotherql"
	"github.com/nantokaworks/ql-label-printer/internal/shared/logger"
	"go.uber.org/zap"
)

// Brother QL bulk endpoints.
const (
	bulkOutEndpoint = 0x02
	bulkInEndpoint  = 0x81
)

// LibUSBPrinter talks to the printer's bulk endpoints through libusb, for
// systems without the usblp kernel driver.
type LibUSBPrinter struct {
	uri    string
	vid    gousb.ID
	pid    gousb.ID
	serial string
	cfg    Config

	mu   sync.Mutex
	usb  *gousb.Context
	dev  *gousb.Device
	done func()
	out  *gousb.OutEndpoint
	in   *gousb.InEndpoint
}

// NewLibUSBPrinter creates a backend for the first device matching vid:pid (and serial, if set).
func NewLibUSBPrinter(uri string, vid, pid uint16, serial string, cfg Config) *LibUSBPrinter {
	return &LibUSBPrinter{uri: uri, vid: gousb.ID(vid), pid: gousb.ID(pid), serial: serial, cfg: cfg.withDefaults()}
}

// Connect opens the device and claims its default interface.
func (p *LibUSBPrinter) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dev != nil {
		return nil
	}

	usb := gousb.NewContext()
	devs, err := usb.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == p.vid && desc.Product == p.pid
	})
	var dev *gousb.Device
	for _, d := range devs {
		if dev == nil && p.matchesSerial(d) {
			dev = d
			continue
		}
		d.Close()
	}
	if dev == nil {
		usb.Close()
		if err == nil {
			err = fmt.Errorf("no USB device %s:%s", p.vid, p.pid)
		}
		return wrapErr(p.uri, "connect", err)
	}

	fail := func(err error) error {
		dev.Close()
		usb.Close()
		return wrapErr(p.uri, "connect", err)
	}
	if err := dev.SetAutoDetach(true); err != nil {
		return fail(err)
	}
	intf, done, err := dev.DefaultInterface()
	if err != nil {
		return fail(err)
	}
	out, err := intf.OutEndpoint(bulkOutEndpoint)
	if err != nil {
		done()
		return fail(err)
	}
	in, err := intf.InEndpoint(bulkInEndpoint & 0x0f)
	if err != nil {
		done()
		return fail(err)
	}

	p.usb, p.dev, p.done, p.out, p.in = usb, dev, done, out, in
	logger.Debug("libusb printer opened", zap.String("vid", p.vid.String()), zap.String("pid", p.pid.String()))
	return nil
}

func (p *LibUSBPrinter) matchesSerial(d *gousb.Device) bool {
	if p.serial == "" {
		return true
	}
	s, err := d.SerialNumber()
	return err == nil && s == p.serial
}

// Send writes the command stream to the bulk OUT endpoint and reads one
// status frame from the IN endpoint when the printer sends one.
func (p *LibUSBPrinter) Send(ctx context.Context, data []byte) (brotherql.Status, error) {
	p.mu.Lock()
	out, in := p.out, p.in
	p.mu.Unlock()
	if out == nil {
		return brotherql.Status{}, &TransportError{Kind: IO, URI: p.uri, Op: "send", Err: errors.New("device not open")}
	}

	wctx, cancel := context.WithDeadline(ctx, deadline(ctx, p.cfg.IOTimeout))
	defer cancel()
	n, err := out.WriteContext(wctx, data)
	if err == nil && n != len(data) {
		err = fmt.Errorf("short write")
	}
	if err != nil {
		return brotherql.Status{}, wrapErr(p.uri, "send", fmt.Errorf("wrote %d of %d bytes: %w", n, len(data), err))
	}

	rctx, cancelRead := context.WithDeadline(ctx, deadline(ctx, p.cfg.StatusWait))
	defer cancelRead()
	buf := make([]byte, 64)
	n, err = in.ReadContext(rctx, buf)
	if err != nil || n == 0 {
		return brotherql.Status{}, nil
	}
	st, err := brotherql.ParseStatus(buf[:n])
	if err != nil {
		return st, wrapErr(p.uri, "status", err)
	}
	if err := st.Err(); err != nil {
		return st, wrapErr(p.uri, "send", err)
	}
	return st, nil
}

func (p *LibUSBPrinter) Probe(ctx context.Context, request []byte) (brotherql.Status, error) {
	return brotherql.Status{}, ErrProbeNotApplicable
}

// Close releases the interface and the libusb context.
func (p *LibUSBPrinter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dev == nil {
		return nil
	}
	p.done()
	err := p.dev.Close()
	if cerr := p.usb.Close(); err == nil {
		err = cerr
	}
	p.usb, p.dev, p.done, p.out, p.in = nil, nil, nil, nil, nil
	return err
}

func (p *LibUSBPrinter) Type() PrinterType {
	return PrinterTypeLibUSB
}

func (p *LibUSBPrinter) URI() string {
	return p.uri
}
