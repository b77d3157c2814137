package output

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/nantokaworks/ql-label-printer/internal/brotherql"
	"github.com/nantokaworks/ql-label-printer/internal/shared/logger"
	"go.uber.org/zap"
)

// USBPrinter はカーネルの usblp キャラクタデバイス (/dev/usb/lpN) 経由の実装
type USBPrinter struct {
	uri  string
	path string
	cfg  Config

	mu   sync.Mutex
	file *os.File
}

// NewUSBPrinter は新しいUSBプリンターインスタンスを作成する
func NewUSBPrinter(uri, path string, cfg Config) *USBPrinter {
	return &USBPrinter{uri: uri, path: path, cfg: cfg.withDefaults()}
}

// Connect opens the device node.
func (p *USBPrinter) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file != nil {
		return nil
	}
	f, err := os.OpenFile(p.path, os.O_RDWR, 0)
	if err != nil {
		return wrapErr(p.uri, "connect", err)
	}
	p.file = f
	logger.Debug("USB printer device opened", zap.String("path", p.path))
	return nil
}

// Send writes the command stream. The status reply is read only when the
// device supports read deadlines.
func (p *USBPrinter) Send(ctx context.Context, data []byte) (brotherql.Status, error) {
	p.mu.Lock()
	f := p.file
	p.mu.Unlock()
	if f == nil {
		return brotherql.Status{}, &TransportError{Kind: IO, URI: p.uri, Op: "send", Err: errors.New("device not open")}
	}

	n, err := f.Write(data)
	if err == nil && n != len(data) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return brotherql.Status{}, wrapErr(p.uri, "send", fmt.Errorf("wrote %d of %d bytes: %w", n, len(data), err))
	}

	if err := f.SetReadDeadline(deadline(ctx, p.cfg.StatusWait)); err != nil {
		if errors.Is(err, os.ErrNoDeadline) {
			return brotherql.Status{}, nil
		}
		return brotherql.Status{}, wrapErr(p.uri, "status", err)
	}
	buf := make([]byte, brotherql.StatusSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		logger.Debug("No status reply from USB device", zap.String("path", p.path), zap.Error(err))
		return brotherql.Status{}, nil
	}
	st, err := brotherql.ParseStatus(buf)
	if err != nil {
		return st, wrapErr(p.uri, "status", err)
	}
	if err := st.Err(); err != nil {
		return st, wrapErr(p.uri, "send", err)
	}
	return st, nil
}

func (p *USBPrinter) Probe(ctx context.Context, request []byte) (brotherql.Status, error) {
	return brotherql.Status{}, ErrProbeNotApplicable
}

// Close はデバイスを閉じる
func (p *USBPrinter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.file == nil {
		return nil
	}
	err := p.file.Close()
	p.file = nil
	return err
}

func (p *USBPrinter) Type() PrinterType {
	return PrinterTypeUSB
}

func (p *USBPrinter) URI() string {
	return p.uri
}
