// Package output holds the transports that carry a Brother QL command stream to a printer.
package output

import (
	"context"
	"time"

	"github.com/nantokaworks/ql-label-printer/internal/brotherql"
)

// PrinterType はプリンターの接続方式を表す
type PrinterType string

const (
	PrinterTypeNetwork PrinterType = "network"
	PrinterTypeUSB     PrinterType = "usb"
	PrinterTypeLibUSB  PrinterType = "libusb"
)

// IsUSB reports whether the transport is a local USB link, which cannot answer status probes.
func (t PrinterType) IsUSB() bool {
	return t == PrinterTypeUSB || t == PrinterTypeLibUSB
}

// Backend はプリンター実装の共通インターフェース
type Backend interface {
	// Connect はプリンターに接続する
	Connect(ctx context.Context) error

	// Send writes a complete command stream and waits for the printer's answer.
	// A zero Status means the transport gave no reply.
	Send(ctx context.Context, data []byte) (brotherql.Status, error)

	// Probe writes a status request and reads one reply.
	// USB backends return ErrProbeNotApplicable.
	Probe(ctx context.Context, request []byte) (brotherql.Status, error)

	// Close はプリンター接続を切断する
	Close() error

	// Type はプリンター種類を返す
	Type() PrinterType

	// URI returns the printer address the backend was created for.
	URI() string
}

// Config はトランスポート設定
type Config struct {
	// DialTimeout bounds connection establishment.
	DialTimeout time.Duration
	// IOTimeout bounds each write and each status read.
	IOTimeout time.Duration
	// StatusWait is how long Send waits for a status reply after writing.
	// Printers that never answer are treated as having accepted the job.
	StatusWait time.Duration
}

// DefaultConfig returns the transport timeouts used when none are configured.
func DefaultConfig() Config {
	return Config{
		DialTimeout: 5 * time.Second,
		IOTimeout:   10 * time.Second,
		StatusWait:  3 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.IOTimeout <= 0 {
		c.IOTimeout = d.IOTimeout
	}
	if c.StatusWait <= 0 {
		c.StatusWait = d.StatusWait
	}
	return c
}

// deadline is the earlier of now+d and the context deadline.
func deadline(ctx context.Context, d time.Duration) time.Time {
	t := time.Now().Add(d)
	if cd, ok := ctx.Deadline(); ok && cd.Before(t) {
		return cd
	}
	return t
}
