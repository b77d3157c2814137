package output

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/nantokaworks/ql-label-printer/internal/brotherql"
	"github.com/nantokaworks/ql-label-printer/internal/shared/logger"
	"go.uber.org/zap"
)

// DefaultNetworkPort is the raw printing port of Brother network printers.
const DefaultNetworkPort = "9100"

// NetworkPrinter talks to a printer over a raw TCP socket.
type NetworkPrinter struct {
	uri  string
	addr string
	cfg  Config

	mu   sync.Mutex
	conn net.Conn
}

// NewNetworkPrinter は host:port 宛てのバックエンドを作成する
func NewNetworkPrinter(uri, addr string, cfg Config) *NetworkPrinter {
	return &NetworkPrinter{uri: uri, addr: addr, cfg: cfg.withDefaults()}
}

// Connect はプリンターに接続する
func (p *NetworkPrinter) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		return nil
	}
	d := net.Dialer{Timeout: p.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return wrapErr(p.uri, "connect", err)
	}
	p.conn = conn
	logger.Debug("Network printer connected", zap.String("addr", p.addr))
	return nil
}

func (p *NetworkPrinter) current() (net.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil, &TransportError{Kind: IO, URI: p.uri, Op: "send", Err: errors.New("not connected")}
	}
	return p.conn, nil
}

func (p *NetworkPrinter) write(ctx context.Context, conn net.Conn, op string, data []byte) error {
	if err := conn.SetWriteDeadline(deadline(ctx, p.cfg.IOTimeout)); err != nil {
		return wrapErr(p.uri, op, err)
	}
	n, err := conn.Write(data)
	if err == nil && n != len(data) {
		err = io.ErrShortWrite
	}
	if err != nil {
		return wrapErr(p.uri, op, fmt.Errorf("wrote %d of %d bytes: %w", n, len(data), err))
	}
	return nil
}

// readStatus reads frames until one that ends the wait arrives.
func (p *NetworkPrinter) readStatus(ctx context.Context, conn net.Conn, wait time.Duration) (brotherql.Status, int, error) {
	if err := conn.SetReadDeadline(deadline(ctx, wait)); err != nil {
		return brotherql.Status{}, 0, err
	}
	buf := make([]byte, brotherql.StatusSize)
	frames := 0
	for {
		n, err := io.ReadFull(conn, buf)
		if err != nil {
			if n > 0 {
				return brotherql.Status{}, frames, fmt.Errorf("%w: truncated reply of %d bytes", brotherql.ErrMalformedStatus, n)
			}
			return brotherql.Status{}, frames, err
		}
		frames++
		st, err := brotherql.ParseStatus(buf)
		if err != nil {
			return st, frames, err
		}
		if st.Done() {
			return st, frames, nil
		}
	}
}

// Send writes data and waits briefly for the printer's reply.
func (p *NetworkPrinter) Send(ctx context.Context, data []byte) (brotherql.Status, error) {
	conn, err := p.current()
	if err != nil {
		return brotherql.Status{}, err
	}
	if err := p.write(ctx, conn, "send", data); err != nil {
		return brotherql.Status{}, err
	}

	st, frames, err := p.readStatus(ctx, conn, p.cfg.StatusWait)
	if err != nil {
		// 応答を返さない機種もあるので、何も届かなければ受理されたとみなす
		if frames == 0 && (kindOf(err) == Timeout || errors.Is(err, io.EOF)) && ctx.Err() == nil {
			logger.Debug("No status reply after send", zap.String("addr", p.addr), zap.Int("bytes", len(data)))
			return brotherql.Status{}, nil
		}
		return st, wrapErr(p.uri, "status", err)
	}
	if err := st.Err(); err != nil {
		return st, wrapErr(p.uri, "send", err)
	}
	return st, nil
}

// Probe requests one status reply.
func (p *NetworkPrinter) Probe(ctx context.Context, request []byte) (brotherql.Status, error) {
	conn, err := p.current()
	if err != nil {
		return brotherql.Status{}, err
	}
	if err := p.write(ctx, conn, "probe", request); err != nil {
		return brotherql.Status{}, err
	}
	st, _, err := p.readStatus(ctx, conn, p.cfg.IOTimeout)
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = fmt.Errorf("%w: connection closed before reply", brotherql.ErrMalformedStatus)
		}
		return st, wrapErr(p.uri, "probe", err)
	}
	return st, nil
}

// Close はプリンター接続を切断する
func (p *NetworkPrinter) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	return err
}

func (p *NetworkPrinter) Type() PrinterType {
	return PrinterTypeNetwork
}

func (p *NetworkPrinter) URI() string {
	return p.uri
}
