package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/nantokaworks/ql-label-printer/internal/output"
	"github.com/nantokaworks/ql-label-printer/internal/shared/logger"
	"go.uber.org/zap"
)

// BackendFactory creates the transport for a printer URI.
type BackendFactory func(uri string) (output.Backend, error)

// Connection is the single point of access to one printer. Every use of its
// backend runs under the connection's FIFO lock.
type Connection struct {
	uri     string
	backend output.Backend
	lock    fifoLock
}

// URI returns the printer address.
func (c *Connection) URI() string {
	return c.uri
}

// Type returns the transport kind.
func (c *Connection) Type() output.PrinterType {
	return c.backend.Type()
}

// Busy reports whether a job holds or waits for the printer.
func (c *Connection) Busy() bool {
	return c.lock.Busy()
}

// Waiting returns how many jobs are queued behind the current one.
func (c *Connection) Waiting() int {
	return c.lock.Waiting()
}

// session connects, runs fn and disconnects.
func (c *Connection) session(ctx context.Context, fn func(ctx context.Context, b output.Backend) error) error {
	if err := c.backend.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		if err := c.backend.Close(); err != nil {
			logger.Warn("Failed to close printer connection", zap.String("uri", c.uri), zap.Error(err))
		}
	}()
	return fn(ctx, c.backend)
}

// Run waits for the printer in arrival order and runs fn with an open backend.
// The lock is released when fn returns, whatever the outcome.
func (c *Connection) Run(ctx context.Context, fn func(ctx context.Context, b output.Backend) error) error {
	if err := c.lock.Lock(ctx); err != nil {
		return err
	}
	defer c.lock.Unlock()
	return c.session(ctx, fn)
}

// TryRun runs fn only if the printer is idle. ran is false when it was busy.
func (c *Connection) TryRun(ctx context.Context, fn func(ctx context.Context, b output.Backend) error) (ran bool, err error) {
	if !c.lock.TryLock() {
		return false, nil
	}
	defer c.lock.Unlock()
	return true, c.session(ctx, fn)
}

// Registry maps printer URIs to their connections. One registry is shared by
// the whole process so that every caller serialises on the same lock.
type Registry struct {
	mu      sync.Mutex
	conns   map[string]*Connection
	factory BackendFactory
}

// NewRegistry creates a registry. A nil factory uses output.NewBackend with cfg.
func NewRegistry(factory BackendFactory, cfg output.Config) *Registry {
	if factory == nil {
		factory = func(uri string) (output.Backend, error) {
			return output.NewBackend(uri, cfg)
		}
	}
	return &Registry{conns: make(map[string]*Connection), factory: factory}
}

// Get returns the connection for uri, creating it on first use.
func (r *Registry) Get(uri string) (*Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conns[uri]; ok {
		return c, nil
	}
	b, err := r.factory(uri)
	if err != nil {
		return nil, err
	}
	c := &Connection{uri: uri, backend: b}
	r.conns[uri] = c
	logger.Info("Printer connection registered", zap.String("uri", uri), zap.String("type", string(b.Type())))
	return c, nil
}

// Lookup returns an existing connection.
func (r *Registry) Lookup(uri string) (*Connection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[uri]
	return c, ok
}

// closeWait bounds how long Close waits for an in-flight job per printer.
const closeWait = 3 * time.Second

// Close closes every backend. Each close waits for the printer's lock so a
// running job is not cut off; after closeWait the backend is closed anyway.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for uri, c := range r.conns {
		ctx, cancel := context.WithTimeout(context.Background(), closeWait)
		locked := c.lock.Lock(ctx) == nil
		cancel()
		if !locked {
			logger.Warn("Printer still busy at shutdown, closing anyway", zap.String("uri", uri))
		}
		if err := c.backend.Close(); err != nil {
			logger.Warn("Failed to close printer", zap.String("uri", uri), zap.Error(err))
		}
		if locked {
			c.lock.Unlock()
		}
	}
}
