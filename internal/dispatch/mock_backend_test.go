package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nantokaworks/ql-label-printer/internal/brotherql"
	"github.com/nantokaworks/ql-label-printer/internal/output"
)

// mockBackend records what it is sent and how many callers use it at once.
type mockBackend struct {
	typ        output.PrinterType
	sendDelay  time.Duration
	sendErr    error
	connectErr error
	probeErr   error
	probe      brotherql.Status

	active    atomic.Int32
	maxActive atomic.Int32

	mu       sync.Mutex
	sent     [][]byte
	connects int
	closes   int
	probes   int
}

func (m *mockBackend) Connect(ctx context.Context) error {
	m.mu.Lock()
	m.connects++
	m.mu.Unlock()
	return m.connectErr
}

func (m *mockBackend) Send(ctx context.Context, data []byte) (brotherql.Status, error) {
	n := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		cur := m.maxActive.Load()
		if n <= cur || m.maxActive.CompareAndSwap(cur, n) {
			break
		}
	}
	time.Sleep(m.sendDelay)
	if m.sendErr != nil {
		return brotherql.Status{}, m.sendErr
	}
	m.mu.Lock()
	m.sent = append(m.sent, append([]byte(nil), data...))
	m.mu.Unlock()
	return brotherql.Status{Type: brotherql.StatusCompleted}, nil
}

func (m *mockBackend) Probe(ctx context.Context, request []byte) (brotherql.Status, error) {
	m.mu.Lock()
	m.probes++
	m.mu.Unlock()
	return m.probe, m.probeErr
}

func (m *mockBackend) Close() error {
	m.mu.Lock()
	m.closes++
	m.mu.Unlock()
	return nil
}

func (m *mockBackend) Type() output.PrinterType {
	if m.typ == "" {
		return output.PrinterTypeNetwork
	}
	return m.typ
}

func (m *mockBackend) URI() string { return "mock" }

func (m *mockBackend) sentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func registryWith(b *mockBackend) *Registry {
	return NewRegistry(func(uri string) (output.Backend, error) { return b, nil }, output.Config{})
}
