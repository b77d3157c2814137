// Package broadcast fans server events out to whoever is listening (the WebSocket hub).
package broadcast

import "sync"

// Sender receives every broadcast message.
type Sender func(msg any)

var (
	mu      sync.RWMutex
	senders []Sender
)

// Register adds a sender.
func Register(s Sender) {
	mu.Lock()
	defer mu.Unlock()
	senders = append(senders, s)
}

// Send delivers msg to every registered sender.
func Send(msg any) {
	mu.RLock()
	list := make([]Sender, len(senders))
	copy(list, senders)
	mu.RUnlock()

	for _, s := range list {
		if s != nil {
			s(msg)
		}
	}
}

// Reset removes all senders.
func Reset() {
	mu.Lock()
	senders = nil
	mu.Unlock()
}
