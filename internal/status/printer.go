package status

import (
	"sort"
	"sync"
	"time"

	"github.com/nantokaworks/ql-label-printer/internal/broadcast"
)

// PrinterState is the last known reachability of one printer.
type PrinterState struct {
	URI       string    `json:"uri"`
	Online    bool      `json:"online"`
	Detail    string    `json:"detail"`
	CheckedAt time.Time `json:"checked_at"`
}

// PrinterStatusChangeCallback is called when a printer goes online or offline
type PrinterStatusChangeCallback func(state PrinterState)

var (
	mu               sync.RWMutex
	printers         = make(map[string]PrinterState)
	printerCallbacks []PrinterStatusChangeCallback
)

// SetPrinterState records the outcome of a check against a printer.
func SetPrinterState(uri string, online bool, detail string) {
	state := PrinterState{URI: uri, Online: online, Detail: detail, CheckedAt: time.Now()}

	mu.Lock()
	previous, known := printers[uri]
	printers[uri] = state
	callbacks := make([]PrinterStatusChangeCallback, len(printerCallbacks))
	copy(callbacks, printerCallbacks)
	mu.Unlock()

	// 状態が変わったときだけ WebSocket へ通知
	if known && previous.Online == online {
		return
	}
	eventType := "printer_disconnected"
	if online {
		eventType = "printer_connected"
	}
	broadcast.Send(map[string]interface{}{
		"type": eventType,
		"data": state,
	})

	for _, callback := range callbacks {
		if callback != nil {
			callback(state)
		}
	}
}

// GetPrinterState returns the last recorded state of a printer.
func GetPrinterState(uri string) (PrinterState, bool) {
	mu.RLock()
	defer mu.RUnlock()
	s, ok := printers[uri]
	return s, ok
}

// IsPrinterOnline reports whether the last check against uri succeeded.
func IsPrinterOnline(uri string) bool {
	s, ok := GetPrinterState(uri)
	return ok && s.Online
}

// AllPrinterStates returns every known printer, sorted by URI.
func AllPrinterStates() []PrinterState {
	mu.RLock()
	out := make([]PrinterState, 0, len(printers))
	for _, s := range printers {
		out = append(out, s)
	}
	mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out
}

// RegisterPrinterStatusChangeCallback registers a callback for printer status changes
func RegisterPrinterStatusChangeCallback(callback PrinterStatusChangeCallback) {
	mu.Lock()
	defer mu.Unlock()
	printerCallbacks = append(printerCallbacks, callback)
}

// Reset forgets all printers and callbacks.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	printers = make(map[string]PrinterState)
	printerCallbacks = nil
}
