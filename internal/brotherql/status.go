package brotherql

import (
	"errors"
	"fmt"
	"strings"
)

// StatusSize is the length of every status reply.
const StatusSize = 32

// ErrMalformedStatus is returned for replies that are not a Brother status frame.
var ErrMalformedStatus = errors.New("malformed status reply")

// StatusType is byte 18 of a status reply.
type StatusType byte

const (
	StatusReply       StatusType = 0x00
	StatusCompleted   StatusType = 0x01
	StatusError       StatusType = 0x02
	StatusTurnedOff   StatusType = 0x04
	StatusNotice      StatusType = 0x05
	StatusPhaseChange StatusType = 0x06
)

func (t StatusType) String() string {
	switch t {
	case StatusReply:
		return "reply"
	case StatusCompleted:
		return "printing completed"
	case StatusError:
		return "error"
	case StatusTurnedOff:
		return "turned off"
	case StatusNotice:
		return "notification"
	case StatusPhaseChange:
		return "phase change"
	}
	return fmt.Sprintf("unknown(0x%02x)", byte(t))
}

// Phase is byte 19 of a status reply.
type Phase byte

const (
	PhaseReceiving Phase = 0x00
	PhasePrinting  Phase = 0x01
)

var errorInfo1 = []string{
	"no media",
	"end of media",
	"cutter jam",
	"weak batteries",
	"printer in use",
	"printer turned off",
	"high-voltage adapter",
	"fan motor error",
}

var errorInfo2 = []string{
	"replace media",
	"expansion buffer full",
	"communication error",
	"communication buffer full",
	"cover open",
	"overheating",
	"media cannot be fed",
	"system error",
}

// Status is a decoded status reply.
type Status struct {
	Model       byte
	ErrorInfo1  byte
	ErrorInfo2  byte
	MediaWidth  int
	MediaType   byte
	MediaLength int
	Type        StatusType
	Phase       Phase
}

// ParseStatus decodes a 32-byte status reply.
func ParseStatus(data []byte) (Status, error) {
	if len(data) != StatusSize {
		return Status{}, fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedStatus, len(data), StatusSize)
	}
	if data[0] != 0x80 || data[1] != StatusSize || data[2] != 'B' {
		return Status{}, fmt.Errorf("%w: bad header % x", ErrMalformedStatus, data[:3])
	}
	return Status{
		Model:       data[4],
		ErrorInfo1:  data[8],
		ErrorInfo2:  data[9],
		MediaWidth:  int(data[10]),
		MediaType:   data[11],
		MediaLength: int(data[17]),
		Type:        StatusType(data[18]),
		Phase:       Phase(data[19]),
	}, nil
}

// Errors lists the error conditions set in the reply.
func (s Status) Errors() []string {
	var out []string
	for i, name := range errorInfo1 {
		if s.ErrorInfo1&(1<<i) != 0 {
			out = append(out, name)
		}
	}
	for i, name := range errorInfo2 {
		if s.ErrorInfo2&(1<<i) != 0 {
			out = append(out, name)
		}
	}
	return out
}

// Done reports whether the reply ends a wait: anything but a phase change or notification.
func (s Status) Done() bool {
	return s.Type != StatusPhaseChange && s.Type != StatusNotice
}

// Err returns a *PrinterError when the printer reports a fault.
func (s Status) Err() error {
	errs := s.Errors()
	if len(errs) == 0 && s.Type != StatusError && s.Type != StatusTurnedOff {
		return nil
	}
	return &PrinterError{Status: s, Conditions: errs}
}

// PrinterError is a fault reported by the printer itself.
type PrinterError struct {
	Status     Status
	Conditions []string
}

func (e *PrinterError) Error() string {
	if len(e.Conditions) == 0 {
		return "printer reported " + e.Status.Type.String()
	}
	return "printer reported " + strings.Join(e.Conditions, ", ")
}
