package output

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"

	"github.com/nantokaworks/ql-label-printer/internal/brotherql"
)

// ErrProbeNotApplicable is returned by backends that cannot answer status requests.
var ErrProbeNotApplicable = errors.New("status probe not applicable to this transport")

// ErrorKind classifies transport failures.
type ErrorKind string

const (
	ConnectionRefused ErrorKind = "connection_refused"
	Timeout           ErrorKind = "timeout"
	MalformedResponse ErrorKind = "malformed_response"
	PrinterFault      ErrorKind = "printer_fault"
	IO                ErrorKind = "io"
)

// TransportError is any failure talking to a printer.
type TransportError struct {
	Kind ErrorKind
	URI  string
	Op   string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %s: %v", e.Op, e.URI, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a TransportError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Kind == kind
}

// wrapErr turns a low level error into a TransportError.
func wrapErr(uri, op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Kind: kindOf(err), URI: uri, Op: op, Err: err}
}

func kindOf(err error) ErrorKind {
	var ne net.Error
	var pe *brotherql.PrinterError
	switch {
	case errors.As(err, &pe):
		return PrinterFault
	case errors.Is(err, brotherql.ErrMalformedStatus):
		return MalformedResponse
	case errors.Is(err, syscall.ECONNREFUSED):
		return ConnectionRefused
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return Timeout
	case errors.As(err, &ne) && ne.Timeout():
		return Timeout
	}
	return IO
}
