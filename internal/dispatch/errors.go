package dispatch

import (
	"context"
	"errors"

	"github.com/nantokaworks/ql-label-printer/internal/apperr"
	"github.com/nantokaworks/ql-label-printer/internal/output"
)

// Kind is the failure category reported to callers.
type Kind string

const (
	KindNone       Kind = ""
	KindValidation Kind = "validation"
	KindRender     Kind = "render"
	KindTransport  Kind = "transport"
	KindInternal   Kind = "internal"
)

// Classify maps an error from Dispatch or StatusProbe to its category.
func Classify(err error) Kind {
	var te *output.TransportError
	switch {
	case err == nil:
		return KindNone
	case apperr.IsValidation(err):
		return KindValidation
	case apperr.IsRender(err):
		return KindRender
	case errors.As(err, &te), errors.Is(err, output.ErrProbeNotApplicable):
		return KindTransport
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindTransport
	}
	return KindInternal
}
