package downstream

import (
	"context"
	"errors"
	"fmt"
	"net"

	"RecoGateway/internal/domain/models"
	xhttp "RecoGateway/pkg/http"
)

// Error is a failed downstream call. Status is set only for non-2xx responses.
type Error struct {
	Service string
	Kind    models.ErrorKind
	Status  int
	Err     error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Service, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Service, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a downstream timeout.
func IsTimeout(err error) bool {
	var de *Error
	return errors.As(err, &de) && de.Kind == models.KindDownstreamTimeout
}

func classify(service string, err error) *Error {
	var se *xhttp.StatusError
	if errors.As(err, &se) {
		return &Error{Service: service, Kind: models.KindDownstreamUnavailable, Status: se.StatusCode, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Service: service, Kind: models.KindDownstreamTimeout, Err: err}
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return &Error{Service: service, Kind: models.KindDownstreamTimeout, Err: err}
	}
	return &Error{Service: service, Kind: models.KindDownstreamUnavailable, Err: err}
}

func shapeError(service string, err error) *Error {
	return &Error{Service: service, Kind: models.KindDownstreamShape, Err: err}
}

func resultLabel(err *Error) string {
	if err == nil {
		return "ok"
	}
	switch err.Kind {
	case models.KindDownstreamTimeout:
		return "timeout"
	case models.KindDownstreamShape:
		return "shape_error"
	default:
		return "unavailable"
	}
}
