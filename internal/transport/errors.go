package transport

import (
	"context"
	"errors"
	"fmt"
)

// Sentinels a Host or Port may return; Session classifies them.
var (
	ErrUnsupported      = errors.New("serial transport not supported on this host")
	ErrRestricted       = errors.New("serial access restricted by the host environment")
	ErrPermissionDenied = errors.New("serial permission denied")
	ErrNoDevice         = errors.New("no device selected")
)

// Kind classifies a connection-lifecycle error.
type Kind int

const (
	KindNone Kind = iota
	Unsupported
	Restricted
	Refused
	Fault
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case Unsupported:
		return "unsupported"
	case Restricted:
		return "restricted"
	case Refused:
		return "refused"
	case Fault:
		return "fault"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Error is the only error type Session surfaces to callers.
type Error struct {
	Kind   Kind
	Reason string // user-facing diagnostic
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "transport: " + e.Reason
	}
	return fmt.Sprintf("transport: %s: %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the user may simply try again. Unsupported and
// restricted hosts stay that way; a fault ends the session and is left to
// the user to reconnect.
func (e *Error) Retryable() bool { return e.Kind == Refused }

// KindOf returns the classification of err; KindNone for nil and Fault for
// anything unclassified.
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return Fault
}

func unsupported() *Error {
	return &Error{Kind: Unsupported, Reason: "serial is not supported on this host", Err: ErrUnsupported}
}

func restricted(err error) *Error {
	return &Error{Kind: Restricted, Reason: "serial access is blocked here; run standalone or grant device access", Err: err}
}

// classifyConnect maps a failure while requesting or opening a port.
func classifyConnect(err error) *Error {
	switch {
	case errors.Is(err, ErrUnsupported):
		return unsupported()
	case errors.Is(err, ErrRestricted), errors.Is(err, ErrPermissionDenied):
		return restricted(err)
	case errors.Is(err, ErrNoDevice):
		return &Error{Kind: Refused, Reason: "no device selected", Err: err}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &Error{Kind: Refused, Reason: "connection cancelled", Err: err}
	}
	return &Error{Kind: Refused, Reason: "failed to connect to device", Err: err}
}
