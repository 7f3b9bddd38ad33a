// Package errkind classifies errors by how the caller should react to them.
//
// Transient errors (network, timeouts, 5xx) may succeed if the same
// operation is attempted later. Permanent errors (validation, decoding, 4xx)
// will not. Fatal errors stop the process; they only occur during startup.
package errkind

import (
	"context"
	"errors"
	"fmt"
	"net"
)

type Kind int

const (
	Unknown Kind = iota
	Transient
	Permanent
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Permanent:
		return "permanent"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func NewTransient(op string, err error) error { return wrap(Transient, op, err) }
func NewPermanent(op string, err error) error { return wrap(Permanent, op, err) }
func NewFatal(op string, err error) error     { return wrap(Fatal, op, err) }

// Of returns the kind of the outermost classified error in err's chain.
// Unclassified network errors and deadline expiries are reported as
// Transient.
func Of(err error) Kind {
	if err == nil {
		return Unknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient
	}
	return Unknown
}

func IsTransient(err error) bool { return Of(err) == Transient }
func IsFatal(err error) bool     { return Of(err) == Fatal }
