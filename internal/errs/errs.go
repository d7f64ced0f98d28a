// Package errs defines the error kinds shared by the protocol, discovery and
// device layers. Every error produced by those layers matches exactly one kind
// through errors.Is.
package errs

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	ErrIO           = errors.New("io error")
	ErrSerial       = errors.New("serial error")
	ErrProtocol     = errors.New("protocol error")
	ErrDevice       = errors.New("device error")
	ErrInvalidInput = errors.New("invalid input")
	ErrConfig       = errors.New("config error")
)

// Error carries a kind, the operation that failed and an optional cause.
type Error struct {
	Kind error  // one of the Err* kinds above
	Op   string // e.g. "send_command", "open"
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if e.Op == "" {
		return fmt.Sprintf("%v: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%v: %s: %s", e.Kind, e.Op, msg)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func newf(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// IO wraps an OS-level read/write failure.
func IO(op string, err error) error {
	return &Error{Kind: ErrIO, Op: op, Err: err}
}

// Serial wraps a failure from the serial layer (open, enumerate, configure).
func Serial(op string, err error) error {
	return &Error{Kind: ErrSerial, Op: op, Err: err}
}

// Protocol reports a malformed frame, a bad checksum or a timing violation.
func Protocol(op, format string, args ...any) error {
	return newf(ErrProtocol, op, format, args...)
}

// Device reports a device-level failure: nothing found, no response.
func Device(op, format string, args ...any) error {
	return newf(ErrDevice, op, format, args...)
}

// Invalid reports a rejected argument or an illegal transition.
func Invalid(op, format string, args ...any) error {
	return newf(ErrInvalidInput, op, format, args...)
}

// Config reports an unusable configuration value or file.
func Config(op string, err error) error {
	return &Error{Kind: ErrConfig, Op: op, Err: err}
}

// KindOf returns the name of the error's kind, or "error" for foreign errors.
func KindOf(err error) string {
	for _, k := range []error{ErrIO, ErrSerial, ErrProtocol, ErrDevice, ErrInvalidInput, ErrConfig} {
		if errors.Is(err, k) {
			return k.Error()
		}
	}
	return "error"
}
