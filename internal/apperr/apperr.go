// Package apperr defines the structured error kinds every component
// boundary converts low-level failures into. Raw process, file or
// network errors never cross a component boundary.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnknownServer           Kind = "UNKNOWN_SERVER"
	KindAlreadyActive           Kind = "ALREADY_ACTIVE"
	KindInvalidTransition       Kind = "INVALID_TRANSITION"
	KindNotRunning              Kind = "NOT_RUNNING"
	KindDiscoveryTimeout        Kind = "DISCOVERY_TIMEOUT"
	KindRouterRejected          Kind = "ROUTER_REJECTED"
	KindConfigWriteFailed       Kind = "CONFIG_WRITE_FAILED"
	KindPortInUse               Kind = "PORT_IN_USE"
	KindUnknownServerInTopology Kind = "UNKNOWN_SERVER_IN_TOPOLOGY"
	KindNotAProxy               Kind = "NOT_A_PROXY"
	KindNotABackend             Kind = "NOT_A_BACKEND"
	KindValidation              Kind = "VALIDATION"
	KindInternal                Kind = "INTERNAL"
)

// Error is a failure with a classified kind and a human message.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error under a kind.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Kind == kind
}
