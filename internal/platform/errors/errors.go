package errors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindConfig     Kind = "config"
	KindBootstrap  Kind = "bootstrap"
	KindValidation Kind = "validation"
	KindUpstream   Kind = "upstream"
	KindTransport  Kind = "transport"
	KindNotFound   Kind = "not_found"
	KindInternal   Kind = "internal"
	KindUnknown    Kind = "unknown"
)

// Error is the relay's tagged error. Code is the machine readable identifier
// surfaced to HTTP clients in the "error" field; it may be empty for errors
// that never leave the process.
type Error struct {
	Kind    Kind
	Op      string
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Kind, e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Kind, e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// WithCode returns e with its client facing code set.
func (e *Error) WithCode(code string) *Error {
	if e == nil {
		return nil
	}
	e.Code = code
	return e
}

func Wrap(kind Kind, op, message string, err error) *Error {
	if err == nil {
		return nil
	}

	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}

	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
		Cause:   err,
	}
}

func New(kind Kind, op, message string) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: message,
	}
}

// IsKind checks whether any error in the chain matches the provided kind.
func IsKind(err error, kind Kind) bool {
	var target *Error
	for err != nil {
		if errors.As(err, &target) {
			return target.Kind == kind
		}
		err = errors.Unwrap(err)
	}
	return false
}

// KindOf returns the kind of the first typed error in the chain, or KindUnknown.
func KindOf(err error) Kind {
	var target *Error
	if errors.As(err, &target) {
		return target.Kind
	}
	return KindUnknown
}

// CodeOf returns the client facing code of the first typed error in the chain.
func CodeOf(err error) string {
	var target *Error
	if errors.As(err, &target) {
		return target.Code
	}
	return ""
}
