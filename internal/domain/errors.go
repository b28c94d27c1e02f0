package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed classification for every failure the payment core
// can produce. Gateway and store boundaries classify exactly once; everything
// downstream branches on the kind, never on strings or HTTP codes.
type ErrorKind string

const (
	KindTransport        ErrorKind = "TRANSPORT"
	KindGatewayRejected  ErrorKind = "GATEWAY_REJECTED"
	KindCircuitOpen      ErrorKind = "CIRCUIT_OPEN"
	KindValidation       ErrorKind = "VALIDATION"
	KindConflict         ErrorKind = "CONFLICT"
	KindAlreadyCompleted ErrorKind = "ALREADY_COMPLETED"
	KindNotFound         ErrorKind = "NOT_FOUND"
)

type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s [%s]: %s: %v", e.Kind, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Kind, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func NewError(kind ErrorKind, code, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

func WrapError(kind ErrorKind, code string, cause error, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   cause,
	}
}

// KindOf returns the classification of err, or "" for untyped errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}

// Retryable reports whether a failed gateway attempt may be re-issued.
// Circuit rejections escalate to fallback without local retry; validation
// and conflict errors are never retried.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTransport, KindGatewayRejected:
		return true
	}
	return false
}

// ErrorCode returns the stable code carried by a classified error, falling
// back to the kind itself.
func ErrorCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Code != "" {
			return e.Code
		}
		return string(e.Kind)
	}
	return "INTERNAL"
}
