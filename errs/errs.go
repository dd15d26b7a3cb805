// Package errs provides the typed error kinds shared by the origin and edge
// services. Leaf I/O errors are classified into one of these kinds at the
// boundary where they occur; downstream code inspects the kind rather than
// matching on error strings.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for the purposes of retry policy and the
// user-visible HTTP status it maps to.
type Kind int

const (
	// KindInternal is an invariant violation or unexpected failure.
	KindInternal Kind = iota
	// KindInput is a malformed request: bad bundle, unknown tenant, bad fingerprint.
	KindInput
	// KindUnauthorized is a missing or invalid credential.
	KindUnauthorized
	// KindNotFound is a missing page, asset, or derivation.
	KindNotFound
	// KindConflict is a put_if_absent mismatch — a corruption signal, never retried.
	KindConflict
	// KindTransient is a retryable I/O failure.
	KindTransient
	// KindTimeout is a bounded wait that was exceeded.
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindInput:
		return "input"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindTimeout:
		return "timeout"
	default:
		return "internal"
	}
}

// Status returns the HTTP status code a handler should use for this kind.
func (k Kind) Status() int {
	switch k {
	case KindInput:
		return http.StatusBadRequest
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindTransient:
		return http.StatusServiceUnavailable
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// Error is a typed error carrying a Kind alongside the usual message/cause.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error of the given kind around an existing cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf extracts the Kind of err, defaulting to KindInternal when err does
// not carry one.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
