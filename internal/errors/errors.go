// Package errors defines the error taxonomy shared by every adapter and
// pipeline stage: transient (retryable), unsupported, forbidden, and
// semantic (non-retryable, caller's fault) failures.
package errors

import (
	"errors"
	"fmt"
)

// Kind tags an error with the propagation discipline it requires.
type Kind int

const (
	// KindSemantic is a non-retryable failure caused by the caller's
	// request (bad params, 4xx) or by business-rule rejection.
	KindSemantic Kind = iota
	// KindTransient is a retryable failure (network timeout, 5xx, rate limit).
	KindTransient
	// KindUnsupported means the adapter does not implement the requested capability.
	KindUnsupported
	// KindForbidden means policy permanently denies the operation, independent of mode.
	KindForbidden
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindUnsupported:
		return "unsupported"
	case KindForbidden:
		return "forbidden"
	default:
		return "semantic"
	}
}

// Error wraps a cause with a Kind so callers can branch on propagation
// discipline via errors.As without string-matching.
type Error struct {
	Kind    Kind
	Op      string
	Adapter string
	Err     error
}

func (e *Error) Error() string {
	if e.Adapter != "" {
		return fmt.Sprintf("%s: %s(%s): %v", e.Kind, e.Op, e.Adapter, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a Kind-tagged error.
func New(kind Kind, op, adapter string, err error) *Error {
	return &Error{Kind: kind, Op: op, Adapter: adapter, Err: err}
}

// Transient wraps err as a retryable failure.
func Transient(op, adapter string, err error) *Error {
	return New(KindTransient, op, adapter, err)
}

// Unsupported wraps err as an unimplemented-capability failure.
func Unsupported(op, adapter string, err error) *Error {
	return New(KindUnsupported, op, adapter, err)
}

// Forbidden wraps err as a policy-denied failure.
func Forbidden(op, adapter string, err error) *Error {
	return New(KindForbidden, op, adapter, err)
}

// Semantic wraps err as a non-retryable caller-fault failure.
func Semantic(op, adapter string, err error) *Error {
	return New(KindSemantic, op, adapter, err)
}

// IsRetryable reports whether err (or any error it wraps) is a Transient
// failure. Only Transient errors are eligible for the caller's retry policy.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == KindTransient
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to KindSemantic when err
// carries no tagged Kind (an untagged error is treated as non-retryable).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindSemantic
}
