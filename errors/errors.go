// Package errors provides error handling for listsync.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - PII-safe error formatting
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := doSomething(); err != nil {
//	    return errors.Wrap(err, "failed to do something")
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrNotFound) {
//	    // handle missing entity
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	"context"

	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is        = crdb.Is
	IsAny     = crdb.IsAny
	As        = crdb.As
	Unwrap    = crdb.Unwrap
	UnwrapAll = crdb.UnwrapAll
)

// Sentinel errors for the synchronization pipeline.
// Use these with errors.Is() for type-safe error checking and wrap them
// with errors.Wrap() to add context while preserving the type.
var (
	// ErrTimeout indicates a bounded network call exceeded its deadline
	ErrTimeout = New("operation timed out")

	// ErrTransport indicates a network-level failure worth retrying
	ErrTransport = New("transport failure")

	// ErrMalformedResponse indicates the remote service returned something
	// that could not be decoded; retrying will not help
	ErrMalformedResponse = New("malformed response")

	// ErrNotFound indicates the requested entity does not exist
	ErrNotFound = New("entity not found")

	// ErrMarkersNotFound indicates a page is missing its start or end
	// template marker; a configuration problem, never retried
	ErrMarkersNotFound = New("template markers not found")

	// ErrEditConflict indicates the page changed under us mid-edit
	ErrEditConflict = New("edit conflict")

	// ErrAuthFailure indicates the wiki rejected our credentials
	ErrAuthFailure = New("authentication failure")

	// ErrNamespaceBlocked indicates the page lives in a namespace the
	// configuration forbids editing
	ErrNamespaceBlocked = New("namespace blocked for edits")
)

// IsRetryable reports whether err is a transient failure the retry loops
// should attempt again. Only timeouts and transport failures qualify;
// everything else is either fatal to the job or a configuration problem.
func IsRetryable(err error) bool {
	return err != nil && IsAny(err, ErrTimeout, ErrTransport)
}

// IsNotFoundError checks if an error is or wraps ErrNotFound.
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// WrapContext classifies a context failure: an expired deadline becomes the
// retryable ErrTimeout, while cancellation passes through unclassified so a
// deliberate shutdown is never re-attempted.
func WrapContext(ctx context.Context, msg string) error {
	if Is(ctx.Err(), context.DeadlineExceeded) {
		return Wrap(ErrTimeout, msg)
	}
	return Wrap(ctx.Err(), msg)
}
