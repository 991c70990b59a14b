// Package coreerr defines the error kinds shared by the record store, the
// text indices, and everything built on top of them.
//
// Callers match kinds with errors.Is:
//
//	if errors.Is(err, coreerr.ErrBusy) { retry() }
//
// A missing key is never an error; lookups return found=false instead.
package coreerr

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrIO marks disk failures in the store or an index.
	ErrIO = errors.New("i/o failure")

	// ErrCorruption marks checksum, schema, or record-version mismatches.
	ErrCorruption = errors.New("corrupted data")

	// ErrBusy marks writer contention. The caller may retry.
	ErrBusy = errors.New("writer busy")

	// ErrQueryParse marks a malformed search query.
	ErrQueryParse = errors.New("malformed query")

	// ErrInvalidInput marks arguments rejected before any lookup.
	ErrInvalidInput = errors.New("invalid input")

	// ErrCancelled marks cooperative cancellation.
	ErrCancelled = errors.New("cancelled")
)

// Error attaches a kind and the failing operation to an underlying error.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// New returns an *Error of the given kind. err may be nil.
func New(kind error, op string, err error) error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// FromContext converts a context error into ErrCancelled, keeping the
// original context error in the chain. It returns nil when ctx is live.
func FromContext(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return New(ErrCancelled, op, err)
	}
	return nil
}

// IsCancellation reports whether err stems from context cancellation or
// deadline expiry.
func IsCancellation(err error) bool {
	return errors.Is(err, ErrCancelled) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// KindOf returns the first known kind found in err's chain, or nil.
func KindOf(err error) error {
	for _, k := range []error{ErrCancelled, ErrBusy, ErrCorruption, ErrQueryParse, ErrInvalidInput, ErrIO} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
