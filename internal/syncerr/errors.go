package syncerr

import (
	"errors"
	"fmt"
)

var (
	// ErrTransientRemote marks a rate-limited remote call. It is retried until the reset-wait ceiling.
	ErrTransientRemote = errors.New("transient remote error")
	// ErrFatalRemote marks auth failures, missing resources, malformed responses and exhausted rate limits.
	ErrFatalRemote = errors.New("fatal remote error")
	// ErrLocalStore marks constraint violations and disk or lock failures in the relational store.
	ErrLocalStore = errors.New("local store error")
	// ErrReconciliation marks a chunking or vector index failure for a single issue.
	ErrReconciliation = errors.New("reconciliation error")
)

// Error carries an error kind, the operation that failed and the cause.
// errors.Is matches both the kind sentinel and anything in the cause chain.
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

// Unwrap exposes both the kind and the cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Transient wraps err as a rate-limited remote error.
func Transient(op string, err error) error {
	return wrap(ErrTransientRemote, op, err)
}

// Fatal wraps err as a fatal remote error.
func Fatal(op string, err error) error {
	return wrap(ErrFatalRemote, op, err)
}

// Store wraps err as a local store error.
func Store(op string, err error) error {
	return wrap(ErrLocalStore, op, err)
}

// Reconciliation wraps err as a per-issue reconciliation error.
func Reconciliation(op string, err error) error {
	return wrap(ErrReconciliation, op, err)
}

func wrap(kind error, op string, err error) error {
	var existing *Error
	if errors.As(err, &existing) && existing.Kind == kind {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsFatalRemote reports whether err is a fatal remote error.
func IsFatalRemote(err error) bool { return errors.Is(err, ErrFatalRemote) }

// IsTransientRemote reports whether err is a rate-limited remote error.
func IsTransientRemote(err error) bool { return errors.Is(err, ErrTransientRemote) }

// IsLocalStore reports whether err is a local store error.
func IsLocalStore(err error) bool { return errors.Is(err, ErrLocalStore) }

// IsReconciliation reports whether err is a reconciliation error.
func IsReconciliation(err error) bool { return errors.Is(err, ErrReconciliation) }
