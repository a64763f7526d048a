package storage

import "strings"

// ValidationError means the caller-supplied data is ineligible for the
// operation. It is never worth retrying.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// BackendError wraps a single backend's I/O or query failure. Callers may
// retry at their own discretion.
type BackendError struct {
	Backend string
	Err     error
}

func (e *BackendError) Error() string { return e.Backend + ": " + e.Err.Error() }

func (e *BackendError) Unwrap() error { return e.Err }

// AggregateError collects the failures of every backend in a chain. The
// composite cache returns it only when no backend at all was reachable.
type AggregateError struct {
	Errs []error
}

func (e *AggregateError) Error() string {
	msgs := make([]string, len(e.Errs))
	for i, err := range e.Errs {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

func (e *AggregateError) Unwrap() []error { return e.Errs }
