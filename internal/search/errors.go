package search

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest signals a request rejected before plan selection.
	ErrInvalidRequest = errors.New("invalid request")
	// ErrMalformedFilter signals a filter clause that cannot be parsed.
	ErrMalformedFilter = errors.New("malformed filter")
	// ErrNotFound signals a get-by-id lookup with no matching record.
	ErrNotFound = errors.New("not found")
	// ErrUpstream signals a failure of the embedding provider or the search engine.
	ErrUpstream = errors.New("upstream failure")
)

// MalformedFilterError carries the offending clause.
type MalformedFilterError struct {
	Clause string
	Reason string
}

func (e *MalformedFilterError) Error() string {
	return fmt.Sprintf("%s %q: %s", ErrMalformedFilter.Error(), e.Clause, e.Reason)
}

func (e *MalformedFilterError) Unwrap() error { return ErrMalformedFilter }

func malformed(clause, reason string) error {
	return &MalformedFilterError{Clause: clause, Reason: reason}
}

// NotFoundError carries the identifier that was looked up.
type NotFoundError struct {
	Label string
	ID    string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Label, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFound creates a not-found error for the domain's record label.
func NewNotFound(d *Domain, id string) error {
	return &NotFoundError{Label: d.Label, ID: id}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
