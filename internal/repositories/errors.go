package repositories

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound marks a missing document in stores without native error codes.
	ErrNotFound = errors.New("repository: not found")
	// ErrVersionMismatch indicates the stored version differs from the caller's expectation.
	ErrVersionMismatch = errors.New("repository: version mismatch")
)

type errorKind int

const (
	kindNotFound errorKind = iota + 1
	kindConflict
	kindUnavailable
)

// Error is a RepositoryError for backends that classify failures themselves.
type Error struct {
	Op   string
	Err  error
	kind errorKind
}

// NewNotFoundError reports a missing document.
func NewNotFoundError(op string, err error) *Error {
	if err == nil {
		err = ErrNotFound
	}
	return &Error{Op: op, Err: err, kind: kindNotFound}
}

// NewConflictError reports a write rejected because of concurrent modification.
func NewConflictError(op string, err error) *Error {
	if err == nil {
		err = ErrVersionMismatch
	}
	return &Error{Op: op, Err: err, kind: kindConflict}
}

// NewUnavailableError reports a transient backend outage.
func NewUnavailableError(op string, err error) *Error {
	return &Error{Op: op, Err: err, kind: kindUnavailable}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Op == "" {
		return fmt.Sprint(e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *Error) IsNotFound() bool    { return e != nil && e.kind == kindNotFound }
func (e *Error) IsConflict() bool    { return e != nil && e.kind == kindConflict }
func (e *Error) IsUnavailable() bool { return e != nil && e.kind == kindUnavailable }

// IsNotFound reports whether err carries repository not found semantics.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err carries repository conflict semantics.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err carries repository unavailability semantics.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}
