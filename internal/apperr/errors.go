// Package apperr defines the shared error taxonomy: sentinel errors for the
// external collaborators plus scoped error types for build and validation
// failures that must not abort a reconciliation run.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnavailable  = errors.New("service unavailable")
	ErrConflict     = errors.New("conflict")
)

// IsTransient reports whether err is worth retrying on a later run
// (rate limiting, upstream outage). The engine itself never retries; backoff
// policy belongs to the caller.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable)
}

// IsPermanent reports whether err can never succeed on retry with the same
// configuration (bad credentials, missing project).
func IsPermanent(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrNotFound)
}

// BuildError describes a failure scoped to a single work unit. Other units in
// the same run are unaffected.
type BuildError struct {
	Root   string // canonical ref of the unit root
	Reason string
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("build unit %s: %s", e.Root, e.Reason)
}

// ValidationError describes a failure scoped to a single board task or
// operation. The offending item is skipped with a warning, never applied.
type ValidationError struct {
	Subject string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validate %s: %s", e.Subject, e.Reason)
}
