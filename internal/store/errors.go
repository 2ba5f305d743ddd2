package store

import "errors"

// Sentinel error kinds, spec §7. Wrapped with fmt.Errorf("...: %w", ...) at
// the call site and tested with errors.Is.
var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict: lost-update retry exhausted")
	ErrInvariantViolation = errors.New("invariant violation")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrInvalidQuery       = errors.New("invalid query")
	ErrCancelled          = errors.New("cancelled")
)
