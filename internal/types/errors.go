// internal/types/errors.go
package types

import "errors"

var (
	// ErrNotFound reports a lookup against an ID no store knows.
	ErrNotFound = errors.New("not found")

	// ErrPrecondition reports a request that fails topology or lifecycle
	// validation before any state is written.
	ErrPrecondition = errors.New("precondition failed")

	// ErrCapability reports an operation a collaborator cannot perform,
	// such as parsing a media type no parser is registered for.
	ErrCapability = errors.New("capability unavailable")

	// ErrConflictInFlight reports a second generation attempt against a
	// turn that already has one running.
	ErrConflictInFlight = errors.New("turn already in flight")
)
