package service

import (
	"errors"
	"fmt"
)

// Sentinel errors the handlers translate into HTTP statuses. Policy denials
// come back as typed errors carrying the policy reason; persistence failures
// are wrapped and propagate as-is to the generic 500 handler.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// PermissionDeniedError is returned for every authorization denial (role,
// department scoping, peer-approval rule). Mapped to 403.
type PermissionDeniedError struct {
	Reason string
}

func (e *PermissionDeniedError) Error() string {
	return e.Reason
}

// InvalidTransitionError is returned when an action is not permitted from the
// request's current status. Mapped to 400.
type InvalidTransitionError struct {
	Reason string
}

func (e *InvalidTransitionError) Error() string {
	return e.Reason
}

// ValidationError reports a payload constraint the binding layer cannot
// express (e.g. negative estimated cost). Mapped to 400.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func notFound(entity string) error {
	return fmt.Errorf("%s %w", entity, ErrNotFound)
}
