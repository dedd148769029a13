package workflow

import "fmt"

// ConflictError reports a transition that is incompatible with the task's
// current status or the actor-task relationship. Current carries the task's
// actual status so the caller can resync.
type ConflictError struct {
	Current Status
	Reason  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s (current status: %s)", e.Reason, e.Current)
}

// ValidationError reports a structurally invalid request, always
// caller-fixable.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// NotFoundError reports a missing referenced record.
type NotFoundError struct {
	Entity string
	ID     int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// AuthorizationError reports an actor role not permitted for a transition.
type AuthorizationError struct {
	Role       Role
	Transition Transition
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("role %q may not perform %s", e.Role, e.Transition)
}
