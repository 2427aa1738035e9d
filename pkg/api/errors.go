package api

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidTransition is matched (via errors.Is) by every
	// *InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrCorruptHistory is returned by Restore when a snapshot's state and
	// history do not form a legal path through the transition table.
	ErrCorruptHistory = errors.New("corrupt instance history")

	// ErrInvalidTable is returned when a transition table definition is
	// inconsistent.
	ErrInvalidTable = errors.New("invalid transition table")

	// ErrInstanceNotFound is returned when an instance does not exist.
	ErrInstanceNotFound = errors.New("instance not found")

	// ErrInstanceExists is returned when creating an instance whose ID is
	// already taken.
	ErrInstanceExists = errors.New("instance already exists")

	// ErrConcurrentModification is returned by engines when an instance kept
	// changing underneath a transition for longer than the configured number
	// of conflict retries.
	ErrConcurrentModification = errors.New("concurrent modification")
)

// InvalidTransitionError reports an operation that was attempted while the
// instance was not in a state the operation accepts. The instance is left
// unchanged.
type InvalidTransitionError struct {
	InstanceID string
	Attempted  Operation
	Actual     State
	// Required lists every state the operation can be applied from, in the
	// table's declared order. It is empty for operations the table does not
	// know.
	Required []State
}

func (e *InvalidTransitionError) Error() string {
	required := "none"
	if len(e.Required) > 0 {
		parts := make([]string, len(e.Required))
		for i, s := range e.Required {
			parts[i] = string(s)
		}
		required = strings.Join(parts, "|")
	}
	return fmt.Sprintf("invalid transition: %s on instance %q in state %s (requires %s)",
		e.Attempted, e.InstanceID, e.Actual, required)
}

// Is makes errors.Is(err, ErrInvalidTransition) hold for any
// *InvalidTransitionError.
func (e *InvalidTransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
