package api

import "time"

// State is a named stage a workflow instance can occupy.
type State string

const (
	StateCreated    State = "CREATED"
	StateValidated  State = "VALIDATED"
	StateProcessing State = "PROCESSING"
	StateCompleted  State = "COMPLETED"
	StateFailed     State = "FAILED"
)

func (s State) String() string { return string(s) }

// Operation names a transition. Legality of an operation is decided by the
// TransitionTable the instance was created with.
type Operation string

const (
	OpValidate        Operation = "validate"
	OpStartProcessing Operation = "start_processing"
	OpComplete        Operation = "complete"
	OpFail            Operation = "fail"
)

func (o Operation) String() string { return string(o) }

// TransitionRecord is one entry of an instance's append-only history.
type TransitionRecord struct {
	From      State
	To        State
	Operation Operation
	At        time.Time
}

// InstanceSnapshot is a point-in-time copy of an instance. It is the unit
// that stores persist and that Restore rebuilds instances from.
type InstanceSnapshot struct {
	ID        string
	Payload   any
	State     State
	History   []TransitionRecord
	CreatedAt time.Time
	UpdatedAt time.Time
}

// InstanceListOptions controls how instances are listed.
// Zero values mean "no filter" for that field.
type InstanceListOptions struct {
	// State, if non-empty, limits results to instances in the given state.
	State State

	// Limit caps the number of returned instances. Zero means no limit.
	Limit int
}
