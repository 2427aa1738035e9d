package api

import "context"

// Engine owns workflow instances kept in a store and applies transitions to
// them. Transitions on the same instance are serialized by the engine, so two
// racing calls can never both succeed from the same state.
//
// Instances returned by an Engine are detached copies: calling transition
// methods on them does not change the stored instance. Use the Engine's own
// transition methods instead.
type Engine interface {
	// Create stores a new instance in the table's initial state. An empty id
	// is replaced with a generated one. Returns ErrInstanceExists if id is
	// taken.
	Create(ctx context.Context, id string, payload any) (*WorkflowInstance, error)

	// Transition applies op to the stored instance. It returns an
	// *InvalidTransitionError (matching ErrInvalidTransition) when op is not
	// legal in the instance's current state; the instance is then unchanged.
	Transition(ctx context.Context, id string, op Operation) (*WorkflowInstance, error)

	Validate(ctx context.Context, id string) (*WorkflowInstance, error)
	StartProcessing(ctx context.Context, id string) (*WorkflowInstance, error)
	Complete(ctx context.Context, id string) (*WorkflowInstance, error)
	Fail(ctx context.Context, id string) (*WorkflowInstance, error)

	// GetInstance looks up an instance by ID.
	// Returns ErrInstanceNotFound if the instance does not exist.
	GetInstance(ctx context.Context, id string) (*WorkflowInstance, error)

	// ListInstances returns instances matching the given options.
	// If options are zero-valued, all instances are returned.
	ListInstances(ctx context.Context, opts InstanceListOptions) ([]*WorkflowInstance, error)

	// History returns the transition records of an instance in order.
	History(ctx context.Context, id string) ([]TransitionRecord, error)

	// Table returns the transition table the engine validates against.
	Table() *TransitionTable
}
