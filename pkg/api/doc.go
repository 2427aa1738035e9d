// Package api contains the core building blocks of the flowstate workflow
// state machine: states, operations, transition tables, workflow instances,
// the Engine interface, and observers.
//
// Most users interact with the higher-level flowstate package, which
// re-exports selected types and helpers from this package and provides
// engine constructors for the supported stores.
//
// # Transition tables
//
// A TransitionTable is the single authority on which transitions are legal.
// Each Edge says that applying an Operation in a From state moves the
// instance to a To state. DefaultTransitionTable returns the standard
// topology:
//
//	CREATED -validate-> VALIDATED -start_processing-> PROCESSING -complete-> COMPLETED
//	CREATED | VALIDATED | PROCESSING -fail-> FAILED
//
// Tables can also be built with NewTransitionTable or loaded from YAML with
// LoadTransitionTable. A state without outgoing edges is terminal.
//
// # Instances
//
// A WorkflowInstance is created in the table's initial state with an empty
// history. Every transition method checks the table at call time:
//
//	inst := api.Create("wf-1", payload)
//	if _, err := inst.Validate(); err != nil { ... }
//
// A legal call moves the instance and appends exactly one TransitionRecord
// to its history. An illegal call changes nothing and returns an
// *InvalidTransitionError carrying the attempted operation, the actual state
// and the required states. Instances are safe for concurrent use.
//
// # Observability
//
// Engines report lifecycle events to an Observer. LoggingObserver writes
// structured logs with log/slog, BasicMetrics keeps in-process counters, and
// NewCompositeObserver combines several observers.
package api
