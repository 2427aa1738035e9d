// Package flowstate provides a small, embeddable workflow state machine for Go.
//
// A workflow instance moves through a fixed lifecycle:
//
//	CREATED --validate--> VALIDATED --start_processing--> PROCESSING --complete--> COMPLETED
//	   |                     |                               |
//	   +------fail-----------+-------------fail--------------+--------> FAILED
//
// COMPLETED and FAILED are terminal. Every accepted operation appends an
// immutable TransitionRecord to the instance's history; every rejected one
// returns an *InvalidTransitionError naming the attempted operation, the
// actual state and the states that would have allowed it, and leaves the
// instance untouched.
//
// # Core Concepts
//
//  1. TransitionTable
//  2. WorkflowInstance
//  3. Engine
//  4. Worker
//  5. LocalRunner
//
// # TransitionTable
//
// The table is the single authority on which operation is legal in which
// state. DefaultTransitionTable is the lifecycle above; custom tables can be
// built with NewTable or loaded from YAML:
//
//	initial: CREATED
//	states: [CREATED, VALIDATED, PROCESSING, COMPLETED, FAILED]
//	transitions:
//	  - {op: validate, from: CREATED, to: VALIDATED}
//
// A state without outgoing edges is terminal.
//
// # WorkflowInstance
//
// Create returns a standalone instance in the initial state. Its transition
// methods (Validate, StartProcessing, Complete, Fail, or Apply for any table
// operation) are safe for concurrent use: of two racing calls from the same
// state, exactly one wins. History returns a restartable iterator that never
// observes a record without the matching state.
//
// Restore rebuilds an instance from a snapshot and rejects histories that are
// not a chain of table edges with ErrCorruptHistory.
//
// # Engine
//
// An Engine owns instances in a store and applies transitions by ID:
//
//   - In-memory (non-durable, best for tests)
//   - SQLite
//   - Postgres
//   - Redis
//   - MongoDB
//
// Each transition is validated against the table and committed with a
// compare-and-set on the stored state, so concurrent engines sharing a
// backend cannot both move an instance out of the same state.
//
// # Worker
//
// A Worker consumes create and transition commands from a task queue and
// applies them to an Engine. WorkerBundle pairs an engine with a queue in
// the same backend (SQLite, Redis or MongoDB).
//
// # LocalRunner
//
// LocalRunner bundles an in-memory engine, queue, and worker into a single,
// process-local helper useful for development and unit testing.
//
// For a command line front end, see cmd/flowstate.
package flowstate
