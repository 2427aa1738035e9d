// Package worker applies queued workflow commands to an engine.
//
// Producers enqueue create and transition tasks with EnqueueCreate and
// EnqueueTransition; one or more workers call ProcessOne in a loop. Every
// task is handled by exactly one worker, and the engine decides whether the
// command is legal at the moment it is processed. A transition that is no
// longer legal (for example because another command moved the instance
// first) is returned as an *api.InvalidTransitionError and dropped.
//
// Workers are decoupled from any particular backend. The in-memory, SQLite,
// Redis and MongoDB queues in internal/taskqueue can be combined with any
// engine.
//
// Most users should create workers via the flowstate package (LocalRunner,
// WorkerBundle), which wires engines, queues and observers together.
package worker
