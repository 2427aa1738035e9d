package api

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Observer receives callbacks from an Engine for logging and metrics.
//
// Implementations should be fast and non-blocking; heavy work should be done
// asynchronously so as not to delay transitions.
type Observer interface {
	// OnInstanceCreated is called once an instance has been stored.
	OnInstanceCreated(ctx context.Context, inst *WorkflowInstance)

	// OnTransition is called after a transition has been applied and stored.
	// inst already reflects rec.To.
	OnTransition(ctx context.Context, inst *WorkflowInstance, rec TransitionRecord)

	// OnTransitionRejected is called when op was not legal in the instance's
	// current state. err is the *InvalidTransitionError returned to the caller.
	OnTransitionRejected(ctx context.Context, inst *WorkflowInstance, op Operation, err error)
}

// NoopObserver is an Observer that does nothing.
// It is used as the default when no observer is configured.
type NoopObserver struct{}

func (NoopObserver) OnInstanceCreated(ctx context.Context, inst *WorkflowInstance) {}
func (NoopObserver) OnTransition(ctx context.Context, inst *WorkflowInstance, rec TransitionRecord) {
}
func (NoopObserver) OnTransitionRejected(ctx context.Context, inst *WorkflowInstance, op Operation, err error) {
}

// CompositeObserver fans out events to multiple observers.
type CompositeObserver struct {
	observers []Observer
}

// NewCompositeObserver creates an Observer that forwards events to each
// non-nil observer in obs.
func NewCompositeObserver(obs ...Observer) Observer {
	filtered := make([]Observer, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			filtered = append(filtered, o)
		}
	}
	if len(filtered) == 0 {
		return NoopObserver{}
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &CompositeObserver{observers: filtered}
}

func (c *CompositeObserver) OnInstanceCreated(ctx context.Context, inst *WorkflowInstance) {
	for _, o := range c.observers {
		o.OnInstanceCreated(ctx, inst)
	}
}

func (c *CompositeObserver) OnTransition(ctx context.Context, inst *WorkflowInstance, rec TransitionRecord) {
	for _, o := range c.observers {
		o.OnTransition(ctx, inst, rec)
	}
}

func (c *CompositeObserver) OnTransitionRejected(ctx context.Context, inst *WorkflowInstance, op Operation, err error) {
	for _, o := range c.observers {
		o.OnTransitionRejected(ctx, inst, op, err)
	}
}

// LoggingObserver writes structured logs using log/slog.
type LoggingObserver struct {
	Logger *slog.Logger
}

// NewLoggingObserver creates an Observer that logs instance lifecycle events
// using the provided slog.Logger. If logger is nil, slog.Default() is used.
func NewLoggingObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingObserver{Logger: logger}
}

func (o *LoggingObserver) OnInstanceCreated(ctx context.Context, inst *WorkflowInstance) {
	o.Logger.InfoContext(ctx, "instance_created",
		slog.String("instance_id", inst.ID()),
		slog.String("state", string(inst.CurrentState())),
	)
}

func (o *LoggingObserver) OnTransition(ctx context.Context, inst *WorkflowInstance, rec TransitionRecord) {
	level := slog.LevelDebug
	if inst.Table().IsTerminal(rec.To) {
		level = slog.LevelInfo
	}
	o.Logger.Log(ctx, level, "transition",
		slog.String("instance_id", inst.ID()),
		slog.String("operation", string(rec.Operation)),
		slog.String("from", string(rec.From)),
		slog.String("to", string(rec.To)),
	)
}

func (o *LoggingObserver) OnTransitionRejected(ctx context.Context, inst *WorkflowInstance, op Operation, err error) {
	o.Logger.WarnContext(ctx, "transition_rejected",
		slog.String("instance_id", inst.ID()),
		slog.String("operation", string(op)),
		slog.String("state", string(inst.CurrentState())),
		slog.Any("error", err),
	)
}

// BasicMetrics collects simple counters. It implements Observer, and can be
// combined with LoggingObserver via NewCompositeObserver.
//
// An instance counts as finished when a transition reaches a state that is
// terminal in the instance's table, so custom tables are counted correctly.
type BasicMetrics struct {
	NoopObserver

	instancesCreated    atomic.Int64
	transitions         atomic.Int64
	transitionsRejected atomic.Int64

	mu       sync.Mutex
	terminal map[State]int64
}

// BasicMetricsSnapshot is an immutable snapshot of BasicMetrics.
type BasicMetricsSnapshot struct {
	InstancesCreated    int64
	Transitions         int64
	TransitionsRejected int64
	InstancesCompleted  int64
	InstancesFailed     int64

	// InstancesTerminal counts instances that reached any terminal state;
	// TerminalByState splits it per state.
	InstancesTerminal int64
	TerminalByState   map[State]int64

	// ActiveInstances counts created instances that have not reached a
	// terminal state.
	ActiveInstances int64
}

func (m *BasicMetrics) OnInstanceCreated(ctx context.Context, inst *WorkflowInstance) {
	m.instancesCreated.Add(1)
}

func (m *BasicMetrics) OnTransition(ctx context.Context, inst *WorkflowInstance, rec TransitionRecord) {
	m.transitions.Add(1)
	if !inst.Table().IsTerminal(rec.To) {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.terminal == nil {
		m.terminal = make(map[State]int64)
	}
	m.terminal[rec.To]++
}

func (m *BasicMetrics) OnTransitionRejected(ctx context.Context, inst *WorkflowInstance, op Operation, err error) {
	m.transitionsRejected.Add(1)
}

// Snapshot returns a snapshot of the current metrics.
func (m *BasicMetrics) Snapshot() BasicMetricsSnapshot {
	snap := BasicMetricsSnapshot{
		InstancesCreated:    m.instancesCreated.Load(),
		Transitions:         m.transitions.Load(),
		TransitionsRejected: m.transitionsRejected.Load(),
		TerminalByState:     make(map[State]int64),
	}

	m.mu.Lock()
	for s, n := range m.terminal {
		snap.TerminalByState[s] = n
		snap.InstancesTerminal += n
	}
	m.mu.Unlock()

	snap.InstancesCompleted = snap.TerminalByState[StateCompleted]
	snap.InstancesFailed = snap.TerminalByState[StateFailed]
	snap.ActiveInstances = snap.InstancesCreated - snap.InstancesTerminal
	return snap
}
