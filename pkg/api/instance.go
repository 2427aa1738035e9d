package api

import (
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"
)

// WorkflowInstance is an entity moving through the states of a
// TransitionTable. It is safe for concurrent use: transitions are serialized
// per instance, and readers never observe a state change without its
// history record.
type WorkflowInstance struct {
	id        string
	payload   any
	createdAt time.Time

	table *TransitionTable
	now   func() time.Time

	mu      sync.RWMutex
	state   State
	history []TransitionRecord
}

// InstanceOption configures Create and Restore.
type InstanceOption func(*WorkflowInstance)

// WithTransitionTable makes the instance validate against t instead of
// DefaultTransitionTable. A nil table is ignored.
func WithTransitionTable(t *TransitionTable) InstanceOption {
	return func(w *WorkflowInstance) {
		if t != nil {
			w.table = t
		}
	}
}

// WithClock sets the clock used to timestamp transition records.
func WithClock(now func() time.Time) InstanceOption {
	return func(w *WorkflowInstance) {
		if now != nil {
			w.now = now
		}
	}
}

func newInstance(id string, payload any, opts []InstanceOption) *WorkflowInstance {
	w := &WorkflowInstance{
		id:      id,
		payload: payload,
		table:   DefaultTransitionTable(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Create returns a new instance in the table's initial state with an empty
// history. It always succeeds.
func Create(id string, payload any, opts ...InstanceOption) *WorkflowInstance {
	w := newInstance(id, payload, opts)
	w.state = w.table.Initial()
	w.createdAt = w.now()
	return w
}

// Restore rebuilds an instance from a snapshot. The snapshot's history must
// be a contiguous chain of table edges that starts at the initial state and
// ends at the snapshot's state; otherwise ErrCorruptHistory is returned.
func Restore(snap InstanceSnapshot, opts ...InstanceOption) (*WorkflowInstance, error) {
	w := newInstance(snap.ID, snap.Payload, opts)

	if !w.table.HasState(snap.State) {
		return nil, fmt.Errorf("%w: instance %q: unknown state %q", ErrCorruptHistory, snap.ID, snap.State)
	}

	at := w.table.Initial()
	for i, rec := range snap.History {
		if rec.From != at {
			return nil, fmt.Errorf("%w: instance %q: record %d starts at %s, expected %s",
				ErrCorruptHistory, snap.ID, i, rec.From, at)
		}
		to, ok := w.table.Lookup(rec.Operation, rec.From)
		if !ok || to != rec.To {
			return nil, fmt.Errorf("%w: instance %q: record %d (%s: %s -> %s) is not a table edge",
				ErrCorruptHistory, snap.ID, i, rec.Operation, rec.From, rec.To)
		}
		at = rec.To
	}
	if at != snap.State {
		return nil, fmt.Errorf("%w: instance %q: history ends at %s but state is %s",
			ErrCorruptHistory, snap.ID, at, snap.State)
	}

	w.state = snap.State
	w.history = slices.Clone(snap.History)
	w.createdAt = snap.CreatedAt
	return w, nil
}

// ID returns the instance identifier.
func (w *WorkflowInstance) ID() string { return w.id }

// Payload returns the user data the instance was created with.
func (w *WorkflowInstance) Payload() any { return w.payload }

// CreatedAt returns the creation time.
func (w *WorkflowInstance) CreatedAt() time.Time { return w.createdAt }

// Table returns the transition table the instance validates against.
func (w *WorkflowInstance) Table() *TransitionTable { return w.table }

// CurrentState returns the state the instance occupies.
func (w *WorkflowInstance) CurrentState() State {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// IsTerminal reports whether no operation can succeed from the current state.
func (w *WorkflowInstance) IsTerminal() bool {
	return w.table.IsTerminal(w.CurrentState())
}

// HistoryLen returns the number of recorded transitions.
func (w *WorkflowInstance) HistoryLen() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.history)
}

// History returns a read view over the transition log. Each iteration walks
// the records that existed when it began; ranging over the sequence again
// picks up later transitions. Iteration never modifies the log.
func (w *WorkflowInstance) History() iter.Seq[TransitionRecord] {
	return func(yield func(TransitionRecord) bool) {
		w.mu.RLock()
		// The log is append-only, so this prefix is never written again.
		records := w.history[:len(w.history):len(w.history)]
		w.mu.RUnlock()

		for _, rec := range records {
			if !yield(rec) {
				return
			}
		}
	}
}

// Snapshot returns a consistent copy of the instance.
func (w *WorkflowInstance) Snapshot() InstanceSnapshot {
	w.mu.RLock()
	defer w.mu.RUnlock()

	updated := w.createdAt
	if n := len(w.history); n > 0 {
		updated = w.history[n-1].At
	}
	return InstanceSnapshot{
		ID:        w.id,
		Payload:   w.payload,
		State:     w.state,
		History:   slices.Clone(w.history),
		CreatedAt: w.createdAt,
		UpdatedAt: updated,
	}
}

// Apply performs op if the table has an edge for it from the current state.
// On success the state moves to the edge's target and exactly one record is
// appended. On failure nothing changes and an *InvalidTransitionError is
// returned.
func (w *WorkflowInstance) Apply(op Operation) (TransitionRecord, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	to, ok := w.table.Lookup(op, w.state)
	if !ok {
		return TransitionRecord{}, &InvalidTransitionError{
			InstanceID: w.id,
			Attempted:  op,
			Actual:     w.state,
			Required:   w.table.RequiredStates(op),
		}
	}

	rec := TransitionRecord{
		From:      w.state,
		To:        to,
		Operation: op,
		At:        w.now(),
	}
	w.history = append(w.history, rec)
	w.state = to
	return rec, nil
}

func (w *WorkflowInstance) apply(op Operation) (*WorkflowInstance, error) {
	if _, err := w.Apply(op); err != nil {
		return nil, err
	}
	return w, nil
}

// Validate moves CREATED -> VALIDATED.
func (w *WorkflowInstance) Validate() (*WorkflowInstance, error) {
	return w.apply(OpValidate)
}

// StartProcessing moves VALIDATED -> PROCESSING.
func (w *WorkflowInstance) StartProcessing() (*WorkflowInstance, error) {
	return w.apply(OpStartProcessing)
}

// Complete moves PROCESSING -> COMPLETED.
func (w *WorkflowInstance) Complete() (*WorkflowInstance, error) {
	return w.apply(OpComplete)
}

// Fail moves any non-terminal state to FAILED.
func (w *WorkflowInstance) Fail() (*WorkflowInstance, error) {
	return w.apply(OpFail)
}
