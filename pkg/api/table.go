package api

import (
	"fmt"
	"slices"
)

// Edge is a single legal transition: applying Op in state From moves the
// instance to To.
type Edge struct {
	Op   Operation `yaml:"op"`
	From State     `yaml:"from"`
	To   State     `yaml:"to"`
}

// TransitionTable is the single authority on which transitions are legal.
// It is immutable after construction and safe for concurrent use.
type TransitionTable struct {
	initial State
	states  []State
	edges   []Edge

	declared map[State]struct{}
	index    map[Operation]map[State]State
	outgoing map[State][]Operation
}

var defaultTable = mustTransitionTable(
	StateCreated,
	[]State{StateCreated, StateValidated, StateProcessing, StateCompleted, StateFailed},
	[]Edge{
		{Op: OpValidate, From: StateCreated, To: StateValidated},
		{Op: OpStartProcessing, From: StateValidated, To: StateProcessing},
		{Op: OpComplete, From: StateProcessing, To: StateCompleted},
		{Op: OpFail, From: StateCreated, To: StateFailed},
		{Op: OpFail, From: StateValidated, To: StateFailed},
		{Op: OpFail, From: StateProcessing, To: StateFailed},
	},
)

// DefaultTransitionTable returns the linear-plus-failure table:
//
//	CREATED -validate-> VALIDATED -start_processing-> PROCESSING -complete-> COMPLETED
//	CREATED | VALIDATED | PROCESSING -fail-> FAILED
func DefaultTransitionTable() *TransitionTable {
	return defaultTable
}

func mustTransitionTable(initial State, states []State, edges []Edge) *TransitionTable {
	t, err := NewTransitionTable(initial, states, edges)
	if err != nil {
		panic(err)
	}
	return t
}

// NewTransitionTable builds a table from its declared states and edges.
//
// The table must declare at least one state, without duplicates, including
// initial. Every edge needs a non-empty operation and declared endpoints,
// and no two edges may share the same (operation, from) pair.
func NewTransitionTable(initial State, states []State, edges []Edge) (*TransitionTable, error) {
	if len(states) == 0 {
		return nil, fmt.Errorf("%w: no states declared", ErrInvalidTable)
	}

	t := &TransitionTable{
		initial:  initial,
		states:   slices.Clone(states),
		edges:    slices.Clone(edges),
		declared: make(map[State]struct{}, len(states)),
		index:    make(map[Operation]map[State]State),
		outgoing: make(map[State][]Operation),
	}

	for _, s := range states {
		if s == "" {
			return nil, fmt.Errorf("%w: empty state name", ErrInvalidTable)
		}
		if _, dup := t.declared[s]; dup {
			return nil, fmt.Errorf("%w: state %s declared twice", ErrInvalidTable, s)
		}
		t.declared[s] = struct{}{}
	}
	if !t.HasState(initial) {
		return nil, fmt.Errorf("%w: initial state %q is not declared", ErrInvalidTable, initial)
	}

	for _, e := range edges {
		if e.Op == "" {
			return nil, fmt.Errorf("%w: edge %s -> %s has no operation", ErrInvalidTable, e.From, e.To)
		}
		if !t.HasState(e.From) {
			return nil, fmt.Errorf("%w: edge %s uses undeclared state %q", ErrInvalidTable, e.Op, e.From)
		}
		if !t.HasState(e.To) {
			return nil, fmt.Errorf("%w: edge %s uses undeclared state %q", ErrInvalidTable, e.Op, e.To)
		}

		byFrom := t.index[e.Op]
		if byFrom == nil {
			byFrom = make(map[State]State)
			t.index[e.Op] = byFrom
		}
		if _, dup := byFrom[e.From]; dup {
			return nil, fmt.Errorf("%w: operation %s defined twice from %s", ErrInvalidTable, e.Op, e.From)
		}
		byFrom[e.From] = e.To
		t.outgoing[e.From] = append(t.outgoing[e.From], e.Op)
	}

	return t, nil
}

// Initial returns the state new instances start in.
func (t *TransitionTable) Initial() State { return t.initial }

// States returns the declared states in declaration order.
func (t *TransitionTable) States() []State { return slices.Clone(t.states) }

// Edges returns the edges in declaration order.
func (t *TransitionTable) Edges() []Edge { return slices.Clone(t.edges) }

// Operations returns the distinct operation names in order of first use.
func (t *TransitionTable) Operations() []Operation {
	var ops []Operation
	for _, e := range t.edges {
		if !slices.Contains(ops, e.Op) {
			ops = append(ops, e.Op)
		}
	}
	return ops
}

// HasState reports whether s is one of the table's declared states.
func (t *TransitionTable) HasState(s State) bool {
	_, ok := t.declared[s]
	return ok
}

// Lookup returns the target state of applying op in state from.
func (t *TransitionTable) Lookup(op Operation, from State) (State, bool) {
	to, ok := t.index[op][from]
	return to, ok
}

// RequiredStates returns every state op can be applied from, in declared
// state order.
func (t *TransitionTable) RequiredStates(op Operation) []State {
	byFrom := t.index[op]
	if len(byFrom) == 0 {
		return nil
	}
	out := make([]State, 0, len(byFrom))
	for _, s := range t.states {
		if _, ok := byFrom[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// AllowedOperations returns the operations that are legal in state from.
func (t *TransitionTable) AllowedOperations(from State) []Operation {
	return slices.Clone(t.outgoing[from])
}

// IsTerminal reports whether s has no outgoing edges.
func (t *TransitionTable) IsTerminal(s State) bool {
	return len(t.outgoing[s]) == 0
}
