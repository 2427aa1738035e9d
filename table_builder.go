package flowstate

import (
	"slices"

	"github.com/petrijr/flowstate/pkg/api"
)

// TableBuilder provides a fluent API for defining transition tables:
//
//	table := flowstate.NewTable("DRAFT").
//	    Edge("submit", "DRAFT", "REVIEW").
//	    Edge("approve", "REVIEW", "PUBLISHED").
//	    Edge("reject", "REVIEW", "DRAFT").
//	    MustBuild()
//
//	eng := flowstate.NewInMemoryEngine(flowstate.WithTransitionTable(table))
//
// States are declared explicitly with States or, if States is never called,
// collected from the initial state and the edges in order of appearance.
type TableBuilder struct {
	initial State
	states  []State
	edges   []Edge
}

// NewTable starts a table whose instances begin in initial.
func NewTable(initial State) *TableBuilder {
	return &TableBuilder{initial: initial}
}

// States declares the table's states. Calls accumulate.
func (b *TableBuilder) States(states ...State) *TableBuilder {
	b.states = append(b.states, states...)
	return b
}

// Edge adds the transition op: from -> to.
func (b *TableBuilder) Edge(op Operation, from, to State) *TableBuilder {
	b.edges = append(b.edges, Edge{Op: op, From: from, To: to})
	return b
}

// Build validates the definition and returns the table. Errors match
// ErrInvalidTable.
func (b *TableBuilder) Build() (*TransitionTable, error) {
	states := slices.Clone(b.states)
	if len(states) == 0 {
		states = b.inferStates()
	}
	return api.NewTransitionTable(b.initial, states, slices.Clone(b.edges))
}

// MustBuild is like Build but panics on error.
// Useful for package-level table variables.
func (b *TableBuilder) MustBuild() *TransitionTable {
	t, err := b.Build()
	if err != nil {
		panic(err)
	}
	return t
}

func (b *TableBuilder) inferStates() []State {
	var states []State
	add := func(s State) {
		if s != "" && !slices.Contains(states, s) {
			states = append(states, s)
		}
	}
	add(b.initial)
	for _, e := range b.edges {
		add(e.From)
		add(e.To)
	}
	return states
}
