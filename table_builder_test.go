package flowstate

import (
	"context"
	"errors"
	"testing"
)

func TestTableBuilderInfersStates(t *testing.T) {
	table := NewTable("DRAFT").
		Edge("submit", "DRAFT", "REVIEW").
		Edge("approve", "REVIEW", "PUBLISHED").
		Edge("reject", "REVIEW", "DRAFT").
		MustBuild()

	want := []State{"DRAFT", "REVIEW", "PUBLISHED"}
	got := table.States()
	if len(got) != len(want) {
		t.Fatalf("expected states %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected states %v, got %v", want, got)
		}
	}
	if !table.IsTerminal("PUBLISHED") || table.IsTerminal("REVIEW") {
		t.Fatalf("unexpected terminal states")
	}
}

func TestTableBuilderExplicitStates(t *testing.T) {
	table, err := NewTable("A").
		States("A", "B").
		States("ORPHAN").
		Edge("go", "A", "B").
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	if !table.HasState("ORPHAN") {
		t.Fatalf("expected declared state ORPHAN")
	}
}

func TestTableBuilderErrors(t *testing.T) {
	cases := map[string]*TableBuilder{
		"undeclared endpoint": NewTable("A").States("A").Edge("go", "A", "B"),
		"duplicate edge":      NewTable("A").Edge("go", "A", "B").Edge("go", "A", "C"),
		"empty initial":       NewTable(""),
	}
	for name, b := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := b.Build(); !errors.Is(err, ErrInvalidTable) {
				t.Fatalf("expected ErrInvalidTable, got %v", err)
			}
		})
	}
}

func TestTableBuilderMustBuildPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected MustBuild to panic")
		}
	}()
	NewTable("A").States("A").Edge("go", "A", "Z").MustBuild()
}

func TestTableBuilderDrivesEngine(t *testing.T) {
	ctx := context.Background()
	table := NewTable("DRAFT").
		Edge("submit", "DRAFT", "REVIEW").
		Edge("reject", "REVIEW", "DRAFT").
		Edge("approve", "REVIEW", "PUBLISHED").
		MustBuild()

	eng := NewInMemoryEngine(WithTransitionTable(table))
	if _, err := eng.Create(ctx, "doc", nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	for _, op := range []Operation{"submit", "reject", "submit", "approve"} {
		if _, err := eng.Transition(ctx, "doc", op); err != nil {
			t.Fatalf("%s failed: %v", op, err)
		}
	}

	inst, err := eng.GetInstance(ctx, "doc")
	if err != nil {
		t.Fatalf("GetInstance failed: %v", err)
	}
	if inst.CurrentState() != "PUBLISHED" || inst.HistoryLen() != 4 || !inst.IsTerminal() {
		t.Fatalf("unexpected instance: state=%s history=%d", inst.CurrentState(), inst.HistoryLen())
	}
}
