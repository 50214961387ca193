package graph

import (
	"context"
	"errors"
	"testing"
)

// TestState is a simple test state
type TestState struct {
	Count int
	Name  string
	Steps []string
}

func step(name string) func(ctx context.Context, state TestState) (TestState, error) {
	return func(ctx context.Context, state TestState) (TestState, error) {
		state.Steps = append(state.Steps, name)
		state.Count++
		return state, nil
	}
}

func TestStateGraph_Sequence(t *testing.T) {
	g := NewStateGraph[TestState]()
	g.AddNode("analyze", "Analyze", step("analyze"))
	g.AddNode("retrieve", "Retrieve", step("retrieve"))
	g.AddNode("generate", "Generate", step("generate"))
	g.SetEntryPoint("analyze")
	g.AddSequence("analyze", "retrieve", "generate")
	g.AddEdge("generate", END)

	runnable, err := g.Compile()
	if err != nil {
		t.Fatalf("Failed to compile graph: %v", err)
	}

	final, err := runnable.Invoke(context.Background(), TestState{})
	if err != nil {
		t.Fatalf("Failed to invoke graph: %v", err)
	}

	if final.Count != 3 {
		t.Errorf("Expected count to be 3, got %d", final.Count)
	}
	want := []string{"analyze", "retrieve", "generate"}
	for i, name := range want {
		if final.Steps[i] != name {
			t.Errorf("step %d: expected %s, got %s", i, name, final.Steps[i])
		}
	}
}

func TestStateGraph_CompileErrors(t *testing.T) {
	g := NewStateGraph[TestState]()
	if _, err := g.Compile(); !errors.Is(err, ErrEntryPointNotSet) {
		t.Errorf("expected ErrEntryPointNotSet, got %v", err)
	}

	g.SetEntryPoint("missing")
	if _, err := g.Compile(); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound for entry point, got %v", err)
	}

	g = NewStateGraph[TestState]()
	g.AddNode("a", "", step("a"))
	g.SetEntryPoint("a")
	g.AddEdge("a", "b")
	if _, err := g.Compile(); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound for edge target, got %v", err)
	}
}

func TestStateGraph_NoOutgoingEdge(t *testing.T) {
	g := NewStateGraph[TestState]()
	g.AddNode("a", "", step("a"))
	g.SetEntryPoint("a")

	runnable, err := g.Compile()
	if err != nil {
		t.Fatalf("Failed to compile graph: %v", err)
	}

	final, err := runnable.Invoke(context.Background(), TestState{})
	if !errors.Is(err, ErrNoOutgoingEdge) {
		t.Fatalf("expected ErrNoOutgoingEdge, got %v", err)
	}
	if final.Count != 1 {
		t.Errorf("expected state after node a, got count %d", final.Count)
	}
}

func TestStateGraph_NodeErrorStopsRun(t *testing.T) {
	boom := errors.New("boom")

	g := NewStateGraph[TestState]()
	g.AddNode("a", "", step("a"))
	g.AddNode("b", "", func(ctx context.Context, state TestState) (TestState, error) {
		return state, boom
	})
	g.AddNode("c", "", step("c"))
	g.SetEntryPoint("a")
	g.AddSequence("a", "b", "c")
	g.AddEdge("c", END)

	runnable, err := g.Compile()
	if err != nil {
		t.Fatalf("Failed to compile graph: %v", err)
	}

	final, err := runnable.Invoke(context.Background(), TestState{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
	if len(final.Steps) != 1 || final.Steps[0] != "a" {
		t.Errorf("expected only node a to have run, got %v", final.Steps)
	}
}

func TestStateGraph_PanicIsReturnedAsError(t *testing.T) {
	g := NewStateGraph[TestState]()
	g.AddNode("a", "", func(ctx context.Context, state TestState) (TestState, error) {
		panic("bad node")
	})
	g.SetEntryPoint("a")
	g.AddEdge("a", END)

	runnable, _ := g.Compile()
	if _, err := runnable.Invoke(context.Background(), TestState{}); err == nil {
		t.Fatal("expected error from panicking node")
	}
}

func TestStateGraph_RecursionLimit(t *testing.T) {
	g := NewStateGraph[TestState]()
	g.AddNode("loop", "", step("loop"))
	g.SetEntryPoint("loop")
	g.AddEdge("loop", "loop")

	runnable, _ := g.Compile()
	final, err := runnable.Invoke(context.Background(), TestState{})
	if !errors.Is(err, ErrRecursionLimit) {
		t.Fatalf("expected ErrRecursionLimit, got %v", err)
	}
	if final.Count != DefaultRecursionLimit {
		t.Errorf("expected %d executions, got %d", DefaultRecursionLimit, final.Count)
	}
}

func TestStateGraph_CancelledContext(t *testing.T) {
	g := NewStateGraph[TestState]()
	g.AddNode("a", "", step("a"))
	g.SetEntryPoint("a")
	g.AddEdge("a", END)

	runnable, _ := g.Compile()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	final, err := runnable.Invoke(ctx, TestState{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if final.Count != 0 {
		t.Errorf("no node should run on a cancelled context")
	}
}

func TestStateGraph_Nodes(t *testing.T) {
	g := NewStateGraph[TestState]()
	g.AddNode("b", "second", step("b"))
	g.AddNode("a", "first", step("a"))
	g.AddNode("b", "replaced", step("b"))

	nodes := g.Nodes()
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(nodes))
	}
	if nodes[0].Name != "b" || nodes[0].Description != "replaced" {
		t.Errorf("unexpected first node %+v", nodes[0])
	}
}
