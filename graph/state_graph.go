package graph

import (
	"context"
	"fmt"
)

// StateGraph represents a generic state-based graph with compile-time type safety.
// The type parameter S represents the state type, which is typically a struct.
//
// Nodes run one at a time. After a node returns, the next node is the target of
// its first static edge.
//
// Example usage:
//
//	type MyState struct {
//	    Count int
//	}
//
//	g := graph.NewStateGraph[MyState]()
//	g.AddNode("increment", "Increment counter", func(ctx context.Context, state MyState) (MyState, error) {
//	    state.Count++
//	    return state, nil
//	})
//	g.SetEntryPoint("increment")
//	g.AddEdge("increment", graph.END)
type StateGraph[S any] struct {
	// nodes is a map of node names to their corresponding Node objects
	nodes map[string]Node[S]

	// order keeps node names in insertion order for exporters
	order []string

	// edges is a slice of Edge objects representing the connections between nodes
	edges []Edge

	// entryPoint is the name of the entry point node in the graph
	entryPoint string
}

// NewStateGraph creates a new instance of StateGraph with type safety.
func NewStateGraph[S any]() *StateGraph[S] {
	return &StateGraph[S]{
		nodes: make(map[string]Node[S]),
	}
}

// AddNode adds a new node to the state graph with the given name, description and function.
// Adding a node with an existing name replaces it.
func (g *StateGraph[S]) AddNode(name string, description string, fn func(ctx context.Context, state S) (S, error)) {
	if _, exists := g.nodes[name]; !exists {
		g.order = append(g.order, name)
	}
	g.nodes[name] = Node[S]{
		Name:        name,
		Description: description,
		Function:    fn,
	}
}

// AddEdge adds a new edge to the state graph between the "from" and "to" nodes.
func (g *StateGraph[S]) AddEdge(from, to string) {
	g.edges = append(g.edges, Edge{
		From: from,
		To:   to,
	})
}

// AddSequence chains the named nodes with static edges, in order.
// It does not add an edge to END; callers decide how the sequence terminates.
func (g *StateGraph[S]) AddSequence(names ...string) {
	for i := 1; i < len(names); i++ {
		g.AddEdge(names[i-1], names[i])
	}
}

// SetEntryPoint sets the entry point node name for the state graph.
func (g *StateGraph[S]) SetEntryPoint(name string) {
	g.entryPoint = name
}

// Nodes returns the nodes in the order they were added.
func (g *StateGraph[S]) Nodes() []Node[S] {
	nodes := make([]Node[S], 0, len(g.order))
	for _, name := range g.order {
		nodes = append(nodes, g.nodes[name])
	}
	return nodes
}

// Compile validates the state graph and returns a StateRunnable instance.
func (g *StateGraph[S]) Compile() (*StateRunnable[S], error) {
	if g.entryPoint == "" {
		return nil, ErrEntryPointNotSet
	}
	if _, ok := g.nodes[g.entryPoint]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, g.entryPoint)
	}

	for _, edge := range g.edges {
		if _, ok := g.nodes[edge.From]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, edge.From)
		}
		if _, ok := g.nodes[edge.To]; !ok && edge.To != END {
			return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, edge.To)
		}
	}

	return &StateRunnable[S]{graph: g}, nil
}

// StateRunnable represents a compiled state graph that can be invoked with type safety.
type StateRunnable[S any] struct {
	graph  *StateGraph[S]
	tracer *Tracer
}

// WithTracer returns a new StateRunnable with the given tracer.
func (r *StateRunnable[S]) WithTracer(tracer *Tracer) *StateRunnable[S] {
	return &StateRunnable[S]{
		graph:  r.graph,
		tracer: tracer,
	}
}

// Tracer returns the current tracer, which may be nil.
func (r *StateRunnable[S]) Tracer() *Tracer {
	return r.tracer
}

// Graph returns the graph this runnable was compiled from.
func (r *StateRunnable[S]) Graph() *StateGraph[S] {
	return r.graph
}

// Invoke executes the compiled state graph with the given input state and returns the final state.
// On error the state reached so far is returned together with the error.
func (r *StateRunnable[S]) Invoke(ctx context.Context, initialState S) (S, error) {
	state := initialState

	var graphSpan *TraceSpan
	if r.tracer != nil {
		graphSpan = r.tracer.StartSpan(ctx, TraceEventGraphStart, "graph")
		ctx = ContextWithSpan(ctx, graphSpan)
	}

	state, err := r.run(ctx, state)

	if graphSpan != nil {
		r.tracer.EndSpan(ctx, graphSpan, state, err)
	}
	return state, err
}

func (r *StateRunnable[S]) run(ctx context.Context, state S) (S, error) {
	current := r.graph.entryPoint
	for steps := 0; current != END; steps++ {
		if steps >= DefaultRecursionLimit {
			return state, fmt.Errorf("%w: %d", ErrRecursionLimit, DefaultRecursionLimit)
		}
		if err := ctx.Err(); err != nil {
			return state, err
		}

		node, ok := r.graph.nodes[current]
		if !ok {
			return state, fmt.Errorf("%w: %s", ErrNodeNotFound, current)
		}

		next, err := r.executeNode(ctx, node, state)
		if err != nil {
			return state, fmt.Errorf("error in node %s: %w", current, err)
		}
		state = next

		to, err := r.nextNode(current)
		if err != nil {
			return state, err
		}
		if r.tracer != nil {
			r.tracer.TraceEdgeTraversal(ctx, current, to)
		}
		current = to
	}
	return state, nil
}

func (r *StateRunnable[S]) executeNode(ctx context.Context, node Node[S], state S) (result S, err error) {
	var span *TraceSpan
	if r.tracer != nil {
		span = r.tracer.StartSpan(ctx, TraceEventNodeStart, node.Name)
		ctx = ContextWithSpan(ctx, span)
	}

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
			result = state
		}
		if span != nil {
			r.tracer.EndSpan(ctx, span, result, err)
		}
	}()

	return node.Function(ctx, state)
}

// nextNode returns the target of the first static edge leaving from.
func (r *StateRunnable[S]) nextNode(from string) (string, error) {
	for _, edge := range r.graph.edges {
		if edge.From == from {
			return edge.To, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoOutgoingEdge, from)
}
