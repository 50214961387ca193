// Package graph provides a small typed state graph used to sequence the stages
// of the question answering pipeline.
//
// A StateGraph[S] holds named nodes that transform a state value of type S and
// the static edges between them.
// Compile validates the structure and returns a StateRunnable[S] whose Invoke
// runs the nodes one after another until END is reached.
//
// # Example
//
//	type State struct {
//		Question string
//		Answer   string
//	}
//
//	g := graph.NewStateGraph[State]()
//	g.AddNode("retrieve", "Fetch context", retrieve)
//	g.AddNode("generate", "Answer the question", generate)
//	g.SetEntryPoint("retrieve")
//	g.AddSequence("retrieve", "generate")
//	g.AddEdge("generate", graph.END)
//
//	runnable, err := g.Compile()
//	if err != nil {
//		return err
//	}
//	final, err := runnable.Invoke(ctx, State{Question: "What is Task Decomposition?"})
//
// # Tracing
//
// A Tracer attached with WithTracer emits graph, node and edge events to
// registered TraceHook implementations. The tracer keeps no per-run data, so a
// single tracer can observe concurrent runs.
//
//	tracer := graph.NewTracer(graph.TraceHookFunc(func(ctx context.Context, span *graph.TraceSpan) {
//		if span.Event == graph.TraceEventNodeEnd {
//			logger.Info("node %s took %s", span.NodeName, span.Duration)
//		}
//	}))
//	runnable = runnable.WithTracer(tracer)
//
// # Visualization
//
// Exporter renders a graph as a Mermaid flowchart or a plain text listing.
package graph
