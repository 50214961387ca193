package graph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func pipelineGraph() *StateGraph[TestState] {
	g := NewStateGraph[TestState]()
	g.AddNode("analyze_query", "Structure the question", step("analyze_query"))
	g.AddNode("retrieve", "Search the vector store", step("retrieve"))
	g.AddNode("generate", "Answer from context", step("generate"))
	g.SetEntryPoint("analyze_query")
	g.AddSequence("analyze_query", "retrieve", "generate")
	g.AddEdge("generate", END)
	return g
}

func TestExporter_DrawMermaid(t *testing.T) {
	mermaid := NewExporter(pipelineGraph()).DrawMermaid()

	assert.True(t, strings.HasPrefix(mermaid, "flowchart TD\n"))
	assert.Contains(t, mermaid, "START --> analyze_query")
	assert.Contains(t, mermaid, "analyze_query --> retrieve")
	assert.Contains(t, mermaid, "retrieve --> generate")
	assert.Contains(t, mermaid, "generate --> END")
}

func TestExporter_DrawASCII(t *testing.T) {
	ascii := NewExporter(pipelineGraph()).DrawASCII()

	assert.Equal(t, "START\n"+
		"├── analyze_query - Structure the question\n"+
		"├── retrieve - Search the vector store\n"+
		"├── generate - Answer from context\n"+
		"└── END\n", ascii)

	empty := NewStateGraph[TestState]()
	assert.Equal(t, "No entry point set\n", NewExporter(empty).DrawASCII())
}
