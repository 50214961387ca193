package graph

import (
	"fmt"
	"strings"
)

// Exporter renders a graph in text diagram formats.
type Exporter[S any] struct {
	graph *StateGraph[S]
}

// NewExporter creates a new graph exporter for the given graph
func NewExporter[S any](graph *StateGraph[S]) *Exporter[S] {
	return &Exporter[S]{graph: graph}
}

// DrawMermaid generates a Mermaid flowchart of the graph.
func (ge *Exporter[S]) DrawMermaid() string {
	var sb strings.Builder
	sb.WriteString("flowchart TD\n")

	if ge.graph.entryPoint != "" {
		sb.WriteString("    START([\"START\"])\n")
		sb.WriteString(fmt.Sprintf("    START --> %s\n", ge.graph.entryPoint))
	}

	for _, name := range ge.graph.order {
		sb.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", name, name))
	}

	for _, edge := range ge.graph.edges {
		if edge.To == END {
			sb.WriteString(fmt.Sprintf("    %s --> END([\"END\"])\n", edge.From))
			continue
		}
		sb.WriteString(fmt.Sprintf("    %s --> %s\n", edge.From, edge.To))
	}

	return sb.String()
}

// DrawASCII generates a one-line-per-step listing following static edges from the entry point.
func (ge *Exporter[S]) DrawASCII() string {
	if ge.graph.entryPoint == "" {
		return "No entry point set\n"
	}

	var sb strings.Builder
	sb.WriteString("START\n")

	visited := make(map[string]bool)
	current := ge.graph.entryPoint
	for current != "" && current != END {
		if visited[current] {
			sb.WriteString(fmt.Sprintf("└── %s (cycle)\n", current))
			return sb.String()
		}
		visited[current] = true

		desc := ""
		if node, ok := ge.graph.nodes[current]; ok && node.Description != "" {
			desc = " - " + node.Description
		}
		sb.WriteString(fmt.Sprintf("├── %s%s\n", current, desc))

		next := ""
		for _, edge := range ge.graph.edges {
			if edge.From == current {
				next = edge.To
				break
			}
		}
		current = next
	}

	if current == END {
		sb.WriteString("└── END\n")
	}
	return sb.String()
}
