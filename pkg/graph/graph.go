package graph

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aretw0/mindgraph/pkg/domain"
)

// Compiled is a validated, immutable graph definition.
// It is safe to share between any number of concurrent executions.
type Compiled[S any] struct {
	schema   *Schema[S]
	nodes    map[string]NodeFunc[S]
	order    []string
	edges    map[string][]string
	branches map[string]branch[S]
}

// Nodes returns the registered node names in registration order.
func (g *Compiled[S]) Nodes() []string {
	return append([]string(nil), g.order...)
}

// Schema returns the merge rules of the graph state.
func (g *Compiled[S]) Schema() *Schema[S] {
	return g.schema
}

// successors evaluates the outgoing edges of node against the merged state.
func (g *Compiled[S]) successors(node string, state S) ([]string, error) {
	out := append([]string(nil), g.edges[node]...)
	br, ok := g.branches[node]
	if !ok {
		return out, nil
	}
	label := br.router(state)
	target, ok := br.routes[label]
	if !ok {
		return nil, &domain.GraphDefinitionError{
			Node:   node,
			Reason: fmt.Sprintf("router returned label %q with no matching target", label),
			Err:    domain.ErrUnknownRoute,
		}
	}
	return append(out, target), nil
}

// reachesEnd reports whether End is reachable from Start over static edges
// and every declared route.
func (g *Compiled[S]) reachesEnd() bool {
	seen := map[string]bool{Start: true}
	queue := []string{Start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		next := append([]string(nil), g.edges[cur]...)
		for _, to := range g.branches[cur].routes {
			next = append(next, to)
		}
		for _, to := range next {
			if to == End {
				return true
			}
			if !seen[to] {
				seen[to] = true
				queue = append(queue, to)
			}
		}
	}
	return false
}

// Mermaid renders the graph as a Mermaid flowchart.
// Start and End are drawn as circles; conditional routes carry their label.
func (g *Compiled[S]) Mermaid() string {
	var sb strings.Builder
	sb.WriteString("graph TD\n")
	sb.WriteString(fmt.Sprintf("    %s((\"start\"))\n", sanitizeMermaidID(Start)))
	for _, name := range g.order {
		sb.WriteString(fmt.Sprintf("    %s[\"%s\"]\n", sanitizeMermaidID(name), name))
	}
	sb.WriteString(fmt.Sprintf("    %s((\"end\"))\n", sanitizeMermaidID(End)))

	sources := append([]string{Start}, g.order...)
	for _, from := range sources {
		for _, to := range g.edges[from] {
			sb.WriteString(fmt.Sprintf("    %s --> %s\n", sanitizeMermaidID(from), sanitizeMermaidID(to)))
		}
		br, ok := g.branches[from]
		if !ok {
			continue
		}
		labels := make([]string, 0, len(br.routes))
		for label := range br.routes {
			labels = append(labels, label)
		}
		sort.Strings(labels)
		for _, label := range labels {
			safeLabel := strings.ReplaceAll(label, "\"", "'")
			sb.WriteString(fmt.Sprintf("    %s -. \"%s\" .-> %s\n", sanitizeMermaidID(from), safeLabel, sanitizeMermaidID(br.routes[label])))
		}
	}
	return sb.String()
}

func sanitizeMermaidID(id string) string {
	switch id {
	case Start:
		return "START"
	case End:
		return "END"
	}
	s := strings.ReplaceAll(id, ".", "_")
	s = strings.ReplaceAll(s, "-", "_")
	s = strings.ReplaceAll(s, "/", "_")
	return s
}
