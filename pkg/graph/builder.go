package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/mindgraph/pkg/domain"
)

// Start and End are the reserved pseudo-nodes of every graph.
const (
	Start = domain.StartNode
	End   = domain.EndNode
)

// NodeFunc is a unit of work. It receives a read-only view of the state and
// returns a partial update: fields left at their zero value are not written.
type NodeFunc[S any] func(ctx context.Context, state S) (S, error)

// RouterFunc selects an outgoing route label from the merged state.
type RouterFunc[S any] func(state S) string

type branch[S any] struct {
	router RouterFunc[S]
	routes map[string]string
}

// Builder assembles a graph definition. It is not safe for concurrent use;
// Compile produces the immutable, shareable form.
type Builder[S any] struct {
	schema   *Schema[S]
	nodes    map[string]NodeFunc[S]
	order    []string
	edges    map[string][]string
	branches map[string]branch[S]
	errs     []error
}

// NewBuilder creates a builder for graphs whose state merges with schema.
func NewBuilder[S any](schema *Schema[S]) *Builder[S] {
	if schema == nil {
		schema = NewSchema[S]()
	}
	return &Builder[S]{
		schema:   schema,
		nodes:    make(map[string]NodeFunc[S]),
		edges:    make(map[string][]string),
		branches: make(map[string]branch[S]),
	}
}

func (b *Builder[S]) fail(node, reason string) {
	b.errs = append(b.errs, &domain.GraphDefinitionError{Node: node, Reason: reason})
}

// AddNode registers a named unit of work.
func (b *Builder[S]) AddNode(name string, fn NodeFunc[S]) *Builder[S] {
	switch {
	case name == "":
		b.fail(name, "node name cannot be empty")
	case name == Start || name == End || name == domain.InputNode:
		b.fail(name, "node name is reserved")
	case fn == nil:
		b.fail(name, "node function is nil")
	case b.nodes[name] != nil:
		b.fail(name, "node registered twice")
	default:
		b.nodes[name] = fn
		b.order = append(b.order, name)
	}
	return b
}

// AddEdge adds an unconditional edge.
func (b *Builder[S]) AddEdge(from, to string) *Builder[S] {
	b.edges[from] = append(b.edges[from], to)
	return b
}

// AddConditionalEdges attaches a router to from. After from completes, the
// router's label is looked up in routes to select the next node.
func (b *Builder[S]) AddConditionalEdges(from string, router RouterFunc[S], routes map[string]string) *Builder[S] {
	if router == nil {
		b.fail(from, "router is nil")
		return b
	}
	if _, exists := b.branches[from]; exists {
		b.fail(from, "conditional edges registered twice")
		return b
	}
	copied := make(map[string]string, len(routes))
	for label, target := range routes {
		copied[label] = target
	}
	b.branches[from] = branch[S]{router: router, routes: copied}
	return b
}

// Compile validates the definition and returns an immutable graph.
// All problems found are reported together as *domain.GraphDefinitionError values.
func (b *Builder[S]) Compile() (*Compiled[S], error) {
	errs := append([]error(nil), b.errs...)
	known := func(name string) bool { return b.nodes[name] != nil }

	for from, targets := range b.edges {
		if from == End {
			errs = append(errs, &domain.GraphDefinitionError{Node: from, Reason: "end cannot have outgoing edges"})
		} else if from != Start && !known(from) {
			errs = append(errs, &domain.GraphDefinitionError{Node: from, Reason: "edge source is not a registered node"})
		}
		for _, to := range targets {
			if to == Start {
				errs = append(errs, &domain.GraphDefinitionError{Node: from, Reason: "start cannot be an edge target"})
			} else if to != End && !known(to) {
				errs = append(errs, &domain.GraphDefinitionError{Node: from, Reason: fmt.Sprintf("edge target %q is not a registered node", to)})
			}
		}
	}
	for from, br := range b.branches {
		if from != Start && !known(from) {
			errs = append(errs, &domain.GraphDefinitionError{Node: from, Reason: "conditional edge source is not a registered node"})
		}
		if len(br.routes) == 0 {
			errs = append(errs, &domain.GraphDefinitionError{Node: from, Reason: "conditional edges have no routes"})
		}
		for label, to := range br.routes {
			if to != End && !known(to) {
				errs = append(errs, &domain.GraphDefinitionError{Node: from, Reason: fmt.Sprintf("route %q targets unregistered node %q", label, to)})
			}
		}
	}
	for _, name := range b.order {
		if len(b.edges[name]) == 0 && b.branches[name].router == nil {
			errs = append(errs, &domain.GraphDefinitionError{Node: name, Reason: "node has no outgoing edge"})
		}
	}
	if len(b.edges[Start]) == 0 && b.branches[Start].router == nil {
		errs = append(errs, &domain.GraphDefinitionError{Node: Start, Reason: "start has no outgoing edge"})
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	g := &Compiled[S]{
		schema:   b.schema,
		nodes:    make(map[string]NodeFunc[S], len(b.nodes)),
		order:    append([]string(nil), b.order...),
		edges:    make(map[string][]string, len(b.edges)),
		branches: make(map[string]branch[S], len(b.branches)),
	}
	for k, v := range b.nodes {
		g.nodes[k] = v
	}
	for k, v := range b.edges {
		g.edges[k] = append([]string(nil), v...)
	}
	for k, v := range b.branches {
		g.branches[k] = v
	}

	if !g.reachesEnd() {
		return nil, &domain.GraphDefinitionError{Node: Start, Reason: "no path from start to end"}
	}
	return g, nil
}
