package reflection

import (
	"fmt"
	"strings"
)

// Category identifies the extractor a node or edge originates from.
type Category string

const (
	Theme     Category = "theme"
	Emotion   Category = "emotion"
	Goal      Category = "goal"
	Connector Category = "connector"
)

// Categories lists the extractor categories in layout order.
var Categories = []Category{Theme, Emotion, Goal}

// Type is the presentation type of nodes and edges of the category.
func (c Category) Type() string {
	return "self_reflection_" + string(c)
}

// Namespace prefixes id with the category unless it already carries it.
func (c Category) Namespace(id string) string {
	prefix := string(c) + "-"
	if strings.HasPrefix(id, prefix) {
		return id
	}
	return prefix + id
}

// NodeData is the payload of an insight node.
type NodeData struct {
	Label      string   `json:"label" jsonschema:"description=Short name of the insight"`
	Summary    string   `json:"summary" jsonschema:"description=Brief description of the insight"`
	Intensity  float64  `json:"intensity" jsonschema:"description=Strength between 0 and 1 for emotions; 0 otherwise"`
	ThoughtIDs []string `json:"thought_ids" jsonschema:"description=IDs of the thoughts the insight is based on"`
}

// Node is an insight produced by an extractor.
type Node struct {
	ID   string   `json:"id"`
	Data NodeData `json:"data"`
}

// EdgeData is the payload of an edge.
type EdgeData struct {
	Label string `json:"label" jsonschema:"description=Short explanation of the relationship"`
}

// Edge relates two nodes.
type Edge struct {
	ID     string   `json:"id"`
	Source string   `json:"source"`
	Target string   `json:"target"`
	Data   EdgeData `json:"data"`
}

// Result is the structured output of one extractor.
type Result struct {
	Nodes   []Node `json:"nodes" jsonschema:"description=The insight nodes"`
	Edges   []Edge `json:"edges" jsonschema:"description=Relationships between the insight nodes"`
	Message string `json:"message" jsonschema:"description=Description of the task performed"`
}

// ConnectorResult is the structured output of the connector.
type ConnectorResult struct {
	Edges []Edge `json:"edges" jsonschema:"description=Edges that interconnect themes with emotions and goals"`
}

// Position is a presentation-only layout coordinate.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// GraphNode is a node of the merged result.
type GraphNode struct {
	Node
	Type     string   `json:"type"`
	Position Position `json:"position"`
}

// GraphEdge is an edge of the merged result.
type GraphEdge struct {
	Edge
	Type string `json:"type"`
}

// Graph is the merged, cross-referenced result of a pipeline run.
type Graph struct {
	Nodes []GraphNode `json:"nodes"`
	Edges []GraphEdge `json:"edges"`
}

// Validate checks that ids are unique and every edge endpoint is a node of
// the graph.
func (g *Graph) Validate() error {
	nodes := make(map[string]bool, len(g.Nodes))
	for _, n := range g.Nodes {
		if nodes[n.ID] {
			return fmt.Errorf("duplicate node id %q", n.ID)
		}
		nodes[n.ID] = true
	}
	edges := make(map[string]bool, len(g.Edges))
	for _, e := range g.Edges {
		if edges[e.ID] {
			return fmt.Errorf("duplicate edge id %q", e.ID)
		}
		edges[e.ID] = true
		if !nodes[e.Source] || !nodes[e.Target] {
			return fmt.Errorf("edge %q references a missing node (%s -> %s)", e.ID, e.Source, e.Target)
		}
	}
	return nil
}
