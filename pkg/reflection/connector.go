package reflection

import (
	"context"
	"fmt"
	"strconv"

	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/ports"
	"github.com/aretw0/mindgraph/pkg/schema"
)

type pair struct{ source, target string }

// connector proposes cross-category edges between extracted nodes.
type connector struct {
	model ports.Model
}

// connect returns the prior connections that still reference known nodes
// followed by the new cross-category edges the model proposed. Proposals that
// repeat an existing (source, target) pair, reference unknown nodes or stay
// within one category are dropped. New edges never reuse a prior id.
func (c *connector) connect(ctx context.Context, sets map[Category]Result, prior []Edge, message string) ([]Edge, error) {
	owner := make(map[string]Category)
	populated := 0
	existing := make(map[pair]bool)
	for _, cat := range Categories {
		res := sets[cat]
		if len(res.Nodes) > 0 {
			populated++
		}
		for _, n := range res.Nodes {
			owner[n.ID] = cat
		}
		for _, e := range res.Edges {
			existing[pair{e.Source, e.Target}] = true
		}
	}

	used := make(map[string]bool, len(prior))
	kept := []Edge{}
	for _, e := range prior {
		used[e.ID] = true
		if _, ok := owner[e.Source]; !ok {
			continue
		}
		if _, ok := owner[e.Target]; !ok {
			continue
		}
		existing[pair{e.Source, e.Target}] = true
		kept = append(kept, e)
	}

	if populated < 2 {
		return kept, nil
	}

	system := render(connectorPrompt, map[string]string{
		"{theme_nodes}":     toJSON(orEmpty(sets[Theme].Nodes)),
		"{theme_edges}":     toJSON(orEmpty(sets[Theme].Edges)),
		"{emotion_nodes}":   toJSON(orEmpty(sets[Emotion].Nodes)),
		"{emotion_edges}":   toJSON(orEmpty(sets[Emotion].Edges)),
		"{goal_nodes}":      toJSON(orEmpty(sets[Goal].Nodes)),
		"{goal_edges}":      toJSON(orEmpty(sets[Goal].Edges)),
		"{connector_edges}": toJSON(kept),
		phMessage:           message,
	})
	resp, err := c.model.Complete(ctx, ports.ModelRequest{
		System:   system,
		Messages: []domain.Message{domain.NewHumanMessage("Do the best job to connect the themes, emotions, and goals in a meaningful way.")},
		Output: &ports.OutputSchema{
			Name:        string(Connector) + "_result",
			Description: "New edges across themes, emotions and goals",
			Schema:      schema.For[ConnectorResult](),
		},
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("connector: %w", err)
	}
	proposed, err := schema.Decode[ConnectorResult](resp.Message.Content)
	if err != nil {
		return nil, fmt.Errorf("connector: %w", err)
	}

	for _, e := range proposed.Edges {
		src, ok := owner[e.Source]
		if !ok {
			continue
		}
		dst, ok := owner[e.Target]
		if !ok || src == dst || existing[pair{e.Source, e.Target}] {
			continue
		}
		base := e.ID
		if base == "" {
			base = "edge"
		}
		e.ID = uniqueID(Connector.Namespace(base), used)
		used[e.ID] = true
		existing[pair{e.Source, e.Target}] = true
		kept = append(kept, e)
	}
	return kept, nil
}

func uniqueID(base string, used map[string]bool) string {
	if !used[base] {
		return base
	}
	for i := 2; ; i++ {
		id := base + "-" + strconv.Itoa(i)
		if !used[id] {
			return id
		}
	}
}
