package reflection

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/ports"
	"github.com/aretw0/mindgraph/pkg/schema"
)

// Mode tells an extractor how to treat its previous result.
type Mode int

const (
	// ModeFresh creates a result from scratch.
	ModeFresh Mode = iota
	// ModeRevise updates a previous result according to feedback.
	ModeRevise
)

func (m Mode) String() string {
	if m == ModeRevise {
		return "revise"
	}
	return "fresh"
}

// Invocation is the explicit input of an extractor call.
type Invocation struct {
	Mode Mode
	// Message is the request on a fresh run and the feedback on a revision.
	Message string
	// Prior is the extractor's previous result. Only set when revising.
	Prior Result
}

// Fresh asks for a new result.
func Fresh(message string) Invocation {
	return Invocation{Mode: ModeFresh, Message: message}
}

// Revise asks to update prior according to feedback.
func Revise(prior Result, feedback string) Invocation {
	return Invocation{Mode: ModeRevise, Message: feedback, Prior: prior}
}

// Extractor runs one structured-output model call for a category.
type Extractor struct {
	category Category
	prompt   string
	plural   string
	limit    int
	model    ports.Model
}

// NewExtractor builds the extractor of a category. limit caps the number of
// returned nodes; zero or less means no cap.
func NewExtractor(category Category, model ports.Model, limit int) (*Extractor, error) {
	x := &Extractor{category: category, model: model, limit: limit}
	switch category {
	case Theme:
		x.prompt, x.plural = themePrompt, "themes"
	case Emotion:
		x.prompt, x.plural = emotionPrompt, "emotions"
	case Goal:
		x.prompt, x.plural = goalPrompt, "goals"
	default:
		return nil, fmt.Errorf("no extractor for category %q", category)
	}
	return x, nil
}

// Category returns the category the extractor produces.
func (x *Extractor) Category() Category {
	return x.category
}

// Extract produces the category's nodes and edges from the fetched thoughts.
// The result may hold zero nodes.
func (x *Extractor) Extract(ctx context.Context, thoughts string, inv Invocation) (Result, error) {
	var prior Result
	if inv.Mode == ModeRevise {
		prior = inv.Prior
	}
	system := render(x.prompt, map[string]string{
		phThoughts: thoughts,
		phMessage:  inv.Message,
		phNodes:    toJSON(orEmpty(prior.Nodes)),
		phEdges:    toJSON(orEmpty(prior.Edges)),
		phMax:      strconv.Itoa(x.limit),
	})

	resp, err := x.model.Complete(ctx, ports.ModelRequest{
		System: system,
		Messages: []domain.Message{domain.NewHumanMessage(fmt.Sprintf(
			"Do the best job to extract the %s and form associations among them. Generate at most %d %s.",
			x.plural, x.limit, x.plural))},
		Output: &ports.OutputSchema{
			Name:        string(x.category) + "_result",
			Description: "The " + x.plural + " extracted from the thoughts",
			Schema:      schema.For[Result](),
		},
	}, nil)
	if err != nil {
		return Result{}, fmt.Errorf("%s extractor: %w", x.category, err)
	}

	res, err := schema.Decode[Result](resp.Message.Content)
	if err != nil {
		return Result{}, fmt.Errorf("%s extractor: %w", x.category, err)
	}
	return normalize(x.category, res, x.limit), nil
}

// normalize namespaces ids, applies the node limit and keeps only unique
// edges between the category's own nodes.
func normalize(cat Category, res Result, limit int) Result {
	out := Result{Nodes: []Node{}, Edges: []Edge{}, Message: res.Message}

	known := make(map[string]bool)
	for i, n := range res.Nodes {
		if limit > 0 && len(out.Nodes) == limit {
			break
		}
		if n.ID == "" {
			n.ID = strconv.Itoa(i + 1)
		}
		n.ID = cat.Namespace(n.ID)
		if known[n.ID] {
			continue
		}
		if n.Data.ThoughtIDs == nil {
			n.Data.ThoughtIDs = []string{}
		}
		known[n.ID] = true
		out.Nodes = append(out.Nodes, n)
	}

	ids := make(map[string]bool)
	for i, e := range res.Edges {
		if e.ID == "" {
			e.ID = "edge-" + strconv.Itoa(i+1)
		}
		e.ID = cat.Namespace(e.ID)
		e.Source = cat.Namespace(e.Source)
		e.Target = cat.Namespace(e.Target)
		if ids[e.ID] || e.Source == e.Target || !known[e.Source] || !known[e.Target] {
			continue
		}
		ids[e.ID] = true
		out.Edges = append(out.Edges, e)
	}
	return out
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func toJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "[]"
	}
	return string(b)
}
