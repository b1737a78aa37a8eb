package reflection

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aretw0/mindgraph/internal/logging"
	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/graph"
	"github.com/aretw0/mindgraph/pkg/ports"
	"github.com/aretw0/mindgraph/pkg/tools/thoughts"
)

// Node names of the pipeline graph.
const (
	NodeFetchContext = "fetch-context"
	NodeTheme        = string(Theme)
	NodeEmotion      = string(Emotion)
	NodeGoal         = string(Goal)
	NodeConnector    = string(Connector)
)

// Defaults of the context fetch.
const (
	DefaultContextSize = 5
	DefaultPreviewLen  = 300
)

// Limits caps the number of nodes each extractor may return.
type Limits struct {
	Themes   int `json:"themes"`
	Emotions int `json:"emotions"`
	Goals    int `json:"goals"`
}

// DefaultLimits allows four nodes per category.
func DefaultLimits() Limits {
	return Limits{Themes: 4, Emotions: 4, Goals: 4}
}

func (l Limits) of(c Category) int {
	switch c {
	case Theme:
		return l.Themes
	case Emotion:
		return l.Emotions
	case Goal:
		return l.Goals
	}
	return 0
}

// State is the execution state of a reflection thread. Extractor results
// are kept across runs so a later run revises them.
type State struct {
	Messages    []domain.Message `json:"messages,omitempty"`
	Context     string           `json:"context,omitempty"`
	Theme       *Result          `json:"theme,omitempty"`
	Emotion     *Result          `json:"emotion,omitempty"`
	Goal        *Result          `json:"goal,omitempty"`
	Connections []Edge           `json:"connections,omitempty"`
	Output      *Graph           `json:"output,omitempty"`
}

// Schema declares the merge rules of State.
func Schema() *graph.Schema[State] {
	return graph.NewSchema(
		graph.Append("messages", func(s *State) *[]domain.Message { return &s.Messages }),
		graph.Replace("context", func(s *State) *string { return &s.Context }),
		graph.Replace("theme", func(s *State) **Result { return &s.Theme }),
		graph.Replace("emotion", func(s *State) **Result { return &s.Emotion }),
		graph.Replace("goal", func(s *State) **Result { return &s.Goal }),
		graph.Replace("connections", func(s *State) *[]Edge { return &s.Connections }),
		graph.Replace("output", func(s *State) **Graph { return &s.Output }),
	)
}

// Input wraps a request or feedback message into a run input.
func Input(message string) State {
	return State{Messages: []domain.Message{domain.NewHumanMessage(message)}}
}

func (s State) result(c Category) *Result {
	switch c {
	case Theme:
		return s.Theme
	case Emotion:
		return s.Emotion
	case Goal:
		return s.Goal
	}
	return nil
}

func (s State) message() string {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == domain.RoleHuman {
			return s.Messages[i].Content
		}
	}
	return ""
}

// Invocation decides how the extractor of c runs: a thread that already
// holds a result for c revises it with the latest message as feedback.
func (s State) Invocation(c Category) Invocation {
	if prior := s.result(c); prior != nil {
		return Revise(*prior, s.message())
	}
	return Fresh(s.message())
}

// Pipeline fans the fetched context out to the three extractors and joins
// their results in the connector.
type Pipeline struct {
	retriever  ports.Retriever
	extractors map[Category]*Extractor
	connector  *connector
	limits     Limits
	topK       int
	previewLen int
	logger     *slog.Logger
	graph      *graph.Compiled[State]
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLimits sets the per-category node limits.
func WithLimits(l Limits) Option {
	return func(p *Pipeline) {
		p.limits = l
	}
}

// WithContextSize sets how many thoughts are fetched as context.
func WithContextSize(k int) Option {
	return func(p *Pipeline) {
		p.topK = k
	}
}

// WithPreviewLen sets how many characters of each thought are shown.
func WithPreviewLen(n int) Option {
	return func(p *Pipeline) {
		p.previewLen = n
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New builds the pipeline and compiles its graph. A nil retriever yields an
// empty context.
func New(model ports.Model, retriever ports.Retriever, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		retriever:  retriever,
		extractors: make(map[Category]*Extractor, len(Categories)),
		connector:  &connector{model: model},
		limits:     DefaultLimits(),
		topK:       DefaultContextSize,
		previewLen: DefaultPreviewLen,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}

	b := graph.NewBuilder(Schema()).
		AddNode(NodeFetchContext, p.fetchContext).
		AddNode(NodeConnector, p.connect).
		AddEdge(graph.Start, NodeFetchContext).
		AddEdge(NodeConnector, graph.End)
	for _, cat := range Categories {
		x, err := NewExtractor(cat, model, p.limits.of(cat))
		if err != nil {
			return nil, err
		}
		p.extractors[cat] = x
		b.AddNode(string(cat), p.extract(x)).
			AddEdge(NodeFetchContext, string(cat)).
			AddEdge(string(cat), NodeConnector)
	}

	g, err := b.Compile()
	if err != nil {
		return nil, err
	}
	p.graph = g
	return p, nil
}

// Graph returns the compiled pipeline graph.
func (p *Pipeline) Graph() *graph.Compiled[State] {
	return p.graph
}

func (p *Pipeline) fetchContext(ctx context.Context, s State) (State, error) {
	query := s.message()
	if p.retriever == nil || query == "" {
		return State{Context: "No thoughts available."}, nil
	}
	hits, err := p.retriever.Search(ctx, domain.RunContextFrom(ctx), query, p.topK)
	if err != nil {
		return State{}, fmt.Errorf("fetch context: %w", err)
	}
	p.logger.Debug("Fetched context", "thread_id", graph.ThreadID(ctx), "hits", len(hits))
	if len(hits) == 0 {
		return State{Context: "No relevant thoughts found."}, nil
	}
	return State{Context: thoughts.FormatHits(hits, p.previewLen)}, nil
}

func (p *Pipeline) extract(x *Extractor) graph.NodeFunc[State] {
	return func(ctx context.Context, s State) (State, error) {
		inv := s.Invocation(x.Category())
		p.logger.Debug("Running extractor", "thread_id", graph.ThreadID(ctx), "category", x.Category(), "mode", inv.Mode)

		res, err := x.Extract(ctx, s.Context, inv)
		if err != nil {
			return State{}, err
		}
		var out State
		switch x.Category() {
		case Theme:
			out.Theme = &res
		case Emotion:
			out.Emotion = &res
		case Goal:
			out.Goal = &res
		}
		return out, nil
	}
}

func (p *Pipeline) connect(ctx context.Context, s State) (State, error) {
	sets := make(map[Category]Result, len(Categories))
	for _, cat := range Categories {
		if r := s.result(cat); r != nil {
			sets[cat] = *r
		}
	}

	edges, err := p.connector.connect(ctx, sets, s.Connections, s.message())
	if err != nil {
		return State{}, err
	}
	out := Assemble(sets, edges)
	if err := out.Validate(); err != nil {
		return State{}, fmt.Errorf("result graph: %w", err)
	}
	return State{Connections: edges, Output: &out}, nil
}

// Assemble merges the category results and the connector edges into the
// result graph, assigning layout and presentation types.
func Assemble(sets map[Category]Result, connections []Edge) Graph {
	g := Graph{Nodes: []GraphNode{}, Edges: []GraphEdge{}}
	idx := 0
	for _, cat := range Categories {
		y := 100
		if cat == Goal {
			y = 200
		}
		for _, n := range sets[cat].Nodes {
			n.ID = cat.Namespace(n.ID)
			g.Nodes = append(g.Nodes, GraphNode{Node: n, Type: cat.Type(), Position: Position{X: idx * 100, Y: y}})
			idx++
		}
	}
	for _, cat := range Categories {
		for _, e := range sets[cat].Edges {
			e.ID = cat.Namespace(e.ID)
			e.Source = cat.Namespace(e.Source)
			e.Target = cat.Namespace(e.Target)
			g.Edges = append(g.Edges, GraphEdge{Edge: e, Type: cat.Type()})
		}
	}
	for _, e := range connections {
		e.ID = Connector.Namespace(e.ID)
		g.Edges = append(g.Edges, GraphEdge{Edge: e, Type: Connector.Type()})
	}
	return g
}
