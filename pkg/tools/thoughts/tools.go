// Package thoughts exposes the user's journal to a conversation as tools.
package thoughts

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/mitchellh/mapstructure"

	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/ports"
	"github.com/aretw0/mindgraph/pkg/schema"
)

const (
	FetchRelevantName = "fetch_relevant_thoughts"
	DetailsName       = "get_thought_details"

	DefaultTopK       = 5
	DefaultPreviewLen = 100
)

type fetchArgs struct {
	Query string `json:"query" mapstructure:"query" jsonschema:"description=A descriptive query of at least ten words"`
}

type detailsArgs struct {
	ThoughtID string `json:"thought_id" mapstructure:"thought_id" jsonschema:"description=Id of the thought to fetch"`
}

// Option configures the fetch tool.
type Option func(*FetchRelevant)

// WithTopK sets how many thoughts a search returns.
func WithTopK(k int) Option {
	return func(t *FetchRelevant) {
		if k > 0 {
			t.topK = k
		}
	}
}

// WithPreviewLen sets how many characters of content each hit shows.
func WithPreviewLen(n int) Option {
	return func(t *FetchRelevant) {
		if n > 0 {
			t.previewLen = n
		}
	}
}

// FetchRelevant searches the caller's thoughts.
type FetchRelevant struct {
	retriever  ports.Retriever
	topK       int
	previewLen int
}

// NewFetchRelevant creates the fetch_relevant_thoughts tool.
func NewFetchRelevant(r ports.Retriever, opts ...Option) *FetchRelevant {
	t := &FetchRelevant{retriever: r, topK: DefaultTopK, previewLen: DefaultPreviewLen}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *FetchRelevant) Name() string { return FetchRelevantName }

func (t *FetchRelevant) Description() string {
	return `A RAG tool that, based on a "descriptive" query, fetches relevant thoughts the user has posted.`
}

func (t *FetchRelevant) Parameters() json.RawMessage { return schema.For[fetchArgs]() }

func (t *FetchRelevant) Invoke(ctx context.Context, args map[string]any, rc domain.RunContext) (string, error) {
	var in fetchArgs
	if err := decodeArgs(args, &in); err != nil {
		return "", err
	}
	if strings.TrimSpace(in.Query) == "" {
		return "", fmt.Errorf("query must not be empty")
	}

	hits, err := t.retriever.Search(ctx, rc, in.Query, t.topK)
	if err != nil {
		return "", fmt.Errorf("search thoughts: %w", err)
	}
	return FormatHits(hits, t.previewLen), nil
}

// FormatHits renders search hits for the model. Scores are shown negated so
// higher means closer.
func FormatHits(hits []ports.ScoredThought, previewLen int) string {
	texts := make([]string, 0, len(hits))
	for _, h := range hits {
		texts = append(texts, fmt.Sprintf("### ID:%s \n\n ### Title:%s(%.2f)\n\nContent:\n%s",
			h.ID, h.Title, -h.Distance, truncate(Normalize(h.Content), previewLen)))
	}
	return strings.Join(texts, "\n\n")
}

// Details fetches one thought in full.
type Details struct {
	reader ports.ThoughtReader
}

// NewDetails creates the get_thought_details tool.
func NewDetails(r ports.ThoughtReader) *Details {
	return &Details{reader: r}
}

func (t *Details) Name() string { return DetailsName }

func (t *Details) Description() string {
	return "Fetches the full information about a particular thought."
}

func (t *Details) Parameters() json.RawMessage { return schema.For[detailsArgs]() }

func (t *Details) Invoke(ctx context.Context, args map[string]any, rc domain.RunContext) (string, error) {
	var in detailsArgs
	if err := decodeArgs(args, &in); err != nil {
		return "", err
	}

	th, ok, err := t.reader.Get(ctx, rc, in.ThoughtID)
	if err != nil {
		return "", fmt.Errorf("get thought: %w", err)
	}
	if !ok {
		return fmt.Sprintf("No thought found with id: %s", in.ThoughtID), nil
	}
	return fmt.Sprintf("### Title:%s\n\nContent:\n%s", th.Title, Normalize(th.Content)), nil
}

// Tools returns both journal tools over one corpus.
func Tools(r ports.Retriever, reader ports.ThoughtReader, opts ...Option) []ports.Tool {
	return []ports.Tool{NewFetchRelevant(r, opts...), NewDetails(reader)}
}

func decodeArgs(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(args); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}

// Normalize converts HTML journal content to markdown. Plain text is
// returned unchanged.
func Normalize(content string) string {
	if !strings.Contains(content, "<") || !strings.Contains(content, ">") {
		return content
	}
	md, err := htmltomarkdown.ConvertString(content)
	if err != nil {
		return content
	}
	return strings.TrimSpace(md)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
