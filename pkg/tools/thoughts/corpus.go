package thoughts

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/ports"
)

// Corpus is an in-memory thought collection with keyword scoring. It stands
// in for a vector index in the CLI and in tests.
//
// Thoughts are scoped by user: a caller only sees thoughts with its own
// UserID, or thoughts with no owner.
type Corpus struct {
	mu       sync.RWMutex
	thoughts []ports.Thought
}

// NewCorpus creates a corpus holding the given thoughts.
func NewCorpus(thoughts ...ports.Thought) *Corpus {
	c := &Corpus{}
	for _, t := range thoughts {
		c.Add(t)
	}
	return c
}

// Add stores or replaces a thought by id.
func (c *Corpus) Add(t ports.Thought) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.thoughts {
		if c.thoughts[i].ID == t.ID {
			c.thoughts[i] = t
			return
		}
	}
	c.thoughts = append(c.thoughts, t)
}

func visible(t ports.Thought, rc domain.RunContext) bool {
	return t.UserID == "" || t.UserID == rc.UserID
}

// Search ranks thoughts by the share of query terms they contain.
// Distance is the negated share, so closer matches sort first.
func (c *Corpus) Search(ctx context.Context, rc domain.RunContext, query string, topK int) ([]ports.ScoredThought, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	c.mu.RLock()
	var hits []ports.ScoredThought
	for _, t := range c.thoughts {
		if !visible(t, rc) {
			continue
		}
		words := make(map[string]struct{})
		for _, w := range tokenize(t.Title + " " + Normalize(t.Content)) {
			words[w] = struct{}{}
		}
		matched := 0
		for _, term := range terms {
			if _, ok := words[term]; ok {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		hits = append(hits, ports.ScoredThought{Thought: t, Distance: -float64(matched) / float64(len(terms))})
	}
	c.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].CreatedAt.After(hits[j].CreatedAt)
	})
	if topK > 0 && len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// Get fetches a thought by id.
func (c *Corpus) Get(ctx context.Context, rc domain.RunContext, id string) (ports.Thought, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.thoughts {
		if t.ID == id && visible(t, rc) {
			return t, true, nil
		}
	}
	return ports.Thought{}, false, nil
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	seen := make(map[string]struct{}, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if len(f) < 3 {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
