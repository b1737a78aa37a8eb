package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/ports"
)

const mask = "***"

type piiMiddleware struct {
	next     ports.CheckpointStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks the values of JSON object
// keys matching any pattern, at any depth of the state and node writes.
// Masking is lossy: a thread resumed from a masked checkpoint sees "***".
func NewPIIMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.CheckpointStore) ports.CheckpointStore {
		return &piiMiddleware{next: next, patterns: patterns}
	}
}

func (m *piiMiddleware) Save(ctx context.Context, cp *domain.Checkpoint) error {
	// The caller's checkpoint is left untouched.
	masked := *cp

	state, err := m.maskJSON(cp.State)
	if err != nil {
		return fmt.Errorf("failed to mask state: %w", err)
	}
	masked.State = state

	masked.Writes = make([]domain.NodeWrite, len(cp.Writes))
	for i, w := range cp.Writes {
		partial, err := m.maskJSON(w.Partial)
		if err != nil {
			return fmt.Errorf("failed to mask write of %q: %w", w.Node, err)
		}
		masked.Writes[i] = domain.NodeWrite{Node: w.Node, Partial: partial}
	}

	return m.next.Save(ctx, &masked)
}

func (m *piiMiddleware) Load(ctx context.Context, threadID string) (*domain.Checkpoint, error) {
	return m.next.Load(ctx, threadID)
}

func (m *piiMiddleware) History(ctx context.Context, threadID string) ([]domain.CheckpointMeta, error) {
	return m.next.History(ctx, threadID)
}

func (m *piiMiddleware) Delete(ctx context.Context, threadID string) error {
	return m.next.Delete(ctx, threadID)
}

func (m *piiMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *piiMiddleware) maskJSON(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return raw, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return json.Marshal(m.maskValue(v))
}

func (m *piiMiddleware) maskValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, inner := range t {
			if m.matches(k) {
				t[k] = mask
				continue
			}
			t[k] = m.maskValue(inner)
		}
		return t
	case []any:
		for i, inner := range t {
			t[i] = m.maskValue(inner)
		}
		return t
	default:
		return v
	}
}

func (m *piiMiddleware) matches(key string) bool {
	for _, p := range m.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
