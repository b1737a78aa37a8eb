package domain

import "context"

// RunContext carries caller-supplied collaborator handles through a run.
// The engine never inspects Session or Values; tools receive them unchanged.
type RunContext struct {
	UserID  string         `json:"user_id,omitempty"`
	Session any            `json:"-"`
	Values  map[string]any `json:"-"`
}

// Value returns a caller-supplied value by key.
func (rc RunContext) Value(key string) (any, bool) {
	if rc.Values == nil {
		return nil, false
	}
	v, ok := rc.Values[key]
	return v, ok
}

type runContextKey struct{}

// WithRunContext returns a copy of ctx carrying rc.
func WithRunContext(ctx context.Context, rc RunContext) context.Context {
	return context.WithValue(ctx, runContextKey{}, rc)
}

// RunContextFrom extracts the RunContext stored in ctx, or the zero value.
func RunContextFrom(ctx context.Context) RunContext {
	if rc, ok := ctx.Value(runContextKey{}).(RunContext); ok {
		return rc
	}
	return RunContext{}
}
