package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/ports"
)

// ToolFunction defines the signature for a tool implementation.
type ToolFunction func(ctx context.Context, args map[string]any, rc domain.RunContext) (string, error)

// Func adapts a plain function into a ports.Tool.
// An empty params schema means the tool takes no arguments.
func Func(name, description string, params json.RawMessage, fn ToolFunction) ports.Tool {
	if len(params) == 0 {
		params = json.RawMessage(`{"type":"object","properties":{}}`)
	}
	return &funcTool{name: name, description: description, params: params, fn: fn}
}

type funcTool struct {
	name        string
	description string
	params      json.RawMessage
	fn          ToolFunction
}

func (t *funcTool) Name() string                { return t.name }
func (t *funcTool) Description() string         { return t.description }
func (t *funcTool) Parameters() json.RawMessage { return t.params }
func (t *funcTool) Invoke(ctx context.Context, args map[string]any, rc domain.RunContext) (string, error) {
	return t.fn(ctx, args, rc)
}

// Registry manages the available tools. Registration order is preserved so
// the model always sees tools in the same order.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]ports.Tool
	order []string
}

// NewRegistry creates a registry holding the given tools.
func NewRegistry(tools ...ports.Tool) *Registry {
	r := &Registry{
		tools: make(map[string]ports.Tool),
	}
	for _, t := range tools {
		r.Register(t)
	}
	return r
}

// Register adds a tool to the registry.
// If a tool with the same name exists, it is overwritten in place.
func (r *Registry) Register(tool ports.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name()]; !exists {
		r.order = append(r.order, tool.Name())
	}
	r.tools[tool.Name()] = tool
}

// Get looks up a tool by name.
func (r *Registry) Get(name string) (ports.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Specs describes every registered tool for a model request.
func (r *Registry) Specs() []domain.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]domain.ToolSpec, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		specs = append(specs, domain.ToolSpec{
			Name:        name,
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return specs
}

// Execute looks up and invokes the tool named by call.
// Every failure, including a panic inside the tool, is returned as a
// *domain.ToolInvocationError.
func (r *Registry) Execute(ctx context.Context, call domain.ToolCall, rc domain.RunContext) (out string, err error) {
	fail := func(cause error) error {
		return &domain.ToolInvocationError{Tool: call.Name, CallID: call.ID, Err: cause}
	}

	tool, ok := r.Get(call.Name)
	if !ok {
		return "", fail(domain.ErrToolNotFound)
	}
	if err := checkRequired(tool.Parameters(), call.Args); err != nil {
		return "", fail(err)
	}

	defer func() {
		if p := recover(); p != nil {
			out, err = "", fail(fmt.Errorf("panic: %v", p))
		}
	}()

	out, err = tool.Invoke(ctx, call.Args, rc)
	if err != nil {
		return "", fail(err)
	}
	return out, nil
}

// checkRequired enforces the "required" list of an object schema.
func checkRequired(schema json.RawMessage, args map[string]any) error {
	var s struct {
		Required []string `json:"required"`
	}
	if len(schema) == 0 || json.Unmarshal(schema, &s) != nil {
		return nil
	}
	for _, name := range s.Required {
		if _, ok := args[name]; !ok {
			return fmt.Errorf("missing required argument %q", name)
		}
	}
	return nil
}
