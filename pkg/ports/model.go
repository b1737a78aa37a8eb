package ports

import (
	"context"
	"encoding/json"

	"github.com/aretw0/mindgraph/pkg/domain"
)

// OutputSchema requests a structured (JSON) answer from the model.
type OutputSchema struct {
	Name        string
	Description string
	Schema      json.RawMessage
}

// ModelRequest is one completion request.
// System is prepended for this call only and is never part of the history.
type ModelRequest struct {
	System   string
	Messages []domain.Message
	Tools    []domain.ToolSpec
	Output   *OutputSchema
}

// ModelResponse is the outcome of a completion.
type ModelResponse struct {
	Message      domain.Message
	FinishReason string
	Usage        domain.Usage
}

// DeltaFunc receives text fragments as the model produces them.
type DeltaFunc func(text string)

// Model is the language-model collaborator. Inference itself is out of scope
// for the engine; adapters live under pkg/adapters.
type Model interface {
	Complete(ctx context.Context, req ModelRequest, onDelta DeltaFunc) (ModelResponse, error)
}
