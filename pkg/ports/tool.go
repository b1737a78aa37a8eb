package ports

import (
	"context"
	"encoding/json"

	"github.com/aretw0/mindgraph/pkg/domain"
)

// Tool is an externally implemented capability the model may invoke.
// Parameters returns a JSON Schema object describing the arguments.
type Tool interface {
	Name() string
	Description() string
	Parameters() json.RawMessage
	Invoke(ctx context.Context, args map[string]any, rc domain.RunContext) (string, error)
}
