package ports

import (
	"context"
	"time"

	"github.com/aretw0/mindgraph/pkg/domain"
)

// Thought is a user-authored journal entry.
type Thought struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ScoredThought is a retrieval hit. Distance is smaller for closer matches.
type ScoredThought struct {
	Thought
	Distance float64 `json:"distance"`
}

// Retriever is the nearest-neighbour lookup over the caller's thoughts.
// The vector math behind it is out of scope.
type Retriever interface {
	Search(ctx context.Context, rc domain.RunContext, query string, topK int) ([]ScoredThought, error)
}

// ThoughtReader fetches a single thought by id.
// A missing thought is reported with ok=false, not an error.
type ThoughtReader interface {
	Get(ctx context.Context, rc domain.RunContext, id string) (Thought, bool, error)
}
