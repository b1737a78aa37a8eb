package thoughts_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/aretw0/mindgraph/pkg/ports"
	"github.com/aretw0/mindgraph/pkg/tools/thoughts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func corpus() *thoughts.Corpus {
	now := time.Now()
	return thoughts.NewCorpus(
		ports.Thought{ID: "t1", UserID: "u1", Title: "Morning run", Content: "Ran five kilometers before work and felt calm all day.", CreatedAt: now},
		ports.Thought{ID: "t2", UserID: "u1", Title: "Work stress", Content: "<p>Deadline pressure at <strong>work</strong> again.</p>", CreatedAt: now.Add(-time.Hour)},
		ports.Thought{ID: "t3", UserID: "u2", Title: "Someone else", Content: "Work work work.", CreatedAt: now},
	)
}

func TestCorpus_SearchScopesByUser(t *testing.T) {
	hits, err := corpus().Search(context.Background(), domain.RunContext{UserID: "u1"}, "how does work affect my mood", 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.Equal(t, "u1", h.UserID)
	}
}

func TestCorpus_SearchRanksByOverlap(t *testing.T) {
	hits, err := corpus().Search(context.Background(), domain.RunContext{UserID: "u1"}, "work deadline pressure", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "t2", hits[0].ID)
	assert.InDelta(t, -1.0, hits[0].Distance, 1e-9)
}

func TestFetchRelevant_Format(t *testing.T) {
	tool := thoughts.NewFetchRelevant(corpus(), thoughts.WithPreviewLen(10))
	out, err := tool.Invoke(context.Background(), map[string]any{"query": "morning run before work"}, domain.RunContext{UserID: "u1"})
	require.NoError(t, err)

	first := strings.SplitN(out, "\n\n### ID:", 2)[0]
	assert.Equal(t, "### ID:t1 \n\n ### Title:Morning run(1.00)\n\nContent:\nRan five k", first)
}

func TestFetchRelevant_RejectsEmptyQuery(t *testing.T) {
	_, err := thoughts.NewFetchRelevant(corpus()).Invoke(context.Background(), map[string]any{"query": " "}, domain.RunContext{})
	assert.Error(t, err)
}

func TestDetails(t *testing.T) {
	tool := thoughts.NewDetails(corpus())
	ctx := context.Background()

	out, err := tool.Invoke(ctx, map[string]any{"thought_id": "t2"}, domain.RunContext{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "### Title:Work stress\n\nContent:\nDeadline pressure at **work** again.", out)

	out, err = tool.Invoke(ctx, map[string]any{"thought_id": "t3"}, domain.RunContext{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, "No thought found with id: t3", out)
}

func TestTools_Specs(t *testing.T) {
	tools := thoughts.Tools(corpus(), corpus())
	require.Len(t, tools, 2)
	assert.Equal(t, thoughts.FetchRelevantName, tools[0].Name())
	assert.Contains(t, string(tools[0].Parameters()), `"query"`)
	assert.Contains(t, string(tools[1].Parameters()), `"thought_id"`)
}
