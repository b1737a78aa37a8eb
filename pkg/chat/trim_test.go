package chat_test

import (
	"testing"

	"github.com/aretw0/mindgraph/pkg/chat"
	"github.com/aretw0/mindgraph/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unit(domain.Message) int { return 1 }

func conversation() []domain.Message {
	return []domain.Message{
		domain.NewHumanMessage("q1"),
		domain.NewAssistantMessage("a1"),
		domain.NewHumanMessage("q2"),
		domain.NewAssistantMessage("", domain.ToolCall{ID: "c1", Name: "t"}),
		domain.NewToolMessage(domain.ToolResult{CallID: "c1", Name: "t", Content: "r"}),
		domain.NewAssistantMessage("a2"),
		domain.NewHumanMessage("q3"),
	}
}

func contents(msgs []domain.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Content)
	}
	return out
}

func TestTrim_KeepsWholeRecentTurns(t *testing.T) {
	msgs := conversation()

	assert.Equal(t, []string{"q3"}, contents(chat.Trim(msgs, 1, unit)))
	assert.Equal(t, []string{"q3"}, contents(chat.Trim(msgs, 4, unit)), "a partial turn is never sent")
	assert.Equal(t, []string{"q2", "", "r", "a2", "q3"}, contents(chat.Trim(msgs, 5, unit)))
	assert.Len(t, chat.Trim(msgs, 100, unit), len(msgs))
}

func TestTrim_NewestTurnAlwaysSent(t *testing.T) {
	msgs := conversation()
	out := chat.Trim(msgs, 0, unit)
	assert.Len(t, out, len(msgs), "a zero budget disables trimming")

	huge := func(domain.Message) int { return 10_000 }
	assert.Equal(t, []string{"q3"}, contents(chat.Trim(msgs, 10, huge)))
}

func TestTrim_StartsOnHuman(t *testing.T) {
	msgs := append([]domain.Message{domain.NewAssistantMessage("greeting")}, conversation()...)
	out := chat.Trim(msgs, 100, unit)
	assert.Equal(t, domain.RoleHuman, out[0].Role)
	assert.Len(t, out, len(msgs)-1)

	assert.Empty(t, chat.Trim([]domain.Message{domain.NewAssistantMessage("x")}, 100, unit))
}

func TestApproxTokens(t *testing.T) {
	m := domain.NewHumanMessage("abcdefgh")
	assert.Equal(t, 2+4, chat.ApproxTokens(m))
}

func TestTrim_ApproxTokensBudgetBoundary(t *testing.T) {
	msgs := []domain.Message{
		domain.NewHumanMessage("abcdefgh"),     // 2 + 4
		domain.NewAssistantMessage("abcdefgh"), // 2 + 4
		domain.NewHumanMessage("abcd"),         // 1 + 4
	}

	assert.Len(t, chat.Trim(msgs, 17, chat.ApproxTokens), 3)
	assert.Equal(t, []string{"abcd"}, contents(chat.Trim(msgs, 16, chat.ApproxTokens)))
	assert.Equal(t, []string{"abcd"}, contents(chat.Trim(msgs, 5, chat.ApproxTokens)))
}

func TestTiktokenCounter(t *testing.T) {
	count, err := chat.TiktokenCounter("gpt-4")
	require.NoError(t, err)

	// "hello world" is two cl100k tokens.
	assert.Equal(t, 2+4, count(domain.NewHumanMessage("hello world")))

	fallback, err := chat.TiktokenCounter("not-a-model")
	require.NoError(t, err)
	assert.Equal(t, count(domain.NewHumanMessage("hello world")), fallback(domain.NewHumanMessage("hello world")))

	msgs := []domain.Message{
		domain.NewHumanMessage("hello world"),
		domain.NewAssistantMessage("hello world"),
		domain.NewHumanMessage("hello world"),
	}
	assert.Len(t, chat.Trim(msgs, 18, count), 3)
	assert.Len(t, chat.Trim(msgs, 17, count), 1)
}
