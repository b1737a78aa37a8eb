package chat

import (
	"encoding/json"
	"unicode/utf8"

	"github.com/aretw0/mindgraph/pkg/domain"
)

// DefaultTokenBudget is the history budget sent with every model call.
const DefaultTokenBudget = 3000

// TokenCounter estimates the token cost of a message.
type TokenCounter func(domain.Message) int

// messageOverhead approximates the role and framing tokens of a message.
const messageOverhead = 4

// ApproxTokens counts roughly four characters per token.
func ApproxTokens(m domain.Message) int {
	chars := utf8.RuneCountInString(m.Content)
	for _, c := range m.ToolCalls {
		chars += len(c.Name)
		if b, err := json.Marshal(c.Args); err == nil {
			chars += len(b)
		}
	}
	return (chars+3)/4 + messageOverhead
}

// Trim keeps the most recent whole turns whose total cost fits within budget.
// A turn is a human message followed by the assistant and tool messages that
// answer it. The result always starts on a human message; the newest turn is
// kept even when it alone exceeds the budget. A budget <= 0 disables trimming
// but still drops messages preceding the first human turn.
func Trim(messages []domain.Message, budget int, count TokenCounter) []domain.Message {
	if count == nil {
		count = ApproxTokens
	}

	var starts []int
	for i, m := range messages {
		if m.Role == domain.RoleHuman {
			starts = append(starts, i)
		}
	}
	if len(starts) == 0 {
		return nil
	}
	if budget <= 0 {
		return messages[starts[0]:]
	}

	from := len(messages)
	total := 0
	for t := len(starts) - 1; t >= 0; t-- {
		cost := 0
		for _, m := range messages[starts[t]:from] {
			cost += count(m)
		}
		if total+cost > budget && from != len(messages) {
			break
		}
		total += cost
		from = starts[t]
	}
	return messages[from:]
}
