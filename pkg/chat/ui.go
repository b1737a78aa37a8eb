package chat

import "github.com/aretw0/mindgraph/pkg/domain"

// UIMessage is a history entry in the shape chat front-ends built on the AI
// SDK render.
type UIMessage struct {
	ID      string   `json:"id"`
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Parts   []UIPart `json:"parts"`
}

// UIPart is one part of a UIMessage: text or a completed tool invocation.
type UIPart struct {
	Type           string          `json:"type"`
	Text           string          `json:"text,omitempty"`
	ToolInvocation *ToolInvocation `json:"toolInvocation,omitempty"`
}

// ToolInvocation describes a tool call together with its result.
type ToolInvocation struct {
	State      string         `json:"state"`
	Step       int            `json:"step"`
	ToolCallID string         `json:"toolCallId"`
	ToolName   string         `json:"toolName"`
	Args       map[string]any `json:"args"`
	Result     string         `json:"result"`
}

// UIMessages folds a thread history into UI messages. Tool calls and their
// results are attached, in call order, to the assistant answer that follows
// them; tool calls never answered are left out.
func UIMessages(history []domain.Message) []UIMessage {
	out := make([]UIMessage, 0, len(history))
	var pending []domain.ToolCall
	results := make(map[string]string)

	for _, m := range history {
		switch m.Role {
		case domain.RoleHuman:
			out = append(out, UIMessage{
				ID:      m.ID,
				Role:    "user",
				Content: m.Content,
				Parts:   []UIPart{{Type: "text", Text: m.Content}},
			})
		case domain.RoleTool:
			results[m.ToolCallID] = m.Content
		case domain.RoleAssistant:
			if m.HasToolCalls() {
				pending = append(pending, m.ToolCalls...)
				continue
			}
			msg := UIMessage{
				ID:      m.ID,
				Role:    "assistant",
				Content: m.Content,
				Parts:   []UIPart{{Type: "text", Text: m.Content}},
			}
			step := 0
			for _, call := range pending {
				result, ok := results[call.ID]
				if !ok {
					continue
				}
				msg.Parts = append(msg.Parts, UIPart{
					Type: "tool_invocation",
					ToolInvocation: &ToolInvocation{
						State:      "result",
						Step:       step,
						ToolCallID: call.ID,
						ToolName:   call.Name,
						Args:       call.Args,
						Result:     result,
					},
				})
				step++
			}
			out = append(out, msg)
			pending = nil
			clear(results)
		}
	}
	return out
}
