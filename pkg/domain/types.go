package domain

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleSummary   Role = "summary"
)

// Metadata keys used on Message.Metadata.
const (
	MetaToolName    = "tool_name"
	MetaToolCallID  = "tool_call_id"
	MetaActionType  = "action_type"
	MetaToolCalls   = "tool_calls"
	MetaReasoning   = "reasoning_content"
	MetaGeneratedAt = "generated_at"
)

// Message is one entry in the conversation history.
type Message struct {
	ID        string         `json:"id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ToolCalls decodes the assistant tool-call requests carried in metadata.
// Metadata survives JSON round-trips as []any of map[string]any, so both
// shapes are handled.
func (m *Message) ToolCalls() []ToolCall {
	if m.Metadata == nil {
		return nil
	}
	switch v := m.Metadata[MetaToolCalls].(type) {
	case []ToolCall:
		return v
	case []any:
		calls := make([]ToolCall, 0, len(v))
		for _, item := range v {
			obj, ok := item.(map[string]any)
			if !ok {
				continue
			}
			tc := ToolCall{}
			if s, ok := obj["id"].(string); ok {
				tc.ID = s
			}
			if s, ok := obj["name"].(string); ok {
				tc.Name = s
			}
			if s, ok := obj["arguments"].(string); ok {
				tc.Arguments = s
			}
			calls = append(calls, tc)
		}
		return calls
	}
	return nil
}

// ToolCallID returns the call this tool message answers, or "".
func (m *Message) ToolCallID() string {
	if m.Metadata == nil {
		return ""
	}
	s, _ := m.Metadata[MetaToolCallID].(string)
	return s
}

// ToolName returns the tool that produced this message, or "".
func (m *Message) ToolName() string {
	if m.Metadata == nil {
		return ""
	}
	s, _ := m.Metadata[MetaToolName].(string)
	return s
}

// ToolCall is a model-requested tool invocation. Arguments is the raw
// JSON argument string exactly as the model produced it.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Round is a contiguous [Start, End] index range of the message list,
// opened by a user message and closed just before the next one. Rounds
// are derived from the list on demand and never stored.
type Round struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Len returns the number of messages the round spans.
func (r Round) Len() int { return r.End - r.Start + 1 }
