// Package model defines the LLM transport boundary.
package model

import (
	"context"

	"github.com/chisel-dev/chisel/pkg/domain"
	"github.com/chisel-dev/chisel/pkg/tool"
)

// ToolDef describes a tool to the model.
type ToolDef struct {
	Name        string
	Description string
	Schema      tool.Schema
}

// Request is one completion call.
type Request struct {
	Model        string
	Instructions string
	Messages     []*domain.Message
	Tools        []ToolDef
	MaxTokens    int
}

// Response is the provider-neutral completion result.
type Response struct {
	Content   string
	Reasoning string
	ToolCalls []domain.ToolCall
}

// Provider is an LLM backend. Implementations map the message history
// to their wire format; retry policy lives inside the implementation,
// never in callers.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// Defs builds tool definitions from a registry.
func Defs(reg *tool.Registry) []ToolDef {
	tools := reg.List()
	defs := make([]ToolDef, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, ToolDef{
			Name:        t.Name(),
			Description: t.Description(),
			Schema:      t.InputSchema(),
		})
	}
	return defs
}

// SummaryText renders a compaction summary for replay to the model as
// user-role text.
func SummaryText(content string) string {
	return "[Previous conversation summary]\n\n" + content
}
