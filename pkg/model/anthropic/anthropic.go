// Package anthropic implements the model provider boundary on the
// Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/chisel-dev/chisel/pkg/domain"
	"github.com/chisel-dev/chisel/pkg/model"
	"github.com/chisel-dev/chisel/pkg/tool"
)

const defaultMaxTokens = 8192

// Provider implements model.Provider using the Anthropic SDK.
type Provider struct {
	client anthropic.Client
}

var _ model.Provider = (*Provider)(nil)

// New creates a Provider. An empty apiKey falls back to the SDK's
// environment lookup.
func New(apiKey string) *Provider {
	var opts []option.RequestOption
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &Provider{client: anthropic.NewClient(opts...)}
}

func (p *Provider) Name() string { return "anthropic" }

func (p *Provider) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
		Messages:  toMessages(req.Messages),
		Tools:     toTools(req.Tools),
	}
	if req.Instructions != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.Instructions}}
	}

	slog.Debug("anthropic request", "model", req.Model, "messages", len(req.Messages), "tools", len(req.Tools))
	message, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("anthropic completion: %w", err)
	}

	resp := &model.Response{}
	var text strings.Builder
	for _, block := range message.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(b.Text)
		case anthropic.ToolUseBlock:
			resp.ToolCalls = append(resp.ToolCalls, domain.ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: string(b.Input),
			})
		}
	}
	resp.Content = text.String()
	return resp, nil
}

func toMessages(messages []*domain.Message) []anthropic.MessageParam {
	var out []anthropic.MessageParam
	for _, msg := range messages {
		switch msg.Role {
		case domain.RoleUser:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))

		case domain.RoleSummary:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewTextBlock(model.SummaryText(msg.Content))))

		case domain.RoleAssistant:
			var blocks []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, call := range msg.ToolCalls() {
				blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, toolInput(call.Arguments), call.Name))
			}
			if len(blocks) > 0 {
				out = append(out, anthropic.NewAssistantMessage(blocks...))
			}

		case domain.RoleTool:
			out = append(out, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID(), msg.Content, isErrorResult(msg.Content))))
		}
	}
	return out
}

// toolInput passes the model-produced argument JSON through verbatim
// when it parses, so the replayed history matches what was generated.
func toolInput(arguments string) any {
	if json.Valid([]byte(arguments)) && strings.TrimSpace(arguments) != "" {
		return json.RawMessage(arguments)
	}
	return map[string]any{}
}

func isErrorResult(content string) bool {
	var env tool.Envelope
	if err := json.Unmarshal([]byte(content), &env); err != nil {
		return false
	}
	return env.IsError()
}

func toTools(defs []model.ToolDef) []anthropic.ToolUnionParam {
	var out []anthropic.ToolUnionParam
	for _, def := range defs {
		props := make(map[string]any, len(def.Schema.Properties))
		for name, prop := range def.Schema.Properties {
			props[name] = prop
		}
		tp := anthropic.ToolParam{
			Name:        def.Name,
			Description: anthropic.String(def.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: props,
				Required:   def.Schema.Required,
			},
		}
		out = append(out, anthropic.ToolUnionParam{OfTool: &tp})
	}
	return out
}
