// Package gemini implements the model provider boundary on the Google
// Gemini API.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/option"

	"github.com/chisel-dev/chisel/pkg/domain"
	"github.com/chisel-dev/chisel/pkg/model"
	"github.com/chisel-dev/chisel/pkg/tool"
)

// LevelTrace is a custom log level for detailed HTTP traffic.
const LevelTrace = slog.Level(-8)

// Provider implements model.Provider using the Gemini SDK.
type Provider struct {
	client *genai.Client
}

var _ model.Provider = (*Provider)(nil)

// New creates a Provider.
func New(ctx context.Context, apiKey string) (*Provider, error) {
	httpClient := &http.Client{
		Transport: &loggingTransport{
			base:   http.DefaultTransport,
			apiKey: apiKey,
		},
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey), option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Provider{client: client}, nil
}

type loggingTransport struct {
	base   http.RoundTripper
	apiKey string
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// A custom http.Client bypasses the library's automatic API key
	// injection, so add it here when missing.
	if t.apiKey != "" && req.Header.Get("x-goog-api-key") == "" && req.URL.Query().Get("key") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("x-goog-api-key", t.apiKey)
	}

	if !slog.Default().Enabled(req.Context(), LevelTrace) {
		return t.base.RoundTrip(req)
	}

	if reqDump, err := httputil.DumpRequestOut(req, true); err == nil {
		slog.Debug("gemini request", "url", req.URL.String(), "dump", string(reqDump))
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if respDump, err := httputil.DumpResponse(resp, true); err == nil {
		slog.Debug("gemini response", "dump", string(respDump))
	}
	return resp, nil
}

// Close releases the underlying client.
func (p *Provider) Close() error { return p.client.Close() }

func (p *Provider) Name() string { return "gemini" }

func (p *Provider) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	gm := p.client.GenerativeModel(req.Model)
	if req.Instructions != "" {
		gm.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.Instructions)}}
	}
	if req.MaxTokens > 0 {
		gm.SetMaxOutputTokens(int32(req.MaxTokens))
	}
	if len(req.Tools) > 0 {
		gm.Tools = toTools(req.Tools)
	}

	contents := toContents(req.Messages)
	if len(contents) == 0 {
		return nil, fmt.Errorf("no messages to send")
	}

	cs := gm.StartChat()
	cs.History = contents[:len(contents)-1]
	last := contents[len(contents)-1]

	slog.Debug("gemini request", "model", req.Model, "messages", len(contents), "tools", len(req.Tools))
	resp, err := cs.SendMessage(ctx, last.Parts...)
	if err != nil {
		return nil, fmt.Errorf("gemini completion: %w", err)
	}

	out := &model.Response{}
	var text strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			switch v := part.(type) {
			case genai.Text:
				text.WriteString(string(v))
			case genai.FunctionCall:
				args, _ := json.Marshal(v.Args)
				out.ToolCalls = append(out.ToolCalls, domain.ToolCall{
					// Gemini does not assign call IDs, generate one so
					// results can be paired in the history.
					ID:        "call-" + uuid.New().String(),
					Name:      v.Name,
					Arguments: string(args),
				})
			}
		}
	}
	out.Content = text.String()
	return out, nil
}

func toContents(messages []*domain.Message) []*genai.Content {
	var out []*genai.Content
	for _, msg := range messages {
		var parts []genai.Part
		role := "user"

		switch msg.Role {
		case domain.RoleUser:
			parts = append(parts, genai.Text(msg.Content))

		case domain.RoleSummary:
			parts = append(parts, genai.Text(model.SummaryText(msg.Content)))

		case domain.RoleAssistant:
			role = "model"
			if msg.Content != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			for _, call := range msg.ToolCalls() {
				var args map[string]any
				if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
					args = map[string]any{}
				}
				parts = append(parts, genai.FunctionCall{Name: call.Name, Args: args})
			}

		case domain.RoleTool:
			// Function results travel on the user side.
			parts = append(parts, genai.FunctionResponse{
				Name:     msg.ToolName(),
				Response: map[string]any{"result": msg.Content},
			})
		}

		if len(parts) > 0 {
			out = append(out, &genai.Content{Role: role, Parts: parts})
		}
	}
	return out
}

func toTools(defs []model.ToolDef) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(defs))
	for _, def := range defs {
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        def.Name,
			Description: def.Description,
			Parameters:  toSchema(def.Schema.Properties, def.Schema.Required),
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func toSchema(props map[string]tool.Property, required []string) *genai.Schema {
	schema := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(props)),
		Required:   required,
	}
	for name, prop := range props {
		schema.Properties[name] = toPropSchema(prop)
	}
	return schema
}

func toPropSchema(prop tool.Property) *genai.Schema {
	s := &genai.Schema{
		Type:        toType(prop.Type),
		Description: prop.Description,
		Enum:        prop.Enum,
	}
	if prop.Items != nil {
		s.Items = toPropSchema(*prop.Items)
	}
	if len(prop.Properties) > 0 {
		s.Properties = make(map[string]*genai.Schema, len(prop.Properties))
		for name, sub := range prop.Properties {
			s.Properties[name] = toPropSchema(sub)
		}
	}
	return s
}

func toType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	}
	return genai.TypeUnspecified
}
