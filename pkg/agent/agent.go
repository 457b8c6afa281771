// Package agent drives the session loop: model calls, tool execution,
// and compaction checks between turns.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/chisel-dev/chisel/pkg/domain"
	"github.com/chisel-dev/chisel/pkg/events"
	"github.com/chisel-dev/chisel/pkg/history"
	"github.com/chisel-dev/chisel/pkg/model"
	"github.com/chisel-dev/chisel/pkg/tool"
)

const defaultMaxTurns = 40

// Config tunes one agent session.
type Config struct {
	Model        string
	MaxTokens    int
	MaxTurns     int
	Instructions string // appended to the static instructions
	Denylist     []string
}

// Agent orchestrates turns against one history manager.
type Agent struct {
	cfg      Config
	history  *history.Manager
	provider model.Provider
	registry *tool.Registry
	bus      *events.Bus
	denied   map[string]bool
}

// New creates an Agent. bus may be nil.
func New(cfg Config, hist *history.Manager, provider model.Provider, registry *tool.Registry, bus *events.Bus) *Agent {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = defaultMaxTurns
	}
	denied := make(map[string]bool, len(cfg.Denylist))
	for _, name := range cfg.Denylist {
		denied[name] = true
	}
	return &Agent{
		cfg:      cfg,
		history:  hist,
		provider: provider,
		registry: registry,
		bus:      bus,
		denied:   denied,
	}
}

// History exposes the session's message store.
func (a *Agent) History() *history.Manager { return a.history }

// Usage exposes the per-tool invocation counters.
func (a *Agent) Usage() map[string]int { return a.registry.Usage() }

// TurnResult reports one ExecuteTurn outcome.
type TurnResult struct {
	Done      bool
	FinalText string
	ToolCalls int
}

// ExecuteTurn performs exactly one model invocation plus the tool
// executions it requests. The caller loops while Done is false.
func (a *Agent) ExecuteTurn(ctx context.Context) (*TurnResult, error) {
	a.publish(events.TypeTurnStarted, "turn started", nil)

	resp, err := a.provider.Complete(ctx, &model.Request{
		Model:        a.cfg.Model,
		Instructions: a.instructions(),
		Messages:     a.history.Messages(),
		Tools:        model.Defs(a.registry),
		MaxTokens:    a.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("model call: %w", err)
	}

	var metadata map[string]any
	if len(resp.ToolCalls) > 0 {
		metadata = map[string]any{domain.MetaToolCalls: resp.ToolCalls}
	}
	a.history.AppendAssistant(resp.Content, metadata, resp.Reasoning)

	if len(resp.ToolCalls) == 0 {
		final := strings.TrimSpace(resp.Content)
		a.publish(events.TypeTurnFinished, "turn finished", map[string]any{"done": true})
		return &TurnResult{Done: true, FinalText: final}, nil
	}

	// Tool calls run sequentially; a failing tool becomes an error
	// observation and never aborts the rest of the batch.
	for _, call := range resp.ToolCalls {
		a.publish(events.TypeToolStarted, "tool started", map[string]any{"tool": call.Name, "call_id": call.ID})
		env := a.executeCall(ctx, call)
		raw, err := json.Marshal(env)
		if err != nil {
			raw, _ = json.Marshal(tool.Errorf(tool.CodeInternalError, "encoding result: %v", err))
		}
		a.history.AppendTool(call.Name, string(raw), map[string]any{
			domain.MetaToolCallID: call.ID,
		})
		a.publish(events.TypeToolFinished, "tool finished", map[string]any{
			"tool": call.Name, "call_id": call.ID, "status": env.Status,
		})
	}

	a.publish(events.TypeTurnFinished, "turn finished", map[string]any{"done": false, "tool_calls": len(resp.ToolCalls)})
	return &TurnResult{Done: false, ToolCalls: len(resp.ToolCalls)}, nil
}

// executeCall resolves a call's arguments and dispatches it. Argument
// and policy failures come back as error envelopes without the tool
// ever running.
func (a *Agent) executeCall(ctx context.Context, call domain.ToolCall) *tool.Envelope {
	args := strings.TrimSpace(call.Arguments)
	if args == "" || args == "null" {
		args = "{}"
	}
	if !json.Valid([]byte(args)) {
		return tool.Errorf(tool.CodeInvalidParam, "tool %s: arguments are not valid JSON", call.Name)
	}
	if a.denied[call.Name] {
		return tool.Errorf(tool.CodeAccessDenied, "tool %s is not available in this context", call.Name)
	}
	return a.registry.Execute(ctx, call.Name, json.RawMessage(args))
}

// Run appends the user input and drives turns until the model produces
// a final answer. Compaction is checked before every model call.
func (a *Agent) Run(ctx context.Context, input string) (string, error) {
	a.history.AppendUser(input, nil)

	for turn := 0; turn < a.cfg.MaxTurns; turn++ {
		if a.history.ShouldCompress("") {
			res := a.history.Compact(ctx)
			if res.Compacted {
				slog.Info("history compacted",
					"compressed", res.CompressedCount,
					"summary", res.SummaryGenerated,
					"retained", res.RetainedCount)
			}
		}

		result, err := a.ExecuteTurn(ctx)
		if err != nil {
			return "", err
		}
		if err := a.history.Flush(ctx); err != nil {
			slog.Warn("snapshot flush failed", "error", err)
		}
		if result.Done {
			return result.FinalText, nil
		}
	}
	return "", fmt.Errorf("no final answer after %d turns", a.cfg.MaxTurns)
}

func (a *Agent) publish(typ, msg string, fields map[string]any) {
	if a.bus != nil {
		a.bus.Publish(typ, msg, fields)
	}
}
