package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/chisel-dev/chisel/pkg/domain"
	"github.com/chisel-dev/chisel/pkg/events"
	"github.com/chisel-dev/chisel/pkg/history"
	"github.com/chisel-dev/chisel/pkg/model"
	"github.com/chisel-dev/chisel/pkg/tool"
	"github.com/chisel-dev/chisel/pkg/truncate"
)

// scriptedProvider replays a fixed sequence of responses and records
// the requests it saw.
type scriptedProvider struct {
	responses []*model.Response
	requests  []*model.Request
	err       error
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	p.requests = append(p.requests, req)
	if p.err != nil {
		return nil, p.err
	}
	if len(p.responses) == 0 {
		return &model.Response{Content: "out of script"}, nil
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

func newTestAgent(t *testing.T, provider model.Provider, reg *tool.Registry, cfg Config) *Agent {
	t.Helper()
	tr := truncate.New(truncate.DefaultConfig(), t.TempDir())
	hist := history.New(history.DefaultConfig(), tr, nil, events.NewBus())
	return New(cfg, hist, provider, reg, events.NewBus())
}

func echoRegistry(t *testing.T) *tool.Registry {
	t.Helper()
	reg := tool.NewRegistry(0)
	echo := tool.NewFunc("echo", "echoes its input", tool.Schema{Type: "object"},
		func(ctx context.Context, input json.RawMessage) *tool.Envelope {
			return tool.Success(string(input), nil)
		})
	if err := reg.Register(echo); err != nil {
		t.Fatal(err)
	}
	return reg
}

func toolResult(t *testing.T, msg *domain.Message) *tool.Envelope {
	t.Helper()
	var env tool.Envelope
	if err := json.Unmarshal([]byte(msg.Content), &env); err != nil {
		t.Fatalf("tool message is not an envelope: %v (%q)", err, msg.Content)
	}
	return &env
}

func TestRunSingleTurn(t *testing.T) {
	provider := &scriptedProvider{responses: []*model.Response{
		{Content: "  all done  "},
	}}
	a := newTestAgent(t, provider, echoRegistry(t), Config{Model: "test"})

	answer, err := a.Run(context.Background(), "hello")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if answer != "all done" {
		t.Fatalf("answer = %q, want trimmed final text", answer)
	}

	msgs := a.History().Messages()
	if len(msgs) != 2 || msgs[0].Role != domain.RoleUser || msgs[1].Role != domain.RoleAssistant {
		t.Fatalf("unexpected history: %v", msgs)
	}
}

func TestRunToolCallLoop(t *testing.T) {
	provider := &scriptedProvider{responses: []*model.Response{
		{ToolCalls: []domain.ToolCall{{ID: "c1", Name: "echo", Arguments: `{"x":1}`}}},
		{Content: "done"},
	}}
	a := newTestAgent(t, provider, echoRegistry(t), Config{Model: "test"})

	answer, err := a.Run(context.Background(), "use the tool")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if answer != "done" {
		t.Fatalf("answer = %q", answer)
	}

	// user, assistant(call), tool, assistant(final)
	msgs := a.History().Messages()
	if len(msgs) != 4 {
		t.Fatalf("history has %d messages, want 4: %v", len(msgs), msgs)
	}
	if msgs[2].Role != domain.RoleTool || msgs[2].ToolCallID() != "c1" {
		t.Fatalf("tool observation malformed: %+v", msgs[2])
	}
	env := toolResult(t, msgs[2])
	if env.Status != tool.StatusSuccess || env.Text != `{"x":1}` {
		t.Fatalf("echo result = %+v", env)
	}

	// The second model call saw the tool observation.
	if len(provider.requests) != 2 {
		t.Fatalf("provider called %d times, want 2", len(provider.requests))
	}
	last := provider.requests[1].Messages
	if last[len(last)-1].Role != domain.RoleTool {
		t.Fatalf("second request does not end with the observation: %v", last)
	}

	if a.Usage()["echo"] != 1 {
		t.Errorf("echo usage = %d, want 1", a.Usage()["echo"])
	}
}

func TestRunContinuesAfterToolError(t *testing.T) {
	provider := &scriptedProvider{responses: []*model.Response{
		{ToolCalls: []domain.ToolCall{{ID: "c1", Name: "no_such_tool", Arguments: `{}`}}},
		{Content: "recovered"},
	}}
	a := newTestAgent(t, provider, echoRegistry(t), Config{Model: "test"})

	answer, err := a.Run(context.Background(), "go")
	if err != nil {
		t.Fatalf("a failing tool must not abort the run: %v", err)
	}
	if answer != "recovered" {
		t.Fatalf("answer = %q", answer)
	}

	env := toolResult(t, a.History().Messages()[2])
	if !env.IsError() || env.Error.Code != tool.CodeNotFound {
		t.Fatalf("expected NOT_FOUND observation, got %+v", env)
	}
}

func TestMalformedArgumentsRejectedBeforeDispatch(t *testing.T) {
	provider := &scriptedProvider{responses: []*model.Response{
		{ToolCalls: []domain.ToolCall{{ID: "c1", Name: "echo", Arguments: `{not json`}}},
		{Content: "ok"},
	}}
	a := newTestAgent(t, provider, echoRegistry(t), Config{Model: "test"})

	if _, err := a.Run(context.Background(), "go"); err != nil {
		t.Fatal(err)
	}
	env := toolResult(t, a.History().Messages()[2])
	if !env.IsError() || env.Error.Code != tool.CodeInvalidParam {
		t.Fatalf("expected INVALID_PARAM, got %+v", env)
	}
	if a.Usage()["echo"] != 0 {
		t.Error("tool ran despite malformed arguments")
	}
}

func TestEmptyArgumentsBecomeEmptyObject(t *testing.T) {
	provider := &scriptedProvider{responses: []*model.Response{
		{ToolCalls: []domain.ToolCall{{ID: "c1", Name: "echo", Arguments: ""}}},
		{Content: "ok"},
	}}
	a := newTestAgent(t, provider, echoRegistry(t), Config{Model: "test"})

	if _, err := a.Run(context.Background(), "go"); err != nil {
		t.Fatal(err)
	}
	env := toolResult(t, a.History().Messages()[2])
	if env.IsError() || env.Text != "{}" {
		t.Fatalf("empty arguments not normalized: %+v", env)
	}
}

func TestDenylistedToolNeverRuns(t *testing.T) {
	provider := &scriptedProvider{responses: []*model.Response{
		{ToolCalls: []domain.ToolCall{{ID: "c1", Name: "echo", Arguments: `{}`}}},
		{Content: "ok"},
	}}
	a := newTestAgent(t, provider, echoRegistry(t), Config{Model: "test", Denylist: []string{"echo"}})

	if _, err := a.Run(context.Background(), "go"); err != nil {
		t.Fatal(err)
	}
	env := toolResult(t, a.History().Messages()[2])
	if !env.IsError() || env.Error.Code != tool.CodeAccessDenied {
		t.Fatalf("expected ACCESS_DENIED, got %+v", env)
	}
	if a.Usage()["echo"] != 0 {
		t.Error("denylisted tool was dispatched")
	}
}

func TestRunStopsAtMaxTurns(t *testing.T) {
	// A provider that always asks for another tool call never finishes.
	looping := &loopingProvider{}
	a := newTestAgent(t, looping, echoRegistry(t), Config{Model: "test", MaxTurns: 3})

	if _, err := a.Run(context.Background(), "go"); err == nil {
		t.Fatal("expected an error when the turn limit is hit")
	}
	if looping.calls != 3 {
		t.Fatalf("provider called %d times, want 3", looping.calls)
	}
}

type loopingProvider struct{ calls int }

func (p *loopingProvider) Name() string { return "looping" }

func (p *loopingProvider) Complete(ctx context.Context, req *model.Request) (*model.Response, error) {
	p.calls++
	return &model.Response{
		ToolCalls: []domain.ToolCall{{ID: "c", Name: "echo", Arguments: `{}`}},
	}, nil
}

func TestRunSurfacesProviderError(t *testing.T) {
	provider := &scriptedProvider{err: errors.New("rate limited")}
	a := newTestAgent(t, provider, echoRegistry(t), Config{Model: "test"})

	if _, err := a.Run(context.Background(), "go"); err == nil {
		t.Fatal("provider error swallowed")
	}
}

func TestInstructionsIncludeSessionAddendum(t *testing.T) {
	provider := &scriptedProvider{responses: []*model.Response{{Content: "ok"}}}
	a := newTestAgent(t, provider, echoRegistry(t), Config{Model: "test", Instructions: "Prefer small diffs."})

	if _, err := a.Run(context.Background(), "go"); err != nil {
		t.Fatal(err)
	}
	got := provider.requests[0].Instructions
	if !strings.Contains(got, staticInstructions) || !strings.Contains(got, "Prefer small diffs.") {
		t.Fatalf("instructions missing parts: %q", got)
	}
}
