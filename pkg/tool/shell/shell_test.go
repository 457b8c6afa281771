package shell

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/chisel-dev/chisel/pkg/sandbox"
	"github.com/chisel-dev/chisel/pkg/tool"
	"github.com/chisel-dev/chisel/pkg/truncate"
)

type fakeManager struct {
	result  *sandbox.Result
	err     error
	command string
	timeout time.Duration
}

func (m *fakeManager) Exec(ctx context.Context, sessionID, command string, timeout time.Duration) (*sandbox.Result, error) {
	m.command = command
	m.timeout = timeout
	return m.result, m.err
}

func (m *fakeManager) Stop(ctx context.Context, sessionID string) error { return nil }
func (m *fakeManager) Close() error                                     { return nil }

func execute(t *testing.T, mgr sandbox.Manager, args string) *tool.Envelope {
	t.Helper()
	return New(mgr, "sess").Execute(context.Background(), json.RawMessage(args))
}

func TestBashSuccess(t *testing.T) {
	mgr := &fakeManager{result: &sandbox.Result{Stdout: "a.go\nb.go\n"}}
	env := execute(t, mgr, `{"command":"ls"}`)

	if env.IsError() {
		t.Fatalf("unexpected error: %+v", env.Error)
	}
	if env.Text != "a.go\nb.go\n" {
		t.Errorf("text = %q", env.Text)
	}
	if env.Data["exit_code"] != 0 {
		t.Errorf("exit_code = %v", env.Data["exit_code"])
	}
	if mgr.command != "ls" {
		t.Errorf("command = %q", mgr.command)
	}
	if mgr.timeout != 60*time.Second {
		t.Errorf("default timeout = %v", mgr.timeout)
	}
	// Shell output asks for tail truncation so trailing errors survive.
	if d, _ := env.Context[truncate.ContextDirection].(string); d != truncate.DirectionTail {
		t.Errorf("truncate direction = %q, want tail", d)
	}
}

func TestBashNonZeroExit(t *testing.T) {
	mgr := &fakeManager{result: &sandbox.Result{Stderr: "no such file", ExitCode: 2}}
	env := execute(t, mgr, `{"command":"cat missing"}`)

	if !env.IsError() || env.Error.Code != tool.CodeExecutionError {
		t.Fatalf("expected EXECUTION_ERROR, got %+v", env)
	}
	if !strings.Contains(env.Text, "stderr:\nno such file") {
		t.Errorf("stderr missing from text: %q", env.Text)
	}
	if env.Data["exit_code"] != 2 {
		t.Errorf("exit_code = %v", env.Data["exit_code"])
	}
}

func TestBashEmptyCommand(t *testing.T) {
	env := execute(t, &fakeManager{}, `{"command":"   "}`)
	if !env.IsError() || env.Error.Code != tool.CodeInvalidParam {
		t.Fatalf("expected INVALID_PARAM, got %+v", env)
	}
}

func TestBashCustomTimeout(t *testing.T) {
	mgr := &fakeManager{result: &sandbox.Result{}}
	execute(t, mgr, `{"command":"sleep 1","timeout_ms":2500}`)
	if mgr.timeout != 2500*time.Millisecond {
		t.Errorf("timeout = %v, want 2.5s", mgr.timeout)
	}
}

func TestBashExecFailure(t *testing.T) {
	mgr := &fakeManager{err: errors.New("container gone")}
	env := execute(t, mgr, `{"command":"ls"}`)
	if !env.IsError() || env.Error.Code != tool.CodeExecutionError {
		t.Fatalf("expected EXECUTION_ERROR, got %+v", env)
	}
}

func TestBashNoOutputPlaceholder(t *testing.T) {
	mgr := &fakeManager{result: &sandbox.Result{}}
	env := execute(t, mgr, `{"command":"true"}`)
	if env.Text != "(no output)" {
		t.Errorf("text = %q", env.Text)
	}
}
