// Package shell exposes the sandboxed bash tool.
package shell

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/chisel-dev/chisel/pkg/sandbox"
	"github.com/chisel-dev/chisel/pkg/tool"
	"github.com/chisel-dev/chisel/pkg/truncate"
)

const defaultTimeout = 60 * time.Second

type params struct {
	Command   string `json:"command"`
	TimeoutMS int64  `json:"timeout_ms"`
}

// New creates the bash tool bound to a sandbox session. Command output
// requests tail truncation so trailing errors survive capping.
func New(manager sandbox.Manager, sessionID string) tool.Tool {
	schema := tool.Schema{
		Type: "object",
		Properties: map[string]tool.Property{
			"command":    {Type: "string", Description: "Shell command to run in the sandbox. Working directory is the project root."},
			"timeout_ms": {Type: "integer", Description: "Optional timeout in milliseconds. Defaults to 60000."},
		},
		Required: []string{"command"},
	}
	return tool.NewFunc("bash", "Run a shell command in the session sandbox.", schema,
		func(ctx context.Context, input json.RawMessage) *tool.Envelope {
			var p params
			if err := json.Unmarshal(input, &p); err != nil {
				return tool.Errorf(tool.CodeInvalidParam, "parsing arguments: %v", err)
			}
			if strings.TrimSpace(p.Command) == "" {
				return tool.Errorf(tool.CodeInvalidParam, "command is required")
			}

			timeout := defaultTimeout
			if p.TimeoutMS > 0 {
				timeout = time.Duration(p.TimeoutMS) * time.Millisecond
			}

			res, err := manager.Exec(ctx, sessionID, p.Command, timeout)
			if err != nil {
				if ctx.Err() != nil {
					return tool.Errorf(tool.CodeTimeout, "command timed out: %v", err)
				}
				return tool.Errorf(tool.CodeExecutionError, "running command: %v", err)
			}

			text := render(res)
			data := map[string]any{"exit_code": res.ExitCode}
			var env *tool.Envelope
			if res.ExitCode != 0 {
				env = tool.Errorf(tool.CodeExecutionError, "command exited with code %d", res.ExitCode)
				env.Text = text
				env.Data = data
			} else {
				env = tool.Success(text, data)
			}
			return env.WithContext(truncate.ContextDirection, truncate.DirectionTail)
		})
}

func render(res *sandbox.Result) string {
	var b strings.Builder
	if res.Stdout != "" {
		b.WriteString(res.Stdout)
	}
	if res.Stderr != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "stderr:\n%s", res.Stderr)
	}
	if b.Len() == 0 {
		return "(no output)"
	}
	return b.String()
}
