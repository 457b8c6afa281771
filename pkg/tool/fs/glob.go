package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/chisel-dev/chisel/pkg/tool"
)

const globMaxResults = 500

type globParams struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path"`
}

func (t *Tools) globTool() tool.Tool {
	schema := tool.Schema{
		Type: "object",
		Properties: map[string]tool.Property{
			"pattern": stringProp("Glob pattern, ** supported, e.g. \"**/*.go\"."),
			"path":    stringProp("Directory to search, relative to the project root. Defaults to the root."),
		},
		Required: []string{"pattern"},
	}
	return tool.NewFunc("glob", "Find files matching a glob pattern.", schema,
		func(ctx context.Context, input json.RawMessage) *tool.Envelope {
			var p globParams
			if err := json.Unmarshal(input, &p); err != nil {
				return tool.Errorf(tool.CodeInvalidParam, "parsing arguments: %v", err)
			}
			return t.glob(p)
		})
}

func (t *Tools) glob(p globParams) *tool.Envelope {
	if p.Pattern == "" {
		return tool.Errorf(tool.CodeInvalidParam, "pattern is required")
	}
	base := t.root
	if p.Path != "" {
		resolved, env := resolve(t.root, p.Path)
		if env != nil {
			return env
		}
		base = resolved
	}
	if info, err := os.Stat(base); err != nil || !info.IsDir() {
		return tool.Errorf(tool.CodeNotFound, "directory not found: %s", p.Path)
	}

	matches, err := doublestar.Glob(os.DirFS(base), p.Pattern, doublestar.WithFilesOnly())
	if err != nil {
		if err == doublestar.ErrBadPattern {
			return tool.Errorf(tool.CodeInvalidParam, "bad glob pattern: %s", p.Pattern)
		}
		return ioError("glob", err)
	}
	sort.Strings(matches)

	truncated := false
	if len(matches) > globMaxResults {
		matches = matches[:globMaxResults]
		truncated = true
	}
	if p.Path != "" {
		for i, m := range matches {
			matches[i] = p.Path + "/" + m
		}
	}

	text := strings.Join(matches, "\n")
	if len(matches) == 0 {
		text = fmt.Sprintf("no files match %s", p.Pattern)
	}
	env := tool.Success(text, map[string]any{
		"pattern":   p.Pattern,
		"matches":   len(matches),
		"truncated": truncated,
	})
	if truncated {
		env.Status = tool.StatusPartial
	}
	return env
}
