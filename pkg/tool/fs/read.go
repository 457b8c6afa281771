package fs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/chisel-dev/chisel/pkg/tool"
)

type readParams struct {
	Path   string `json:"path"`
	Offset int    `json:"offset"`
	Limit  int    `json:"limit"`
}

func (t *Tools) readTool() tool.Tool {
	schema := tool.Schema{
		Type: "object",
		Properties: map[string]tool.Property{
			"path":   stringProp("File path relative to the project root."),
			"offset": intProp("1-based line number to start reading from. Defaults to 1."),
			"limit":  intProp("Maximum number of lines to return. Defaults to the whole file."),
		},
		Required: []string{"path"},
	}
	return tool.NewFunc("read", "Read a text file. Records the file's fingerprint so later edits to it are accepted.", schema,
		func(ctx context.Context, input json.RawMessage) *tool.Envelope {
			var p readParams
			if err := json.Unmarshal(input, &p); err != nil {
				return tool.Errorf(tool.CodeInvalidParam, "parsing arguments: %v", err)
			}
			return t.read(p)
		})
}

func (t *Tools) read(p readParams) *tool.Envelope {
	resolved, env := resolve(t.root, p.Path)
	if env != nil {
		return env
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return tool.Errorf(tool.CodeNotFound, "file not found: %s", p.Path)
		}
		return ioError("stat "+p.Path, err)
	}
	if info.IsDir() {
		return tool.Errorf(tool.CodeIsDirectory, "not a file: %s", p.Path)
	}
	if env := checkBinary(resolved); env != nil {
		return env
	}

	raw, err := os.ReadFile(resolved)
	if err != nil {
		return ioError("read "+p.Path, err)
	}

	// Capture the fingerprint after a successful read; this is what
	// authorizes a later mutation of the same file.
	fp, err := stat(resolved)
	if err != nil {
		return ioError("stat "+p.Path, err)
	}
	t.cache.Put(fp)

	lines := strings.Split(string(raw), "\n")
	total := len(lines)

	offset := p.Offset
	if offset < 1 {
		offset = 1
	}
	if offset > total {
		return tool.Errorf(tool.CodeInvalidParam, "offset %d past end of file (%d lines)", offset, total)
	}
	window := lines[offset-1:]
	if p.Limit > 0 && p.Limit < len(window) {
		window = window[:p.Limit]
	}

	var b strings.Builder
	for i, line := range window {
		fmt.Fprintf(&b, "%6d\t%s\n", offset+i, line)
	}

	return tool.Success(b.String(), map[string]any{
		"path":       p.Path,
		"mtime_ms":   fp.MtimeMS,
		"size_bytes": fp.SizeBytes,
		"lines":      total,
		"offset":     offset,
		"returned":   len(window),
	})
}
