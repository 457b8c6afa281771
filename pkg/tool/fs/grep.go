package fs

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/chisel-dev/chisel/pkg/tool"
)

const (
	grepMaxMatches = 500
	grepMaxLine    = 512
)

type grepParams struct {
	Pattern string `json:"pattern"`
	Path    string `json:"path"`
	Glob    string `json:"glob"`
}

func (t *Tools) grepTool() tool.Tool {
	schema := tool.Schema{
		Type: "object",
		Properties: map[string]tool.Property{
			"pattern": stringProp("Regular expression to search for (RE2 syntax)."),
			"path":    stringProp("Directory to search, relative to the project root. Defaults to the root."),
			"glob":    stringProp("Only search files matching this glob, e.g. \"*.go\"."),
		},
		Required: []string{"pattern"},
	}
	return tool.NewFunc("grep", "Search file contents line by line with a regular expression. Binary files are skipped.", schema,
		func(ctx context.Context, input json.RawMessage) *tool.Envelope {
			var p grepParams
			if err := json.Unmarshal(input, &p); err != nil {
				return tool.Errorf(tool.CodeInvalidParam, "parsing arguments: %v", err)
			}
			return t.grep(p)
		})
}

func (t *Tools) grep(p grepParams) *tool.Envelope {
	if p.Pattern == "" {
		return tool.Errorf(tool.CodeInvalidParam, "pattern is required")
	}
	re, err := regexp.Compile(p.Pattern)
	if err != nil {
		return tool.Errorf(tool.CodeInvalidParam, "bad pattern: %v", err)
	}

	base := t.root
	display := ""
	if p.Path != "" {
		resolved, env := resolve(t.root, p.Path)
		if env != nil {
			return env
		}
		base = resolved
		display = p.Path + "/"
	}
	if info, err := os.Stat(base); err != nil || !info.IsDir() {
		return tool.Errorf(tool.CodeNotFound, "directory not found: %s", p.Path)
	}

	var out []string
	truncated := false
	walkErr := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if d.IsDir() {
			if d.Name() == ".git" || d.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(base, path)
		if err != nil {
			return nil
		}
		if p.Glob != "" {
			if ok, _ := doublestar.Match(p.Glob, filepath.Base(rel)); !ok {
				if ok, _ := doublestar.Match(p.Glob, rel); !ok {
					return nil
				}
			}
		}
		matches, err := grepFile(path, re)
		if err != nil {
			return nil
		}
		for _, m := range matches {
			if len(out) >= grepMaxMatches {
				truncated = true
				return filepath.SkipAll
			}
			out = append(out, display+rel+":"+m)
		}
		return nil
	})
	if walkErr != nil {
		return ioError("walking files", walkErr)
	}

	text := strings.Join(out, "\n")
	if len(out) == 0 {
		text = fmt.Sprintf("no matches for %s", p.Pattern)
	}
	env := tool.Success(text, map[string]any{
		"pattern":   p.Pattern,
		"matches":   len(out),
		"truncated": truncated,
	})
	if truncated {
		env.Status = tool.StatusPartial
	}
	return env
}

// grepFile returns "line: text" matches for one file. Binary files
// yield no matches.
func grepFile(path string, re *regexp.Regexp) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	head := make([]byte, binarySniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return nil, err
	}
	if bytes.IndexByte(head[:n], 0) >= 0 {
		return nil, nil
	}
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}

	var matches []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if re.MatchString(line) {
			if len(line) > grepMaxLine {
				line = line[:grepMaxLine]
			}
			matches = append(matches, fmt.Sprintf("%d: %s", lineNo, line))
		}
	}
	return matches, scanner.Err()
}
