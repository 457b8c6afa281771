// Package truncate bounds tool output before it enters the message
// store. Oversized payloads are sliced to a preview and the untouched
// original is persisted to a side file so nothing is ever lost.
package truncate

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chisel-dev/chisel/pkg/tool"
)

const (
	DefaultMaxLines = 2000
	DefaultMaxBytes = 51200

	DirectionHead = "head"
	DirectionTail = "tail"

	// Envelope context keys recognized by the truncator.
	ContextSkip      = "truncation_skip"
	ContextDirection = "truncate_direction"

	sideDir = "tool-output"
)

// Config bounds a single tool observation.
type Config struct {
	MaxLines  int
	MaxBytes  int
	Direction string
}

// DefaultConfig returns the standard limits.
func DefaultConfig() Config {
	return Config{MaxLines: DefaultMaxLines, MaxBytes: DefaultMaxBytes, Direction: DirectionHead}
}

// Truncator caps tool observations and writes side files under
// root/tool-output.
type Truncator struct {
	cfg  Config
	root string
}

// New creates a Truncator. Zero or negative limits fall back to the
// defaults.
func New(cfg Config, root string) *Truncator {
	if cfg.MaxLines <= 0 {
		cfg.MaxLines = DefaultMaxLines
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.Direction != DirectionTail {
		cfg.Direction = DirectionHead
	}
	return &Truncator{cfg: cfg, root: root}
}

// Truncate caps a raw JSON tool result. Malformed input is returned
// unchanged; the truncator never fails a tool call.
func (t *Truncator) Truncate(toolName, raw string) string {
	var env tool.Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return raw
	}
	out := t.Process(toolName, &env)
	b, err := json.Marshal(out)
	if err != nil {
		return raw
	}
	return string(b)
}

// Process applies the truncation policy to an envelope in place and
// returns it. Small payloads pass through untouched.
func (t *Truncator) Process(toolName string, env *tool.Envelope) *tool.Envelope {
	if env == nil {
		return env
	}
	if skip, _ := env.Context[ContextSkip].(bool); skip {
		return env
	}

	content, fromText := t.content(env)
	lines := countLines(content)
	bytes := len(content)
	if lines <= t.cfg.MaxLines && bytes <= t.cfg.MaxBytes {
		return env
	}

	direction := t.cfg.Direction
	if d, _ := env.Context[ContextDirection].(string); d == DirectionHead || d == DirectionTail {
		direction = d
	}

	sidePath, err := t.persist(toolName, env)
	if err != nil {
		// Never lose the original silently. Keep the envelope intact
		// rather than truncating without a recovery path.
		slog.Warn("failed to persist full tool output, skipping truncation",
			"tool", toolName, "error", err)
		return env
	}

	preview, keptLines := slice(content, t.cfg.MaxLines, t.cfg.MaxBytes, direction)

	env.Status = tool.StatusPartial
	env.Data = map[string]any{
		"truncation": map[string]any{
			"original_lines":   lines,
			"original_bytes":   bytes,
			"kept_lines":       keptLines,
			"direction":        direction,
			"full_output_path": sidePath,
		},
	}
	pointer := fmt.Sprintf("[output truncated: %d of %d lines kept (%s); full output at %s]",
		keptLines, lines, direction, sidePath)
	if fromText {
		env.Text = preview + "\n\n" + pointer
	} else {
		env.Data["preview"] = preview
		env.Text = strings.TrimSpace(env.Text + "\n\n" + pointer)
	}
	return env
}

// content picks the payload the limits apply to: the text field when
// present, otherwise the serialized data field.
func (t *Truncator) content(env *tool.Envelope) (string, bool) {
	if env.Text != "" {
		return env.Text, true
	}
	if env.Data == nil {
		return "", false
	}
	b, err := json.MarshalIndent(env.Data, "", "  ")
	if err != nil {
		return "", false
	}
	return string(b), false
}

// persist writes the full original envelope to a side file and returns
// its path.
func (t *Truncator) persist(toolName string, env *tool.Envelope) (string, error) {
	dir := filepath.Join(t.root, sideDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	name := fmt.Sprintf("tool_%d_%s.json", time.Now().UnixMilli(), sanitize(toolName))
	path := filepath.Join(dir, name)
	b, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// slice keeps up to maxLines lines and maxBytes bytes from the head or
// tail of s, cutting at line boundaries for the byte cap when possible.
func slice(s string, maxLines, maxBytes int, direction string) (string, int) {
	all := strings.Split(s, "\n")
	var kept []string
	if direction == DirectionTail {
		if len(all) > maxLines {
			kept = all[len(all)-maxLines:]
		} else {
			kept = all
		}
		// Trim whole lines from the front until under the byte cap.
		for len(kept) > 1 && joinedLen(kept) > maxBytes {
			kept = kept[1:]
		}
	} else {
		if len(all) > maxLines {
			kept = all[:maxLines]
		} else {
			kept = all
		}
		for len(kept) > 1 && joinedLen(kept) > maxBytes {
			kept = kept[:len(kept)-1]
		}
	}
	out := strings.Join(kept, "\n")
	if len(out) > maxBytes {
		// Single line larger than the cap: hard cut.
		if direction == DirectionTail {
			out = out[len(out)-maxBytes:]
		} else {
			out = out[:maxBytes]
		}
	}
	return out, len(kept)
}

func joinedLen(lines []string) int {
	n := 0
	for _, l := range lines {
		n += len(l) + 1
	}
	return n - 1
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
}
