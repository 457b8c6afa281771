package fs

import (
	"context"
	"encoding/json"

	"github.com/chisel-dev/chisel/pkg/tool"
)

type editParams struct {
	Path              string `json:"path"`
	OldText           string `json:"old_text"`
	NewText           string `json:"new_text"`
	ExpectedMtimeMS   *int64 `json:"expected_mtime_ms"`
	ExpectedSizeBytes *int64 `json:"expected_size_bytes"`
	DryRun            bool   `json:"dry_run"`
}

func (t *Tools) editTool() tool.Tool {
	schema := tool.Schema{
		Type: "object",
		Properties: map[string]tool.Property{
			"path":                stringProp("File path relative to the project root."),
			"old_text":            stringProp("Exact text to replace. Must occur exactly once in the file."),
			"new_text":            stringProp("Replacement text."),
			"expected_mtime_ms":   intProp("Fingerprint mtime from a prior read. Supply together with expected_size_bytes, or omit both to use the fingerprint recorded by the last read."),
			"expected_size_bytes": intProp("Fingerprint size from a prior read."),
			"dry_run":             boolProp("Run all checks and compute the diff without writing."),
		},
		Required: []string{"path", "old_text", "new_text"},
	}
	return tool.NewFunc("edit", "Replace one unique text region in a file. Rejected if the file changed since it was read.", schema,
		func(ctx context.Context, input json.RawMessage) *tool.Envelope {
			var p editParams
			if err := json.Unmarshal(input, &p); err != nil {
				return tool.Errorf(tool.CodeInvalidParam, "parsing arguments: %v", err)
			}
			edits := []editSpec{{OldText: p.OldText, NewText: p.NewText}}
			return t.applyEdits(p.Path, edits, p.ExpectedMtimeMS, p.ExpectedSizeBytes, p.DryRun)
		})
}

type multiEditParams struct {
	Path              string     `json:"path"`
	Edits             []editSpec `json:"edits"`
	ExpectedMtimeMS   *int64     `json:"expected_mtime_ms"`
	ExpectedSizeBytes *int64     `json:"expected_size_bytes"`
	DryRun            bool       `json:"dry_run"`
}

func (t *Tools) multiEditTool() tool.Tool {
	schema := tool.Schema{
		Type: "object",
		Properties: map[string]tool.Property{
			"path": stringProp("File path relative to the project root."),
			"edits": {
				Type:        "array",
				Description: "Independent replacements, each located against the original file content. All apply or none do.",
				Items: &tool.Property{
					Type: "object",
					Properties: map[string]tool.Property{
						"old_text": stringProp("Exact text to replace. Must occur exactly once."),
						"new_text": stringProp("Replacement text."),
					},
				},
			},
			"expected_mtime_ms":   intProp("Fingerprint mtime from a prior read. Supply together with expected_size_bytes, or omit both to use the fingerprint recorded by the last read."),
			"expected_size_bytes": intProp("Fingerprint size from a prior read."),
			"dry_run":             boolProp("Run all checks and compute the diff without writing."),
		},
		Required: []string{"path", "edits"},
	}
	return tool.NewFunc("multi_edit", "Apply several independent text replacements to one file atomically.", schema,
		func(ctx context.Context, input json.RawMessage) *tool.Envelope {
			var p multiEditParams
			if err := json.Unmarshal(input, &p); err != nil {
				return tool.Errorf(tool.CodeInvalidParam, "parsing arguments: %v", err)
			}
			if len(p.Edits) == 0 {
				return tool.Errorf(tool.CodeInvalidParam, "edits is empty")
			}
			return t.applyEdits(p.Path, p.Edits, p.ExpectedMtimeMS, p.ExpectedSizeBytes, p.DryRun)
		})
}
