package fs

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/chisel-dev/chisel/pkg/tool"
)

type writeParams struct {
	Path              string `json:"path"`
	Content           string `json:"content"`
	ExpectedMtimeMS   *int64 `json:"expected_mtime_ms"`
	ExpectedSizeBytes *int64 `json:"expected_size_bytes"`
	DryRun            bool   `json:"dry_run"`
}

func (t *Tools) writeTool() tool.Tool {
	schema := tool.Schema{
		Type: "object",
		Properties: map[string]tool.Property{
			"path":                stringProp("File path relative to the project root."),
			"content":             stringProp("Full new file content."),
			"expected_mtime_ms":   intProp("Fingerprint mtime from a prior read. Required together with expected_size_bytes when overwriting an existing file that was not read this session."),
			"expected_size_bytes": intProp("Fingerprint size from a prior read."),
			"dry_run":             boolProp("Run all checks and compute the diff without writing."),
		},
		Required: []string{"path", "content"},
	}
	return tool.NewFunc("write", "Create a file or overwrite an existing one. Overwrites are fenced by the file's read fingerprint.", schema,
		func(ctx context.Context, input json.RawMessage) *tool.Envelope {
			var p writeParams
			if err := json.Unmarshal(input, &p); err != nil {
				return tool.Errorf(tool.CodeInvalidParam, "parsing arguments: %v", err)
			}
			return t.write(p)
		})
}

func (t *Tools) write(p writeParams) *tool.Envelope {
	resolved, env := resolve(t.root, p.Path)
	if env != nil {
		return env
	}

	info, err := os.Stat(resolved)
	switch {
	case err == nil:
		if info.IsDir() {
			return tool.Errorf(tool.CodeIsDirectory, "not a file: %s", p.Path)
		}
		return t.overwrite(p, resolved, info)
	case os.IsNotExist(err):
		return t.create(p, resolved)
	default:
		return ioError("stat "+p.Path, err)
	}
}

// create writes a new file, making parent directories as needed. New
// files need no fingerprint; there is nothing to conflict with.
func (t *Tools) create(p writeParams, resolved string) *tool.Envelope {
	diff, diffTruncated := diffPreview(p.Path, "", p.Content)
	data := map[string]any{
		"path":           p.Path,
		"created":        true,
		"diff":           diff,
		"diff_truncated": diffTruncated,
	}
	if p.DryRun {
		data["applied"] = false
		return tool.Success("dry run: would create "+p.Path, data)
	}

	if err := os.MkdirAll(filepath.Dir(resolved), 0o755); err != nil {
		return ioError("creating parent directories", err)
	}
	if env := atomicWrite(resolved, []byte(p.Content), 0o644); env != nil {
		return env
	}
	if fp, err := stat(resolved); err == nil {
		data["new_mtime_ms"] = fp.MtimeMS
		data["new_size_bytes"] = fp.SizeBytes
	}
	data["applied"] = true
	return tool.Success("created "+p.Path, data)
}

// overwrite replaces an existing file under the optimistic lock.
func (t *Tools) overwrite(p writeParams, resolved string, info os.FileInfo) *tool.Envelope {
	wantMtime, wantSize, env := expectedFingerprint(t.cache, resolved, p.ExpectedMtimeMS, p.ExpectedSizeBytes)
	if env != nil {
		return env
	}
	if env := checkFingerprint(resolved, wantMtime, wantSize); env != nil {
		return env
	}
	if env := checkBinary(resolved); env != nil {
		return env
	}

	raw, err := os.ReadFile(resolved)
	if err != nil {
		return ioError("read "+p.Path, err)
	}

	diff, diffTruncated := diffPreview(p.Path, string(raw), p.Content)
	data := map[string]any{
		"path":           p.Path,
		"created":        false,
		"diff":           diff,
		"diff_truncated": diffTruncated,
	}
	if p.DryRun {
		data["applied"] = false
		return tool.Success("dry run: no changes written to "+p.Path, data)
	}

	if env := checkFingerprint(resolved, wantMtime, wantSize); env != nil {
		return env
	}
	if env := atomicWrite(resolved, []byte(p.Content), info.Mode().Perm()); env != nil {
		return env
	}
	if fp, err := stat(resolved); err == nil {
		data["new_mtime_ms"] = fp.MtimeMS
		data["new_size_bytes"] = fp.SizeBytes
	}
	data["applied"] = true
	return tool.Success("wrote "+p.Path, data)
}
