package fs

import (
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

const (
	diffMaxLines = 200
	diffMaxBytes = 16384
	diffContext  = 3
)

// diffPreview renders a capped unified diff. Truncation of the preview
// is cosmetic only; it never affects the applied content.
func diffPreview(path, before, after string) (string, bool) {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: path,
		ToFile:   path,
		Context:  diffContext,
	})
	if err != nil {
		return "", false
	}

	truncated := false
	lines := strings.Split(strings.TrimSuffix(text, "\n"), "\n")
	if len(lines) > diffMaxLines {
		lines = lines[:diffMaxLines]
		truncated = true
	}
	out := strings.Join(lines, "\n")
	if len(out) > diffMaxBytes {
		out = out[:diffMaxBytes]
		truncated = true
	}
	return out, truncated
}
