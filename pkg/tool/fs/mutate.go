package fs

import (
	"os"
	"sort"
	"strings"

	"github.com/chisel-dev/chisel/pkg/tool"
)

// region is one located replacement span, in byte offsets of the
// normalized original content.
type region struct {
	index       int
	start, end  int
	replacement string
}

// editSpec is one requested old/new pair.
type editSpec struct {
	OldText string `json:"old_text"`
	NewText string `json:"new_text"`
}

// applyEdits runs the full mutation pipeline on an existing file:
// existence and type checks, the optimistic-lock fingerprint fence,
// binary guard, region location against the original content, overlap
// rejection, and the atomic write. Edits are located against the
// original, never against intermediate results, and applied from the
// highest offset down so earlier offsets stay valid.
func (t *Tools) applyEdits(path string, edits []editSpec, mtimeMS, sizeBytes *int64, dryRun bool) *tool.Envelope {
	resolved, env := resolve(t.root, path)
	if env != nil {
		return env
	}

	info, err := os.Stat(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			return tool.Errorf(tool.CodeNotFound, "file not found: %s", path)
		}
		return ioError("stat "+path, err)
	}
	if info.IsDir() {
		return tool.Errorf(tool.CodeIsDirectory, "not a file: %s", path)
	}

	wantMtime, wantSize, env := expectedFingerprint(t.cache, resolved, mtimeMS, sizeBytes)
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
		return ioError("read "+path, err)
	}
	original := string(raw)
	terminator := detectTerminator(original)
	working := normalize(original)

	regions, env := locate(working, edits)
	if env != nil {
		return env
	}
	if env := checkOverlaps(regions); env != nil {
		return env
	}

	updated := apply(working, regions)
	final := restoreTerminator(updated, terminator)

	diff, diffTruncated := diffPreview(path, original, final)
	data := map[string]any{
		"path":           path,
		"edits_applied":  len(regions),
		"diff":           diff,
		"diff_truncated": diffTruncated,
	}

	if dryRun {
		data["applied"] = false
		return tool.Success("dry run: no changes written to "+path, data)
	}

	// Second fingerprint check right before the physical write narrows
	// the race window between validation and write.
	if env := checkFingerprint(resolved, wantMtime, wantSize); env != nil {
		return env
	}
	if env := atomicWrite(resolved, []byte(final), info.Mode().Perm()); env != nil {
		return env
	}

	if fp, err := stat(resolved); err == nil {
		data["new_mtime_ms"] = fp.MtimeMS
		data["new_size_bytes"] = fp.SizeBytes
	}
	data["applied"] = true
	return tool.Success("edited "+path, data)
}

// locate finds each edit's unique occurrence in the original content.
func locate(content string, edits []editSpec) ([]region, *tool.Envelope) {
	regions := make([]region, 0, len(edits))
	for i, e := range edits {
		if e.OldText == "" {
			return nil, tool.Errorf(tool.CodeInvalidParam, "edit %d: old_text is empty", i)
		}
		old := normalize(e.OldText)
		switch n := strings.Count(content, old); {
		case n == 0:
			return nil, tool.Errorf(tool.CodeInvalidParam, "edit %d: old_text not found in file", i)
		case n > 1:
			return nil, tool.Errorf(tool.CodeInvalidParam, "edit %d: old_text is not unique (%d occurrences)", i, n)
		}
		start := strings.Index(content, old)
		regions = append(regions, region{
			index:       i,
			start:       start,
			end:         start + len(old),
			replacement: normalize(e.NewText),
		})
	}
	return regions, nil
}

// checkOverlaps rejects the whole batch when any two regions intersect.
func checkOverlaps(regions []region) *tool.Envelope {
	for i := 0; i < len(regions); i++ {
		for j := i + 1; j < len(regions); j++ {
			a, b := regions[i], regions[j]
			if a.start < b.end && a.end > b.start {
				return tool.Errorf(tool.CodeInvalidParam,
					"edit %d overlaps edit %d: regions [%d:%d) and [%d:%d)",
					b.index, a.index, b.start, b.end, a.start, a.end)
			}
		}
	}
	return nil
}

// apply rewrites regions from the highest offset down on a single
// buffer, then returns the result. All-or-nothing by construction: the
// file is only touched afterwards, in one write.
func apply(content string, regions []region) string {
	ordered := append([]region(nil), regions...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].start > ordered[j].start })
	for _, r := range ordered {
		content = content[:r.start] + r.replacement + content[r.end:]
	}
	return content
}
