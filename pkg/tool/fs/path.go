// Package fs provides the file tools: read, write, edit, multi_edit,
// glob, and grep. Mutations are fenced by an optimistic lock keyed on
// the file's (mtime, size) fingerprint captured at read time.
package fs

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/chisel-dev/chisel/pkg/tool"
)

// resolve turns a project-relative path into an absolute one, refusing
// anything that would land outside the project root. Absolute input
// paths are rejected outright rather than checked for containment.
func resolve(root, rel string) (string, *tool.Envelope) {
	if rel == "" {
		return "", tool.Errorf(tool.CodeInvalidParam, "path is required")
	}
	if filepath.IsAbs(rel) {
		return "", tool.Errorf(tool.CodeInvalidParam, "absolute paths are not allowed: %s", rel)
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", tool.Errorf(tool.CodeExecutionError, "resolving project root: %v", err)
	}
	target := filepath.Join(rootAbs, filepath.Clean(rel))
	if !within(rootAbs, target) {
		return "", tool.Errorf(tool.CodeAccessDenied, "path escapes project root: %s", rel)
	}

	// A symlinked ancestor could still point outside the root, so
	// resolve the nearest existing ancestor and re-check.
	if real, err := resolveExisting(target); err == nil {
		realRoot, rerr := filepath.EvalSymlinks(rootAbs)
		if rerr != nil {
			realRoot = rootAbs
		}
		if !within(realRoot, real) {
			return "", tool.Errorf(tool.CodeAccessDenied, "path escapes project root: %s", rel)
		}
	}
	return target, nil
}

// resolveExisting evaluates symlinks on the deepest existing ancestor
// of path and rejoins the non-existing remainder.
func resolveExisting(path string) (string, error) {
	var tail []string
	cur := path
	for {
		if _, err := os.Lstat(cur); err == nil {
			break
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", fmt.Errorf("no existing ancestor for %s", path)
		}
		tail = append([]string{filepath.Base(cur)}, tail...)
		cur = parent
	}
	real, err := filepath.EvalSymlinks(cur)
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{real}, tail...)...), nil
}

func within(root, target string) bool {
	if target == root {
		return true
	}
	return strings.HasPrefix(target, root+string(filepath.Separator))
}

// ioError maps an I/O failure to the tool error taxonomy.
func ioError(op string, err error) *tool.Envelope {
	if os.IsPermission(err) {
		return tool.Errorf(tool.CodePermissionDenied, "%s: %v", op, err)
	}
	return tool.Errorf(tool.CodeExecutionError, "%s: %v", op, err)
}
