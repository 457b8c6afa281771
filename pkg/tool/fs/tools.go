package fs

import (
	"github.com/chisel-dev/chisel/pkg/tool"
)

// Tools bundles the file tools for one session. All paths are resolved
// relative to the project root and fenced inside it.
type Tools struct {
	root  string
	cache *FingerprintCache
}

// New creates the file tools rooted at the project directory.
func New(root string) *Tools {
	return &Tools{root: root, cache: NewFingerprintCache()}
}

// Cache exposes the session fingerprint cache.
func (t *Tools) Cache() *FingerprintCache { return t.cache }

// Register adds all file tools to the registry.
func (t *Tools) Register(reg *tool.Registry) error {
	for _, tl := range []tool.Tool{
		t.readTool(),
		t.writeTool(),
		t.editTool(),
		t.multiEditTool(),
		t.globTool(),
		t.grepTool(),
	} {
		if err := reg.Register(tl); err != nil {
			return err
		}
	}
	return nil
}

func stringProp(desc string) tool.Property {
	return tool.Property{Type: "string", Description: desc}
}

func intProp(desc string) tool.Property {
	return tool.Property{Type: "integer", Description: desc}
}

func boolProp(desc string) tool.Property {
	return tool.Property{Type: "boolean", Description: desc}
}
