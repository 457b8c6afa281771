package fs

import (
	"os"
	"sync"
	"time"

	"github.com/chisel-dev/chisel/pkg/tool"
)

// Fingerprint is the optimistic-lock token for a file: its modification
// time and size as observed by a read.
type Fingerprint struct {
	Path       string    `json:"path"`
	MtimeMS    int64     `json:"mtime_ms"`
	SizeBytes  int64     `json:"size_bytes"`
	CapturedAt time.Time `json:"captured_at"`
}

// stat captures the current fingerprint of a file.
func stat(path string) (Fingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{
		Path:       path,
		MtimeMS:    info.ModTime().UnixMilli(),
		SizeBytes:  info.Size(),
		CapturedAt: time.Now(),
	}, nil
}

// FingerprintCache holds the fingerprint from each file's most recent
// read, per session. Each agent session owns its own cache; there is no
// process-global state.
type FingerprintCache struct {
	mu      sync.RWMutex
	entries map[string]Fingerprint
}

func NewFingerprintCache() *FingerprintCache {
	return &FingerprintCache{entries: make(map[string]Fingerprint)}
}

// Put records the fingerprint from a read, replacing any prior entry
// for the same resolved path.
func (c *FingerprintCache) Put(fp Fingerprint) {
	c.mu.Lock()
	c.entries[fp.Path] = fp
	c.mu.Unlock()
}

// Get returns the cached fingerprint for a resolved path.
func (c *FingerprintCache) Get(path string) (Fingerprint, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fp, ok := c.entries[path]
	return fp, ok
}

// Reset drops all cached fingerprints.
func (c *FingerprintCache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]Fingerprint)
	c.mu.Unlock()
}

// expectedFingerprint works out which (mtime, size) pair fences this
// mutation. Explicit parameters win; with neither supplied the cache
// entry from the session's prior read is used. Exactly one explicit
// parameter is a usage error, as is mutating an existing file that was
// never read.
func expectedFingerprint(cache *FingerprintCache, path string, mtimeMS, sizeBytes *int64) (int64, int64, *tool.Envelope) {
	switch {
	case mtimeMS != nil && sizeBytes != nil:
		return *mtimeMS, *sizeBytes, nil
	case mtimeMS != nil || sizeBytes != nil:
		return 0, 0, tool.Errorf(tool.CodeInvalidParam,
			"expected_mtime_ms and expected_size_bytes must be supplied together")
	}
	if fp, ok := cache.Get(path); ok {
		return fp.MtimeMS, fp.SizeBytes, nil
	}
	return 0, 0, tool.Errorf(tool.CodeInvalidParam,
		"no fingerprint for %s: read the file first or supply expected_mtime_ms and expected_size_bytes", path)
}

// checkFingerprint compares the on-disk fingerprint against the
// expected pair. Any mismatch is a conflict, never auto-resolved.
func checkFingerprint(path string, wantMtimeMS, wantSizeBytes int64) *tool.Envelope {
	fp, err := stat(path)
	if err != nil {
		return ioError("stat "+path, err)
	}
	if fp.MtimeMS != wantMtimeMS || fp.SizeBytes != wantSizeBytes {
		return tool.Errorf(tool.CodeConflict,
			"file changed since read: on disk (mtime_ms=%d, size_bytes=%d), expected (mtime_ms=%d, size_bytes=%d)",
			fp.MtimeMS, fp.SizeBytes, wantMtimeMS, wantSizeBytes)
	}
	return nil
}
