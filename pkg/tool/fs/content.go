package fs

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chisel-dev/chisel/pkg/tool"
)

const binarySniffLen = 8192

// checkBinary rejects files whose leading bytes contain a NUL, without
// loading the whole file.
func checkBinary(path string) *tool.Envelope {
	f, err := os.Open(path)
	if err != nil {
		return ioError("open "+path, err)
	}
	defer f.Close()

	buf := make([]byte, binarySniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return ioError("read "+path, err)
	}
	if bytes.IndexByte(buf[:n], 0) >= 0 {
		return tool.Errorf(tool.CodeBinaryFile, "cannot edit binary file: %s", path)
	}
	return nil
}

const (
	termLF   = "\n"
	termCRLF = "\r\n"
)

// detectTerminator returns the dominant line terminator by majority
// count in the original content. Ties and terminator-free files get LF.
func detectTerminator(content string) string {
	crlf := strings.Count(content, termCRLF)
	lf := strings.Count(content, termLF) - crlf
	if crlf > lf {
		return termCRLF
	}
	return termLF
}

// normalize converts content to LF-only for region matching.
func normalize(content string) string {
	return strings.ReplaceAll(content, termCRLF, termLF)
}

// restoreTerminator reapplies the detected terminator to LF-normalized
// content.
func restoreTerminator(content, terminator string) string {
	if terminator == termLF {
		return content
	}
	return strings.ReplaceAll(content, termLF, terminator)
}

// atomicWrite writes content through a temp file in the target's
// directory followed by a rename, preserving the original mode.
func atomicWrite(path string, content []byte, mode os.FileMode) *tool.Envelope {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return ioError("create temp file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return ioError("write temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return ioError("close temp file", err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		os.Remove(tmpName)
		return ioError("chmod temp file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return ioError("rename temp file", err)
	}
	return nil
}
