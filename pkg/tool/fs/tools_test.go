package fs

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/chisel-dev/chisel/pkg/tool"
)

func TestReadCapturesFingerprint(t *testing.T) {
	tools, root := newTestTools(t)
	full := seedFile(t, root, "a.go", "package a\n\nfunc A() {}\n")

	env := tools.read(readParams{Path: "a.go"})
	if env.IsError() {
		t.Fatalf("read failed: %+v", env.Error)
	}
	if !strings.Contains(env.Text, "     1\tpackage a") {
		t.Errorf("missing numbered first line: %q", env.Text)
	}

	fp, ok := tools.Cache().Get(full)
	if !ok {
		t.Fatal("fingerprint not cached after read")
	}
	if fp.MtimeMS != env.Data["mtime_ms"] || fp.SizeBytes != env.Data["size_bytes"] {
		t.Errorf("cached fingerprint disagrees with reported one: %+v vs %v", fp, env.Data)
	}
}

func TestReadWindow(t *testing.T) {
	tools, root := newTestTools(t)
	seedFile(t, root, "a.txt", "one\ntwo\nthree\nfour\n")

	env := tools.read(readParams{Path: "a.txt", Offset: 2, Limit: 2})
	if env.IsError() {
		t.Fatalf("read failed: %+v", env.Error)
	}
	want := "     2\ttwo\n     3\tthree\n"
	if env.Text != want {
		t.Errorf("window = %q, want %q", env.Text, want)
	}

	env = tools.read(readParams{Path: "a.txt", Offset: 100})
	wantErrorCode(t, env, tool.CodeInvalidParam)
}

func TestReadRejectsBinaryAndDirectory(t *testing.T) {
	tools, root := newTestTools(t)
	seedFile(t, root, "bin.dat", "x\x00y")
	if err := os.Mkdir(filepath.Join(root, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}

	wantErrorCode(t, tools.read(readParams{Path: "bin.dat"}), tool.CodeBinaryFile)
	wantErrorCode(t, tools.read(readParams{Path: "sub"}), tool.CodeIsDirectory)
	wantErrorCode(t, tools.read(readParams{Path: "missing.go"}), tool.CodeNotFound)
}

func TestResolveRejectsEscapes(t *testing.T) {
	tools, _ := newTestTools(t)

	env := tools.read(readParams{Path: "/etc/passwd"})
	wantErrorCode(t, env, tool.CodeInvalidParam)

	env = tools.read(readParams{Path: "../outside.txt"})
	wantErrorCode(t, env, tool.CodeAccessDenied)

	env = tools.read(readParams{Path: "sub/../../outside.txt"})
	wantErrorCode(t, env, tool.CodeAccessDenied)
}

func TestResolveRejectsSymlinkEscape(t *testing.T) {
	tools, root := newTestTools(t)
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("s"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	env := tools.read(readParams{Path: "link/secret.txt"})
	wantErrorCode(t, env, tool.CodeAccessDenied)
}

func TestWriteCreatesWithParents(t *testing.T) {
	tools, root := newTestTools(t)

	env := tools.write(writeParams{Path: "deep/nested/new.txt", Content: "hello\n"})
	if env.IsError() {
		t.Fatalf("create failed: %+v", env.Error)
	}
	if env.Data["created"] != true {
		t.Error("created flag not set")
	}
	if got := mustFileContent(t, filepath.Join(root, "deep/nested/new.txt")); got != "hello\n" {
		t.Fatalf("content = %q", got)
	}
}

func TestWriteOverwriteNeedsFingerprint(t *testing.T) {
	tools, root := newTestTools(t)
	full := seedFile(t, root, "a.txt", "old\n")

	env := tools.write(writeParams{Path: "a.txt", Content: "new\n"})
	wantErrorCode(t, env, tool.CodeInvalidParam)
	if got := mustFileContent(t, full); got != "old\n" {
		t.Fatalf("unauthorized overwrite happened: %q", got)
	}

	readToCache(t, tools, "a.txt")
	env = tools.write(writeParams{Path: "a.txt", Content: "new\n"})
	if env.IsError() {
		t.Fatalf("fenced overwrite failed: %+v", env.Error)
	}
	if got := mustFileContent(t, full); got != "new\n" {
		t.Fatalf("content = %q", got)
	}
}

func TestWriteOverwriteConflict(t *testing.T) {
	tools, root := newTestTools(t)
	full := seedFile(t, root, "a.txt", "old\n")
	readToCache(t, tools, "a.txt")

	if err := os.WriteFile(full, []byte("changed elsewhere\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	env := tools.write(writeParams{Path: "a.txt", Content: "new\n"})
	wantErrorCode(t, env, tool.CodeConflict)
	if got := mustFileContent(t, full); got != "changed elsewhere\n" {
		t.Fatalf("conflicting write touched the file: %q", got)
	}
}

func TestWriteDryRun(t *testing.T) {
	tools, root := newTestTools(t)

	env := tools.write(writeParams{Path: "new.txt", Content: "x\n", DryRun: true})
	if env.IsError() {
		t.Fatalf("dry run failed: %+v", env.Error)
	}
	if env.Data["applied"] != false {
		t.Error("dry run reported applied=true")
	}
	if _, err := os.Stat(filepath.Join(root, "new.txt")); !os.IsNotExist(err) {
		t.Error("dry run created the file")
	}
}

func TestGlob(t *testing.T) {
	tools, root := newTestTools(t)
	seedFile(t, root, "main.go", "package main\n")
	seedFile(t, root, "pkg/util/util.go", "package util\n")
	seedFile(t, root, "README.md", "# hi\n")

	env := tools.glob(globParams{Pattern: "**/*.go"})
	if env.IsError() {
		t.Fatalf("glob failed: %+v", env.Error)
	}
	if env.Data["matches"] != 2 {
		t.Fatalf("matches = %v, want 2; text: %q", env.Data["matches"], env.Text)
	}
	if !strings.Contains(env.Text, "pkg/util/util.go") {
		t.Errorf("nested match missing: %q", env.Text)
	}

	env = tools.glob(globParams{Pattern: "*.go", Path: "pkg/util"})
	if env.IsError() {
		t.Fatalf("scoped glob failed: %+v", env.Error)
	}
	if !strings.Contains(env.Text, "pkg/util/util.go") {
		t.Errorf("scoped match not prefixed with search path: %q", env.Text)
	}

	env = tools.glob(globParams{Pattern: "[bad"})
	wantErrorCode(t, env, tool.CodeInvalidParam)
}

func TestGrep(t *testing.T) {
	tools, root := newTestTools(t)
	seedFile(t, root, "a.go", "package a\n\nfunc Handle() error { return nil }\n")
	seedFile(t, root, "b.txt", "Handle with care\n")
	seedFile(t, root, "bin.dat", "Handle\x00binary")

	env := tools.grep(grepParams{Pattern: `func Handle`})
	if env.IsError() {
		t.Fatalf("grep failed: %+v", env.Error)
	}
	if env.Data["matches"] != 1 {
		t.Fatalf("matches = %v; text: %q", env.Data["matches"], env.Text)
	}
	if !strings.Contains(env.Text, "a.go:3: func Handle") {
		t.Errorf("match line malformed: %q", env.Text)
	}

	env = tools.grep(grepParams{Pattern: "Handle", Glob: "*.txt"})
	if env.Data["matches"] != 1 || !strings.Contains(env.Text, "b.txt") {
		t.Errorf("glob filter wrong: %v %q", env.Data["matches"], env.Text)
	}

	env = tools.grep(grepParams{Pattern: "Handle"})
	if env.Data["matches"] != 2 {
		t.Errorf("binary file not skipped: %v %q", env.Data["matches"], env.Text)
	}

	env = tools.grep(grepParams{Pattern: "(unclosed"})
	wantErrorCode(t, env, tool.CodeInvalidParam)
}

func TestGrepFileShorterThanSniffWindow(t *testing.T) {
	// Both files are far smaller than the sniff window, so the binary
	// check must tolerate reading less than a full window.
	_, root := newTestTools(t)
	text := seedFile(t, root, "tiny.txt", "hit\n")
	bin := seedFile(t, root, "tiny.dat", "h\x00t")

	re := regexp.MustCompile("hit|h")
	matches, err := grepFile(text, re)
	if err != nil {
		t.Fatalf("grepFile(text): %v", err)
	}
	if len(matches) != 1 || matches[0] != "1: hit" {
		t.Fatalf("matches = %v, want the single line", matches)
	}

	matches, err = grepFile(bin, re)
	if err != nil {
		t.Fatalf("grepFile(binary): %v", err)
	}
	if matches != nil {
		t.Fatalf("binary file produced matches: %v", matches)
	}
}
