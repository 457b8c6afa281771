package truncate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/chisel-dev/chisel/pkg/tool"
)

func bigText(lines int) string {
	var b strings.Builder
	for i := 0; i < lines; i++ {
		fmt.Fprintf(&b, "line %04d of the output\n", i)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func TestTruncateSmallPayloadUnchanged(t *testing.T) {
	tr := New(DefaultConfig(), t.TempDir())
	raw := `{"status":"success","text":"short output","data":{"path":"a.go"}}`

	got := tr.Truncate("read", raw)
	if got != raw {
		t.Fatalf("small payload changed:\n in: %s\nout: %s", raw, got)
	}
}

func TestTruncateMalformedJSONUnchanged(t *testing.T) {
	tr := New(DefaultConfig(), t.TempDir())
	raw := `{"status": not json at all`
	if got := tr.Truncate("bash", raw); got != raw {
		t.Fatalf("malformed input changed: %q", got)
	}
}

func TestTruncateOversizedTextRecoverable(t *testing.T) {
	root := t.TempDir()
	tr := New(Config{MaxLines: 10, MaxBytes: 4096}, root)

	original := &tool.Envelope{Status: tool.StatusSuccess, Text: bigText(100)}
	raw, _ := json.Marshal(original)

	out := tr.Truncate("bash", string(raw))
	var env tool.Envelope
	if err := json.Unmarshal([]byte(out), &env); err != nil {
		t.Fatalf("truncated output is not valid JSON: %v", err)
	}

	if env.Status != tool.StatusPartial {
		t.Errorf("status = %q, want partial", env.Status)
	}
	trunc, ok := env.Data["truncation"].(map[string]any)
	if !ok {
		t.Fatalf("missing truncation block in data: %v", env.Data)
	}
	if got := trunc["original_lines"]; got != float64(100) {
		t.Errorf("original_lines = %v, want 100", got)
	}
	if got := trunc["kept_lines"]; got != float64(10) {
		t.Errorf("kept_lines = %v, want 10", got)
	}
	if got := trunc["direction"]; got != DirectionHead {
		t.Errorf("direction = %v, want head", got)
	}
	if !strings.HasPrefix(env.Text, "line 0000") {
		t.Errorf("head truncation did not keep the start: %q", env.Text[:40])
	}
	if !strings.Contains(env.Text, "output truncated") {
		t.Error("preview lacks the truncation pointer")
	}

	// The side file holds the untouched original.
	sidePath, _ := trunc["full_output_path"].(string)
	if sidePath == "" {
		t.Fatal("no full_output_path recorded")
	}
	b, err := os.ReadFile(sidePath)
	if err != nil {
		t.Fatalf("reading side file: %v", err)
	}
	var saved tool.Envelope
	if err := json.Unmarshal(b, &saved); err != nil {
		t.Fatalf("side file is not a valid envelope: %v", err)
	}
	if !reflect.DeepEqual(&saved, original) {
		t.Error("side file does not round-trip the original envelope")
	}
	if dir := filepath.Dir(sidePath); dir != filepath.Join(root, "tool-output") {
		t.Errorf("side file in %s, want %s", dir, filepath.Join(root, "tool-output"))
	}
}

func TestTruncateTailDirectionOverride(t *testing.T) {
	tr := New(Config{MaxLines: 10, MaxBytes: 4096}, t.TempDir())

	env := &tool.Envelope{
		Status:  tool.StatusSuccess,
		Text:    bigText(100),
		Context: map[string]any{ContextDirection: DirectionTail},
	}
	out := tr.Process("bash", env)

	if !strings.HasPrefix(out.Text, "line 0090") {
		t.Errorf("tail truncation did not keep the end: %q", out.Text[:40])
	}
	trunc := out.Data["truncation"].(map[string]any)
	if trunc["direction"] != DirectionTail {
		t.Errorf("direction = %v, want tail", trunc["direction"])
	}
}

func TestTruncateSkipHint(t *testing.T) {
	tr := New(Config{MaxLines: 10, MaxBytes: 4096}, t.TempDir())

	text := bigText(100)
	env := &tool.Envelope{
		Status:  tool.StatusSuccess,
		Text:    text,
		Context: map[string]any{ContextSkip: true},
	}
	out := tr.Process("read", env)
	if out.Text != text || out.Status != tool.StatusSuccess {
		t.Fatal("truncation_skip envelope was modified")
	}
}

func TestTruncateDataPayloadGetsPreview(t *testing.T) {
	tr := New(Config{MaxLines: 5, MaxBytes: 512}, t.TempDir())

	data := map[string]any{}
	for i := 0; i < 50; i++ {
		data[fmt.Sprintf("key%02d", i)] = strings.Repeat("v", 40)
	}
	env := &tool.Envelope{Status: tool.StatusSuccess, Data: data}
	out := tr.Process("glob", env)

	if out.Status != tool.StatusPartial {
		t.Fatalf("status = %q, want partial", out.Status)
	}
	if _, ok := out.Data["preview"].(string); !ok {
		t.Error("data-sourced truncation should carry a preview")
	}
	if !strings.Contains(out.Text, "full output at") {
		t.Error("pointer missing from text")
	}
}

func TestTruncatePersistFailureSkipsTruncation(t *testing.T) {
	// A root that cannot be created forces the persist step to fail; the
	// envelope must come through untouched rather than lose data.
	root := filepath.Join(t.TempDir(), "blocked")
	if err := os.WriteFile(root, []byte("not a dir"), 0o644); err != nil {
		t.Fatal(err)
	}
	tr := New(Config{MaxLines: 10, MaxBytes: 4096}, root)

	text := bigText(100)
	env := &tool.Envelope{Status: tool.StatusSuccess, Text: text}
	out := tr.Process("bash", env)

	if out.Text != text {
		t.Fatal("content truncated despite persist failure")
	}
	if out.Status != tool.StatusSuccess {
		t.Fatalf("status changed to %q despite persist failure", out.Status)
	}
}

func TestTruncateByteCapTrimsWholeLines(t *testing.T) {
	tr := New(Config{MaxLines: 1000, MaxBytes: 100}, t.TempDir())

	env := &tool.Envelope{Status: tool.StatusSuccess, Text: bigText(50)}
	out := tr.Process("bash", env)

	trunc := out.Data["truncation"].(map[string]any)
	preview := strings.SplitN(out.Text, "\n\n[output truncated", 2)[0]
	if len(preview) > 100 {
		t.Errorf("preview is %d bytes, cap is 100", len(preview))
	}
	for _, line := range strings.Split(preview, "\n") {
		if !strings.HasPrefix(line, "line ") {
			t.Errorf("byte cap split a line: %q", line)
		}
	}
	if trunc["kept_lines"].(int) <= 0 {
		t.Error("kept_lines not recorded")
	}
}
