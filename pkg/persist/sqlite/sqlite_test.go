package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/chisel-dev/chisel/pkg/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "chisel.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	msgs := []*domain.Message{
		{ID: "m1", Role: domain.RoleUser, Content: "hello", CreatedAt: now},
		{
			ID:   "m2",
			Role: domain.RoleAssistant,
			Metadata: map[string]any{
				domain.MetaToolCalls: []any{
					map[string]any{"id": "call-1", "name": "bash", "arguments": `{"command":"ls"}`},
				},
			},
			CreatedAt: now,
		},
		{
			ID:        "m3",
			Role:      domain.RoleTool,
			Content:   `{"status":"success","text":"a.go"}`,
			Metadata:  map[string]any{domain.MetaToolCallID: "call-1", domain.MetaToolName: "bash"},
			CreatedAt: now,
		},
	}

	if err := s.Save(ctx, msgs); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("loaded %d messages, want 3", len(got))
	}
	for i := range msgs {
		if got[i].ID != msgs[i].ID || got[i].Role != msgs[i].Role || got[i].Content != msgs[i].Content {
			t.Errorf("message %d = %+v, want %+v", i, got[i], msgs[i])
		}
	}

	calls := got[1].ToolCalls()
	if len(calls) != 1 || calls[0].Name != "bash" || calls[0].Arguments != `{"command":"ls"}` {
		t.Fatalf("tool calls lost in round trip: %+v", calls)
	}
	if got[2].ToolCallID() != "call-1" {
		t.Errorf("tool_call_id lost: %+v", got[2].Metadata)
	}
}

func TestSaveReplacesPreviousSnapshot(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := []*domain.Message{
		{ID: "a", Role: domain.RoleUser, Content: "1", CreatedAt: time.Now()},
		{ID: "b", Role: domain.RoleAssistant, Content: "2", CreatedAt: time.Now()},
	}
	if err := s.Save(ctx, first); err != nil {
		t.Fatal(err)
	}

	second := []*domain.Message{
		{ID: "c", Role: domain.RoleSummary, Content: "compacted", CreatedAt: time.Now()},
	}
	if err := s.Save(ctx, second); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "c" {
		t.Fatalf("second save did not replace the first: %v", got)
	}
}

func TestLoadEmptyStore(t *testing.T) {
	s := newTestStore(t)
	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected no messages, got %v", got)
	}
}

func TestSaveOrderPreserved(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var msgs []*domain.Message
	for i := 0; i < 20; i++ {
		msgs = append(msgs, &domain.Message{
			ID: string(rune('a' + i)), Role: domain.RoleUser, CreatedAt: time.Now(),
		})
	}
	if err := s.Save(ctx, msgs); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for i := range msgs {
		if got[i].ID != msgs[i].ID {
			t.Fatalf("position %d holds %q, want %q", i, got[i].ID, msgs[i].ID)
		}
	}
}
