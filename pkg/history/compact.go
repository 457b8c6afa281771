package history

import (
	"context"
	"log/slog"

	"github.com/chisel-dev/chisel/pkg/domain"
	"github.com/chisel-dev/chisel/pkg/events"
)

// CompactResult reports what a Compact call did.
type CompactResult struct {
	Compacted        bool   `json:"compacted"`
	Reason           string `json:"reason,omitempty"`
	CompressedCount  int    `json:"compressed_count"`
	SummaryGenerated bool   `json:"summary_generated"`
	RetainedCount    int    `json:"retained_count"`
}

// Compact reduces the message list to the most recent MinRetainRounds
// rounds. Everything older is replaced by a model-generated summary;
// summaries produced by earlier compactions are carried forward
// verbatim and never re-summarized. The retention boundary is always a
// round start, so a tool call is never separated from its result.
//
// Summarizer failure or timeout degrades to truncation-only: the old
// messages are still dropped, just without a replacement summary.
// Compaction is a safety valve against unbounded growth and must not
// fail closed.
func (m *Manager) Compact(ctx context.Context) *CompactResult {
	m.mu.Lock()
	rounds := identifyRounds(m.messages)
	if len(rounds) <= m.cfg.MinRetainRounds {
		m.mu.Unlock()
		return &CompactResult{Reason: "not enough rounds"}
	}

	retainStartRound := len(rounds) - m.cfg.MinRetainRounds
	retainStartIdx := rounds[retainStartRound].Start

	var toCompress, existingSummaries []*domain.Message
	for _, msg := range m.messages[:retainStartIdx] {
		if msg.Role == domain.RoleSummary {
			existingSummaries = append(existingSummaries, msg)
		} else {
			toCompress = append(toCompress, msg)
		}
	}
	if len(toCompress) == 0 {
		m.mu.Unlock()
		return &CompactResult{Reason: "nothing to compress"}
	}

	plannedLen := len(m.messages)
	tail := append([]*domain.Message(nil), m.messages[retainStartIdx:]...)
	m.mu.Unlock()

	m.publish(events.TypeCompactionPlanned, "compaction planned", map[string]any{
		"rounds":           len(rounds),
		"retain_start_idx": retainStartIdx,
	})
	m.publish(events.TypeCompactionCounted, "messages counted", map[string]any{
		"to_compress":        len(toCompress),
		"existing_summaries": len(existingSummaries),
		"retained":           len(tail),
	})

	// The summarizer wait happens outside the lock so monitor reads
	// stay live. The session drives the manager sequentially, but any
	// message appended during the wait is folded into the tail below.
	summary, ok := m.summarize(ctx, toCompress)
	if ok {
		m.publish(events.TypeCompactionSummary, "summary generated", map[string]any{
			"summary_chars": len(summary),
		})
	} else {
		slog.Warn("summarizer unavailable, compacting without summary",
			"dropped_messages", len(toCompress))
		m.publish(events.TypeCompactionDegrade, "summary unavailable, truncating anyway", nil)
	}

	m.mu.Lock()
	// The list can also shrink during the wait (Load replaces it
	// wholesale), so only fold in messages past the planned length.
	if len(m.messages) > plannedLen {
		tail = append(tail, m.messages[plannedLen:]...)
	}
	rebuilt := make([]*domain.Message, 0, len(existingSummaries)+1+len(tail))
	rebuilt = append(rebuilt, existingSummaries...)
	if ok {
		rebuilt = append(rebuilt, newSummaryMessage(summary))
	}
	rebuilt = append(rebuilt, tail...)
	m.messages = rebuilt
	m.mu.Unlock()

	m.publish(events.TypeCompactionDone, "history rebuilt", map[string]any{
		"messages": len(rebuilt),
	})
	m.flushAfterCompaction(ctx)

	return &CompactResult{
		Compacted:        true,
		CompressedCount:  len(toCompress),
		SummaryGenerated: ok,
		RetainedCount:    len(tail),
	}
}

// summarize invokes the summarizer under the configured timeout.
// Returns ("", false) when no summarizer is attached or the call
// failed, timed out, or produced an empty summary.
func (m *Manager) summarize(ctx context.Context, messages []*domain.Message) (string, bool) {
	if m.summarizer == nil {
		return "", false
	}
	summary, err := summarizeBounded(ctx, m.summarizer, messages, m.cfg.SummaryTimeout)
	if err != nil {
		slog.Warn("summarizer failed", "error", err)
		return "", false
	}
	if summary == "" {
		return "", false
	}
	return summary, true
}
