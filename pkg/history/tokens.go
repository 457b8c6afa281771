package history

import (
	"encoding/json"

	"github.com/chisel-dev/chisel/pkg/domain"
)

// charsPerToken is the fixed divisor of the estimation heuristic. It is
// a rough proxy, not a tokenizer; callers use the estimate only for
// threshold comparisons, never as a hard limit.
const charsPerToken = 3

// EstimateContextTokens approximates the token count of the stored
// messages plus a pending input.
func (m *Manager) EstimateContextTokens(pending string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return estimateTokens(m.messages, pending)
}

// ShouldCompress reports whether appending pending would push the
// estimated context past the compression threshold. Near-empty
// sessions (fewer than 3 messages) are never compressed.
func (m *Manager) ShouldCompress(pending string) bool {
	m.mu.RLock()
	count := len(m.messages)
	estimate := estimateTokens(m.messages, pending)
	m.mu.RUnlock()

	if count < 3 {
		return false
	}
	limit := float64(m.cfg.ContextWindow) * m.cfg.CompressionThreshold
	return float64(estimate) >= limit
}

func estimateTokens(messages []*domain.Message, pending string) int {
	chars := len(pending)
	for _, msg := range messages {
		chars += len(msg.Content)
		chars += len(msg.ToolName())
		if calls := msg.ToolCalls(); len(calls) > 0 {
			if b, err := json.Marshal(calls); err == nil {
				chars += len(b)
			}
		}
	}
	return chars / charsPerToken
}
