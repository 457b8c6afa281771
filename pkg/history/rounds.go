package history

import "github.com/chisel-dev/chisel/pkg/domain"

// Rounds partitions the message list into conversational rounds. A
// round opens at a user message and closes at the last non-summary
// message before the next user message (or the end of the list).
// Summary messages belong to no round. Zero user messages means zero
// rounds.
func (m *Manager) Rounds() []domain.Round {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return identifyRounds(m.messages)
}

// RoundsCount returns len(Rounds()).
func (m *Manager) RoundsCount() int {
	return len(m.Rounds())
}

func identifyRounds(messages []*domain.Message) []domain.Round {
	var rounds []domain.Round
	openStart := -1
	lastNonSummary := -1

	for i, msg := range messages {
		if msg.Role == domain.RoleSummary {
			continue
		}
		if msg.Role == domain.RoleUser {
			if openStart >= 0 {
				rounds = append(rounds, domain.Round{Start: openStart, End: lastNonSummary})
			}
			openStart = i
		}
		lastNonSummary = i
	}
	if openStart >= 0 {
		rounds = append(rounds, domain.Round{Start: openStart, End: lastNonSummary})
	}
	return rounds
}
