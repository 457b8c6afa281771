package events

import (
	"sync"
	"time"
)

// Event is a progress or diagnostic notification emitted by the agent
// internals. Consumers include the monitor websocket and the TUI.
type Event struct {
	Type    string         `json:"type"`
	Message string         `json:"message,omitempty"`
	Fields  map[string]any `json:"fields,omitempty"`
	Time    time.Time      `json:"time"`
}

// Well-known event types.
const (
	TypeTurnStarted       = "turn.started"
	TypeTurnFinished      = "turn.finished"
	TypeToolStarted       = "tool.started"
	TypeToolFinished      = "tool.finished"
	TypeCompactionPlanned = "compaction.planned"
	TypeCompactionCounted = "compaction.counted"
	TypeCompactionSummary = "compaction.summarized"
	TypeCompactionDone    = "compaction.rebuilt"
	TypeCompactionDegrade = "compaction.degraded"
)

// Bus fans events out to subscribers. Publish never blocks; a subscriber
// whose channel is full misses the event.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[chan Event]struct{})}
}

// Subscribe returns a buffered channel of events. Call the returned
// cancel func to unsubscribe.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber that has buffer space.
func (b *Bus) Publish(typ, msg string, fields map[string]any) {
	e := Event{Type: typ, Message: msg, Fields: fields, Time: time.Now()}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Slow subscriber, drop.
		}
	}
}
