// Package history owns the conversation message list: appends, round
// identification, token estimation, and compaction.
package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chisel-dev/chisel/pkg/domain"
	"github.com/chisel-dev/chisel/pkg/events"
	"github.com/chisel-dev/chisel/pkg/truncate"
)

const (
	DefaultContextWindow        = 128000
	DefaultCompressionThreshold = 0.8
	DefaultMinRetainRounds      = 10
	DefaultSummaryTimeout       = 120 * time.Second
)

// Config tunes the compaction trigger and retention floor.
type Config struct {
	ContextWindow        int
	CompressionThreshold float64
	MinRetainRounds      int
	SummaryTimeout       time.Duration
}

// DefaultConfig returns the standard compaction settings.
func DefaultConfig() Config {
	return Config{
		ContextWindow:        DefaultContextWindow,
		CompressionThreshold: DefaultCompressionThreshold,
		MinRetainRounds:      DefaultMinRetainRounds,
		SummaryTimeout:       DefaultSummaryTimeout,
	}
}

// Flusher persists a snapshot of the message list. Satisfied by the
// persist package's snapshot stores.
type Flusher interface {
	Save(ctx context.Context, messages []*domain.Message) error
}

// Manager is the message store. A session owns exactly one Manager and
// drives it sequentially; the mutex exists so the monitor server can
// read concurrently.
type Manager struct {
	mu         sync.RWMutex
	messages   []*domain.Message
	cfg        Config
	truncator  *truncate.Truncator
	summarizer Summarizer
	bus        *events.Bus
	flusher    Flusher
}

// New creates a Manager. truncator and bus are required; summarizer may
// be nil (compaction then always degrades to truncation-only).
func New(cfg Config, truncator *truncate.Truncator, summarizer Summarizer, bus *events.Bus) *Manager {
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = DefaultContextWindow
	}
	if cfg.CompressionThreshold <= 0 {
		cfg.CompressionThreshold = DefaultCompressionThreshold
	}
	if cfg.MinRetainRounds <= 0 {
		cfg.MinRetainRounds = DefaultMinRetainRounds
	}
	if cfg.SummaryTimeout <= 0 {
		cfg.SummaryTimeout = DefaultSummaryTimeout
	}
	return &Manager{
		cfg:        cfg,
		truncator:  truncator,
		summarizer: summarizer,
		bus:        bus,
	}
}

// SetFlusher attaches an optional snapshot store. The manager flushes
// after compaction; callers may flush at other times via Flush.
func (m *Manager) SetFlusher(f Flusher) {
	m.mu.Lock()
	m.flusher = f
	m.mu.Unlock()
}

// Load replaces the message list, e.g. when resuming a session from a
// snapshot.
func (m *Manager) Load(messages []*domain.Message) {
	m.mu.Lock()
	m.messages = append([]*domain.Message(nil), messages...)
	m.mu.Unlock()
}

// AppendUser appends a user message.
func (m *Manager) AppendUser(content string, metadata map[string]any) *domain.Message {
	return m.append(domain.RoleUser, content, metadata)
}

// AppendAssistant appends an assistant message. reasoning, when
// non-empty, is stored in metadata alongside any tool calls.
func (m *Manager) AppendAssistant(content string, metadata map[string]any, reasoning string) *domain.Message {
	if reasoning != "" {
		if metadata == nil {
			metadata = make(map[string]any)
		}
		metadata[domain.MetaReasoning] = reasoning
	}
	return m.append(domain.RoleAssistant, content, metadata)
}

// AppendTool appends a tool observation. rawResult is the serialized
// envelope; it passes through the truncator before storage.
func (m *Manager) AppendTool(toolName, rawResult string, metadata map[string]any) *domain.Message {
	if m.truncator != nil {
		rawResult = m.truncator.Truncate(toolName, rawResult)
	}
	if metadata == nil {
		metadata = make(map[string]any)
	}
	metadata[domain.MetaToolName] = toolName
	return m.append(domain.RoleTool, rawResult, metadata)
}

// AppendSummary appends a compaction summary message.
func (m *Manager) AppendSummary(content string) *domain.Message {
	return m.append(domain.RoleSummary, content, nil)
}

func (m *Manager) append(role domain.Role, content string, metadata map[string]any) *domain.Message {
	msg := &domain.Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Metadata:  metadata,
		CreatedAt: time.Now(),
	}
	m.mu.Lock()
	m.messages = append(m.messages, msg)
	m.mu.Unlock()
	return msg
}

// Messages returns a copy of the message list.
func (m *Manager) Messages() []*domain.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]*domain.Message(nil), m.messages...)
}

// Len returns the number of stored messages.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.messages)
}

// Flush writes a snapshot through the attached flusher, if any.
func (m *Manager) Flush(ctx context.Context) error {
	m.mu.RLock()
	f := m.flusher
	msgs := append([]*domain.Message(nil), m.messages...)
	m.mu.RUnlock()
	if f == nil {
		return nil
	}
	return f.Save(ctx, msgs)
}

func (m *Manager) publish(typ, msg string, fields map[string]any) {
	if m.bus != nil {
		m.bus.Publish(typ, msg, fields)
	}
}

func (m *Manager) flushAfterCompaction(ctx context.Context) {
	if err := m.Flush(ctx); err != nil {
		slog.Warn("snapshot flush after compaction failed", "error", err)
	}
}
