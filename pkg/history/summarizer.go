package history

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chisel-dev/chisel/pkg/domain"
	"github.com/chisel-dev/chisel/pkg/model"
)

// Summarizer condenses a message range into a summary string.
type Summarizer interface {
	Summarize(ctx context.Context, messages []*domain.Message) (string, error)
}

// summarizeBounded runs the summarizer on a worker goroutine and waits
// at most timeout. Cancellation is signaled through the context but not
// guaranteed; a stuck summarizer goroutine is abandoned.
func summarizeBounded(ctx context.Context, s Summarizer, messages []*domain.Message, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		summary string
		err     error
	}
	done := make(chan result, 1)
	go func() {
		summary, err := s.Summarize(ctx, messages)
		done <- result{summary, err}
	}()

	select {
	case r := <-done:
		return r.summary, r.err
	case <-ctx.Done():
		return "", fmt.Errorf("summarizer: %w", ctx.Err())
	}
}

func newSummaryMessage(content string) *domain.Message {
	return &domain.Message{
		ID:        uuid.New().String(),
		Role:      domain.RoleSummary,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

const summarizerInstructions = "You are a conversation summarizer."

const summaryPrompt = `You are summarizing a conversation history for context compaction. Create a dense, comprehensive summary of the following conversation that preserves:
- Key decisions and outcomes
- Important code/files that were created or modified
- Current state of any ongoing tasks
- Any instructions or preferences the user expressed

Be thorough but concise. This summary will replace the original messages.

CONVERSATION TO SUMMARIZE:
`

// ModelSummarizer generates summaries through a model provider.
type ModelSummarizer struct {
	provider  model.Provider
	modelName string
	maxTokens int
}

// NewModelSummarizer creates a summarizer backed by provider.
func NewModelSummarizer(provider model.Provider, modelName string, maxTokens int) *ModelSummarizer {
	return &ModelSummarizer{provider: provider, modelName: modelName, maxTokens: maxTokens}
}

func (s *ModelSummarizer) Summarize(ctx context.Context, messages []*domain.Message) (string, error) {
	var b strings.Builder
	b.WriteString(summaryPrompt)
	for _, msg := range messages {
		fmt.Fprintf(&b, "[%s] %s\n", msg.Role, msg.Content)
	}

	prompt := &domain.Message{Role: domain.RoleUser, Content: b.String()}
	resp, err := s.provider.Complete(ctx, &model.Request{
		Model:        s.modelName,
		Instructions: summarizerInstructions,
		Messages:     []*domain.Message{prompt},
		MaxTokens:    s.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("generating summary: %w", err)
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", fmt.Errorf("model returned empty summary")
	}
	return resp.Content, nil
}
