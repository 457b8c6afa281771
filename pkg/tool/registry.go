package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Registry holds the tools available to a session and dispatches calls
// to them under a per-call timeout.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	usage   map[string]int
	timeout time.Duration
}

// NewRegistry creates an empty registry. timeout bounds each Execute
// call; zero means no bound.
func NewRegistry(timeout time.Duration) *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		usage:   make(map[string]int),
		timeout: timeout,
	}
}

// Register adds a tool after validating its schema.
func (r *Registry) Register(t Tool) error {
	if t.Name() == "" {
		return errors.New("tool has empty name")
	}
	if s := t.InputSchema(); s.Type != "object" {
		return fmt.Errorf("tool %q: input schema type must be \"object\", got %q", t.Name(), s.Type)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; exists {
		return fmt.Errorf("tool %q already registered", t.Name())
	}
	r.tools[t.Name()] = t
	return nil
}

// Get returns a registered tool.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make([]Tool, 0, len(names))
	for _, name := range names {
		out = append(out, r.tools[name])
	}
	return out
}

// Usage returns a copy of the per-tool invocation counters.
func (r *Registry) Usage() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(r.usage))
	for k, v := range r.usage {
		out[k] = v
	}
	return out
}

// Execute runs the named tool. Unknown tools, panics, and timeouts all
// come back as error envelopes; the caller never sees a Go error. The
// returned envelope always carries stats.time_ms.
func (r *Registry) Execute(ctx context.Context, name string, input json.RawMessage) *Envelope {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()

	start := time.Now()
	if !ok {
		return stamp(Errorf(CodeNotFound, "unknown tool: %s", name), start)
	}

	r.mu.Lock()
	r.usage[name]++
	r.mu.Unlock()

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	done := make(chan *Envelope, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- Errorf(CodeInternalError, "tool %s panicked: %v", name, rec)
			}
		}()
		done <- t.Execute(ctx, input)
	}()

	select {
	case env := <-done:
		if env == nil {
			env = Errorf(CodeInternalError, "tool %s returned nil envelope", name)
		}
		return stamp(env, start)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return stamp(Errorf(CodeTimeout, "tool %s timed out after %s", name, r.timeout), start)
		}
		return stamp(Errorf(CodeExecutionError, "tool %s canceled: %v", name, ctx.Err()), start)
	}
}

func stamp(env *Envelope, start time.Time) *Envelope {
	env.Stats = &Stats{TimeMS: time.Since(start).Milliseconds()}
	return env
}
