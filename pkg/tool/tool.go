package tool

import (
	"context"
	"encoding/json"
)

// Tool is a capability the model can invoke. Implementations report
// failures through error envelopes, not Go errors.
type Tool interface {
	Name() string
	Description() string
	InputSchema() Schema
	Execute(ctx context.Context, input json.RawMessage) *Envelope
}

// Schema is a JSON-schema subset describing a tool's input object.
type Schema struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties,omitempty"`
	Required   []string            `json:"required,omitempty"`
}

// Property describes one input field.
type Property struct {
	Type        string              `json:"type"`
	Description string              `json:"description,omitempty"`
	Enum        []string            `json:"enum,omitempty"`
	Items       *Property           `json:"items,omitempty"`
	Properties  map[string]Property `json:"properties,omitempty"`
	Minimum     *float64            `json:"minimum,omitempty"`
	Maximum     *float64            `json:"maximum,omitempty"`
}

// Func adapts a function to the Tool interface.
type Func struct {
	name        string
	description string
	schema      Schema
	fn          func(ctx context.Context, input json.RawMessage) *Envelope
}

// NewFunc creates a Tool backed by fn.
func NewFunc(name, description string, schema Schema, fn func(ctx context.Context, input json.RawMessage) *Envelope) *Func {
	return &Func{name: name, description: description, schema: schema, fn: fn}
}

func (f *Func) Name() string        { return f.name }
func (f *Func) Description() string { return f.description }
func (f *Func) InputSchema() Schema { return f.schema }

func (f *Func) Execute(ctx context.Context, input json.RawMessage) *Envelope {
	return f.fn(ctx, input)
}
