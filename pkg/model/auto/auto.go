// Package auto selects a model provider from the environment.
package auto

import (
	"context"
	"fmt"
	"os"

	"github.com/chisel-dev/chisel/pkg/model"
	"github.com/chisel-dev/chisel/pkg/model/anthropic"
	"github.com/chisel-dev/chisel/pkg/model/gemini"
)

// FromEnv returns the Anthropic provider when ANTHROPIC_API_KEY is set,
// otherwise the Gemini provider via GEMINI_API_KEY.
func FromEnv(ctx context.Context) (model.Provider, error) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		return anthropic.New(key), nil
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		return gemini.New(ctx, key)
	}
	return nil, fmt.Errorf("no model provider configured: set ANTHROPIC_API_KEY or GEMINI_API_KEY")
}
