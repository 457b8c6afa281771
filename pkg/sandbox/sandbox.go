// Package sandbox defines the shell execution boundary for the bash
// tool.
package sandbox

import (
	"context"
	"time"
)

// Result is the outcome of one command execution.
type Result struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

// Manager runs shell commands for a session. Implementations own the
// lifecycle of whatever isolation they provide.
type Manager interface {
	// Exec runs command in the session's environment, bounded by
	// timeout when positive.
	Exec(ctx context.Context, sessionID, command string, timeout time.Duration) (*Result, error)

	// Stop tears down the session's environment.
	Stop(ctx context.Context, sessionID string) error

	// Close releases resources held by the manager.
	Close() error
}
