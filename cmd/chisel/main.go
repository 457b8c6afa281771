// Command chisel is an LLM coding agent. The default command opens a
// chat TUI; `exec` runs a single prompt to completion; `serve` exposes
// the monitor API for a session.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/chisel-dev/chisel/pkg/agent"
	"github.com/chisel-dev/chisel/pkg/config"
	"github.com/chisel-dev/chisel/pkg/events"
	"github.com/chisel-dev/chisel/pkg/history"
	"github.com/chisel-dev/chisel/pkg/model"
	"github.com/chisel-dev/chisel/pkg/model/auto"
	"github.com/chisel-dev/chisel/pkg/model/gemini"
	"github.com/chisel-dev/chisel/pkg/persist"
	persistjsonl "github.com/chisel-dev/chisel/pkg/persist/jsonl"
	persistsqlite "github.com/chisel-dev/chisel/pkg/persist/sqlite"
	"github.com/chisel-dev/chisel/pkg/sandbox"
	sandboxdocker "github.com/chisel-dev/chisel/pkg/sandbox/docker"
	"github.com/chisel-dev/chisel/pkg/tool"
	"github.com/chisel-dev/chisel/pkg/tool/fs"
	"github.com/chisel-dev/chisel/pkg/tool/shell"
	"github.com/chisel-dev/chisel/pkg/truncate"
)

func main() {
	root := &cobra.Command{
		Use:   "chisel",
		Short: "LLM coding agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd.Context())
		},
	}
	root.AddCommand(newExecCmd(), newServeCmd())

	ctx := context.Background()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// session bundles everything one agent session needs.
type session struct {
	id       string
	cfg      *config.Config
	agent    *agent.Agent
	bus      *events.Bus
	sandbox  sandbox.Manager
	snapshot persist.Snapshotter
}

// newSession wires a session from the configuration: truncator, tools,
// sandbox, provider, summarizer, history, and optional snapshot store.
func newSession(ctx context.Context) (*session, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	initLogging()

	root, err := filepath.Abs(cfg.ProjectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolving project root: %w", err)
	}

	sessionID := uuid.New().String()
	bus := events.NewBus()

	truncator := truncate.New(truncate.Config{
		MaxLines:  cfg.TruncateMaxLines,
		MaxBytes:  cfg.TruncateMaxBytes,
		Direction: cfg.TruncateDirection,
	}, root)

	var sb sandbox.Manager
	if cfg.Sandbox == "docker" {
		sb, err = sandboxdocker.New(cfg.SandboxImage, root)
		if err != nil {
			return nil, fmt.Errorf("initializing docker sandbox: %w", err)
		}
	} else {
		sb = sandbox.NewLocal(root)
	}

	registry := tool.NewRegistry(cfg.ToolTimeout)
	if err := fs.New(root).Register(registry); err != nil {
		return nil, err
	}
	if err := registry.Register(shell.New(sb, sessionID)); err != nil {
		return nil, err
	}

	provider, err := auto.FromEnv(ctx)
	if err != nil {
		return nil, err
	}
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultModel(provider)
	}

	summarizer := history.NewModelSummarizer(provider, modelName, cfg.MaxTokens)
	hist := history.New(history.Config{
		ContextWindow:        cfg.ContextWindow,
		CompressionThreshold: cfg.CompressionThreshold,
		MinRetainRounds:      cfg.MinRetainRounds,
		SummaryTimeout:       cfg.SummaryTimeout,
	}, truncator, summarizer, bus)

	snapshot, err := newSnapshotter(cfg)
	if err != nil {
		return nil, err
	}
	if snapshot != nil {
		hist.SetFlusher(snapshot)
		if messages, err := snapshot.Load(ctx); err != nil {
			slog.Warn("could not load session snapshot", "error", err)
		} else if len(messages) > 0 {
			hist.Load(messages)
			slog.Info("resumed session from snapshot", "messages", len(messages))
		}
	}

	ag := agent.New(agent.Config{
		Model:     modelName,
		MaxTokens: cfg.MaxTokens,
		MaxTurns:  cfg.MaxTurns,
	}, hist, provider, registry, bus)

	return &session{
		id:       sessionID,
		cfg:      cfg,
		agent:    ag,
		bus:      bus,
		sandbox:  sb,
		snapshot: snapshot,
	}, nil
}

func (s *session) close(ctx context.Context) {
	if err := s.sandbox.Stop(ctx, s.id); err != nil {
		slog.Debug("stopping sandbox", "error", err)
	}
	if err := s.sandbox.Close(); err != nil {
		slog.Debug("closing sandbox manager", "error", err)
	}
	if s.snapshot != nil {
		if err := s.snapshot.Close(); err != nil {
			slog.Debug("closing snapshot store", "error", err)
		}
	}
}

func newSnapshotter(cfg *config.Config) (persist.Snapshotter, error) {
	switch cfg.Persist {
	case "", "off":
		return nil, nil
	case "jsonl":
		return persistjsonl.New(cfg.PersistPath + ".jsonl"), nil
	case "sqlite":
		return persistsqlite.New(cfg.PersistPath + ".db")
	default:
		return nil, fmt.Errorf("unknown persist mode %q", cfg.Persist)
	}
}

func defaultModel(p model.Provider) string {
	if p.Name() == "anthropic" {
		return "claude-sonnet-4-5"
	}
	return "gemini-2.0-flash"
}

func initLogging() {
	logLevel := slog.LevelInfo
	if lv := os.Getenv("LOG_LEVEL"); lv != "" {
		switch strings.ToUpper(lv) {
		case "TRACE":
			logLevel = gemini.LevelTrace
		case "DEBUG":
			logLevel = slog.LevelDebug
		case "WARN":
			logLevel = slog.LevelWarn
		case "ERROR":
			logLevel = slog.LevelError
		}
	}

	// The TUI owns stdout, so diagnostics go to a file.
	f, err := os.OpenFile("chisel.log", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))
		return
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: logLevel})))
}
