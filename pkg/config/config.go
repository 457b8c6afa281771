// Package config loads the application configuration: defaults, then an
// optional chisel.yaml, then CHISEL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full application configuration.
type Config struct {
	// History & compaction.
	ContextWindow        int           `mapstructure:"context_window"`
	CompressionThreshold float64       `mapstructure:"compression_threshold"`
	MinRetainRounds      int           `mapstructure:"min_retain_rounds"`
	SummaryTimeout       time.Duration `mapstructure:"summary_timeout"`

	// Observation truncation.
	TruncateMaxLines  int    `mapstructure:"truncate_max_lines"`
	TruncateMaxBytes  int    `mapstructure:"truncate_max_bytes"`
	TruncateDirection string `mapstructure:"truncate_direction"`

	// Model.
	Model     string `mapstructure:"model"`
	MaxTokens int    `mapstructure:"max_tokens"`

	// Session.
	MaxTurns    int           `mapstructure:"max_turns"`
	ToolTimeout time.Duration `mapstructure:"tool_timeout"`
	ProjectRoot string        `mapstructure:"project_root"`

	// Sandbox: "local" or "docker".
	Sandbox      string `mapstructure:"sandbox"`
	SandboxImage string `mapstructure:"sandbox_image"`

	// Persistence: "off", "jsonl", or "sqlite".
	Persist     string `mapstructure:"persist"`
	PersistPath string `mapstructure:"persist_path"`

	// Monitor server.
	ServerAddr string `mapstructure:"server_addr"`
}

// Load reads configuration from defaults, an optional config file, and
// the environment. A .env file in the working directory is loaded first
// so API keys can live there.
func Load() (*Config, error) {
	// Missing .env is fine.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("chisel")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetDefault("context_window", 128000)
	v.SetDefault("compression_threshold", 0.8)
	v.SetDefault("min_retain_rounds", 10)
	v.SetDefault("summary_timeout", 120*time.Second)
	v.SetDefault("truncate_max_lines", 2000)
	v.SetDefault("truncate_max_bytes", 51200)
	v.SetDefault("truncate_direction", "head")
	v.SetDefault("model", "")
	v.SetDefault("max_tokens", 8192)
	v.SetDefault("max_turns", 40)
	v.SetDefault("tool_timeout", 60*time.Second)
	v.SetDefault("project_root", ".")
	v.SetDefault("sandbox", "local")
	v.SetDefault("sandbox_image", "")
	v.SetDefault("persist", "off")
	v.SetDefault("persist_path", ".chisel/session")
	v.SetDefault("server_addr", "127.0.0.1:8420")

	v.SetEnvPrefix("CHISEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &cfg, nil
}
