// Package config provides configuration management for the Locus agent.
// Precedence: CLI flags (bound by the caller) → LOCUS_* environment
// variables → .locus/config.json → defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/locusai/locus-agent/internal/common/logger"
)

// Config holds all configuration sections for the agent.
type Config struct {
	API       APIConfig            `mapstructure:"api"`
	Workspace WorkspaceConfig      `mapstructure:"workspace"`
	Agent     AgentConfig          `mapstructure:"agent"`
	Logging   logger.LoggingConfig `mapstructure:"logging"`
}

// APIConfig holds Locus server connection configuration.
type APIConfig struct {
	URL     string `mapstructure:"url"`
	Key     string `mapstructure:"key"`
	Timeout int    `mapstructure:"timeout"` // in seconds, for non-LLM calls
}

// TimeoutDuration returns the API timeout as a time.Duration.
func (a *APIConfig) TimeoutDuration() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}

// WorkspaceConfig identifies the server-side workspace and optional sprint.
type WorkspaceConfig struct {
	ID       string `mapstructure:"id"`
	SprintID string `mapstructure:"sprintId"`
}

// AgentConfig holds worker runtime configuration.
type AgentConfig struct {
	// AnthropicAPIKey enables the cache-capable Messages API generator.
	// When empty the worker falls back to the Claude CLI runner only.
	AnthropicAPIKey string `mapstructure:"anthropicApiKey"`

	// Model overrides the default model identifier for API-based generation.
	Model string `mapstructure:"model"`

	// ProjectPath is the root of the source tree the agent operates on.
	ProjectPath string `mapstructure:"projectPath"`

	// WorkerCount is the number of worker processes the orchestrator spawns.
	WorkerCount int `mapstructure:"workerCount"`

	// PollInterval is the sleep between empty dispatches, in seconds.
	PollInterval int `mapstructure:"pollInterval"`

	// MaxTasks drains a worker after this many completed tasks.
	MaxTasks int `mapstructure:"maxTasks"`

	// MaxEmptyPolls drains a worker after this many consecutive empty polls.
	MaxEmptyPolls int `mapstructure:"maxEmptyPolls"`
}

// PollIntervalDuration returns the poll interval as a time.Duration.
func (a *AgentConfig) PollIntervalDuration() time.Duration {
	return time.Duration(a.PollInterval) * time.Second
}

// setDefaults configures default values for all configuration options.
func setDefaults(v *viper.Viper) {
	v.SetDefault("api.url", "https://api.locus.dev")
	v.SetDefault("api.key", "")
	v.SetDefault("api.timeout", 10)

	v.SetDefault("workspace.id", "")
	v.SetDefault("workspace.sprintId", "")

	v.SetDefault("agent.anthropicApiKey", "")
	v.SetDefault("agent.model", "")
	v.SetDefault("agent.projectPath", ".")
	v.SetDefault("agent.workerCount", 1)
	v.SetDefault("agent.pollInterval", 10)
	v.SetDefault("agent.maxTasks", 50)
	v.SetDefault("agent.maxEmptyPolls", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "")
	v.SetDefault("logging.outputPath", "stderr")
}

// Load reads configuration from environment variables, the project's
// .locus/config.json, and defaults.
func Load() (*Config, error) {
	return LoadWithPath(".")
}

// LoadWithPath reads configuration rooted at the given project directory.
func LoadWithPath(projectPath string) (*Config, error) {
	v := New(projectPath)

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg, err := Unmarshal(v)
	if err != nil {
		return nil, err
	}
	if cfg.Agent.ProjectPath == "" || cfg.Agent.ProjectPath == "." {
		cfg.Agent.ProjectPath = projectPath
	}
	return cfg, nil
}

// New returns a viper instance preconfigured with Locus defaults, env
// bindings, and the .locus/config.json search path. Callers may bind CLI
// flags onto it before reading.
func New(projectPath string) *viper.Viper {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("LOCUS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// AutomaticEnv does not map camelCase config keys to SNAKE_CASE env
	// vars, so bind the documented variables explicitly.
	_ = v.BindEnv("api.key", "LOCUS_API_KEY")
	_ = v.BindEnv("api.url", "LOCUS_API_URL")
	_ = v.BindEnv("workspace.id", "LOCUS_WORKSPACE_ID")
	_ = v.BindEnv("workspace.sprintId", "LOCUS_SPRINT_ID")
	_ = v.BindEnv("agent.anthropicApiKey", "ANTHROPIC_API_KEY")
	_ = v.BindEnv("agent.model", "LOCUS_MODEL")

	v.SetConfigName("config")
	v.SetConfigType("json")
	if projectPath != "" {
		v.AddConfigPath(projectPath + "/.locus")
	}
	v.AddConfigPath("./.locus")

	return v
}

// Unmarshal decodes and validates a populated viper instance.
func Unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// validate checks ranges on numeric knobs. Credentials are validated by the
// commands that need them so that `locus init` and `locus index` work
// without server access.
func validate(cfg *Config) error {
	var errs []string

	if cfg.API.Timeout <= 0 {
		errs = append(errs, "api.timeout must be positive")
	}
	if cfg.Agent.WorkerCount <= 0 {
		errs = append(errs, "agent.workerCount must be positive")
	}
	if cfg.Agent.PollInterval <= 0 {
		errs = append(errs, "agent.pollInterval must be positive")
	}
	if cfg.Agent.MaxTasks <= 0 {
		errs = append(errs, "agent.maxTasks must be positive")
	}
	if cfg.Agent.MaxEmptyPolls <= 0 {
		errs = append(errs, "agent.maxEmptyPolls must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}
