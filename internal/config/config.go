// Package config loads the state directory's config.yml into the
// recognized option tree, falling back to DefaultConfig for anything
// missing, the same viper-backed pattern used for the config file itself
// config file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the full recognized option tree for a state directory.
type Config struct {
	Orchestrator    OrchestratorConfig    `mapstructure:"orchestrator"`
	Memory          MemoryConfig          `mapstructure:"memory"`
	Backpressure    BackpressureConfig    `mapstructure:"backpressure"`
	Background      BackgroundConfig      `mapstructure:"background"`
	StallDetection  StallDetectionConfig  `mapstructure:"stall_detection"`
	Review          ReviewConfig          `mapstructure:"review"`
	QA              QAConfig              `mapstructure:"qa"`
	Worktree        WorktreeConfig        `mapstructure:"worktree"`
	Claude          ClaudeConfig          `mapstructure:"claude"`
}

// OrchestratorConfig bounds the Loop Driver's overall run.
type OrchestratorConfig struct {
	MaxIterations        int `mapstructure:"max_iterations"`
	MaxRuntimeSeconds     int `mapstructure:"max_runtime_seconds"`
	SessionDelaySeconds   int `mapstructure:"session_delay_seconds"`
	SessionTimeoutSeconds int `mapstructure:"session_timeout_seconds"`
}

// MemoryConfig controls the Memory Store's budgeted injection.
type MemoryConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Path      string `mapstructure:"path"`
	MaxTokens int    `mapstructure:"max_tokens"`
}

// BackpressureConfig controls which build.done evidence the Validator requires.
type BackpressureConfig struct {
	RequireTests bool `mapstructure:"require_tests"`
	RequireLint  bool `mapstructure:"require_lint"`
}

// BackgroundConfig names the daemon's pid/log/status files.
type BackgroundConfig struct {
	PIDFile    string `mapstructure:"pid_file"`
	LogFile    string `mapstructure:"log_file"`
	StatusFile string `mapstructure:"status_file"`
}

// StallDetectionConfig tunes the Stall Detector's three predicates.
type StallDetectionConfig struct {
	MaxNoCommitSessions    int     `mapstructure:"max_no_commit_sessions"`
	MaxConsecutiveFailures int     `mapstructure:"max_consecutive_failures"`
	CircularFixThreshold   float64 `mapstructure:"circular_fix_threshold"`
}

// ReviewConfig tunes the Review Sub-loop.
type ReviewConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	PerSubtask bool `mapstructure:"per_subtask"`
	MaxLoops   int  `mapstructure:"max_loops"`
}

// QAConfig tunes the QA Sub-loop.
type QAConfig struct {
	Enabled                 bool `mapstructure:"enabled"`
	PerSubtask               bool `mapstructure:"per_subtask"`
	MaxIterations            int  `mapstructure:"max_iterations"`
	RecurringIssueThreshold int  `mapstructure:"recurring_issue_threshold"`
}

// WorktreeConfig controls the optional worktree-isolation feature.
type WorktreeConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	BasePath string `mapstructure:"base_path"`
}

// ClaudeConfig carries the assistant binary selection, kept from the
// Session Runner's own binary/model selection needs it too.
type ClaudeConfig struct {
	Binary       string   `mapstructure:"binary"`
	Model        string   `mapstructure:"model"`
	AllowedTools []string `mapstructure:"allowed_tools"`
}

// OrchestratorSessionTimeout returns the configured session timeout as a
// time.Duration, for handing to session.Runner.Run.
func (c *Config) OrchestratorSessionTimeout() time.Duration {
	return time.Duration(c.Orchestrator.SessionTimeoutSeconds) * time.Second
}

// OrchestratorSessionDelay returns the configured inter-session delay.
func (c *Config) OrchestratorSessionDelay() time.Duration {
	return time.Duration(c.Orchestrator.SessionDelaySeconds) * time.Second
}

// OrchestratorMaxRuntime returns the configured wall-clock run budget.
func (c *Config) OrchestratorMaxRuntime() time.Duration {
	return time.Duration(c.Orchestrator.MaxRuntimeSeconds) * time.Second
}

// Load reads config.yml from the state directory, falling back to
// DefaultConfig when it does not exist.
func Load(stateDir string) (*Config, error) {
	configPath := filepath.Join(stateDir, "config.yml")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// DefaultConfig returns the documented option defaults.
func DefaultConfig() *Config {
	return &Config{
		Orchestrator: OrchestratorConfig{
			MaxIterations:         0,
			MaxRuntimeSeconds:     0,
			SessionDelaySeconds:   0,
			SessionTimeoutSeconds: 1800,
		},
		Memory: MemoryConfig{
			Enabled:   true,
			Path:      "memories.md",
			MaxTokens: 2000,
		},
		Backpressure: BackpressureConfig{
			RequireTests: true,
			RequireLint:  false,
		},
		Background: BackgroundConfig{
			PIDFile:    "rasen.pid",
			LogFile:    "rasen.log",
			StatusFile: "status.json",
		},
		StallDetection: StallDetectionConfig{
			MaxNoCommitSessions:    3,
			MaxConsecutiveFailures: 5,
			CircularFixThreshold:   0.3,
		},
		Review: ReviewConfig{
			Enabled:    true,
			PerSubtask: true,
			MaxLoops:   3,
		},
		QA: QAConfig{
			Enabled:                 true,
			PerSubtask:               false,
			MaxIterations:            50,
			RecurringIssueThreshold: 3,
		},
		Worktree: WorktreeConfig{
			Enabled:  false,
			BasePath: ".rasen-worktrees",
		},
		Claude: ClaudeConfig{
			Binary: "claude",
			Model:  "sonnet",
			AllowedTools: []string{
				"Read", "Write", "Edit", "Bash", "Glob", "Grep",
			},
		},
	}
}

// WriteDefault writes DefaultConfig() to stateDir's config.yml, the
// starter file `rasen init` leaves for an operator to tune by hand.
func WriteDefault(stateDir string) error {
	return Write(stateDir, DefaultConfig())
}

// Write serializes cfg to stateDir's config.yml, overwriting any existing
// file. Used by `rasen init --worktree` to persist the worktree toggle it
// sets ahead of the first run.
func Write(stateDir string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(stateDir, "config.yml"), data, 0o644)
}

func applyDefaults(cfg *Config) {
	d := DefaultConfig()

	if cfg.Orchestrator.SessionTimeoutSeconds == 0 {
		cfg.Orchestrator.SessionTimeoutSeconds = d.Orchestrator.SessionTimeoutSeconds
	}
	if cfg.Memory.Path == "" {
		cfg.Memory.Path = d.Memory.Path
	}
	if cfg.Memory.MaxTokens == 0 {
		cfg.Memory.MaxTokens = d.Memory.MaxTokens
	}
	if cfg.Background.PIDFile == "" {
		cfg.Background.PIDFile = d.Background.PIDFile
	}
	if cfg.Background.LogFile == "" {
		cfg.Background.LogFile = d.Background.LogFile
	}
	if cfg.Background.StatusFile == "" {
		cfg.Background.StatusFile = d.Background.StatusFile
	}
	if cfg.StallDetection.MaxNoCommitSessions == 0 {
		cfg.StallDetection.MaxNoCommitSessions = d.StallDetection.MaxNoCommitSessions
	}
	if cfg.StallDetection.MaxConsecutiveFailures == 0 {
		cfg.StallDetection.MaxConsecutiveFailures = d.StallDetection.MaxConsecutiveFailures
	}
	if cfg.StallDetection.CircularFixThreshold == 0 {
		cfg.StallDetection.CircularFixThreshold = d.StallDetection.CircularFixThreshold
	}
	if cfg.Review.MaxLoops == 0 {
		cfg.Review.MaxLoops = d.Review.MaxLoops
	}
	if cfg.QA.MaxIterations == 0 {
		cfg.QA.MaxIterations = d.QA.MaxIterations
	}
	if cfg.QA.RecurringIssueThreshold == 0 {
		cfg.QA.RecurringIssueThreshold = d.QA.RecurringIssueThreshold
	}
	if cfg.Worktree.BasePath == "" {
		cfg.Worktree.BasePath = d.Worktree.BasePath
	}
	if cfg.Claude.Binary == "" {
		cfg.Claude.Binary = d.Claude.Binary
	}
	if cfg.Claude.Model == "" {
		cfg.Claude.Model = d.Claude.Model
	}
	if len(cfg.Claude.AllowedTools) == 0 {
		cfg.Claude.AllowedTools = d.Claude.AllowedTools
	}
}
