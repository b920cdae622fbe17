// Package config provides configuration loading for goalguardd.
//
// Configuration is loaded from a YAML file, then overridden by
// environment variables with the GOALGUARD_ prefix, with hardcoded
// defaults filling everything left unset.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/fyrsmithlabs/goalguard/internal/gates"
	"github.com/fyrsmithlabs/goalguard/internal/logging"
	"github.com/fyrsmithlabs/goalguard/internal/orchestrator"
	"github.com/fyrsmithlabs/goalguard/internal/scorecard"
	"github.com/fyrsmithlabs/goalguard/internal/tools"
	"github.com/fyrsmithlabs/goalguard/internal/walkforward"
)

// Config holds the complete goalguardd configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Logging  logging.Config `koanf:"logging"`
	Store    StoreConfig    `koanf:"store"`
	Workflow WorkflowConfig `koanf:"workflow"`
	Gates    GatesConfig    `koanf:"gates"`
	Tools    ToolsConfig    `koanf:"tools"`
	Runs     RunsConfig     `koanf:"runs"`
}

// ServerConfig holds the ops HTTP server configuration.
type ServerConfig struct {
	Port            int           `koanf:"http_port"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// StoreConfig holds the audit store configuration.
type StoreConfig struct {
	// Path is the SQLite database file. Empty disables persistence.
	Path string `koanf:"path"`
}

// WorkflowConfig holds the per-run orchestration settings.
type WorkflowConfig struct {
	MaxReflexionRetries int           `koanf:"max_reflexion_retries"`
	ToolTimeout         time.Duration `koanf:"tool_timeout"`
	DeterminismRuns     int           `koanf:"determinism_runs"`
}

// GatesConfig holds the gate batteries' settings.
type GatesConfig struct {
	EnableWalkForward bool                 `koanf:"enable_walk_forward"`
	MaxDrawdownLimit  float64              `koanf:"max_drawdown_limit"`
	WalkForward       walkforward.Config   `koanf:"walk_forward"`
	Thresholds        scorecard.Thresholds `koanf:"thresholds"`
}

// ToolsConfig holds the external tool command table.
type ToolsConfig struct {
	Commands map[string]string `koanf:"commands"`
}

// RunsConfig holds process-level run scheduling settings.
type RunsConfig struct {
	// MaxConcurrent bounds the number of goal runs in flight at once.
	MaxConcurrent int `koanf:"max_concurrent"`
}

// Default returns the complete default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            9090,
			ShutdownTimeout: 10 * time.Second,
		},
		Logging: logging.DefaultConfig(),
		Workflow: WorkflowConfig{
			MaxReflexionRetries: 3,
			ToolTimeout:         5 * time.Minute,
			DeterminismRuns:     2,
		},
		Gates: GatesConfig{
			EnableWalkForward: false,
			MaxDrawdownLimit:  0.25,
			WalkForward:       walkforward.DefaultConfig(),
			Thresholds:        scorecard.DefaultThresholds(),
		},
		Runs: RunsConfig{
			MaxConcurrent: 4,
		},
	}
}

// applyDefaults fills zero values with defaults after unmarshaling.
func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.Server.Port == 0 {
		cfg.Server.Port = def.Server.Port
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = def.Server.ShutdownTimeout
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = def.Logging.Level
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = def.Logging.Format
	}
	if cfg.Workflow.MaxReflexionRetries == 0 {
		cfg.Workflow.MaxReflexionRetries = def.Workflow.MaxReflexionRetries
	}
	if cfg.Workflow.ToolTimeout == 0 {
		cfg.Workflow.ToolTimeout = def.Workflow.ToolTimeout
	}
	if cfg.Workflow.DeterminismRuns == 0 {
		cfg.Workflow.DeterminismRuns = def.Workflow.DeterminismRuns
	}
	if cfg.Gates.MaxDrawdownLimit == 0 {
		cfg.Gates.MaxDrawdownLimit = def.Gates.MaxDrawdownLimit
	}
	if cfg.Gates.WalkForward.TrainRatio == 0 && cfg.Gates.WalkForward.TestRatio == 0 {
		cfg.Gates.WalkForward = def.Gates.WalkForward
	}
	if cfg.Gates.Thresholds.Green == 0 && cfg.Gates.Thresholds.Amber == 0 {
		cfg.Gates.Thresholds = def.Gates.Thresholds
	}
	if cfg.Runs.MaxConcurrent == 0 {
		cfg.Runs.MaxConcurrent = def.Runs.MaxConcurrent
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	if c.Workflow.MaxReflexionRetries < 1 {
		return errors.New("max_reflexion_retries must be at least 1")
	}
	if c.Workflow.ToolTimeout <= 0 {
		return errors.New("tool_timeout must be positive")
	}
	if c.Gates.MaxDrawdownLimit <= 0 || c.Gates.MaxDrawdownLimit > 1 {
		return fmt.Errorf("max_drawdown_limit %.4f out of range (0, 1]", c.Gates.MaxDrawdownLimit)
	}
	wf := c.Gates.WalkForward
	if wf.TrainRatio <= 0 || wf.TestRatio <= 0 {
		return errors.New("walk_forward ratios must be positive")
	}
	if wf.GapFraction < 0 {
		return errors.New("walk_forward gap_fraction must not be negative")
	}
	if sum := wf.TrainRatio + wf.TestRatio + wf.GapFraction; sum > 1.0+1e-9 {
		return fmt.Errorf("walk_forward ratios sum to %.4f, must not exceed 1.0", sum)
	}
	if wf.NumWindows < 1 {
		return errors.New("walk_forward num_windows must be at least 1")
	}
	if c.Gates.Thresholds.Amber >= c.Gates.Thresholds.Green {
		return fmt.Errorf("scorecard amber threshold %.1f must be below green %.1f",
			c.Gates.Thresholds.Amber, c.Gates.Thresholds.Green)
	}
	if c.Runs.MaxConcurrent < 1 {
		return errors.New("runs max_concurrent must be at least 1")
	}
	return nil
}

// Orchestrator maps the loaded configuration onto the controller's
// read-only config.
func (c *Config) Orchestrator() orchestrator.Config {
	return orchestrator.Config{
		MaxRetries:      c.Workflow.MaxReflexionRetries,
		ToolTimeout:     c.Workflow.ToolTimeout,
		DeterminismRuns: c.Workflow.DeterminismRuns,
		Product: gates.ProductConfig{
			EnableWalkForward: c.Gates.EnableWalkForward,
			MaxDrawdownLimit:  c.Gates.MaxDrawdownLimit,
			WalkForward:       c.Gates.WalkForward,
		},
		Profile:    scorecard.DefaultProfile(),
		Thresholds: c.Gates.Thresholds,
	}
}

// Exec maps the tool command table onto the exec invoker config.
func (c *Config) Exec() tools.ExecConfig {
	return tools.ExecConfig{Commands: c.Tools.Commands}
}
