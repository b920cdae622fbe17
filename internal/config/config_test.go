package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 3, cfg.Workflow.MaxReflexionRetries)
	assert.Equal(t, 5*time.Minute, cfg.Workflow.ToolTimeout)
	assert.False(t, cfg.Gates.EnableWalkForward)
	assert.InDelta(t, 0.25, cfg.Gates.MaxDrawdownLimit, 1e-9)
	assert.InDelta(t, 0.7, cfg.Gates.WalkForward.TrainRatio, 1e-9)
	assert.Equal(t, 3, cfg.Gates.WalkForward.NumWindows)
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"huge port", func(c *Config) { c.Server.Port = 70000 }},
		{"no shutdown timeout", func(c *Config) { c.Server.ShutdownTimeout = 0 }},
		{"zero retries", func(c *Config) { c.Workflow.MaxReflexionRetries = 0 }},
		{"no tool timeout", func(c *Config) { c.Workflow.ToolTimeout = 0 }},
		{"drawdown limit above one", func(c *Config) { c.Gates.MaxDrawdownLimit = 1.5 }},
		{"ratios exceeding one", func(c *Config) {
			c.Gates.WalkForward.TrainRatio = 0.8
			c.Gates.WalkForward.TestRatio = 0.3
		}},
		{"gap pushing ratios past one", func(c *Config) {
			c.Gates.WalkForward.TrainRatio = 0.7
			c.Gates.WalkForward.TestRatio = 0.3
			c.Gates.WalkForward.GapFraction = 0.1
		}},
		{"negative gap", func(c *Config) { c.Gates.WalkForward.GapFraction = -0.05 }},
		{"zero windows", func(c *Config) { c.Gates.WalkForward.NumWindows = 0 }},
		{"inverted thresholds", func(c *Config) {
			c.Gates.Thresholds.Green = 60
			c.Gates.Thresholds.Amber = 70
		}},
		{"zero concurrency", func(c *Config) { c.Runs.MaxConcurrent = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestValidate_AllowsGapAndSlack(t *testing.T) {
	cfg := Default()
	cfg.Gates.WalkForward.TrainRatio = 0.6
	cfg.Gates.WalkForward.TestRatio = 0.3
	cfg.Gates.WalkForward.GapFraction = 0.05
	require.NoError(t, cfg.Validate(), "ratios below 1.0 leave unused slack and stay valid")
}

func TestOrchestratorMapping(t *testing.T) {
	cfg := Default()
	cfg.Workflow.MaxReflexionRetries = 5
	cfg.Gates.EnableWalkForward = true

	oc := cfg.Orchestrator()
	assert.Equal(t, 5, oc.MaxRetries)
	assert.True(t, oc.Product.EnableWalkForward)
	assert.Equal(t, cfg.Gates.WalkForward, oc.Product.WalkForward)
	assert.Equal(t, "v1", oc.Profile.Version)
}

func TestExecMapping(t *testing.T) {
	cfg := Default()
	cfg.Tools.Commands = map[string]string{"backtest": "/usr/local/bin/backtester"}

	ec := cfg.Exec()
	assert.Equal(t, "/usr/local/bin/backtester", ec.Commands["backtest"])
}
