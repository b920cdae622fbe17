package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Port, cfg.Server.Port)
	assert.Equal(t, Default().Workflow.MaxReflexionRetries, cfg.Workflow.MaxReflexionRetries)
}

func TestLoad_MissingFileIsSkipped(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Port, cfg.Server.Port)
}

func TestLoad_YAMLFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  http_port: 8181
  shutdown_timeout: 30s
logging:
  level: debug
  format: console
workflow:
  max_reflexion_retries: 5
  tool_timeout: 2m
gates:
  enable_walk_forward: true
  max_drawdown_limit: 0.15
  walk_forward:
    train_ratio: 0.6
    test_ratio: 0.4
    num_windows: 4
tools:
  commands:
    backtest: /opt/tools/backtester
store:
  path: /var/lib/goalguard/audit.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8181, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.Equal(t, 5, cfg.Workflow.MaxReflexionRetries)
	assert.Equal(t, 2*time.Minute, cfg.Workflow.ToolTimeout)
	assert.True(t, cfg.Gates.EnableWalkForward)
	assert.InDelta(t, 0.15, cfg.Gates.MaxDrawdownLimit, 1e-9)
	assert.InDelta(t, 0.6, cfg.Gates.WalkForward.TrainRatio, 1e-9)
	assert.Equal(t, 4, cfg.Gates.WalkForward.NumWindows)
	assert.Equal(t, "/opt/tools/backtester", cfg.Tools.Commands["backtest"])
	assert.Equal(t, "/var/lib/goalguard/audit.db", cfg.Store.Path)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
server:
  http_port: 8181
`)
	t.Setenv("GOALGUARD_SERVER_HTTP_PORT", "7070")
	t.Setenv("GOALGUARD_WORKFLOW_MAX_REFLEXION_RETRIES", "7")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 7, cfg.Workflow.MaxReflexionRetries)
}

func TestLoad_InvalidValuesRejected(t *testing.T) {
	path := writeConfigFile(t, `
gates:
  walk_forward:
    train_ratio: 0.9
    test_ratio: 0.3
    num_windows: 3
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation failed")
}

func TestLoad_MalformedYAMLRejected(t *testing.T) {
	path := writeConfigFile(t, "server: [not a map")

	_, err := Load(path)
	require.Error(t, err)
}
