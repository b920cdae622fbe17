package tools

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tool.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func newExecInvoker(t *testing.T, commands map[string]string) *ExecInvoker {
	t.Helper()
	inv, err := NewExecInvoker(ExecConfig{Commands: commands}, zap.NewNop())
	require.NoError(t, err)
	return inv
}

func TestNewExecInvoker_RequiresLogger(t *testing.T) {
	_, err := NewExecInvoker(ExecConfig{}, nil)
	assert.Error(t, err)
}

func TestExecInvoker_DecodesToolOutput(t *testing.T) {
	script := writeScript(t, `echo '{"ref":"strategies/s1","params":{"lookback":20}}'`)
	inv := newExecInvoker(t, map[string]string{string(KindGenerateStrategy): script})

	art, err := inv.GenerateStrategy(context.Background(), "momentum", "conservative")
	require.NoError(t, err)
	assert.Equal(t, "strategies/s1", art.Ref)
	assert.InDelta(t, 20, art.Params["lookback"], 1e-9)
}

func TestExecInvoker_UnconfiguredKind(t *testing.T) {
	inv := newExecInvoker(t, nil)

	_, err := inv.RunTests(context.Background(), "artifact")
	var invErr *InvocationError
	require.True(t, errors.As(err, &invErr))
	assert.Equal(t, KindRunTests, invErr.Kind)
	assert.Contains(t, invErr.Message, "no command configured")
}

func TestExecInvoker_CommandFailureCapturesStderr(t *testing.T) {
	script := writeScript(t, `echo "backtest engine exploded" >&2; exit 1`)
	inv := newExecInvoker(t, map[string]string{string(KindBacktest): script})

	_, err := inv.Backtest(context.Background(), "s", "d")
	var invErr *InvocationError
	require.True(t, errors.As(err, &invErr))
	assert.Equal(t, KindBacktest, invErr.Kind)
	assert.Contains(t, invErr.Message, "backtest engine exploded")
}

func TestExecInvoker_MalformedOutput(t *testing.T) {
	script := writeScript(t, `echo "not json"`)
	inv := newExecInvoker(t, map[string]string{string(KindLint): script})

	_, err := inv.Lint(context.Background(), "artifact")
	var invErr *InvocationError
	require.True(t, errors.As(err, &invErr))
	assert.Contains(t, invErr.Message, "decode output")
}

func TestExecInvoker_ContextTimeout(t *testing.T) {
	script := writeScript(t, `sleep 5`)
	inv := newExecInvoker(t, map[string]string{string(KindStressTest): script})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := inv.StressTest(ctx, "artifact")
	var invErr *InvocationError
	require.True(t, errors.As(err, &invErr))
	assert.Contains(t, invErr.Message, "timed out or cancelled")
}

func TestExecInvoker_BacktestWindowUsesBacktestCommand(t *testing.T) {
	script := writeScript(t, `echo '{"train_stats":{"sharpe_ratio":2.0},"test_stats":{"sharpe_ratio":1.8}}'`)
	inv := newExecInvoker(t, map[string]string{string(KindBacktest): script})

	stats, err := inv.BacktestWindow(context.Background(), "s", "d", 0, 700, 700, 1000)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, stats.TrainStats["sharpe_ratio"], 1e-9)
	assert.InDelta(t, 1.8, stats.TestStats["sharpe_ratio"], 1e-9)
}
