// Package tools defines the external tool invocation boundary and an
// implementation that shells out to configured engine commands.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// ExecConfig maps each tool kind to the command line that implements it.
// The command receives its input as JSON on stdin and must print a JSON
// document matching the corresponding report type on stdout.
type ExecConfig struct {
	Commands map[string]string `koanf:"commands"`
}

// ExecInvoker runs external engine commands for each tool kind.
type ExecInvoker struct {
	cfg    ExecConfig
	logger *zap.Logger
}

// NewExecInvoker creates an invoker backed by external commands.
func NewExecInvoker(cfg ExecConfig, logger *zap.Logger) (*ExecInvoker, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &ExecInvoker{cfg: cfg, logger: logger}, nil
}

// invoke runs the command configured for kind with the given JSON input and
// decodes stdout into out. All failures come back as *InvocationError.
func (e *ExecInvoker) invoke(ctx context.Context, kind Kind, input any, out any) error {
	cmdline, ok := e.cfg.Commands[string(kind)]
	if !ok || strings.TrimSpace(cmdline) == "" {
		return &InvocationError{Kind: kind, Message: "no command configured"}
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return &InvocationError{Kind: kind, Message: fmt.Sprintf("encode input: %v", err)}
	}

	parts := strings.Fields(cmdline)
	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Stdin = bytes.NewReader(payload)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	e.logger.Debug("invoking tool",
		zap.String("kind", string(kind)),
		zap.String("command", parts[0]),
	)

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return &InvocationError{Kind: kind, Message: fmt.Sprintf("timed out or cancelled: %v", ctx.Err())}
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return &InvocationError{Kind: kind, Message: msg}
	}

	if err := json.Unmarshal(stdout.Bytes(), out); err != nil {
		return &InvocationError{Kind: kind, Message: fmt.Sprintf("decode output: %v", err)}
	}
	return nil
}

// GenerateStrategy implements Invoker.
func (e *ExecInvoker) GenerateStrategy(ctx context.Context, goal, riskPreference string) (StrategyArtifact, error) {
	var out StrategyArtifact
	in := map[string]string{"goal": goal, "risk_preference": riskPreference}
	err := e.invoke(ctx, KindGenerateStrategy, in, &out)
	return out, err
}

// Backtest implements Invoker.
func (e *ExecInvoker) Backtest(ctx context.Context, strategyRef, dataRef string) (BacktestStats, error) {
	var out BacktestStats
	in := map[string]string{"strategy_ref": strategyRef, "data_ref": dataRef}
	err := e.invoke(ctx, KindBacktest, in, &out)
	return out, err
}

// RunTests implements Invoker.
func (e *ExecInvoker) RunTests(ctx context.Context, artifactRef string) (TestReport, error) {
	var out TestReport
	err := e.invoke(ctx, KindRunTests, map[string]string{"artifact_ref": artifactRef}, &out)
	return out, err
}

// CheckDeterminism implements Invoker.
func (e *ExecInvoker) CheckDeterminism(ctx context.Context, artifactRef string, runs int) (DeterminismReport, error) {
	var out DeterminismReport
	in := map[string]any{"artifact_ref": artifactRef, "runs": runs}
	err := e.invoke(ctx, KindCheckDeterminism, in, &out)
	return out, err
}

// Lint implements Invoker.
func (e *ExecInvoker) Lint(ctx context.Context, artifactRef string) (LintReport, error) {
	var out LintReport
	err := e.invoke(ctx, KindLint, map[string]string{"artifact_ref": artifactRef}, &out)
	return out, err
}

// CRVVerify implements Invoker.
func (e *ExecInvoker) CRVVerify(ctx context.Context, artifactRef string) (VerificationReport, error) {
	var out VerificationReport
	err := e.invoke(ctx, KindCRVVerify, map[string]string{"artifact_ref": artifactRef}, &out)
	return out, err
}

// StressTest implements Invoker.
func (e *ExecInvoker) StressTest(ctx context.Context, artifactRef string) (StressReport, error) {
	var out StressReport
	err := e.invoke(ctx, KindStressTest, map[string]string{"artifact_ref": artifactRef}, &out)
	return out, err
}

// BacktestWindow implements Invoker.
func (e *ExecInvoker) BacktestWindow(ctx context.Context, strategyRef, dataRef string, trainStart, trainEnd, testStart, testEnd int) (WindowStats, error) {
	var out WindowStats
	in := map[string]any{
		"strategy_ref": strategyRef,
		"data_ref":     dataRef,
		"train_start":  trainStart,
		"train_end":    trainEnd,
		"test_start":   testStart,
		"test_end":     testEnd,
	}
	err := e.invoke(ctx, KindBacktest, in, &out)
	return out, err
}

// Commit implements Invoker.
func (e *ExecInvoker) Commit(ctx context.Context, artifactRef string) (CommitReceipt, error) {
	var out CommitReceipt
	err := e.invoke(ctx, KindCommit, map[string]string{"artifact_ref": artifactRef}, &out)
	return out, err
}
