package tools

import (
	"context"
	"fmt"
)

// Kind identifies an external tool at the invocation boundary.
type Kind string

const (
	KindGenerateStrategy Kind = "generate_strategy"
	KindBacktest         Kind = "backtest"
	KindRunTests         Kind = "run_tests"
	KindCheckDeterminism Kind = "check_determinism"
	KindLint             Kind = "lint"
	KindCRVVerify        Kind = "crv_verify"
	KindStressTest       Kind = "stress_test"
	KindCommit           Kind = "commit"
)

// StrategyArtifact references a generated strategy and its parameters.
type StrategyArtifact struct {
	Ref    string             `json:"ref"`
	Params map[string]float64 `json:"params,omitempty"`
}

// BacktestStats references backtest output along with its headline metrics.
type BacktestStats struct {
	Ref     string             `json:"ref"`
	Rows    int                `json:"rows"`
	Metrics map[string]float64 `json:"metrics"`
}

// TestReport is the outcome of a unit-test execution.
type TestReport struct {
	Passed bool   `json:"passed"`
	Output string `json:"output,omitempty"`
}

// DeterminismReport is the outcome of repeated-run output comparison.
type DeterminismReport struct {
	Identical bool   `json:"identical"`
	Runs      int    `json:"runs"`
	Output    string `json:"output,omitempty"`
}

// LintReport is the outcome of static analysis.
type LintReport struct {
	Passed bool   `json:"passed"`
	Output string `json:"output,omitempty"`
}

// VerificationReport is the outcome of cross-run verification.
type VerificationReport struct {
	Consistent  bool     `json:"consistent"`
	MaxDrawdown float64  `json:"max_drawdown"`
	Violations  []string `json:"violations,omitempty"`
}

// StressReport is the outcome of the external stress suite.
type StressReport struct {
	Passed bool   `json:"passed"`
	Output string `json:"output,omitempty"`
}

// CommitReceipt identifies a committed artifact.
type CommitReceipt struct {
	ID string `json:"id"`
}

// WindowStats carries per-window backtest metrics for walk-forward analysis.
type WindowStats struct {
	TrainStats map[string]float64 `json:"train_stats"`
	TestStats  map[string]float64 `json:"test_stats"`
}

// Invoker is the boundary to external tools. Implementations execute
// strategy generation, backtests, tests, and verification outside the
// orchestration core. Every method honors context cancellation and
// deadline; failures are reported as *InvocationError.
type Invoker interface {
	GenerateStrategy(ctx context.Context, goal string, riskPreference string) (StrategyArtifact, error)
	Backtest(ctx context.Context, strategyRef, dataRef string) (BacktestStats, error)
	RunTests(ctx context.Context, artifactRef string) (TestReport, error)
	CheckDeterminism(ctx context.Context, artifactRef string, runs int) (DeterminismReport, error)
	Lint(ctx context.Context, artifactRef string) (LintReport, error)
	CRVVerify(ctx context.Context, artifactRef string) (VerificationReport, error)
	StressTest(ctx context.Context, artifactRef string) (StressReport, error)
	BacktestWindow(ctx context.Context, strategyRef, dataRef string, trainStart, trainEnd, testStart, testEnd int) (WindowStats, error)
	Commit(ctx context.Context, artifactRef string) (CommitReceipt, error)
}

// InvocationError reports a failed external tool call. The orchestration
// core never propagates it raw; it is converted into a gate check failure
// or a reflexion cycle.
type InvocationError struct {
	Kind    Kind
	Message string
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("tool %s failed: %s", e.Kind, e.Message)
}

// NewInvocationError wraps a failure from an external tool.
func NewInvocationError(kind Kind, err error) *InvocationError {
	return &InvocationError{Kind: kind, Message: err.Error()}
}
