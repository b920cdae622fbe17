package orchestrator

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fyrsmithlabs/goalguard/internal/goalrun"
	"github.com/fyrsmithlabs/goalguard/internal/tools"
)

// recordingInvoker wraps a tools.Invoker and appends a ToolCallRecord to
// the owning run for every invocation, observing call duration and
// failure metrics along the way. It is created per run and is not safe
// for use outside the run's goroutine.
type recordingInvoker struct {
	inner tools.Invoker
	run   *goalrun.GoalRun
}

func newRecordingInvoker(inner tools.Invoker, run *goalrun.GoalRun) *recordingInvoker {
	return &recordingInvoker{inner: inner, run: run}
}

// record captures one completed call. Marshal failures on the in/out
// payloads are ignored; the record is still appended with timing and
// status intact.
func (ri *recordingInvoker) record(kind tools.Kind, started time.Time, in, out any, err error) {
	rec := goalrun.ToolCallRecord{
		Kind:        kind,
		StartedAt:   started,
		CompletedAt: time.Now().UTC(),
		Status:      goalrun.CallSucceeded,
	}
	if b, merr := json.Marshal(in); merr == nil {
		rec.Input = b
	}
	if err != nil {
		rec.Status = goalrun.CallFailed
		rec.Err = err.Error()
		ToolCallFailures.WithLabelValues(string(kind)).Inc()
	} else if b, merr := json.Marshal(out); merr == nil {
		rec.Output = b
	}
	ToolCallDuration.WithLabelValues(string(kind)).Observe(rec.CompletedAt.Sub(started).Seconds())
	ri.run.AppendToolCall(rec)
}

func (ri *recordingInvoker) GenerateStrategy(ctx context.Context, goal, riskPreference string) (tools.StrategyArtifact, error) {
	started := time.Now().UTC()
	out, err := ri.inner.GenerateStrategy(ctx, goal, riskPreference)
	ri.record(tools.KindGenerateStrategy, started, map[string]string{"goal": goal, "risk_preference": riskPreference}, out, err)
	return out, err
}

func (ri *recordingInvoker) Backtest(ctx context.Context, strategyRef, dataRef string) (tools.BacktestStats, error) {
	started := time.Now().UTC()
	out, err := ri.inner.Backtest(ctx, strategyRef, dataRef)
	ri.record(tools.KindBacktest, started, map[string]string{"strategy_ref": strategyRef, "data_ref": dataRef}, out, err)
	return out, err
}

func (ri *recordingInvoker) RunTests(ctx context.Context, artifactRef string) (tools.TestReport, error) {
	started := time.Now().UTC()
	out, err := ri.inner.RunTests(ctx, artifactRef)
	ri.record(tools.KindRunTests, started, map[string]string{"artifact_ref": artifactRef}, out, err)
	return out, err
}

func (ri *recordingInvoker) CheckDeterminism(ctx context.Context, artifactRef string, runs int) (tools.DeterminismReport, error) {
	started := time.Now().UTC()
	out, err := ri.inner.CheckDeterminism(ctx, artifactRef, runs)
	ri.record(tools.KindCheckDeterminism, started, map[string]any{"artifact_ref": artifactRef, "runs": runs}, out, err)
	return out, err
}

func (ri *recordingInvoker) Lint(ctx context.Context, artifactRef string) (tools.LintReport, error) {
	started := time.Now().UTC()
	out, err := ri.inner.Lint(ctx, artifactRef)
	ri.record(tools.KindLint, started, map[string]string{"artifact_ref": artifactRef}, out, err)
	return out, err
}

func (ri *recordingInvoker) CRVVerify(ctx context.Context, artifactRef string) (tools.VerificationReport, error) {
	started := time.Now().UTC()
	out, err := ri.inner.CRVVerify(ctx, artifactRef)
	ri.record(tools.KindCRVVerify, started, map[string]string{"artifact_ref": artifactRef}, out, err)
	return out, err
}

func (ri *recordingInvoker) StressTest(ctx context.Context, artifactRef string) (tools.StressReport, error) {
	started := time.Now().UTC()
	out, err := ri.inner.StressTest(ctx, artifactRef)
	ri.record(tools.KindStressTest, started, map[string]string{"artifact_ref": artifactRef}, out, err)
	return out, err
}

func (ri *recordingInvoker) BacktestWindow(ctx context.Context, strategyRef, dataRef string, trainStart, trainEnd, testStart, testEnd int) (tools.WindowStats, error) {
	started := time.Now().UTC()
	out, err := ri.inner.BacktestWindow(ctx, strategyRef, dataRef, trainStart, trainEnd, testStart, testEnd)
	ri.record(tools.KindBacktest, started, map[string]any{
		"strategy_ref": strategyRef,
		"data_ref":     dataRef,
		"train_start":  trainStart,
		"train_end":    trainEnd,
		"test_start":   testStart,
		"test_end":     testEnd,
	}, out, err)
	return out, err
}

func (ri *recordingInvoker) Commit(ctx context.Context, artifactRef string) (tools.CommitReceipt, error) {
	started := time.Now().UTC()
	out, err := ri.inner.Commit(ctx, artifactRef)
	ri.record(tools.KindCommit, started, map[string]string{"artifact_ref": artifactRef}, out, err)
	return out, err
}

var _ tools.Invoker = (*recordingInvoker)(nil)
