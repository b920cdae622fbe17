package gates

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/goalguard/internal/tools"
	"github.com/fyrsmithlabs/goalguard/internal/walkforward"
)

// Check names produced by ProductGate.
const (
	CheckCRV         = "crv_pass"
	CheckWalkForward = "walk_forward"
	CheckStress      = "stress_suite"
)

// ProductConfig controls the production gate battery.
type ProductConfig struct {
	// EnableWalkForward opts in to walk-forward validation. When disabled
	// the check auto-passes with an explicit "disabled" annotation; it is
	// never silently omitted.
	EnableWalkForward bool `koanf:"enable_walk_forward"`
	// MaxDrawdownLimit is the largest drawdown the verifier accepts.
	MaxDrawdownLimit float64 `koanf:"max_drawdown_limit"`
	// WalkForward holds windowing and threshold settings.
	WalkForward walkforward.Config `koanf:"walk_forward"`
}

// DefaultProductConfig returns production gate defaults. Walk-forward is
// opt-in.
func DefaultProductConfig() ProductConfig {
	return ProductConfig{
		EnableWalkForward: false,
		MaxDrawdownLimit:  0.25,
		WalkForward:       walkforward.DefaultConfig(),
	}
}

// ProductGate enforces production-readiness evidence: cross-run
// verification, walk-forward validation, and the external stress suite.
// The gate passes only if every enabled check passes.
type ProductGate struct {
	runner tools.Invoker
	cfg    ProductConfig
}

// NewProductGate creates the production gate.
func NewProductGate(runner tools.Invoker, cfg ProductConfig) *ProductGate {
	return &ProductGate{runner: runner, cfg: cfg}
}

// Name returns the gate identifier.
func (g *ProductGate) Name() string {
	return "product_gate"
}

// Evaluate runs the product gate battery. It never returns an error; tool
// failures become failed checks with captured diagnostics.
func (g *ProductGate) Evaluate(ctx context.Context, artifactRef string, gctx Context) Result {
	res := Result{
		Gate:    g.Name(),
		Checks:  make(map[string]bool),
		Details: make(map[string]any),
	}

	crv, err := g.runner.CRVVerify(ctx, artifactRef)
	res.Checks[CheckCRV] = err == nil && crv.Consistent && crv.MaxDrawdown <= g.cfg.MaxDrawdownLimit
	res.Details[CheckCRV] = crv
	switch {
	case err != nil:
		res.Errors = append(res.Errors, fmt.Sprintf("cross-run verification failed: %v", err))
	case !crv.Consistent:
		for _, v := range crv.Violations {
			res.Errors = append(res.Errors, fmt.Sprintf("crv violation: %s", v))
		}
		if len(crv.Violations) == 0 {
			res.Errors = append(res.Errors, "cross-run verification reported inconsistent results")
		}
	case crv.MaxDrawdown > g.cfg.MaxDrawdownLimit:
		res.Errors = append(res.Errors, fmt.Sprintf("max drawdown %.4f exceeds limit %.4f", crv.MaxDrawdown, g.cfg.MaxDrawdownLimit))
	}

	g.checkWalkForward(ctx, artifactRef, gctx, &res)

	stress, err := g.runner.StressTest(ctx, artifactRef)
	res.Checks[CheckStress] = err == nil && stress.Passed
	res.Details[CheckStress] = stress.Output
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("stress suite failed: %v", err))
	} else if !stress.Passed {
		res.Errors = append(res.Errors, "stress suite reported failures")
	}

	res.Passed = res.Checks[CheckCRV] && res.Checks[CheckWalkForward] && res.Checks[CheckStress]
	return res
}

// checkWalkForward constructs validation windows, backtests each through the
// external engine, and records the aggregate analysis under the
// walk_forward check.
func (g *ProductGate) checkWalkForward(ctx context.Context, artifactRef string, gctx Context, res *Result) {
	if !g.cfg.EnableWalkForward {
		res.Checks[CheckWalkForward] = true
		res.Details[CheckWalkForward] = map[string]any{"disabled": true}
		return
	}

	windows, err := walkforward.CreateWindows(gctx.DatasetRows, g.cfg.WalkForward)
	if err != nil {
		res.Checks[CheckWalkForward] = false
		res.Errors = append(res.Errors, fmt.Sprintf("walk-forward windowing failed: %v", err))
		return
	}

	results := make([]walkforward.Result, 0, len(windows))
	for _, w := range windows {
		stats, err := g.runner.BacktestWindow(ctx, artifactRef, gctx.DataRef, w.TrainStart, w.TrainEnd, w.TestStart, w.TestEnd)
		if err != nil {
			res.Checks[CheckWalkForward] = false
			res.Errors = append(res.Errors, fmt.Sprintf("walk-forward backtest for window %d failed: %v", w.ID, err))
			return
		}
		results = append(results, walkforward.AnalyzeWindowResults(w, stats.TrainStats, stats.TestStats, g.cfg.WalkForward))
	}

	analysis := walkforward.Validate(windows, results, g.cfg.WalkForward)
	res.Checks[CheckWalkForward] = analysis.Passed
	res.Details[CheckWalkForward] = analysis
	if !analysis.Passed {
		res.Errors = append(res.Errors, analysis.FailureReasons...)
	}
}

// WalkForwardAnalysis extracts the analysis recorded by a product gate
// evaluation, if walk-forward ran.
func WalkForwardAnalysis(res Result) (walkforward.Analysis, bool) {
	a, ok := res.Details[CheckWalkForward].(walkforward.Analysis)
	return a, ok
}
