package gates

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/goalguard/internal/tools"
)

// Check names produced by DevGate, in evaluation order.
const (
	CheckTestsPass   = "tests_pass"
	CheckDeterminism = "determinism"
	CheckLint        = "lint"
)

// DevGate enforces code-quality evidence: unit tests, bit-identical
// repeated-run determinism, and static analysis. All three checks run in a
// fixed order and all must pass.
type DevGate struct {
	runner          tools.Invoker
	determinismRuns int
}

// NewDevGate creates the development gate. determinismRuns is the number of
// repeated executions compared for bit-identical output; values below 2 are
// raised to 2 since a single run can never demonstrate determinism.
func NewDevGate(runner tools.Invoker, determinismRuns int) *DevGate {
	if determinismRuns < 2 {
		determinismRuns = 2
	}
	return &DevGate{runner: runner, determinismRuns: determinismRuns}
}

// Name returns the gate identifier.
func (g *DevGate) Name() string {
	return "dev_gate"
}

// Evaluate runs the dev gate battery. It never returns an error; tool
// failures become failed checks with captured diagnostics.
func (g *DevGate) Evaluate(ctx context.Context, artifactRef string, gctx Context) Result {
	res := Result{
		Gate:    g.Name(),
		Checks:  make(map[string]bool),
		Details: make(map[string]any),
	}

	tests, err := g.runner.RunTests(ctx, artifactRef)
	res.Checks[CheckTestsPass] = err == nil && tests.Passed
	res.Details[CheckTestsPass] = tests.Output
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("test execution failed: %v", err))
	} else if !tests.Passed {
		res.Errors = append(res.Errors, "unit tests failed")
	}

	det, err := g.runner.CheckDeterminism(ctx, artifactRef, g.determinismRuns)
	res.Checks[CheckDeterminism] = err == nil && det.Identical
	res.Details[CheckDeterminism] = det
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("determinism check failed: %v", err))
	} else if !det.Identical {
		// Divergence across identical inputs is a failure, never a warning.
		res.Errors = append(res.Errors, fmt.Sprintf("outputs diverged across %d runs", det.Runs))
	}

	lint, err := g.runner.Lint(ctx, artifactRef)
	res.Checks[CheckLint] = err == nil && lint.Passed
	res.Details[CheckLint] = lint.Output
	if err != nil {
		res.Errors = append(res.Errors, fmt.Sprintf("lint failed: %v", err))
	} else if !lint.Passed {
		res.Errors = append(res.Errors, "lint violations found")
	}

	res.Passed = res.Checks[CheckTestsPass] && res.Checks[CheckDeterminism] && res.Checks[CheckLint]
	return res
}
