// Package gates implements the evidence checkpoints between workflow stages.
//
// A Gate runs an ordered battery of checks against a strategy artifact and
// aggregates the outcome into a GateResult. Gates never return an error:
// any underlying tool failure is caught and recorded as a failed check with
// its diagnostic text, so callers always receive a structured result.
package gates

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Context carries the run-scoped inputs a gate needs beyond the artifact.
type Context struct {
	// RunID identifies the goal run being evaluated.
	RunID string
	// DataRef points at the time-ordered dataset used for backtests.
	DataRef string
	// DatasetRows is the dataset row count, needed for walk-forward windowing.
	DatasetRows int
	// Metrics holds the artifact's observed backtest metrics.
	Metrics map[string]float64
}

// Gate evaluates an artifact against an ordered battery of checks.
type Gate interface {
	Name() string
	Evaluate(ctx context.Context, artifactRef string, gctx Context) Result
}

// Result is the always-complete outcome of a gate evaluation.
type Result struct {
	Gate    string          `json:"gate"`
	Passed  bool            `json:"passed"`
	Checks  map[string]bool `json:"checks"`
	Details map[string]any  `json:"details,omitempty"`
	Errors  []string        `json:"errors,omitempty"`
}

// Summary renders a one-line human-readable verdict.
func (r Result) Summary() string {
	passed := 0
	for _, ok := range r.Checks {
		if ok {
			passed++
		}
	}
	status := "FAILED"
	if r.Passed {
		status = "PASSED"
	}
	return fmt.Sprintf("%s %s: %d/%d checks passed", r.Gate, status, passed, len(r.Checks))
}

// FailedChecks returns the names of failed checks in stable order.
func (r Result) FailedChecks() []string {
	var failed []string
	for name, ok := range r.Checks {
		if !ok {
			failed = append(failed, name)
		}
	}
	sort.Strings(failed)
	return failed
}

// Describe renders a multi-line failure summary for logs and reflexion
// records. Checks are listed in sorted order so the output is stable.
func (r Result) Describe() string {
	var b strings.Builder
	b.WriteString(r.Summary())

	keys := make([]string, 0, len(r.Checks))
	for k := range r.Checks {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, name := range keys {
		mark := "ok"
		if !r.Checks[name] {
			mark = "fail"
		}
		fmt.Fprintf(&b, "\n  [%s] %s", mark, name)
	}
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "\n  - %s", e)
	}
	return b.String()
}
