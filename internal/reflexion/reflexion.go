// Package reflexion diagnoses gate failures and produces bounded,
// retryable repair plans.
//
// Diagnosis is deterministic: the improvement score is derived from a
// stable hash of the run identity and normalized metrics, never from the
// clock or a random seed, so identical failures always yield identical
// records and the engine is testable.
package reflexion

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/goalguard/internal/gates"
	"github.com/fyrsmithlabs/goalguard/internal/goalrun"
	"github.com/fyrsmithlabs/goalguard/internal/tools"
)

// Category classifies what a suggestion would change.
type Category string

const (
	CategoryParameter      Category = "parameter"
	CategoryLogic          Category = "logic"
	CategoryRiskManagement Category = "risk_management"
	CategoryTiming         Category = "timing"
)

// Priority ranks a suggestion.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

var priorityRank = map[Priority]int{
	PriorityHigh:   0,
	PriorityMedium: 1,
	PriorityLow:    2,
}

// Suggestion is one ranked improvement recommendation.
type Suggestion struct {
	Category Category `json:"category"`
	Priority Priority `json:"priority"`
	Text     string   `json:"text"`
}

// FailureClass names the diagnosed failure locus.
type FailureClass string

const (
	FailureTests       FailureClass = "test_failure"
	FailureDeterminism FailureClass = "determinism_failure"
	FailureLint        FailureClass = "lint_failure"
	FailureCRV         FailureClass = "crv_failure"
	FailureOverfit     FailureClass = "overfit_failure"
	FailureStress      FailureClass = "stress_failure"
	FailureUnknown     FailureClass = "unknown"
)

// RepairPlan routes a failed run back into the workflow with concrete
// actions. RetryState is the state the run should re-enter: strategy
// design when the strategy itself must change, backtest-complete when the
// failure locus was test or verification mechanics only.
type RepairPlan struct {
	FailureClass FailureClass  `json:"failure_class"`
	Description  string        `json:"description"`
	Actions      []string      `json:"actions"`
	RetryState   goalrun.State `json:"retry_state"`
}

// Context is the failure snapshot the engine diagnoses. ToolCalls is the
// run's invocation history so far; failed calls feed the diagnosis
// alongside the gate result.
type Context struct {
	RunID     string                   `json:"run_id"`
	Iteration int                      `json:"iteration"`
	Gate      gates.Result             `json:"gate"`
	Metrics   map[string]float64       `json:"metrics,omitempty"`
	Params    map[string]float64       `json:"params,omitempty"`
	Feedback  string                   `json:"feedback,omitempty"`
	ToolCalls []goalrun.ToolCallRecord `json:"tool_calls,omitempty"`
}

// Record is the complete output of one reflexion pass.
type Record struct {
	RunID            string       `json:"run_id"`
	Iteration        int          `json:"iteration"`
	ImprovementScore float64      `json:"improvement_score"`
	Suggestions      []Suggestion `json:"suggestions"`
	Plan             RepairPlan   `json:"plan"`
	Summary          string       `json:"summary"`
}

// maxSuggestions caps the ranked suggestion list.
const maxSuggestions = 5

// Engine produces reflexion records. It holds only immutable configuration
// and is safe for concurrent use across runs.
type Engine struct {
	maxRetries int
}

// NewEngine creates a reflexion engine with the given retry budget.
func NewEngine(maxRetries int) *Engine {
	return &Engine{maxRetries: maxRetries}
}

// MaxRetries returns the configured retry budget.
func (e *Engine) MaxRetries() int {
	return e.maxRetries
}

// Exhausted reports whether iteration has consumed the retry budget.
func (e *Engine) Exhausted(iteration int) bool {
	return iteration >= e.maxRetries
}

// Analyze diagnoses a gate failure and produces the reflexion record.
// Identical contexts always produce identical records.
func (e *Engine) Analyze(fctx Context) Record {
	class := classify(fctx.Gate)
	plan := planFor(class)

	return Record{
		RunID:            fctx.RunID,
		Iteration:        fctx.Iteration,
		ImprovementScore: improvementScore(fctx),
		Suggestions:      suggest(fctx, class),
		Plan:             plan,
		Summary:          fctx.Gate.Describe(),
	}
}

// classify maps the first failed check to a failure class. Check order
// mirrors the gate batteries: dev checks first, then product checks.
func classify(res gates.Result) FailureClass {
	ordered := []struct {
		check string
		class FailureClass
	}{
		{gates.CheckTestsPass, FailureTests},
		{gates.CheckDeterminism, FailureDeterminism},
		{gates.CheckLint, FailureLint},
		{gates.CheckCRV, FailureCRV},
		{gates.CheckWalkForward, FailureOverfit},
		{gates.CheckStress, FailureStress},
	}
	for _, c := range ordered {
		if passed, present := res.Checks[c.check]; present && !passed {
			return c.class
		}
	}
	return FailureUnknown
}

// planFor builds the repair plan for a failure class.
func planFor(class FailureClass) RepairPlan {
	switch class {
	case FailureTests:
		return RepairPlan{
			FailureClass: class,
			Description:  "unit tests failed against the generated strategy",
			Actions: []string{
				"review failing tests in the gate details",
				"repair the strategy implementation",
				"re-run the dev gate",
			},
			RetryState: goalrun.StateBacktestComplete,
		}
	case FailureDeterminism:
		return RepairPlan{
			FailureClass: class,
			Description:  "repeated runs produced divergent output",
			Actions: []string{
				"check for unseeded randomness in the strategy",
				"remove wall-clock dependencies",
				"re-run the determinism check",
			},
			RetryState: goalrun.StateBacktestComplete,
		}
	case FailureLint:
		return RepairPlan{
			FailureClass: class,
			Description:  "static analysis found violations",
			Actions: []string{
				"review lint findings in the gate details",
				"re-run the dev gate",
			},
			RetryState: goalrun.StateBacktestComplete,
		}
	case FailureCRV:
		return RepairPlan{
			FailureClass: class,
			Description:  "cross-run verification found inconsistent or constraint-violating results",
			Actions: []string{
				"review verifier violations",
				"adjust strategy parameters to satisfy constraints",
				"re-run the backtest and product gate",
			},
			RetryState: goalrun.StateStrategyDesign,
		}
	case FailureOverfit:
		return RepairPlan{
			FailureClass: class,
			Description:  "walk-forward validation detected overfitting",
			Actions: []string{
				"reduce parameter count or widen training windows",
				"regenerate the strategy with stronger regularization hints",
				"re-run walk-forward validation",
			},
			RetryState: goalrun.StateStrategyDesign,
		}
	case FailureStress:
		return RepairPlan{
			FailureClass: class,
			Description:  "stress suite found unacceptable behavior under adverse conditions",
			Actions: []string{
				"review stress scenarios that failed",
				"tighten risk controls in the strategy",
				"re-run the product gate",
			},
			RetryState: goalrun.StateStrategyDesign,
		}
	default:
		return RepairPlan{
			FailureClass: FailureUnknown,
			Description:  "failure could not be classified from the gate result",
			Actions: []string{
				"review gate errors",
				"regenerate the strategy",
			},
			RetryState: goalrun.StateStrategyDesign,
		}
	}
}

// improvementScore derives a score in [-2, 2] from a stable hash of the run
// identity, iteration, and normalized metrics.
func improvementScore(fctx Context) float64 {
	var b strings.Builder
	fmt.Fprintf(&b, "%s:%d:%s", fctx.RunID, fctx.Iteration, fctx.Feedback)

	keys := make([]string, 0, len(fctx.Metrics))
	for k := range fctx.Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, ":%s=%.6f", k, fctx.Metrics[k])
	}

	digest := sha256.Sum256([]byte(b.String()))
	raw := binary.BigEndian.Uint32(digest[:4]) % 401
	return float64(int(raw)-200) / 100.0
}

// repeatedToolFailure returns the tool kind with the most failed calls in
// the history and its failure count. Ties keep the kind that reached the
// count first, so the result is stable for a given history.
func repeatedToolFailure(calls []goalrun.ToolCallRecord) (tools.Kind, int) {
	counts := make(map[tools.Kind]int)
	var worst tools.Kind
	max := 0
	for _, tc := range calls {
		if tc.Status != goalrun.CallFailed {
			continue
		}
		counts[tc.Kind]++
		if counts[tc.Kind] > max {
			max = counts[tc.Kind]
			worst = tc.Kind
		}
	}
	return worst, max
}

// suggest builds the ranked suggestion list from metric thresholds,
// feedback keywords, and the failure class.
func suggest(fctx Context, class FailureClass) []Suggestion {
	var out []Suggestion

	sharpe, haveSharpe := fctx.Metrics["sharpe_ratio"]
	drawdown := fctx.Metrics["max_drawdown"]
	winRate, haveWinRate := fctx.Metrics["win_rate"]

	if haveSharpe && sharpe < 0.5 {
		out = append(out, Suggestion{
			Category: CategoryParameter,
			Priority: PriorityHigh,
			Text:     fmt.Sprintf("sharpe ratio %.2f is below the promotion floor; rework the signal before tuning risk", sharpe),
		})
	} else if haveSharpe && sharpe < 1.0 {
		out = append(out, Suggestion{
			Category: CategoryRiskManagement,
			Priority: PriorityHigh,
			Text:     fmt.Sprintf("sharpe ratio %.2f is marginal; add volatility targeting to lift risk-adjusted returns", sharpe),
		})
	}
	if drawdown > 0.20 {
		out = append(out, Suggestion{
			Category: CategoryRiskManagement,
			Priority: PriorityHigh,
			Text:     fmt.Sprintf("max drawdown %.1f%% exceeds tolerance; add stricter drawdown control", drawdown*100),
		})
	}
	if haveWinRate && winRate < 0.45 {
		out = append(out, Suggestion{
			Category: CategoryLogic,
			Priority: PriorityMedium,
			Text:     fmt.Sprintf("win rate %.1f%% suggests entry signal quality issues", winRate*100),
		})
	}

	if kind, n := repeatedToolFailure(fctx.ToolCalls); n >= 2 {
		out = append(out, Suggestion{
			Category: CategoryLogic,
			Priority: PriorityHigh,
			Text:     fmt.Sprintf("tool %s has failed %d times this run; inspect its inputs before reworking the strategy", kind, n),
		})
	}

	parts := []string{fctx.Feedback}
	parts = append(parts, fctx.Gate.Errors...)
	for _, tc := range fctx.ToolCalls {
		if tc.Status == goalrun.CallFailed && tc.Err != "" {
			parts = append(parts, tc.Err)
		}
	}
	feedback := strings.ToLower(strings.Join(parts, " "))
	if strings.Contains(feedback, "volatility") || strings.Contains(feedback, "vol ") {
		out = append(out, Suggestion{
			Category: CategoryParameter,
			Priority: PriorityHigh,
			Text:     "feedback points at volatility sensitivity; adapt position sizing to the volatility regime",
		})
	}
	if strings.Contains(feedback, "drawdown") || strings.Contains(feedback, "loss") {
		out = append(out, Suggestion{
			Category: CategoryRiskManagement,
			Priority: PriorityHigh,
			Text:     "feedback highlights drawdown concerns; tighten parameter guardrails",
		})
	}
	if strings.Contains(feedback, "timing") || strings.Contains(feedback, "entry") || strings.Contains(feedback, "exit") {
		out = append(out, Suggestion{
			Category: CategoryTiming,
			Priority: PriorityMedium,
			Text:     "feedback suggests timing inefficiencies; filter entries and exits adaptively",
		})
	}

	if class == FailureOverfit {
		out = append(out, Suggestion{
			Category: CategoryParameter,
			Priority: PriorityHigh,
			Text:     "out-of-sample degradation is high; shrink the parameter space or extend training windows",
		})
	}

	out = append(out, Suggestion{
		Category: CategoryLogic,
		Priority: PriorityLow,
		Text:     "consider combining independent signal sources to reduce single-signal risk",
	})

	sort.SliceStable(out, func(i, j int) bool {
		return priorityRank[out[i].Priority] < priorityRank[out[j].Priority]
	})
	if len(out) > maxSuggestions {
		out = out[:maxSuggestions]
	}
	return out
}
