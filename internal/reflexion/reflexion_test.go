package reflexion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/goalguard/internal/gates"
	"github.com/fyrsmithlabs/goalguard/internal/goalrun"
	"github.com/fyrsmithlabs/goalguard/internal/tools"
)

func failedDevGate() gates.Result {
	return gates.Result{
		Gate:   "dev_gate",
		Passed: false,
		Checks: map[string]bool{
			gates.CheckTestsPass:   false,
			gates.CheckDeterminism: true,
			gates.CheckLint:        true,
		},
		Errors: []string{"unit tests failed"},
	}
}

func failedProductGate() gates.Result {
	return gates.Result{
		Gate:   "product_gate",
		Passed: false,
		Checks: map[string]bool{
			gates.CheckCRV:         true,
			gates.CheckWalkForward: false,
			gates.CheckStress:      true,
		},
		Errors: []string{"window 1 overfits: test_sharpe=0.2000 degradation=0.9000"},
	}
}

func TestAnalyze_Deterministic(t *testing.T) {
	e := NewEngine(3)
	fctx := Context{
		RunID:     "run-1",
		Iteration: 1,
		Gate:      failedDevGate(),
		Metrics:   map[string]float64{"sharpe_ratio": 0.4, "max_drawdown": 0.3},
	}

	first := e.Analyze(fctx)
	second := e.Analyze(fctx)

	assert.Equal(t, first, second, "identical failures must yield identical diagnoses")
}

func TestAnalyze_ImprovementScoreBounded(t *testing.T) {
	e := NewEngine(3)
	for i := 0; i < 50; i++ {
		rec := e.Analyze(Context{
			RunID:     "run-bounds",
			Iteration: i,
			Gate:      failedDevGate(),
		})
		assert.GreaterOrEqual(t, rec.ImprovementScore, -2.0)
		assert.LessOrEqual(t, rec.ImprovementScore, 2.0)
	}
}

func TestAnalyze_ScoreVariesWithIdentity(t *testing.T) {
	e := NewEngine(3)

	// If every iteration hashed to the same score the hash input would have
	// dropped the iteration component.
	scores := make(map[float64]bool)
	for i := 1; i <= 10; i++ {
		rec := e.Analyze(Context{RunID: "run-1", Iteration: i, Gate: failedDevGate()})
		scores[rec.ImprovementScore] = true
	}
	assert.Greater(t, len(scores), 1)
}

func TestAnalyze_TestFailureRetriesToBacktest(t *testing.T) {
	rec := NewEngine(3).Analyze(Context{RunID: "run-1", Gate: failedDevGate()})

	assert.Equal(t, FailureTests, rec.Plan.FailureClass)
	assert.Equal(t, goalrun.StateBacktestComplete, rec.Plan.RetryState)
	assert.NotEmpty(t, rec.Plan.Actions)
	assert.Contains(t, rec.Summary, "dev_gate FAILED")
}

func TestAnalyze_OverfitRetriesToDesign(t *testing.T) {
	rec := NewEngine(3).Analyze(Context{RunID: "run-1", Gate: failedProductGate()})

	assert.Equal(t, FailureOverfit, rec.Plan.FailureClass)
	assert.Equal(t, goalrun.StateStrategyDesign, rec.Plan.RetryState)
}

func TestAnalyze_MetricThresholdSuggestions(t *testing.T) {
	rec := NewEngine(3).Analyze(Context{
		RunID: "run-1",
		Gate:  failedDevGate(),
		Metrics: map[string]float64{
			"sharpe_ratio": 0.3,
			"max_drawdown": 0.28,
			"win_rate":     0.40,
		},
	})

	require.NotEmpty(t, rec.Suggestions)
	assert.LessOrEqual(t, len(rec.Suggestions), maxSuggestions)

	// Highest priority first.
	assert.Equal(t, PriorityHigh, rec.Suggestions[0].Priority)

	var categories []Category
	for _, s := range rec.Suggestions {
		categories = append(categories, s.Category)
	}
	assert.Contains(t, categories, CategoryRiskManagement)
}

func TestAnalyze_FeedbackKeywords(t *testing.T) {
	rec := NewEngine(3).Analyze(Context{
		RunID:    "run-1",
		Gate:     failedProductGate(),
		Feedback: "strategy underperforms in high volatility regimes near entry",
	})

	found := false
	for _, s := range rec.Suggestions {
		if strings.Contains(s.Text, "volatility") {
			found = true
			break
		}
	}
	assert.True(t, found, "expected a volatility suggestion, got %v", rec.Suggestions)
}

func TestAnalyze_RepeatedToolFailureSuggestion(t *testing.T) {
	calls := []goalrun.ToolCallRecord{
		{Kind: tools.KindBacktest, Status: goalrun.CallFailed, Err: "exit status 1"},
		{Kind: tools.KindRunTests, Status: goalrun.CallSucceeded},
		{Kind: tools.KindBacktest, Status: goalrun.CallFailed, Err: "exit status 1"},
	}
	rec := NewEngine(3).Analyze(Context{
		RunID:     "run-1",
		Gate:      failedDevGate(),
		ToolCalls: calls,
	})

	found := false
	for _, s := range rec.Suggestions {
		if strings.Contains(s.Text, string(tools.KindBacktest)) && strings.Contains(s.Text, "failed 2 times") {
			found = true
			assert.Equal(t, PriorityHigh, s.Priority)
		}
	}
	assert.True(t, found, "expected a repeated-failure suggestion, got %v", rec.Suggestions)

	// A single failure is noise, not a pattern.
	rec = NewEngine(3).Analyze(Context{
		RunID:     "run-1",
		Gate:      failedDevGate(),
		ToolCalls: calls[:1],
	})
	for _, s := range rec.Suggestions {
		assert.NotContains(t, s.Text, "failed 1 times")
	}
}

func TestAnalyze_ToolCallErrorsFeedKeywordScan(t *testing.T) {
	rec := NewEngine(3).Analyze(Context{
		RunID: "run-1",
		Gate:  failedDevGate(),
		ToolCalls: []goalrun.ToolCallRecord{
			{Kind: tools.KindBacktest, Status: goalrun.CallFailed, Err: "drawdown guard tripped during replay"},
		},
	})

	found := false
	for _, s := range rec.Suggestions {
		if strings.Contains(s.Text, "drawdown concerns") {
			found = true
			break
		}
	}
	assert.True(t, found, "expected the failed call error to drive a drawdown suggestion, got %v", rec.Suggestions)
}

func TestExhausted(t *testing.T) {
	e := NewEngine(3)

	assert.False(t, e.Exhausted(0))
	assert.False(t, e.Exhausted(2))
	assert.True(t, e.Exhausted(3))
	assert.True(t, e.Exhausted(4))
}
