package walkforward

import "fmt"

// Result scores one window's train/test statistics.
type Result struct {
	WindowID      int                `json:"window_id"`
	TrainStats    map[string]float64 `json:"train_stats"`
	TestStats     map[string]float64 `json:"test_stats"`
	Degradation   float64            `json:"degradation"`
	IsOverfitting bool               `json:"is_overfitting"`
}

// Analysis aggregates all window results into a single verdict.
type Analysis struct {
	Results        []Result `json:"results"`
	AvgTrainSharpe float64  `json:"avg_train_sharpe"`
	AvgTestSharpe  float64  `json:"avg_test_sharpe"`
	AvgDegradation float64  `json:"avg_degradation"`
	StabilityScore float64  `json:"stability_score"`
	Passed         bool     `json:"passed"`
	FailureReasons []string `json:"failure_reasons,omitempty"`
}

// AnalyzeWindowResults scores a single window. Degradation is the relative
// Sharpe drop from train to test; a non-positive train Sharpe counts as full
// degradation rather than dividing by zero.
func AnalyzeWindowResults(w Window, trainStats, testStats map[string]float64, cfg Config) Result {
	trainSharpe := trainStats[MetricSharpe]
	testSharpe := testStats[MetricSharpe]

	degradation := 1.0
	if trainSharpe > 0 {
		degradation = (trainSharpe - testSharpe) / trainSharpe
	}

	return Result{
		WindowID:      w.ID,
		TrainStats:    trainStats,
		TestStats:     testStats,
		Degradation:   degradation,
		IsOverfitting: testSharpe < cfg.MinTestSharpe || degradation > cfg.MaxDegradation,
	}
}

// Validate aggregates window results into an Analysis. The verdict passes
// only when no window overfits, the average test Sharpe clears
// cfg.MinTestSharpe, and the average degradation stays within
// cfg.MaxDegradation. FailureReasons name every violated criterion with the
// offending window ID.
func Validate(windows []Window, results []Result, cfg Config) Analysis {
	a := Analysis{Results: results}
	if len(results) == 0 {
		a.Passed = false
		a.FailureReasons = []string{"no window results to validate"}
		return a
	}

	var trainSum, testSum, degSum float64
	for _, r := range results {
		trainSum += r.TrainStats[MetricSharpe]
		testSum += r.TestStats[MetricSharpe]
		degSum += r.Degradation
	}
	n := float64(len(results))
	a.AvgTrainSharpe = trainSum / n
	a.AvgTestSharpe = testSum / n
	a.AvgDegradation = degSum / n
	a.StabilityScore = clamp(1.0-a.AvgDegradation, 0, 1)

	for _, r := range results {
		if r.IsOverfitting {
			a.FailureReasons = append(a.FailureReasons,
				fmt.Sprintf("window %d overfits: test_sharpe=%.4f degradation=%.4f", r.WindowID, r.TestStats[MetricSharpe], r.Degradation))
		}
	}
	if a.AvgTestSharpe < cfg.MinTestSharpe {
		a.FailureReasons = append(a.FailureReasons,
			fmt.Sprintf("avg test sharpe %.4f below minimum %.4f", a.AvgTestSharpe, cfg.MinTestSharpe))
	}
	if a.AvgDegradation > cfg.MaxDegradation {
		a.FailureReasons = append(a.FailureReasons,
			fmt.Sprintf("avg degradation %.4f exceeds maximum %.4f", a.AvgDegradation, cfg.MaxDegradation))
	}

	a.Passed = len(a.FailureReasons) == 0
	return a
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
