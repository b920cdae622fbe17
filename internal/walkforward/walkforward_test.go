package walkforward

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateWindows_EqualSequentialWindows(t *testing.T) {
	cfg := DefaultConfig()
	windows, err := CreateWindows(300, cfg)

	require.NoError(t, err)
	require.Len(t, windows, 3)

	for i, w := range windows {
		assert.Equal(t, i, w.ID)
		assert.Less(t, w.TrainStart, w.TrainEnd)
		assert.Equal(t, w.TrainEnd, w.TestStart, "test range must start where train range ends")
		assert.Less(t, w.TestStart, w.TestEnd)
		if i > 0 {
			assert.GreaterOrEqual(t, w.TrainStart, windows[i-1].TestEnd, "windows must not overlap")
		}
	}
}

func TestCreateWindows_InsufficientData(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumWindows = 10

	windows, err := CreateWindows(12, cfg)

	require.Error(t, err)
	assert.Nil(t, windows)

	var insufficient *InsufficientDataError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, 12, insufficient.Available)
	assert.Greater(t, insufficient.Required, insufficient.Available)
	assert.Contains(t, err.Error(), "need")
}

func TestCreateWindows_NeverReturnsFewerWindows(t *testing.T) {
	cfg := DefaultConfig()
	cfg.NumWindows = 7

	windows, err := CreateWindows(700, cfg)

	require.NoError(t, err)
	assert.Len(t, windows, 7)
}

func TestCreateWindows_GapSeparatesTrainAndTest(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TrainRatio = 0.6
	cfg.TestRatio = 0.2
	cfg.GapFraction = 0.1

	windows, err := CreateWindows(300, cfg)

	require.NoError(t, err)
	for _, w := range windows {
		assert.Greater(t, w.TestStart, w.TrainEnd)
	}
}

func TestCreateWindows_AnchoredTrainGrowsFromStart(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Anchored = true

	windows, err := CreateWindows(300, cfg)

	require.NoError(t, err)
	for i, w := range windows {
		assert.Equal(t, 0, w.TrainStart)
		if i > 0 {
			assert.Greater(t, w.TrainEnd, windows[i-1].TrainEnd)
		}
	}
}

func TestCreateWindows_InvalidRatios(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TrainRatio = 0.8
	cfg.TestRatio = 0.3

	_, err := CreateWindows(300, cfg)
	require.Error(t, err)
}

func TestAnalyzeWindowResults_Degradation(t *testing.T) {
	cfg := DefaultConfig()
	w := Window{ID: 0, TrainStart: 0, TrainEnd: 70, TestStart: 70, TestEnd: 100}

	r := AnalyzeWindowResults(w,
		map[string]float64{MetricSharpe: 2.0},
		map[string]float64{MetricSharpe: 1.8},
		cfg,
	)

	assert.InDelta(t, 0.10, r.Degradation, 1e-6)
	assert.False(t, r.IsOverfitting)
}

func TestAnalyzeWindowResults_NonPositiveTrainSharpe(t *testing.T) {
	cfg := DefaultConfig()
	w := Window{ID: 3}

	r := AnalyzeWindowResults(w,
		map[string]float64{MetricSharpe: 0.0},
		map[string]float64{MetricSharpe: 0.4},
		cfg,
	)

	assert.Equal(t, 1.0, r.Degradation)
	assert.True(t, r.IsOverfitting)
}

func TestAnalyzeWindowResults_OverfitOnLowTestSharpe(t *testing.T) {
	cfg := DefaultConfig()

	r := AnalyzeWindowResults(Window{ID: 1},
		map[string]float64{MetricSharpe: 0.5},
		map[string]float64{MetricSharpe: 0.4},
		cfg,
	)

	assert.True(t, r.IsOverfitting, "test sharpe below minimum must be flagged")
}

func TestValidate_AllWindowsStable(t *testing.T) {
	cfg := DefaultConfig()
	windows, err := CreateWindows(300, cfg)
	require.NoError(t, err)

	var results []Result
	for _, w := range windows {
		results = append(results, AnalyzeWindowResults(w,
			map[string]float64{MetricSharpe: 1.0 / 0.95},
			map[string]float64{MetricSharpe: 1.0},
			cfg,
		))
	}

	a := Validate(windows, results, cfg)

	assert.True(t, a.Passed)
	assert.Empty(t, a.FailureReasons)
	assert.InDelta(t, 0.95, a.StabilityScore, 1e-6)
	assert.InDelta(t, 1.0, a.AvgTestSharpe, 1e-9)
}

func TestValidate_NamesOffendingWindow(t *testing.T) {
	cfg := DefaultConfig()
	windows, err := CreateWindows(300, cfg)
	require.NoError(t, err)

	results := []Result{
		AnalyzeWindowResults(windows[0], map[string]float64{MetricSharpe: 2.0}, map[string]float64{MetricSharpe: 1.9}, cfg),
		AnalyzeWindowResults(windows[1], map[string]float64{MetricSharpe: 2.0}, map[string]float64{MetricSharpe: 0.2}, cfg),
		AnalyzeWindowResults(windows[2], map[string]float64{MetricSharpe: 2.0}, map[string]float64{MetricSharpe: 1.9}, cfg),
	}

	a := Validate(windows, results, cfg)

	assert.False(t, a.Passed)
	require.NotEmpty(t, a.FailureReasons)
	assert.Contains(t, a.FailureReasons[0], "window 1")
}

func TestValidate_StabilityScoreClamped(t *testing.T) {
	cfg := DefaultConfig()
	windows := []Window{{ID: 0}}
	results := []Result{
		AnalyzeWindowResults(windows[0], map[string]float64{MetricSharpe: 1.0}, map[string]float64{MetricSharpe: -2.0}, cfg),
	}

	a := Validate(windows, results, cfg)

	assert.Equal(t, 0.0, a.StabilityScore)
	assert.False(t, a.Passed)
}

func TestValidate_Idempotent(t *testing.T) {
	cfg := DefaultConfig()
	windows, err := CreateWindows(300, cfg)
	require.NoError(t, err)

	var results []Result
	for i, w := range windows {
		results = append(results, AnalyzeWindowResults(w,
			map[string]float64{MetricSharpe: 1.5 + float64(i)*0.1},
			map[string]float64{MetricSharpe: 1.2},
			cfg,
		))
	}

	first := Validate(windows, results, cfg)
	second := Validate(windows, results, cfg)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Equal(t, a, b, "identical inputs must produce byte-identical analyses")
}

func TestValidate_EmptyResults(t *testing.T) {
	a := Validate(nil, nil, DefaultConfig())

	assert.False(t, a.Passed)
	assert.NotEmpty(t, a.FailureReasons)
}
