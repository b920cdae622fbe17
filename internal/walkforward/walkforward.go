// Package walkforward partitions a time-ordered dataset into sequential
// train/test windows and scores out-of-sample degradation to detect
// overfitting. Everything in this package is pure computation: identical
// inputs always produce identical outputs.
package walkforward

import (
	"fmt"
	"math"
)

// MetricSharpe is the metric key used for degradation scoring.
const MetricSharpe = "sharpe_ratio"

// Config controls window construction and pass/fail thresholds.
type Config struct {
	// TrainRatio is the fraction of each window used for training.
	TrainRatio float64 `koanf:"train_ratio"`
	// TestRatio is the fraction of each window used for out-of-sample testing.
	// TrainRatio+TestRatio may be below 1; the remainder is unused slack.
	TestRatio float64 `koanf:"test_ratio"`
	// NumWindows is the number of sequential windows to construct.
	NumWindows int `koanf:"num_windows"`
	// MaxDegradation is the largest acceptable train→test Sharpe drop.
	MaxDegradation float64 `koanf:"max_degradation"`
	// MinTestSharpe is the smallest acceptable out-of-sample Sharpe.
	MinTestSharpe float64 `koanf:"min_test_sharpe"`
	// Anchored grows the training range from the dataset start instead of
	// sliding it with the window. Off by default.
	Anchored bool `koanf:"anchored"`
	// GapFraction inserts an unused buffer between train and test ranges,
	// expressed as a fraction of the window span. Zero by default.
	GapFraction float64 `koanf:"gap_fraction"`
}

// DefaultConfig returns the standard validation thresholds.
func DefaultConfig() Config {
	return Config{
		TrainRatio:     0.7,
		TestRatio:      0.3,
		NumWindows:     3,
		MaxDegradation: 0.3,
		MinTestSharpe:  0.5,
	}
}

// Window is one train/test partition over ordinal row positions.
// Ranges are half-open: [TrainStart, TrainEnd) and [TestStart, TestEnd).
type Window struct {
	ID         int `json:"window_id"`
	TrainStart int `json:"train_start"`
	TrainEnd   int `json:"train_end"`
	TestStart  int `json:"test_start"`
	TestEnd    int `json:"test_end"`
}

// InsufficientDataError reports that a dataset cannot support the requested
// number of non-degenerate windows.
type InsufficientDataError struct {
	Required  int
	Available int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for walk-forward windows: need %d rows, have %d", e.Required, e.Available)
}

// minRowsPerWindow is the smallest window span for which both the train and
// test sub-ranges contain at least one row.
func minRowsPerWindow(cfg Config) int {
	trainMin := int(math.Ceil(1.0 / cfg.TrainRatio))
	testMin := int(math.Ceil(1.0 / cfg.TestRatio))
	if trainMin > testMin {
		return trainMin
	}
	return testMin
}

// CreateWindows splits rows ordinal positions into cfg.NumWindows sequential,
// non-overlapping windows of equal span. It never returns fewer windows than
// requested; if the dataset cannot support them it fails with
// *InsufficientDataError.
func CreateWindows(rows int, cfg Config) ([]Window, error) {
	if cfg.NumWindows <= 0 {
		return nil, fmt.Errorf("num_windows must be positive, got %d", cfg.NumWindows)
	}
	if cfg.TrainRatio <= 0 || cfg.TestRatio <= 0 {
		return nil, fmt.Errorf("train_ratio and test_ratio must be positive")
	}
	if cfg.TrainRatio+cfg.TestRatio+cfg.GapFraction > 1.0+1e-9 {
		return nil, fmt.Errorf("train_ratio+test_ratio+gap_fraction must not exceed 1.0")
	}

	required := cfg.NumWindows * minRowsPerWindow(cfg)
	if rows < required {
		return nil, &InsufficientDataError{Required: required, Available: rows}
	}

	span := rows / cfg.NumWindows
	trainLen := int(float64(span) * cfg.TrainRatio)
	testLen := int(float64(span) * cfg.TestRatio)
	gapLen := int(float64(span) * cfg.GapFraction)
	if trainLen < 1 || testLen < 1 {
		return nil, &InsufficientDataError{Required: required, Available: rows}
	}

	windows := make([]Window, 0, cfg.NumWindows)
	for i := 0; i < cfg.NumWindows; i++ {
		start := i * span
		w := Window{
			ID:         i,
			TrainStart: start,
			TrainEnd:   start + trainLen,
		}
		if cfg.Anchored {
			w.TrainStart = 0
		}
		w.TestStart = start + trainLen + gapLen
		w.TestEnd = w.TestStart + testLen
		windows = append(windows, w)
	}
	return windows, nil
}
