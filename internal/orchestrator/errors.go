package orchestrator

import "fmt"

// RetryBudgetExhaustedError is the fatal outcome of consuming the full
// reflexion retry budget. It is one of only two error kinds that surface
// to the top-level caller; everything else is converted into structured
// gate or reflexion results.
type RetryBudgetExhaustedError struct {
	RunID   string
	Retries int
}

func (e *RetryBudgetExhaustedError) Error() string {
	return fmt.Sprintf("run %s exhausted its reflexion retry budget (%d attempts)", e.RunID, e.Retries)
}
