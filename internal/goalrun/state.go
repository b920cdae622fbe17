// Package goalrun defines the goal run value and its finite-state machine.
//
// A GoalRun advances through an explicit, enumerable transition table from
// INIT to one of the terminal states COMMITTED, ERROR, or CANCELLED. Firing
// an event that is not a legal outgoing edge of the current state fails with
// *InvalidSequenceError and leaves the run untouched, so callers can prove
// sequencing bugs without side effects. The full transition history is kept
// on the run for audit replay.
package goalrun

import "fmt"

// State is a stage of the goal workflow.
type State string

const (
	StateInit              State = "init"
	StateStrategyDesign    State = "strategy_design"
	StateBacktestComplete  State = "backtest_complete"
	StateDevGate           State = "dev_gate"
	StateDevGatePassed     State = "dev_gate_passed"
	StateProductGate       State = "product_gate"
	StateProductGatePassed State = "product_gate_passed"
	StateReflexion         State = "reflexion"
	StateCommitted         State = "committed"
	StateError             State = "error"
	StateCancelled         State = "cancelled"
)

// Event triggers a state transition.
type Event string

const (
	EventGenerateStrategy Event = "generate_strategy"
	EventBacktest         Event = "backtest"
	EventRunTests         Event = "run_tests"
	EventPass             Event = "pass"
	EventFail             Event = "fail"
	EventCRVVerify        Event = "crv_verify"
	EventCommit           Event = "commit"
	EventRetryAvailable   Event = "retry_available"
	EventRetryToBacktest  Event = "retry_to_backtest"
	EventRetriesExhausted Event = "retries_exhausted"
	EventCancel           Event = "cancel"
)

// transitions is the complete edge set. Any (state, event) pair absent from
// this table is an invalid sequence. Cancellation is a legal edge out of
// every non-terminal state; it is only honored between transitions, never
// mid-invocation. Every state that hosts an external tool call also carries
// a retries_exhausted edge, since a tool that keeps failing past the retry
// budget is fatal no matter where it happens.
var transitions = map[State]map[Event]State{
	StateInit: {
		EventGenerateStrategy: StateStrategyDesign,
		EventRetriesExhausted: StateError,
		EventCancel:           StateCancelled,
	},
	StateStrategyDesign: {
		EventBacktest:         StateBacktestComplete,
		EventRetriesExhausted: StateError,
		EventCancel:           StateCancelled,
	},
	StateBacktestComplete: {
		EventRunTests:         StateDevGate,
		EventRetriesExhausted: StateError,
		EventCancel:           StateCancelled,
	},
	StateDevGate: {
		EventPass:   StateDevGatePassed,
		EventFail:   StateReflexion,
		EventCancel: StateCancelled,
	},
	StateDevGatePassed: {
		EventCRVVerify:        StateProductGate,
		EventRetriesExhausted: StateError,
		EventCancel:           StateCancelled,
	},
	StateProductGate: {
		EventPass:   StateProductGatePassed,
		EventFail:   StateReflexion,
		EventCancel: StateCancelled,
	},
	StateProductGatePassed: {
		EventCommit:           StateCommitted,
		EventRetriesExhausted: StateError,
		EventCancel:           StateCancelled,
	},
	StateReflexion: {
		EventRetryAvailable:   StateStrategyDesign,
		EventRetryToBacktest:  StateBacktestComplete,
		EventRetriesExhausted: StateError,
		EventCancel:           StateCancelled,
	},
	StateCommitted: {},
	StateError:     {},
	StateCancelled: {},
}

// terminalStates are states with no outgoing edges. A run reaches exactly
// one of them, exactly once.
var terminalStates = map[State]bool{
	StateCommitted: true,
	StateError:     true,
	StateCancelled: true,
}

// IsTerminal reports whether s has no outgoing edges.
func IsTerminal(s State) bool {
	return terminalStates[s]
}

// Next resolves the transition for (state, event). The second return is
// false when the pair is not in the table.
func Next(s State, e Event) (State, bool) {
	next, ok := transitions[s][e]
	return next, ok
}

// AllowedEvents returns the legal outgoing events for a state.
func AllowedEvents(s State) []Event {
	edges := transitions[s]
	events := make([]Event, 0, len(edges))
	for e := range edges {
		events = append(events, e)
	}
	return events
}

// InvalidSequenceError reports an attempt to fire an event with no edge from
// the current state. It indicates a programming error in the caller, not an
// expected runtime failure.
type InvalidSequenceError struct {
	State State
	Event Event
}

func (e *InvalidSequenceError) Error() string {
	return fmt.Sprintf("invalid sequence: event %q is not allowed in state %q", e.Event, e.State)
}
