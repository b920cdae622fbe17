package goalrun

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/fyrsmithlabs/goalguard/internal/tools"
)

// Transition is one recorded edge traversal, kept for audit replay.
type Transition struct {
	From  State     `json:"from"`
	Event Event     `json:"event"`
	To    State     `json:"to"`
	At    time.Time `json:"at"`
}

// CallStatus describes the outcome of a recorded tool call.
type CallStatus string

const (
	CallSucceeded CallStatus = "succeeded"
	CallFailed    CallStatus = "failed"
)

// ToolCallRecord is an append-only record of one external tool invocation.
type ToolCallRecord struct {
	ID          string          `json:"id"`
	Kind        tools.Kind      `json:"kind"`
	Input       json.RawMessage `json:"input,omitempty"`
	Output      json.RawMessage `json:"output,omitempty"`
	Err         string          `json:"error,omitempty"`
	Status      CallStatus      `json:"status"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
}

// Artifacts references the work products a run has produced so far.
type Artifacts struct {
	StrategyRef string `json:"strategy_ref,omitempty"`
	StatsRef    string `json:"stats_ref,omitempty"`
	DataRef     string `json:"data_ref,omitempty"`
	CommittedID string `json:"committed_id,omitempty"`
}

// GoalRun is the complete, per-run mutable state of one goal. Runs are
// isolated: nothing in a GoalRun is shared between runs, so independent
// runs may execute concurrently without coordination.
type GoalRun struct {
	ID             string           `json:"id"`
	Goal           string           `json:"goal"`
	RiskPreference string           `json:"risk_preference,omitempty"`
	State          State            `json:"state"`
	History        []Transition     `json:"history"`
	ToolCalls      []ToolCallRecord `json:"tool_calls"`
	ReflexionCount int              `json:"reflexion_count"`
	Artifacts      Artifacts        `json:"artifacts"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// New creates a GoalRun in StateInit.
func New(goal, riskPreference string) *GoalRun {
	now := time.Now().UTC()
	return &GoalRun{
		ID:             uuid.NewString(),
		Goal:           goal,
		RiskPreference: riskPreference,
		State:          StateInit,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// CanFire reports whether event is a legal outgoing edge of the current
// state.
func (r *GoalRun) CanFire(event Event) bool {
	_, ok := Next(r.State, event)
	return ok
}

// Fire advances the run along the edge for event. An illegal event fails
// with *InvalidSequenceError and mutates nothing.
func (r *GoalRun) Fire(event Event) error {
	next, ok := Next(r.State, event)
	if !ok {
		return &InvalidSequenceError{State: r.State, Event: event}
	}
	now := time.Now().UTC()
	r.History = append(r.History, Transition{
		From:  r.State,
		Event: event,
		To:    next,
		At:    now,
	})
	r.State = next
	r.UpdatedAt = now
	return nil
}

// Terminal reports whether the run has reached a terminal state.
func (r *GoalRun) Terminal() bool {
	return IsTerminal(r.State)
}

// AppendToolCall records a completed tool invocation. Records are
// append-only; existing entries are never modified.
func (r *GoalRun) AppendToolCall(rec ToolCallRecord) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	r.ToolCalls = append(r.ToolCalls, rec)
	r.UpdatedAt = time.Now().UTC()
}

// Replay walks the recorded history from StateInit through the transition
// table and reports whether every edge is legal and ends at the run's
// current state. It is the audit check that a persisted history is
// internally consistent.
func (r *GoalRun) Replay() bool {
	s := StateInit
	for _, tr := range r.History {
		if tr.From != s {
			return false
		}
		next, ok := Next(s, tr.Event)
		if !ok || next != tr.To {
			return false
		}
		s = next
	}
	return s == r.State
}
