package orchestrator

import (
	"context"

	"github.com/fyrsmithlabs/goalguard/internal/gates"
	"github.com/fyrsmithlabs/goalguard/internal/goalrun"
	"github.com/fyrsmithlabs/goalguard/internal/reflexion"
	"github.com/fyrsmithlabs/goalguard/internal/scorecard"
	"github.com/fyrsmithlabs/goalguard/internal/walkforward"
)

// AuditSink receives every persisted record the controller produces. The
// core defines the record shapes; the sink owns the storage mechanism.
// Sink failures are logged and never interrupt a run.
type AuditSink interface {
	SaveRun(ctx context.Context, run *goalrun.GoalRun) error
	SaveGateResult(ctx context.Context, runID string, res gates.Result) error
	SaveAnalysis(ctx context.Context, runID string, a walkforward.Analysis) error
	SaveScorecard(ctx context.Context, runID string, card scorecard.Scorecard) error
	SaveReflexion(ctx context.Context, runID string, rec reflexion.Record) error
}

// NopSink discards all records. Useful in tests and for running without an
// audit store.
type NopSink struct{}

func (NopSink) SaveRun(ctx context.Context, run *goalrun.GoalRun) error { return nil }
func (NopSink) SaveGateResult(ctx context.Context, runID string, res gates.Result) error {
	return nil
}
func (NopSink) SaveAnalysis(ctx context.Context, runID string, a walkforward.Analysis) error {
	return nil
}
func (NopSink) SaveScorecard(ctx context.Context, runID string, card scorecard.Scorecard) error {
	return nil
}
func (NopSink) SaveReflexion(ctx context.Context, runID string, rec reflexion.Record) error {
	return nil
}
