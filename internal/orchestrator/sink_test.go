package orchestrator

import (
	"context"

	"github.com/fyrsmithlabs/goalguard/internal/gates"
	"github.com/fyrsmithlabs/goalguard/internal/goalrun"
	"github.com/fyrsmithlabs/goalguard/internal/reflexion"
	"github.com/fyrsmithlabs/goalguard/internal/scorecard"
	"github.com/fyrsmithlabs/goalguard/internal/walkforward"
)

// captureSink accumulates every record it receives. A non-nil err is
// returned from every save, for exercising the sink-failures-are-soft
// contract.
type captureSink struct {
	err        error
	runs       []*goalrun.GoalRun
	gates      []gates.Result
	analyses   []walkforward.Analysis
	scorecards []scorecard.Scorecard
	reflexions []reflexion.Record
}

func (s *captureSink) SaveRun(ctx context.Context, run *goalrun.GoalRun) error {
	s.runs = append(s.runs, run)
	return s.err
}

func (s *captureSink) SaveGateResult(ctx context.Context, runID string, res gates.Result) error {
	s.gates = append(s.gates, res)
	return s.err
}

func (s *captureSink) SaveAnalysis(ctx context.Context, runID string, a walkforward.Analysis) error {
	s.analyses = append(s.analyses, a)
	return s.err
}

func (s *captureSink) SaveScorecard(ctx context.Context, runID string, card scorecard.Scorecard) error {
	s.scorecards = append(s.scorecards, card)
	return s.err
}

func (s *captureSink) SaveReflexion(ctx context.Context, runID string, rec reflexion.Record) error {
	s.reflexions = append(s.reflexions, rec)
	return s.err
}

var _ AuditSink = (*captureSink)(nil)
