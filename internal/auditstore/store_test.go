package auditstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/goalguard/internal/gates"
	"github.com/fyrsmithlabs/goalguard/internal/goalrun"
	"github.com/fyrsmithlabs/goalguard/internal/reflexion"
	"github.com/fyrsmithlabs/goalguard/internal/scorecard"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_SaveAndLoadRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := goalrun.New("momentum strategy", "conservative")
	require.NoError(t, run.Fire(goalrun.EventGenerateStrategy))
	run.Artifacts.StrategyRef = "strategies/s1"

	require.NoError(t, s.SaveRun(ctx, run))

	loaded, err := s.LoadRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, run.ID, loaded.ID)
	assert.Equal(t, goalrun.StateStrategyDesign, loaded.State)
	assert.Equal(t, "strategies/s1", loaded.Artifacts.StrategyRef)
	assert.Len(t, loaded.History, 1)
	assert.True(t, loaded.Replay())
}

func TestStore_LoadRunUnknownID(t *testing.T) {
	s := newTestStore(t)

	loaded, err := s.LoadRun(context.Background(), "no-such-run")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestStore_SaveRunUpserts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := goalrun.New("g", "")
	require.NoError(t, s.SaveRun(ctx, run))

	require.NoError(t, run.Fire(goalrun.EventGenerateStrategy))
	run.ReflexionCount = 2
	require.NoError(t, s.SaveRun(ctx, run))

	loaded, err := s.LoadRun(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, goalrun.StateStrategyDesign, loaded.State)
	assert.Equal(t, 2, loaded.ReflexionCount)

	summaries, err := s.ListRuns(ctx, "")
	require.NoError(t, err)
	require.Len(t, summaries, 1)
}

func TestStore_ListRunsFilteredByState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := goalrun.New("a", "")
	b := goalrun.New("b", "")
	require.NoError(t, b.Fire(goalrun.EventCancel))
	require.NoError(t, s.SaveRun(ctx, a))
	require.NoError(t, s.SaveRun(ctx, b))

	cancelled, err := s.ListRuns(ctx, string(goalrun.StateCancelled))
	require.NoError(t, err)
	require.Len(t, cancelled, 1)
	assert.Equal(t, b.ID, cancelled[0].ID)

	all, err := s.ListRuns(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStore_GateResultsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := goalrun.New("g", "")
	require.NoError(t, s.SaveRun(ctx, run))

	res := gates.Result{
		Gate:   "dev_gate",
		Passed: false,
		Checks: map[string]bool{gates.CheckTestsPass: false, gates.CheckLint: true},
		Errors: []string{"unit tests failed"},
	}
	require.NoError(t, s.SaveGateResult(ctx, run.ID, res))

	got, err := s.GateResults(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "dev_gate", got[0].Gate)
	assert.False(t, got[0].Passed)
	assert.Equal(t, res.Checks, got[0].Checks)
	assert.Equal(t, res.Errors, got[0].Errors)
}

func TestStore_ReflexionsOrderedByIteration(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := goalrun.New("g", "")
	require.NoError(t, s.SaveRun(ctx, run))

	for _, it := range []int{2, 1, 3} {
		rec := reflexion.Record{
			RunID:     run.ID,
			Iteration: it,
			Plan:      reflexion.RepairPlan{FailureClass: reflexion.FailureTests},
		}
		require.NoError(t, s.SaveReflexion(ctx, run.ID, rec))
	}

	got, err := s.Reflexions(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, rec := range got {
		assert.Equal(t, i+1, rec.Iteration)
	}
}

func TestStore_LatestScorecard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run := goalrun.New("g", "")
	require.NoError(t, s.SaveRun(ctx, run))

	none, err := s.LatestScorecard(ctx, run.ID)
	require.NoError(t, err)
	assert.Nil(t, none)

	card := scorecard.Scorecard{
		RunID:   run.ID,
		Score:   91.5,
		Band:    scorecard.BandGreen,
		Profile: "v1",
	}
	require.NoError(t, s.SaveScorecard(ctx, run.ID, card))

	got, err := s.LatestScorecard(ctx, run.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, scorecard.BandGreen, got.Band)
	assert.InDelta(t, 91.5, got.Score, 1e-9)
}
