// Package orchestrator drives a goal run through the workflow state
// machine: external tool invocations, evidence gates, the reflexion
// repair loop, and the promotion scorecard.
//
// Each run advances strictly sequentially; no two tool invocations for
// the same run ever execute concurrently. Independent runs share nothing
// but the read-only controller configuration, so a single Controller may
// serve many runs at once.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/goalguard/internal/gates"
	"github.com/fyrsmithlabs/goalguard/internal/goalrun"
	"github.com/fyrsmithlabs/goalguard/internal/reflexion"
	"github.com/fyrsmithlabs/goalguard/internal/scorecard"
	"github.com/fyrsmithlabs/goalguard/internal/tools"
)

// Config is the read-only controller configuration. It is constructed
// once at startup and never mutated afterwards.
type Config struct {
	// MaxRetries is the reflexion retry budget per run.
	MaxRetries int `koanf:"max_reflexion_retries"`
	// ToolTimeout bounds every external tool invocation.
	ToolTimeout time.Duration `koanf:"tool_timeout"`
	// DeterminismRuns is the number of repeated executions the dev gate
	// compares for bit-identical output.
	DeterminismRuns int `koanf:"determinism_runs"`
	// Product configures the production gate battery.
	Product gates.ProductConfig `koanf:"product"`
	// Profile weights the scorecard components. A zero value falls back
	// to the default v1 profile.
	Profile scorecard.WeightProfile `koanf:"-"`
	// Thresholds band the scorecard aggregate.
	Thresholds scorecard.Thresholds `koanf:"thresholds"`
}

// DefaultConfig returns the standard controller configuration.
func DefaultConfig() Config {
	return Config{
		MaxRetries:      3,
		ToolTimeout:     5 * time.Minute,
		DeterminismRuns: 2,
		Product:         gates.DefaultProductConfig(),
		Profile:         scorecard.DefaultProfile(),
		Thresholds:      scorecard.DefaultThresholds(),
	}
}

// Request submits one goal for orchestration.
type Request struct {
	// Goal is the natural-language objective handed to strategy generation.
	Goal string `json:"goal"`
	// RiskPreference tunes strategy generation (e.g. "conservative").
	RiskPreference string `json:"risk_preference,omitempty"`
	// DataRef points at the time-ordered dataset used for backtests.
	DataRef string `json:"data_ref"`
}

// Controller sequences goal runs through the workflow. It is safe for
// concurrent use; all per-run state lives in the GoalRun.
type Controller struct {
	invoker  tools.Invoker
	sink     AuditSink
	engine   *reflexion.Engine
	logger   *zap.Logger
	cfg      Config
	devGate  func(tools.Invoker) gates.Gate
	prodGate func(tools.Invoker) gates.Gate
}

// New creates a controller. A nil sink discards audit records and a nil
// logger discards logs.
func New(invoker tools.Invoker, sink AuditSink, logger *zap.Logger, cfg Config) *Controller {
	if sink == nil {
		sink = NopSink{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.ToolTimeout <= 0 {
		cfg.ToolTimeout = 5 * time.Minute
	}
	if cfg.Profile.Version == "" {
		cfg.Profile = scorecard.DefaultProfile()
	}
	if cfg.Thresholds == (scorecard.Thresholds{}) {
		cfg.Thresholds = scorecard.DefaultThresholds()
	}
	return &Controller{
		invoker: invoker,
		sink:    sink,
		engine:  reflexion.NewEngine(cfg.MaxRetries),
		logger:  logger,
		cfg:     cfg,
		devGate: func(inv tools.Invoker) gates.Gate {
			return gates.NewDevGate(inv, cfg.DeterminismRuns)
		},
		prodGate: func(inv tools.Invoker) gates.Gate {
			return gates.NewProductGate(inv, cfg.Product)
		},
	}
}

// Run drives one goal from submission to a terminal state. The returned
// GoalRun always carries the complete transition history and tool-call
// log, including on failure. Only retry-budget exhaustion and context
// cancellation surface as errors; every tool or check failure is
// converted into gate and reflexion records along the way.
func (c *Controller) Run(ctx context.Context, req Request) (*goalrun.GoalRun, error) {
	run := goalrun.New(req.Goal, req.RiskPreference)
	run.Artifacts.DataRef = req.DataRef
	RunsStarted.Inc()

	log := c.logger.With(zap.String("run_id", run.ID))
	log.Info("goal run started", zap.String("goal", req.Goal))

	recorder := newRecordingInvoker(c.invoker, run)
	dev := c.devGate(recorder)
	product := c.prodGate(recorder)

	st := &runState{run: run, req: req}
	var finalErr error

	for !run.Terminal() {
		// Cancellation is honored only between transitions; an in-flight
		// tool call always runs to completion or timeout first.
		if err := ctx.Err(); err != nil {
			c.fire(run, goalrun.EventCancel)
			finalErr = err
			break
		}

		var err error
		switch run.State {
		case goalrun.StateInit:
			err = c.stepGenerate(ctx, recorder, st)
		case goalrun.StateStrategyDesign:
			err = c.stepBacktest(ctx, recorder, st)
		case goalrun.StateBacktestComplete:
			err = c.fire(run, goalrun.EventRunTests)
		case goalrun.StateDevGate:
			err = c.stepGate(ctx, dev, st)
		case goalrun.StateDevGatePassed:
			err = c.fire(run, goalrun.EventCRVVerify)
		case goalrun.StateProductGate:
			err = c.stepProductGate(ctx, product, st)
		case goalrun.StateProductGatePassed:
			err = c.stepCommit(ctx, recorder, st)
		case goalrun.StateReflexion:
			err = c.stepReflexion(ctx, st)
		default:
			err = &goalrun.InvalidSequenceError{State: run.State}
		}
		if err != nil {
			finalErr = err
			if !run.Terminal() {
				// Sequencing violations and exhaustion already moved the
				// run; anything else left standing is fatal.
				_ = c.fire(run, goalrun.EventRetriesExhausted)
			}
			break
		}
		c.persist(ctx, run)
	}

	c.persist(ctx, run)
	RunsTerminal.WithLabelValues(string(run.State)).Inc()
	log.Info("goal run finished",
		zap.String("state", string(run.State)),
		zap.Int("reflexion_count", run.ReflexionCount),
		zap.Error(finalErr),
	)
	return run, finalErr
}

// runState carries the loop-scoped working set of one run.
type runState struct {
	run *goalrun.GoalRun
	req Request

	metrics  map[string]float64
	params   map[string]float64
	rows     int
	lastGate gates.Result
	devRes   gates.Result
	prodRes  gates.Result
}

// toolContext bounds a tool invocation by the configured timeout while
// detaching it from caller cancellation, so a cancellation request never
// kills an in-flight call.
func (c *Controller) toolContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), c.cfg.ToolTimeout)
}

func (c *Controller) stepGenerate(ctx context.Context, inv tools.Invoker, st *runState) error {
	tctx, cancel := c.toolContext(ctx)
	defer cancel()

	art, err := inv.GenerateStrategy(tctx, st.req.Goal, st.req.RiskPreference)
	if err != nil {
		return c.reflectToolFailure(ctx, st, tools.KindGenerateStrategy, err)
	}
	st.run.Artifacts.StrategyRef = art.Ref
	st.params = art.Params
	return c.fire(st.run, goalrun.EventGenerateStrategy)
}

func (c *Controller) stepBacktest(ctx context.Context, inv tools.Invoker, st *runState) error {
	tctx, cancel := c.toolContext(ctx)
	defer cancel()

	stats, err := inv.Backtest(tctx, st.run.Artifacts.StrategyRef, st.req.DataRef)
	if err != nil {
		return c.reflectToolFailure(ctx, st, tools.KindBacktest, err)
	}
	st.run.Artifacts.StatsRef = stats.Ref
	st.metrics = stats.Metrics
	st.rows = stats.Rows
	return c.fire(st.run, goalrun.EventBacktest)
}

func (c *Controller) stepGate(ctx context.Context, gate gates.Gate, st *runState) error {
	tctx, cancel := c.toolContext(ctx)
	defer cancel()

	res := gate.Evaluate(tctx, st.run.Artifacts.StrategyRef, c.gateContext(st))
	c.recordGate(ctx, st, res)
	st.devRes = res
	if !res.Passed {
		st.lastGate = res
		return c.fire(st.run, goalrun.EventFail)
	}
	return c.fire(st.run, goalrun.EventPass)
}

func (c *Controller) stepProductGate(ctx context.Context, gate gates.Gate, st *runState) error {
	tctx, cancel := c.toolContext(ctx)
	defer cancel()

	res := gate.Evaluate(tctx, st.run.Artifacts.StrategyRef, c.gateContext(st))
	c.recordGate(ctx, st, res)
	st.prodRes = res
	if a, ok := gates.WalkForwardAnalysis(res); ok {
		if err := c.sink.SaveAnalysis(ctx, st.run.ID, a); err != nil {
			c.logger.Warn("audit sink rejected analysis", zap.String("run_id", st.run.ID), zap.Error(err))
		}
	}
	if !res.Passed {
		st.lastGate = res
		return c.fire(st.run, goalrun.EventFail)
	}

	card, err := scorecard.Compute(c.scorecardInputs(st), c.cfg.Profile, c.cfg.Thresholds)
	if err != nil {
		return fmt.Errorf("compute scorecard: %w", err)
	}
	if err := c.sink.SaveScorecard(ctx, st.run.ID, card); err != nil {
		c.logger.Warn("audit sink rejected scorecard", zap.String("run_id", st.run.ID), zap.Error(err))
	}
	c.logger.Info("promotion scorecard computed",
		zap.String("run_id", st.run.ID),
		zap.Float64("score", card.Score),
		zap.String("band", string(card.Band)),
		zap.Int("blockers", len(card.Blockers)),
	)
	if card.Band == scorecard.BandBlocked || card.Band == scorecard.BandRed {
		st.lastGate = scorecardFailure(res, card)
		return c.fire(st.run, goalrun.EventFail)
	}
	return c.fire(st.run, goalrun.EventPass)
}

func (c *Controller) stepCommit(ctx context.Context, inv tools.Invoker, st *runState) error {
	tctx, cancel := c.toolContext(ctx)
	defer cancel()

	receipt, err := inv.Commit(tctx, st.run.Artifacts.StrategyRef)
	if err != nil {
		return c.reflectToolFailure(ctx, st, tools.KindCommit, err)
	}
	st.run.Artifacts.CommittedID = receipt.ID
	return c.fire(st.run, goalrun.EventCommit)
}

// stepReflexion consumes one unit of the retry budget, diagnoses the last
// gate failure, and routes the run back into the workflow per the repair
// plan. Exhausting the budget forces ERROR and surfaces the failure.
func (c *Controller) stepReflexion(ctx context.Context, st *runState) error {
	st.run.ReflexionCount++
	ReflexionIterations.Inc()

	rec := c.engine.Analyze(reflexion.Context{
		RunID:     st.run.ID,
		Iteration: st.run.ReflexionCount,
		Gate:      st.lastGate,
		Metrics:   st.metrics,
		Params:    st.params,
		Feedback:  st.lastGate.Summary(),
		ToolCalls: st.run.ToolCalls,
	})
	if err := c.sink.SaveReflexion(ctx, st.run.ID, rec); err != nil {
		c.logger.Warn("audit sink rejected reflexion record", zap.String("run_id", st.run.ID), zap.Error(err))
	}
	c.logger.Info("reflexion pass",
		zap.String("run_id", st.run.ID),
		zap.Int("iteration", rec.Iteration),
		zap.String("failure_class", string(rec.Plan.FailureClass)),
		zap.Float64("improvement_score", rec.ImprovementScore),
	)

	if c.engine.Exhausted(st.run.ReflexionCount) {
		if err := c.fire(st.run, goalrun.EventRetriesExhausted); err != nil {
			return err
		}
		return &RetryBudgetExhaustedError{RunID: st.run.ID, Retries: st.run.ReflexionCount}
	}

	event := goalrun.EventRetryAvailable
	if rec.Plan.RetryState == goalrun.StateBacktestComplete {
		event = goalrun.EventRetryToBacktest
	}
	return c.fire(st.run, event)
}

// reflectToolFailure handles a failed tool call in a state with no fail
// edge. The run stays put and retries the call, consuming the shared
// reflexion budget; past the budget the failure is fatal.
func (c *Controller) reflectToolFailure(ctx context.Context, st *runState, kind tools.Kind, toolErr error) error {
	st.run.ReflexionCount++
	ReflexionIterations.Inc()

	failure := gates.Result{
		Gate:   "tool_invocation",
		Checks: map[string]bool{string(kind): false},
		Errors: []string{toolErr.Error()},
	}
	rec := c.engine.Analyze(reflexion.Context{
		RunID:     st.run.ID,
		Iteration: st.run.ReflexionCount,
		Gate:      failure,
		Metrics:   st.metrics,
		Params:    st.params,
		Feedback:  toolErr.Error(),
		ToolCalls: st.run.ToolCalls,
	})
	if err := c.sink.SaveReflexion(ctx, st.run.ID, rec); err != nil {
		c.logger.Warn("audit sink rejected reflexion record", zap.String("run_id", st.run.ID), zap.Error(err))
	}
	c.logger.Warn("tool invocation failed, retrying in place",
		zap.String("run_id", st.run.ID),
		zap.String("tool", string(kind)),
		zap.Int("iteration", st.run.ReflexionCount),
		zap.Error(toolErr),
	)

	if c.engine.Exhausted(st.run.ReflexionCount) {
		if err := c.fire(st.run, goalrun.EventRetriesExhausted); err != nil {
			return err
		}
		return &RetryBudgetExhaustedError{RunID: st.run.ID, Retries: st.run.ReflexionCount}
	}
	return nil
}

func (c *Controller) fire(run *goalrun.GoalRun, event goalrun.Event) error {
	if err := run.Fire(event); err != nil {
		return err
	}
	c.logger.Debug("transition",
		zap.String("run_id", run.ID),
		zap.String("event", string(event)),
		zap.String("state", string(run.State)),
	)
	return nil
}

func (c *Controller) gateContext(st *runState) gates.Context {
	return gates.Context{
		RunID:       st.run.ID,
		DataRef:     st.req.DataRef,
		DatasetRows: st.rows,
		Metrics:     st.metrics,
	}
}

func (c *Controller) recordGate(ctx context.Context, st *runState, res gates.Result) {
	result := "fail"
	if res.Passed {
		result = "pass"
	}
	GateEvaluations.WithLabelValues(res.Gate, result).Inc()
	c.logger.Info("gate evaluated", zap.String("run_id", st.run.ID), zap.String("summary", res.Summary()))
	if err := c.sink.SaveGateResult(ctx, st.run.ID, res); err != nil {
		c.logger.Warn("audit sink rejected gate result", zap.String("run_id", st.run.ID), zap.Error(err))
	}
}

func (c *Controller) persist(ctx context.Context, run *goalrun.GoalRun) {
	if err := c.sink.SaveRun(ctx, run); err != nil {
		c.logger.Warn("audit sink rejected run snapshot", zap.String("run_id", run.ID), zap.Error(err))
	}
}

// scorecardInputs derives the five readiness components from the gate
// results and backtest metrics of the current cycle.
func (c *Controller) scorecardInputs(st *runState) scorecard.Inputs {
	var total, passed int
	for _, res := range []gates.Result{st.devRes, st.prodRes} {
		for _, ok := range res.Checks {
			total++
			if ok {
				passed++
			}
		}
	}
	evidence := 0.0
	if total > 0 {
		evidence = float64(passed) / float64(total) * 100
	}

	determinism := 0.0
	if st.devRes.Checks[gates.CheckDeterminism] {
		determinism = 100
	}
	verification := 0.0
	if st.prodRes.Checks[gates.CheckCRV] {
		verification = 100
	}

	// Risk scales linearly: zero drawdown scores 100, the configured
	// limit scores 0.
	risk := 100.0
	if limit := c.cfg.Product.MaxDrawdownLimit; limit > 0 {
		risk = (1 - st.metrics["max_drawdown"]/limit) * 100
	}

	// Stability comes from walk-forward when it ran; otherwise the test
	// sharpe stands in, with 2.0 treated as a full score.
	stability := st.metrics["sharpe_ratio"] / 2.0 * 100
	if a, ok := gates.WalkForwardAnalysis(st.prodRes); ok {
		stability = a.StabilityScore * 100
	}

	var blockers []scorecard.Blocker
	if !st.devRes.Passed || !st.prodRes.Passed {
		blockers = append(blockers, scorecard.Blocker{
			Kind:   scorecard.BlockerGateUnpassed,
			Detail: "a readiness gate has not passed for this cycle",
		})
	}

	return scorecard.Inputs{
		RunID: st.run.ID,
		Components: map[scorecard.Component]float64{
			scorecard.ComponentEvidence:     evidence,
			scorecard.ComponentDeterminism:  determinism,
			scorecard.ComponentRisk:         risk,
			scorecard.ComponentVerification: verification,
			scorecard.ComponentStability:    stability,
		},
		Blockers: blockers,
	}
}

// scorecardFailure folds a blocked or red scorecard into a gate-shaped
// failure so the reflexion engine sees the real reason the cycle stopped.
func scorecardFailure(res gates.Result, card scorecard.Scorecard) gates.Result {
	out := gates.Result{
		Gate:    res.Gate,
		Checks:  map[string]bool{"promotion_readiness": false},
		Details: map[string]any{"scorecard": card},
	}
	for name, ok := range res.Checks {
		out.Checks[name] = ok
	}
	out.Errors = append(out.Errors, fmt.Sprintf("readiness scorecard band %s (score %.1f)", card.Band, card.Score))
	for _, b := range card.Blockers {
		out.Errors = append(out.Errors, fmt.Sprintf("hard blocker %s: %s", b.Kind, b.Detail))
	}
	return out
}
