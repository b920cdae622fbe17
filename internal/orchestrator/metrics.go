package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsStarted counts goal runs accepted by the controller.
	RunsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "goalguard",
			Subsystem: "orchestrator",
			Name:      "runs_started_total",
			Help:      "Total number of goal runs started",
		},
	)

	// RunsTerminal counts runs reaching a terminal state.
	// Labels: state (committed, error, cancelled)
	RunsTerminal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "goalguard",
			Subsystem: "orchestrator",
			Name:      "runs_terminal_total",
			Help:      "Total number of goal runs reaching a terminal state",
		},
		[]string{"state"},
	)

	// GateEvaluations counts gate batteries run.
	// Labels: gate (dev_gate, product_gate), result (pass, fail)
	GateEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "goalguard",
			Subsystem: "orchestrator",
			Name:      "gate_evaluations_total",
			Help:      "Total number of gate evaluations by gate and result",
		},
		[]string{"gate", "result"},
	)

	// ReflexionIterations counts reflexion passes across all runs.
	ReflexionIterations = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "goalguard",
			Subsystem: "orchestrator",
			Name:      "reflexion_iterations_total",
			Help:      "Total number of reflexion iterations",
		},
	)

	// ToolCallDuration tracks external tool call latency.
	// Labels: kind
	ToolCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "goalguard",
			Subsystem: "orchestrator",
			Name:      "tool_call_duration_seconds",
			Help:      "Duration of external tool invocations in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// ToolCallFailures counts failed external tool invocations.
	// Labels: kind
	ToolCallFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "goalguard",
			Subsystem: "orchestrator",
			Name:      "tool_call_failures_total",
			Help:      "Total number of failed external tool invocations",
		},
		[]string{"kind"},
	)
)
