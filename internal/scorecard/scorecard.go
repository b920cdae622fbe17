// Package scorecard computes the promotion readiness decision for a goal
// run. The aggregate score is a weighted sum of five normalized components,
// but hard blockers are non-compensatory: a single blocker forces the
// decision to blocked no matter how favorable the score is.
package scorecard

import (
	"fmt"
	"sort"
)

// Component identifies one of the five scored readiness dimensions.
type Component string

const (
	ComponentEvidence     Component = "evidence"
	ComponentDeterminism  Component = "determinism"
	ComponentRisk         Component = "risk"
	ComponentVerification Component = "verification"
	ComponentStability    Component = "stability"
)

// AllComponents returns every scored component in canonical order.
func AllComponents() []Component {
	return []Component{
		ComponentEvidence,
		ComponentDeterminism,
		ComponentRisk,
		ComponentVerification,
		ComponentStability,
	}
}

// Band is the readiness decision derived from the aggregate score.
type Band string

const (
	BandGreen   Band = "green"
	BandAmber   Band = "amber"
	BandRed     Band = "red"
	BandBlocked Band = "blocked"
)

// BlockerKind classifies a hard blocker.
type BlockerKind string

const (
	BlockerMissingRunID  BlockerKind = "missing_run_identity"
	BlockerLineage       BlockerKind = "lineage_failure"
	BlockerPolicy        BlockerKind = "policy_failure"
	BlockerParity        BlockerKind = "parity_failure"
	BlockerGateUnpassed  BlockerKind = "gate_unpassed"
	BlockerStaleEvidence BlockerKind = "stale_evidence"
)

// Blocker is a condition that vetoes promotion regardless of score.
type Blocker struct {
	Kind   BlockerKind `json:"kind"`
	Detail string      `json:"detail"`
}

// Action is a concrete, ranked next step.
type Action struct {
	Priority int    `json:"priority"`
	Text     string `json:"text"`
}

// WeightProfile is a versioned set of component weights. Weights must sum
// to 1 to keep the aggregate on the component scale.
type WeightProfile struct {
	Version string                `json:"version"`
	Weights map[Component]float64 `json:"weights"`
}

// DefaultProfile is the standard v1 weight profile.
func DefaultProfile() WeightProfile {
	return WeightProfile{
		Version: "v1",
		Weights: map[Component]float64{
			ComponentEvidence:     0.25,
			ComponentDeterminism:  0.20,
			ComponentRisk:         0.20,
			ComponentVerification: 0.20,
			ComponentStability:    0.15,
		},
	}
}

// Validate checks that a profile covers every component with weights
// summing to 1.
func (p WeightProfile) Validate() error {
	var sum float64
	for _, c := range AllComponents() {
		w, ok := p.Weights[c]
		if !ok {
			return fmt.Errorf("weight profile %s missing component %s", p.Version, c)
		}
		if w < 0 {
			return fmt.Errorf("weight profile %s has negative weight for %s", p.Version, c)
		}
		sum += w
	}
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("weight profile %s weights sum to %.4f, want 1.0", p.Version, sum)
	}
	return nil
}

// Thresholds maps the aggregate score to a decision band.
type Thresholds struct {
	Green float64 `koanf:"green"`
	Amber float64 `koanf:"amber"`
}

// DefaultThresholds returns the standard banding cutoffs.
func DefaultThresholds() Thresholds {
	return Thresholds{Green: 85, Amber: 70}
}

// Inputs feed a scorecard computation.
type Inputs struct {
	RunID      string                `json:"run_id"`
	Components map[Component]float64 `json:"components"`
	Blockers   []Blocker             `json:"blockers"`
}

// Scorecard is the always-complete promotion decision. The band, blocker
// list, and ranked next actions are part of the output even when empty;
// the raw score alone is never sufficient.
type Scorecard struct {
	RunID       string                `json:"run_id"`
	Score       float64               `json:"score"`
	Band        Band                  `json:"band"`
	Components  map[Component]float64 `json:"components"`
	Profile     string                `json:"profile"`
	Blockers    []Blocker             `json:"blockers"`
	NextActions []Action              `json:"next_actions"`
}

// Compute produces the readiness scorecard. Components are clamped to
// [0, 100] before weighting. A missing run identity is itself a hard
// blocker.
func Compute(in Inputs, profile WeightProfile, th Thresholds) (Scorecard, error) {
	if err := profile.Validate(); err != nil {
		return Scorecard{}, err
	}

	blockers := append([]Blocker(nil), in.Blockers...)
	if in.RunID == "" {
		blockers = append(blockers, Blocker{Kind: BlockerMissingRunID, Detail: "scorecard inputs carry no run identity"})
	}

	components := make(map[Component]float64, len(AllComponents()))
	var score float64
	for _, c := range AllComponents() {
		v := clamp(in.Components[c], 0, 100)
		components[c] = v
		score += v * profile.Weights[c]
	}

	card := Scorecard{
		RunID:      in.RunID,
		Score:      score,
		Components: components,
		Profile:    profile.Version,
		Blockers:   blockers,
	}

	switch {
	case len(blockers) > 0:
		card.Band = BandBlocked
	case score >= th.Green:
		card.Band = BandGreen
	case score >= th.Amber:
		card.Band = BandAmber
	default:
		card.Band = BandRed
	}

	card.NextActions = nextActions(card)
	return card, nil
}

// nextActions ranks concrete follow-ups: clearing blockers first, then
// raising the weakest components.
func nextActions(card Scorecard) []Action {
	actions := make([]Action, 0, len(card.Blockers)+2)
	for _, b := range card.Blockers {
		actions = append(actions, Action{
			Priority: 1,
			Text:     fmt.Sprintf("clear hard blocker %s: %s", b.Kind, b.Detail),
		})
	}

	type weak struct {
		c Component
		v float64
	}
	weakest := make([]weak, 0, len(card.Components))
	for _, c := range AllComponents() {
		weakest = append(weakest, weak{c: c, v: card.Components[c]})
	}
	sort.SliceStable(weakest, func(i, j int) bool { return weakest[i].v < weakest[j].v })

	for i, w := range weakest {
		if w.v >= 80 || i >= 2 {
			break
		}
		actions = append(actions, Action{
			Priority: 2,
			Text:     fmt.Sprintf("raise %s component from %.0f", w.c, w.v),
		})
	}

	if len(actions) == 0 {
		actions = append(actions, Action{Priority: 3, Text: "proceed to commit"})
	}
	return actions
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
