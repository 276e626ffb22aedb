// Package guardrails is the independent safety layer evaluated over each
// candidate intervention. Guardrails are advisory: a failure is recorded on
// the row and withholds automatic action only, it never blocks creation and
// never blocks a coach's manual decision.
package guardrails

import (
	"fmt"

	"github.com/stridelabs/trainpulse/internal/engine/rules"
	"github.com/stridelabs/trainpulse/internal/engine/snapshot"
	"github.com/stridelabs/trainpulse/internal/persistence"
)

// Check is the result of a single guardrail evaluation.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Reason string `json:"reason,omitempty"`
}

// Result annotates a candidate. Reason carries the first failing check.
type Result struct {
	Pass   bool    `json:"pass"`
	Reason string  `json:"reason,omitempty"`
	Checks []Check `json:"checks"`
}

// Config holds the guardrail thresholds.
type Config struct {
	// DefaultCompletenessFloor blocks automatic action on thin data.
	DefaultCompletenessFloor float64 `yaml:"default_completeness_floor"`
	// CompletenessFloors overrides the floor per action type. Pain flags
	// default to 0: a reported pain signal is actionable regardless of how
	// sparse the rest of the diary is.
	CompletenessFloors map[persistence.ActionType]float64 `yaml:"completeness_floors"`
}

// DefaultConfig returns the production guardrail thresholds.
func DefaultConfig() Config {
	return Config{
		DefaultCompletenessFloor: 0.3,
		CompletenessFloors: map[persistence.ActionType]float64{
			persistence.ActionFlagPain: 0,
		},
	}
}

// Evaluator runs the ordered guardrail checks.
type Evaluator struct {
	cfg Config
}

// NewEvaluator creates an evaluator; a zero config gets the defaults.
func NewEvaluator(cfg Config) *Evaluator {
	if cfg.DefaultCompletenessFloor == 0 && cfg.CompletenessFloors == nil {
		cfg = DefaultConfig()
	}
	return &Evaluator{cfg: cfg}
}

// Evaluate runs every check in order against the snapshot/candidate pair.
// duplicateActive reports whether another Open/Deferred row already holds
// this candidate's (athlete, action) slot. Pass is false when any check
// fails; Reason is the first failure's reason.
func (e *Evaluator) Evaluate(snap snapshot.Snapshot, cand rules.Candidate, duplicateActive bool) Result {
	checks := []Check{
		e.taperPhaseCheck(snap, cand),
		e.duplicateCheck(cand, duplicateActive),
		e.completenessCheck(snap, cand),
	}

	result := Result{Pass: true, Checks: checks}
	for _, c := range checks {
		if !c.Passed {
			result.Pass = false
			result.Reason = c.Reason
			break
		}
	}
	return result
}

// taperPhaseCheck: never recommend cutting volume while the plan is
// deliberately tapering into a race.
func (e *Evaluator) taperPhaseCheck(snap snapshot.Snapshot, cand rules.Candidate) Check {
	c := Check{Name: "taper_phase_volume", Passed: true}
	if cand.Action == persistence.ActionReduceVolume &&
		(snap.Phase == persistence.PhaseTaper || snap.Phase == persistence.PhaseRace) {
		c.Passed = false
		c.Reason = fmt.Sprintf("volume reduction suppressed during %s phase", snap.Phase)
	}
	return c
}

// duplicateCheck: the dedup invariant is enforced at creation, this check
// surfaces the condition to the decision-maker when a slot is contested.
func (e *Evaluator) duplicateCheck(cand rules.Candidate, duplicateActive bool) Check {
	c := Check{Name: "duplicate_active", Passed: true}
	if duplicateActive {
		c.Passed = false
		c.Reason = fmt.Sprintf("an open or deferred %s intervention already exists for this athlete", cand.Action)
	}
	return c
}

// completenessCheck: thin diaries make automatic action on most candidates
// unsafe.
func (e *Evaluator) completenessCheck(snap snapshot.Snapshot, cand rules.Candidate) Check {
	floor := e.cfg.DefaultCompletenessFloor
	if override, ok := e.cfg.CompletenessFloors[cand.Action]; ok {
		floor = override
	}
	c := Check{Name: "data_completeness_floor", Passed: true}
	if snap.DataCompleteness < floor {
		c.Passed = false
		c.Reason = fmt.Sprintf("data completeness %.2f below floor %.2f for %s", snap.DataCompleteness, floor, cand.Action)
	}
	return c
}
