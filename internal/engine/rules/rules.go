// Package rules is the risk & intervention generator: a fixed, ordered list
// of trigger rules evaluated against a pure AthleteSnapshot. No I/O, no
// wall-clock reads beyond the snapshot's own "now", so identical snapshots
// always yield identical candidates.
package rules

import (
	"math"

	"github.com/stridelabs/trainpulse/internal/domain/readiness"
	"github.com/stridelabs/trainpulse/internal/engine/snapshot"
	"github.com/stridelabs/trainpulse/internal/persistence"
)

// TriggerRule is one (tag, predicate, weight) entry. Rules fire
// independently; fired weights for the same action saturate into the risk
// score.
type TriggerRule struct {
	Tag    string
	Action persistence.ActionType
	Weight float64
	When   func(snapshot.Snapshot) bool
}

// Candidate is a generated intervention candidate before guardrail
// annotation and persistence.
type Candidate struct {
	AthleteID       string
	Action          persistence.ActionType
	RiskScore       float64
	ConfidenceScore float64
	WhyFactors      []string
	ExpectedImpact  persistence.Impact
}

// DefaultRules returns the production rule set in evaluation order.
func DefaultRules() []TriggerRule {
	return []TriggerRule{
		{
			Tag: "acr_high", Action: persistence.ActionReduceVolume, Weight: 0.45,
			When: func(s snapshot.Snapshot) bool { return s.ACRValid && s.ACR >= 1.5 },
		},
		{
			Tag: "acr_very_high", Action: persistence.ActionReduceVolume, Weight: 0.25,
			When: func(s snapshot.Snapshot) bool { return s.ACRValid && s.ACR >= 1.8 },
		},
		{
			Tag: "monotony_high", Action: persistence.ActionReduceVolume, Weight: 0.20,
			When: func(s snapshot.Snapshot) bool { return s.MonotonyValid && s.Monotony >= 2.0 },
		},
		{
			Tag: "strain_high", Action: persistence.ActionReduceVolume, Weight: 0.20,
			When: func(s snapshot.Snapshot) bool { return s.MonotonyValid && s.Strain >= 6000 },
		},
		{
			Tag: "tsb_deep_negative", Action: persistence.ActionRecoveryFocus, Weight: 0.35,
			When: func(s snapshot.Snapshot) bool { return s.HistoryDays >= 14 && s.TSB <= -25 },
		},
		{
			Tag: "readiness_red", Action: persistence.ActionRecoveryFocus, Weight: 0.30,
			When: func(s snapshot.Snapshot) bool { return s.HasReadiness && s.ReadinessBand == readiness.BandRed },
		},
		{
			Tag: "readiness_decline_3d", Action: persistence.ActionRecoveryFocus, Weight: 0.25,
			When: func(s snapshot.Snapshot) bool { return s.HasReadiness && s.ReadinessDelta3d <= -15 },
		},
		{
			Tag: "pain_flag_present", Action: persistence.ActionFlagPain, Weight: 0.60,
			When: func(s snapshot.Snapshot) bool { return s.PainFlag },
		},
		{
			Tag: "pain_under_load_spike", Action: persistence.ActionFlagPain, Weight: 0.25,
			When: func(s snapshot.Snapshot) bool { return s.PainFlag && s.ACRValid && s.ACR >= 1.3 },
		},
		{
			Tag: "missed_checkin_3d", Action: persistence.ActionMissedCheckin, Weight: 0.50,
			When: func(s snapshot.Snapshot) bool { return s.DaysSinceCheckin >= 3 },
		},
		{
			Tag: "missed_checkin_7d", Action: persistence.ActionMissedCheckin, Weight: 0.30,
			When: func(s snapshot.Snapshot) bool { return s.DaysSinceCheckin >= 7 },
		},
		{
			Tag: "low_adherence", Action: persistence.ActionMissedCheckin, Weight: 0.20,
			When: func(s snapshot.Snapshot) bool { return s.HistoryDays >= 7 && s.PlanAdherence < 0.3 },
		},
	}
}

// Generator evaluates the rule set.
type Generator struct {
	rules []TriggerRule
}

// NewGenerator uses the given rules, falling back to the defaults.
func NewGenerator(ruleSet []TriggerRule) *Generator {
	if len(ruleSet) == 0 {
		ruleSet = DefaultRules()
	}
	return &Generator{rules: ruleSet}
}

// Evaluate runs every rule in order and groups fired rules by action type.
// Risk is the saturating sum min(1, Σ weight); confidence is the snapshot's
// data completeness; why_factors keep rule-evaluation order. Actions with no
// fired rule produce no candidate. Candidate order follows the first fired
// rule per action, so output is deterministic.
func (g *Generator) Evaluate(snap snapshot.Snapshot) []Candidate {
	byAction := make(map[persistence.ActionType]*Candidate)
	var actionOrder []persistence.ActionType

	for _, rule := range g.rules {
		if !rule.When(snap) {
			continue
		}
		cand, ok := byAction[rule.Action]
		if !ok {
			cand = &Candidate{
				AthleteID:       snap.AthleteID,
				Action:          rule.Action,
				ConfidenceScore: clamp01(snap.DataCompleteness),
			}
			byAction[rule.Action] = cand
			actionOrder = append(actionOrder, rule.Action)
		}
		cand.RiskScore = clamp01(cand.RiskScore + rule.Weight)
		cand.WhyFactors = append(cand.WhyFactors, rule.Tag)
	}

	out := make([]Candidate, 0, len(actionOrder))
	for _, action := range actionOrder {
		cand := byAction[action]
		cand.ExpectedImpact = impactFor(action, cand.RiskScore)
		out = append(out, *cand)
	}
	return out
}

// impactFor builds the structured expected-impact description for an action.
func impactFor(action persistence.ActionType, risk float64) persistence.Impact {
	switch action {
	case persistence.ActionReduceVolume:
		pct := 20.0
		if risk >= 0.7 {
			pct = 30.0
		}
		return persistence.Impact{
			Description:      "Cut weekly volume to bring acute load back under the chronic baseline",
			LoadReductionPct: pct,
		}
	case persistence.ActionFlagPain:
		return persistence.Impact{
			Description:      "Pause loading on the painful pattern pending triage",
			LoadReductionPct: 50.0,
		}
	case persistence.ActionRecoveryFocus:
		return persistence.Impact{
			Description:      "Swap quality sessions for recovery work until form rebounds",
			LoadReductionPct: 15.0,
		}
	case persistence.ActionMissedCheckin:
		return persistence.Impact{
			Description: "Reach out to restore the daily check-in habit",
		}
	default:
		return persistence.Impact{}
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
