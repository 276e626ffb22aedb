package guardrails

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stridelabs/trainpulse/internal/engine/rules"
	"github.com/stridelabs/trainpulse/internal/engine/snapshot"
	"github.com/stridelabs/trainpulse/internal/persistence"
)

func snapWith(phase persistence.Phase, completeness float64) snapshot.Snapshot {
	return snapshot.Snapshot{AthleteID: "ath1", Phase: phase, DataCompleteness: completeness}
}

func cand(action persistence.ActionType) rules.Candidate {
	return rules.Candidate{AthleteID: "ath1", Action: action, RiskScore: 0.5}
}

func TestEvaluate_AllPass(t *testing.T) {
	e := NewEvaluator(DefaultConfig())
	res := e.Evaluate(snapWith(persistence.PhaseBuild, 0.9), cand(persistence.ActionReduceVolume), false)

	assert.True(t, res.Pass)
	assert.Empty(t, res.Reason)
	require.Len(t, res.Checks, 3)
	for _, c := range res.Checks {
		assert.True(t, c.Passed, c.Name)
	}
}

func TestEvaluate_TaperBlocksVolumeCut(t *testing.T) {
	e := NewEvaluator(DefaultConfig())
	for _, phase := range []persistence.Phase{persistence.PhaseTaper, persistence.PhaseRace} {
		res := e.Evaluate(snapWith(phase, 0.9), cand(persistence.ActionReduceVolume), false)
		assert.False(t, res.Pass, string(phase))
		assert.Contains(t, res.Reason, "volume reduction suppressed")
	}
}

func TestEvaluate_TaperAllowsOtherActions(t *testing.T) {
	e := NewEvaluator(DefaultConfig())
	res := e.Evaluate(snapWith(persistence.PhaseTaper, 0.9), cand(persistence.ActionFlagPain), false)
	assert.True(t, res.Pass, "only volume cuts are phase-gated")
}

func TestEvaluate_DuplicateActive(t *testing.T) {
	e := NewEvaluator(DefaultConfig())
	res := e.Evaluate(snapWith(persistence.PhaseBuild, 0.9), cand(persistence.ActionRecoveryFocus), true)
	assert.False(t, res.Pass)
	assert.Contains(t, res.Reason, "already exists")
}

func TestEvaluate_CompletenessFloor(t *testing.T) {
	e := NewEvaluator(DefaultConfig())
	res := e.Evaluate(snapWith(persistence.PhaseBuild, 0.2), cand(persistence.ActionReduceVolume), false)
	assert.False(t, res.Pass)
	assert.Contains(t, res.Reason, "below floor")
}

func TestEvaluate_PainExemptFromCompletenessFloor(t *testing.T) {
	e := NewEvaluator(DefaultConfig())
	res := e.Evaluate(snapWith(persistence.PhaseBuild, 0.05), cand(persistence.ActionFlagPain), false)
	assert.True(t, res.Pass, "a pain report is actionable however sparse the diary")
}

func TestEvaluate_FirstFailureWins(t *testing.T) {
	// Taper + duplicate + thin data: the reason must come from the first
	// check in evaluation order.
	e := NewEvaluator(DefaultConfig())
	res := e.Evaluate(snapWith(persistence.PhaseTaper, 0.1), cand(persistence.ActionReduceVolume), true)

	assert.False(t, res.Pass)
	assert.Contains(t, res.Reason, "volume reduction suppressed")

	failed := 0
	for _, c := range res.Checks {
		if !c.Passed {
			failed++
		}
	}
	assert.Equal(t, 3, failed, "all checks still reported individually")
}

func TestNewEvaluator_ZeroConfigGetsDefaults(t *testing.T) {
	e := NewEvaluator(Config{})
	res := e.Evaluate(snapWith(persistence.PhaseBuild, 0.1), cand(persistence.ActionReduceVolume), false)
	assert.False(t, res.Pass, "defaults applied when config is zero")
}
