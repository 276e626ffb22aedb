package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/stridelabs/trainpulse/internal/domain/fitness"
	"github.com/stridelabs/trainpulse/internal/domain/load"
	"github.com/stridelabs/trainpulse/internal/domain/performance"
	"github.com/stridelabs/trainpulse/internal/domain/readiness"
)

// Sentinel errors shared by every store implementation. Conflict is distinct
// from not-found: a decision racing another writer must be reported, not
// retried blindly.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("status conflict")
)

// Status is the intervention lifecycle state.
type Status string

const (
	StatusOpen     Status = "open"
	StatusDeferred Status = "deferred"
	StatusClosed   Status = "closed"
)

// ActionType enumerates the coaching actions an intervention can recommend.
type ActionType string

const (
	ActionReduceVolume  ActionType = "reduce_volume"
	ActionFlagPain      ActionType = "flag_pain"
	ActionMissedCheckin ActionType = "missed_checkin_followup"
	ActionRecoveryFocus ActionType = "recovery_focus"
)

// Impact describes an action's anticipated effect.
type Impact struct {
	Description      string  `json:"description"`
	LoadReductionPct float64 `json:"load_reduction_pct"`
}

// Intervention is the persisted coaching-action row. Created by the
// generator, mutated only through status transitions, never deleted: Closed
// is soft-terminal. WhyFactors holds triggered-rule tags plus append-only,
// chronologically ordered decision:* audit tags.
type Intervention struct {
	ID              string     `json:"id" db:"id"`
	AthleteID       string     `json:"athlete_id" db:"athlete_id"`
	Action          ActionType `json:"action" db:"action"`
	Status          Status     `json:"status" db:"status"`
	RiskScore       float64    `json:"risk_score" db:"risk_score"`
	ConfidenceScore float64    `json:"confidence_score" db:"confidence_score"`
	WhyFactors      []string   `json:"why_factors" db:"why_factors"`
	GuardrailPass   bool       `json:"guardrail_pass" db:"guardrail_pass"`
	GuardrailReason string     `json:"guardrail_reason" db:"guardrail_reason"`
	ExpectedImpact  Impact     `json:"expected_impact" db:"expected_impact"`
	DecisionNote    string     `json:"decision_note,omitempty" db:"decision_note"`
	CooldownUntil   *time.Time `json:"cooldown_until,omitempty" db:"cooldown_until"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at" db:"updated_at"`
}

// Active reports whether the row occupies the per-(athlete, action) dedup
// slot.
func (iv Intervention) Active() bool {
	return iv.Status == StatusOpen || iv.Status == StatusDeferred
}

// InterventionFilter narrows List results.
type InterventionFilter struct {
	AthleteID string
	Statuses  []Status // empty = all
}

// Transition is the mutation applied by a compare-and-swap status change.
// AppendFactors preserves order; CooldownUntil nil clears any cooldown.
type Transition struct {
	To            Status
	CooldownUntil *time.Time
	AppendFactors []string
	Note          string
}

// CandidateUpdate refreshes an existing active row from a regenerated
// candidate. MergeFactors are added set-wise so re-running Sync with
// unchanged data appends nothing.
type CandidateUpdate struct {
	RiskScore       float64
	ConfidenceScore float64
	GuardrailPass   bool
	GuardrailReason string
	ExpectedImpact  Impact
	MergeFactors    []string
}

// InterventionRepo is the intervention store. TransitionCAS compares against
// the caller-observed status and returns ErrConflict when the row moved.
type InterventionRepo interface {
	List(ctx context.Context, filter InterventionFilter) ([]Intervention, error)
	Get(ctx context.Context, id string) (Intervention, error)
	Create(ctx context.Context, iv Intervention) error
	// FindActive returns the Open or Deferred row holding the dedup slot.
	FindActive(ctx context.Context, athleteID string, action ActionType) (Intervention, bool, error)
	TransitionCAS(ctx context.Context, id string, observed Status, tr Transition, now time.Time) (Intervention, error)
	UpdateCandidate(ctx context.Context, id string, upd CandidateUpdate, now time.Time) (Intervention, error)
}

// TrainingLogStore is the read-only source of per-day training loads.
// Raw capture lives outside this engine.
type TrainingLogStore interface {
	DailyLoads(ctx context.Context, athleteID string, from, to time.Time) ([]load.DailyLoad, error)
}

// CheckinStore is the read-only source of readiness check-ins.
type CheckinStore interface {
	Samples(ctx context.Context, athleteID string, from, to time.Time) ([]readiness.Sample, error)
}

// Phase is the plan phase context consumed by guardrails.
type Phase string

const (
	PhaseBase     Phase = "base"
	PhaseBuild    Phase = "build"
	PhasePeak     Phase = "peak"
	PhaseTaper    Phase = "taper"
	PhaseRace     Phase = "race"
	PhaseRecovery Phase = "recovery"
)

// PlanProvider supplies the current plan phase for an athlete.
type PlanProvider interface {
	CurrentPhase(ctx context.Context, athleteID string, now time.Time) (Phase, error)
}

// Roster enumerates the athletes in scope for sync and stats.
type Roster interface {
	AthleteIDs(ctx context.Context) ([]string, error)
}

// FitnessRepo stores the derived CTL/ATL/TSB series. ReplaceSeries swaps the
// whole series atomically; the series is regenerated, never edited in place.
type FitnessRepo interface {
	ReplaceSeries(ctx context.Context, athleteID string, points []fitness.Point) error
	Series(ctx context.Context, athleteID string) ([]fitness.Point, error)
}

// PerformanceRepo stores dated VDOT estimates.
type PerformanceRepo interface {
	Add(ctx context.Context, est performance.Estimate) error
	Estimates(ctx context.Context, athleteID string) ([]performance.Estimate, error)
}

// MergeFactors returns existing with any of added appended that are not
// already present, preserving order of first appearance.
func MergeFactors(existing, added []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, f := range existing {
		seen[f] = struct{}{}
	}
	merged := existing
	for _, f := range added {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		merged = append(merged, f)
	}
	return merged
}
