// Package syncer drives regeneration: it re-scans the roster, rebuilds
// snapshots, re-runs the generator and upserts candidate interventions while
// honoring the one-active-row-per-(athlete, action) dedup invariant. Running
// it twice with no new underlying data changes nothing.
package syncer

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/stridelabs/trainpulse/internal/clock"
	"github.com/stridelabs/trainpulse/internal/domain/fitness"
	"github.com/stridelabs/trainpulse/internal/domain/load"
	"github.com/stridelabs/trainpulse/internal/engine/guardrails"
	"github.com/stridelabs/trainpulse/internal/engine/rules"
	"github.com/stridelabs/trainpulse/internal/engine/snapshot"
	"github.com/stridelabs/trainpulse/internal/events"
	"github.com/stridelabs/trainpulse/internal/metrics"
	"github.com/stridelabs/trainpulse/internal/persistence"
)

// AthleteError records one athlete's failure without aborting the run.
type AthleteError struct {
	AthleteID string `json:"athlete_id"`
	Error     string `json:"error"`
}

// Result summarizes one sync pass.
type Result struct {
	Athletes    int            `json:"athletes"`
	Created     int            `json:"created"`
	Updated     int            `json:"updated"`
	Reopened    int            `json:"reopened"`
	ClosedStale int            `json:"closed_stale"`
	Errors      []AthleteError `json:"errors,omitempty"`
	Duration    time.Duration  `json:"duration"`
}

// Summary renders the one-line human summary surfaced by the trigger API.
func (r Result) Summary() string {
	return fmt.Sprintf("synced %d athletes: %d created, %d updated, %d reopened, %d closed stale, %d errors",
		r.Athletes, r.Created, r.Updated, r.Reopened, r.ClosedStale, len(r.Errors))
}

// Syncer orchestrates the regeneration pipeline.
type Syncer struct {
	roster    persistence.Roster
	builder   *snapshot.Builder
	generator *rules.Generator
	guards    *guardrails.Evaluator
	repo      persistence.InterventionRepo
	fitRepo   persistence.FitnessRepo
	logs      persistence.TrainingLogStore
	emitter   events.Emitter
	clk       clock.Clock
}

// New wires the pipeline. fitRepo may be nil when the derived series is not
// persisted.
func New(
	roster persistence.Roster,
	builder *snapshot.Builder,
	generator *rules.Generator,
	guards *guardrails.Evaluator,
	repo persistence.InterventionRepo,
	fitRepo persistence.FitnessRepo,
	logs persistence.TrainingLogStore,
	emitter events.Emitter,
	clk clock.Clock,
) *Syncer {
	if emitter == nil {
		emitter = events.LogEmitter{}
	}
	return &Syncer{
		roster:    roster,
		builder:   builder,
		generator: generator,
		guards:    guards,
		repo:      repo,
		fitRepo:   fitRepo,
		logs:      logs,
		emitter:   emitter,
		clk:       clk,
	}
}

// Run executes one sync pass. Athletes are processed independently: one
// athlete's failure is collected and the rest proceed. The pass is
// interruptible between athletes via ctx.
func (s *Syncer) Run(ctx context.Context) (Result, error) {
	start := s.clk.Now()
	var result Result

	athletes, err := s.roster.AthleteIDs(ctx)
	if err != nil {
		return result, fmt.Errorf("load roster: %w", err)
	}
	result.Athletes = len(athletes)

	for _, athleteID := range athletes {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if err := s.syncAthlete(ctx, athleteID, &result); err != nil {
			log.Warn().Err(err).Str("athlete_id", athleteID).Msg("athlete sync failed")
			metrics.SyncAthleteErrors.Inc()
			result.Errors = append(result.Errors, AthleteError{AthleteID: athleteID, Error: err.Error()})
		}
	}

	result.Duration = s.clk.Now().Sub(start)
	metrics.SyncRuns.Inc()
	metrics.SyncDuration.Observe(result.Duration.Seconds())
	log.Info().
		Int("athletes", result.Athletes).
		Int("created", result.Created).
		Int("updated", result.Updated).
		Int("reopened", result.Reopened).
		Int("closed_stale", result.ClosedStale).
		Int("errors", len(result.Errors)).
		Msg("sync pass complete")
	return result, nil
}

func (s *Syncer) syncAthlete(ctx context.Context, athleteID string, result *Result) error {
	snap, err := s.builder.Build(ctx, athleteID)
	if err != nil {
		return err
	}

	if s.fitRepo != nil {
		if err := s.regenerateFitness(ctx, athleteID, snap.Now); err != nil {
			return err
		}
	}

	candidates := s.generator.Evaluate(snap)
	byAction := make(map[persistence.ActionType]rules.Candidate, len(candidates))
	for _, cand := range candidates {
		byAction[cand.Action] = cand
	}

	// Existing active rows first: refresh matching candidates, handle
	// cooldown expiry on deferred rows.
	active, err := s.repo.List(ctx, persistence.InterventionFilter{
		AthleteID: athleteID,
		Statuses:  []persistence.Status{persistence.StatusOpen, persistence.StatusDeferred},
	})
	if err != nil {
		return fmt.Errorf("list active interventions: %w", err)
	}

	handled := make(map[persistence.ActionType]bool, len(active))
	for _, iv := range active {
		handled[iv.Action] = true
		cand, stillFiring := byAction[iv.Action]

		switch iv.Status {
		case persistence.StatusOpen:
			if stillFiring {
				if err := s.refresh(ctx, snap, iv, cand, result); err != nil {
					return err
				}
			}
			// An open row whose trigger cleared stays open: closing it is
			// the coach's call, not the generator's.

		case persistence.StatusDeferred:
			if iv.CooldownUntil == nil || snap.Now.Before(*iv.CooldownUntil) {
				continue
			}
			if stillFiring {
				if err := s.reopen(ctx, snap, iv, cand, result); err != nil {
					return err
				}
			} else {
				if err := s.closeStale(ctx, snap.Now, iv, result); err != nil {
					return err
				}
			}
		}
	}

	// New candidates claim empty dedup slots.
	for _, cand := range candidates {
		if handled[cand.Action] {
			continue
		}
		if err := s.create(ctx, snap, cand, result); err != nil {
			return err
		}
	}
	return nil
}

// regenerateFitness rebuilds the derived CTL/ATL/TSB series from load
// history and swaps it into the store.
func (s *Syncer) regenerateFitness(ctx context.Context, athleteID string, now time.Time) error {
	today := load.Midnight(now)
	from := today.AddDate(0, 0, -(load.DefaultThresholds().ChronicDays + snapshot.TauSettleDays))
	loads, err := s.logs.DailyLoads(ctx, athleteID, from, today)
	if err != nil {
		return fmt.Errorf("fetch loads for fitness series: %w", err)
	}
	points := fitness.ComputeSeries(athleteID, loads, today)
	if err := s.fitRepo.ReplaceSeries(ctx, athleteID, points); err != nil {
		return fmt.Errorf("replace fitness series: %w", err)
	}
	return nil
}

func (s *Syncer) create(ctx context.Context, snap snapshot.Snapshot, cand rules.Candidate, result *Result) error {
	gr := s.guards.Evaluate(snap, cand, false)
	iv := persistence.Intervention{
		ID:              uuid.New().String(),
		AthleteID:       cand.AthleteID,
		Action:          cand.Action,
		Status:          persistence.StatusOpen,
		RiskScore:       cand.RiskScore,
		ConfidenceScore: cand.ConfidenceScore,
		WhyFactors:      append([]string{}, cand.WhyFactors...),
		GuardrailPass:   gr.Pass,
		GuardrailReason: gr.Reason,
		ExpectedImpact:  cand.ExpectedImpact,
		CreatedAt:       snap.Now,
		UpdatedAt:       snap.Now,
	}
	if err := s.repo.Create(ctx, iv); err != nil {
		return fmt.Errorf("create %s intervention: %w", cand.Action, err)
	}
	result.Created++
	metrics.InterventionsCreated.Inc()
	if err := s.emitter.Emit(ctx, events.New(events.TypeCreated, snap.Now, iv)); err != nil {
		log.Warn().Err(err).Str("intervention_id", iv.ID).Msg("created event emission failed")
	}
	return nil
}

// refresh merges a regenerated candidate into an existing open row. Factor
// merge is set-wise, so an unchanged candidate appends nothing.
func (s *Syncer) refresh(ctx context.Context, snap snapshot.Snapshot, iv persistence.Intervention, cand rules.Candidate, result *Result) error {
	gr := s.guards.Evaluate(snap, cand, false)
	before := iv
	updated, err := s.repo.UpdateCandidate(ctx, iv.ID, persistence.CandidateUpdate{
		RiskScore:       cand.RiskScore,
		ConfidenceScore: cand.ConfidenceScore,
		GuardrailPass:   gr.Pass,
		GuardrailReason: gr.Reason,
		ExpectedImpact:  cand.ExpectedImpact,
		MergeFactors:    append([]string{}, cand.WhyFactors...),
	}, snap.Now)
	if err != nil {
		return fmt.Errorf("refresh intervention %s: %w", iv.ID, err)
	}
	if changedCandidate(before, updated) {
		result.Updated++
	}
	return nil
}

func changedCandidate(before, after persistence.Intervention) bool {
	return before.RiskScore != after.RiskScore ||
		before.ConfidenceScore != after.ConfidenceScore ||
		before.GuardrailPass != after.GuardrailPass ||
		before.GuardrailReason != after.GuardrailReason ||
		len(before.WhyFactors) != len(after.WhyFactors)
}

// reopen returns an expired deferred row to Open under the same identity and
// merges the fresh trigger tags.
func (s *Syncer) reopen(ctx context.Context, snap snapshot.Snapshot, iv persistence.Intervention, cand rules.Candidate, result *Result) error {
	reopened, err := s.repo.TransitionCAS(ctx, iv.ID, persistence.StatusDeferred, persistence.Transition{
		To:            persistence.StatusOpen,
		CooldownUntil: nil,
		AppendFactors: []string{"decision:reopened"},
	}, snap.Now)
	if err != nil {
		return fmt.Errorf("reopen intervention %s: %w", iv.ID, err)
	}
	result.Reopened++
	metrics.InterventionsReopened.Inc()
	return s.refresh(ctx, snap, reopened, cand, result)
}

// closeStale closes an expired deferred row whose trigger no longer holds.
func (s *Syncer) closeStale(ctx context.Context, now time.Time, iv persistence.Intervention, result *Result) error {
	closed, err := s.repo.TransitionCAS(ctx, iv.ID, persistence.StatusDeferred, persistence.Transition{
		To:            persistence.StatusClosed,
		CooldownUntil: nil,
		AppendFactors: []string{"decision:closed_stale"},
	}, now)
	if err != nil {
		return fmt.Errorf("close stale intervention %s: %w", iv.ID, err)
	}
	result.ClosedStale++
	metrics.InterventionsClosedStale.Inc()
	if err := s.emitter.Emit(ctx, events.New(events.TypeClosed, now, closed)); err != nil {
		log.Warn().Err(err).Str("intervention_id", iv.ID).Msg("closed event emission failed")
	}
	return nil
}
