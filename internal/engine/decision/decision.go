// Package decision owns the intervention lifecycle: Open → Deferred/Closed
// with optimistic concurrency on the status field. Closed is terminal; no
// automatic path ever reopens it.
package decision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stridelabs/trainpulse/internal/clock"
	"github.com/stridelabs/trainpulse/internal/events"
	"github.com/stridelabs/trainpulse/internal/metrics"
	"github.com/stridelabs/trainpulse/internal/persistence"
)

// ErrInvalidDecision is returned before any state change when the decision
// value is unknown.
var ErrInvalidDecision = errors.New("invalid decision")

// Decision is a coach's verdict on an open intervention.
type Decision string

const (
	DecisionAcceptClose Decision = "accept_and_close"
	DecisionDefer24h    Decision = "defer_24h"
	DecisionDefer72h    Decision = "defer_72h"
	DecisionDismiss     Decision = "dismiss"
)

// Parse validates a decision value.
func Parse(s string) (Decision, error) {
	switch d := Decision(s); d {
	case DecisionAcceptClose, DecisionDefer24h, DecisionDefer72h, DecisionDismiss:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDecision, s)
	}
}

// cooldown returns the defer window for a decision, 0 for terminal ones.
func (d Decision) cooldown() time.Duration {
	switch d {
	case DecisionDefer24h:
		return 24 * time.Hour
	case DecisionDefer72h:
		return 72 * time.Hour
	default:
		return 0
	}
}

// target returns the post-decision status.
func (d Decision) target() persistence.Status {
	switch d {
	case DecisionDefer24h, DecisionDefer72h:
		return persistence.StatusDeferred
	default:
		return persistence.StatusClosed
	}
}

// Engine applies decisions against the intervention store.
type Engine struct {
	repo    persistence.InterventionRepo
	clk     clock.Clock
	emitter events.Emitter
}

// NewEngine wires the store, clock and event emitter.
func NewEngine(repo persistence.InterventionRepo, clk clock.Clock, emitter events.Emitter) *Engine {
	if emitter == nil {
		emitter = events.LogEmitter{}
	}
	return &Engine{repo: repo, clk: clk, emitter: emitter}
}

// Decide applies one decision. The transition is a compare-and-swap against
// the observed status: deciding a Closed intervention is a conflict
// (distinct from not-found), and losing a race to a concurrent writer is
// reported the same way. A Deferred intervention may be decided early;
// defer is not a lock against manual override.
func (e *Engine) Decide(ctx context.Context, id string, d Decision, note string, modifiedAction persistence.ActionType) (persistence.Intervention, error) {
	if _, err := Parse(string(d)); err != nil {
		return persistence.Intervention{}, err
	}
	if modifiedAction != "" {
		if err := validateAction(modifiedAction); err != nil {
			return persistence.Intervention{}, err
		}
	}

	current, err := e.repo.Get(ctx, id)
	if err != nil {
		return persistence.Intervention{}, err
	}
	if current.Status == persistence.StatusClosed {
		return persistence.Intervention{}, fmt.Errorf("intervention %s already closed: %w", id, persistence.ErrConflict)
	}

	now := e.clk.Now()
	tr := persistence.Transition{
		To:            d.target(),
		AppendFactors: auditFactors(d, modifiedAction),
		Note:          note,
	}
	if cd := d.cooldown(); cd > 0 {
		until := now.Add(cd)
		tr.CooldownUntil = &until
	}

	updated, err := e.repo.TransitionCAS(ctx, id, current.Status, tr, now)
	if err != nil {
		return persistence.Intervention{}, err
	}

	metrics.Decisions.WithLabelValues(string(d)).Inc()
	log.Info().
		Str("intervention_id", id).
		Str("decision", string(d)).
		Str("status", string(updated.Status)).
		Msg("decision applied")

	if updated.Status == persistence.StatusClosed {
		if err := e.emitter.Emit(ctx, events.New(events.TypeClosed, now, updated)); err != nil {
			log.Warn().Err(err).Str("intervention_id", id).Msg("closed event emission failed")
		}
	}
	return updated, nil
}

// auditFactors builds the append-only decision:* trail entries.
func auditFactors(d Decision, modifiedAction persistence.ActionType) []string {
	factors := []string{"decision:" + string(d)}
	if modifiedAction != "" {
		factors = append(factors, "decision:modified_action:"+string(modifiedAction))
	}
	return factors
}

func validateAction(a persistence.ActionType) error {
	switch a {
	case persistence.ActionReduceVolume, persistence.ActionFlagPain,
		persistence.ActionMissedCheckin, persistence.ActionRecoveryFocus:
		return nil
	default:
		return fmt.Errorf("unknown action type %q", a)
	}
}
