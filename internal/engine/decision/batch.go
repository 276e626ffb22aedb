package decision

import (
	"context"
	"errors"

	"github.com/stridelabs/trainpulse/internal/persistence"
)

// Skip reasons reported for ids a batch could not apply.
const (
	SkipNotFound      = "not found"
	SkipAlreadyClosed = "already closed"
	SkipConflict      = "status conflict"
)

// BatchOutcome is the typed per-id result of a batch decision.
type BatchOutcome struct {
	ID      string `json:"id"`
	Applied bool   `json:"applied"`
	Reason  string `json:"reason,omitempty"`
}

// BatchResult aggregates a batch run. Every skipped id is reported with its
// reason; one bad id never fails the whole call.
type BatchResult struct {
	Applied  int            `json:"applied"`
	Skipped  int            `json:"skipped"`
	Outcomes []BatchOutcome `json:"outcomes"`
}

// BatchDecide applies one decision across many interventions in the given
// id order, with no implicit reordering or dedup beyond the per-id
// idempotency check. An invalid decision is rejected before any mutation.
func (e *Engine) BatchDecide(ctx context.Context, ids []string, d Decision, note string, modifiedAction persistence.ActionType) (BatchResult, error) {
	if _, err := Parse(string(d)); err != nil {
		return BatchResult{}, err
	}

	result := BatchResult{Outcomes: make([]BatchOutcome, 0, len(ids))}
	for _, id := range ids {
		outcome := BatchOutcome{ID: id}
		_, err := e.Decide(ctx, id, d, note, modifiedAction)
		switch {
		case err == nil:
			outcome.Applied = true
			result.Applied++
		case errors.Is(err, persistence.ErrNotFound):
			outcome.Reason = SkipNotFound
			result.Skipped++
		case errors.Is(err, persistence.ErrConflict):
			// Conflict on a closed row and losing a race both mean the row
			// was not Open when we got to it.
			outcome.Reason = SkipAlreadyClosed
			result.Skipped++
		default:
			outcome.Reason = err.Error()
			result.Skipped++
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}
	return result, nil
}
