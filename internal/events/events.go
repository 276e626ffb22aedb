// Package events carries intervention lifecycle notifications to downstream
// consumers. Delivery transport beyond this boundary (webhook fan-out,
// retries) is the subscriber's concern.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/stridelabs/trainpulse/internal/persistence"
)

// Type enumerates the emitted event kinds.
type Type string

const (
	TypeCreated Type = "intervention.created"
	TypeClosed  Type = "intervention.closed"
)

// Event is one lifecycle notification.
type Event struct {
	ID           string                   `json:"id"`
	Type         Type                     `json:"type"`
	At           time.Time                `json:"at"`
	Intervention persistence.Intervention `json:"intervention"`
}

// New builds an event with a fresh id.
func New(t Type, at time.Time, iv persistence.Intervention) Event {
	return Event{
		ID:           uuid.New().String(),
		Type:         t,
		At:           at,
		Intervention: iv,
	}
}

// Emitter receives lifecycle events. Emit must not block the engine for
// long; failures are the emitter's to report.
type Emitter interface {
	Emit(ctx context.Context, ev Event) error
}

// LogEmitter writes events to the structured log.
type LogEmitter struct{}

func (LogEmitter) Emit(_ context.Context, ev Event) error {
	log.Info().
		Str("event_id", ev.ID).
		Str("type", string(ev.Type)).
		Str("intervention_id", ev.Intervention.ID).
		Str("athlete_id", ev.Intervention.AthleteID).
		Str("action", string(ev.Intervention.Action)).
		Msg("intervention event")
	return nil
}

// Multi fans one event out to several emitters. The first error is returned
// after every emitter has been tried.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, ev Event) error {
	var firstErr error
	for _, e := range m {
		if err := e.Emit(ctx, ev); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
