package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stridelabs/trainpulse/internal/persistence"
)

func sampleEvent(typ Type) Event {
	return New(typ, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), persistence.Intervention{
		ID:        "iv1",
		AthleteID: "ath1",
		Action:    persistence.ActionFlagPain,
		Status:    persistence.StatusOpen,
	})
}

func TestNew_FreshIDs(t *testing.T) {
	a := sampleEvent(TypeCreated)
	b := sampleEvent(TypeCreated)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, TypeCreated, a.Type)
	assert.Equal(t, "iv1", a.Intervention.ID)
}

func TestLogEmitter(t *testing.T) {
	assert.NoError(t, LogEmitter{}.Emit(context.Background(), sampleEvent(TypeClosed)))
}

type stubEmitter struct {
	calls int
	err   error
}

func (s *stubEmitter) Emit(_ context.Context, _ Event) error {
	s.calls++
	return s.err
}

func TestMulti_FanOutAndFirstError(t *testing.T) {
	ok1 := &stubEmitter{}
	bad1 := &stubEmitter{err: errors.New("first failure")}
	bad2 := &stubEmitter{err: errors.New("second failure")}
	ok2 := &stubEmitter{}

	err := Multi{ok1, bad1, bad2, ok2}.Emit(context.Background(), sampleEvent(TypeCreated))

	require.EqualError(t, err, "first failure")
	for _, e := range []*stubEmitter{ok1, bad1, bad2, ok2} {
		assert.Equal(t, 1, e.calls, "every emitter is tried despite earlier failures")
	}
}

func TestMulti_Empty(t *testing.T) {
	assert.NoError(t, Multi{}.Emit(context.Background(), sampleEvent(TypeCreated)))
}

func TestHub_EmitWithoutSubscribers(t *testing.T) {
	h := NewHub()
	assert.Zero(t, h.Subscribers())
	assert.NoError(t, h.Emit(context.Background(), sampleEvent(TypeCreated)))
}
