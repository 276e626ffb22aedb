package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stridelabs/trainpulse/internal/clock"
	"github.com/stridelabs/trainpulse/internal/persistence"
	"github.com/stridelabs/trainpulse/internal/persistence/memstore"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func row(id string, status persistence.Status, action persistence.ActionType, risk float64, ageHours float64, guardrailPass bool) persistence.Intervention {
	created := now.Add(-time.Duration(ageHours * float64(time.Hour)))
	return persistence.Intervention{
		ID:            id,
		AthleteID:     "ath1",
		Action:        action,
		Status:        status,
		RiskScore:     risk,
		GuardrailPass: guardrailPass,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func TestCompute_Empty(t *testing.T) {
	s := Compute(nil, DefaultConfig(), now)
	assert.Zero(t, s.OpenCount)
	assert.Zero(t, s.MedianAgeHours)
	assert.Equal(t, now, s.GeneratedAt)
}

func TestCompute_Counts(t *testing.T) {
	items := []persistence.Intervention{
		row("iv1", persistence.StatusOpen, persistence.ActionReduceVolume, 0.8, 10, true),
		row("iv2", persistence.StatusOpen, persistence.ActionRecoveryFocus, 0.5, 30, false),
		row("iv3", persistence.StatusDeferred, persistence.ActionFlagPain, 0.9, 50, true),
	}
	s := Compute(items, DefaultConfig(), now)

	assert.Equal(t, 2, s.OpenCount, "deferred rows are snoozed, not open")
	assert.Equal(t, 1, s.Snoozed)
	assert.Equal(t, 1, s.HighPriority, "risk at or above 0.75, open rows only")
	assert.Equal(t, 1, s.ActionableNow, "guardrail pass and open")
}

func TestCompute_Ages(t *testing.T) {
	items := []persistence.Intervention{
		row("iv1", persistence.StatusOpen, persistence.ActionReduceVolume, 0.5, 10, true),
		row("iv2", persistence.StatusOpen, persistence.ActionReduceVolume, 0.5, 20, true),
		row("iv3", persistence.StatusOpen, persistence.ActionReduceVolume, 0.5, 90, true),
	}
	s := Compute(items, DefaultConfig(), now)

	assert.InDelta(t, 20.0, s.MedianAgeHours, 1e-9)
	assert.InDelta(t, 90.0, s.OldestAgeHours, 1e-9)

	items = items[:2]
	s = Compute(items, DefaultConfig(), now)
	assert.InDelta(t, 15.0, s.MedianAgeHours, 1e-9, "even count takes the midpoint")
}

func TestCompute_SLABuckets(t *testing.T) {
	cfg := DefaultConfig()
	items := []persistence.Intervention{
		// Default 7d window: due_72h from 96h, due_24h from 144h.
		row("fresh", persistence.StatusOpen, persistence.ActionReduceVolume, 0.5, 10, true),
		row("warm", persistence.StatusOpen, persistence.ActionReduceVolume, 0.5, 100, true),
		row("hot", persistence.StatusOpen, persistence.ActionReduceVolume, 0.5, 150, true),
		// Pain window is 48h: due immediately at 25h of age.
		row("pain", persistence.StatusOpen, persistence.ActionFlagPain, 0.5, 25, true),
	}
	s := Compute(items, cfg, now)

	assert.Equal(t, 2, s.SLADue24h, "hot + pain")
	assert.Equal(t, 3, s.SLADue72h, "warm + hot + pain")
}

func TestCompute_SnapshotConsistency(t *testing.T) {
	items := []persistence.Intervention{
		row("iv1", persistence.StatusOpen, persistence.ActionReduceVolume, 0.9, 10, true),
		row("iv2", persistence.StatusDeferred, persistence.ActionFlagPain, 0.9, 10, true),
	}
	s := Compute(items, DefaultConfig(), now)
	assert.Equal(t, s.OpenCount+s.Snoozed, len(items),
		"every field comes from the same snapshot, counts never skew")
	assert.LessOrEqual(t, s.HighPriority, s.OpenCount)
	assert.LessOrEqual(t, s.ActionableNow, s.OpenCount)
}

func TestAggregator_Current(t *testing.T) {
	store := memstore.New()
	clk := clock.NewFake(now)
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, row("iv1", persistence.StatusOpen, persistence.ActionReduceVolume, 0.8, 5, true)))
	require.NoError(t, store.Create(ctx, row("iv2", persistence.StatusOpen, persistence.ActionFlagPain, 0.4, 5, true)))

	closed := row("iv3", persistence.StatusOpen, persistence.ActionRecoveryFocus, 0.4, 5, true)
	require.NoError(t, store.Create(ctx, closed))
	_, err := store.TransitionCAS(ctx, "iv3", persistence.StatusOpen,
		persistence.Transition{To: persistence.StatusClosed}, now)
	require.NoError(t, err)

	agg := NewAggregator(store, DefaultConfig(), clk)
	s, err := agg.Current(ctx, "")
	require.NoError(t, err)

	assert.Equal(t, 2, s.OpenCount, "closed rows are out of scope")
	assert.Equal(t, 1, s.HighPriority)
	assert.Equal(t, now, s.GeneratedAt)
}

func TestAggregator_AthleteScope(t *testing.T) {
	store := memstore.New()
	clk := clock.NewFake(now)
	ctx := context.Background()

	iv := row("iv1", persistence.StatusOpen, persistence.ActionReduceVolume, 0.5, 5, true)
	require.NoError(t, store.Create(ctx, iv))
	other := row("iv2", persistence.StatusOpen, persistence.ActionReduceVolume, 0.5, 5, true)
	other.AthleteID = "ath2"
	require.NoError(t, store.Create(ctx, other))

	agg := NewAggregator(store, DefaultConfig(), clk)
	s, err := agg.Current(ctx, "ath2")
	require.NoError(t, err)
	assert.Equal(t, 1, s.OpenCount)
}
