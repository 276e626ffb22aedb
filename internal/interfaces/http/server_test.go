package http

import (
	"bytes"
	"context"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stridelabs/trainpulse/internal/clock"
	"github.com/stridelabs/trainpulse/internal/config"
	"github.com/stridelabs/trainpulse/internal/engine/decision"
	"github.com/stridelabs/trainpulse/internal/engine/guardrails"
	"github.com/stridelabs/trainpulse/internal/engine/rules"
	"github.com/stridelabs/trainpulse/internal/engine/snapshot"
	"github.com/stridelabs/trainpulse/internal/engine/stats"
	"github.com/stridelabs/trainpulse/internal/engine/syncer"
	"github.com/stridelabs/trainpulse/internal/engine/views"
	"github.com/stridelabs/trainpulse/internal/events"
	"github.com/stridelabs/trainpulse/internal/interfaces/http/handlers"
	"github.com/stridelabs/trainpulse/internal/persistence"
	"github.com/stridelabs/trainpulse/internal/persistence/memstore"
)

var serverNow = time.Date(2024, 6, 30, 8, 0, 0, 0, time.UTC)

type testApp struct {
	server *Server
	store  *memstore.Store
	clk    *clock.Fake
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	store := memstore.New()
	clk := clock.NewFake(serverNow)
	emitter := events.LogEmitter{}

	builder := snapshot.NewBuilder(store, store, store, snapshot.DefaultConfig(), clk)
	sync := syncer.New(store, builder, rules.NewGenerator(nil),
		guardrails.NewEvaluator(guardrails.DefaultConfig()), store, store, store, emitter, clk)
	h := handlers.New(
		store,
		decision.NewEngine(store, clk, emitter),
		sync,
		stats.NewAggregator(store, stats.DefaultConfig(), clk),
		views.NewService(store, store, nil, clk, 0),
		events.NewHub(),
	)
	return &testApp{
		server: NewServer(config.Default().Server, h),
		store:  store,
		clk:    clk,
	}
}

func (a *testApp) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	a.server.Router().ServeHTTP(rec, req)
	return rec
}

func (a *testApp) seedOpen(t *testing.T, id, athleteID string, action persistence.ActionType) {
	t.Helper()
	require.NoError(t, a.store.Create(context.Background(), persistence.Intervention{
		ID:         id,
		AthleteID:  athleteID,
		Action:     action,
		Status:     persistence.StatusOpen,
		RiskScore:  0.6,
		WhyFactors: []string{"acr_high"},
		CreatedAt:  serverNow.Add(-2 * time.Hour),
		UpdatedAt:  serverNow.Add(-2 * time.Hour),
	}))
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestHealth(t *testing.T) {
	a := newTestApp(t)
	rec := a.request(t, nethttp.MethodGet, "/health", nil)

	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestNotFound(t *testing.T) {
	a := newTestApp(t)
	rec := a.request(t, nethttp.MethodGet, "/nope", nil)
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	assert.Contains(t, body["error"], "/nope")
}

func TestListInterventions(t *testing.T) {
	a := newTestApp(t)
	a.seedOpen(t, "iv1", "ath1", persistence.ActionReduceVolume)
	a.seedOpen(t, "iv2", "ath2", persistence.ActionFlagPain)

	var body struct {
		Interventions []persistence.Intervention `json:"interventions"`
		Count         int                        `json:"count"`
	}

	rec := a.request(t, nethttp.MethodGet, "/interventions", nil)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	decodeBody(t, rec, &body)
	assert.Equal(t, 2, body.Count)

	rec = a.request(t, nethttp.MethodGet, "/interventions?athlete_id=ath2", nil)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	decodeBody(t, rec, &body)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "iv2", body.Interventions[0].ID)

	rec = a.request(t, nethttp.MethodGet, "/interventions?status=closed", nil)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	decodeBody(t, rec, &body)
	assert.Zero(t, body.Count)
	assert.NotNil(t, body.Interventions, "empty list, not null")

	rec = a.request(t, nethttp.MethodGet, "/interventions?status=bogus", nil)
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
}

func TestDecide(t *testing.T) {
	a := newTestApp(t)
	a.seedOpen(t, "iv1", "ath1", persistence.ActionReduceVolume)

	rec := a.request(t, nethttp.MethodPost, "/interventions/iv1/decision",
		map[string]string{"decision": "defer_24h", "note": "travel"})
	require.Equal(t, nethttp.StatusOK, rec.Code)

	var body struct {
		Intervention persistence.Intervention `json:"intervention"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, persistence.StatusDeferred, body.Intervention.Status)
	require.NotNil(t, body.Intervention.CooldownUntil)
	assert.Equal(t, serverNow.Add(24*time.Hour), *body.Intervention.CooldownUntil)
}

func TestDecide_ErrorMapping(t *testing.T) {
	a := newTestApp(t)
	a.seedOpen(t, "iv1", "ath1", persistence.ActionReduceVolume)

	rec := a.request(t, nethttp.MethodPost, "/interventions/iv1/decision",
		map[string]string{"decision": "snooze"})
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code, "unknown decision")

	rec = a.request(t, nethttp.MethodPost, "/interventions/ghost/decision",
		map[string]string{"decision": "dismiss"})
	assert.Equal(t, nethttp.StatusNotFound, rec.Code)

	rec = a.request(t, nethttp.MethodPost, "/interventions/iv1/decision",
		map[string]string{"decision": "dismiss"})
	require.Equal(t, nethttp.StatusOK, rec.Code)
	rec = a.request(t, nethttp.MethodPost, "/interventions/iv1/decision",
		map[string]string{"decision": "dismiss"})
	assert.Equal(t, nethttp.StatusConflict, rec.Code, "already closed")
}

func TestBatchDecide(t *testing.T) {
	a := newTestApp(t)
	a.seedOpen(t, "iv1", "ath1", persistence.ActionReduceVolume)
	a.seedOpen(t, "iv2", "ath1", persistence.ActionFlagPain)

	rec := a.request(t, nethttp.MethodPost, "/interventions/iv2/decision",
		map[string]string{"decision": "accept_and_close"})
	require.Equal(t, nethttp.StatusOK, rec.Code)

	rec = a.request(t, nethttp.MethodPost, "/interventions/decisions", map[string]interface{}{
		"ids":      []string{"iv1", "iv2", "ghost"},
		"decision": "dismiss",
	})
	require.Equal(t, nethttp.StatusOK, rec.Code)

	var result decision.BatchResult
	decodeBody(t, rec, &result)
	assert.Equal(t, 1, result.Applied)
	assert.Equal(t, 2, result.Skipped)
	require.Len(t, result.Outcomes, 3)
	assert.Equal(t, decision.SkipAlreadyClosed, result.Outcomes[1].Reason)
	assert.Equal(t, decision.SkipNotFound, result.Outcomes[2].Reason)
}

func TestBatchDecide_EmptyIDs(t *testing.T) {
	a := newTestApp(t)
	rec := a.request(t, nethttp.MethodPost, "/interventions/decisions", map[string]interface{}{
		"ids":      []string{},
		"decision": "dismiss",
	})
	assert.Equal(t, nethttp.StatusBadRequest, rec.Code)
}

func TestStats(t *testing.T) {
	a := newTestApp(t)
	a.seedOpen(t, "iv1", "ath1", persistence.ActionReduceVolume)

	rec := a.request(t, nethttp.MethodGet, "/interventions/stats", nil)
	require.Equal(t, nethttp.StatusOK, rec.Code)

	var s stats.Stats
	decodeBody(t, rec, &s)
	assert.Equal(t, 1, s.OpenCount)
	assert.InDelta(t, 2.0, s.MedianAgeHours, 1e-9)
}

func TestTriggerSync(t *testing.T) {
	a := newTestApp(t)
	a.store.AddAthlete("ath1")

	rec := a.request(t, nethttp.MethodPost, "/sync", nil)
	require.Equal(t, nethttp.StatusOK, rec.Code)

	var body struct {
		Message string        `json:"message"`
		Result  syncer.Result `json:"result"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, 1, body.Result.Athletes)
	assert.Contains(t, body.Message, "synced 1 athletes")
}

func TestAthleteViews(t *testing.T) {
	a := newTestApp(t)

	rec := a.request(t, nethttp.MethodGet, "/athletes/ath1/training-load", nil)
	assert.Equal(t, nethttp.StatusOK, rec.Code)

	rec = a.request(t, nethttp.MethodGet, "/athletes/ath1/fitness", nil)
	require.Equal(t, nethttp.StatusOK, rec.Code)
	var view views.FitnessView
	decodeBody(t, rec, &view)
	assert.False(t, view.HasData)

	rec = a.request(t, nethttp.MethodGet, "/athletes/ath1/performance", nil)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	a := newTestApp(t)
	rec := a.request(t, nethttp.MethodGet, "/metrics", nil)
	assert.Equal(t, nethttp.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "trainpulse_")
}
