// Package handlers implements the engine's HTTP endpoints. Handlers decode,
// delegate and encode; all semantics live in the engine packages.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/stridelabs/trainpulse/internal/engine/decision"
	"github.com/stridelabs/trainpulse/internal/engine/stats"
	"github.com/stridelabs/trainpulse/internal/engine/syncer"
	"github.com/stridelabs/trainpulse/internal/engine/views"
	"github.com/stridelabs/trainpulse/internal/events"
	"github.com/stridelabs/trainpulse/internal/persistence"
)

// Handlers bundles the engine dependencies behind the HTTP surface.
type Handlers struct {
	repo      persistence.InterventionRepo
	decisions *decision.Engine
	syncer    *syncer.Syncer
	stats     *stats.Aggregator
	views     *views.Service
	hub       *events.Hub
	upgrader  websocket.Upgrader
}

// New wires the handler set. hub may be nil to disable the live feed.
func New(repo persistence.InterventionRepo, decisions *decision.Engine, sync *syncer.Syncer, agg *stats.Aggregator, viewSvc *views.Service, hub *events.Hub) *Handlers {
	return &Handlers{
		repo:      repo,
		decisions: decisions,
		syncer:    sync,
		stats:     agg,
		views:     viewSvc,
		hub:       hub,
		upgrader:  websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
	}
}

// Health reports liveness.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// NotFound is the JSON 404 handler.
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "no such endpoint: "+r.URL.Path)
}

// ListInterventions filters by status (open|closed|all, default open) and
// optional athlete id. The open filter includes deferred rows: they are
// still part of the working queue, just snoozed.
func (h *Handlers) ListInterventions(w http.ResponseWriter, r *http.Request) {
	filter := persistence.InterventionFilter{AthleteID: r.URL.Query().Get("athlete_id")}
	switch status := strings.ToLower(r.URL.Query().Get("status")); status {
	case "", "open":
		filter.Statuses = []persistence.Status{persistence.StatusOpen, persistence.StatusDeferred}
	case "closed":
		filter.Statuses = []persistence.Status{persistence.StatusClosed}
	case "all":
	default:
		writeError(w, http.StatusBadRequest, "unknown status filter: "+status)
		return
	}

	items, err := h.repo.List(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []persistence.Intervention{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"interventions": items,
		"count":         len(items),
	})
}

// TriggerSync runs one sync pass and returns its summary. Idempotent.
func (h *Handlers) TriggerSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.syncer.Run(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message": result.Summary(),
		"result":  result,
	})
}

type decideRequest struct {
	Decision       string `json:"decision"`
	Note           string `json:"note"`
	ModifiedAction string `json:"modified_action"`
}

// Decide applies one decision to one intervention.
func (h *Handlers) Decide(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req decideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	d, err := decision.Parse(req.Decision)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := h.decisions.Decide(r.Context(), id, d, req.Note, persistence.ActionType(req.ModifiedAction))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message":      "decision applied",
			"intervention": updated,
		})
	case errors.Is(err, persistence.ErrNotFound):
		writeError(w, http.StatusNotFound, "intervention not found: "+id)
	case errors.Is(err, persistence.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, decision.ErrInvalidDecision):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

type batchDecideRequest struct {
	IDs            []string `json:"ids"`
	Decision       string   `json:"decision"`
	Note           string   `json:"note"`
	ModifiedAction string   `json:"modified_action"`
}

// BatchDecide applies one decision across many interventions, reporting
// every skip.
func (h *Handlers) BatchDecide(w http.ResponseWriter, r *http.Request) {
	var req batchDecideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, http.StatusBadRequest, "ids must not be empty")
		return
	}

	d, err := decision.Parse(req.Decision)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.decisions.BatchDecide(r.Context(), req.IDs, d, req.Note, persistence.ActionType(req.ModifiedAction))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Stats serves the current SLA & queue snapshot, optionally scoped to one
// athlete.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.stats.Current(r.Context(), r.URL.Query().Get("athlete_id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

// TrainingLoad serves the monotony/strain/ACR summary.
func (h *Handlers) TrainingLoad(w http.ResponseWriter, r *http.Request) {
	summary, err := h.views.TrainingLoad(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// Fitness serves the CTL/ATL/TSB series and classification.
func (h *Handlers) Fitness(w http.ResponseWriter, r *http.Request) {
	view, err := h.views.Fitness(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// Performance serves the VDOT series summary.
func (h *Handlers) Performance(w http.ResponseWriter, r *http.Request) {
	summary, err := h.views.Performance(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// EventsWS upgrades to a websocket subscribed to the live event feed.
func (h *Handlers) EventsWS(w http.ResponseWriter, r *http.Request) {
	if h.hub == nil {
		writeError(w, http.StatusNotFound, "live feed disabled")
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	h.hub.Register(conn)
	// Reads are discarded; the connection exists to receive events. A read
	// error means the peer went away.
	go func() {
		defer h.hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("response encoding failed")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
