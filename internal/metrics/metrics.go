// Package metrics exposes the engine's prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncRuns counts completed sync passes.
	SyncRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trainpulse_sync_runs_total",
		Help: "Completed roster sync passes",
	})

	// SyncDuration observes wall time per sync pass.
	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "trainpulse_sync_duration_seconds",
		Help:    "Roster sync pass duration",
		Buckets: prometheus.DefBuckets,
	})

	// SyncAthleteErrors counts per-athlete failures inside sync passes.
	SyncAthleteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trainpulse_sync_athlete_errors_total",
		Help: "Athletes skipped inside sync passes due to errors",
	})

	// InterventionsCreated counts new intervention rows.
	InterventionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trainpulse_interventions_created_total",
		Help: "Interventions created by the generator",
	})

	// InterventionsReopened counts deferred rows that re-triggered.
	InterventionsReopened = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trainpulse_interventions_reopened_total",
		Help: "Deferred interventions reopened after cooldown expiry",
	})

	// InterventionsClosedStale counts deferred rows whose trigger cleared.
	InterventionsClosedStale = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trainpulse_interventions_closed_stale_total",
		Help: "Deferred interventions closed as stale after cooldown expiry",
	})

	// Decisions counts manual decisions by outcome.
	Decisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "trainpulse_decisions_total",
		Help: "Manual decisions applied, by decision",
	}, []string{"decision"})

	// OpenInterventions tracks the current open queue size.
	OpenInterventions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trainpulse_open_interventions",
		Help: "Interventions currently open",
	})
)
