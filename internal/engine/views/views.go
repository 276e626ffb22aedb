// Package views serves the per-athlete training-load, fitness-fatigue and
// performance read models consumed by the presentation layer. Summaries are
// cached with a short TTL; the underlying series are recomputed
// deterministically from history on every miss.
package views

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stridelabs/trainpulse/internal/cache"
	"github.com/stridelabs/trainpulse/internal/clock"
	"github.com/stridelabs/trainpulse/internal/domain/fitness"
	"github.com/stridelabs/trainpulse/internal/domain/load"
	"github.com/stridelabs/trainpulse/internal/domain/performance"
	"github.com/stridelabs/trainpulse/internal/engine/snapshot"
	"github.com/stridelabs/trainpulse/internal/persistence"
)

// FitnessView is the CTL/ATL/TSB series plus its current classification.
type FitnessView struct {
	AthleteID string          `json:"athlete_id"`
	Points    []fitness.Point `json:"points"`
	CTL       float64         `json:"ctl"`
	ATL       float64         `json:"atl"`
	TSB       float64         `json:"tsb"`
	State     fitness.State   `json:"state"`
	Band      fitness.Band    `json:"band"`
	HasData   bool            `json:"has_data"`
}

// Service builds the read models.
type Service struct {
	logs    persistence.TrainingLogStore
	perf    persistence.PerformanceRepo
	cache   *cache.Cache
	clk     clock.Clock
	loadTh  load.Thresholds
	trendN  int
}

// NewService wires the stores. cache may be nil.
func NewService(logs persistence.TrainingLogStore, perf persistence.PerformanceRepo, c *cache.Cache, clk clock.Clock, trendWindow int) *Service {
	if trendWindow <= 1 {
		trendWindow = performance.DefaultTrendWindow
	}
	return &Service{
		logs:   logs,
		perf:   perf,
		cache:  c,
		clk:    clk,
		loadTh: load.DefaultThresholds(),
		trendN: trendWindow,
	}
}

// TrainingLoad returns the monotony/strain/ACR summary for one athlete.
func (s *Service) TrainingLoad(ctx context.Context, athleteID string) (load.Summary, error) {
	key := "views:load:" + athleteID
	var cached load.Summary
	if hit, err := s.cache.GetJSON(ctx, key, &cached); err != nil {
		log.Warn().Err(err).Msg("training-load cache read failed")
	} else if hit {
		return cached, nil
	}

	loads, today, err := s.recentLoads(ctx, athleteID)
	if err != nil {
		return load.Summary{}, err
	}
	var series []float64
	if len(loads) > 0 {
		series = load.DaySeries(loads, load.Midnight(loads[0].Day), today)
	}
	summary := load.Summarize(athleteID, loads, series, s.loadTh)

	if err := s.cache.SetJSON(ctx, key, summary); err != nil {
		log.Warn().Err(err).Msg("training-load cache write failed")
	}
	return summary, nil
}

// Fitness returns the regenerated CTL/ATL/TSB series and its readiness
// classification.
func (s *Service) Fitness(ctx context.Context, athleteID string) (FitnessView, error) {
	loads, today, err := s.recentLoads(ctx, athleteID)
	if err != nil {
		return FitnessView{}, err
	}

	view := FitnessView{AthleteID: athleteID, State: fitness.StateInsufficientData}
	points := fitness.ComputeSeries(athleteID, loads, today)
	if len(points) == 0 {
		view.Band = fitness.BandFor(view.State)
		return view, nil
	}

	current := points[len(points)-1]
	var series []float64
	for _, p := range points {
		series = append(series, p.Load)
	}
	acr, acrValid := load.ACR(series, s.loadTh)

	view.HasData = true
	view.Points = points
	view.CTL = current.CTL
	view.ATL = current.ATL
	view.TSB = current.TSB
	view.State = fitness.Classify(current.TSB, acr, acrValid, len(points))
	view.Band = fitness.BandFor(view.State)
	return view, nil
}

// Performance returns the VDOT series summary with trend and paces.
func (s *Service) Performance(ctx context.Context, athleteID string) (performance.Summary, error) {
	estimates, err := s.perf.Estimates(ctx, athleteID)
	if err != nil {
		return performance.Summary{}, fmt.Errorf("fetch estimates for %s: %w", athleteID, err)
	}
	return performance.Summarize(athleteID, estimates, s.trendN), nil
}

// recentLoads fetches the chronic window plus settle margin of load history
// ending today.
func (s *Service) recentLoads(ctx context.Context, athleteID string) ([]load.DailyLoad, time.Time, error) {
	today := load.Midnight(s.clk.Now())
	from := today.AddDate(0, 0, -(s.loadTh.ChronicDays + snapshot.TauSettleDays))
	loads, err := s.logs.DailyLoads(ctx, athleteID, from, today)
	if err != nil {
		return nil, today, fmt.Errorf("fetch training logs for %s: %w", athleteID, err)
	}
	return loads, today, nil
}
